package configdata

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/randalmurphal/datasource/pkg/datasource/record"
)

// Config is the resolved configuration of one run or step. The alias,
// partition, group and trigger tables never change after Resolve returns.
// Record views handed out by Source, ConfigFor and ControlData are built
// lazily and are not safe for concurrent use.
type Config struct {
	run      string
	live     bool
	degraded bool
	bldMask  int64
	ipAddr   int64

	partition  map[string]*PartitionEntry
	aliases    map[string]AliasEntry
	bySource   map[string]string
	groups     map[int]*ReadoutGroup
	eventCodes map[int]EventCodeInfo
	outputs    map[OutputKey]OutputMap

	mu          sync.Mutex
	snapshot    *record.Snapshot
	controlData *record.View
	notes       []error
}

// Run returns the run identifier the config was resolved for.
func (c *Config) Run() string { return c.run }

// Live reports whether the config was resolved for a live session.
func (c *Config) Live() bool { return c.live }

// Degraded reports whether the snapshot had no Partition record.
func (c *Config) Degraded() bool { return c.degraded }

// BldMask returns the partition's BLD source mask.
func (c *Config) BldMask() int64 { return c.bldMask }

// IPAddr returns the partition's recording node address, if recorded.
func (c *Config) IPAddr() int64 { return c.ipAddr }

// Alias looks up an alias.
func (c *Config) Alias(alias string) (AliasEntry, bool) {
	e, ok := c.aliases[alias]
	return e, ok
}

// AliasFor returns the alias of a source.
func (c *Config) AliasFor(source string) (string, bool) {
	a, ok := c.bySource[source]
	return a, ok
}

// AliasNames returns every visible alias, sorted.
func (c *Config) AliasNames() []string {
	out := make([]string, 0, len(c.aliases))
	for a := range c.aliases {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Aliases returns every visible alias entry, sorted by alias.
func (c *Config) Aliases() []AliasEntry {
	names := c.AliasNames()
	out := make([]AliasEntry, len(names))
	for i, a := range names {
		out[i] = c.aliases[a]
	}
	return out
}

// Partition returns the internal entry of a source, including sources
// without a group and placeholder sources.
func (c *Config) Partition(source string) (PartitionEntry, bool) {
	e, ok := c.partition[source]
	if !ok {
		return PartitionEntry{}, false
	}
	return *e, true
}

// PartitionSources returns every internally tracked source, sorted.
func (c *Config) PartitionSources() []string {
	out := make([]string, 0, len(c.partition))
	for src := range c.partition {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

// ReadoutGroups returns the readout groups sorted by id.
func (c *Config) ReadoutGroups() []ReadoutGroup {
	out := make([]ReadoutGroup, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, ReadoutGroup{
			ID:         g.ID,
			Sources:    append([]string(nil), g.Sources...),
			EventCodes: append([]int(nil), g.EventCodes...),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EventCodes returns the configured event codes sorted by code.
func (c *Config) EventCodes() []EventCodeInfo {
	out := make([]EventCodeInfo, 0, len(c.eventCodes))
	for _, e := range c.eventCodes {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// EventCode looks up one configured event code.
func (c *Config) EventCode(code int) (EventCodeInfo, bool) {
	e, ok := c.eventCodes[code]
	return e, ok
}

// OutputMaps returns the trigger output maps sorted by module and channel.
func (c *Config) OutputMaps() []OutputMap {
	out := make([]OutputMap, 0, len(c.outputs))
	for _, om := range c.outputs {
		out = append(out, om)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Module != out[j].Key.Module {
			return out[i].Key.Module < out[j].Key.Module
		}
		return out[i].Key.Conn < out[j].Key.Conn
	})
	return out
}

// Source returns the configuration records of a source.
func (c *Config) Source(source string) (*record.SourceView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Source(source)
}

// ConfigFor returns the configuration records of an alias's source.
func (c *Config) ConfigFor(alias string) (*record.SourceView, bool) {
	e, ok := c.aliases[alias]
	if !ok {
		return nil, false
	}
	return c.Source(e.Source)
}

// HasConfig reports whether the snapshot carries records for a source.
func (c *Config) HasConfig(source string) bool {
	return c.snapshot.Keys().Has(source)
}

// ControlData returns the scan control record, if present.
func (c *Config) ControlData() (*record.View, bool) {
	return c.controlData, c.controlData != nil
}

// Notes returns the missing-record notes collected while resolving.
func (c *Config) Notes() []error {
	return append([]error(nil), c.notes...)
}

// ShowInfo renders the source table: alias, group, rate, event code,
// trigger polarity, delay, width and source. Only sources with
// configuration records and BLD sources are listed.
func (c *Config) ShowInfo() []string {
	rows := []string{`*Detectors in group 0 are "BLD" data recorded at 120 Hz on event code 40`}
	if c.live {
		rows = append(rows, "*Detectors listed as Monitor are not being recorded (group -2).")
	} else {
		rows = append(rows, "*Detectors listed as Controls are controls devices with unknown event code (but likely 40).")
	}
	header := fmt.Sprintf("%-22s %8s %13s %5s %5s %-12s %-12s %s",
		"Alias", "Group", "Rate", "Code", "Pol.", "Delay [s]", "Width [s]", "Source")
	rows = append(rows, "", header, strings.Repeat("-", len(header)+10))

	for _, e := range c.Aliases() {
		if !c.HasConfig(e.Source) && !strings.HasPrefix(e.Source, "Bld") {
			continue
		}
		rows = append(rows, showRow(e))
	}
	return rows
}

func showRow(e AliasEntry) string {
	var pol, delay, width string
	if e.Timing != nil {
		pol = e.Timing.Polarity.String()
		if e.Timing.Delay != 0 {
			delay = fmt.Sprintf("%11.9f", e.Timing.Delay)
		}
		if e.Timing.Width != 0 {
			width = fmt.Sprintf("%11.9f", e.Timing.Width)
		}
	}

	group := strconv.Itoa(e.Group)
	switch e.Group {
	case GroupControls:
		group = "Controls"
	case GroupMonitored:
		group = "Monitor"
	}

	code := e.EventCode
	if e.Group == GroupDefault {
		code = DefaultEventCode
	}
	var codeStr string
	if code != 0 {
		codeStr = strconv.Itoa(code)
	}

	return fmt.Sprintf("%-22s %8s %13s %5s %5s %-12s %-12s %s",
		e.Alias, group, EventCodeRate(code), codeStr, pol, delay, width, e.Source)
}
