package configdata

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	dserrors "github.com/randalmurphal/datasource/pkg/datasource/errors"
	"github.com/randalmurphal/datasource/pkg/datasource/observability"
	"github.com/randalmurphal/datasource/pkg/datasource/record"
	"github.com/randalmurphal/datasource/pkg/datasource/schema"
	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// Record-type modules the resolver reads.
const (
	modulePartition = "Partition"
	moduleAlias     = "Alias"
	moduleEvr       = "EvrData"
	moduleControl   = "ControlData"
)

// Resolver builds a Config from a configuration snapshot. A Resolver holds
// no per-run state and can be reused.
type Resolver struct {
	table      *schema.Table
	live       bool
	run        string
	exceptions map[string]string
	logger     *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLive marks the session as live. Alias-record sources missing from the
// partition then land in GroupMonitored instead of GroupControls.
func WithLive(live bool) ResolverOption {
	return func(r *Resolver) {
		r.live = live
	}
}

// WithRun sets the run identifier used in error reports.
func WithRun(run string) ResolverOption {
	return func(r *Resolver) {
		r.run = run
	}
}

// WithAliasDefaults replaces the alias exception table.
func WithAliasDefaults(m map[string]string) ResolverOption {
	return func(r *Resolver) {
		r.exceptions = m
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a resolver reading records through table.
func NewResolver(table *schema.Table, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		table:      table,
		exceptions: DefaultAliases,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve reconciles the partition, alias, trigger and control records of
// a configuration snapshot. Missing records are noted and degraded around.
// Two Partition records or two IO configuration records return a
// *errors.MalformedConfigurationError.
func (r *Resolver) Resolve(ctx context.Context, c store.Container) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	elapsed := observability.TimedOperation()

	b := &builder{
		r:    r,
		snap: record.NewSnapshot(c, r.table),
		cfg: &Config{
			run:        r.run,
			live:       r.live,
			partition:  make(map[string]*PartitionEntry),
			aliases:    make(map[string]AliasEntry),
			bySource:   make(map[string]string),
			groups:     make(map[int]*ReadoutGroup),
			eventCodes: make(map[int]EventCodeInfo),
			outputs:    make(map[OutputKey]OutputMap),
		},
	}
	b.cfg.snapshot = b.snap

	steps := []func() error{b.partition, b.aliasRecords, b.defaultAliases, b.triggers, b.controlData}
	for _, step := range steps {
		if err := step(); err != nil {
			observability.LogConfigError(r.logger, err)
			return nil, err
		}
	}
	b.publish()

	observability.LogConfigResolved(r.logger, len(b.cfg.aliases), len(b.cfg.groups), len(b.cfg.notes), elapsed())
	return b.cfg, nil
}

// builder carries one resolution.
type builder struct {
	r    *Resolver
	snap *record.Snapshot
	cfg  *Config
}

func (b *builder) note(err error) {
	b.cfg.notes = append(b.cfg.notes, err)
}

func (b *builder) malformed(recordType string, keys []store.Key) error {
	sources := make([]string, len(keys))
	for i, k := range keys {
		sources[i] = k.Source
	}
	return &dserrors.MalformedConfigurationError{
		Run:        b.r.run,
		RecordType: recordType,
		Count:      len(keys),
		Sources:    sources,
	}
}

// configKeys returns the top-level configuration records of a module:
// the types named Config*.
func (b *builder) configKeys(module, prefix string) []store.Key {
	var out []store.Key
	for _, k := range b.snap.Keys().Module(module) {
		if strings.HasPrefix(k.Type.Name, prefix) {
			out = append(out, k)
		}
	}
	return out
}

func (b *builder) group(id int) *ReadoutGroup {
	g, ok := b.cfg.groups[id]
	if !ok {
		g = &ReadoutGroup{ID: id}
		b.cfg.groups[id] = g
	}
	return g
}

// partition reads the single Partition record. Without one, every
// BldInfo/DetInfo source is taken as a group-0 member.
func (b *builder) partition() error {
	keys := b.configKeys(modulePartition, "Config")
	switch len(keys) {
	case 0:
		b.note(&dserrors.MissingRecordError{RecordType: modulePartition})
		b.cfg.degraded = true
		for _, src := range b.snap.Keys().Sources() {
			if !strings.HasPrefix(src, "BldInfo(") && !strings.HasPrefix(src, "DetInfo(") {
				continue
			}
			group := GroupDefault
			b.cfg.partition[src] = &PartitionEntry{
				Source: src,
				Alias:  DeriveAlias(src, nil),
				Group:  &group,
			}
		}
		return nil
	case 1:
	default:
		return b.malformed(modulePartition, keys)
	}

	v, err := b.snap.View(keys[0])
	if err != nil {
		b.note(&dserrors.MissingRecordError{RecordType: modulePartition, Source: keys[0].Source})
		return nil
	}
	if mask, ok := record.AsInt64(v.Value("bldMask")); ok {
		b.cfg.bldMask = mask
	}
	if v.Has("ipAddr") {
		if addr, ok := record.AsInt64(v.Value("ipAddr")); ok {
			b.cfg.ipAddr = addr
		}
	}

	sources, ok := v.Value("sources").(*record.ListView)
	if !ok {
		b.note(&dserrors.MissingRecordError{RecordType: "Partition.Source", Source: keys[0].Source})
		return nil
	}
	for _, item := range sources.Items() {
		src := record.AsString(item.Value("src"))
		if src == "" {
			continue
		}
		entry := &PartitionEntry{Source: src}
		if res := item.Resolve("group"); !res.Fallback {
			if g, ok := record.AsInt(res.Value); ok {
				entry.Group = &g
				// Group 0 sources are not tracked as readout-group members.
				if g != GroupDefault {
					b.group(g).Sources = append(b.group(g).Sources, src)
				} else {
					b.group(g)
				}
			}
		}
		b.cfg.partition[src] = entry
	}
	return nil
}

// aliasRecords overlays every alias record onto the partition. Sources not
// in the partition join GroupControls, or GroupMonitored when live.
func (b *builder) aliasRecords() error {
	if b.cfg.degraded {
		return nil
	}
	keys := b.configKeys(moduleAlias, "Config")
	if len(keys) == 0 {
		b.note(&dserrors.MissingRecordError{RecordType: moduleAlias})
		return nil
	}
	for _, k := range keys {
		v, err := b.snap.View(k)
		if err != nil {
			b.note(&dserrors.MissingRecordError{RecordType: moduleAlias, Source: k.Source})
			continue
		}
		list, ok := v.Value("srcAlias").(*record.ListView)
		if !ok {
			continue
		}
		for _, item := range list.Items() {
			src := record.AsString(item.Value("src"))
			name := record.AsString(item.Value("aliasName"))
			if src == "" || name == "" {
				continue
			}
			b.overlay(src, Sanitize(name))
		}
	}
	return nil
}

func (b *builder) overlay(src, alias string) {
	if entry, ok := b.cfg.partition[src]; ok {
		entry.Alias = alias
		return
	}
	group := GroupControls
	if b.r.live {
		group = GroupMonitored
	}
	b.cfg.partition[src] = &PartitionEntry{
		Source:   src,
		Alias:    alias,
		Group:    &group,
		External: true,
	}
	g := b.group(group)
	g.Sources = append(g.Sources, src)
}

// defaultAliases names every source still without an alias.
func (b *builder) defaultAliases() error {
	for _, src := range b.sortedSources() {
		entry := b.cfg.partition[src]
		if entry.Alias == "" {
			entry.Alias = DeriveAlias(src, b.r.exceptions)
		}
	}
	return nil
}

// triggers decodes the event codes, output maps and IO channels, fans the
// pulse timing out to the wired sources and gives every readout group its
// first readout code.
func (b *builder) triggers() error {
	ioKeys := b.configKeys(moduleEvr, "IOConfig")
	if len(ioKeys) > 1 {
		return b.malformed(moduleEvr+".IOConfig", ioKeys)
	}
	cfgKeys := b.configKeys(moduleEvr, "Config")
	if len(cfgKeys) == 0 {
		b.note(&dserrors.MissingRecordError{RecordType: moduleEvr})
	}

	for _, k := range cfgKeys {
		v, err := b.snap.View(k)
		if err != nil {
			b.note(&dserrors.MissingRecordError{RecordType: moduleEvr, Source: k.Source})
			continue
		}
		b.eventCodes(v)
		b.outputMaps(v)
	}

	if len(ioKeys) == 0 {
		if len(cfgKeys) > 0 {
			b.note(&dserrors.MissingRecordError{RecordType: moduleEvr + ".IOConfig"})
		}
	} else if v, err := b.snap.View(ioKeys[0]); err == nil {
		b.channels(v)
	} else {
		b.note(&dserrors.MissingRecordError{RecordType: moduleEvr + ".IOConfig", Source: ioKeys[0].Source})
	}

	for _, g := range b.cfg.groups {
		if len(g.EventCodes) == 0 {
			continue
		}
		for _, src := range g.Sources {
			if entry, ok := b.cfg.partition[src]; ok {
				entry.EventCode = g.EventCodes[0]
			}
		}
	}
	return nil
}

func (b *builder) eventCodes(v *record.View) {
	list, ok := v.Value("eventcodes").(*record.ListView)
	if !ok {
		return
	}
	for _, item := range list.Items() {
		code, ok := record.AsInt(item.Value("code"))
		if !ok {
			continue
		}
		info := EventCodeInfo{
			Code:   code,
			Desc:   record.AsString(item.Value("desc")),
			Values: item.Flatten(),
		}
		info.Readout, _ = item.Value("isReadout").(bool)
		info.Group, _ = record.AsInt(item.Value("readoutGroup"))
		b.cfg.eventCodes[code] = info

		if info.Readout {
			g := b.group(info.Group)
			g.EventCodes = append(g.EventCodes, code)
		}
	}
}

func (b *builder) outputMaps(v *record.View) {
	list, ok := v.Value("output_maps").(*record.ListView)
	if !ok {
		return
	}
	var pulses []*record.View
	if pl, ok := v.Value("pulses").(*record.ListView); ok {
		pulses = pl.Items()
	}

	for _, item := range list.Items() {
		module, _ := record.AsInt(item.Value("module"))
		conn, _ := record.AsInt(item.Value("conn_id"))
		om := OutputMap{
			Key:    OutputKey{Module: module, Conn: conn},
			Source: record.AsString(item.Value("source")),
		}
		om.SourceID, _ = record.AsInt(item.Value("source_id"))
		om.Value, _ = record.AsInt64(item.Value("value"))

		if om.Source == "Pulse" && om.SourceID >= 0 && om.SourceID < len(pulses) {
			om.Timing = pulseTiming(pulses[om.SourceID])
		}
		b.cfg.outputs[om.Key] = om
	}
}

func pulseTiming(p *record.View) *TriggerTiming {
	prescale, ok := record.AsFloat(p.Value("prescale"))
	if !ok {
		prescale = 1
	}
	width, _ := record.AsFloat(p.Value("width"))
	delay, _ := record.AsFloat(p.Value("delay"))
	return &TriggerTiming{
		Width:    width * prescale / evrClock,
		Delay:    delay * prescale / evrClock,
		Polarity: polarity(p.Value("polarity")),
	}
}

func polarity(v any) Polarity {
	if s, ok := v.(string); ok {
		if strings.EqualFold(s, "Neg") || strings.EqualFold(s, "Negative") {
			return PolarityNeg
		}
		return PolarityPos
	}
	if n, ok := record.AsInt(v); ok && n == 1 {
		return PolarityNeg
	}
	return PolarityPos
}

// channels wires every IO channel's output to the sources it lists.
func (b *builder) channels(v *record.View) {
	list, ok := v.Value("channels").(*record.ListView)
	if !ok {
		return
	}
	for _, ch := range list.Items() {
		out, ok := ch.Value("output").(*record.View)
		if !ok {
			continue
		}
		module, _ := record.AsInt(out.Value("module"))
		conn, _ := record.AsInt(out.Value("conn_id"))
		key := OutputKey{Module: module, Conn: conn}
		om, known := b.cfg.outputs[key]

		infos, _ := record.AsList(ch.Value("infos"))
		for _, info := range infos {
			src := record.AsString(info)
			entry, ok := b.cfg.partition[src]
			if !ok {
				b.r.logger.Debug("io channel source not in partition",
					slog.String("source", src),
					slog.String("output", key.String()),
				)
				continue
			}
			k := key
			entry.Output = &k
			if known && om.Timing != nil {
				timing := *om.Timing
				entry.Timing = &timing
			}
		}
	}
}

func (b *builder) controlData() error {
	keys := b.configKeys(moduleControl, "Config")
	if len(keys) == 0 {
		b.note(&dserrors.MissingRecordError{RecordType: moduleControl})
		return nil
	}
	v, err := b.snap.View(keys[0])
	if err != nil {
		b.note(&dserrors.MissingRecordError{RecordType: moduleControl, Source: keys[0].Source})
		return nil
	}
	b.cfg.controlData = v
	return nil
}

// publish builds the visible alias map. Sources without a group and
// placeholder sources stay internal. When two sources share an alias the
// first in source order keeps it.
func (b *builder) publish() {
	for _, src := range b.sortedSources() {
		entry := b.cfg.partition[src]
		if entry.Group == nil || hidden(src) {
			continue
		}
		if owner, taken := b.cfg.aliases[entry.Alias]; taken {
			b.r.logger.Debug("duplicate alias",
				slog.String("alias", entry.Alias),
				slog.String("source", src),
				slog.String("kept", owner.Source),
			)
			continue
		}
		b.cfg.aliases[entry.Alias] = AliasEntry{
			Alias:     entry.Alias,
			Source:    src,
			Group:     *entry.Group,
			EventCode: entry.EventCode,
			Output:    entry.Output,
			Timing:    entry.Timing,
		}
		b.cfg.bySource[src] = entry.Alias
	}
	for _, g := range b.cfg.groups {
		sort.Strings(g.Sources)
	}
}

func (b *builder) sortedSources() []string {
	out := make([]string, 0, len(b.cfg.partition))
	for src := range b.cfg.partition {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}
