package configdata

import (
	"fmt"
	"regexp"
	"strings"
)

// Readout groups with special meaning.
const (
	// GroupDefault is the default 120 Hz group. Its sources are read out on
	// event code 40.
	GroupDefault = 0
	// GroupControls holds sources outside the partition that are recorded
	// by other nodes: controls devices with an unknown rate.
	GroupControls = -1
	// GroupMonitored holds sources seen by a live session that are not
	// being recorded.
	GroupMonitored = -2
)

// DefaultEventCode is the event code shown for the default group.
const DefaultEventCode = 40

// evrClock is the EVR clock rate in Hz.
const evrClock = 119e6

// DefaultAliases maps sources whose derived names were historically
// inconsistent to their established aliases.
var DefaultAliases = map[string]string{
	"BldInfo(FEE-SPEC0)":      "FEE_Spec",
	"BldInfo(NH2-SB1-IPM-01)": "Nh2Sb1_Ipm1",
	"BldInfo(NH2-SB1-IPM-02)": "Nh2Sb1_Ipm2",
	"BldInfo(MFX-BEAMMON-01)": "MfxBeammon",
}

var eventCodeRates = map[int]string{
	40:  "120 Hz",
	41:  "60 Hz",
	42:  "30 Hz",
	43:  "10 Hz",
	44:  "5 Hz",
	45:  "1 Hz",
	46:  "0.5 Hz",
	140: "Beam & 120 Hz",
	141: "Beam & 60 Hz",
	142: "Beam & 30 Hz",
	143: "Beam & 10 Hz",
	144: "Beam & 5 Hz",
	145: "Beam & 1 Hz",
	146: "Beam & 0.5 Hz",
	150: "Burst",
	162: "BYKIK",
	163: "BAKIK",
}

// EventCodeRate returns the nominal rate of an event code, or "".
func EventCodeRate(code int) string {
	return eventCodeRates[code]
}

var aliasPunct = regexp.MustCompile(`[-:. ]`)

// Sanitize replaces '-', ':', '.' and ' ' with '_'.
func Sanitize(alias string) string {
	return aliasPunct.ReplaceAllString(alias, "_")
}

// DeriveAlias computes the alias of a source with no alias record: the
// exception table first, else the source with its "XInfo(...)" wrapper
// stripped. The result is sanitized.
func DeriveAlias(source string, exceptions map[string]string) string {
	if alias, ok := exceptions[source]; ok {
		return Sanitize(alias)
	}
	alias := source
	if i := strings.Index(source, "Info("); i >= 0 {
		alias = strings.TrimRight(source[i+len("Info("):], ")")
	}
	return Sanitize(alias)
}

// hidden reports whether a source is a placeholder that never gets a
// visible alias.
func hidden(source string) bool {
	return strings.Contains(source, "NoDetector") || strings.Contains(source, "NoDevice")
}

// Polarity is a trigger output polarity.
type Polarity int

const (
	PolarityPos Polarity = iota
	PolarityNeg
)

// String returns "Pos" or "Neg".
func (p Polarity) String() string {
	if p == PolarityNeg {
		return "Neg"
	}
	return "Pos"
}

// TriggerTiming is the pulse timing driving one trigger output.
type TriggerTiming struct {
	// Width is the pulse width in seconds.
	Width float64
	// Delay is the pulse delay in seconds.
	Delay float64
	Polarity Polarity
}

// OutputKey identifies a trigger output by EVR module and connector channel.
type OutputKey struct {
	Module int
	Conn   int
}

// String returns "module/conn".
func (k OutputKey) String() string {
	return fmt.Sprintf("%d/%d", k.Module, k.Conn)
}

// OutputMap is one decoded output map entry.
type OutputMap struct {
	Key OutputKey
	// Source is the output source type, e.g. "Pulse".
	Source   string
	SourceID int
	Value    int64
	// Timing is set when the output is driven by a pulse generator.
	Timing *TriggerTiming
}

// EventCodeInfo is one configured event code.
type EventCodeInfo struct {
	Code    int
	Readout bool
	Group   int
	Desc    string
	// Values holds every field of the event code record, flattened.
	Values map[string]any
}

// Rate returns the nominal rate of the code, or "".
func (e EventCodeInfo) Rate() string {
	return EventCodeRate(e.Code)
}

// ReadoutGroup is a set of sources read out together and the event codes
// triggering them.
type ReadoutGroup struct {
	ID         int
	Sources    []string
	EventCodes []int
}

// PartitionEntry is the internal record of one known source. Entries with
// no group or a placeholder source are kept here but never become aliases.
type PartitionEntry struct {
	Source string
	Alias  string
	// Group is nil when the source declared no group.
	Group *int
	// External is set for sources named by an alias record but absent from
	// the partition.
	External  bool
	EventCode int
	Output    *OutputKey
	Timing    *TriggerTiming
}

// AliasEntry is one externally visible alias.
type AliasEntry struct {
	Alias  string
	Source string
	Group  int
	// EventCode is the representative trigger code of the source's
	// readout group, or 0 if none is known.
	EventCode int
	// Output is the trigger output wired to the source, if any.
	Output *OutputKey
	Timing *TriggerTiming
}
