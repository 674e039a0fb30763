package store

import (
	"fmt"
	"strings"
)

// Mode selects the access mode of a store.
type Mode int

const (
	// ModeIndexed is random access through a run's time index (idx).
	ModeIndexed Mode = iota

	// ModeSmallData is step-chunked small-data iteration (smd).
	ModeSmallData

	// ModeLive is a streaming shared-memory session.
	ModeLive
)

// String returns the short mode name.
func (m Mode) String() string {
	switch m {
	case ModeIndexed:
		return "idx"
	case ModeSmallData:
		return "smd"
	case ModeLive:
		return "live"
	default:
		return "unknown"
	}
}

// ParseMode parses "idx", "smd" or "live" (also "shmem").
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "idx", "indexed", "":
		return ModeIndexed, nil
	case "smd", "smalldata":
		return ModeSmallData, nil
	case "live", "shmem":
		return ModeLive, nil
	default:
		return ModeIndexed, fmt.Errorf("unknown access mode %q", s)
	}
}

// Spec identifies the run a store should serve.
type Spec struct {
	Instrument string
	Experiment string
	Run        int
	Mode       Mode

	// Server names the shared-memory server for live sessions.
	Server string
}

// WithMode returns a copy of the spec with a different mode.
func (s Spec) WithMode(m Mode) Spec {
	s.Mode = m
	return s
}

// Live reports whether the spec is a live session.
func (s Spec) Live() bool {
	return s.Mode == ModeLive
}

// String renders the spec as a data source string.
func (s Spec) String() string {
	if s.Mode == ModeLive {
		if s.Server != "" {
			return "shmem=" + s.Server
		}
		return "shmem"
	}
	out := fmt.Sprintf("exp=%s:run=%d", s.Experiment, s.Run)
	if s.Mode == ModeSmallData {
		out += ":smd"
	} else {
		out += ":idx"
	}
	return out
}

// RunKey identifies the run independently of access mode.
// Used to key persisted per-alias settings.
func (s Spec) RunKey() string {
	return fmt.Sprintf("%s/run%04d", s.Experiment, s.Run)
}

// Vars returns the spec as template variables.
func (s Spec) Vars() map[string]any {
	instrument := s.Instrument
	if instrument == "" && len(s.Experiment) >= 3 {
		// Experiment names start with the instrument code.
		instrument = s.Experiment[:3]
	}
	return map[string]any{
		"instrument": instrument,
		"experiment": s.Experiment,
		"run":        fmt.Sprintf("%04d", s.Run),
		"mode":       s.Mode.String(),
	}
}
