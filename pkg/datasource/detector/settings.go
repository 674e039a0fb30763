package detector

import (
	"fmt"
	"iter"
	"maps"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Property computes a derived attribute from the detector. Properties are
// not serialized.
type Property func(d *Detector) (any, error)

// ROI slices a region of interest out of an array attribute.
type ROI struct {
	// Attr names the source attribute.
	Attr string `json:"attr"`
	// Sensor selects the first index of a 3-D array.
	Sensor *int `json:"sensor,omitempty"`
	// Bounds holds one [start, end) pair per sliced dimension: one for a
	// 1-D array, [y, x] for 2-D.
	Bounds [][2]int `json:"roi"`
	Unit   string   `json:"unit,omitempty"`
	Doc    string   `json:"doc,omitempty"`
}

// Count sums an attribute times a gain.
type Count struct {
	Attr string  `json:"attr"`
	Gain float64 `json:"gain"`
	// Limits restricts the sum to values in [low, high).
	Limits *[2]float64 `json:"limits,omitempty"`
	Unit   string      `json:"unit,omitempty"`
	Doc    string      `json:"doc,omitempty"`
}

// Histogram bins an attribute times a gain into fixed edges.
type Histogram struct {
	Attr  string    `json:"attr"`
	Gain  float64   `json:"gain"`
	Edges []float64 `json:"bins"`
	Unit  string    `json:"unit,omitempty"`
	Doc   string    `json:"doc,omitempty"`
}

// Peak methods.
const (
	PeakMax      = "max"
	PeakIndex    = "index"
	PeakPos      = "pos"
	PeakTime     = "time"
	PeakWaveform = "waveform"
)

// Peak locates the maximum of a 1-D waveform.
type Peak struct {
	Attr string `json:"attr"`
	// Channel selects one row of a 2-D waveform array.
	Channel   *int      `json:"ichannel,omitempty"`
	Method    string    `json:"method"`
	Baseline  float64   `json:"baseline,omitempty"`
	Scale     float64   `json:"scale,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	ROI       *[2]int   `json:"roi,omitempty"`
	XAxis     []float64 `json:"xaxis,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	Doc       string    `json:"doc,omitempty"`
}

// Projection methods.
const (
	ProjectSum  = "sum"
	ProjectMean = "mean"
)

// Projection reduces a 2-D attribute along one axis.
type Projection struct {
	Attr string `json:"attr"`
	// Axis is "x" or "y".
	Axis   string `json:"axis"`
	Method string `json:"method"`
	Unit   string `json:"unit,omitempty"`
	Doc    string `json:"doc,omitempty"`
}

// Settings is the per-alias configuration of user-defined attributes.
// Everything except properties survives Encode and Decode.
type Settings struct {
	Parameter  map[string]any        `json:"parameter,omitempty"`
	Property   map[string]Property   `json:"-"`
	ROI        map[string]ROI        `json:"roi,omitempty"`
	Count      map[string]Count      `json:"count,omitempty"`
	Histogram  map[string]Histogram  `json:"histogram,omitempty"`
	Peak       map[string]Peak       `json:"peak,omitempty"`
	Projection map[string]Projection `json:"projection,omitempty"`
}

// NewSettings returns empty settings with every section allocated.
func NewSettings() *Settings {
	s := &Settings{}
	s.init()
	return s
}

func (s *Settings) init() {
	if s.Parameter == nil {
		s.Parameter = make(map[string]any)
	}
	if s.Property == nil {
		s.Property = make(map[string]Property)
	}
	if s.ROI == nil {
		s.ROI = make(map[string]ROI)
	}
	if s.Count == nil {
		s.Count = make(map[string]Count)
	}
	if s.Histogram == nil {
		s.Histogram = make(map[string]Histogram)
	}
	if s.Peak == nil {
		s.Peak = make(map[string]Peak)
	}
	if s.Projection == nil {
		s.Projection = make(map[string]Projection)
	}
}

// Merge copies every entry of other into s. Entries of other replace
// entries of s with the same name.
func (s *Settings) Merge(other *Settings) {
	if other == nil {
		return
	}
	s.init()
	maps.Copy(s.Parameter, other.Parameter)
	maps.Copy(s.Property, other.Property)
	maps.Copy(s.ROI, other.ROI)
	maps.Copy(s.Count, other.Count)
	maps.Copy(s.Histogram, other.Histogram)
	maps.Copy(s.Peak, other.Peak)
	maps.Copy(s.Projection, other.Projection)
}

// Clone returns a copy of s. Section maps are copied; entry values are
// shared.
func (s *Settings) Clone() *Settings {
	out := NewSettings()
	out.Merge(s)
	return out
}

// Names returns every user-defined attribute name, sorted.
func (s *Settings) Names() []string {
	seen := make(map[string]bool)
	add := func(keys iter.Seq[string]) {
		for k := range keys {
			seen[k] = true
		}
	}
	add(maps.Keys(s.Parameter))
	add(maps.Keys(s.Property))
	add(maps.Keys(s.ROI))
	add(maps.Keys(s.Count))
	add(maps.Keys(s.Histogram))
	add(maps.Keys(s.Peak))
	add(maps.Keys(s.Projection))

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Empty reports whether no attribute is defined.
func (s *Settings) Empty() bool {
	return len(s.Names()) == 0
}

// Encode serializes the settings. Properties are dropped.
func (s *Settings) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return data, nil
}

// DecodeSettings parses settings written by Encode.
func DecodeSettings(data []byte) (*Settings, error) {
	s := &Settings{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	s.init()
	return s, nil
}
