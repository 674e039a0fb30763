package detector

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/randalmurphal/datasource/pkg/datasource/config"
	"github.com/randalmurphal/datasource/pkg/datasource/configdata"
	"github.com/randalmurphal/datasource/pkg/datasource/cursor"
	"github.com/randalmurphal/datasource/pkg/datasource/record"
)

// ErrUnknownAttribute is returned when no layer defines a name.
var ErrUnknownAttribute = errors.New("unknown attribute")

// ErrCycle is returned when a derived attribute depends on itself.
var ErrCycle = errors.New("attribute depends on itself")

// Layer names where a value was found.
type Layer int

const (
	LayerNone Layer = iota
	LayerRaw
	LayerCalibrated
	LayerParameter
	LayerProperty
	LayerCount
	LayerHistogram
	LayerROI
	LayerPeak
	LayerProjection
	LayerEvent
)

var layerNames = map[Layer]string{
	LayerNone:       "none",
	LayerRaw:        "raw",
	LayerCalibrated: "calibrated",
	LayerParameter:  "parameter",
	LayerProperty:   "property",
	LayerCount:      "count",
	LayerHistogram:  "histogram",
	LayerROI:        "roi",
	LayerPeak:       "peak",
	LayerProjection: "projection",
	LayerEvent:      "event",
}

// String returns the layer name.
func (l Layer) String() string {
	if s, ok := layerNames[l]; ok {
		return s
	}
	return fmt.Sprintf("Layer(%d)", int(l))
}

// EventAttrNames lists the event-level attributes every detector falls
// back to.
var EventAttrNames = []string{"EventId", "Evr", "L3T", "timestamp"}

// EventAttrs serves event-level metadata for the current event.
type EventAttrs interface {
	EventAttr(name string) (any, bool)
}

// Lookup is the outcome of resolving one attribute.
type Lookup struct {
	Value any
	Layer Layer
	Err   error
}

// Detector is the per-alias view of the current event. It layers the raw
// records of the alias's source, the calibrated view, and the user-defined
// attributes of its Settings, then falls back to event metadata.
//
// A Detector reads through its cursor's Cache, so it always reflects the
// cursor's current event. It is not safe for concurrent use.
type Detector struct {
	alias    string
	source   string
	cache    *cursor.Cache
	settings *Settings
	config   *configdata.Config
	event    EventAttrs
	logger   *slog.Logger

	resolving map[string]bool
}

// Option configures a Detector.
type Option func(*Detector)

// WithConfig sets the resolved run configuration.
func WithConfig(cfg *configdata.Config) Option {
	return func(d *Detector) {
		d.config = cfg
	}
}

// WithEventAttrs sets the event metadata fallback.
func WithEventAttrs(e EventAttrs) Option {
	return func(d *Detector) {
		d.event = e
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates the detector for alias reading source from cache. settings
// may be shared with other detectors of the same alias; nil means empty.
func New(alias, source string, cache *cursor.Cache, settings *Settings, opts ...Option) *Detector {
	if settings == nil {
		settings = NewSettings()
	}
	d := &Detector{
		alias:     alias,
		source:    source,
		cache:     cache,
		settings:  settings,
		logger:    slog.Default(),
		resolving: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Alias returns the detector alias.
func (d *Detector) Alias() string { return d.alias }

// Source returns the store source of the alias.
func (d *Detector) Source() string { return d.source }

// Settings returns the user-defined attribute settings.
func (d *Detector) Settings() *Settings { return d.settings }

// Params returns the user parameters as a typed accessor.
func (d *Detector) Params() config.Config {
	return config.New(d.settings.Parameter)
}

// Present reports whether the current event carries the detector's source.
func (d *Detector) Present() bool {
	return d.cache.Has(d.source)
}

// Raw returns the raw records of the source in the current event.
func (d *Detector) Raw() (*record.SourceView, bool) {
	return d.cache.Source(d.source)
}

// Calibrated returns the calibrated view of the source, fetched once per
// event.
func (d *Detector) Calibrated() (*record.View, error) {
	return d.cache.Calibrated(d.source)
}

// Entry returns the resolved alias entry.
func (d *Detector) Entry() (configdata.AliasEntry, bool) {
	if d.config == nil {
		return configdata.AliasEntry{}, false
	}
	return d.config.Alias(d.alias)
}

// ConfigData returns the configuration records of the source.
func (d *Detector) ConfigData() (*record.SourceView, bool) {
	if d.config == nil {
		return nil, false
	}
	return d.config.Source(d.source)
}

// Get resolves name and returns its value.
func (d *Detector) Get(name string) (any, error) {
	l := d.Resolve(name)
	return l.Value, l.Err
}

// Value resolves name, reporting false when it is undefined or failed.
func (d *Detector) Value(name string) (any, bool) {
	l := d.Resolve(name)
	return l.Value, l.Err == nil
}

// Resolve looks name up layer by layer; the first layer defining it wins:
// raw fields, calibrated fields, parameters, properties, counts,
// histograms, rois, peaks, projections and finally event metadata.
func (d *Detector) Resolve(name string) Lookup {
	if d.resolving[name] {
		return Lookup{Err: fmt.Errorf("%s.%s: %w", d.alias, name, ErrCycle)}
	}
	d.resolving[name] = true
	defer delete(d.resolving, name)

	if sv, ok := d.Raw(); ok && sv.Has(name) {
		v, _ := sv.Value(name)
		return Lookup{Value: v, Layer: LayerRaw}
	}
	if cv, err := d.Calibrated(); err == nil && cv != nil && cv.Has(name) {
		return Lookup{Value: cv.Value(name), Layer: LayerCalibrated}
	}

	s := d.settings
	if v, ok := s.Parameter[name]; ok {
		return Lookup{Value: v, Layer: LayerParameter}
	}
	if fn, ok := s.Property[name]; ok {
		v, err := fn(d)
		return d.lookup(name, LayerProperty, v, err)
	}
	if c, ok := s.Count[name]; ok {
		return d.derived(name, LayerCount, func() (any, error) {
			a, err := d.array(c.Attr)
			if err != nil {
				return nil, err
			}
			gain := c.Gain
			if gain == 0 {
				gain = 1
			}
			return Sum(a, gain, c.Limits), nil
		})
	}
	if h, ok := s.Histogram[name]; ok {
		return d.derived(name, LayerHistogram, func() (any, error) {
			a, err := d.array(h.Attr)
			if err != nil {
				return nil, err
			}
			gain := h.Gain
			if gain == 0 {
				gain = 1
			}
			return HistogramCounts(a, gain, h.Edges), nil
		})
	}
	if r, ok := s.ROI[name]; ok {
		return d.derived(name, LayerROI, func() (any, error) {
			a, err := d.array(r.Attr)
			if err != nil {
				return nil, err
			}
			out, err := SliceROI(a, r.Sensor, r.Bounds)
			if err != nil {
				return nil, err
			}
			return out.Value(), nil
		})
	}
	if p, ok := s.Peak[name]; ok {
		return d.derived(name, LayerPeak, func() (any, error) {
			a, err := d.array(p.Attr)
			if err != nil {
				return nil, err
			}
			return FindPeak(a, p)
		})
	}
	if p, ok := s.Projection[name]; ok {
		return d.derived(name, LayerProjection, func() (any, error) {
			a, err := d.array(p.Attr)
			if err != nil {
				return nil, err
			}
			return Project(a, p.Axis, p.Method)
		})
	}

	if d.event != nil {
		if v, ok := d.event.EventAttr(name); ok {
			return Lookup{Value: v, Layer: LayerEvent}
		}
	}
	return Lookup{Err: fmt.Errorf("%s.%s: %w", d.alias, name, ErrUnknownAttribute)}
}

func (d *Detector) lookup(name string, layer Layer, v any, err error) Lookup {
	if err != nil {
		d.logger.Debug("derived attribute failed",
			slog.String("alias", d.alias),
			slog.String("attr", name),
			slog.String("layer", layer.String()),
			slog.String("error", err.Error()),
		)
		return Lookup{Layer: layer, Err: fmt.Errorf("%s.%s: %w", d.alias, name, err)}
	}
	return Lookup{Value: v, Layer: layer}
}

// derived computes a reduction once per event.
func (d *Detector) derived(name string, layer Layer, fn func() (any, error)) Lookup {
	v, err := d.cache.Memo(d.alias+"."+name, fn)
	return d.lookup(name, layer, v, err)
}

func (d *Detector) array(attr string) (Array, error) {
	v, err := d.Get(attr)
	if err != nil {
		return Array{}, err
	}
	return ToArray(v)
}

// Attrs returns every name the detector can resolve, sorted.
func (d *Detector) Attrs() []string {
	seen := make(map[string]bool)
	if sv, ok := d.Raw(); ok {
		for _, a := range sv.Attrs() {
			seen[a] = true
		}
	}
	if cv, err := d.Calibrated(); err == nil && cv != nil {
		for _, a := range cv.Fields() {
			seen[a] = true
		}
	}
	for _, a := range d.settings.Names() {
		seen[a] = true
	}
	if d.event != nil {
		for _, a := range EventAttrNames {
			seen[a] = true
		}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Attr resolves name with its unit and doc.
func (d *Detector) Attr(name string) (record.Attr, error) {
	l := d.Resolve(name)
	if l.Err != nil {
		return record.Attr{}, l.Err
	}
	out := record.Attr{Name: name, Value: l.Value}
	s := d.settings
	switch l.Layer {
	case LayerRaw:
		if sv, ok := d.Raw(); ok {
			if a, ok := sv.Attr(name); ok {
				out.Unit, out.Doc = a.Unit, a.Doc
			}
		}
	case LayerCalibrated:
		if cv, err := d.Calibrated(); err == nil {
			a := cv.Attr(name)
			out.Unit, out.Doc = a.Unit, a.Doc
		}
	case LayerCount:
		out.Unit, out.Doc = s.Count[name].Unit, s.Count[name].Doc
	case LayerHistogram:
		out.Unit, out.Doc = s.Histogram[name].Unit, s.Histogram[name].Doc
	case LayerROI:
		out.Unit, out.Doc = s.ROI[name].Unit, s.ROI[name].Doc
	case LayerPeak:
		out.Unit, out.Doc = s.Peak[name].Unit, s.Peak[name].Doc
	case LayerProjection:
		out.Unit, out.Doc = s.Projection[name].Unit, s.Projection[name].Doc
	}
	return out, nil
}

// Info renders the raw records of the current event followed by the
// user-defined attributes.
func (d *Detector) Info() []string {
	var rows []string
	if sv, ok := d.Raw(); ok {
		rows = append(rows, sv.Info()...)
	}
	for _, name := range d.settings.Names() {
		a, err := d.Attr(name)
		if err != nil {
			rows = append(rows, record.InfoRow(name, "-", "", err.Error()))
			continue
		}
		rows = append(rows, record.InfoRow(name, record.ReprValue(a.Value), a.Unit, a.Doc))
	}
	return rows
}

// String returns the alias and the current event time.
func (d *Detector) String() string {
	if ev := d.cache.Event(); ev != nil {
		return d.alias + " " + ev.Time().String()
	}
	return d.alias
}
