package detector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/datasource/pkg/datasource/cursor"
	"github.com/randalmurphal/datasource/pkg/datasource/schema"
	"github.com/randalmurphal/datasource/pkg/datasource/store"
	"github.com/randalmurphal/datasource/pkg/datasource/store/memstore"
)

const camSrc = "DetInfo(XppGon.0:Opal1000.0)"

type eventAttrs map[string]any

func (e eventAttrs) EventAttr(name string) (any, bool) {
	v, ok := e[name]
	return v, ok
}

// cameraStore holds two events with a camera frame and a third without.
func cameraStore() *memstore.Store {
	st := memstore.New(nil)
	frames := [][][]float64{
		{{1, 2, 3}, {4, 5, 6}},
		{{0, 0, 1}, {0, 0, 1}},
	}
	var events []*memstore.Event
	for i, frame := range frames {
		ev := memstore.NewEvent(store.TimeTuple{Seconds: 100, Nanoseconds: int64(i)})
		ev.Put(camSrc, memstore.NewRecord("Camera.FrameV1").
			Set("image", frame).
			Set("waveform", [][]float64{{0, 1, 5, 1}, {0, 2, 1, 0}}))
		events = append(events, ev)
	}
	events = append(events, memstore.NewEvent(store.TimeTuple{Seconds: 100, Nanoseconds: 2}))
	st.AddEvents(events...)
	st.SetCalibrated(camSrc, func(store.Event) (*memstore.Record, error) {
		return memstore.NewRecord("Camera.CalibV1").
			Set("calib", [][]float64{{10, 20}, {30, 40}}), nil
	})
	return st
}

func openCursor(t *testing.T, st *memstore.Store) *cursor.Indexed {
	t.Helper()
	runs, err := st.Runs(context.Background())
	require.NoError(t, err)
	return cursor.NewIndexed(runs,
		cursor.WithTable(schema.NewTable()),
		cursor.WithCalibrator(st),
	)
}

func cameraSettings() *Settings {
	s := NewSettings()
	s.Parameter["image"] = "shadowed"
	s.Parameter["threshold"] = 2.5
	s.Count["image_count"] = Count{Attr: "image", Gain: 2, Unit: "ADU", Doc: "Total signal"}
	s.Histogram["image_hist"] = Histogram{Attr: "image", Gain: 1, Edges: []float64{0, 3, 6}}
	s.ROI["roi"] = ROI{Attr: "image", Bounds: [][2]int{{0, 1}, {1, 3}}}
	ch := 0
	s.Peak["waveform_peak"] = Peak{Attr: "waveform", Channel: &ch, Method: PeakIndex}
	s.Projection["image_x"] = Projection{Attr: "image", Axis: "x", Method: ProjectSum}
	s.Projection["image_y"] = Projection{Attr: "image", Axis: "y", Method: ProjectMean}
	s.Property["doubled"] = func(d *Detector) (any, error) {
		v, err := d.Get("threshold")
		if err != nil {
			return nil, err
		}
		return v.(float64) * 2, nil
	}
	return s
}

func TestDetector_LookupOrder(t *testing.T) {
	st := cameraStore()
	c := openCursor(t, st)
	_, err := c.Next(context.Background())
	require.NoError(t, err)

	d := New("cam", camSrc, c.Cache(), cameraSettings(),
		WithEventAttrs(eventAttrs{"EventId": "100.000000000/0"}))

	tests := []struct {
		name  string
		layer Layer
		want  any
	}{
		{"image", LayerRaw, [][]float64{{1, 2, 3}, {4, 5, 6}}},
		{"calib", LayerCalibrated, [][]float64{{10, 20}, {30, 40}}},
		{"threshold", LayerParameter, 2.5},
		{"doubled", LayerProperty, 5.0},
		{"image_count", LayerCount, 42.0},
		{"image_hist", LayerHistogram, []int64{2, 4}},
		{"roi", LayerROI, [][]float64{{2, 3}}},
		{"waveform_peak", LayerPeak, 2},
		{"image_x", LayerProjection, []float64{5, 7, 9}},
		{"image_y", LayerProjection, []float64{2, 5}},
		{"EventId", LayerEvent, "100.000000000/0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := d.Resolve(tt.name)
			require.NoError(t, l.Err)
			assert.Equal(t, tt.layer, l.Layer)
			assert.Equal(t, tt.want, l.Value)
		})
	}

	_, err = d.Get("nothing")
	assert.ErrorIs(t, err, ErrUnknownAttribute)
}

func TestDetector_FollowsCursor(t *testing.T) {
	st := cameraStore()
	c := openCursor(t, st)
	ctx := context.Background()
	d := New("cam", camSrc, c.Cache(), cameraSettings())

	_, err := c.Next(ctx)
	require.NoError(t, err)
	v, err := d.Get("image_count")
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)

	_, err = c.Next(ctx)
	require.NoError(t, err)
	v, err = d.Get("image_count")
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)
	assert.True(t, d.Present())

	_, err = c.Next(ctx)
	require.NoError(t, err)
	assert.False(t, d.Present())
	_, ok := d.Raw()
	assert.False(t, ok)

	_, err = d.Get("waveform_peak")
	assert.ErrorIs(t, err, ErrUnknownAttribute)
	// The parameter shadowed by the raw field shows through once it is gone.
	v, err = d.Get("image")
	require.NoError(t, err)
	assert.Equal(t, "shadowed", v)
}

func TestDetector_Cycle(t *testing.T) {
	st := cameraStore()
	c := openCursor(t, st)
	_, err := c.Next(context.Background())
	require.NoError(t, err)

	s := NewSettings()
	s.Property["loop"] = func(d *Detector) (any, error) { return d.Get("loop") }
	d := New("cam", camSrc, c.Cache(), s)

	_, err = d.Get("loop")
	assert.ErrorIs(t, err, ErrCycle)
}

func TestDetector_PropertyError(t *testing.T) {
	st := cameraStore()
	c := openCursor(t, st)
	_, err := c.Next(context.Background())
	require.NoError(t, err)

	boom := errors.New("boom")
	s := NewSettings()
	s.Property["bad"] = func(*Detector) (any, error) { return nil, boom }
	d := New("cam", camSrc, c.Cache(), s)

	l := d.Resolve("bad")
	assert.ErrorIs(t, l.Err, boom)
	assert.Equal(t, LayerProperty, l.Layer)
	_, ok := d.Value("bad")
	assert.False(t, ok)
}

func TestDetector_Attrs(t *testing.T) {
	st := cameraStore()
	c := openCursor(t, st)
	_, err := c.Next(context.Background())
	require.NoError(t, err)

	d := New("cam", camSrc, c.Cache(), cameraSettings(), WithEventAttrs(eventAttrs{}))
	attrs := d.Attrs()
	for _, want := range []string{"image", "waveform", "calib", "threshold", "roi", "image_x", "EventId", "timestamp"} {
		assert.Contains(t, attrs, want)
	}
	assert.IsIncreasing(t, attrs)

	a, err := d.Attr("image_count")
	require.NoError(t, err)
	assert.Equal(t, "ADU", a.Unit)
	assert.Equal(t, "Total signal", a.Doc)
}

func TestDetector_Info(t *testing.T) {
	st := cameraStore()
	c := openCursor(t, st)
	_, err := c.Next(context.Background())
	require.NoError(t, err)

	s := NewSettings()
	s.Count["image_count"] = Count{Attr: "image", Gain: 1, Unit: "ADU"}
	s.Count["broken"] = Count{Attr: "missing", Gain: 1}
	d := New("cam", camSrc, c.Cache(), s)

	info := strings.Join(d.Info(), "\n")
	assert.Contains(t, info, "image_count")
	assert.Contains(t, info, "21")
	assert.Contains(t, info, "broken")
	assert.Contains(t, info, ErrUnknownAttribute.Error())
}

func TestDetector_MemoizedPerEvent(t *testing.T) {
	st := cameraStore()
	c := openCursor(t, st)
	ctx := context.Background()
	_, err := c.Next(ctx)
	require.NoError(t, err)

	calls := 0
	s := NewSettings()
	s.Property["frame"] = func(d *Detector) (any, error) {
		calls++
		return d.Get("image")
	}
	s.Count["frame_count"] = Count{Attr: "frame", Gain: 1}
	d := New("cam", camSrc, c.Cache(), s)

	for range 3 {
		v, err := d.Get("frame_count")
		require.NoError(t, err)
		assert.Equal(t, 21.0, v)
	}
	assert.Equal(t, 1, calls)

	_, err = c.Next(ctx)
	require.NoError(t, err)
	_, err = d.Get("frame_count")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDetector_String(t *testing.T) {
	st := cameraStore()
	c := openCursor(t, st)
	d := New("cam", camSrc, c.Cache(), nil)
	assert.Equal(t, "cam", d.String())

	_, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("cam %s", store.TimeTuple{Seconds: 100}), d.String())
}

func TestLayer_String(t *testing.T) {
	assert.Equal(t, "roi", LayerROI.String())
	assert.Equal(t, "Layer(99)", Layer(99).String())
}
