package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_MergeAndNames(t *testing.T) {
	a := NewSettings()
	a.Parameter["gain"] = 1.0
	a.Count["sum"] = Count{Attr: "image", Gain: 1}

	b := NewSettings()
	b.Parameter["gain"] = 2.0
	b.ROI["roi"] = ROI{Attr: "image", Bounds: [][2]int{{0, 4}}}
	b.Property["p"] = func(*Detector) (any, error) { return 1, nil }

	a.Merge(b)
	a.Merge(nil)
	assert.Equal(t, 2.0, a.Parameter["gain"])
	assert.Equal(t, []string{"gain", "p", "roi", "sum"}, a.Names())
	assert.False(t, a.Empty())
	assert.True(t, NewSettings().Empty())
}

func TestSettings_Clone(t *testing.T) {
	a := NewSettings()
	a.Parameter["gain"] = 1.0

	b := a.Clone()
	b.Parameter["gain"] = 3.0
	b.Parameter["extra"] = true

	assert.Equal(t, 1.0, a.Parameter["gain"])
	assert.NotContains(t, a.Parameter, "extra")
}

func TestSettings_EncodeDropsProperties(t *testing.T) {
	ch := 2
	s := NewSettings()
	s.Parameter["label"] = "upstream"
	s.Property["p"] = func(*Detector) (any, error) { return nil, nil }
	s.Count["sum"] = Count{Attr: "image", Gain: 0.5, Limits: &[2]float64{0, 100}, Unit: "ADU"}
	s.Histogram["hist"] = Histogram{Attr: "image", Gain: 1, Edges: []float64{0, 1, 2}}
	s.Peak["peak"] = Peak{Attr: "wf", Channel: &ch, Method: PeakTime, XAxis: []float64{0, 1}}
	s.Projection["proj"] = Projection{Attr: "image", Axis: "y", Method: ProjectMean}

	data, err := s.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ichannel":2`)
	assert.Contains(t, string(data), `"bins":[0,1,2]`)
	assert.NotContains(t, string(data), `"p"`)

	back, err := DecodeSettings(data)
	require.NoError(t, err)
	assert.Empty(t, back.Property)
	assert.NotNil(t, back.ROI)
	assert.Equal(t, "upstream", back.Parameter["label"])
	assert.Equal(t, s.Count, back.Count)
	assert.Equal(t, s.Histogram, back.Histogram)
	assert.Equal(t, s.Peak, back.Peak)
	assert.Equal(t, s.Projection, back.Projection)
}

func TestDecodeSettings_Invalid(t *testing.T) {
	_, err := DecodeSettings([]byte("{"))
	assert.Error(t, err)
}
