package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustArray(t *testing.T, v any) Array {
	t.Helper()
	a, err := ToArray(v)
	require.NoError(t, err)
	return a
}

func TestToArray(t *testing.T) {
	a := mustArray(t, 3)
	assert.Equal(t, 0, a.Dims())
	assert.Equal(t, 3.0, a.Value())

	a = mustArray(t, []any{[]int32{1, 2}, []int32{3, 4}})
	assert.Equal(t, []int{2, 2}, a.Shape)
	assert.Equal(t, []float64{1, 2, 3, 4}, a.Data)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, a.Value())

	a = mustArray(t, [][][]float64{{{1}, {2}}, {{3}, {4}}})
	assert.Equal(t, []int{2, 2, 1}, a.Shape)
	assert.Equal(t, [][][]float64{{{1}, {2}}, {{3}, {4}}}, a.Value())

	_, err := ToArray([][]float64{{1, 2}, {3}})
	assert.ErrorIs(t, err, ErrShape)

	_, err = ToArray("text")
	assert.Error(t, err)
}

func TestSliceROI(t *testing.T) {
	t.Run("1-D", func(t *testing.T) {
		out, err := SliceROI(mustArray(t, []float64{0, 1, 2, 3, 4}), nil, [][2]int{{1, 3}})
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2}, out.Value())
	})

	t.Run("2-D clamps", func(t *testing.T) {
		img := mustArray(t, [][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})
		out, err := SliceROI(img, nil, [][2]int{{1, 10}, {-1, 2}})
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{4, 5}, {7, 8}}, out.Value())
	})

	t.Run("3-D needs sensor", func(t *testing.T) {
		stack := mustArray(t, [][][]float64{{{1, 2}}, {{3, 4}}})
		_, err := SliceROI(stack, nil, [][2]int{{0, 1}, {0, 1}})
		assert.ErrorIs(t, err, ErrShape)

		sensor := 1
		out, err := SliceROI(stack, &sensor, [][2]int{{0, 1}, {1, 2}})
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{4}}, out.Value())

		sensor = 5
		_, err = SliceROI(stack, &sensor, [][2]int{{0, 1}, {0, 1}})
		assert.Error(t, err)
	})

	t.Run("missing bounds", func(t *testing.T) {
		_, err := SliceROI(mustArray(t, [][]float64{{1}}), nil, [][2]int{{0, 1}})
		assert.ErrorIs(t, err, ErrShape)
	})
}

func TestSum(t *testing.T) {
	a := mustArray(t, []float64{1, 2, 3, 4})
	assert.Equal(t, 20.0, Sum(a, 2, nil))
	assert.Equal(t, 5.0, Sum(a, 1, &[2]float64{2, 4}))
}

func TestHistogramCounts(t *testing.T) {
	a := mustArray(t, []float64{-1, 0, 0.5, 1, 1.5, 2, 3})
	assert.Equal(t, []int64{2, 3}, HistogramCounts(a, 1, []float64{0, 1, 2}))
	assert.Equal(t, []int64{1, 2}, HistogramCounts(a, 2, []float64{0, 1, 2}))
	assert.Nil(t, HistogramCounts(a, 1, []float64{0}))
}

func TestFindPeak(t *testing.T) {
	wf := mustArray(t, []float64{1, 2, 9, 3, 1})
	axis := []float64{10, 20, 30, 40, 50}

	tests := []struct {
		name string
		peak Peak
		want any
	}{
		{"max", Peak{Method: PeakMax}, 9.0},
		{"default method", Peak{}, 9.0},
		{"index", Peak{Method: PeakIndex}, 2},
		{"below threshold", Peak{Method: PeakIndex, Threshold: 10}, 0},
		{"baseline and scale", Peak{Method: PeakMax, Baseline: 1, Scale: 2}, 16.0},
		{"roi offset", Peak{Method: PeakIndex, ROI: &[2]int{3, 5}}, 3},
		{"pos", Peak{Method: PeakPos, XAxis: axis}, 30.0},
		{"time", Peak{Method: PeakTime, XAxis: axis, ROI: &[2]int{3, 5}}, 40.0},
		{"waveform", Peak{Method: PeakWaveform, Baseline: 1}, []float64{0, 1, 8, 2, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindPeak(wf, tt.peak)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("channel", func(t *testing.T) {
		ch := 1
		got, err := FindPeak(mustArray(t, [][]float64{{5, 0}, {0, 5}}), Peak{Channel: &ch, Method: PeakIndex})
		require.NoError(t, err)
		assert.Equal(t, 1, got)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := FindPeak(wf, Peak{Method: "median"})
		assert.Error(t, err)
		_, err = FindPeak(wf, Peak{Method: PeakPos, XAxis: []float64{1}})
		assert.Error(t, err)
		_, err = FindPeak(mustArray(t, [][]float64{{1}}), Peak{})
		assert.ErrorIs(t, err, ErrShape)
	})
}

func TestProject(t *testing.T) {
	img := mustArray(t, [][]float64{{1, 2}, {3, 4}, {5, 6}})

	x, err := Project(img, "x", ProjectSum)
	require.NoError(t, err)
	assert.Equal(t, []float64{9, 12}, x)

	y, err := Project(img, "y", ProjectMean)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 3.5, 5.5}, y)

	_, err = Project(img, "z", ProjectSum)
	assert.Error(t, err)
	_, err = Project(img, "x", "median")
	assert.Error(t, err)
	_, err = Project(mustArray(t, []float64{1}), "x", ProjectSum)
	assert.ErrorIs(t, err, ErrShape)
}
