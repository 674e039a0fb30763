package detector

import (
	"errors"
	"fmt"
	"math"

	"github.com/randalmurphal/datasource/pkg/datasource/record"
)

// ErrShape reports an array with the wrong number of dimensions for an
// operation, or a ragged array.
var ErrShape = errors.New("array shape mismatch")

// Array is a dense row-major float array.
type Array struct {
	Shape []int
	Data  []float64
}

// Dims returns the number of dimensions.
func (a Array) Dims() int { return len(a.Shape) }

// ToArray converts a scalar or a nested numeric list to an Array.
func ToArray(v any) (Array, error) {
	if f, ok := record.AsFloat(v); ok {
		return Array{Data: []float64{f}}, nil
	}
	items, ok := record.AsList(v)
	if !ok {
		return Array{}, fmt.Errorf("%T is not numeric", v)
	}
	if len(items) == 0 {
		return Array{Shape: []int{0}}, nil
	}

	var out Array
	for i, item := range items {
		sub, err := ToArray(item)
		if err != nil {
			return Array{}, err
		}
		if i == 0 {
			out.Shape = append([]int{len(items)}, sub.Shape...)
		} else if !sameShape(out.Shape[1:], sub.Shape) {
			return Array{}, fmt.Errorf("%w: ragged at element %d", ErrShape, i)
		}
		out.Data = append(out.Data, sub.Data...)
	}
	return out, nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Value converts the array back to a float64, []float64, [][]float64 or
// [][][]float64. Higher dimensions nest as []any.
func (a Array) Value() any {
	switch a.Dims() {
	case 0:
		if len(a.Data) == 0 {
			return 0.0
		}
		return a.Data[0]
	case 1:
		return append([]float64(nil), a.Data...)
	case 2:
		rows := make([][]float64, a.Shape[0])
		for i := range rows {
			rows[i] = a.sub(i).Value().([]float64)
		}
		return rows
	case 3:
		planes := make([][][]float64, a.Shape[0])
		for i := range planes {
			planes[i] = a.sub(i).Value().([][]float64)
		}
		return planes
	default:
		out := make([]any, a.Shape[0])
		for i := range out {
			out[i] = a.sub(i).Value()
		}
		return out
	}
}

// sub returns the i-th slice along the first dimension.
func (a Array) sub(i int) Array {
	size := 1
	for _, d := range a.Shape[1:] {
		size *= d
	}
	return Array{
		Shape: append([]int(nil), a.Shape[1:]...),
		Data:  a.Data[i*size : (i+1)*size],
	}
}

// clampRange limits [start, end) to [0, n).
func clampRange(b [2]int, n int) (int, int) {
	start, end := max(b[0], 0), min(b[1], n)
	if end < start {
		end = start
	}
	return start, end
}

// SliceROI cuts a region of interest. A 1-D array takes one bound pair; a
// 2-D array takes [y, x]. A 3-D array needs a sensor index selecting a 2-D
// plane first.
func SliceROI(a Array, sensor *int, bounds [][2]int) (Array, error) {
	if a.Dims() == 3 {
		if sensor == nil {
			return Array{}, fmt.Errorf("%w: 3-D roi needs a sensor", ErrShape)
		}
		if *sensor < 0 || *sensor >= a.Shape[0] {
			return Array{}, fmt.Errorf("sensor %d out of range [0,%d)", *sensor, a.Shape[0])
		}
		a = a.sub(*sensor)
	}

	switch a.Dims() {
	case 1:
		if len(bounds) < 1 {
			return Array{}, fmt.Errorf("%w: 1-D roi needs one bound", ErrShape)
		}
		start, end := clampRange(bounds[0], a.Shape[0])
		return Array{Shape: []int{end - start}, Data: append([]float64(nil), a.Data[start:end]...)}, nil
	case 2:
		if len(bounds) < 2 {
			return Array{}, fmt.Errorf("%w: 2-D roi needs two bounds", ErrShape)
		}
		y0, y1 := clampRange(bounds[0], a.Shape[0])
		x0, x1 := clampRange(bounds[1], a.Shape[1])
		out := Array{Shape: []int{y1 - y0, x1 - x0}}
		for y := y0; y < y1; y++ {
			row := a.Data[y*a.Shape[1] : (y+1)*a.Shape[1]]
			out.Data = append(out.Data, row[x0:x1]...)
		}
		return out, nil
	default:
		return Array{}, fmt.Errorf("%w: roi of %d-D array", ErrShape, a.Dims())
	}
}

// Sum adds every element, restricted to [low, high) when limits are set,
// and multiplies by gain.
func Sum(a Array, gain float64, limits *[2]float64) float64 {
	var total float64
	for _, v := range a.Data {
		if limits != nil && (v < limits[0] || v >= limits[1]) {
			continue
		}
		total += v
	}
	return total * gain
}

// HistogramCounts counts a×gain into the bins delimited by edges. Bins are
// half-open except the last, which includes its right edge.
func HistogramCounts(a Array, gain float64, edges []float64) []int64 {
	if len(edges) < 2 {
		return nil
	}
	counts := make([]int64, len(edges)-1)
	last := edges[len(edges)-1]
	for _, v := range a.Data {
		v *= gain
		if v < edges[0] || v > last {
			continue
		}
		if v == last {
			counts[len(counts)-1]++
			continue
		}
		// Linear search; edge lists are short.
		for i := 0; i < len(counts); i++ {
			if v >= edges[i] && v < edges[i+1] {
				counts[i]++
				break
			}
		}
	}
	return counts
}

// FindPeak evaluates a peak definition on a waveform. The channel row is
// selected, the baseline subtracted and the scale applied before the
// method runs. An index is only reported when the maximum exceeds the
// threshold; otherwise it is 0.
func FindPeak(a Array, p Peak) (any, error) {
	if p.Channel != nil {
		if a.Dims() != 2 {
			return nil, fmt.Errorf("%w: channel of %d-D array", ErrShape, a.Dims())
		}
		if *p.Channel < 0 || *p.Channel >= a.Shape[0] {
			return nil, fmt.Errorf("channel %d out of range [0,%d)", *p.Channel, a.Shape[0])
		}
		a = a.sub(*p.Channel)
	}
	if a.Dims() != 1 {
		return nil, fmt.Errorf("%w: peak of %d-D array", ErrShape, a.Dims())
	}

	wf := make([]float64, len(a.Data))
	for i, v := range a.Data {
		v -= p.Baseline
		if p.Scale != 0 {
			v *= p.Scale
		}
		wf[i] = v
	}
	if p.Method == PeakWaveform {
		return wf, nil
	}

	offset := 0
	if p.ROI != nil {
		start, end := clampRange(*p.ROI, len(wf))
		wf = wf[start:end]
		offset = start
	}
	if len(wf) == 0 {
		return nil, fmt.Errorf("%w: empty waveform", ErrShape)
	}

	maxVal, maxIdx := math.Inf(-1), 0
	for i, v := range wf {
		if v > maxVal {
			maxVal, maxIdx = v, i
		}
	}

	switch p.Method {
	case PeakMax, "":
		return maxVal, nil
	}

	idx := 0
	if maxVal > p.Threshold {
		idx = maxIdx + offset
	}
	switch p.Method {
	case PeakIndex:
		return idx, nil
	case PeakPos, PeakTime:
		if idx >= len(p.XAxis) {
			return nil, fmt.Errorf("peak index %d outside x axis of %d", idx, len(p.XAxis))
		}
		return p.XAxis[idx], nil
	default:
		return nil, fmt.Errorf("unknown peak method %q", p.Method)
	}
}

// Project reduces a 2-D array. Axis "x" reduces over rows, giving one value
// per column; axis "y" reduces over columns, giving one value per row.
func Project(a Array, axis, method string) ([]float64, error) {
	if a.Dims() != 2 {
		return nil, fmt.Errorf("%w: projection of %d-D array", ErrShape, a.Dims())
	}
	rows, cols := a.Shape[0], a.Shape[1]

	var out []float64
	var n float64
	switch axis {
	case "x", "":
		out = make([]float64, cols)
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				out[x] += a.Data[y*cols+x]
			}
		}
		n = float64(rows)
	case "y":
		out = make([]float64, rows)
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				out[y] += a.Data[y*cols+x]
			}
		}
		n = float64(cols)
	default:
		return nil, fmt.Errorf("unknown projection axis %q", axis)
	}

	switch method {
	case ProjectSum, "":
	case ProjectMean:
		if n > 0 {
			for i := range out {
				out[i] /= n
			}
		}
	default:
		return nil, fmt.Errorf("unknown projection method %q", method)
	}
	return out, nil
}
