package record

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/datasource/pkg/datasource/store"
	"github.com/randalmurphal/datasource/pkg/datasource/store/memstore"
)

func eventCode(code int, readout bool, group int, pulse *memstore.Record) store.Record {
	return memstore.NewRecord("Test.EventCode").
		Set("code", code).
		Set("isReadout", readout).
		Set("readoutGroup", group).
		Set("desc", fmt.Sprintf("code %d", code)).
		Set("delays", []float64{float64(code), float64(code) / 2}).
		Set("pulse", pulse)
}

func pulse(width, delay float64) *memstore.Record {
	return memstore.NewRecord("Test.Pulse").
		Set("width", width).
		Set("delay", delay).
		Set("polarity", memstore.Enum{Label: "Pos"})
}

func TestListView_LengthMatchesSequence(t *testing.T) {
	for n := 1; n <= 6; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			recs := make([]store.Record, n)
			for i := range recs {
				recs[i] = eventCode(40+i, i%2 == 0, i, pulse(float64(i), 0))
			}
			l := NewListView(recs, nil)
			require.Equal(t, n, l.Len())

			for name, col := range l.Flatten() {
				items, ok := AsList(col)
				require.True(t, ok, "%s is %T", name, col)
				assert.Len(t, items, n, name)
			}
		})
	}
}

func TestListView_Vectorize(t *testing.T) {
	recs := []store.Record{
		eventCode(40, true, 1, pulse(10, 1)),
		eventCode(41, false, 0, pulse(20, 2)),
		eventCode(162, true, 2, pulse(30, 3)),
	}
	l := NewListView(recs, nil)

	assert.Equal(t, store.TypeID{Module: "Test", Name: "EventCode"}, l.Type())
	assert.Equal(t, []int64{40, 41, 162}, l.Value("code"))
	assert.Equal(t, []bool{true, false, true}, l.Value("isReadout"))
	assert.Equal(t, []string{"code 40", "code 41", "code 162"}, l.Value("desc"))
	assert.Equal(t, [][]float64{{40, 20}, {41, 20.5}, {162, 81}}, l.Value("delays"))

	child, ok := l.Value("pulse").(*ListView)
	require.True(t, ok)
	assert.Equal(t, []float64{10, 20, 30}, child.Value("width"))
	assert.Equal(t, []string{"Pos", "Pos", "Pos"}, child.Value("polarity"))

	assert.Equal(t, []float64{1, 2, 3}, l.Value("pulse_delay"), "flattened names resolve")
	assert.Nil(t, l.Value("nope"))
}

func TestListView_NestedFlattenEqualsPerElement(t *testing.T) {
	recs := []store.Record{
		eventCode(40, true, 1, pulse(10, 1)),
		eventCode(41, false, 0, pulse(20, 2)),
	}
	l := NewListView(recs, nil)
	flat := l.Flatten()

	for _, field := range []string{"width", "delay"} {
		var perElement []any
		for i := range recs {
			elem := NewView(recs[i], nil)
			perElement = append(perElement, elem.Value("pulse").(*View).Value(field))
		}
		assert.Equal(t, vectorize(perElement), flat["pulse_"+field], field)
	}

	assert.Equal(t, []string{
		"code", "delays", "desc", "isReadout",
		"pulse_delay", "pulse_polarity", "pulse_width",
		"readoutGroup",
	}, l.Names())
}

func TestListView_MixedColumnStaysGeneric(t *testing.T) {
	recs := []store.Record{
		memstore.NewRecord("Test.Mixed").Set("v", 1),
		memstore.NewRecord("Test.Mixed").Set("v", "two"),
	}
	l := NewListView(recs, nil)
	assert.Equal(t, []any{1, "two"}, l.Value("v"))

	mixedNumbers := NewListView([]store.Record{
		memstore.NewRecord("Test.Mixed").Set("v", 1),
		memstore.NewRecord("Test.Mixed").Set("v", 2.5),
	}, nil)
	assert.Equal(t, []float64{1, 2.5}, mixedNumbers.Value("v"))
}

func TestListView_WideUnsignedColumn(t *testing.T) {
	small := NewListView([]store.Record{
		memstore.NewRecord("Test.Counter").Set("v", uint64(7)),
		memstore.NewRecord("Test.Counter").Set("v", uint32(9)),
	}, nil)
	assert.Equal(t, []int64{7, 9}, small.Value("v"))

	wide := NewListView([]store.Record{
		memstore.NewRecord("Test.Counter").Set("v", uint64(1)),
		memstore.NewRecord("Test.Counter").Set("v", uint64(math.MaxUint64)),
	}, nil)
	col, ok := wide.Value("v").([]float64)
	require.True(t, ok, "got %T", wide.Value("v"))
	assert.Equal(t, 1.0, col[0])
	assert.Equal(t, float64(math.MaxUint64), col[1])
	assert.Positive(t, col[1])
}

func TestAsInt64(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int64
		ok   bool
	}{
		{"int", 5, 5, true},
		{"negative int8", int8(-3), -3, true},
		{"uint16", uint16(65535), 65535, true},
		{"max fitting uint64", uint64(math.MaxInt64), math.MaxInt64, true},
		{"overflowing uint64", uint64(math.MaxInt64) + 1, 0, false},
		{"float", 1.5, 0, false},
		{"string", "7", 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AsInt64(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListView_Info(t *testing.T) {
	recs := []store.Record{
		eventCode(40, true, 1, pulse(10, 1)),
		eventCode(41, true, 1, pulse(20, 2)),
	}
	rows := NewListView(recs, nil).Info("codes")
	require.Len(t, rows, 8)
	assert.Equal(t, InfoRow("codes_code", "[40 41]", "", ""), rows[0])
	assert.Equal(t, InfoRow("codes_pulse_delay", "[1 2]", "", ""), rows[4])
}

func TestListView_Empty(t *testing.T) {
	l := NewListView(nil, nil)
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Fields())
	assert.Empty(t, l.Flatten())
}
