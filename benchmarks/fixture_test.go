package benchmarks

import (
	"fmt"

	"github.com/randalmurphal/datasource/pkg/datasource/store"
	"github.com/randalmurphal/datasource/pkg/datasource/store/memstore"
)

const procSrc = "ProcInfo(0.0.0.0, pid=1)"

func sourceName(i int) string {
	return fmt.Sprintf("DetInfo(XppEndstation.0:Ipimb.%d)", i)
}

// buildConfig returns a configuration snapshot with n partition sources,
// every other one aliased.
func buildConfig(n int) *memstore.Container {
	sources := make([]*memstore.Record, n)
	var aliases []*memstore.Record
	for i := range n {
		sources[i] = memstore.NewRecord("Partition.Source").Set("src", sourceName(i)).Set("group", i%3)
		if i%2 == 0 {
			aliases = append(aliases, memstore.NewRecord("Alias.SrcAlias").
				Set("src", sourceName(i)).
				Set("aliasName", fmt.Sprintf("ipm%d", i)))
		}
	}
	return memstore.NewContainer().
		Put(procSrc, memstore.NewRecord("Partition.ConfigV2").
			Set("bldMask", 0).
			Set("numSources", n).
			Set("sources", sources)).
		Put(procSrc, memstore.NewRecord("Alias.ConfigV1").
			Set("numSrcAlias", len(aliases)).
			Set("srcAlias", aliases))
}

// buildStore returns a run of steps*perStep events, each carrying one
// camera frame of size x size.
func buildStore(steps, perStep, size int) *memstore.Store {
	st := memstore.New(buildConfig(4)).SetRun(1)
	n := 0
	for range steps {
		events := make([]*memstore.Event, perStep)
		for i := range events {
			image := make([][]float64, size)
			for y := range image {
				image[y] = make([]float64, size)
				for x := range image[y] {
					image[y][x] = float64((x + y + n) % 17)
				}
			}
			ev := memstore.NewEvent(store.TimeTuple{Seconds: int64(n), Fiducial: int64(n)})
			ev.Put(sourceName(0), memstore.NewRecord("Camera.FrameV1").Set("image", image))
			events[i] = ev
			n++
		}
		st.AddStep(nil, events...)
	}
	return st
}
