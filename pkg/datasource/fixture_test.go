package datasource

import (
	"github.com/randalmurphal/datasource/pkg/datasource/store"
	"github.com/randalmurphal/datasource/pkg/datasource/store/memstore"
)

const (
	procSrc  = "ProcInfo(0.0.0.0, pid=0)"
	evrSrc   = "DetInfo(NoDetector.0:Evr.0)"
	ipimbSrc = "DetInfo(XppSb3.0:Ipimb.0)"
	ebeamSrc = "BldInfo(EBeam)"
	extSrc   = "DetInfo(XppEnd.0:Opal1000.0)"
)

var testSpec = store.Spec{Instrument: "xpp", Experiment: "xpptut15", Run: 54}

func partitionRecord(sources ...string) *memstore.Record {
	recs := make([]*memstore.Record, len(sources))
	for i, src := range sources {
		recs[i] = memstore.NewRecord("Partition.Source").Set("src", src).Set("group", 0)
	}
	return memstore.NewRecord("Partition.ConfigV2").
		Set("bldMask", 0).
		Set("numSources", len(recs)).
		Set("sources", recs)
}

func aliasRecord(pairs ...string) *memstore.Record {
	var items []*memstore.Record
	for i := 0; i+1 < len(pairs); i += 2 {
		items = append(items, memstore.NewRecord("Alias.SrcAlias").
			Set("src", pairs[i]).
			Set("aliasName", pairs[i+1]))
	}
	return memstore.NewRecord("Alias.ConfigV1").
		Set("numSrcAlias", len(items)).
		Set("srcAlias", items)
}

func controlRecord(motor float64) *memstore.Record {
	control := memstore.NewRecord("ControlData.PVControl").
		Set("name", "xpp:motor").
		Set("index", 0).
		Set("value", motor)
	monitor := memstore.NewRecord("ControlData.PVMonitor").
		Set("name", "xpp:temp").
		Set("index", 0).
		Set("loValue", 1.0).
		Set("hiValue", 2.0)
	return memstore.NewRecord("ControlData.ConfigV3").
		Set("events", 3).
		Set("npvControls", 1).
		Set("pvControls", []*memstore.Record{control}).
		Set("npvMonitors", 1).
		Set("pvMonitors", []*memstore.Record{monitor})
}

// runConfig is a full configuration snapshot: ipimb aliased "foo", EBeam
// under its derived alias, and "ext" named only by the alias record.
func runConfig(motor float64) *memstore.Container {
	return memstore.NewContainer().
		Put(procSrc, partitionRecord(ipimbSrc, ebeamSrc, evrSrc)).
		Put(procSrc, aliasRecord(ipimbSrc, "foo", extSrc, "ext")).
		Put(procSrc, controlRecord(motor))
}

// noPartitionConfig lacks the Partition record.
func noPartitionConfig() *memstore.Container {
	return memstore.NewContainer().Put(procSrc, aliasRecord(ipimbSrc, "foo"))
}

type evt struct {
	codes  []int
	charge float64
	ipimb  bool
}

// defaultSteps is two steps of three events.
var defaultSteps = [][]evt{
	{{[]int{40}, 0.2, true}, {[]int{41}, 0.8, false}, {[]int{40, 162}, 0.9, true}},
	{{[]int{40}, 1.0, true}, {[]int{40, 162}, 0.1, false}, {[]int{41}, 0.7, true}},
}

func eventTime(n int) store.TimeTuple {
	return store.TimeTuple{Seconds: int64(1000 + n), Fiducial: int64(n)}
}

func makeEvent(n int, e evt) *memstore.Event {
	ev := memstore.NewEvent(eventTime(n))
	fifo := make([]*memstore.Record, len(e.codes))
	for i, c := range e.codes {
		fifo[i] = memstore.NewRecord("EvrData.FIFOEvent").
			Set("timestampHigh", n).
			Set("timestampLow", 0).
			Set("eventCode", c)
	}
	ev.Put(evrSrc, memstore.NewRecord("EvrData.DataV4").
		Set("numFifoEvents", len(fifo)).
		Set("fifoEvents", fifo))
	ev.Put(ebeamSrc, memstore.NewRecord("Bld.BldDataEBeamV7").Set("ebeamCharge", e.charge))
	if e.ipimb {
		ev.Put(ipimbSrc, memstore.NewRecord("Ipimb.DataV2").
			Set("triggerCounter", n).
			Set("channel0Volts", 0.25*float64(n+1)))
	}
	return ev
}

// runStore builds a recorded run with one configuration snapshot per step.
func runStore(steps [][]evt) *memstore.Store {
	st := memstore.New(runConfig(0)).SetRun(testSpec.Run)
	n := 0
	for s, events := range steps {
		evs := make([]*memstore.Event, len(events))
		for i, e := range events {
			evs[i] = makeEvent(n, e)
			n++
		}
		st.AddStep(runConfig(1.5*float64(s)), evs...)
	}
	return st
}

// liveStore serves the default events as one stream.
func liveStore() *memstore.Store {
	st := memstore.New(runConfig(0))
	n := 0
	for _, events := range defaultSteps {
		for _, e := range events {
			st.AddEvents(makeEvent(n, e))
			n++
		}
	}
	return st
}
