package configdata

import (
	"github.com/randalmurphal/datasource/pkg/datasource/store/memstore"
)

const (
	procSrc  = "ProcInfo(0.0.0.0, pid=0)"
	evrSrc   = "DetInfo(NoDetector.0:Evr.0)"
	ipimbSrc = "DetInfo(XppSb3.0:Ipimb.0)"
	feeSrc   = "BldInfo(FEE-SPEC0)"
	cspadSrc = "DetInfo(XppGon.0:Cspad.0)"
)

// member is one partition source. A nil group leaves the accessor out.
type member struct {
	src   string
	group *int
}

func grp(g int) *int { return &g }

func partitionRecord(members ...member) *memstore.Record {
	sources := make([]*memstore.Record, len(members))
	for i, m := range members {
		rec := memstore.NewRecord("Partition.Source").Set("src", m.src)
		if m.group != nil {
			rec.Set("group", *m.group)
		}
		sources[i] = rec
	}
	return memstore.NewRecord("Partition.ConfigV2").
		Set("bldMask", 0x30).
		Set("numSources", len(sources)).
		Set("sources", sources).
		Set("ipAddr", 0x0a000001)
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

type code struct {
	code    int
	readout bool
	group   int
}

func evrConfig(codes []code, pulses []*memstore.Record, outputs []*memstore.Record) *memstore.Record {
	ecs := make([]*memstore.Record, len(codes))
	for i, c := range codes {
		ecs[i] = memstore.NewRecord("EvrData.EventCodeV6").
			Set("code", c.code).
			Set("isReadout", c.readout).
			Set("readoutGroup", c.group).
			Set("desc", "")
	}
	return memstore.NewRecord("EvrData.ConfigV7").
		Set("neventcodes", len(ecs)).
		Set("eventcodes", ecs).
		Set("npulses", len(pulses)).
		Set("pulses", pulses).
		Set("noutputs", len(outputs)).
		Set("output_maps", outputs)
}

func pulseRecord(id, polarity, prescale, delay, width int) *memstore.Record {
	return memstore.NewRecord("EvrData.PulseConfigV3").
		Set("pulseId", id).
		Set("polarity", polarity).
		Set("prescale", prescale).
		Set("delay", delay).
		Set("width", width)
}

func outputMap(source string, sourceID, module, conn int) *memstore.Record {
	return memstore.NewRecord("EvrData.OutputMapV2").
		Set("source", memstore.Enum{Label: source}).
		Set("source_id", sourceID).
		Set("conn", memstore.Enum{Label: "FrontPanel"}).
		Set("conn_id", conn).
		Set("module", module).
		Set("value", 0)
}

func ioConfig(channels ...*memstore.Record) *memstore.Record {
	return memstore.NewRecord("EvrData.IOConfigV2").
		Set("nchannels", len(channels)).
		Set("channels", channels)
}

func ioChannel(output *memstore.Record, infos ...string) *memstore.Record {
	return memstore.NewRecord("EvrData.IOChannelV2").
		Set("output", output).
		Set("name", "ch").
		Set("ninfo", len(infos)).
		Set("infos", infos)
}

// xppConfig is a complete snapshot: a partition of four sources, one
// alias, trigger timing wired to the FEE spectrometer and control data.
func xppConfig() *memstore.Container {
	return memstore.NewContainer().
		Put(procSrc, partitionRecord(
			member{ipimbSrc, grp(0)},
			member{feeSrc, grp(1)},
			member{cspadSrc, nil},
			member{evrSrc, grp(0)},
		)).
		Put(procSrc, aliasRecord(ipimbSrc, "foo")).
		Put(evrSrc, evrConfig(
			[]code{{40, true, 1}, {162, false, 0}, {41, true, 1}},
			[]*memstore.Record{pulseRecord(0, 1, 1, 1190, 119)},
			[]*memstore.Record{outputMap("Pulse", 0, 0, 3), outputMap("Constant_Lo", 0, 0, 4)},
		)).
		Put(evrSrc, ioConfig(
			ioChannel(outputMap("Pulse", 0, 0, 3), feeSrc, "DetInfo(Unknown.0:Opal1000.0)"),
		)).
		Put(ipimbSrc, memstore.NewRecord("Ipimb.ConfigV2").Set("triggerCounter", 0).Set("trigDelay", 100)).
		Put(procSrc, memstore.NewRecord("ControlData.ConfigV3").Set("events", 120).Set("npvControls", 0))
}
