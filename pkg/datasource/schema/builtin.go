package schema

import (
	"fmt"

	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// builtinLoader serves the record types the resolver and event views depend
// on, plus a few common detector types.
type builtinLoader struct{}

func (builtinLoader) Load(module string) ([]*TypeSchema, error) {
	build, ok := builtins[module]
	if !ok {
		return nil, nil
	}
	return build(), nil
}

var builtins = map[string]func() []*TypeSchema{
	"Partition":   partitionSchemas,
	"Alias":       aliasSchemas,
	"EvrData":     evrSchemas,
	"ControlData": controlSchemas,
	"L3T":         l3tSchemas,
	"Bld":         bldSchemas,
	"Acqiris":     acqirisSchemas,
	"Ipimb":       ipimbSchemas,
	"CsPad":       cspadSchemas,
}

func f(name, unit, doc string) Field {
	return Field{Name: name, Unit: unit, Doc: doc}
}

func list(name, lenFrom, doc string) Field {
	return Field{Name: name, Doc: doc, ListLenFrom: lenFrom}
}

func partitionSchemas() []*TypeSchema {
	source := New(store.TypeID{Module: "Partition", Name: "Source"},
		f("src", "", "Source address"),
		f("group", "", "Readout group"),
	)
	config := []Field{
		f("bldMask", "", "Mask of BLD sources in the partition"),
		f("numSources", "", "Number of sources in the partition"),
		list("sources", "numSources", "Partition sources"),
	}
	return []*TypeSchema{
		source,
		New(store.TypeID{Module: "Partition", Name: "ConfigV1"}, config...),
		New(store.TypeID{Module: "Partition", Name: "ConfigV2"},
			append(config, f("ipAddr", "", "Address of the recording node"))...),
	}
}

func aliasSchemas() []*TypeSchema {
	return []*TypeSchema{
		New(store.TypeID{Module: "Alias", Name: "SrcAlias"},
			f("src", "", "Source address"),
			f("aliasName", "", "Alias for the source"),
		),
		New(store.TypeID{Module: "Alias", Name: "ConfigV1"},
			f("numSrcAlias", "", "Number of aliases"),
			list("srcAlias", "numSrcAlias", "Source aliases"),
		),
	}
}

func evrSchemas() []*TypeSchema {
	eventCode := New(store.TypeID{Module: "EvrData", Name: "EventCodeV6"},
		f("code", "", "Event code"),
		f("isReadout", "", "Code triggers readout"),
		f("isCommand", "", "Code is a command"),
		f("isLatch", "", "Code latches"),
		f("reportDelay", "ticks", "Report delay"),
		f("reportWidth", "ticks", "Report width"),
		f("desc", "", "Description"),
		f("readoutGroup", "", "Readout group triggered by the code"),
	)
	pulse := New(store.TypeID{Module: "EvrData", Name: "PulseConfigV3"},
		f("pulseId", "", "Pulse generator id"),
		f("polarity", "", "0 = positive, 1 = negative"),
		f("prescale", "", "Clock prescale"),
		f("delay", "ticks", "Delay in prescaled 119 MHz ticks"),
		f("width", "ticks", "Width in prescaled 119 MHz ticks"),
	)
	outputMap := New(store.TypeID{Module: "EvrData", Name: "OutputMapV2"},
		Field{Name: "source", Doc: "Output source type", Decode: DecodeEnumName},
		f("source_id", "", "Output source index"),
		Field{Name: "conn", Doc: "Connector type", Decode: DecodeEnumName},
		f("conn_id", "", "Connector channel"),
		f("module", "", "EVR module"),
		f("value", "", "Packed map value"),
	)
	config := New(store.TypeID{Module: "EvrData", Name: "ConfigV7"},
		f("neventcodes", "", "Number of event codes"),
		list("eventcodes", "neventcodes", "Event code configuration"),
		f("npulses", "", "Number of pulse generators"),
		list("pulses", "npulses", "Pulse generator configuration"),
		f("noutputs", "", "Number of output maps"),
		list("output_maps", "noutputs", "Output map configuration"),
	)
	channel := New(store.TypeID{Module: "EvrData", Name: "IOChannelV2"},
		f("output", "", "Output map for the channel"),
		f("name", "", "Channel name"),
		f("ninfo", "", "Number of wired sources"),
		list("infos", "ninfo", "Sources wired to the channel"),
	)
	ioConfig := New(store.TypeID{Module: "EvrData", Name: "IOConfigV2"},
		f("nchannels", "", "Number of channels"),
		list("channels", "nchannels", "IO channels"),
	)
	fifo := New(store.TypeID{Module: "EvrData", Name: "FIFOEvent"},
		f("timestampHigh", "", "Fiducial"),
		f("timestampLow", "", "Timestamp counter"),
		f("eventCode", "", "Event code"),
	)
	data := New(store.TypeID{Module: "EvrData", Name: "DataV4"},
		f("numFifoEvents", "", "Number of event codes received"),
		list("fifoEvents", "numFifoEvents", "Event codes received"),
	)
	return []*TypeSchema{eventCode, pulse, outputMap, config, channel, ioConfig, fifo, data}
}

func controlSchemas() []*TypeSchema {
	return []*TypeSchema{
		New(store.TypeID{Module: "ControlData", Name: "PVControl"},
			f("name", "", "Control PV name"),
			f("index", "", "Array index"),
			f("value", "", "Setpoint"),
		),
		New(store.TypeID{Module: "ControlData", Name: "PVMonitor"},
			f("name", "", "Monitor PV name"),
			f("index", "", "Array index"),
			f("loValue", "", "Low limit"),
			f("hiValue", "", "High limit"),
		),
		New(store.TypeID{Module: "ControlData", Name: "PVLabel"},
			f("name", "", "Label PV name"),
			f("value", "", "Label value"),
		),
		New(store.TypeID{Module: "ControlData", Name: "ConfigV3"},
			f("uses_duration", "", "Step ends after a duration"),
			f("uses_events", "", "Step ends after an event count"),
			f("uses_l3t_events", "", "Step ends after a L3T-accepted event count"),
			f("events", "", "Events per step"),
			f("npvControls", "", "Number of control PVs"),
			list("pvControls", "npvControls", "Control PVs"),
			f("npvMonitors", "", "Number of monitored PVs"),
			list("pvMonitors", "npvMonitors", "Monitored PVs"),
			f("npvLabels", "", "Number of labels"),
			list("pvLabels", "npvLabels", "Labels"),
		),
	}
}

func l3tSchemas() []*TypeSchema {
	return []*TypeSchema{
		New(store.TypeID{Module: "L3T", Name: "DataV1"},
			f("accept", "", "Level 3 trigger decision"),
		),
		New(store.TypeID{Module: "L3T", Name: "DataV2"},
			f("accept", "", "Level 3 trigger decision"),
			f("result", "", "Level 3 trigger result"),
			f("bias", "", "Event was kept as an unbiased sample"),
		),
	}
}

func bldSchemas() []*TypeSchema {
	return []*TypeSchema{
		New(store.TypeID{Module: "Bld", Name: "BldDataEBeamV7"},
			Field{Name: "damageMask", Doc: "Damage mask", Decode: DecodePostProcess, Post: hexValue, PostName: "hex"},
			f("ebeamCharge", "nC", "Beam charge"),
			f("ebeamL3Energy", "MeV", "Beam energy"),
			f("ebeamLTUPosX", "mm", "LTU beam position (BPMS:LTU1:720 through 750), x"),
			f("ebeamLTUPosY", "mm", "LTU beam position, y"),
			f("ebeamLTUAngX", "mrad", "LTU beam angle, x"),
			f("ebeamLTUAngY", "mrad", "LTU beam angle, y"),
			f("ebeamPkCurrBC2", "A", "Beam peak current after BC2"),
			f("ebeamPhotonEnergy", "eV", "Computed photon energy"),
		),
		New(store.TypeID{Module: "Bld", Name: "BldDataFEEGasDetEnergyV1"},
			f("f_11_ENRC", "mJ", "Gas detector 1, PMT 1"),
			f("f_12_ENRC", "mJ", "Gas detector 1, PMT 2"),
			f("f_21_ENRC", "mJ", "Gas detector 2, PMT 1"),
			f("f_22_ENRC", "mJ", "Gas detector 2, PMT 2"),
			f("f_63_ENRC", "mJ", "Gas detector 6, PMT 3"),
			f("f_64_ENRC", "mJ", "Gas detector 6, PMT 4"),
		),
		New(store.TypeID{Module: "Bld", Name: "BldDataPhaseCavity"},
			f("fitTime1", "ps", "Cavity 1 fit time"),
			f("fitTime2", "ps", "Cavity 2 fit time"),
			f("charge1", "pC", "Cavity 1 charge"),
			f("charge2", "pC", "Cavity 2 charge"),
		),
	}
}

func acqirisSchemas() []*TypeSchema {
	return []*TypeSchema{
		New(store.TypeID{Module: "Acqiris", Name: "VertV1"},
			f("fullScale", "V", "Full-scale voltage"),
			f("offset", "V", "Offset voltage"),
			f("coupling", "", "Coupling mode"),
			f("bandwidth", "", "Bandwidth limit"),
		),
		New(store.TypeID{Module: "Acqiris", Name: "HorizV1"},
			f("sampInterval", "s", "Sampling interval"),
			f("delayTime", "s", "Trigger delay"),
			f("nbrSamples", "", "Samples per segment"),
			f("nbrSegments", "", "Segments per acquisition"),
		),
		New(store.TypeID{Module: "Acqiris", Name: "ConfigV1"},
			f("nbrConvertersPerChannel", "", "Converters per channel"),
			Field{Name: "channelMask", Doc: "Enabled channels", Decode: DecodePostProcess, Post: hexValue, PostName: "hex"},
			f("nbrBanks", "", "Number of banks"),
			f("nbrChannels", "", "Number of channels"),
			f("horiz", "", "Horizontal configuration"),
			Field{Name: "vert", Doc: "Vertical configuration per channel", Decode: DecodeIndexed, CountFrom: "nbrChannels"},
		),
		New(store.TypeID{Module: "Acqiris", Name: "DataDescV1"},
			f("nbrChannels", "", "Number of channels"),
			Field{Name: "waveforms", Doc: "Waveform per channel", Decode: DecodeIndexed, CountFrom: "nbrChannels"},
		),
	}
}

func ipimbSchemas() []*TypeSchema {
	return []*TypeSchema{
		New(store.TypeID{Module: "Ipimb", Name: "ConfigV2"},
			f("triggerCounter", "", "Trigger counter"),
			Field{Name: "serialID", Doc: "Board serial number", Decode: DecodePostProcess, Post: hexValue, PostName: "hex"},
			f("chargeAmpRange", "", "Packed charge amplifier ranges"),
			f("channels", "", "Channel indices"),
			Field{Name: "diodeGain", Doc: "Diode gain per channel", Decode: DecodeIndexName, IndexFrom: "channels"},
			f("resetLength", "ns", "Reset length"),
			f("resetDelay", "ns", "Reset delay"),
			f("chargeAmpRefVoltage", "V", "Charge amplifier reference voltage"),
			f("trigDelay", "ns", "Trigger delay"),
		),
		New(store.TypeID{Module: "Ipimb", Name: "DataV2"},
			f("triggerCounter", "", "Trigger counter"),
			f("channel0Volts", "V", "Channel 0"),
			f("channel1Volts", "V", "Channel 1"),
			f("channel2Volts", "V", "Channel 2"),
			f("channel3Volts", "V", "Channel 3"),
		),
	}
}

func cspadSchemas() []*TypeSchema {
	return []*TypeSchema{
		New(store.TypeID{Module: "CsPad", Name: "ConfigV5"},
			Field{Name: "concentratorVersion", Doc: "Concentrator firmware version", Decode: DecodePostProcess, Post: hexValue, PostName: "hex"},
			f("runDelay", "", "Run delay"),
			f("eventCode", "", "Event code"),
			f("activeRunMode", "", "Active run mode"),
			f("payloadSize", "", "Payload size"),
			f("asicMask", "", "ASIC mask"),
			f("quadMask", "", "Quadrant mask"),
			f("numQuads", "", "Number of quadrants"),
			Field{Name: "roiMask", Doc: "ROI mask per quadrant", Decode: DecodeHexIndexed, CountFrom: "numQuads"},
			Field{Name: "numAsicsStored", Doc: "ASICs stored per quadrant", Decode: DecodeIndexed, CountFrom: "numQuads"},
		),
	}
}

func defaultPostProcessors() map[string]PostFunc {
	return map[string]PostFunc{
		"hex":    hexValue,
		"string": stringValue,
		"names":  namesValue,
	}
}

func hexValue(raw any) (any, error) {
	switch v := raw.(type) {
	case int:
		return fmt.Sprintf("0x%x", v), nil
	case int32:
		return fmt.Sprintf("0x%x", v), nil
	case int64:
		return fmt.Sprintf("0x%x", v), nil
	case uint:
		return fmt.Sprintf("0x%x", v), nil
	case uint32:
		return fmt.Sprintf("0x%x", v), nil
	case uint64:
		return fmt.Sprintf("0x%x", v), nil
	}
	return nil, fmt.Errorf("hex: unsupported value %T", raw)
}

func stringValue(raw any) (any, error) {
	if n, ok := raw.(store.Named); ok {
		return n.Name(), nil
	}
	return fmt.Sprint(raw), nil
}

func namesValue(raw any) (any, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("names: expected a list, got %T", raw)
	}
	out := make([]string, len(items))
	for i, item := range items {
		n, ok := item.(store.Named)
		if !ok {
			return nil, fmt.Errorf("names: element %d has no name", i)
		}
		out[i] = n.Name()
	}
	return out, nil
}
