package memstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// fixture is the YAML layout accepted by Load.
//
//	run: 54
//	config:
//	  - source: "ProcInfo(0.0.0.0, pid=1)"
//	    type: Partition.ConfigV2
//	    fields:
//	      bldMask: 0
//	      sources:
//	        - type: Partition.Source
//	          fields: {src: "DetInfo(XppGon.0:Cspad.0)", group: 0}
//	steps:
//	  - events:
//	      - time: [1500000000, 0, 3]
//	        records:
//	          - source: "DetInfo(NoDetector.0:Evr.0)"
//	            type: EvrData.DataV4
//	            fields: {...}
type fixture struct {
	Run    int             `yaml:"run"`
	Config []fixtureRecord `yaml:"config"`
	Steps  []fixtureStep   `yaml:"steps"`
}

type fixtureStep struct {
	Config []fixtureRecord `yaml:"config"`
	Events []fixtureEvent  `yaml:"events"`
}

type fixtureEvent struct {
	Time    []int64         `yaml:"time"`
	Records []fixtureRecord `yaml:"records"`
}

type fixtureRecord struct {
	Source string    `yaml:"source"`
	Key    string    `yaml:"key"`
	Type   string    `yaml:"type"`
	Fields yaml.Node `yaml:"fields"`
}

// LoadFile loads a store from a YAML fixture file.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load builds a store from a YAML fixture.
//
// Field values map onto accessors: scalars and lists are returned as-is
// (numeric lists become []int64 or []float64), a mapping with "type" and
// "fields" becomes a nested record, a mapping with "enum" becomes an Enum,
// a mapping with "indexed" becomes an Indexed accessor and a mapping with
// "error" becomes a failing accessor.
func Load(r io.Reader) (*Store, error) {
	var fx fixture
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}

	config, err := buildContainer(fx.Config)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	st := New(config).SetRun(fx.Run)

	for i, fs := range fx.Steps {
		var stepConfig *Container
		if len(fs.Config) > 0 {
			if stepConfig, err = buildContainer(fs.Config); err != nil {
				return nil, fmt.Errorf("step %d config: %w", i, err)
			}
		}
		events := make([]*Event, 0, len(fs.Events))
		for j, fe := range fs.Events {
			ev, err := buildEvent(fe)
			if err != nil {
				return nil, fmt.Errorf("step %d event %d: %w", i, j, err)
			}
			events = append(events, ev)
		}
		st.AddStep(stepConfig, events...)
	}
	return st, nil
}

func buildEvent(fe fixtureEvent) (*Event, error) {
	var t store.TimeTuple
	switch len(fe.Time) {
	case 3:
		t.Fiducial = fe.Time[2]
		fallthrough
	case 2:
		t.Nanoseconds = fe.Time[1]
		fallthrough
	case 1:
		t.Seconds = fe.Time[0]
	default:
		return nil, fmt.Errorf("time must have 1 to 3 elements, got %d", len(fe.Time))
	}

	ev := NewEvent(t)
	for _, fr := range fe.Records {
		rec, err := buildRecord(fr.Type, &fr.Fields)
		if err != nil {
			return nil, err
		}
		ev.PutKey(fr.Source, fr.Key, rec)
	}
	return ev, nil
}

func buildContainer(records []fixtureRecord) (*Container, error) {
	c := NewContainer()
	for _, fr := range records {
		if fr.Source == "" || fr.Type == "" {
			return nil, fmt.Errorf("record needs source and type")
		}
		rec, err := buildRecord(fr.Type, &fr.Fields)
		if err != nil {
			return nil, err
		}
		c.PutKey(fr.Source, fr.Key, rec)
	}
	return c, nil
}

func buildRecord(typeName string, fields *yaml.Node) (*Record, error) {
	rec := NewRecord(typeName)
	if fields == nil || fields.Kind == 0 {
		return rec, nil
	}
	if fields.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: fields must be a mapping", typeName)
	}
	// Walk the mapping node directly to keep declaration order.
	for i := 0; i+1 < len(fields.Content); i += 2 {
		name := fields.Content[i].Value
		var raw any
		if err := fields.Content[i+1].Decode(&raw); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", typeName, name, err)
		}
		v, err := fieldValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", typeName, name, err)
		}
		rec.Set(name, v)
	}
	return rec, nil
}

func fieldValue(raw any) (any, error) {
	switch x := raw.(type) {
	case int:
		return int64(x), nil
	case map[string]any:
		return mappingValue(x)
	case []any:
		return listValue(x)
	}
	return raw, nil
}

func mappingValue(m map[string]any) (any, error) {
	if typeName, ok := m["type"].(string); ok {
		return nestedRecord(typeName, m["fields"])
	}
	if label, ok := m["enum"].(string); ok {
		value, _ := m["value"].(int)
		return Enum{Label: label, Value: value}, nil
	}
	if items, ok := m["indexed"].([]any); ok {
		out := make(Indexed, len(items))
		for i, item := range items {
			v, err := fieldValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	if msg, ok := m["error"].(string); ok {
		return Failing(errors.New(msg)), nil
	}
	return m, nil
}

func nestedRecord(typeName string, fields any) (*Record, error) {
	rec := NewRecord(typeName)
	m, _ := fields.(map[string]any)
	// Decoded maps lose order; nested records are sorted by the schema anyway.
	for _, name := range sortedKeys(m) {
		v, err := fieldValue(m[name])
		if err != nil {
			return nil, err
		}
		rec.Set(name, v)
	}
	return rec, nil
}

func listValue(items []any) (any, error) {
	if len(items) == 0 {
		return []any{}, nil
	}

	allInts, allNums, allStrings, allRecords, allLists := true, true, true, true, true
	for _, item := range items {
		switch x := item.(type) {
		case int:
			allStrings, allRecords, allLists = false, false, false
		case float64:
			allInts, allStrings, allRecords, allLists = false, false, false, false
		case string:
			allInts, allNums, allRecords, allLists = false, false, false, false
		case map[string]any:
			allInts, allNums, allStrings, allLists = false, false, false, false
			if _, ok := x["type"].(string); !ok {
				allRecords = false
			}
		case []any:
			allInts, allNums, allStrings, allRecords = false, false, false, false
		default:
			allInts, allNums, allStrings, allRecords, allLists = false, false, false, false, false
		}
	}

	switch {
	case allInts:
		out := make([]int64, len(items))
		for i, item := range items {
			out[i] = int64(item.(int))
		}
		return out, nil
	case allNums:
		out := make([]float64, len(items))
		for i, item := range items {
			out[i] = toFloat(item)
		}
		return out, nil
	case allStrings:
		out := make([]string, len(items))
		for i, item := range items {
			out[i] = item.(string)
		}
		return out, nil
	case allRecords:
		out := make([]*Record, len(items))
		for i, item := range items {
			m := item.(map[string]any)
			rec, err := nestedRecord(m["type"].(string), m["fields"])
			if err != nil {
				return nil, err
			}
			out[i] = rec
		}
		return out, nil
	case allLists:
		out := make([][]float64, len(items))
		for i, item := range items {
			row := item.([]any)
			out[i] = make([]float64, len(row))
			for j, v := range row {
				out[i][j] = toFloat(v)
			}
		}
		return out, nil
	}

	out := make([]any, len(items))
	for i, item := range items {
		v, err := fieldValue(item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
