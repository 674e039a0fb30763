package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// document is the YAML layout of a schema file.
//
//	types:
//	  - type: Epix.ConfigV1
//	    doc: Epix camera configuration
//	    fields:
//	      - name: asicMask
//	        decode: post-process
//	        post: hex
//	      - name: asicPixelConfig
//	        decode: indexed
//	        count_from: numberOfAsics
type document struct {
	Types []typeDoc `yaml:"types"`
}

type typeDoc struct {
	Type   string     `yaml:"type"`
	Doc    string     `yaml:"doc"`
	Fields []fieldDoc `yaml:"fields"`
}

type fieldDoc struct {
	Name        string `yaml:"name"`
	Unit        string `yaml:"unit"`
	Doc         string `yaml:"doc"`
	Decode      string `yaml:"decode"`
	Count       int    `yaml:"count"`
	CountFrom   string `yaml:"count_from"`
	Offset      int    `yaml:"offset"`
	IndexFrom   string `yaml:"index_from"`
	Post        string `yaml:"post"`
	ListLen     int    `yaml:"list_len"`
	ListLenFrom string `yaml:"list_len_from"`
}

// YAMLLoader serves schemas parsed from a YAML document.
type YAMLLoader struct {
	modules map[string][]*TypeSchema
}

// LoadYAMLFile reads a schema document from a file.
func LoadYAMLFile(path string) (*YAMLLoader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML parses a schema document. Post-processor names are resolved
// against the table at decode time.
func ParseYAML(data []byte) (*YAMLLoader, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schema yaml: %w", err)
	}

	l := &YAMLLoader{modules: make(map[string][]*TypeSchema)}
	for _, td := range doc.Types {
		typ := store.ParseTypeID(td.Type)
		if typ.Module == "" || typ.Name == "" {
			return nil, fmt.Errorf("schema type %q must be Module.Name", td.Type)
		}

		fields := make([]Field, 0, len(td.Fields))
		for _, fd := range td.Fields {
			decode, err := ParseDecoding(fd.Decode)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", td.Type, fd.Name, err)
			}
			if decode == DecodePostProcess && fd.Post == "" {
				return nil, fmt.Errorf("%s.%s: post-process needs a post function name", td.Type, fd.Name)
			}
			fields = append(fields, Field{
				Name:        fd.Name,
				Unit:        fd.Unit,
				Doc:         fd.Doc,
				Decode:      decode,
				Count:       fd.Count,
				CountFrom:   fd.CountFrom,
				Offset:      fd.Offset,
				IndexFrom:   fd.IndexFrom,
				PostName:    fd.Post,
				ListLen:     fd.ListLen,
				ListLenFrom: fd.ListLenFrom,
			})
		}

		s := New(typ, fields...)
		s.Doc = td.Doc
		l.modules[typ.Module] = append(l.modules[typ.Module], s)
	}
	return l, nil
}

// Load implements Loader.
func (l *YAMLLoader) Load(module string) ([]*TypeSchema, error) {
	return l.modules[module], nil
}
