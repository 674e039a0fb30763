// Package schema holds the static field descriptions for store record types.
//
// A TypeSchema lists the fields of one record type in display order, each
// with a unit, a doc string and a decoding strategy. Records whose type has
// no schema are still browsable: the record views fall back to the
// accessors the record reports at runtime.
package schema

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// Decoding selects how a field's accessor is turned into a value.
type Decoding int

const (
	// DecodeDefault calls the accessor with no arguments, takes the name of
	// enum-like results and wraps records and record lists in views.
	DecodeDefault Decoding = iota

	// DecodeIndexed calls the accessor once per index 0..N-1.
	DecodeIndexed

	// DecodeHexIndexed is DecodeIndexed with each element formatted as hex.
	DecodeHexIndexed

	// DecodeIndexName reads an index list from another accessor and maps
	// each index through this accessor, taking the element names.
	DecodeIndexName

	// DecodePostProcess applies a post-processing function to the raw
	// accessor result and returns it without further wrapping.
	DecodePostProcess

	// DecodeDirect returns the raw accessor result without name lookup or
	// view wrapping.
	DecodeDirect

	// DecodeEnumName requires an enum-like result and returns its name.
	DecodeEnumName
)

var decodingNames = map[Decoding]string{
	DecodeDefault:     "default",
	DecodeIndexed:     "indexed",
	DecodeHexIndexed:  "hex-indexed",
	DecodeIndexName:   "index-name",
	DecodePostProcess: "post-process",
	DecodeDirect:      "direct",
	DecodeEnumName:    "enum-name",
}

// String returns the decoding name used in schema documents.
func (d Decoding) String() string {
	if s, ok := decodingNames[d]; ok {
		return s
	}
	return "unknown"
}

// ParseDecoding parses a decoding name.
func ParseDecoding(s string) (Decoding, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DecodeDefault, nil
	}
	for d, name := range decodingNames {
		if name == s {
			return d, nil
		}
	}
	return DecodeDefault, fmt.Errorf("unknown decoding %q", s)
}

// PostFunc post-processes a raw accessor result.
type PostFunc func(raw any) (any, error)

// Field describes one field of a record type.
type Field struct {
	Name   string
	Unit   string
	Doc    string
	Decode Decoding

	// Count is the literal element count for indexed decodings.
	Count int
	// CountFrom names a field whose runtime value is the element count.
	// A list value contributes its first element, as a shape does.
	CountFrom string
	// Offset is added to each index before calling the accessor.
	Offset int

	// IndexFrom names the accessor returning the index list for DecodeIndexName.
	IndexFrom string

	// Post is the post-processing function for DecodePostProcess.
	Post PostFunc
	// PostName is the processor name Post was resolved from, if any.
	PostName string

	// ListLen truncates list results to a literal length.
	ListLen int
	// ListLenFrom names a field whose runtime value truncates list results.
	ListLenFrom string
}

// TypeSchema describes every field of one record type.
type TypeSchema struct {
	Type store.TypeID
	Doc  string

	fields []Field
	byName map[string]int
}

// New creates a schema. Fields whose names start with an upper-case letter
// are type constants, not fields, and are dropped. A repeated name replaces
// the earlier definition in place.
func New(typ store.TypeID, fields ...Field) *TypeSchema {
	s := &TypeSchema{Type: typ, byName: make(map[string]int, len(fields))}
	for _, f := range fields {
		if f.Name == "" || isConstant(f.Name) {
			continue
		}
		if i, ok := s.byName[f.Name]; ok {
			s.fields[i] = f
			continue
		}
		s.byName[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s
}

// Fields returns the fields in declaration order.
func (s *TypeSchema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the field names in declaration order.
func (s *TypeSchema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Field looks up a field by name.
func (s *TypeSchema) Field(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Len returns the number of fields.
func (s *TypeSchema) Len() int {
	return len(s.fields)
}

func isConstant(name string) bool {
	for _, r := range name {
		return unicode.IsUpper(r)
	}
	return false
}
