package devconfig

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Version is the current envelope format version.
const Version = 1

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Envelope wraps one alias's encoded settings with provenance.
type Envelope struct {
	Version  int                 `json:"version"`
	RunKey   string              `json:"run_key"`
	Alias    string              `json:"alias"`
	Source   string              `json:"source,omitempty"`
	Saved    time.Time           `json:"saved"`
	Settings jsoniter.RawMessage `json:"settings"`
}

// NewEnvelope creates an envelope. settings must already be JSON-encoded.
func NewEnvelope(runKey, alias, source string, settings []byte) *Envelope {
	return &Envelope{
		Version:  Version,
		RunKey:   runKey,
		Alias:    alias,
		Source:   source,
		Saved:    time.Now().UTC(),
		Settings: settings,
	}
}

// Marshal serializes the envelope to JSON.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal deserializes an envelope. Envelopes from a newer format
// version are rejected.
func Unmarshal(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode settings envelope: %w", err)
	}
	if e.Version > Version {
		return nil, fmt.Errorf("settings envelope version %d is newer than %d", e.Version, Version)
	}
	return &e, nil
}

// Put encodes and saves an envelope.
func Put(s Store, e *Envelope) error {
	data, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("encode settings for %s: %w", e.Alias, err)
	}
	return s.Save(e.RunKey, e.Alias, data)
}

// Get loads and decodes an envelope.
func Get(s Store, runKey, alias string) (*Envelope, error) {
	data, err := s.Load(runKey, alias)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
