package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingType indicates a frame parsed as JSON but carried no type
// discriminator, making it undeliverable.
var ErrMissingType = errors.New("message has no type field")

// Envelope is one inbound frame. Data is kept raw so the envelope can be
// dispatched without committing to a payload shape; typed decode happens
// lazily per event type.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseEnvelope decodes a raw frame into an Envelope.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}
	return &env, nil
}

// DecodeData unmarshals the envelope payload into v. Envelopes with no
// data section decode as the zero value.
func (e *Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", e.Type, err)
	}
	return nil
}
