// Package codec provides the serialization capability used across the asynchronous provisioning boundary.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSON encodes values as compact JSON. Unmarshal rejects unknown fields.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}
	return data, nil
}

func (JSON) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("json unmarshal: %w", err)
	}
	return nil
}

func (JSON) Name() string {
	return "json"
}
