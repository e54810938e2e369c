// Package domain models federated protocol objects: payload shapes, the
// object/actor/activity classification, scalar-or-set reference fields, and
// the deterministic address layout for locally owned actors.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a requested record or local identity is missing.
	ErrNotFound = errors.New("record not found")
	// ErrUnsupportedType indicates a payload matched no known record kind.
	ErrUnsupportedType = errors.New("unsupported object type")
)

// Payload is the decoded wire representation of one protocol object.
type Payload map[string]any

// ID returns the payload's external id, or "" when absent.
func (p Payload) ID() string {
	value, _ := p["id"].(string)
	return value
}

// Type reads the payload's type field, which may be scalar or a set.
func (p Payload) Type() Value {
	return ValueOf(p["type"])
}

// Ref reads a reference field (actor, object, target) as a scalar-or-set value.
func (p Payload) Ref(field string) Value {
	return ValueOf(p[field])
}

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for key, value := range p {
		out[key] = value
	}
	return out
}

// DecodePayload parses a JSON document into a payload.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

// EncodePayload serializes a payload back to its JSON document form.
func EncodePayload(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// MergePayload applies update onto existing. When fullReplace is true the
// update wins wholesale except for the immutable id; otherwise top-level
// fields from update overwrite existing ones and absent fields survive.
func MergePayload(existing, update Payload, fullReplace bool) Payload {
	if fullReplace {
		merged := update.Clone()
		if merged == nil {
			merged = Payload{}
		}
		if id := existing.ID(); id != "" {
			merged["id"] = id
		}
		return merged
	}
	merged := existing.Clone()
	if merged == nil {
		merged = Payload{}
	}
	for key, value := range update {
		if key == "id" {
			continue
		}
		if value == nil {
			delete(merged, key)
			continue
		}
		merged[key] = value
	}
	return merged
}
