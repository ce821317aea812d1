package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	// CurrentSchemaVersion is stamped on every envelope this service produces.
	CurrentSchemaVersion = 2

	// MaxKnownSchemaVersion is the highest version this service knows how to
	// decode field-by-field. Higher versions are processed using the base
	// field set only.
	MaxKnownSchemaVersion = 2
)

// Envelope is the wire payload carried through the outbox and the broker.
// Version 1 carries the base field set; version 2 adds the optional Source.
type Envelope struct {
	EventID       string `json:"eventId"`
	Type          string `json:"type"`
	Timestamp     string `json:"ts"`
	CustomerID    string `json:"customerId"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	CorrelationID string `json:"correlationId,omitempty"`
	SchemaVersion int    `json:"schemaVersion"`
	Source        string `json:"source,omitempty"`
}

func (e *Envelope) Encode() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return body, nil
}

// wireEnvelope keeps schemaVersion loosely typed so that envelopes produced
// by other stacks (numeric or quoted versions) still decode.
type wireEnvelope struct {
	EventID       string      `json:"eventId"`
	Type          string      `json:"type"`
	Timestamp     string      `json:"ts"`
	CustomerID    string      `json:"customerId"`
	Name          string      `json:"name"`
	Email         string      `json:"email"`
	CorrelationID string      `json:"correlationId"`
	SchemaVersion interface{} `json:"schemaVersion"`
	Source        string      `json:"source"`
}

// DecodeEnvelope parses raw into an Envelope. Unknown fields are ignored and
// a missing or unreadable schemaVersion defaults to 1. Structural JSON errors
// are returned to the caller; everything else decodes conservatively.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	return &Envelope{
		EventID:       wire.EventID,
		Type:          wire.Type,
		Timestamp:     wire.Timestamp,
		CustomerID:    wire.CustomerID,
		Name:          wire.Name,
		Email:         wire.Email,
		CorrelationID: wire.CorrelationID,
		SchemaVersion: coerceSchemaVersion(wire.SchemaVersion),
		Source:        wire.Source,
	}, nil
}

func coerceSchemaVersion(v interface{}) int {
	switch value := v.(type) {
	case nil:
		return 1
	case float64:
		if value < 1 {
			return 1
		}
		return int(value)
	case string:
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 1 {
			return 1
		}
		return parsed
	default:
		return 1
	}
}

// Time parses the envelope timestamp, returning the zero time when the
// producer sent something unparseable.
func (e *Envelope) Time() time.Time {
	ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return ts
}
