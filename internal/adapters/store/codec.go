// Package store persists session batches as named artifacts. The encoding
// is JSON: human-inspectable, forward compatible (unknown fields are
// ignored on read), and defaults are always emitted on write so no field
// is ever absent.
package store

import (
	"encoding/json"

	"github.com/avetra/sensorlink/internal/domain"
)

// Encode serializes a batch. Every field is emitted even at its zero value.
func Encode(batch *domain.SessionBatch) ([]byte, error) {
	if batch == nil {
		return nil, &domain.FormatError{Reason: "nil batch"}
	}
	if err := batch.Validate(); err != nil {
		return nil, &domain.FormatError{Reason: "invalid batch", Err: err}
	}
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return nil, &domain.FormatError{Reason: "encode", Err: err}
	}
	return data, nil
}

// Decode deserializes a batch, tolerating unknown additional fields for
// forward compatibility and rejecting structurally invalid input with a
// typed format error.
func Decode(data []byte) (*domain.SessionBatch, error) {
	var batch domain.SessionBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, &domain.FormatError{Reason: "invalid json", Err: err}
	}
	if err := batch.Validate(); err != nil {
		return nil, &domain.FormatError{Reason: "invalid batch", Err: err}
	}
	return &batch, nil
}

// artifactPeek is the subset of the artifact decoded for listings; readings
// stay raw so listing a directory never pays full decode cost.
type artifactPeek struct {
	SessionID string `json:"session_id"`
	Device    struct {
		ID string `json:"id"`
	} `json:"device"`
	Readings []json.RawMessage `json:"readings"`
}

func peek(data []byte) (sessionID, deviceID string, readingCount int, err error) {
	var p artifactPeek
	if err := json.Unmarshal(data, &p); err != nil {
		return "", "", 0, &domain.FormatError{Reason: "invalid json", Err: err}
	}
	return p.SessionID, p.Device.ID, len(p.Readings), nil
}
