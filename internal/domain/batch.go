package domain

import (
	"fmt"
	"sort"
	"time"
)

// BatchFormatVersion is stamped into every serialized batch so readers can
// detect artifacts written by newer releases.
const BatchFormatVersion = 1

// SessionBatch is an immutable, ordered collection of readings acquired in
// one session, plus the metadata needed to interpret it later. Readings are
// sorted ascending by timestamp and the batch is never empty.
type SessionBatch struct {
	SessionID     string            `json:"session_id"`
	FormatVersion int               `json:"format_version"`
	AppVersion    string            `json:"app_version"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	Device        Device            `json:"device"`
	Metadata      map[string]string `json:"metadata"`
	Readings      []Reading         `json:"readings"`
}

// NewSessionBatch packages readings into a batch. The input slice is copied
// and sorted; start and end times are derived from the timestamp extremes.
// A batch with zero readings is a construction error, not a valid empty
// batch.
func NewSessionBatch(sessionID, appVersion string, device Device, metadata map[string]string, readings []Reading) (*SessionBatch, error) {
	if len(readings) == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNoDataToSave)
	}

	sorted := make([]Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	return &SessionBatch{
		SessionID:     sessionID,
		FormatVersion: BatchFormatVersion,
		AppVersion:    appVersion,
		StartTime:     sorted[0].Timestamp,
		EndTime:       sorted[len(sorted)-1].Timestamp,
		Device:        device,
		Metadata:      meta,
		Readings:      sorted,
	}, nil
}

// Validate checks the structural invariants a decoded batch must satisfy.
func (b *SessionBatch) Validate() error {
	if b.SessionID == "" {
		return fmt.Errorf("session id is empty")
	}
	if len(b.Readings) == 0 {
		return fmt.Errorf("batch has no readings")
	}
	for i, r := range b.Readings {
		if r.Timestamp.Before(b.StartTime) || r.Timestamp.After(b.EndTime) {
			return fmt.Errorf("reading %d timestamp outside [start, end]", i)
		}
		if i > 0 && r.Timestamp.Before(b.Readings[i-1].Timestamp) {
			return fmt.Errorf("readings not sorted at index %d", i)
		}
	}
	return nil
}
