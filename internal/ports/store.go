package ports

import (
	"time"

	"github.com/avetra/sensorlink/internal/domain"
)

// ArtifactInfo describes a stored session artifact for listing purposes.
// SessionID and DeviceID are extracted without fully decoding the artifact.
type ArtifactInfo struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
	ReadingCount int       `json:"reading_count"`
	SessionID    string    `json:"session_id,omitempty"`
	DeviceID     string    `json:"device_id,omitempty"`
}

// BatchStore persists serialized session batches under caller-chosen names
// and round-trips them through the same encoding.
type BatchStore interface {
	Save(name string, batch *domain.SessionBatch) (ArtifactInfo, error)
	Load(name string) (*domain.SessionBatch, error)
	List() ([]ArtifactInfo, error)
	Delete(name string) error
}
