// Package session owns the streaming buffer for the in-progress acquisition
// session and turns it into persisted artifacts.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avetra/sensorlink/internal/adapters/buffer"
	"github.com/avetra/sensorlink/internal/adapters/store"
	"github.com/avetra/sensorlink/internal/domain"
	"github.com/avetra/sensorlink/internal/ports"
)

// Recorder accumulates readings and packages them into session batches.
// Save ordering is the core guarantee: the buffer is cleared only after
// the store reports success, so a failed save never drops acquired data.
type Recorder struct {
	mu         sync.Mutex
	buf        *buffer.Ring
	store      ports.BatchStore
	obs        ports.Observability
	appVersion string
	now        func() time.Time
	newID      func() string
}

func NewRecorder(buf *buffer.Ring, batchStore ports.BatchStore, obs ports.Observability, appVersion string) *Recorder {
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Recorder{
		buf:        buf,
		store:      batchStore,
		obs:        obs,
		appVersion: appVersion,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// Append adds one accepted reading to the live buffer.
func (r *Recorder) Append(reading domain.Reading) {
	r.buf.Append(reading)
	r.obs.SetGauge("sensorlink_buffer_length", float64(r.buf.Len()))
}

// Buffer exposes the underlying ring for pressure adjustment and length
// inspection.
func (r *Recorder) Buffer() *buffer.Ring { return r.buf }

// SaveCurrentSession persists everything buffered so far and, on success,
// drains exactly what it snapshotted. Readings appended while the store is
// writing survive for the next save. An empty buffer fails with
// ErrNoDataToSave before the store is touched.
func (r *Recorder) SaveCurrentSession(device domain.Device, metadata map[string]string) (ports.ArtifactInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.buf.Snapshot()
	if len(snapshot) == 0 {
		return ports.ArtifactInfo{}, domain.ErrNoDataToSave
	}

	info, err := r.save(snapshot, device, metadata)
	if err != nil {
		return ports.ArtifactInfo{}, err
	}
	r.buf.DrainFirst(len(snapshot))
	r.obs.SetGauge("sensorlink_buffer_length", float64(r.buf.Len()))
	return info, nil
}

// SaveDataPoints packages an explicit reading list, independent of the live
// buffer. Used for non-live imports.
func (r *Recorder) SaveDataPoints(points []domain.Reading, device domain.Device, metadata map[string]string) (ports.ArtifactInfo, error) {
	if len(points) == 0 {
		return ports.ArtifactInfo{}, domain.ErrNoDataToSave
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(points, device, metadata)
}

func (r *Recorder) save(points []domain.Reading, device domain.Device, metadata map[string]string) (ports.ArtifactInfo, error) {
	batch, err := domain.NewSessionBatch(r.newID(), r.appVersion, device, metadata, points)
	if err != nil {
		return ports.ArtifactInfo{}, err
	}

	name := store.ArtifactName(r.now())
	start := time.Now()
	info, err := r.store.Save(name, batch)
	if err != nil {
		r.obs.LogError("session_save_failed", err, ports.Field{Key: "artifact", Value: name})
		return ports.ArtifactInfo{}, fmt.Errorf("save session %s: %w", batch.SessionID, err)
	}
	r.obs.ObserveLatency("sensorlink_save_duration_seconds", time.Since(start).Seconds())
	r.obs.IncCounter("sensorlink_sessions_saved_total", 1)
	r.obs.LogInfo("session_saved",
		ports.Field{Key: "artifact", Value: info.Name},
		ports.Field{Key: "readings", Value: info.ReadingCount})
	return info, nil
}
