package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/avetra/sensorlink/internal/domain"
	"github.com/avetra/sensorlink/internal/ports"
)

const artifactExt = ".json"

// FileStore keeps one artifact file per session under a single directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &domain.StorageError{Op: "mkdir", Err: err}
	}
	return &FileStore{dir: dir}, nil
}

// ArtifactName derives the deterministic artifact name for a session saved
// at t.
func ArtifactName(t time.Time) string {
	return "session_" + t.UTC().Format("20060102T150405") + artifactExt
}

// Save encodes and persists the batch under name. The write goes through a
// temp file and rename so a crash never leaves a half-written artifact.
func (s *FileStore) Save(name string, batch *domain.SessionBatch) (ports.ArtifactInfo, error) {
	data, err := Encode(batch)
	if err != nil {
		return ports.ArtifactInfo{}, err
	}

	path, err := s.path(name)
	if err != nil {
		return ports.ArtifactInfo{}, err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return ports.ArtifactInfo{}, &domain.StorageError{Op: "write", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return ports.ArtifactInfo{}, &domain.StorageError{Op: "rename", Err: err}
	}

	return ports.ArtifactInfo{
		Name:         name,
		Size:         int64(len(data)),
		CreatedAt:    time.Now().UTC(),
		ReadingCount: len(batch.Readings),
		SessionID:    batch.SessionID,
		DeviceID:     batch.Device.ID,
	}, nil
}

// Load reads and decodes one artifact.
func (s *FileStore) Load(name string) (*domain.SessionBatch, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.StorageError{Op: "read", Err: err}
	}
	return Decode(data)
}

// List describes every artifact in the store, newest first. Artifacts that
// fail the metadata peek are still listed so a corrupt file stays visible
// to the operator instead of vanishing.
func (s *FileStore) List() ([]ports.ArtifactInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &domain.StorageError{Op: "list", Err: err}
	}

	var infos []ports.ArtifactInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), artifactExt) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		info := ports.ArtifactInfo{
			Name:      entry.Name(),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime().UTC(),
		}
		if data, err := os.ReadFile(filepath.Join(s.dir, entry.Name())); err == nil {
			if sessionID, deviceID, count, err := peek(data); err == nil {
				info.SessionID = sessionID
				info.DeviceID = deviceID
				info.ReadingCount = count
			}
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// Delete removes one artifact.
func (s *FileStore) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &domain.StorageError{Op: "delete", Err: fmt.Errorf("artifact %s not found", name)}
		}
		return &domain.StorageError{Op: "delete", Err: err}
	}
	return nil
}

func (s *FileStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", &domain.StorageError{Op: "resolve", Err: fmt.Errorf("invalid artifact name %q", name)}
	}
	return filepath.Join(s.dir, name), nil
}

var _ ports.BatchStore = (*FileStore)(nil)
