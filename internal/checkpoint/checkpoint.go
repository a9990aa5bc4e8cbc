// Package checkpoint persists crawl snapshots so an interrupted run can
// resume without refetching finished work. One JSON file per crawl mode; the
// snapshot is the whole category tree, entities included.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/buildsheet/harvester/internal/catalog"
	"github.com/buildsheet/harvester/internal/metrics"
)

// ErrNotFound indicates no snapshot exists for the tag.
var ErrNotFound = errors.New("checkpoint not found")

// Snapshot is the serialized crawl state.
type Snapshot struct {
	Tag           string                  `json:"tag"`
	RunID         uuid.UUID               `json:"run_id"`
	SavedAt       time.Time               `json:"saved_at"`
	DetailedCount int                     `json:"detailed_count"`
	SkippedCount  int                     `json:"skipped_count"`
	Roots         []*catalog.CategoryNode `json:"roots"`
}

// Store reads and writes snapshots for one mode tag.
type Store struct {
	dir string
	tag string
	log *zap.Logger
}

func NewStore(dir, tag string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, tag: tag, log: logger}
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return filepath.Join(s.dir, "checkpoint_"+s.tag+".json")
}

// Exists reports whether a snapshot is on disk.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

// Save writes the snapshot through a temp file and rename, so a crash during
// the write never corrupts an existing snapshot.
func (s *Store) Save(snap *Snapshot) error {
	snap.Tag = s.tag
	snap.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "checkpoint_"+s.tag+"_*.tmp")
	if err != nil {
		return fmt.Errorf("create checkpoint temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close checkpoint temp: %w", err)
	}
	if err := os.Rename(tmpName, s.Path()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("publish checkpoint: %w", err)
	}

	metrics.TotalCheckpoints.Inc()
	s.log.Debug("checkpoint saved",
		zap.String("path", s.Path()),
		zap.Int("detailed", snap.DetailedCount),
	)
	return nil
}

// Load reads the snapshot for this tag.
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &snap, nil
}

// Clear removes the snapshot. Missing files are not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}
