package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"main/internal/model"
)

// Snapshot is a flat dump of {orders, trades, execution reports}. Reloading
// assumes the exact current shape; there is no schema versioning.
type Snapshot struct {
	TakenAt time.Time               `json:"takenAt"`
	Orders  []*model.Order          `json:"orders"`
	Trades  []model.Trade           `json:"trades"`
	Reports []model.ExecutionReport `json:"reports"`
}

// TakeSnapshot captures the current repository contents.
func TakeSnapshot(r Repository, now time.Time) Snapshot {
	return Snapshot{
		TakenAt: now,
		Orders:  r.Orders(),
		Trades:  r.Trades(),
		Reports: r.Reports(),
	}
}

// RestoreSnapshot rebuilds an in-memory repository from a snapshot.
func RestoreSnapshot(snap Snapshot) (*InMemory, error) {
	repo := NewInMemory()
	orders := append([]*model.Order(nil), snap.Orders...)
	sortOrders(orders)
	for _, o := range orders {
		if err := repo.CreateOrder(o); err != nil {
			return nil, err
		}
	}
	for _, t := range snap.Trades {
		repo.AppendTrade(t)
	}
	for _, rep := range snap.Reports {
		repo.AppendReport(rep)
	}
	return repo, nil
}

// SnapshotStore persists one keyed snapshot record.
type SnapshotStore interface {
	Save(snap Snapshot) error
	// Load returns the stored snapshot, or ok=false when none exists yet.
	Load() (snap Snapshot, ok bool, err error)
}

// FileStore keeps the snapshot as a JSON file on disk.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed snapshot store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes the snapshot to disk as JSON.
func (s *FileStore) Save(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Load reads the snapshot from disk.
func (s *FileStore) Load() (Snapshot, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}
