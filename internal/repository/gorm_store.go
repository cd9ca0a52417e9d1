package repository

import (
	"encoding/json"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
)

const defaultSnapshotKey = "orders"

// snapshotRecord is the keyed row holding one serialized snapshot.
type snapshotRecord struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Payload   []byte    `gorm:"column:payload"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (snapshotRecord) TableName() string { return "snapshots" }

// GormStore keeps the snapshot as a single keyed record in a SQL database
// (sqlite for local runs, postgres via pkg/conn).
type GormStore struct {
	db  *gorm.DB
	key string
}

// NewGormStore migrates the snapshots table and returns the store.
func NewGormStore(db *gorm.DB, key string) (*GormStore, error) {
	if key == "" {
		key = defaultSnapshotKey
	}
	if err := db.AutoMigrate(&snapshotRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate snapshots table")
	}
	return &GormStore{db: db, key: key}, nil
}

// Save upserts the snapshot record.
func (s *GormStore) Save(snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	record := snapshotRecord{
		Key:       s.key,
		Payload:   payload,
		UpdatedAt: snap.TakenAt,
	}
	if err := s.db.Save(&record).Error; err != nil {
		return errors.Wrap(err, "save snapshot record")
	}
	return nil
}

// Load reads the snapshot record, if any.
func (s *GormStore) Load() (Snapshot, bool, error) {
	var record snapshotRecord
	err := s.db.First(&record, "key = ?", s.key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, errors.Wrap(err, "load snapshot record")
	}
	var snap Snapshot
	if err := json.Unmarshal(record.Payload, &snap); err != nil {
		return Snapshot{}, false, errors.Wrap(err, "unmarshal snapshot")
	}
	return snap, true, nil
}
