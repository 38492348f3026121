package storage

import (
	"encoding/json"

	"github.com/pingcap/badger"
	"github.com/pingcap/errors"
)

// DiskLog is a DurableLog backed by a badger database. Each record is
// stored under its batch ID, written in a single badger transaction so the
// append is atomic.
type DiskLog struct {
	db *badger.DB
}

// OpenDiskLog opens (or creates) a badger-backed log at dir.
func OpenDiskLog(dir string) (*DiskLog, error) {
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &DiskLog{db: db}, nil
}

func (l *DiskLog) Append(rec Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return errors.WithStack(err)
	}
	err = l.db.Update(func(t *badger.Txn) error {
		return t.Set([]byte(rec.BatchID), val)
	})
	return errors.WithStack(err)
}

// Get reads back a logged record by batch ID.
func (l *DiskLog) Get(batchID string) (Record, error) {
	var rec Record
	err := l.db.View(func(t *badger.Txn) error {
		item, err := t.Get([]byte(batchID))
		if err != nil {
			return err
		}
		val, err := item.Value()
		if err != nil {
			return err
		}
		return json.Unmarshal(val, &rec)
	})
	return rec, errors.WithStack(err)
}

func (l *DiskLog) Close() error {
	return l.db.Close()
}
