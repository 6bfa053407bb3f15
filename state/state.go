// Package state persists tracker snapshots across daemon restarts.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotblauer/catspeed/conceptual"
	"github.com/rotblauer/catspeed/geo/speedtracker"
	"github.com/rotblauer/catspeed/params"
	"go.etcd.io/bbolt"
)

type State struct {
	DB *bbolt.DB
}

// Open opens (creating if needed) the state db in dir.
// Opening a writable bbolt db blocks other writers and readers with a file lock,
// so only one daemon can own a datadir.
func Open(dir string) (*State, error) {
	if err := os.MkdirAll(dir, 0770); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(filepath.Join(dir, params.StateDBName), 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(params.TrackerSnapshotBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &State{DB: db}, nil
}

func (s *State) Close() error {
	return s.DB.Close()
}

func (s *State) StoreSnapshot(catID conceptual.CatID, snap speedtracker.Snapshot) error {
	if catID.Empty() {
		return fmt.Errorf("store snapshot: empty cat id")
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.DB.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(params.TrackerSnapshotBucket).Put([]byte(catID), b)
	})
}

// ReadSnapshot returns the cat's stored snapshot, and false if there isn't one.
func (s *State) ReadSnapshot(catID conceptual.CatID) (speedtracker.Snapshot, bool, error) {
	var snap speedtracker.Snapshot
	var found bool
	err := s.DB.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(params.TrackerSnapshotBucket).Get([]byte(catID))
		if v == nil {
			return nil
		}
		found = true
		// v is only valid for the life of the transaction; Unmarshal copies.
		return json.Unmarshal(v, &snap)
	})
	return snap, found, err
}

func (s *State) DeleteSnapshot(catID conceptual.CatID) error {
	return s.DB.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(params.TrackerSnapshotBucket).Delete([]byte(catID))
	})
}

// Cats lists the cats with stored snapshots.
func (s *State) Cats() ([]conceptual.CatID, error) {
	out := []conceptual.CatID{}
	err := s.DB.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(params.TrackerSnapshotBucket).ForEach(func(k, v []byte) error {
			out = append(out, conceptual.CatID(k))
			return nil
		})
	})
	return out, err
}
