package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rotblauer/catspeed/conceptual"
	"github.com/rotblauer/catspeed/geo/speedtracker"
	"github.com/rotblauer/catspeed/types/position"
	"github.com/rotblauer/catspeed/types/status"
	"go.etcd.io/bbolt"
)

func TestSnapshots(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	rye := conceptual.NewCatID("rye")
	if _, ok, err := s.ReadSnapshot(rye); err != nil || ok {
		t.Fatalf("want no snapshot, got ok=%v err=%v", ok, err)
	}

	snap := speedtracker.Snapshot{
		History: []position.Position{
			position.New(46.87, -113.99, 1000),
			position.New(46.8701, -113.99, 6000).WithSpeed(8.01),
		},
		StopTimerMillis: 6000,
		StopTimerSet:    true,
		Active:          true,
		Status:          []byte(`{"status":"ready","speed":8.01}`),
	}
	if err := s.StoreSnapshot(rye, snap); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreSnapshot(conceptual.CatID(""), snap); err == nil {
		t.Error("want error storing snapshot for empty cat")
	}

	// Survives reopening.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	s, err = Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got, ok, err := s.ReadSnapshot(rye)
	if err != nil || !ok {
		t.Fatalf("want snapshot, got ok=%v err=%v", ok, err)
	}
	if got.StopTimerMillis != 6000 || !got.StopTimerSet || !got.Active || len(got.History) != 2 || got.History[1] != snap.History[1] {
		t.Errorf("snapshot mismatch: %+v", got)
	}
	if st, err := status.Unmarshal(got.Status); err != nil || st != (status.Ready{Speed: 8.01}) {
		t.Errorf("snapshot status: want Ready(8.01), got %v (%v)", st, err)
	}

	cats, err := s.Cats()
	if err != nil {
		t.Fatal(err)
	}
	if len(cats) != 1 || cats[0] != rye {
		t.Errorf("want [rye], got %v", cats)
	}

	if err := s.DeleteSnapshot(rye); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.ReadSnapshot(rye); ok {
		t.Error("snapshot not deleted")
	}
}

// TestBBoltOpenBlocks shows that a second writable conn blocks
// until the first closes, rather than erroring.
func TestBBoltOpenBlocks(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.Close()
	}()
	db2, err := bbolt.Open(filepath.Join(dir, "state.db"), 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("next db conn: %v", err)
	}
	db2.Close()
}
