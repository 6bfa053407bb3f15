package api

import (
	"context"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotblauer/catspeed/conceptual"
)

// Registry keeps the live cats of a daemon.
// Beyond its size, the least recently used cat is snapshotted (when the backend
// has State) and evicted; it is restored next time it's asked for.
type Registry struct {
	Backend *Backend

	mu   sync.Mutex
	cats *lru.Cache[conceptual.CatID, *Cat]
}

func NewRegistry(size int, backend *Backend) (*Registry, error) {
	r := &Registry{Backend: backend}
	cats, err := lru.NewWithEvict[conceptual.CatID, *Cat](size, r.onEvict)
	if err != nil {
		return nil, err
	}
	r.cats = cats
	return r, nil
}

// Get returns the cat, creating it if needed.
// A new cat is restored from its snapshot if there is one, and otherwise started.
func (r *Registry) Get(ctx context.Context, catID conceptual.CatID) (*Cat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.cats.Get(catID); ok {
		return c, nil
	}

	c := NewCat(catID, r.Backend)
	restored, err := r.restore(ctx, c)
	if err != nil {
		c.logger.Warn("Failed to restore tracker", "error", err)
	}
	if !restored {
		if err := c.Start(ctx); err != nil {
			c.Close()
			return nil, err
		}
	}
	r.cats.Add(catID, c)
	return c, nil
}

func (r *Registry) restore(ctx context.Context, c *Cat) (bool, error) {
	if r.Backend.State == nil {
		return false, nil
	}
	snap, ok, err := r.Backend.State.ReadSnapshot(c.CatID)
	if err != nil || !ok {
		return false, err
	}
	c.Tracker.Restore(snap)
	if err := r.Backend.State.DeleteSnapshot(c.CatID); err != nil {
		c.logger.Warn("Failed to delete restored snapshot", "error", err)
	}
	if snap.Active {
		if err := c.Tracker.Resume(ctx); err != nil {
			return true, err
		}
	}
	c.logger.Info("Restored tracker", "samples", len(snap.History), "active", snap.Active)
	return true, nil
}

// Peek returns the cat if it is live, without creating it
// or counting as a use.
func (r *Registry) Peek(catID conceptual.CatID) (*Cat, bool) {
	return r.cats.Peek(catID)
}

func (r *Registry) Len() int {
	return r.cats.Len()
}

func (r *Registry) Cats() []conceptual.CatID {
	return r.cats.Keys()
}

func (r *Registry) onEvict(catID conceptual.CatID, c *Cat) {
	if r.Backend.State != nil {
		snap := c.Tracker.Snapshot()
		if snap.Active || len(snap.History) > 0 {
			if err := r.Backend.State.StoreSnapshot(catID, snap); err != nil {
				slog.Error("Failed to store tracker snapshot", "cat", catID, "error", err)
			}
		}
	}
	c.Close()
}

// Close evicts every cat, snapshotting as it goes.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cats.Purge()
}
