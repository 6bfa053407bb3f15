package params

import (
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
)

var (
	CacheLastKnownTTL = 7 * 24 * time.Hour
)

// DefaultRegistrySize is the number of cat trackers a daemon keeps in memory.
// Least recently used trackers are snapshotted and evicted beyond this.
var DefaultRegistrySize = 1_000

// DedupeCacheSize is the number of recent samples remembered to drop exact duplicates.
var DedupeCacheSize = 10_000

var DefaultDatadirRoot = func() string {
	home, err := homedir.Dir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".catspeed")
	}
	return filepath.Join(home, ".catspeed")
}()

const StateDBName = "state.db"

var TrackerSnapshotBucket = []byte("trackers")
