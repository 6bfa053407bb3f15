package webd

import (
	"net/http/httptest"
	"testing"

	"github.com/rotblauer/catspeed/params"
)

// newTestWebDaemon creates a new WebDaemon for testing purposes,
// with a temporary data dir, serving its router from an httptest server.
// Both are closed when the test is done.
func newTestWebDaemon(t *testing.T) (*WebDaemon, *httptest.Server) {
	t.Helper()
	config := params.DefaultTestWebDaemonConfig()
	config.DataDir = t.TempDir()
	t.Setenv("COTOKEN", "")

	daemon, err := NewWebDaemon(config)
	if err != nil {
		t.Fatal(err)
	}
	server := httptest.NewServer(daemon.NewRouter())
	t.Cleanup(func() {
		server.Close()
		daemon.Close()
	})
	return daemon, server
}
