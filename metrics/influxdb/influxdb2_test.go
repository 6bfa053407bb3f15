package influxdb

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rotblauer/catspeed/conceptual"
	"github.com/rotblauer/catspeed/events"
	"github.com/rotblauer/catspeed/geo/speedtracker"
	"github.com/rotblauer/catspeed/params"
	"github.com/rotblauer/catspeed/types/status"
)

func TestStatusPoint(t *testing.T) {
	at := time.UnixMilli(1734733193000)
	rye := conceptual.NewCatID("rye")
	cases := []struct {
		status status.Status
		want   []string // nil for no point
	}{
		{status.Loading{}, nil},
		{status.Ready{Speed: 12.34}, []string{"catspeed,", "cat=rye", "status=ready", " speed=12.34 "}},
		{status.NewStopped(8.1), []string{"catspeed,", "status=stopped", " average=8.1 "}},
		{status.Stopped{}, nil},
		{status.Error{Cause: speedtracker.ErrPermissionDenied},
			[]string{"status=error", "kind=permission_denied", `error="Error(location permission denied)"`}},
	}
	for _, c := range cases {
		p := StatusPoint(events.CatStatus{Cat: rye, Status: c.status}, at)
		if c.want == nil {
			if p != nil {
				t.Errorf("%v: want no point, got %s", c.status, write.PointToLineProtocol(p, time.Millisecond))
			}
			continue
		}
		if p == nil {
			t.Fatalf("%v: want point", c.status)
		}
		got := strings.TrimSpace(write.PointToLineProtocol(p, time.Millisecond))
		if !strings.HasSuffix(got, " 1734733193000") {
			t.Errorf("%v: want millisecond timestamp, got %s", c.status, got)
		}
		for _, w := range c.want {
			if !strings.Contains(got, w) {
				t.Errorf("%v: want %q in %s", c.status, w, got)
			}
		}
	}
}

func TestExportTrips(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/write" {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	config := &params.InfluxConfig{URL: srv.URL, Token: "t", Org: "cats", Bucket: "speeds"}
	err := ExportTrips(config, []speedtracker.TripSummary{
		{ID: "a", Cat: "rye", StartMillis: 1000, EndMillis: 61000, Samples: 13, AverageKmh: 12.5, EndGeohash: "c2b2q7d"},
		{ID: "b", Cat: "ia", StartMillis: 2000, EndMillis: 62000, Samples: 3, AverageKmh: 2},
	})
	if err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	all := strings.Join(bodies, "\n")
	if n := strings.Count(all, "cattrip,"); n != 2 {
		t.Fatalf("want 2 trip points, got %d in %q", n, all)
	}
	if !strings.Contains(all, "cat=rye,end_geohash=c2b2q7d") {
		t.Errorf("missing tags in %q", all)
	}
	if !strings.Contains(all, "duration_s=60") {
		t.Errorf("missing duration in %q", all)
	}
}

func TestExportTrips_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"unauthorized","message":"unauthorized access"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	config := &params.InfluxConfig{URL: srv.URL, Token: "bad", Org: "cats", Bucket: "speeds"}
	err := ExportTrips(config, []speedtracker.TripSummary{{ID: "a", Cat: "rye", EndMillis: 1000}})
	if err == nil {
		t.Fatal("want write error")
	}
}
