package webd

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/rotblauer/catspeed/conceptual"
	"github.com/rotblauer/catspeed/geo/speedtracker"
	"github.com/rotblauer/catspeed/metrics"
	"github.com/rotblauer/catspeed/params"
	"github.com/rotblauer/catspeed/types"
	"github.com/rotblauer/catspeed/types/status"
)

// maxPopulateBytes bounds a populate request body.
const maxPopulateBytes = 32 << 20

func pingPong(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

type webDaemonStatus struct {
	StartedAt time.Time               `json:"started_at"`
	Uptime    string                  `json:"uptime"`
	Config    *params.WebDaemonConfig `json:"config"`
	WSOpen    bool                    `json:"ws_open"`
	WSConns   int                     `json:"ws_conns"`
	LiveCats  int                     `json:"live_cats"`
	Counts    metrics.Counts          `json:"counts"`
}

func (s *WebDaemon) statusReport(w http.ResponseWriter, r *http.Request) {
	st := webDaemonStatus{
		StartedAt: s.started,
		Uptime:    humanize.RelTime(s.started, time.Now(), "", ""),
		WSOpen:    !s.melodyInstance.IsClosed(),
		WSConns:   s.melodyInstance.Len(),
		Config:    s.Config,
		LiveCats:  s.Registry.Len(),
		Counts:    metrics.Snapshot(),
	}
	s.writeJSON(w, st)
}

func getRequestCatID(r *http.Request) conceptual.CatID {
	vars := mux.Vars(r)
	if catID, ok := vars["cat"]; ok {
		return conceptual.CatID(catID)
	}
	return conceptual.CatID(r.URL.Query().Get("cat"))
}

func handleGetCatForRequest(w http.ResponseWriter, r *http.Request) (conceptual.CatID, bool) {
	catID := getRequestCatID(r)
	if catID.Empty() {
		slog.Warn("Missing cat", "url", r.URL)
		http.Error(w, "Missing cat", http.StatusBadRequest)
		return "", false
	}
	return conceptual.NewCatID(catID.String()), true
}

func (s *WebDaemon) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

func (s *WebDaemon) writeStatus(w http.ResponseWriter, st status.Status) {
	b, err := status.Marshal(st)
	if err != nil {
		s.logger.Error("Failed to marshal status", "error", err)
		http.Error(w, "Failed to marshal status", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

// handlePopulate is where cats post their positions.
// It accepts whatever types.DecodePositions does:
// JSON arrays or streams of positions, trackpoints, or GeoJSON features.
// The response is the cat's status after the push. A cat whose trip has
// stopped still gets 200 and its Stopped status; its positions are kept
// only to seed the next trip.
func (s *WebDaemon) handlePopulate(w http.ResponseWriter, r *http.Request) {
	catID, ok := handleGetCatForRequest(w, r)
	if !ok {
		return
	}
	if r.Body == nil {
		s.logger.Error("No request body", "method", r.Method, "url", r.URL)
		http.Error(w, "Please send a request body", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPopulateBytes))
	if err != nil {
		s.logger.Error("Failed to read request body", "error", err)
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	positions, err := types.DecodePositions(body)
	if err != nil {
		s.logger.Warn("Failed to decode positions", "cat", catID, "error", err)
		http.Error(w, "Failed to decode positions", http.StatusBadRequest)
		return
	}

	cat, err := s.Registry.Get(r.Context(), catID)
	if err != nil {
		s.logger.Error("Failed to get cat", "cat", catID, "error", err)
		http.Error(w, "Failed to get cat", http.StatusInternalServerError)
		return
	}
	st, err := cat.Populate(r.Context(), positions)
	if err != nil && !errors.Is(err, speedtracker.ErrInactive) {
		s.logger.Error("Failed to populate", "cat", catID, "error", err)
		http.Error(w, "Failed to populate", http.StatusInternalServerError)
		return
	}
	s.logger.Info("Populated", "cat", catID, "positions", len(positions), "status", st)
	s.writeStatus(w, st)
}

// catStart starts a new trip for the cat.
func (s *WebDaemon) catStart(w http.ResponseWriter, r *http.Request) {
	catID, ok := handleGetCatForRequest(w, r)
	if !ok {
		return
	}
	cat, err := s.Registry.Get(r.Context(), catID)
	if err != nil {
		s.logger.Error("Failed to get cat", "cat", catID, "error", err)
		http.Error(w, "Failed to get cat", http.StatusInternalServerError)
		return
	}
	if err := cat.Start(r.Context()); err != nil {
		s.logger.Warn("Failed to start cat", "cat", catID, "error", err)
	}
	s.writeStatus(w, cat.Status())
}

// catStatus returns the cat's status, from its live tracker if it has one,
// else from the last-known cache. Unknown cats get 204.
func (s *WebDaemon) catStatus(w http.ResponseWriter, r *http.Request) {
	catID, ok := handleGetCatForRequest(w, r)
	if !ok {
		return
	}
	if cat, ok := s.Registry.Peek(catID); ok {
		s.writeStatus(w, cat.Status())
		return
	}
	if st, ok := s.backend.LastKnown.Get(catID); ok {
		s.writeStatus(w, st)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// catSummary summarizes a live cat's current trip.
func (s *WebDaemon) catSummary(w http.ResponseWriter, r *http.Request) {
	catID, ok := handleGetCatForRequest(w, r)
	if !ok {
		return
	}
	cat, ok := s.Registry.Peek(catID)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, cat.Summary())
}

// lastKnown returns every cat's last known status.
func (s *WebDaemon) lastKnown(w http.ResponseWriter, r *http.Request) {
	out := map[conceptual.CatID]json.RawMessage{}
	for catID, st := range s.backend.LastKnown.All() {
		b, err := status.Marshal(st)
		if err != nil {
			s.logger.Warn("Failed to marshal status", "cat", catID, "error", err)
			continue
		}
		out[catID] = b
	}
	s.writeJSON(w, out)
}
