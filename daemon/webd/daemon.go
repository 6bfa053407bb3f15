package webd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/olahol/melody"
	"github.com/rotblauer/catspeed/api"
	"github.com/rotblauer/catspeed/metrics"
	"github.com/rotblauer/catspeed/metrics/influxdb"
	"github.com/rotblauer/catspeed/params"
	"github.com/rotblauer/catspeed/state"
)

type WebDaemon struct {
	Config   *params.WebDaemonConfig
	Registry *api.Registry

	backend        *api.Backend
	logger         *slog.Logger
	melodyInstance *melody.Melody
	exporter       *influxdb.Exporter
	started        time.Time

	unsubscribers []func()
	background    sync.WaitGroup
}

// NewWebDaemon builds the daemon's backend: the cat registry, and,
// when configured, the state db under the data dir and the InfluxDB exporter.
func NewWebDaemon(config *params.WebDaemonConfig) (*WebDaemon, error) {
	if config == nil {
		config = params.DefaultWebDaemonConfig()
	}
	backend := api.NewBackend(config.Tracker)
	if config.DataDir != "" {
		st, err := state.Open(config.DataDir)
		if err != nil {
			return nil, err
		}
		backend.State = st
	}
	size := config.RegistrySize
	if size <= 0 {
		size = params.DefaultRegistrySize
	}
	registry, err := api.NewRegistry(size, backend)
	if err != nil {
		if backend.State != nil {
			backend.State.Close()
		}
		return nil, err
	}
	d := &WebDaemon{
		Config:   config,
		Registry: registry,
		backend:  backend,
		logger:   slog.With("d", "web"),
		started:  time.Now(),
	}
	if config.Influx.Enabled() {
		d.exporter = influxdb.NewExporter(config.Influx)
	}
	return d, nil
}

// Run serves HTTP until the context is done, then shuts down,
// snapshotting every live cat.
func (s *WebDaemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	router := s.NewRouter()

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		metrics.LogEvery(ctx, time.Minute)
	}()
	if s.exporter != nil {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			s.exporter.Run(ctx, s.backend.Feeds)
		}()
	}

	listener, err := net.Listen(s.Config.Network, s.Config.Address)
	if err != nil {
		cancel()
		s.background.Wait()
		s.Close()
		return err
	}
	s.logger.Info("Starting web daemon", "network", s.Config.Network, "address", listener.Addr().String())

	server := &http.Server{Handler: router}
	go func() {
		<-ctx.Done()
		s.logger.Info("Web daemon shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Server shutdown", "error", err)
		}
	}()

	err = server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	cancel()
	s.background.Wait()
	s.Close()
	return err
}

// Close releases what the daemon holds; live cats are snapshotted on the way out.
// Run calls it on return.
func (s *WebDaemon) Close() {
	for _, unsubscribe := range s.unsubscribers {
		unsubscribe()
	}
	if s.melodyInstance != nil {
		if err := s.melodyInstance.Close(); err != nil {
			s.logger.Warn("Failed to close websockets", "error", err)
		}
	}
	s.Registry.Close()
	if s.exporter != nil {
		if err := s.exporter.Close(); err != nil {
			s.logger.Warn("InfluxDB exporter closed with error", "error", err)
		}
	}
	if s.backend.State != nil {
		if err := s.backend.State.Close(); err != nil {
			s.logger.Error("Failed to close state", "error", err)
		}
	}
}

func (s *WebDaemon) NewRouter() *mux.Router {

	// StrictSlash false: "/path" and "/path/" are different routes,
	// so both are registered where clients use both.
	router := mux.NewRouter().StrictSlash(false)
	router.Use(loggingMiddleware)

	// Handle websocket.
	s.initMelody()
	router.Path("/socat").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = s.melodyInstance.HandleRequest(w, r)
	})

	apiRoutes := router.NewRoute().Subrouter()

	// All API routes use permissive CORS settings.
	apiRoutes.Use(permissiveCorsMiddleware)

	// /ping is a simple server healthcheck endpoint
	apiRoutes.Path("/ping").HandlerFunc(pingPong)

	apiJSONRoutes := apiRoutes.NewRoute().Subrouter()
	jsonMiddleware := contentTypeMiddlewareFunc("application/json")
	apiJSONRoutes.Use(jsonMiddleware)

	apiJSONRoutes.Path("/status").HandlerFunc(s.statusReport).Methods(http.MethodGet)
	apiJSONRoutes.Path("/last").HandlerFunc(s.lastKnown).Methods(http.MethodGet)
	apiJSONRoutes.Path("/{cat}/status").HandlerFunc(s.catStatus).Methods(http.MethodGet)
	apiJSONRoutes.Path("/{cat}/summary").HandlerFunc(s.catSummary).Methods(http.MethodGet)

	authenticatedAPIRoutes := apiJSONRoutes.NewRoute().Subrouter()
	authenticatedAPIRoutes.Use(tokenAuthenticationMiddleware)

	authenticatedAPIRoutes.Path("/populate/").HandlerFunc(s.handlePopulate).Methods(http.MethodPost)
	authenticatedAPIRoutes.Path("/populate").HandlerFunc(s.handlePopulate).Methods(http.MethodPost)
	authenticatedAPIRoutes.Path("/{cat}/start").HandlerFunc(s.catStart).Methods(http.MethodPost)

	return router
}
