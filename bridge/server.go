// Package bridge serves the JSON API the web dashboard talks to. It owns
// the single browsing/queue session and the poller that refreshes it.
package bridge

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"streammagic/config"
	"streammagic/dlna"
	"streammagic/session"
	"streammagic/store"
)

type Server struct {
	cfg        *config.Config
	log        *zap.Logger
	httpServer *http.Server
	router     *chi.Mux

	store    *store.Store
	registry *dlna.Registry
	devices  *Devices
	session  *session.Session
}

// New wires the session, its collaborators and the router together.
func New(cfg *config.Config, logger *zap.Logger, st *store.Store) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		store:    st,
		registry: dlna.NewRegistry(logger),
		devices:  NewDevices(logger),
	}

	var prefs session.Prefs
	if st != nil {
		prefs = st
	}
	s.session = session.New(
		&mediaBrowser{registry: s.registry},
		newRenderer(s.registry, st, logger),
		prefs,
		logger,
	)
	if cfg.Device.Host != "" {
		s.session.SelectDevice(cfg.Device.Host)
	}

	s.router = chi.NewRouter()
	s.router.Use(CORSMiddleware)
	s.router.Use(LoggingMiddleware(logger))
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s
}

// Session exposes the session for the poller.
func (s *Server) Session() *session.Session {
	return s.session
}

// Devices exposes the device-client cache; it doubles as the poller's
// state source.
func (s *Server) Devices() *Devices {
	return s.devices
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/devices", s.handleListDevices)
		r.Get("/servers", s.handleListServers)
		r.Post("/device/select", s.handleSelectDevice)

		r.Get("/state", s.handleState)
		r.Get("/now-playing", s.handleNowPlaying)

		r.Post("/volume", s.handleVolume)
		r.Post("/mute", s.handleMute)
		r.Post("/power", s.handlePower)
		r.Post("/source", s.handleSource)
		r.Post("/playback", s.handlePlayback)
		r.Post("/preset", s.handlePreset)

		r.Post("/browse", s.handleBrowse)
		r.Post("/browse/more", s.handleLoadMore)
		r.Post("/back", s.handleBack)
		r.Post("/search", s.handleSearch)
		r.Post("/search/clear", s.handleClearSearch)
		r.Get("/view", s.handleView)

		r.Get("/queue", s.handleQueue)
		r.Post("/queue/enqueue", s.handleEnqueue)
		r.Post("/queue/play-all", s.handlePlayAll)
		r.Post("/play", s.handlePlayImmediate)
	})
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.log.Info("starting web bridge", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web bridge")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
