/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires the engine together: database, services, HTTP
// router, metrics endpoint and background workers.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/coupdefeu/coupdefeu/internal/api"
	"github.com/coupdefeu/coupdefeu/internal/config"
	"github.com/coupdefeu/coupdefeu/internal/db"
	"github.com/coupdefeu/coupdefeu/internal/events"
	"github.com/coupdefeu/coupdefeu/internal/loads"
	"github.com/coupdefeu/coupdefeu/internal/scheduler"
	"github.com/coupdefeu/coupdefeu/internal/store"
	"github.com/coupdefeu/coupdefeu/internal/telemetry"
	"github.com/coupdefeu/coupdefeu/internal/timeline"
)

// Server owns the process-level pieces and their shutdown order.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger
	router chi.Router
	bus    *events.Bus

	database  *gorm.DB
	store     *store.Store
	scheduler *scheduler.Service
	timeline  *timeline.Service
	loads     *loads.Service
	apiSvc    *api.API

	httpServer    *http.Server
	metricsServer *http.Server

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
	closers  []func() error
}

// New builds the full dependency graph. Nothing starts listening yet; Run
// does that.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(telemetry.TracingMiddleware("coupdefeu-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Websocket upgrades outlive any sane request timeout.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.apiSvc.Routes(srv.router)
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", telemetry.Handler())
	srv.metricsServer = &http.Server{
		Addr:              cfg.MetricsBind,
		Handler:           metricsMux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	return srv, nil
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if err := db.RegisterCallbacks(database); err != nil {
		return fmt.Errorf("register db callbacks: %w", err)
	}
	s.database = database
	s.DeferClose(func() error { return db.Close(database) })

	profile, err := config.LoadSchedulingProfile(s.cfg.ProfilePath)
	if err != nil {
		return fmt.Errorf("load scheduling profile: %w", err)
	}

	s.store = store.New(database)
	s.scheduler = scheduler.New(s.store, profile.Demand, profile.Capacity, s.cfg.SchedulerHorizon, s.logger)
	s.timeline = timeline.New(s.store, profile.Demand, profile.Capacity, s.logger)
	s.loads = loads.New(s.store, profile.Demand, s.bus, s.logger)
	s.apiSvc = api.New(s.store, s.scheduler, s.timeline, s.loads, s.bus, s.cfg.SchedulerHorizon, s.logger)
	return nil
}

// Run starts the HTTP and metrics listeners and blocks until the context is
// cancelled or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		s.logger.Info().Str("addr", s.metricsServer.Addr).Msg("metrics server listening")
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("http shutdown error")
	}
	if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("metrics shutdown error")
	}
	return nil
}

// Router exposes the HTTP router, mainly for tests.
func (s *Server) Router() chi.Router {
	return s.router
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Periodic timeline tick: the grid drifts as time passes even when no
	// rows change, so stream clients get a refresh cue once a minute.
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.bus.Publish(events.EventTimelineChanged, events.Payload{"reason": "clock"})
			}
		}
	}()

	// Connection pool gauge refresh.
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.database)
			}
		}
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.bgWG.Wait()
}
