/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package debugserver is an optional, loopback-only HTTP devtools
// server: a snapshot endpoint, a Prometheus scrape endpoint, and a
// websocket that pushes each full PlayerStateData snapshot to a
// connected devtools client. It has no public API surface of its own — cmd/mediafoxctl
// binds it to 127.0.0.1 by default and it is never meant to sit behind
// a load balancer.
package debugserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mediafoxhq/mediafox/internal/store"
	"github.com/mediafoxhq/mediafox/internal/telemetry"
)

// Engine is the subset of internal/engine.Engine the debug server
// observes. Defined here rather than imported to avoid debugserver
// depending on engine's full surface.
type Engine interface {
	GetState() store.PlayerStateData
	Subscribe(fn func(store.PlayerStateData)) store.Subscription
}

// Server serves /healthz, /state, /metrics and /state/stream for one
// Engine.
type Server struct {
	cfg        Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	eng        Engine

	mu   sync.Mutex
	subs map[*subscriber]struct{}

	unsubscribe func()
}

// Config configures a Server.
type Config struct {
	Bind string
	// ServiceName is used for the otelhttp span name prefix.
	ServiceName string
}

func (c Config) withDefaults() Config {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:9900"
	}
	if c.ServiceName == "" {
		c.ServiceName = "mediafox-debugserver"
	}
	return c
}

// New constructs a Server wired to eng's state. It does not start
// listening until Start is called.
func New(eng Engine, cfg Config, logger zerolog.Logger) *Server {
	cfg = cfg.withDefaults()
	logger = logger.With().Str("component", "debugserver").Logger()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(telemetry.MetricsMiddleware)

	s := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		eng:    eng,
		subs:   make(map[*subscriber]struct{}),
	}

	s.unsubscribe = eng.Subscribe(s.broadcast).Unsubscribe
	s.configureRoutes(eng)

	s.httpServer = &http.Server{
		Addr:         cfg.Bind,
		Handler:      otelhttp.NewHandler(router, cfg.ServiceName),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // /state/stream is long-lived
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. It blocks until the context is cancelled or
// the listener fails, matching net/http.Server.ListenAndServe's
// contract for the caller to run it in its own goroutine.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return s.Close()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("debugserver: listen %s: %w", s.cfg.Bind, err)
		}
		return nil
	}
}

// Close shuts down the HTTP server and unsubscribes from engine state.
func (s *Server) Close() error {
	s.unsubscribe()

	s.mu.Lock()
	for sub := range s.subs {
		close(sub.ch)
	}
	s.subs = make(map[*subscriber]struct{})
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) configureRoutes(eng Engine) {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(eng.GetState()); err != nil {
			s.logger.Warn().Err(err).Msg("failed to encode state snapshot")
		}
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.router.Get("/state/stream", s.handleStateStream)
}

// subscriber is one connected /state/stream websocket client.
type subscriber struct {
	ch chan store.PlayerStateData
}

// broadcast fans the latest snapshot out to every connected websocket
// client without blocking the Store's notify loop: a slow/absent
// reader drops the update rather than backing up the engine.
func (s *Server) broadcast(next store.PlayerStateData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		select {
		case sub.ch <- next:
		default:
			s.logger.Debug().Msg("state stream subscriber too slow, dropping update")
		}
	}
}

func (s *Server) addSubscriber() *subscriber {
	sub := &subscriber{ch: make(chan store.PlayerStateData, 8)}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

func (s *Server) removeSubscriber(sub *subscriber) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}
