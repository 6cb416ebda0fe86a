/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes a player over HTTP: tiles, playback control,
// status and a websocket event stream.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/timetile/internal/events"
	"github.com/friendsincode/timetile/internal/logbuffer"
	"github.com/friendsincode/timetile/internal/player"
	"github.com/friendsincode/timetile/internal/telemetry"
)

// DefaultTileTimeout bounds how long a tile request waits for its fetch.
const DefaultTileTimeout = 30 * time.Second

// EventBus is satisfied by events.Bus and eventbus.Bus.
type EventBus interface {
	events.Publisher
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
}

// Options configures a Server.
type Options struct {
	Addr        string
	Player      *player.Player
	Bus         EventBus
	LogBuffer   *logbuffer.Buffer
	TileTimeout time.Duration
	// ServiceName labels request spans.
	ServiceName string
	Logger      zerolog.Logger
}

// Server bundles the router and the HTTP server.
type Server struct {
	player      *player.Player
	bus         EventBus
	logBuffer   *logbuffer.Buffer
	tileTimeout time.Duration
	logger      zerolog.Logger

	router     chi.Router
	httpServer *http.Server
}

// New builds the router. Bus and LogBuffer are optional.
func New(opts Options) *Server {
	tileTimeout := opts.TileTimeout
	if tileTimeout <= 0 {
		tileTimeout = DefaultTileTimeout
	}
	service := opts.ServiceName
	if service == "" {
		service = "timetile-api"
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware(service))
	router.Use(telemetry.MetricsMiddleware)
	// Event streams are long-lived; everything else gets a deadline.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(tileTimeout + 5*time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	s := &Server{
		player:      opts.Player,
		bus:         opts.Bus,
		logBuffer:   opts.LogBuffer,
		tileTimeout: tileTimeout,
		logger:      opts.Logger.With().Str("component", "http").Logger(),
		router:      router,
	}
	s.configureRoutes()

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		// Event streams manage their own deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer returns the configured http.Server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", telemetry.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/tiles/{level}/{x}/{y}", s.handleTile)
		r.Post("/prefetch", s.handlePrefetch)
		r.Get("/status", s.handleStatus)
		r.Post("/clock", s.handleClock)
		r.Get("/events", s.handleEvents)
		r.Get("/logs", s.handleLogs)
	})
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")
		// Tiles are consumed cross-origin by map clients.
		if strings.HasPrefix(r.URL.Path, "/api/v1/tiles/") {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
