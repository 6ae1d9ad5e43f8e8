// Package server exposes the relay over HTTP: a websocket endpoint carrying
// the frame protocol, plus health and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/wapteam1/volatile-chat/internal/metrics"
	"github.com/wapteam1/volatile-chat/internal/registry"
	"github.com/wapteam1/volatile-chat/internal/relay"
	"github.com/wapteam1/volatile-chat/internal/store"
)

const version = "0.1.0"

// Server ties the relay engine to its websocket transport.
type Server struct {
	engine *relay.Engine
	queues store.QueueStore
	logger zerolog.Logger

	upgrader websocket.Upgrader
}

// New creates a Server over the given queue store.
func New(logger zerolog.Logger, queues store.QueueStore) *Server {
	reg := registry.New()
	return &Server{
		engine: relay.New(reg, queues, logger),
		queues: queues,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Identities are self-asserted and payloads are opaque
			// ciphertext; origin checks add nothing here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Router creates and configures the HTTP router.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)

	return r
}

// handleWS upgrades the connection and runs its read loop. Frames on one
// connection are processed in arrival order; connections are independent.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	peer := newWSPeer(conn)
	go peer.writePump()

	sess := &relay.Session{
		Peer:   peer,
		ConnID: uuid.NewString(),
	}

	s.logger.Info().
		Str("conn_id", sess.ConnID).
		Msg("connection opened")

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.engine.HandleFrame(r.Context(), sess, raw)
	}

	s.engine.Disconnect(sess)
	peer.close()

	s.logger.Info().
		Str("conn_id", sess.ConnID).
		Msg("connection closed")
}

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"` // "pass" or "fail"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// handleHealth reports queue store reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	status := "healthy"
	statusCode := http.StatusOK

	start := time.Now()
	if err := s.queues.Ping(ctx); err != nil {
		checks["queue_store"] = Check{Status: "fail", Message: "connection failed"}
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["queue_store"] = Check{Status: "pass", Latency: time.Since(start).String()}
	}

	resp := HealthResponse{
		Status:    status,
		Version:   version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
