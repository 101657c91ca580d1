// Package httpapi exposes the ingest/alerts/metrics HTTP surface of
// spec.md §6 over gorilla/mux. Handlers are thin: decode, call the
// pipeline or alert manager, encode. Grounded on the teacher's
// internal/interfaces/http/server.go router/middleware setup and
// internal/interfaces/http/handlers/handlers.go's writeJSON/writeError
// helpers.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/ecomguard/telemetry-guardrail/internal/alerts"
	"github.com/ecomguard/telemetry-guardrail/internal/archive"
	"github.com/ecomguard/telemetry-guardrail/internal/pipeline"
	"github.com/ecomguard/telemetry-guardrail/internal/types"
)

// Server is the read/write HTTP surface in front of a Pipeline.
type Server struct {
	router   *mux.Router
	server   *http.Server
	pipeline *pipeline.Pipeline
	config   Config
	archive  *archive.Writer
}

// SetArchive attaches a violation archive: every ingested record's
// violations are appended to it after the pipeline processes them. Nil
// is a valid value and disables archiving (the default).
func (s *Server) SetArchive(w *archive.Writer) {
	s.archive = w
}

// Config holds server configuration.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer builds a Server wired to p, without binding a listener yet.
func NewServer(cfg Config, p *pipeline.Pipeline) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		pipeline: p,
		config:   cfg,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/ingest", s.handleIngest).Methods("POST")
	api.HandleFunc("/alerts", s.handleListAlerts).Methods("GET")
	api.HandleFunc("/alerts/{id}/acknowledge", s.handleAcknowledge).Methods("POST")
	api.HandleFunc("/alerts/{id}/resolve", s.handleResolve).Methods("POST")

	// Prometheus exposition is plain text, not JSON: mounted outside
	// the jsonContentTypeMiddleware subrouter.
	s.router.Handle("/metrics", s.pipeline.Metrics.Handler()).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

// Start binds the listener and serves until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting guardrail http server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWrapper{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type statusWrapper struct {
	http.ResponseWriter
	status int
}

func (w *statusWrapper) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func requestID(r *http.Request) string {
	if v, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return v
	}
	return "unknown"
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error:     http.StatusText(status),
		Code:      code,
		Message:   message,
		RequestID: requestID(r),
		Timestamp: time.Now().UTC(),
	})
}

type errorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "endpoint_not_found", "the requested endpoint does not exist")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// ingestRequest mirrors spec.md §6's ingest surface request shape.
type ingestRequest struct {
	Timestamp time.Time `json:"timestamp"`
	SKU       string    `json:"sku"`
	Price     float64   `json:"price"`
	Stock     int64     `json:"stock"`
	Views     int64     `json:"views"`
	AddToCart int64     `json:"add_to_cart"`
	Purchases int64     `json:"purchases"`
	Referrer  string    `json:"referrer,omitempty"`
}

type ingestResponse struct {
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	Violations    []types.Violation `json:"violations"`
	AlertsCreated int               `json:"alerts_created"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return
	}

	rec := types.TelemetryRecord{
		Timestamp: req.Timestamp,
		SKU:       req.SKU,
		Price:     req.Price,
		Stock:     req.Stock,
		Views:     req.Views,
		AddToCart: req.AddToCart,
		Purchases: req.Purchases,
		Referrer:  req.Referrer,
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	result := s.pipeline.Ingest(r.Context(), rec)
	if s.archive != nil && len(result.Violations) > 0 {
		if err := s.archive.AppendAll(result.Violations); err != nil {
			log.Warn().Err(err).Msg("failed to append violations to archive")
		}
	}
	writeJSON(w, http.StatusOK, ingestResponse{
		Success:       result.Success,
		Message:       result.Message,
		Violations:    result.Violations,
		AlertsCreated: result.AlertsCreated,
	})
}

type alertsResponse struct {
	Alerts []types.Alert `json:"alerts"`
	Total  int           `json:"total"`
	Stats  alerts.Stats  `json:"stats"`
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := alerts.Filter{
		Severity:  types.Severity(q.Get("severity")),
		AlertType: types.AlertType(q.Get("alert_type")),
		SKU:       q.Get("sku"),
	}
	if v := q.Get("resolved"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			filter.Resolved = &parsed
		}
	}
	if v := q.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}

	matched, stats := s.pipeline.Alerts.Get(filter)
	writeJSON(w, http.StatusOK, alertsResponse{
		Alerts: matched,
		Total:  len(matched),
		Stats:  stats,
	})
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.pipeline.Alerts.Acknowledge(id) {
		writeError(w, r, http.StatusNotFound, "alert_not_found", fmt.Sprintf("no alert with id %s", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alert_id": id, "acknowledged": true})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.pipeline.Alerts.Resolve(id) {
		writeError(w, r, http.StatusNotFound, "alert_not_found", fmt.Sprintf("no alert with id %s", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alert_id": id, "resolved": true})
}

// Addr reports the bound address, usable once Start has been called or
// for tests that only need the configured address.
func (s *Server) Addr() string {
	return s.server.Addr
}
