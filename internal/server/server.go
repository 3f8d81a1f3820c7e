// Package server exposes scan ingestion, the dashboard state and the
// live websocket over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/tracker"
)

const maxBodyBytes = 64 << 10

// Ingester accepts scans posted over HTTP
type Ingester interface {
	Ingest(ctx context.Context, s tracker.ScanInput) error
}

// Hub serves websocket clients
type Hub interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	ClientCount() int
}

// Server is the tracker HTTP API
type Server struct {
	storage  *storage.Storage
	ingester Ingester
	hub      Hub
	metrics  http.Handler
	log      *slog.Logger

	server *http.Server
}

// NewServer creates a new HTTP server
func NewServer(store *storage.Storage, in Ingester, hub Hub, metrics http.Handler, log *slog.Logger) *Server {
	return &Server{
		storage:  store,
		ingester: in,
		hub:      hub,
		metrics:  metrics,
		log:      log,
	}
}

// Handler returns the request router
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/scans", s.handleScans)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/ws", s.hub.ServeWS)
	mux.Handle("/metrics", s.metrics)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start serves on port until ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info("starting http server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var in tracker.ScanInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		s.log.Warn("invalid scan payload", "error", err)
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	err := s.ingester.Ingest(r.Context(), in)
	switch {
	case errors.Is(err, tracker.ErrMalformedScan):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.log.Error("ingest scan", "address", in.TokenAddress, "error", err)
		writeError(w, http.StatusBadGateway, "scan not recorded")
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tokens, err := s.storage.ActiveTokens(r.Context())
	if err != nil {
		s.log.Error("load active tokens", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, BuildState(tokens, s.hub.ClientCount()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
