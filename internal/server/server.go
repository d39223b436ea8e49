// Package server exposes the conversational backend's HTTP surface: the
// NDJSON-streaming chat endpoint, a session bootstrap endpoint, health and
// metrics endpoints.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaharia-lab/tag-backend/internal/orchestrator"
	"github.com/shaharia-lab/tag-backend/internal/schemas"
)

// Server is the conversational backend's HTTP server.
type Server struct {
	orch       *orchestrator.Orchestrator
	port       int
	httpServer *http.Server
}

// New builds a Server listening on port, backed by orch.
func New(orch *orchestrator.Orchestrator, port int) *Server {
	s := &Server{orch: orch, port: port}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "x-user-context"},
		AllowCredentials: false,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Post("/session/start", s.handleSessionStart)
	r.Post("/query", s.handleChat)
	r.Post("/chat", s.handleChat)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
	return s
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSessionStart mints a fresh session_id for a new conversation.
func (s *Server) handleSessionStart(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": uuid.New().String(),
		"message":    "Session started. Ask about tasks, assets, facilities, users, or schedules.",
	})
}

// handleChat is the shared handler for POST /query and POST /chat: decodes
// the request, merges the x-user-context header, and streams the
// orchestrator's NDJSON response.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req schemas.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing required field: message"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	applyUserContext(&req, r.Header.Get("x-user-context"))

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	var flush func()
	if flusher != nil {
		flush = flusher.Flush
	}

	if err := s.orch.Handle(r.Context(), req, w, flush); err != nil {
		_ = orchestrator.WriteError(w, err.Error())
		if flush != nil {
			flush()
		}
	}
}

// applyUserContext decodes the x-user-context header (base64-encoded JSON
// object) and merges its user_id/user_role into req, and every other key
// into req.Metadata. A malformed or absent header is logged nowhere and
// simply ignored; the endpoint never fails a request over this header.
func applyUserContext(req *schemas.ChatRequest, header string) {
	if header == "" {
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return
	}
	var ctx map[string]any
	if err := json.Unmarshal(decoded, &ctx); err != nil {
		return
	}

	if req.Metadata == nil {
		req.Metadata = map[string]any{}
	}
	for k, v := range ctx {
		switch k {
		case "user_id":
			if s, ok := v.(string); ok {
				req.UserID = s
			}
		case "user_role":
			if s, ok := v.(string); ok {
				req.UserRole = s
			}
		default:
			req.Metadata[k] = v
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
