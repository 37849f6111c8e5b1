package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/blackmichael/postpilot/internal/config"
	"github.com/blackmichael/postpilot/internal/domain"
	"github.com/blackmichael/postpilot/internal/events"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the engine facade over HTTP: scheduling, immediate
// publishing, record inspection, and a WebSocket stream of delivery
// events.
type Server struct {
	cfg        *config.Config
	engine     *domain.Engine
	bus        *events.Bus
	logger     *slog.Logger
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// NewServer creates a new HTTP server around the given engine. bus may
// be nil, in which case /ws/events is not registered.
func NewServer(cfg *config.Config, engine *domain.Engine, bus *events.Bus, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		engine: engine,
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /posts", s.handleSchedulePost)
	mux.HandleFunc("GET /posts", s.handleListPosts)
	mux.HandleFunc("GET /posts/{id}", s.handleGetPost)
	mux.HandleFunc("POST /publish", s.handlePublishNow)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	if bus != nil {
		mux.HandleFunc("GET /ws/events", s.handleEvents)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server
// is shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type schedulePostRequest struct {
	Content       string    `json:"content"`
	Platform      string    `json:"platform"`
	ScheduledTime time.Time `json:"scheduled_time"`
}

func (s *Server) handleSchedulePost(w http.ResponseWriter, r *http.Request) {
	var req schedulePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if req.Content == "" || req.Platform == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "content and platform are required")
		return
	}
	if req.ScheduledTime.IsZero() {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "scheduled_time is required")
		return
	}

	id, err := s.engine.SchedulePost(r.Context(), req.Content, req.Platform, req.ScheduledTime)
	if err != nil {
		s.logger.Error("failed to schedule post", "platform", req.Platform, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to schedule post")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type publishNowRequest struct {
	Content   string   `json:"content"`
	Platforms []string `json:"platforms"`
}

type publishOutcomeResponse struct {
	PlatformPostID string `json:"platform_post_id,omitempty"`
	Error          string `json:"error,omitempty"`
	ErrorKind      string `json:"error_kind,omitempty"`
}

func (s *Server) handlePublishNow(w http.ResponseWriter, r *http.Request) {
	var req publishNowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if req.Content == "" || len(req.Platforms) == 0 {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "content and platforms are required")
		return
	}

	outcomes := s.engine.PublishNow(r.Context(), req.Content, req.Platforms)

	resp := make(map[string]publishOutcomeResponse, len(outcomes))
	for platform, outcome := range outcomes {
		o := publishOutcomeResponse{PlatformPostID: outcome.PlatformPostID}
		if outcome.Err != nil {
			perr := domain.ClassifyPublishError(outcome.Err)
			o.Error = perr.Detail
			o.ErrorKind = perr.Kind.String()
		}
		resp[platform] = o
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": resp})
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	post, err := s.engine.GetPost(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NotFound", "no post with id "+id)
			return
		}
		s.logger.Error("failed to get post", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to get post")
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(post))
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	status := domain.Status(r.URL.Query().Get("status"))
	switch status {
	case "", domain.StatusPending, domain.StatusSent, domain.StatusFailed:
	default:
		writeError(w, http.StatusBadRequest, "InvalidRequest", "unknown status "+string(status))
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	posts, err := s.engine.ListPosts(r.Context(), status, limit)
	if err != nil {
		s.logger.Error("failed to list posts", "status", status, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to list posts")
		return
	}

	resp := make([]map[string]any, len(posts))
	for i := range posts {
		resp[i] = toPostResponse(&posts[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": resp})
}

// handleEvents upgrades the connection and streams delivery events until
// the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, cancel := s.bus.Subscribe()
	defer cancel()

	// Drain client frames so we notice the peer closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Info("event stream client connected", "remote", r.RemoteAddr)
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Warn("event stream write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}

// toPostResponse maps a record to the durable field names other tooling
// expects.
func toPostResponse(p *domain.Post) map[string]any {
	resp := map[string]any{
		"id":             p.ID,
		"content":        p.Content,
		"platform":       p.Platform,
		"scheduled_time": p.ScheduledTime.UTC(),
		"status":         p.Status,
		"created_time":   p.CreatedTime.UTC(),
		"retry_count":    p.RetryCount,
	}
	if p.PlatformPostID != "" {
		resp["platform_post_id"] = p.PlatformPostID
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack passes through to the underlying writer so the WebSocket
// upgrade works behind the logging middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}
