// Package api exposes the orchestrator over HTTP and WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Chative-insight/server/internal/agent/model"
	errx "github.com/Chative-insight/server/internal/core/error"
	logx "github.com/Chative-insight/server/pkg/logger"
)

// Agent is the orchestration surface the transport needs.
type Agent interface {
	ProcessQuery(ctx context.Context, query, sessionID string) *model.QueryResult
	GetHistory(ctx context.Context, sessionID string, limit int) []model.Turn
	ClearSession(ctx context.Context, sessionID string)
	GetProfile(ctx context.Context, sessionID string) model.Profile
	SessionStats(ctx context.Context, sessionID string) model.SessionStats
	ActiveSessions() int
}

// TableStats reports row counts of the structured data store.
type TableStats interface {
	TableCounts(ctx context.Context) (map[string]int64, error)
}

// maximum accepted query length in bytes
const maxQueryBytes = 4096

// QueryRequest is the body of POST /query and of WebSocket messages.
type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// HistoryResponse is the body of GET /conversation/{session_id}.
type HistoryResponse struct {
	SessionID string             `json:"session_id"`
	History   []model.Turn       `json:"history"`
	Stats     model.SessionStats `json:"stats"`
}

// WSMessage is one frame sent over /ws/{session_id}.
type WSMessage struct {
	Type    string             `json:"type"`
	Content string             `json:"content,omitempty"`
	Data    *model.QueryResult `json:"data,omitempty"`
}

// Server is the HTTP API server.
type Server struct {
	address  string
	agent    Agent
	tables   TableStats
	origins  map[string]bool
	upgrader websocket.Upgrader
	server   *http.Server
	started  time.Time
}

// NewServer creates a server for agent. tables may be nil. corsOrigins is a
// comma separated allow list; "*" allows any origin.
func NewServer(address string, agent Agent, tables TableStats, corsOrigins string) *Server {
	s := &Server{
		address: address,
		agent:   agent,
		tables:  tables,
		origins: map[string]bool{},
		started: time.Now(),
	}
	for _, o := range strings.Split(corsOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			s.origins[o] = true
		}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.allowed(origin)
		},
	}
	return s
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("GET /conversation/{session_id}", s.handleHistory)
	mux.HandleFunc("DELETE /conversation/{session_id}", s.handleClear)
	mux.HandleFunc("GET /session/{session_id}/profile", s.handleProfile)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws/{session_id}", s.handleWebSocket)

	return s.withLogging(s.withCORS(mux))
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
	}
	logx.Info().Str("address", s.address).Msg("starting API server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) allowed(origin string) bool {
	return s.origins["*"] || s.origins[origin]
}

// ================ Middleware ================

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.allowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
		logx.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// ================ Handlers ================

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateQuery(req.Query); msg != "" {
		errorResponse(w, http.StatusBadRequest, msg)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	result := s.agent.ProcessQuery(r.Context(), req.Query, req.SessionID)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errorResponse(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		SessionID: id,
		History:   s.agent.GetHistory(r.Context(), id, limit),
		Stats:     s.agent.SessionStats(r.Context(), id),
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	s.agent.ClearSession(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Conversation " + id + " cleared"})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"profile":    s.agent.GetProfile(r.Context(), id),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"active_sessions": s.agent.ActiveSessions(),
		"uptime_seconds":  int64(time.Since(s.started).Seconds()),
	}
	if s.tables != nil {
		counts, err := s.tables.TableCounts(r.Context())
		if err != nil {
			appErrorResponse(w, errx.New(err, http.StatusInternalServerError, errx.SystemErrorMessage))
			return
		}
		out["tables"] = counts
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	logx.Debug().Str("session_id", sessionID).Msg("websocket connected")

	for {
		var req QueryRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logx.Debug().Err(err).Str("session_id", sessionID).Msg("websocket read ended")
			}
			return
		}
		if msg := validateQuery(req.Query); msg != "" {
			if err := conn.WriteJSON(WSMessage{Type: "error", Content: msg}); err != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(WSMessage{Type: "status", Content: "processing"}); err != nil {
			return
		}
		result := s.agent.ProcessQuery(r.Context(), req.Query, sessionID)
		if err := conn.WriteJSON(WSMessage{Type: "result", Data: result}); err != nil {
			logx.Debug().Err(err).Str("session_id", sessionID).Msg("websocket write failed")
			return
		}
	}
}

func validateQuery(q string) string {
	switch {
	case strings.TrimSpace(q) == "":
		return "query is required"
	case len(q) > maxQueryBytes:
		return "query is too long"
	}
	return ""
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Debug().Err(err).Msg("failed to write JSON response")
	}
}

// appErrorResponse logs err and answers with its safe message. Errors that
// are not an AppError become a 500 with the generic system message.
func appErrorResponse(w http.ResponseWriter, err error) {
	var appErr *errx.AppError
	if !errors.As(err, &appErr) {
		appErr = errx.New(err, http.StatusInternalServerError, errx.SystemErrorMessage)
	}
	logx.Warn().Err(appErr.Err).Int("status", appErr.Status).Msg(appErr.Message)
	errorResponse(w, appErr.Status, appErr.Message)
}

func errorResponse(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	})
}
