// Package http serves the travel assistant over HTTP and WebSocket.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scttfrdmn/travelrouter/adapter/codec"
	"github.com/scttfrdmn/travelrouter/observability"
	"github.com/scttfrdmn/travelrouter/session"
)

const maxRequestBytes = 64 << 10

// Error codes carried in error bodies and envelopes.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeTimeout        = "TIMEOUT"
	CodeInternal       = "INTERNAL_ERROR"
)

// Assistant is the conversational backend the server exposes.
type Assistant interface {
	Ask(ctx context.Context, sessionID, utterance string) (session.Outcome, error)
	End(ctx context.Context, sessionID string) error
}

// Config configures a Server.
type Config struct {
	Addr    string
	Version string

	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler

	Logger *slog.Logger
}

// Server exposes an Assistant over HTTP.
type Server struct {
	assistant Assistant
	server    *http.Server
	mux       *http.ServeMux
	upgrader  websocket.Upgrader
	version   string
	started   time.Time
	logger    *slog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewServer creates a Server for assistant.
func NewServer(assistant Assistant, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	mux := http.NewServeMux()
	s := &Server{
		assistant: assistant,
		mux:       mux,
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		version: cfg.Version,
		started: time.Now(),
		logger:  cfg.Logger.With("component", "http"),
		conns:   make(map[*websocket.Conn]struct{}),
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleEndSession)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

// Shutdown stops accepting requests, closes WebSocket clients and waits for
// in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
	s.mu.Unlock()

	s.logger.Info("HTTP server stopping")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodHead && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.started)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"version":        s.version,
		"uptime":         uptime.Round(time.Second).String(),
		"uptime_seconds": int64(uptime.Seconds()),
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := observability.ExtractHTTP(r.Context(), r.Header)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		s.sendError(w, CodeInvalidRequest, "failed to read request body")
		return
	}
	if len(body) > maxRequestBytes {
		s.sendError(w, CodeInvalidRequest, "request body too large")
		return
	}

	var req codec.QueryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.sendError(w, CodeInvalidRequest, "request body must be JSON with a \"query\" field")
		return
	}

	resp, err := s.ask(ctx, req)
	if err != nil {
		s.logger.WarnContext(ctx, "query failed", "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			s.sendError(w, CodeTimeout, "request timed out")
			return
		}
		s.sendError(w, CodeInternal, "failed to answer query")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) ask(ctx context.Context, req codec.QueryRequest) (codec.QueryResponse, error) {
	out, err := s.assistant.Ask(ctx, req.SessionID, req.Query)
	if err != nil {
		return codec.QueryResponse{}, err
	}
	resp := codec.NewQueryResponse(out.Reply, out.Resolved, out.SessionID)
	resp.Path = out.Decision.Path
	resp.Rule = out.Decision.Rule
	return resp, nil
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.assistant.End(r.Context(), id); err != nil {
		s.logger.WarnContext(r.Context(), "ending session failed", "session_id", id, "error", err)
		s.sendError(w, CodeInternal, "failed to end session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWebSocket runs a chat over one connection. Requests without a
// session_id continue the connection's current session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.track(conn, true)
	defer func() {
		s.track(conn, false)
		conn.Close()
	}()

	ctx := r.Context()
	var sessionID string

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		reply, err := s.handleEnvelope(ctx, data, &sessionID)
		if err != nil {
			s.logger.Warn("failed to build websocket reply", "error", err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}

func (s *Server) handleEnvelope(ctx context.Context, data []byte, sessionID *string) ([]byte, error) {
	env, err := codec.DecodeBytes(data)
	if err != nil {
		return errorEnvelope("unknown", CodeInvalidMessage, err.Error())
	}
	if env.Type != codec.TypeRequest {
		return errorEnvelope(env.ID, CodeInvalidMessage, "expected a request envelope")
	}

	var req codec.QueryRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return errorEnvelope(env.ID, CodeInvalidMessage, "invalid query payload")
	}
	if req.SessionID == "" {
		req.SessionID = *sessionID
	}

	resp, err := s.ask(ctx, req)
	if err != nil {
		s.logger.WarnContext(ctx, "websocket query failed", "error", err)
		return errorEnvelope(env.ID, CodeInternal, "failed to answer query")
	}
	*sessionID = resp.SessionID

	out, err := codec.CreateResponseEnvelope(env.ID, resp)
	if err != nil {
		return nil, err
	}
	return codec.EncodeBytes(out)
}

func (s *Server) track(conn *websocket.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func errorEnvelope(id, code, message string) ([]byte, error) {
	env, err := codec.CreateErrorEnvelope(id, code, message)
	if err != nil {
		return nil, err
	}
	return codec.EncodeBytes(env)
}

func (s *Server) sendError(w http.ResponseWriter, code, message string) {
	status := http.StatusInternalServerError
	switch code {
	case CodeInvalidRequest, CodeInvalidMessage:
		status = http.StatusBadRequest
	case CodeTimeout:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, codec.ErrorPayload{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
