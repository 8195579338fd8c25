package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scttfrdmn/travelrouter/adapter/codec"
	"github.com/scttfrdmn/travelrouter/adapter/transport"
	"github.com/scttfrdmn/travelrouter/classifier"
	"github.com/scttfrdmn/travelrouter/inquiry"
	"github.com/scttfrdmn/travelrouter/session"
)

type fakeAssistant struct {
	mu       sync.Mutex
	err      error
	sessions []string
	ended    []string
}

func (f *fakeAssistant) Ask(ctx context.Context, sessionID, utterance string) (session.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return session.Outcome{}, f.err
	}
	f.sessions = append(f.sessions, sessionID)
	if sessionID == "" {
		sessionID = "new-session"
	}
	return session.Outcome{
		SessionID: sessionID,
		Reply:     "Based on historical data for flights from JFK to LAX in 2023:",
		Decision:  classifier.Decision{Path: classifier.PathRules, Rule: classifier.RuleFlightAnalytics},
		Resolved:  inquiry.FlightAnalytics{Origin: "JFK", Destination: "LAX", Modifier: inquiry.ModifierCheapest, Year: 2023},
	}, nil
}

func (f *fakeAssistant) End(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, sessionID)
	return nil
}

func (f *fakeAssistant) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sessions...)
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(&fakeAssistant{}, Config{Version: "1.2.3"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "1.2.3", data["version"])
	assert.Contains(t, data, "uptime")
}

func TestHealthEndpoint_MethodNotAllowed(t *testing.T) {
	srv := NewServer(&fakeAssistant{}, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestQueryEndpoint(t *testing.T) {
	assistant := &fakeAssistant{}
	srv := NewServer(assistant, Config{})

	body := `{"query": "cheapest flights from JFK to LAX", "session_id": "abc"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "flight_analytics", resp["intent_type"])
	assert.Equal(t, "JFK", resp["origin"])
	assert.Equal(t, "LAX", resp["destination"])
	assert.Nil(t, resp["flight_number"])
	assert.Equal(t, "abc", resp["session_id"])
	assert.Equal(t, "rules", resp["path"])
	assert.Equal(t, "flight_analytics", resp["rule"])
	assert.Contains(t, resp["response"], "JFK to LAX")
	assert.Equal(t, []string{"abc"}, assistant.seen())
}

func TestQueryEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		askErr     error
		wantStatus int
		wantCode   string
	}{
		{"invalid json", http.MethodPost, `{"query":`, nil, http.StatusBadRequest, CodeInvalidRequest},
		{"too large", http.MethodPost, `{"query":"` + strings.Repeat("a", maxRequestBytes) + `"}`, nil, http.StatusBadRequest, CodeInvalidRequest},
		{"timeout", http.MethodPost, `{"query":"x"}`, context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout},
		{"internal", http.MethodPost, `{"query":"x"}`, errors.New("redis down"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(&fakeAssistant{err: tt.askErr}, Config{})

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, "/query", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var payload codec.ErrorPayload
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
			assert.Equal(t, tt.wantCode, payload.Code)
			assert.NotContains(t, payload.Message, "redis")
		})
	}
}

func TestQueryEndpoint_GetNotAllowed(t *testing.T) {
	srv := NewServer(&fakeAssistant{}, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/query", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEndSessionEndpoint(t *testing.T) {
	assistant := &fakeAssistant{}
	srv := NewServer(assistant, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/abc", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"abc"}, assistant.ended)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("travelrouter_classifications_total 3\n"))
	})
	srv := NewServer(&fakeAssistant{}, Config{Metrics: metrics})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "travelrouter_classifications_total")

	bare := NewServer(&fakeAssistant{}, Config{})
	rec = httptest.NewRecorder()
	bare.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func TestWebSocket_ClientKeepsSession(t *testing.T) {
	assistant := &fakeAssistant{}
	ts := httptest.NewServer(NewServer(assistant, Config{}).Handler())
	defer ts.Close()

	client := transport.NewWebSocketClient(wsURL(ts), transport.WebSocketOptions{MaxRetries: 1})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := client.Ask(ctx, "cheapest flights from JFK to LAX")
	require.NoError(t, err)
	assert.Equal(t, "new-session", first.SessionID)
	assert.Equal(t, "JFK", *first.Origin)

	_, err = client.Ask(ctx, "what about from SFO?")
	require.NoError(t, err)

	assert.Equal(t, []string{"", "new-session"}, assistant.seen())
	assert.Equal(t, "new-session", client.SessionID())
}

func TestWebSocket_InvalidEnvelope(t *testing.T) {
	ts := httptest.NewServer(NewServer(&fakeAssistant{}, Config{}).Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"request"}`)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env codec.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, codec.TypeError, env.Type)

	var payload codec.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, CodeInvalidMessage, payload.Code)
}

func TestWebSocket_AskErrorBecomesProtocolError(t *testing.T) {
	ts := httptest.NewServer(NewServer(&fakeAssistant{err: errors.New("boom")}, Config{}).Handler())
	defer ts.Close()

	client := transport.NewWebSocketClient(wsURL(ts), transport.WebSocketOptions{MaxRetries: 1})
	defer client.Close()

	_, err := client.Ask(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), CodeInternal)
}
