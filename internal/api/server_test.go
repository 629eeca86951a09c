package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-insight/server/internal/agent/model"
	errx "github.com/Chative-insight/server/internal/core/error"
)

type fakeAgent struct {
	mu       sync.Mutex
	queries  []QueryRequest
	cleared  []string
	limits   []int
	sessions int
}

func (a *fakeAgent) ProcessQuery(_ context.Context, query, sessionID string) *model.QueryResult {
	a.mu.Lock()
	a.queries = append(a.queries, QueryRequest{Query: query, SessionID: sessionID})
	a.mu.Unlock()
	return &model.QueryResult{SessionID: sessionID, Response: "answer to " + query, Intent: model.IntentUtility}
}

func (a *fakeAgent) GetHistory(_ context.Context, sessionID string, limit int) []model.Turn {
	a.mu.Lock()
	a.limits = append(a.limits, limit)
	a.mu.Unlock()
	return []model.Turn{
		{Role: model.RoleUser, Content: "hello"},
		{Role: model.RoleAssistant, Content: "hi"},
	}
}

func (a *fakeAgent) ClearSession(_ context.Context, sessionID string) {
	a.mu.Lock()
	a.cleared = append(a.cleared, sessionID)
	a.mu.Unlock()
}

func (a *fakeAgent) GetProfile(context.Context, string) model.Profile {
	p := model.NewProfile()
	p.InteractionCount = 3
	return p
}

func (a *fakeAgent) SessionStats(context.Context, string) model.SessionStats {
	return model.SessionStats{TotalMessages: 2, TotalInteraction: 1}
}

func (a *fakeAgent) ActiveSessions() int { return a.sessions }

type fakeTables struct {
	counts map[string]int64
	err    error
}

func (f fakeTables) TableCounts(context.Context) (map[string]int64, error) { return f.counts, f.err }

func newTestServer(t *testing.T, agent *fakeAgent, tables TableStats) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(":0", agent, tables, "http://allowed.example").Handler())
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestQuery(t *testing.T) {
	agent := &fakeAgent{}
	srv := newTestServer(t, agent, nil)

	resp, err := http.Post(srv.URL+"/query", "application/json", strings.NewReader(`{"query":"hello","session_id":"s1"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	body := decode(t, resp)
	assert.Equal(t, "answer to hello", body["response"])
	assert.Equal(t, "s1", body["session_id"])
	assert.Equal(t, "utility", body["intent"])

	resp, err = http.Post(srv.URL+"/query", "application/json", strings.NewReader(`{"query":"hi"}`))
	require.NoError(t, err)
	body = decode(t, resp)
	require.Len(t, agent.queries, 2)
	assert.NotEmpty(t, agent.queries[1].SessionID)
	assert.Equal(t, agent.queries[1].SessionID, body["session_id"])
}

func TestQueryValidation(t *testing.T) {
	agent := &fakeAgent{}
	srv := newTestServer(t, agent, nil)

	tests := map[string]string{
		"malformed": `{"query":`,
		"missing":   `{}`,
		"blank":     `{"query":"   "}`,
		"too long":  `{"query":"` + strings.Repeat("x", maxQueryBytes+1) + `"}`,
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/query", "application/json", strings.NewReader(payload))
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decode(t, resp)
			assert.Contains(t, body, "error")
		})
	}
	assert.Empty(t, agent.queries)

	resp, err := http.Get(srv.URL + "/query")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestConversationEndpoints(t *testing.T) {
	agent := &fakeAgent{}
	srv := newTestServer(t, agent, nil)

	resp, err := http.Get(srv.URL + "/conversation/s1?limit=4")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "s1", body["session_id"])
	assert.Len(t, body["history"], 2)
	assert.Equal(t, float64(2), body["stats"].(map[string]any)["total_messages"])

	resp, err = http.Get(srv.URL + "/conversation/s1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, []int{4, 10}, agent.limits)

	resp, err = http.Get(srv.URL + "/conversation/s1?limit=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/conversation/s1", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Conversation s1 cleared", decode(t, resp)["message"])
	assert.Equal(t, []string{"s1"}, agent.cleared)

	resp, err = http.Get(srv.URL + "/session/s1/profile")
	require.NoError(t, err)
	body = decode(t, resp)
	assert.Equal(t, float64(3), body["profile"].(map[string]any)["interaction_count"])
}

func TestStatsAndHealth(t *testing.T) {
	srv := newTestServer(t, &fakeAgent{sessions: 2}, fakeTables{counts: map[string]int64{"orders": 5}})

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	body := decode(t, resp)
	assert.Equal(t, float64(2), body["active_sessions"])
	assert.Equal(t, float64(5), body["tables"].(map[string]any)["orders"])

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, "healthy", decode(t, resp)["status"])

	broken := newTestServer(t, &fakeAgent{}, fakeTables{err: errors.New("database is locked")})
	resp, err = http.Get(broken.URL + "/stats")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	failed := decode(t, resp)["error"].(map[string]any)
	assert.Equal(t, errx.SystemErrorMessage, failed["message"])
	assert.NotContains(t, failed["message"], "locked")
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, &fakeAgent{}, nil)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/query", nil)
	req.Header.Set("Origin", "http://allowed.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://allowed.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebSocket(t *testing.T) {
	agent := &fakeAgent{}
	srv := newTestServer(t, agent, nil)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/ws-session"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(QueryRequest{Query: "hello"}))

	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "status", msg.Type)
	assert.Equal(t, "processing", msg.Content)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "result", msg.Type)
	require.NotNil(t, msg.Data)
	assert.Equal(t, "ws-session", msg.Data.SessionID)
	assert.Equal(t, "answer to hello", msg.Data.Response)

	require.NoError(t, conn.WriteJSON(QueryRequest{Query: " "}))
	var bad WSMessage
	require.NoError(t, conn.ReadJSON(&bad))
	assert.Equal(t, "error", bad.Type)
	assert.Equal(t, "query is required", bad.Content)

	_, _, err = websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	assert.Error(t, err)
}
