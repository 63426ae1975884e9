package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/pushgate/internal/auth"
	"github.com/danmuck/pushgate/internal/feedbackstore"
	"github.com/danmuck/pushgate/internal/gateway"
	"github.com/danmuck/pushgate/internal/protocol/session"
	"github.com/danmuck/pushgate/internal/protocol/wire"
	"github.com/danmuck/pushgate/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	records  []wire.FeedbackRecord
	readErr  error
	pending  bool
}

func (g *fakeGateway) Write(tokens []wire.Token, payloads [][]byte) (*gateway.Future[gateway.Ack], error) {
	frame, err := wire.Encode(tokens, payloads)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending {
		// Never resolves; the handler's wait timeout applies.
		return new(gateway.Future[gateway.Ack]), nil
	}
	g.writes = append(g.writes, frame)
	if g.writeErr != nil {
		return gateway.Settled(gateway.Ack{}, g.writeErr), nil
	}
	return gateway.Settled(gateway.Ack{RequestID: "req-1", Bytes: len(frame), SentAt: time.Now()}, nil), nil
}

func (g *fakeGateway) Read() *gateway.Future[[]wire.FeedbackRecord] {
	g.mu.Lock()
	defer g.mu.Unlock()
	return gateway.Settled(g.records, g.readErr)
}

func (g *fakeGateway) State() gateway.State {
	return gateway.StateConnected
}

func (g *fakeGateway) Environment() session.Environment {
	return session.EnvironmentSandbox
}

func newTestServer(t *testing.T, gw Gateway, store feedbackstore.Store) *Server {
	t.Helper()
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	return New(gw, store, Options{WaitTimeout: 100 * time.Millisecond})
}

func do(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	out := map[string]any{}
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	}
	return rr, out
}

func hexToken(seed byte) string {
	return strings.Repeat(string("0123456789abcdef"[seed%16]), 64)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)
	rr, body := do(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "sandbox", body["environment"])
	require.Equal(t, "connected", body["gateway"])
	require.NotEmpty(t, rr.Header().Get("X-Request-Id"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)
	do(t, s, http.MethodGet, "/health", nil)
	rr, _ := do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "pushgate_http_requests_total")
}

func TestPostNotificationsBatch(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestServer(t, gw, nil)
	rr, body := do(t, s, http.MethodPost, "/v1/notifications", map[string]any{
		"tokens": []string{hexToken(1), "<" + hexToken(2) + ">"},
		"payloads": []map[string]any{
			{"aps": map[string]any{"alert": "one"}},
			{"aps": map[string]any{"alert": "two"}},
		},
	})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	require.Equal(t, "req-1", body["request_id"])
	require.EqualValues(t, 2, body["notifications"])
	require.Len(t, gw.writes, 1)
	require.Contains(t, string(gw.writes[0]), `{"aps":{"alert":"two"}}`)
}

func TestPostNotificationsSingle(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestServer(t, gw, nil)
	rr, _ := do(t, s, http.MethodPost, "/v1/notifications", map[string]any{
		"token":   hexToken(3),
		"payload": map[string]any{"aps": map[string]any{"badge": 1}},
	})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	require.Len(t, gw.writes, 1)
}

func TestPostNotificationsRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		body any
	}{
		{"no tokens", map[string]any{"payloads": []map[string]any{{"aps": map[string]any{}}}}},
		{"bad token", map[string]any{"token": "xyz", "payload": map[string]any{}}},
		{"arity", map[string]any{"tokens": []string{hexToken(1), hexToken(2)}, "payloads": []map[string]any{{}}}},
		{"too large", map[string]any{"token": hexToken(1), "payload": map[string]any{"x": strings.Repeat("a", 300)}}},
		{"not json", "nope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := &fakeGateway{}
			s := newTestServer(t, gw, nil)
			rr, body := do(t, s, http.MethodPost, "/v1/notifications", tc.body)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			require.NotEmpty(t, body["error"])
			require.Empty(t, gw.writes)
		})
	}
}

func TestPostNotificationsGatewayErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{gateway.ErrTimeout, http.StatusGatewayTimeout},
		{gateway.ErrConnectFailed, http.StatusBadGateway},
		{gateway.ErrConnectionLost, http.StatusBadGateway},
		{gateway.ErrClosed, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(gateway.Outcome(tc.err), func(t *testing.T) {
			s := newTestServer(t, &fakeGateway{writeErr: tc.err}, nil)
			rr, body := do(t, s, http.MethodPost, "/v1/notifications", map[string]any{
				"token":   hexToken(1),
				"payload": map[string]any{"aps": map[string]any{"alert": "x"}},
			})
			require.Equal(t, tc.want, rr.Code)
			require.Equal(t, gateway.Outcome(tc.err), body["outcome"])
		})
	}
}

func TestPostNotificationsWaitTimeout(t *testing.T) {
	s := newTestServer(t, &fakeGateway{pending: true}, nil)
	rr, _ := do(t, s, http.MethodPost, "/v1/notifications", map[string]any{
		"token":   hexToken(1),
		"payload": map[string]any{"aps": map[string]any{"alert": "x"}},
	})
	require.Equal(t, http.StatusGatewayTimeout, rr.Code)
}

func feedbackRecords() []wire.FeedbackRecord {
	var a, b wire.Token
	a[0], b[0] = 0xAA, 0xBB
	return []wire.FeedbackRecord{
		{Timestamp: time.Unix(1700000000, 0).UTC(), TokenLen: wire.TokenLength, Token: a},
		{Timestamp: time.Unix(1700000100, 0).UTC(), TokenLen: wire.TokenLength, Token: b},
	}
}

func TestGetFeedbackStoresRecords(t *testing.T) {
	store := feedbackstore.NewMemory()
	s := newTestServer(t, &fakeGateway{records: feedbackRecords()}, store)

	rr, body := do(t, s, http.MethodGet, "/v1/feedback", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualValues(t, 2, body["count"])
	require.Equal(t, true, body["stored"])

	n, err := store.Len(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rr, body = do(t, s, http.MethodGet, "/v1/feedback/stored?limit=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualValues(t, 1, body["count"])
	require.EqualValues(t, 2, body["total"])
	entries := body["entries"].([]any)
	require.Equal(t, feedbackRecords()[1].Token.String(), entries[0].(map[string]any)["token"])
}

func TestGetFeedbackWithoutStore(t *testing.T) {
	s := newTestServer(t, &fakeGateway{records: feedbackRecords()}, nil)
	rr, body := do(t, s, http.MethodGet, "/v1/feedback", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, false, body["stored"])

	rr, _ = do(t, s, http.MethodGet, "/v1/feedback/stored", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetFeedbackErrors(t *testing.T) {
	s := newTestServer(t, &fakeGateway{readErr: gateway.ErrConnectFailed}, feedbackstore.NewMemory())
	rr, _ := do(t, s, http.MethodGet, "/v1/feedback", nil)
	require.Equal(t, http.StatusBadGateway, rr.Code)

	rr, _ = do(t, s, http.MethodGet, "/v1/feedback/stored?limit=-2", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestV1RoutesRequireBearerWhenConfigured(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	s := New(&fakeGateway{records: feedbackRecords()}, nil, Options{Validator: auth.StaticToken{Token: "secret"}})

	rr, _ := do(t, s, http.MethodGet, "/v1/feedback", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/feedback", nil)
	req.Header.Set(auth.HeaderAuthorization, "Bearer secret")
	ok := httptest.NewRecorder()
	s.Router().ServeHTTP(ok, req)
	require.Equal(t, http.StatusOK, ok.Code)

	rr, _ = do(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}
