package server_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botflow/engine/pkg/api"
)

func dialTraceStream(
	t *testing.T, ts *httptest.Server, path string,
) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// Give the server a moment to subscribe the client to the hub
	time.Sleep(100 * time.Millisecond)
	return conn
}

func TestWebSocketStreamsTraces(t *testing.T) {
	withServer(t, func(_ context.Context, env *testServerEnv) {
		ts := httptest.NewServer(env.srv.SetupRoutes())
		defer ts.Close()

		conn := dialTraceStream(t, ts, "/ws")

		env.eng.Traces().Publish(&api.TraceEvent{
			Timestamp: time.Now(),
			Kind:      api.TraceNodeExecuted,
			TenantID:  "acme",
			UserID:    "u1",
			NodeID:    "greet",
			NodeType:  api.NodeTypeMessage,
		})

		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		var trace api.TraceEvent
		require.NoError(t, conn.ReadJSON(&trace))
		assert.Equal(t, api.TraceNodeExecuted, trace.Kind)
		assert.Equal(t, api.TenantID("acme"), trace.TenantID)
		assert.Equal(t, api.NodeID("greet"), trace.NodeID)
	})
}

func TestWebSocketFiltersByTenant(t *testing.T) {
	withServer(t, func(_ context.Context, env *testServerEnv) {
		ts := httptest.NewServer(env.srv.SetupRoutes())
		defer ts.Close()

		conn := dialTraceStream(t, ts, "/ws?tenant=globex")

		env.eng.Traces().Publish(&api.TraceEvent{
			Timestamp: time.Now(),
			Kind:      api.TraceNodeExecuted,
			TenantID:  "acme",
			UserID:    "u1",
		})
		env.eng.Traces().Publish(&api.TraceEvent{
			Timestamp: time.Now(),
			Kind:      api.TraceTerminated,
			TenantID:  "globex",
			UserID:    "u2",
		})

		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		var trace api.TraceEvent
		require.NoError(t, conn.ReadJSON(&trace))
		assert.Equal(t, api.TenantID("globex"), trace.TenantID)
		assert.Equal(t, api.TraceTerminated, trace.Kind)
	})
}

func TestCloseWebSockets(t *testing.T) {
	withServer(t, func(_ context.Context, env *testServerEnv) {
		ts := httptest.NewServer(env.srv.SetupRoutes())
		defer ts.Close()

		conn := dialTraceStream(t, ts, "/ws")

		env.srv.CloseWebSockets()

		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := conn.ReadMessage()
		assert.Error(t, err)
	})
}
