package http

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketPredict(t *testing.T) {
	p := testPipeline(t)
	env := newTestEnv(t, p, nil)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws/predict"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	rec := testRecord()
	require.NoError(t, conn.WriteJSON(rec))
	var reply map[string]interface{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "ok", reply["status"])
	assert.InDelta(t, expectedValue(t, p, rec), reply["value"], 1e-9)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply["status"])
	assert.Equal(t, KindBadRequest, reply["kind"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"nisbah":"1,5"}`)))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "ConversionError", reply["kind"])
	assert.Equal(t, "nisbah", reply["field"])

	env.predictor.Swap(nil)
	require.NoError(t, conn.WriteJSON(rec))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "ModelUnavailable", reply["kind"])
}
