package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconfigure-gui/internal/params"
	"reconfigure-gui/internal/transport"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	n, err := NewNode("/demo", DemoGroup(), logger, prometheus.NewRegistry())
	require.NoError(t, err)
	return n
}

func TestNodeStartsFromDefaults(t *testing.T) {
	n := newTestNode(t)
	cfg := n.Configuration()

	assert.Equal(t, int64(50), cfg["int_param"])
	assert.Equal(t, 0.5, cfg["double_param"])
	assert.Equal(t, "Hello World", cfg["str_param"])
	assert.Equal(t, true, cfg["bool_param"])
	assert.Equal(t, int64(1), cfg["size"])
	assert.NotEmpty(t, n.Instance())
}

func TestNodeUpdateClampsAndRejects(t *testing.T) {
	n := newTestNode(t)

	applied, err := n.Update(params.Config{"int_param": float64(250)})
	require.NoError(t, err)
	assert.Equal(t, int64(100), applied["int_param"])

	_, err = n.Update(params.Config{"size": int64(7)})
	assert.Error(t, err)

	_, err = n.Update(params.Config{"int_param": int64(1), "nope": 1})
	assert.Error(t, err)
	assert.Equal(t, int64(100), n.Configuration()["int_param"], "rejected update must not apply partially")
}

func TestNodeHTTP(t *testing.T) {
	n := newTestNode(t)
	srv := httptest.NewServer(n.Handler())
	defer srv.Close()

	var health transport.Health
	getJSONT(t, srv.URL+transport.PathHealth, &health)
	assert.Equal(t, "/demo", health.Node)
	assert.Equal(t, n.Instance(), health.Instance)

	var desc params.GroupDescription
	getJSONT(t, srv.URL+transport.PathDescription, &desc)
	require.Len(t, desc.Parameters, 5)
	assert.Equal(t, params.Int, desc.Parameters[0].Type)

	body := bytes.NewBufferString(`{"values":{"str_param":"bye"}}`)
	resp, err := http.Post(srv.URL+transport.PathConfig, "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var msg transport.ConfigMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	assert.Equal(t, "bye", msg.Values["str_param"])

	bad, err := http.Post(srv.URL+transport.PathConfig, "application/json", strings.NewReader(`{"values":{"bool_param":"yes"}}`))
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, bad.StatusCode)

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
}

func TestNodeWatchBroadcastsUpdates(t *testing.T) {
	n := newTestNode(t)
	srv := httptest.NewServer(n.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+transport.PathWatch, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		n.mu.RLock()
		defer n.mu.RUnlock()
		return len(n.watchers) == 1
	}, time.Second, 5*time.Millisecond)

	_, err = n.Update(params.Config{"bool_param": false})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg transport.ConfigMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, transport.MessageConfig, msg.Type)
	assert.Equal(t, n.Instance(), msg.Instance)
	assert.Equal(t, false, msg.Values["bool_param"])
}

func TestRegistryExpiry(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	r := NewRegistry(time.Second, logger, nil)
	now := time.Unix(1000, 0)
	r.now = func() time.Time { return now }

	require.NoError(t, r.Register(transport.NodeInfo{Name: "/b", URL: "http://127.0.0.1:2"}))
	require.NoError(t, r.Register(transport.NodeInfo{Name: "/a", URL: "http://127.0.0.1:1"}))
	assert.Equal(t, []transport.NodeInfo{
		{Name: "/a", URL: "http://127.0.0.1:1"},
		{Name: "/b", URL: "http://127.0.0.1:2"},
	}, r.Nodes())

	now = now.Add(600 * time.Millisecond)
	require.NoError(t, r.Register(transport.NodeInfo{Name: "/a", URL: "http://127.0.0.1:1"}))
	now = now.Add(600 * time.Millisecond)

	nodes := r.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "/a", nodes[0].Name)
}

func TestRegistryValidation(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	r := NewRegistry(0, logger, nil)

	assert.Error(t, r.Register(transport.NodeInfo{Name: "noslash", URL: "http://x:1"}))
	assert.Error(t, r.Register(transport.NodeInfo{Name: "/n", URL: "ftp://x"}))
	assert.Error(t, r.Register(transport.NodeInfo{Name: "/n", URL: "not a url"}))
}

func TestHeartbeatRegistersAndUnregisters(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	r := NewRegistry(time.Minute, logger, prometheus.NewRegistry())
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Heartbeat(ctx, srv.Client(), srv.URL, transport.NodeInfo{Name: "/hb", URL: "http://127.0.0.1:9"}, 10*time.Millisecond, logger)
	}()

	require.Eventually(t, func() bool { return len(r.Nodes()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, r.Nodes())
}

func TestLoadGroup(t *testing.T) {
	path := t.TempDir() + "/group.json"
	data, err := json.Marshal(DemoGroup())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	desc, err := LoadGroup(path)
	require.NoError(t, err)
	assert.Len(t, desc.Parameters, 5)
	assert.True(t, desc.Parameters[4].IsEnum())

	_, err = LoadGroup(t.TempDir() + "/missing.json")
	assert.Error(t, err)
}

func getJSONT(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}
