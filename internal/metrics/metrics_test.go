package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanelCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPanel(reg)

	p.DiscoveryPoll(ResultOK)
	p.DiscoveryPoll(ResultFailed)
	p.DiscoveryPoll(ResultOK)
	p.ReconcileCycle(ResultOK, 2)
	p.Update(ResultFailed, 10*time.Millisecond)
	p.SetActiveEditors(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.discoveryPolls.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.discoveryPolls.WithLabelValues(ResultFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.remoteApplied))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.updates.WithLabelValues(ResultFailed)))
	assert.Equal(t, 4.0, testutil.ToFloat64(p.activeEditors))
}

func TestNilRecordersAreSafe(t *testing.T) {
	var p *Panel
	var n *Node

	assert.NotPanics(t, func() {
		p.DiscoveryPoll(ResultOK)
		p.Connect(ResultFailed)
		p.ReconcileCycle(ResultSkipped, 0)
		p.Update(ResultOK, time.Second)
		p.SetActiveEditors(1)
		n.Update(ResultOK)
		n.WatcherAdded()
		n.WatcherRemoved()
		n.Registration(ResultOK)
		n.SetLiveNodes(3)
	})
}

func TestNodeGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	n := NewNode(reg)

	n.WatcherAdded()
	n.WatcherAdded()
	n.WatcherRemoved()
	n.SetLiveNodes(5)

	assert.Equal(t, 1.0, testutil.ToFloat64(n.watchers))
	assert.Equal(t, 5.0, testutil.ToFloat64(n.liveNodes))
}

func TestRouterServesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPanel(reg).Connect(ResultOK)

	srv := httptest.NewServer(Router(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + Path)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `reconfigure_panel_connects_total{result="ok"} 1`)

	resp, err = http.Get(srv.URL + "/other")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
