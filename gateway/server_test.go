package gateway_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sctg-development/rust-photoacoustic-sub001/analytics"
	"github.com/sctg-development/rust-photoacoustic-sub001/config"
	"github.com/sctg-development/rust-photoacoustic-sub001/engine"
	"github.com/sctg-development/rust-photoacoustic-sub001/gateway"
	"github.com/sctg-development/rust-photoacoustic-sub001/graph"
	"github.com/sctg-development/rust-photoacoustic-sub001/metric"
	"github.com/sctg-development/rust-photoacoustic-sub001/node"
	"github.com/sctg-development/rust-photoacoustic-sub001/registry"
	"github.com/sctg-development/rust-photoacoustic-sub001/reload"
)

type fixture struct {
	server *httptest.Server
	store  *config.Store
	state  *analytics.State
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	state := analytics.NewState()
	metrics := metric.NewRegistry()
	deps := node.Dependencies{Analytics: state, Metrics: metrics}
	catalog := registry.MustCatalog()

	cfg := config.Default()
	store := config.NewStore(cfg)

	g, err := graph.Build(cfg.Graph, catalog, deps)
	require.NoError(t, err)
	consumer := engine.NewConsumer(g)

	dispatcher := reload.NewDispatcher(store, consumer, catalog, deps)
	srv := gateway.NewServer(":0", store, dispatcher, consumer, state, metrics,
		gateway.WithStreamInterval(20*time.Millisecond))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{server: ts, store: store, state: state}
}

func (fx *fixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(fx.server.URL + path)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, body
}

func (fx *fixture) put(t *testing.T, path string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, fx.server.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, body
}

func TestHealthEndpoint(t *testing.T) {
	fx := newFixture(t)

	resp, body := fx.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var health struct {
		Status   string `json:"status"`
		Revision uint64 `json:"revision"`
	}
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, uint64(1), health.Revision)
}

func TestGraphIntrospection(t *testing.T) {
	fx := newFixture(t)

	resp, body := fx.get(t, "/api/graph")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Revision       uint64           `json:"revision"`
		Descriptor     graph.Descriptor `json:"descriptor"`
		ExecutionOrder []string         `json:"execution_order"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, uint64(1), got.Revision)
	assert.Len(t, got.Descriptor.Nodes, 3)
	assert.Equal(t, []string{"acquisition", "select_a", "stream"}, got.ExecutionOrder)
}

func TestGraphUpdateHotReload(t *testing.T) {
	fx := newFixture(t)

	desc := config.Default().Graph
	desc.Nodes[1].Parameters = map[string]any{"target_channel": "ChannelB"}
	payload, err := json.Marshal(desc)
	require.NoError(t, err)

	resp, body := fx.put(t, "/api/graph", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var result reload.Result
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, reload.AppliedByHotReload, result.AppliedBy)
	assert.Equal(t, uint64(2), result.Revision)
	assert.Equal(t, uint64(2), fx.store.Revision())
}

func TestGraphUpdateRejectsInvalidTopology(t *testing.T) {
	fx := newFixture(t)

	desc := config.Default().Graph
	desc.Connections = append(desc.Connections, graph.Connection{From: "stream", To: "select_a"})
	payload, err := json.Marshal(desc)
	require.NoError(t, err)

	resp, body := fx.put(t, "/api/graph", payload)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "error")
	assert.Equal(t, uint64(1), fx.store.Revision(), "rejected update commits nothing")
}

func TestConfigRoundTrip(t *testing.T) {
	fx := newFixture(t)

	resp, body := fx.get(t, "/api/config")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cfg config.Config
	require.NoError(t, json.Unmarshal(body, &cfg))
	cfg.Version = "2"

	payload, err := json.Marshal(&cfg)
	require.NoError(t, err)
	resp, body = fx.put(t, "/api/config", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	got, rev := fx.store.Current()
	assert.Equal(t, uint64(2), rev)
	assert.Equal(t, "2", got.Version)
}

func TestAnalyticsSnapshot(t *testing.T) {
	fx := newFixture(t)
	fx.state.UpdatePeak("pf", analytics.PeakResult{
		Frequency: 2000, Amplitude: 0.4, Timestamp: time.Now(),
	})

	resp, body := fx.get(t, "/api/analytics")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap analytics.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	require.Contains(t, snap.Peaks, "pf")
	assert.InDelta(t, 2000, snap.Peaks["pf"].Frequency, 0.001)
}

func TestMetricsEndpoint(t *testing.T) {
	fx := newFixture(t)

	resp, body := fx.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "photoacoustic_config_revision")
}

func TestAnalyticsWebsocketStream(t *testing.T) {
	fx := newFixture(t)
	fx.state.UpdateConcentration("conc", analytics.ConcentrationResult{
		ConcentrationPPM: 42, Timestamp: time.Now(),
	})

	url := "ws" + strings.TrimPrefix(fx.server.URL, "http") + "/ws/analytics"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap analytics.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	require.Contains(t, snap.Concentrations, "conc")
	assert.InDelta(t, 42, snap.Concentrations["conc"].ConcentrationPPM, 0.001)
}
