package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("styles", 150*time.Millisecond)
	pr.IncStageResult("styles", ResultSuccess)
	pr.IncStageResult("styles", ResultFailed)
	pr.IncStageOutputs("styles", 3)
	pr.IncSequenceOutcome("release", OutcomeSuccess)
	pr.IncWatchTrigger("scripts")
	pr.IncLiveReloadBroadcast("scripts")
	pr.SetLiveReloadClients(2)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	assert.InDelta(t, 1, testutil.ToFloat64(pr.stageResults.WithLabelValues("styles", "failed")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(pr.stageOutputs.WithLabelValues("styles")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(pr.reloadClients), 0)
}

func TestPrometheusRecorder_NilSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.IncStageResult("styles", ResultSuccess)
	pr.SetLiveReloadClients(1)
}

func TestNoopRecorderSatisfiesInterface(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveStageDuration("fonts", time.Second)
	r.IncSequenceOutcome("dev", OutcomeFailed)
}

func TestHTTPHandlerServesRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncWatchTrigger("markup")

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "assetpipe_watch_triggers_total"))
}
