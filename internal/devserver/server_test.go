package devserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/asset"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/stage"
)

func startServer(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html><body><h1>hi</h1></body></html>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "css"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "css", "a.css"), []byte("a{color:red}"), 0o644))

	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	s := New(cfg)
	require.NoError(t, s.Init(context.Background(), root))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, "http://" + s.Addr()
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_ServesDestinationWithInjection(t *testing.T) {
	_, base := startServer(t, Config{})

	code, body := get(t, base+"/")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `<h1>hi</h1><script async src="/__livereload.js"></script></body>`)

	code, body = get(t, base+"/css/a.css")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "a{color:red}", body)

	code, body = get(t, base+"/__livereload.js")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "EventSource('/__livereload')")

	code, _ = get(t, base+"/missing.html")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_InitTwiceFails(t *testing.T) {
	s, _ := startServer(t, Config{})
	err := s.Init(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryServer))
}

func TestServer_NotifyInactiveIsNoop(t *testing.T) {
	s := New(Config{})
	assert.False(t, s.Active())
	s.Notify(asset.Scripts)
	assert.Empty(t, s.Addr())
	require.NoError(t, s.Shutdown(context.Background()))
}

func readEvent(t *testing.T, r *bufio.Reader) ReloadEvent {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
			var ev ReloadEvent
			require.NoError(t, json.Unmarshal([]byte(data), &ev))
			return ev
		}
	}
}

func TestServer_NotifyReachesClients(t *testing.T) {
	reg := prom.NewRegistry()
	s, base := startServer(t, Config{Recorder: metrics.NewPrometheusRecorder(reg), Metrics: metrics.HTTPHandler(reg)})

	resp, err := http.Get(base + "/__livereload")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	initial := readEvent(t, r)
	require.NotEmpty(t, initial.Hash)

	s.Notify(asset.Styles)
	ev := readEvent(t, r)
	assert.Equal(t, asset.Styles, ev.Category)
	assert.NotEqual(t, initial.Hash, ev.Hash)

	s.Notify(asset.Markup)
	ev = readEvent(t, r)
	assert.Equal(t, asset.Markup, ev.Category)

	code, body := get(t, base+"/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `assetpipe_livereload_broadcasts_total{category="styles"} 1`)
	assert.Contains(t, body, "assetpipe_livereload_clients 1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	_, err = io.ReadAll(r)
	if err != nil {
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF) || strings.Contains(err.Error(), "EOF"), err.Error())
	}
}

func TestServer_Status(t *testing.T) {
	tracker := stage.NewStatusTracker()
	tracker.Record(stage.Result{Category: asset.Scripts, Files: 2, Outputs: []string{"js/a.js", "js/b.js"}}, "", nil)
	_, base := startServer(t, Config{Status: tracker})

	code, body := get(t, base+"/__status")
	require.Equal(t, http.StatusOK, code)
	var st statusResponse
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.True(t, st.Healthy)
	require.Len(t, st.Stages, 1)
	assert.Equal(t, 2, st.Stages[0].Outputs)

	tracker.Record(stage.Result{Category: asset.Styles}, "scss/bad.scss", errors.New("unclosed block"))
	code, body = get(t, base+"/__status")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.False(t, st.Healthy)
	require.Len(t, st.Stages, 2)
	assert.Equal(t, asset.Styles, st.Stages[0].Category)
	assert.Equal(t, "scss/bad.scss", st.Stages[0].File)
}
