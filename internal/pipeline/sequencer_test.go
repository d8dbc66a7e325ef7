package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/asset"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/profile"
	"git.home.luguber.info/inful/assetpipe/internal/stage"
	"git.home.luguber.info/inful/assetpipe/internal/watch"
)

type fakeRunner struct {
	mu       sync.Mutex
	calls    []asset.Category
	profiles []profile.Profile
	fail     map[asset.Category]error
}

func (f *fakeRunner) Run(_ context.Context, c asset.Category, p profile.Profile) (stage.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	f.profiles = append(f.profiles, p)
	return stage.Result{Category: c}, f.fail[c]
}

type fakeWatcher struct {
	activated chan struct{}
	err       error
}

func (w *fakeWatcher) Activate(context.Context) error {
	close(w.activated)
	return w.err
}

type fakeServer struct {
	mu       sync.Mutex
	root     string
	started  chan struct{}
	shutdown bool
	err      error
}

func (s *fakeServer) Init(_ context.Context, root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = root
	close(s.started)
	return s.err
}

func (s *fakeServer) Shutdown(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	return nil
}

type outcomeRecorder struct {
	metrics.NoopRecorder
	mu       sync.Mutex
	outcomes []string
}

func (r *outcomeRecorder) IncSequenceOutcome(p string, o metrics.OutcomeLabel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, p+"/"+string(o))
}

func settingsFor(t *testing.T) Settings {
	t.Helper()
	root := t.TempDir()
	return Settings{
		SourceRoot:      filepath.Join(root, "src"),
		DestinationRoot: filepath.Join(root, "theme"),
	}
}

func TestRelease_RunsStagesInOrder(t *testing.T) {
	settings := settingsFor(t)
	runner := &fakeRunner{}
	rec := &outcomeRecorder{}

	require.NoError(t, New(settings, runner, WithRecorder(rec)).Release(context.Background()))

	assert.Equal(t, asset.Categories(), runner.calls)
	for _, p := range runner.profiles {
		assert.Equal(t, profile.Release, p.Name)
		assert.Equal(t, settings.DestinationRoot, p.DestinationRoot)
	}
	assert.Equal(t, []string{"release/success"}, rec.outcomes)
}

func TestRelease_ResetsDestination(t *testing.T) {
	settings := settingsFor(t)
	stale := filepath.Join(settings.DestinationRoot, "css", "old.css")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("a{}"), 0o644))

	require.NoError(t, New(settings, &fakeRunner{}).Release(context.Background()))

	entries, err := os.ReadDir(settings.DestinationRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRelease_AbortsOnFirstFailure(t *testing.T) {
	settings := settingsFor(t)
	boom := ferrors.TransformError("bad scss").Build()
	runner := &fakeRunner{fail: map[asset.Category]error{asset.Styles: boom}}
	rec := &outcomeRecorder{}

	err := New(settings, runner, WithRecorder(rec)).Release(context.Background())

	require.ErrorIs(t, err, boom)
	assert.Equal(t, []asset.Category{asset.Markup, asset.Styles}, runner.calls)
	assert.Equal(t, []string{"release/failed"}, rec.outcomes)
}

func TestRelease_AppliesProfileOverrides(t *testing.T) {
	settings := settingsFor(t)
	settings.Overrides = map[profile.Name]profile.OptionSet{
		profile.Release: {profile.OptMinifyStyles: false},
	}
	runner := &fakeRunner{}

	require.NoError(t, New(settings, runner).Release(context.Background()))

	require.NotEmpty(t, runner.profiles)
	assert.False(t, runner.profiles[0].Enabled(profile.OptMinifyStyles))
	assert.True(t, runner.profiles[0].Enabled(profile.OptMinifyScripts))
}

func TestRelease_InvalidOverrideIsConfigError(t *testing.T) {
	settings := settingsFor(t)
	settings.Overrides = map[profile.Name]profile.OptionSet{
		profile.Release: {"sourcemaps.enabled": true},
	}
	runner := &fakeRunner{}

	err := New(settings, runner).Release(context.Background())

	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
	assert.Empty(t, runner.calls)
}

func TestRelease_RefusesToResetUnsafeDestination(t *testing.T) {
	root := t.TempDir()
	tests := map[string]Settings{
		"source inside destination": {SourceRoot: filepath.Join(root, "site", "src"), DestinationRoot: filepath.Join(root, "site")},
		"destination is source":     {SourceRoot: filepath.Join(root, "src"), DestinationRoot: filepath.Join(root, "src")},
		"working directory":         {SourceRoot: filepath.Join(root, "src"), DestinationRoot: "."},
	}
	for name, settings := range tests {
		t.Run(name, func(t *testing.T) {
			runner := &fakeRunner{}
			err := New(settings, runner).Release(context.Background())
			require.Error(t, err)
			assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
			assert.Empty(t, runner.calls)
		})
	}
}

func TestRelease_MalformedStylesheetStopsBuild(t *testing.T) {
	settings := settingsFor(t)
	src := asset.OpenTree(settings.SourceRoot)
	require.NoError(t, src.WriteFile("index.html", []byte("<html><body></body></html>")))
	require.NoError(t, src.WriteFile("scss/main.scss", []byte("a { color: red;")))
	require.NoError(t, src.WriteFile("js/app.js", []byte("var a = 1;")))

	err := New(settings, stage.NewRunner(src)).Release(context.Background())

	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryTransform))
	assert.FileExists(t, filepath.Join(settings.DestinationRoot, "index.html"))
	assert.NoFileExists(t, filepath.Join(settings.DestinationRoot, "css", "main.css"))
	assert.NoDirExists(t, filepath.Join(settings.DestinationRoot, "js"))
}

func TestRelease_BuildsCompleteTree(t *testing.T) {
	settings := settingsFor(t)
	src := asset.OpenTree(settings.SourceRoot)
	files := map[string]string{
		"index.html":         "<html><body>@@include('partials/nav.html')</body></html>",
		"partials/nav.html":  "<nav></nav>",
		"scss/main.scss":     "$c: red;\na { color: $c; }\n",
		"scss/_partial.scss": "b { color: blue; }\n",
		"js/app.js":          "function add(a, b) { return a + b; }\n",
		"images/logo.svg":    "<svg/>",
		"fonts/body.woff2":   "font",
		"libs/vendor/lib.js": "var lib;",
	}
	for p, content := range files {
		require.NoError(t, src.WriteFile(p, []byte(content)))
	}

	require.NoError(t, New(settings, stage.NewRunner(src)).Release(context.Background()))

	dest := settings.DestinationRoot
	for _, rel := range []string{
		"index.html", "css/main.css", "css/main.min.css", "js/app.min.js",
		"images/logo.svg", "fonts/body.woff2", "libs/vendor/lib.js",
	} {
		assert.FileExists(t, filepath.Join(dest, rel))
	}
	assert.NoFileExists(t, filepath.Join(dest, "css", "_partial.css"))
	assert.NoFileExists(t, filepath.Join(dest, "js", "app.js"))

	html, err := os.ReadFile(filepath.Join(dest, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "<nav></nav>")
}

func TestDev_BuildsWatchesAndServesUntilCancelled(t *testing.T) {
	settings := settingsFor(t)
	runner := &fakeRunner{fail: map[asset.Category]error{asset.Scripts: errors.New("syntax")}}
	watcher := &fakeWatcher{activated: make(chan struct{})}
	srv := &fakeServer{started: make(chan struct{})}
	rec := &outcomeRecorder{}
	var watched profile.Profile

	seq := New(settings, runner,
		WithRecorder(rec),
		WithServer(srv),
		WithWatcherFactory(func(p profile.Profile, _ watch.StageRunner) Watcher {
			watched = p
			return watcher
		}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- seq.Dev(ctx) }()

	select {
	case <-srv.started:
	case <-time.After(2 * time.Second):
		t.Fatal("dev server was not started")
	}
	<-watcher.activated
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dev sequence did not stop after cancellation")
	}

	assert.Equal(t, asset.Categories(), runner.calls, "a failing stage must not stop the initial build")
	assert.Equal(t, profile.Dev, watched.Name)
	assert.Equal(t, settings.DestinationRoot, srv.root)
	assert.True(t, srv.shutdown)
	assert.Equal(t, []string{"dev/failed"}, rec.outcomes)
}

func TestDev_WithoutLiveReloadDoesNotServe(t *testing.T) {
	settings := settingsFor(t)
	settings.Overrides = map[profile.Name]profile.OptionSet{
		profile.Dev: {profile.OptLiveReload: false},
	}
	watcher := &fakeWatcher{activated: make(chan struct{})}
	srv := &fakeServer{started: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(settings, &fakeRunner{},
		WithServer(srv),
		WithWatcherFactory(func(profile.Profile, watch.StageRunner) Watcher { return watcher }),
	).Dev(ctx)

	require.NoError(t, err)
	assert.Empty(t, srv.root)
	assert.False(t, srv.shutdown)
}

func TestDev_WatchFailureIsReturned(t *testing.T) {
	settings := settingsFor(t)
	watchErr := ferrors.FileSystemError("source root missing").Build()
	watcher := &fakeWatcher{activated: make(chan struct{}), err: watchErr}
	srv := &fakeServer{started: make(chan struct{})}

	err := New(settings, &fakeRunner{},
		WithServer(srv),
		WithWatcherFactory(func(profile.Profile, watch.StageRunner) Watcher { return watcher }),
	).Dev(context.Background())

	require.ErrorIs(t, err, watchErr)
	assert.Empty(t, srv.root)
}

func TestDev_RebuildsChangedCategory(t *testing.T) {
	settings := settingsFor(t)
	src := asset.OpenTree(settings.SourceRoot)
	require.NoError(t, src.WriteFile("js/app.js", []byte("var a = 1;")))
	settings.Debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- New(settings, stage.NewRunner(src)).Dev(ctx) }()

	appJS := filepath.Join(settings.DestinationRoot, "js", "app.js")
	require.Eventually(t, func() bool {
		_, err := os.Stat(appJS)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	// Give the watcher time to register the source tree.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, src.WriteFile("js/extra.js", []byte("var b = 2;")))

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(settings.DestinationRoot, "js", "extra.js"))
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dev sequence did not stop")
	}
}
