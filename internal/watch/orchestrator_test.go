package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/asset"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/profile"
	"git.home.luguber.info/inful/assetpipe/internal/stage"
)

const testDebounce = 20 * time.Millisecond

func countingBinding(c asset.Category, calls *atomic.Int32) Binding {
	return Binding{
		Category: c,
		Globs:    asset.SpecFor(c).Watch,
		Stage: func(context.Context) error {
			calls.Add(1)
			return nil
		},
	}
}

func activate(t *testing.T, o *Orchestrator) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, o.Activate(ctx))
	t.Cleanup(func() {
		cancel()
		<-o.Done()
	})
	return cancel
}

func TestBindings_FollowProfile(t *testing.T) {
	dev := profile.MustSelect(profile.Dev, "theme")
	assert.Len(t, Bindings(dev, nil), len(asset.Categories()))

	release := profile.MustSelect(profile.Release, "theme")
	assert.Empty(t, Bindings(release, nil))

	partial, err := profile.Select(profile.Dev, "theme", profile.OptionSet{profile.WatchOption(asset.Images): false})
	require.NoError(t, err)
	bindings := Bindings(partial, nil)
	require.Len(t, bindings, len(asset.Categories())-1)
	for _, b := range bindings {
		assert.NotEqual(t, asset.Images, b.Category)
	}
}

func TestBinding_StylesWatchesPartials(t *testing.T) {
	b := Bindings(profile.MustSelect(profile.Dev, "theme"), nil)[1]
	require.Equal(t, asset.Styles, b.Category)
	assert.True(t, b.Matches("scss/_vars.scss"))
	assert.True(t, b.Matches("scss/site/main.scss"))
	assert.False(t, b.Matches("js/app.js"))
}

func TestActivate_Twice(t *testing.T) {
	o := New(t.TempDir(), nil)
	assert.False(t, o.Active())
	activate(t, o)
	assert.True(t, o.Active())

	err := o.Activate(context.Background())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryRuntime))
}

func TestActivate_MissingRoot(t *testing.T) {
	o := New(filepath.Join(t.TempDir(), "missing"), nil)
	err := o.Activate(context.Background())
	require.Error(t, err)
	assert.False(t, o.Active())
}

func TestTrigger_InactiveOrUnbound(t *testing.T) {
	var calls atomic.Int32
	o := New(t.TempDir(), []Binding{countingBinding(asset.Scripts, &calls)}, WithDebounce(testDebounce))
	assert.False(t, o.Trigger(asset.Scripts))

	activate(t, o)
	assert.False(t, o.Trigger(asset.Images))
	assert.True(t, o.Trigger(asset.Scripts))
}

func TestTrigger_DebouncesBursts(t *testing.T) {
	var calls atomic.Int32
	o := New(t.TempDir(), []Binding{countingBinding(asset.Scripts, &calls)}, WithDebounce(testDebounce))
	activate(t, o)

	for i := 0; i < 10; i++ {
		o.Trigger(asset.Scripts)
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(5 * testDebounce)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTrigger_SerializesRunsWithOnePending(t *testing.T) {
	var (
		calls   atomic.Int32
		running atomic.Int32
		maxSeen atomic.Int32
	)
	release := make(chan struct{})
	started := make(chan struct{}, 10)
	b := Binding{
		Category: asset.Styles,
		Stage: func(context.Context) error {
			n := running.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			calls.Add(1)
			started <- struct{}{}
			<-release
			running.Add(-1)
			return nil
		},
	}
	o := New(t.TempDir(), []Binding{b}, WithDebounce(testDebounce))
	activate(t, o)

	o.Trigger(asset.Styles)
	<-started

	// Three separate changes while the first run is still busy.
	for i := 0; i < 3; i++ {
		o.Trigger(asset.Styles)
		time.Sleep(3 * testDebounce)
	}
	close(release)

	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(5 * testDebounce)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestTrigger_FailedRunDoesNotStopWatching(t *testing.T) {
	var calls atomic.Int32
	b := Binding{
		Category: asset.Markup,
		Stage: func(context.Context) error {
			if calls.Add(1) == 1 {
				return errors.New("broken include")
			}
			return nil
		},
	}
	o := New(t.TempDir(), []Binding{b}, WithDebounce(testDebounce))
	activate(t, o)

	o.Trigger(asset.Markup)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	o.Trigger(asset.Markup)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
}

type countingNotifier struct {
	mu    sync.Mutex
	calls map[asset.Category]int
}

func (n *countingNotifier) Notify(c asset.Category) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[c]++
}

func (n *countingNotifier) count(c asset.Category) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[c]
}

func TestWatch_ScriptChangeNotifiesOnce(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "js"), 0o755))

	dest := t.TempDir()
	notifier := &countingNotifier{calls: map[asset.Category]int{}}
	runner := stage.NewRunner(asset.OpenTree(srcDir), stage.WithNotifier(notifier))
	p := profile.MustSelect(profile.Dev, dest)

	o := New(srcDir, Bindings(p, runner), WithDebounce(50*time.Millisecond))
	activate(t, o)

	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "js", "app.js"), []byte("var a = 1;"), 0o644))

	require.Eventually(t, func() bool { return notifier.count(asset.Scripts) == 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, notifier.count(asset.Scripts))
	assert.Zero(t, notifier.count(asset.Styles))
	assert.FileExists(t, filepath.Join(dest, "js", "app.js"))
}

func TestWatch_NewDirectoriesAreWatched(t *testing.T) {
	srcDir := t.TempDir()
	var calls atomic.Int32
	o := New(srcDir, []Binding{countingBinding(asset.Images, &calls)}, WithDebounce(testDebounce))
	activate(t, o)

	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "images", "icons"), 0o755))
	// Give the watcher a moment to register the new directories.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "images", "icons", "logo.png"), []byte("png"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestShouldIgnoreEvent(t *testing.T) {
	tests := map[string]bool{
		"/src/js/app.js":        false,
		"/src/js/.app.js.swp":   true,
		"/src/scss/main.scss~":  true,
		"/src/.DS_Store":        true,
		"/src/#index.html#":     true,
		"/src/images/Thumbs.db": true,
		"/src/index.html":       false,
	}
	for p, want := range tests {
		assert.Equal(t, want, shouldIgnoreEvent(p), p)
	}
}
