// Package pipeline composes profile selection, destination reset, the six
// category stages and, during development, watching and serving into the
// two entry sequences of assetpipe.
package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/asset"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
	"git.home.luguber.info/inful/assetpipe/internal/profile"
	"git.home.luguber.info/inful/assetpipe/internal/watch"
)

const defaultShutdownTimeout = 5 * time.Second

// Settings locate the trees a sequence works on.
type Settings struct {
	SourceRoot      string
	DestinationRoot string
	// Overrides are layered over the canonical options of each profile.
	Overrides map[profile.Name]profile.OptionSet
	// Debounce is passed to the default watcher.
	Debounce time.Duration
}

// Watcher is the change detection started by the development sequence.
type Watcher interface {
	Activate(ctx context.Context) error
}

// WatcherFactory builds the watcher for the selected profile.
type WatcherFactory func(p profile.Profile, runner watch.StageRunner) Watcher

// DevServer serves the destination root while developing.
type DevServer interface {
	Init(ctx context.Context, rootDir string) error
	Shutdown(ctx context.Context) error
}

// Sequencer runs the development and release sequences.
type Sequencer struct {
	settings        Settings
	runner          watch.StageRunner
	recorder        metrics.Recorder
	newWatcher      WatcherFactory
	server          DevServer
	shutdownTimeout time.Duration
}

// Option configures a Sequencer.
type Option func(*Sequencer)

func WithRecorder(r metrics.Recorder) Option {
	return func(s *Sequencer) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithWatcherFactory replaces the fsnotify based watcher.
func WithWatcherFactory(f WatcherFactory) Option {
	return func(s *Sequencer) {
		if f != nil {
			s.newWatcher = f
		}
	}
}

// WithServer sets the dev server started when the profile enables live reload.
func WithServer(srv DevServer) Option {
	return func(s *Sequencer) { s.server = srv }
}

// New creates a Sequencer running stages through runner.
func New(settings Settings, runner watch.StageRunner, opts ...Option) *Sequencer {
	s := &Sequencer{
		settings:        settings,
		runner:          runner,
		recorder:        metrics.NoopRecorder{},
		shutdownTimeout: defaultShutdownTimeout,
	}
	s.newWatcher = func(p profile.Profile, r watch.StageRunner) Watcher {
		return watch.New(settings.SourceRoot, watch.Bindings(p, r),
			watch.WithDebounce(settings.Debounce),
			watch.WithRecorder(s.recorder))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Release builds every category once with the release profile. The first
// failing stage aborts the sequence and its error is returned.
func (s *Sequencer) Release(ctx context.Context) error {
	start := time.Now()
	p, ctx, err := s.prepare(ctx, profile.Release)
	if err != nil {
		s.recorder.IncSequenceOutcome(string(profile.Release), metrics.OutcomeFailed)
		return err
	}

	for _, c := range asset.Categories() {
		if _, err := s.runner.Run(ctx, c, p); err != nil {
			s.recorder.IncSequenceOutcome(string(p.Name), metrics.OutcomeFailed)
			observability.ErrorContext(ctx, "Release build failed",
				logfields.Category(string(c)),
				logfields.Error(err))
			return err
		}
	}

	s.recorder.IncSequenceOutcome(string(p.Name), metrics.OutcomeSuccess)
	observability.InfoContext(ctx, "Release build completed",
		logfields.Path(p.DestinationRoot),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return nil
}

// Dev builds every category once with the dev profile, then watches the
// source tree and serves the destination until ctx is cancelled. Stage
// failures are logged and do not stop the sequence.
func (s *Sequencer) Dev(ctx context.Context) error {
	p, ctx, err := s.prepare(ctx, profile.Dev)
	if err != nil {
		s.recorder.IncSequenceOutcome(string(profile.Dev), metrics.OutcomeFailed)
		return err
	}

	failed := 0
	for _, c := range asset.Categories() {
		if _, err := s.runner.Run(ctx, c, p); err != nil {
			failed++
		}
	}
	outcome := metrics.OutcomeSuccess
	if failed > 0 {
		outcome = metrics.OutcomeFailed
		observability.WarnContext(ctx, "Initial build finished with errors; waiting for changes",
			slog.Int("failed_stages", failed))
	}
	s.recorder.IncSequenceOutcome(string(p.Name), outcome)

	if err := s.newWatcher(p, s.runner).Activate(ctx); err != nil {
		return err
	}

	if p.Enabled(profile.OptLiveReload) && s.server != nil {
		if err := s.server.Init(ctx, p.DestinationRoot); err != nil {
			return err
		}
		defer s.shutdown(ctx)
	} else {
		observability.DebugContext(ctx, "Live reload disabled; not serving destination")
	}

	observability.InfoContext(ctx, "Watching for changes", logfields.Path(s.settings.SourceRoot))
	<-ctx.Done()
	observability.InfoContext(ctx, "Development sequence stopping")
	return nil
}

// prepare selects the profile, tags ctx with a fresh build ID and resets
// the destination root.
func (s *Sequencer) prepare(ctx context.Context, name profile.Name) (profile.Profile, context.Context, error) {
	p, err := profile.Select(name, s.settings.DestinationRoot, s.settings.Overrides[name])
	if err != nil {
		return profile.Profile{}, ctx, err
	}
	ctx = observability.WithBuildID(ctx, observability.NewBuildID())
	ctx = observability.WithProfile(ctx, string(p.Name))
	observability.InfoContext(ctx, "Starting sequence",
		slog.String("src", s.settings.SourceRoot),
		logfields.Path(p.DestinationRoot))

	if err := s.resetDestination(p.DestinationRoot); err != nil {
		return profile.Profile{}, ctx, err
	}
	return p, ctx, nil
}

// resetDestination removes the destination root and recreates it empty.
func (s *Sequencer) resetDestination(dest string) error {
	clean := filepath.Clean(dest)
	abs, err := filepath.Abs(clean)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "cannot resolve destination root").
			Fatal().
			WithContext("path", dest).
			Build()
	}
	if clean == "." || abs == filepath.Dir(abs) || containsPath(abs, s.settings.SourceRoot) {
		return ferrors.ConfigError("refusing to reset destination root").
			WithContext("path", dest).
			Build()
	}

	parent := asset.OpenTree(filepath.Dir(abs))
	base := filepath.Base(abs)
	if err := parent.RemoveAll(base); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to clear destination root").
			Fatal().
			WithContext("path", dest).
			Build()
	}
	if err := parent.MkdirAll(base); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create destination root").
			Fatal().
			WithContext("path", dest).
			Build()
	}
	return nil
}

func (s *Sequencer) shutdown(ctx context.Context) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(stopCtx); err != nil {
		observability.WarnContext(ctx, "Dev server shutdown failed", logfields.Error(err))
	}
}

// containsPath reports whether dir is other or one of its ancestors.
func containsPath(dir, other string) bool {
	if other == "" {
		return false
	}
	o, err := filepath.Abs(other)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, o)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
