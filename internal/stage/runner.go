package stage

import (
	"context"
	"sync"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/asset"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
	"git.home.luguber.info/inful/assetpipe/internal/profile"
)

// Notifier is told when a category's output changed.
type Notifier interface {
	Notify(c asset.Category)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(c asset.Category)

func (f NotifierFunc) Notify(c asset.Category) { f(c) }

// Result summarises one stage run.
type Result struct {
	Category asset.Category
	Files    int
	Outputs  []string
	Duration time.Duration
}

// Runner executes stage runs against one source tree. Runs of the same
// category are serialized; different categories may run concurrently.
type Runner struct {
	src       *asset.Tree
	pipelines map[asset.Category]Pipeline
	recorder  metrics.Recorder
	notifier  Notifier
	status    *StatusTracker

	locks map[asset.Category]*sync.Mutex
}

// Option configures a Runner.
type Option func(*Runner)

func WithRecorder(r metrics.Recorder) Option {
	return func(rn *Runner) {
		if r != nil {
			rn.recorder = r
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(rn *Runner) { rn.notifier = n }
}

func WithStatus(t *StatusTracker) Option {
	return func(rn *Runner) { rn.status = t }
}

// WithPipeline replaces the pipeline of one category.
func WithPipeline(c asset.Category, pl Pipeline) Option {
	return func(rn *Runner) { rn.pipelines[c] = pl }
}

func NewRunner(src *asset.Tree, opts ...Option) *Runner {
	r := &Runner{
		src:       src,
		pipelines: DefaultPipelines(),
		recorder:  metrics.NoopRecorder{},
		locks:     make(map[asset.Category]*sync.Mutex),
	}
	for _, c := range asset.Categories() {
		r.locks[c] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Status returns the tracker the runner records into (may be nil).
func (r *Runner) Status() *StatusTracker { return r.status }

// Run builds category c under profile p into p.DestinationRoot.
func (r *Runner) Run(ctx context.Context, c asset.Category, p profile.Profile) (Result, error) {
	spec := asset.SpecFor(c)
	if spec.Category == "" {
		return Result{Category: c}, ferrors.ValidationError("unknown asset category").
			WithContext("category", string(c)).
			Build()
	}

	lock := r.locks[c]
	lock.Lock()
	defer lock.Unlock()

	ctx = observability.WithCategory(ctx, string(c))
	start := time.Now()
	res, file, err := r.run(ctx, spec, p)
	res.Duration = time.Since(start)

	r.recorder.ObserveStageDuration(string(c), res.Duration)
	r.status.Record(res, file, err)
	if err != nil {
		r.recorder.IncStageResult(string(c), metrics.ResultFailed)
		observability.ErrorContext(ctx, "Stage failed",
			logfields.File(file),
			logfields.DurationMS(float64(res.Duration.Milliseconds())),
			logfields.Error(err))
		return res, err
	}

	r.recorder.IncStageResult(string(c), metrics.ResultSuccess)
	r.recorder.IncStageOutputs(string(c), len(res.Outputs))
	observability.InfoContext(ctx, "Stage completed",
		logfields.Files(res.Files),
		logfields.Outputs(len(res.Outputs)),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))

	if p.Enabled(profile.OptLiveReload) && r.notifier != nil {
		r.notifier.Notify(c)
	}
	return res, nil
}

// run performs one build. It returns the source file involved in a failure.
func (r *Runner) run(ctx context.Context, spec asset.Spec, p profile.Profile) (Result, string, error) {
	res := Result{Category: spec.Category}
	dest := asset.OpenTree(p.DestinationRoot)

	if err := reset(dest, spec); err != nil {
		return res, "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to reset destination").
			Fatal().
			WithContext("category", string(spec.Category)).
			WithContext("path", spec.DestDir).
			Build()
	}

	files, err := r.src.Enumerate(spec)
	if err != nil {
		return res, "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to enumerate sources").
			Fatal().
			WithContext("category", string(spec.Category)).
			Build()
	}
	res.Files = len(files)

	steps := r.pipelines[spec.Category].Active(p)
	var outputs []asset.Asset
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, f, err
		}
		data, err := r.src.ReadFile(f)
		if err != nil {
			return res, f, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to read source").
				Fatal().
				WithContext("category", string(spec.Category)).
				WithContext("file", f).
				Build()
		}
		out, err := r.apply(ctx, spec.Category, steps, asset.Asset{Path: f, Data: data})
		if err != nil {
			return res, f, err
		}
		outputs = append(outputs, out...)
	}

	for _, a := range outputs {
		target := spec.OutputPath(a.Path)
		if err := dest.WriteFile(target, a.Data); err != nil {
			return res, a.Path, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write output").
				Fatal().
				WithContext("category", string(spec.Category)).
				WithContext("file", target).
				Build()
		}
		res.Outputs = append(res.Outputs, target)
	}
	return res, "", nil
}

// apply threads an asset through the steps; each step sees every asset the
// previous one produced.
func (r *Runner) apply(ctx context.Context, c asset.Category, steps Pipeline, in asset.Asset) ([]asset.Asset, error) {
	current := []asset.Asset{in}
	for _, step := range steps {
		var next []asset.Asset
		for _, a := range current {
			out, err := step.Transform.Apply(ctx, r.src, a)
			if err != nil {
				return nil, ferrors.WrapError(err, ferrors.CategoryTransform, step.Name()+" failed").
					Fatal().
					WithContext("category", string(c)).
					WithContext("file", in.Path).
					WithContext("stage", step.Name()).
					Build()
			}
			next = append(next, out...)
		}
		current = next
	}
	return current, nil
}

// reset clears the category's previous output. Categories sharing the
// destination root only remove the files they own.
func reset(dest *asset.Tree, spec asset.Spec) error {
	if spec.DestDir == "" {
		owned, err := dest.Glob(spec.Clean)
		if err != nil {
			return err
		}
		for _, f := range owned {
			if err := dest.Remove(f); err != nil {
				return err
			}
		}
		return dest.MkdirAll(".")
	}
	if err := dest.RemoveAll(spec.DestDir); err != nil {
		return err
	}
	return dest.MkdirAll(spec.DestDir)
}
