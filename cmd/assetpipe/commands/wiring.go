package commands

import (
	"log/slog"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/assetpipe/internal/asset"
	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/devserver"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/pipeline"
	"git.home.luguber.info/inful/assetpipe/internal/profile"
	"git.home.luguber.info/inful/assetpipe/internal/stage"
)

// newSequencer wires the stage runner, dev server and metrics for cfg.
// overrides is merged over the per-profile options of the configuration.
func newSequencer(cfg *config.Config, overrides map[profile.Name]profile.OptionSet, logger *slog.Logger) *pipeline.Sequencer {
	var (
		recorder       metrics.Recorder = metrics.NoopRecorder{}
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		reg := prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		metricsHandler = metrics.HTTPHandler(reg)
	}

	status := stage.NewStatusTracker()
	srv := devserver.New(devserver.Config{
		Host:     cfg.Server.Host,
		Port:     cfg.Server.Port,
		Status:   status,
		Metrics:  metricsHandler,
		Recorder: recorder,
		Logger:   logger,
	})
	runner := stage.NewRunner(asset.OpenTree(cfg.Paths.Source),
		stage.WithRecorder(recorder),
		stage.WithNotifier(srv),
		stage.WithStatus(status))

	return pipeline.New(pipeline.Settings{
		SourceRoot:      cfg.Paths.Source,
		DestinationRoot: cfg.Paths.Destination,
		Overrides:       profileOverrides(cfg, overrides),
		Debounce:        cfg.Watch.DebounceDuration(),
	}, runner,
		pipeline.WithRecorder(recorder),
		pipeline.WithServer(srv))
}

func profileOverrides(cfg *config.Config, extra map[profile.Name]profile.OptionSet) map[profile.Name]profile.OptionSet {
	out := map[profile.Name]profile.OptionSet{}
	for _, name := range []profile.Name{profile.Dev, profile.Release} {
		opts := cfg.ProfileOptions(name)
		for k, v := range extra[name] {
			opts[k] = v
		}
		out[name] = opts
	}
	return out
}
