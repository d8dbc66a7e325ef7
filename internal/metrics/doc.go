// Package metrics provides observability hooks for stage runs, sequences and
// live reload traffic.
//
// Components receive a Recorder through dependency injection. NoopRecorder is
// the default so callers never need nil checks; PrometheusRecorder is swapped
// in when metrics are enabled in configuration:
//
//	reg := prometheus.NewRegistry()
//	runner := stage.NewRunner(src, dest, stage.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// The dev server exposes the same registry on /metrics via HTTPHandler.
package metrics
