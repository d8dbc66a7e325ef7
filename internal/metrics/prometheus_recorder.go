package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration    *prom.HistogramVec
	stageResults     *prom.CounterVec
	stageOutputs     *prom.CounterVec
	sequenceOutcome  *prom.CounterVec
	watchTriggers    *prom.CounterVec
	reloadBroadcasts *prom.CounterVec
	reloadClients    prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "assetpipe",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual transform stage runs",
			Buckets:   prom.DefBuckets,
		}, []string{"category"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetpipe",
			Name:      "stage_results_total",
			Help:      "Stage run counts by outcome",
		}, []string{"category", "result"}),
		stageOutputs: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetpipe",
			Name:      "stage_outputs_total",
			Help:      "Files written by stage runs",
		}, []string{"category"}),
		sequenceOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetpipe",
			Name:      "sequence_outcomes_total",
			Help:      "Initial build sequence outcomes by profile",
		}, []string{"profile", "outcome"}),
		watchTriggers: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetpipe",
			Name:      "watch_triggers_total",
			Help:      "Stage runs triggered by source file changes",
		}, []string{"category"}),
		reloadBroadcasts: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetpipe",
			Name:      "livereload_broadcasts_total",
			Help:      "Live reload notifications pushed to browsers",
		}, []string{"category"}),
		reloadClients: prom.NewGauge(prom.GaugeOpts{
			Namespace: "assetpipe",
			Name:      "livereload_clients",
			Help:      "Connected live reload clients",
		}),
	}
	reg.MustRegister(pr.stageDuration, pr.stageResults, pr.stageOutputs, pr.sequenceOutcome,
		pr.watchTriggers, pr.reloadBroadcasts, pr.reloadClients)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(category string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(category).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(category string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(category, string(result)).Inc()
}

func (p *PrometheusRecorder) IncStageOutputs(category string, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.stageOutputs.WithLabelValues(category).Add(float64(n))
}

func (p *PrometheusRecorder) IncSequenceOutcome(profile string, outcome OutcomeLabel) {
	if p == nil {
		return
	}
	p.sequenceOutcome.WithLabelValues(profile, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncWatchTrigger(category string) {
	if p == nil {
		return
	}
	p.watchTriggers.WithLabelValues(category).Inc()
}

func (p *PrometheusRecorder) IncLiveReloadBroadcast(category string) {
	if p == nil {
		return
	}
	p.reloadBroadcasts.WithLabelValues(category).Inc()
}

func (p *PrometheusRecorder) SetLiveReloadClients(n int) {
	if p == nil {
		return
	}
	p.reloadClients.Set(float64(n))
}
