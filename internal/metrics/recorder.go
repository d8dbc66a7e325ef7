package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
)

// OutcomeLabel enumerates sequence outcomes.
type OutcomeLabel string

const (
	OutcomeSuccess OutcomeLabel = "success"
	OutcomeFailed  OutcomeLabel = "failed"
)

// Recorder defines observability hooks for stage and sequence metrics.
type Recorder interface {
	ObserveStageDuration(category string, d time.Duration)
	IncStageResult(category string, result ResultLabel)
	IncStageOutputs(category string, n int)
	IncSequenceOutcome(profile string, outcome OutcomeLabel)
	IncWatchTrigger(category string)
	IncLiveReloadBroadcast(category string)
	SetLiveReloadClients(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)  {}
func (NoopRecorder) IncStageResult(string, ResultLabel)          {}
func (NoopRecorder) IncStageOutputs(string, int)                 {}
func (NoopRecorder) IncSequenceOutcome(string, OutcomeLabel)     {}
func (NoopRecorder) IncWatchTrigger(string)                      {}
func (NoopRecorder) IncLiveReloadBroadcast(string)               {}
func (NoopRecorder) SetLiveReloadClients(int)                    {}
