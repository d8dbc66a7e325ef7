package stage

import (
	"sync"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/asset"
)

// RunStatus is the outcome of the most recent run of a category.
type RunStatus struct {
	Category   asset.Category `json:"category"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	File       string         `json:"file,omitempty"`
	Files      int            `json:"files"`
	Outputs    int            `json:"outputs"`
	DurationMS int64          `json:"duration_ms"`
	FinishedAt time.Time      `json:"finished_at"`
}

// StatusTracker remembers the last run of each category. It is safe for
// concurrent use.
type StatusTracker struct {
	mu   sync.RWMutex
	last map[asset.Category]RunStatus
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{last: make(map[asset.Category]RunStatus)}
}

// Record stores the outcome of a run.
func (t *StatusTracker) Record(res Result, file string, err error) {
	if t == nil {
		return
	}
	st := RunStatus{
		Category:   res.Category,
		Success:    err == nil,
		Files:      res.Files,
		Outputs:    len(res.Outputs),
		DurationMS: res.Duration.Milliseconds(),
		FinishedAt: time.Now().UTC(),
	}
	if err != nil {
		st.Error = err.Error()
		st.File = file
	}
	t.mu.Lock()
	t.last[res.Category] = st
	t.mu.Unlock()
}

// Last returns the most recent run of c.
func (t *StatusTracker) Last(c asset.Category) (RunStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.last[c]
	return st, ok
}

// Snapshot returns the recorded runs in build order.
func (t *StatusTracker) Snapshot() []RunStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]RunStatus, 0, len(t.last))
	for _, c := range asset.Categories() {
		if st, ok := t.last[c]; ok {
			out = append(out, st)
		}
	}
	return out
}

// Healthy reports whether no recorded run failed.
func (t *StatusTracker) Healthy() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, st := range t.last {
		if !st.Success {
			return false
		}
	}
	return true
}
