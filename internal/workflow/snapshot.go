package workflow

import "time"

// Snapshot is a point-in-time view of a run for progress display.
type Snapshot struct {
	RunID      string     `json:"runId"`
	State      State      `json:"state"`
	Step       int        `json:"step"`
	StepLabel  string     `json:"stepLabel"`
	Responses  []Entry    `json:"responses"`
	PayURL     string     `json:"payUrl,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

func (r *Run) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		RunID:     r.id,
		State:     r.state,
		Step:      r.state.Step(),
		StepLabel: r.state.Label(),
		Responses: make([]Entry, len(r.entries)),
		PayURL:    r.payURL,
	}
	copy(snap.Responses, r.entries)
	if r.err != nil {
		snap.Error = r.err.Error()
	}
	if !r.startedAt.IsZero() {
		started := r.startedAt
		snap.StartedAt = &started
	}
	if !r.finishedAt.IsZero() {
		finished := r.finishedAt
		snap.FinishedAt = &finished
	}
	return snap
}
