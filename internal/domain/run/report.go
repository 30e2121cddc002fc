// internal/domain/run/report.go
package run

import "time"

// StageResult records how one pipeline stage ended and why.
type StageResult struct {
	Stage   Stage
	Outcome Outcome
	Details []string // One line per failed item for PartialFailure
	Cause   error    // Set for Fatal
}

// Report summarises a single job invocation.
type Report struct {
	RunID      string
	Window     int
	StartedAt  time.Time
	FinishedAt time.Time
	Stages     []StageResult

	Candidates int // Accounts returned by the directory query
	Selected   int // Accounts passing the selection rule and fully resolved
	Unresolved int // Accounts dropped because a lookup failed
	Batches    int
	Sent       int
	SendFailed int
}

// Record appends a stage result to the report.
func (r *Report) Record(res StageResult) {
	r.Stages = append(r.Stages, res)
}

// Fatal records a fatal outcome for stage.
func (r *Report) Fatal(stage Stage, cause error) {
	r.Record(StageResult{Stage: stage, Outcome: OutcomeFatal, Cause: cause})
}

// Status derives the persisted status. A run fails when any stage was fatal or
// when a notification could not be handed to the relay. Per-account lookup
// failures are reported but leave the run successful.
func (r *Report) Status() Status {
	for _, s := range r.Stages {
		if s.Outcome == OutcomeFatal {
			return StatusFailure
		}
		if s.Stage == StageDispatch && s.Outcome == OutcomePartialFailure {
			return StatusFailure
		}
	}
	return StatusSuccess
}

// Stage returns the result recorded for stage, if any.
func (r *Report) Stage(stage Stage) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s, true
		}
	}
	return StageResult{}, false
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
