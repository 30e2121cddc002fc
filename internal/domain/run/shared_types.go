// internal/domain/run/shared_types.go
package run

// Status is the coarse outcome persisted after every invocation.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// Code returns the single-character form written to the status file.
func (s Status) Code() string {
	if s == StatusSuccess {
		return "0"
	}
	return "1"
}

// Stage names one step of the notification pipeline.
type Stage string

const (
	StageSetup     Stage = "SETUP"
	StageQuery     Stage = "QUERY"
	StageResolve   Stage = "RESOLVE"
	StageAggregate Stage = "AGGREGATE"
	StageDispatch  Stage = "DISPATCH"
)

// Outcome classifies how a stage ended.
type Outcome string

const (
	OutcomeSuccess        Outcome = "SUCCESS"
	OutcomePartialFailure Outcome = "PARTIAL_FAILURE" // Some items failed, the stage carried on
	OutcomeFatal          Outcome = "FATAL"           // The stage aborted the run
)
