package run

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "0", StatusSuccess.Code())
	assert.Equal(t, "1", StatusFailure.Code())
}

func TestReportStatus(t *testing.T) {
	tests := []struct {
		name   string
		stages []StageResult
		want   Status
	}{
		{
			name: "empty report",
			want: StatusSuccess,
		},
		{
			name: "all stages succeed",
			stages: []StageResult{
				{Stage: StageQuery, Outcome: OutcomeSuccess},
				{Stage: StageResolve, Outcome: OutcomeSuccess},
				{Stage: StageDispatch, Outcome: OutcomeSuccess},
			},
			want: StatusSuccess,
		},
		{
			name: "resolution partial failure keeps success",
			stages: []StageResult{
				{Stage: StageQuery, Outcome: OutcomeSuccess},
				{Stage: StageResolve, Outcome: OutcomePartialFailure, Details: []string{"jdoe: no manager"}},
				{Stage: StageDispatch, Outcome: OutcomeSuccess},
			},
			want: StatusSuccess,
		},
		{
			name: "dispatch partial failure fails the run",
			stages: []StageResult{
				{Stage: StageQuery, Outcome: OutcomeSuccess},
				{Stage: StageDispatch, Outcome: OutcomePartialFailure, Details: []string{"boss@example.com: refused"}},
			},
			want: StatusFailure,
		},
		{
			name: "fatal query",
			stages: []StageResult{
				{Stage: StageQuery, Outcome: OutcomeFatal, Cause: errors.New("ldap down")},
			},
			want: StatusFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Report{}
			for _, s := range tt.stages {
				r.Record(s)
			}
			assert.Equal(t, tt.want, r.Status())
		})
	}
}

func TestReportStageLookup(t *testing.T) {
	r := &Report{}
	r.Fatal(StageSetup, errors.New("boom"))

	res, ok := r.Stage(StageSetup)
	assert.True(t, ok)
	assert.Equal(t, OutcomeFatal, res.Outcome)
	assert.EqualError(t, res.Cause, "boom")

	_, ok = r.Stage(StageDispatch)
	assert.False(t, ok)
}

func TestReportDuration(t *testing.T) {
	start := time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC)
	r := &Report{StartedAt: start}
	assert.Zero(t, r.Duration())

	r.FinishedAt = start.Add(90 * time.Second)
	assert.Equal(t, 90*time.Second, r.Duration())
}
