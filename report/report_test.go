package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spool-ci/spool/workflow"
)

func twoJobDef() *workflow.Definition {
	return &workflow.Definition{
		Name: "ci",
		Jobs: workflow.Jobs{
			{Name: "build", Steps: []workflow.Step{{Run: "make"}}},
			{Name: "test", Steps: []workflow.Step{{Run: "make test"}}},
		},
	}
}

func feed(results ...JobResult) <-chan JobResult {
	ch := make(chan JobResult, len(results))
	for _, r := range results {
		ch <- r
	}
	close(ch)
	return ch
}

func TestCollectOrdersByDeclaration(t *testing.T) {
	def := twoJobDef()
	ev := workflow.Event{Kind: workflow.EventPush, Branch: "main"}

	// completions arrive out of declaration order
	run := Collect(def, "run-1", ev, feed(
		JobResult{Name: "test", Status: StatusSucceeded},
		JobResult{Name: "build", Status: StatusSucceeded},
	))

	require.Len(t, run.Jobs, 2)
	assert.Equal(t, "build", run.Jobs[0].Name)
	assert.Equal(t, "test", run.Jobs[1].Name)
	assert.Equal(t, StatusSucceeded, run.Overall)
	assert.Equal(t, 0, run.ExitCode())
}

func TestCollectAnyFailureFailsTheRun(t *testing.T) {
	def := twoJobDef()
	ev := workflow.Event{Kind: workflow.EventPush, Branch: "main"}

	run := Collect(def, "run-1", ev, feed(
		JobResult{Name: "build", Status: StatusFailed, Error: "exit 2"},
		JobResult{Name: "test", Status: StatusSkipped},
	))

	assert.Equal(t, StatusFailed, run.Overall)
	assert.Equal(t, 1, run.ExitCode())
}

func TestCollectSkippedJobsStillSucceed(t *testing.T) {
	def := twoJobDef()
	ev := workflow.Event{Kind: workflow.EventPush, Branch: "main"}

	run := Collect(def, "run-1", ev, feed(
		JobResult{Name: "build", Status: StatusSucceeded},
		JobResult{Name: "test", Status: StatusSkipped},
	))

	assert.Equal(t, StatusSucceeded, run.Overall)
	assert.Equal(t, 0, run.ExitCode())
}

func TestCollectMissingJobBecomesSkipped(t *testing.T) {
	def := twoJobDef()
	ev := workflow.Event{Kind: workflow.EventPush, Branch: "main"}

	run := Collect(def, "run-1", ev, feed(
		JobResult{Name: "build", Status: StatusSucceeded},
	))

	require.Len(t, run.Jobs, 2)
	assert.Equal(t, StatusSkipped, run.Jobs[1].Status)
}

func TestNoMatchIsNeutral(t *testing.T) {
	def := twoJobDef()
	ev := workflow.Event{Kind: workflow.EventPush, Branch: "dev"}

	run := NoMatch(def, "run-1", ev)

	assert.Equal(t, StatusNoMatch, run.Overall)
	assert.Equal(t, 0, run.ExitCode(), "a no-op run is not a failure")
	require.Len(t, run.Jobs, 2)
	for _, job := range run.Jobs {
		assert.Equal(t, StatusSkipped, job.Status)
		assert.Empty(t, job.Steps)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusSucceeded.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusSkipped.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
}

func TestSummaryRendersStepFailure(t *testing.T) {
	def := twoJobDef()
	ev := workflow.Event{Kind: workflow.EventPush, Branch: "main"}
	now := time.Now()

	run := Collect(def, "run-1", ev, feed(
		JobResult{
			Name:   "build",
			Status: StatusFailed,
			Steps: []StepResult{
				{Name: "fmt", Status: StatusSucceeded},
				{Name: "test", Status: StatusFailed, ExitCode: 101},
			},
			StartedAt:  now.Add(-3 * time.Second),
			FinishedAt: now,
		},
		JobResult{Name: "test", Status: StatusSkipped},
	))

	summary := run.Summary()
	assert.Contains(t, summary, "ci: failed")
	assert.Contains(t, summary, "build: failed")
	assert.Contains(t, summary, "test: failed (exit code 101)")
	assert.Contains(t, summary, "test: skipped")
}
