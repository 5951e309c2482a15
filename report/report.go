// Package report aggregates per-job results into one run outcome. The
// aggregation is a pure fold over completion messages; job goroutines
// never mutate shared run state directly.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/spool-ci/spool/workflow"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"

	// StatusNoMatch is run-level only: the trigger did not match, the
	// run is a neutral no-op, not a failure.
	StatusNoMatch Status = "no-match"
)

// Terminal reports whether a job status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

type StepResult struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	ExitCode int    `json:"exit_code"`
	LogPath  string `json:"log_path,omitempty"`
}

type JobResult struct {
	Name       string       `json:"name"`
	Status     Status       `json:"status"`
	Error      string       `json:"error,omitempty"`
	Steps      []StepResult `json:"steps"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Run is one execution of a workflow definition against one triggering
// event. It exclusively owns its job results.
type Run struct {
	ID       string         `json:"id"`
	Workflow string         `json:"workflow"`
	Event    workflow.Event `json:"event"`
	Overall  Status         `json:"status"`
	Jobs     []JobResult    `json:"jobs"`
}

// SkippedJob is the result of a job that never ran because a
// dependency failed or the run was cancelled. No steps are attempted.
func SkippedJob(name string) JobResult {
	return JobResult{Name: name, Status: StatusSkipped}
}

// Collect folds job completions into the final run. Job results are
// reordered to declaration order regardless of completion order. The
// overall status is failed iff any job failed.
func Collect(def *workflow.Definition, runID string, ev workflow.Event, results <-chan JobResult) *Run {
	byName := make(map[string]JobResult, len(def.Jobs))
	for res := range results {
		byName[res.Name] = res
	}

	run := &Run{
		ID:       runID,
		Workflow: def.Name,
		Event:    ev,
		Overall:  StatusSucceeded,
	}

	for _, job := range def.Jobs {
		res, ok := byName[job.Name]
		if !ok {
			res = SkippedJob(job.Name)
		}
		run.Jobs = append(run.Jobs, res)

		if res.Status == StatusFailed {
			run.Overall = StatusFailed
		}
	}

	return run
}

// NoMatch builds the neutral "did not run" result for an event that
// matched no trigger rule.
func NoMatch(def *workflow.Definition, runID string, ev workflow.Event) *Run {
	run := &Run{
		ID:       runID,
		Workflow: def.Name,
		Event:    ev,
		Overall:  StatusNoMatch,
	}

	for _, job := range def.Jobs {
		run.Jobs = append(run.Jobs, SkippedJob(job.Name))
	}

	return run
}

// ExitCode maps the run outcome to a process exit status: zero unless
// a job failed.
func (r *Run) ExitCode() int {
	if r.Overall == StatusFailed {
		return 1
	}
	return 0
}

// Summary renders the per-job, per-step statuses as text.
func (r *Run) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s: %s\n", r.Workflow, r.Overall)

	for _, job := range r.Jobs {
		fmt.Fprintf(&b, "  %s: %s%s\n", job.Name, job.Status, jobDuration(job))

		for _, step := range job.Steps {
			if step.Status == StatusFailed {
				fmt.Fprintf(&b, "    %s: %s (exit code %d)\n", step.Name, step.Status, step.ExitCode)
			} else {
				fmt.Fprintf(&b, "    %s: %s\n", step.Name, step.Status)
			}
		}

		if job.Error != "" {
			fmt.Fprintf(&b, "    error: %s\n", job.Error)
		}
	}

	return b.String()
}

func jobDuration(job JobResult) string {
	if job.StartedAt.IsZero() || job.FinishedAt.IsZero() {
		return ""
	}
	return fmt.Sprintf(" (%s)", strings.TrimSpace(humanize.RelTime(job.StartedAt, job.FinishedAt, "", "")))
}
