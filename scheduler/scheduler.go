// Package scheduler runs the jobs of a workflow definition in
// dependency order. Independent jobs run concurrently through a worker
// queue; a failed dependency skips its dependents; completions flow to
// the reporter over a single channel.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/spool-ci/spool/engine"
	"github.com/spool-ci/spool/log"
	"github.com/spool-ci/spool/queue"
	"github.com/spool-ci/spool/report"
	"github.com/spool-ci/spool/workflow"
)

type Options struct {
	Engine engine.Engine
	LogDir string

	// MaxParallel bounds the number of concurrently running jobs;
	// zero means one worker per job.
	MaxParallel int
}

type Scheduler struct {
	eng         engine.Engine
	logDir      string
	maxParallel int
	l           *slog.Logger
}

func New(ctx context.Context, opts Options) *Scheduler {
	return &Scheduler{
		eng:         opts.Engine,
		logDir:      opts.LogDir,
		maxParallel: opts.MaxParallel,
		l:           log.FromContext(ctx).With("component", "scheduler"),
	}
}

// Execute starts the run and returns the channel of job completions.
// The channel is closed once every job has reached a terminal status;
// the scheduler itself never fails. Feed the channel to report.Collect.
func (s *Scheduler) Execute(ctx context.Context, def *workflow.Definition, runID string) <-chan report.JobResult {
	out := make(chan report.JobResult, len(def.Jobs))
	go s.dispatch(ctx, def, runID, out)
	return out
}

func (s *Scheduler) dispatch(ctx context.Context, def *workflow.Definition, runID string, out chan<- report.JobResult) {
	defer close(out)

	workers := s.maxParallel
	if workers <= 0 {
		workers = len(def.Jobs)
	}

	q := queue.NewQueue(len(def.Jobs), workers)
	q.Start()
	defer q.Stop()

	status := make(map[string]report.Status, len(def.Jobs))
	for _, job := range def.Jobs {
		status[job.Name] = report.StatusPending
	}

	done := make(chan report.JobResult)
	running := 0

	for {
		for progress := true; progress; {
			progress = false

			for _, job := range def.Jobs {
				if status[job.Name] != report.StatusPending {
					continue
				}

				switch s.depState(job, status) {
				case depsBlocked:
					status[job.Name] = report.StatusSkipped
					out <- report.SkippedJob(job.Name)
					progress = true

				case depsReady:
					if ctx.Err() != nil {
						// cancelled runs skip everything not yet started
						status[job.Name] = report.StatusSkipped
						out <- report.SkippedJob(job.Name)
						progress = true
						continue
					}

					status[job.Name] = report.StatusRunning
					running++
					progress = true

					enqueued := q.Enqueue(queue.Job{
						Run: func() error {
							done <- s.runJob(ctx, def, job, runID)
							return nil
						},
					})
					if !enqueued {
						// queue is sized to the job count, so this
						// only happens on a misconfigured queue
						go func() {
							done <- s.runJob(ctx, def, job, runID)
						}()
					}
				}
			}
		}

		if running == 0 {
			return
		}

		res := <-done
		running--
		status[res.Name] = res.Status
		out <- res
	}
}

type depState int

const (
	depsWaiting depState = iota
	depsReady
	depsBlocked
)

// depState decides whether a pending job can launch: ready once every
// dependency succeeded, blocked as soon as one failed or was skipped.
func (s *Scheduler) depState(job workflow.Job, status map[string]report.Status) depState {
	state := depsReady
	for _, dep := range job.Needs {
		switch status[dep] {
		case report.StatusFailed, report.StatusSkipped:
			return depsBlocked
		case report.StatusSucceeded:
			continue
		default:
			state = depsWaiting
		}
	}
	return state
}

// runJob executes one job's steps strictly in declaration order with
// fail-stop semantics: the first failing step ends the job, later
// steps are never attempted.
func (s *Scheduler) runJob(ctx context.Context, def *workflow.Definition, job workflow.Job, runID string) report.JobResult {
	// a cancelled run can still have jobs queued behind the worker
	// limit; nothing of those ever started, so they skip
	if ctx.Err() != nil {
		return report.SkippedJob(job.Name)
	}

	id := engine.JobID{Run: runID, Job: job.Name}

	res := report.JobResult{
		Name:      job.Name,
		Status:    report.StatusRunning,
		StartedAt: time.Now(),
	}

	logger, err := engine.NewRunLogger(s.logDir, id)
	if err != nil {
		return s.failJob(res, err)
	}
	defer logger.Close()

	if err := s.eng.SetupJob(ctx, id, &job); err != nil {
		return s.failJob(res, err)
	}
	defer func() {
		if err := s.eng.DestroyJob(context.WithoutCancel(ctx), id); err != nil {
			s.l.Error("failed to destroy job", "job", id.String(), "error", err)
		}
	}()

	base := engine.BaseEnv()
	for idx := range job.Steps {
		step := &job.Steps[idx]

		// job-scope environment is reserved; nothing populates it yet
		env := engine.ResolveEnv(base, def.Env, nil, step.Env)

		stepRes := report.StepResult{
			Name:    step.DisplayName(),
			Status:  report.StatusSucceeded,
			LogPath: logger.Path(),
		}

		err := s.eng.RunStep(ctx, id, &job, idx, env, logger)
		if err != nil {
			stepRes.Status = report.StatusFailed
			stepRes.ExitCode = engine.ExitCode(err)
			res.Steps = append(res.Steps, stepRes)

			s.l.Error("step failed", "job", id.String(), "step", step.DisplayName(), "error", err)
			return s.failJob(res, err)
		}

		res.Steps = append(res.Steps, stepRes)
	}

	res.Status = report.StatusSucceeded
	res.FinishedAt = time.Now()
	s.l.Info("job succeeded", "job", id.String())
	return res
}

func (s *Scheduler) failJob(res report.JobResult, err error) report.JobResult {
	res.Status = report.StatusFailed
	res.Error = err.Error()
	res.FinishedAt = time.Now()
	return res
}
