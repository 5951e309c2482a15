// Package host executes steps directly on the host: one step, one
// external process through the configured shell.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/spool-ci/spool/engine"
	"github.com/spool-ci/spool/log"
	"github.com/spool-ci/spool/workflow"
)

type Options struct {
	Shell     string
	Repo      string
	Ref       string
	Workspace string
	Timeout   time.Duration
}

type Engine struct {
	shell     string
	repo      string
	ref       string
	workspace string
	timeout   time.Duration
	l         *slog.Logger
}

func New(ctx context.Context, opts Options) (*Engine, error) {
	shell := opts.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	workspace := opts.Workspace
	if workspace == "" {
		dir, err := os.MkdirTemp("", "spool-workspace-")
		if err != nil {
			return nil, fmt.Errorf("creating workspace: %w", err)
		}
		workspace = dir
	}

	l := log.FromContext(ctx).With("component", "engine/host")

	return &Engine{
		shell:     shell,
		repo:      opts.Repo,
		ref:       opts.Ref,
		workspace: workspace,
		timeout:   opts.Timeout,
		l:         l,
	}, nil
}

func (e *Engine) jobDir(id engine.JobID) string {
	return filepath.Join(e.workspace, id.String())
}

func (e *Engine) SetupJob(ctx context.Context, id engine.JobID, job *workflow.Job) error {
	e.l.Info("setting up job workspace", "job", id.String())
	return os.MkdirAll(e.jobDir(id), 0755)
}

func (e *Engine) RunStep(ctx context.Context, id engine.JobID, job *workflow.Job, idx int, env map[string]string, logger *engine.RunLogger) error {
	step := &job.Steps[idx]

	command, err := engine.StepCommand(step, engine.CommandOptions{Repo: e.repo, Ref: e.ref})
	if err != nil {
		return err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	// working-directory stays inside the job workspace, whatever
	// relative components it carries
	dir := e.jobDir(id)
	if step.Dir != "" {
		dir, err = securejoin.SecureJoin(dir, step.Dir)
		if err != nil {
			return fmt.Errorf("resolving step directory %q: %w", step.Dir, err)
		}
	}

	cmd := exec.CommandContext(ctx, e.shell, "-c", command)
	cmd.Dir = dir
	cmd.Env = engine.ConstructEnvs(env).Slice()
	cmd.Stdout = logger.Stdout(idx)
	cmd.Stderr = logger.Stderr(idx)

	e.l.Info("running step", "job", id.String(), "step", step.DisplayName())

	err = cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return engine.StepError(step.Kind(), exitErr.ExitCode())
	}

	return fmt.Errorf("running step %q: %w", step.DisplayName(), err)
}

func (e *Engine) DestroyJob(ctx context.Context, id engine.JobID) error {
	return os.RemoveAll(e.jobDir(id))
}
