package host

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spool-ci/spool/engine"
	"github.com/spool-ci/spool/workflow"
)

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Shell == "" {
		opts.Shell = "/bin/sh"
	}
	if opts.Workspace == "" {
		opts.Workspace = t.TempDir()
	}

	eng, err := New(context.Background(), opts)
	require.NoError(t, err)
	return eng
}

func newTestLogger(t *testing.T, id engine.JobID) *engine.RunLogger {
	t.Helper()
	logger, err := engine.NewRunLogger(t.TempDir(), id)
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })
	return logger
}

func runSingleStep(t *testing.T, eng *Engine, step workflow.Step, env map[string]string) error {
	t.Helper()

	ctx := context.Background()
	id := engine.JobID{Run: "test", Job: "job"}
	job := &workflow.Job{Name: "job", Steps: []workflow.Step{step}}

	require.NoError(t, eng.SetupJob(ctx, id, job))
	t.Cleanup(func() { eng.DestroyJob(ctx, id) })

	return eng.RunStep(ctx, id, job, 0, env, newTestLogger(t, id))
}

func TestRunStepSucceeds(t *testing.T) {
	eng := newTestEngine(t, Options{})
	err := runSingleStep(t, eng, workflow.Step{Run: "true"}, nil)
	assert.NoError(t, err)
}

func TestRunStepExitCode(t *testing.T) {
	eng := newTestEngine(t, Options{})
	err := runSingleStep(t, eng, workflow.Step{Run: "exit 7"}, nil)

	require.Error(t, err)
	var exit *engine.CommandExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 7, exit.Code)
	assert.Equal(t, 7, engine.ExitCode(err))
}

func TestRunStepSeesResolvedEnv(t *testing.T) {
	eng := newTestEngine(t, Options{})
	err := runSingleStep(t, eng, workflow.Step{Run: `test "$COLOR" = never`}, map[string]string{"COLOR": "never"})
	assert.NoError(t, err)
}

func TestRunStepCapturesOutput(t *testing.T) {
	eng := newTestEngine(t, Options{})

	ctx := context.Background()
	id := engine.JobID{Run: "test", Job: "echo"}
	job := &workflow.Job{Name: "echo", Steps: []workflow.Step{{Run: "echo captured"}}}
	logger := newTestLogger(t, id)

	require.NoError(t, eng.SetupJob(ctx, id, job))
	defer eng.DestroyJob(ctx, id)

	require.NoError(t, eng.RunStep(ctx, id, job, 0, nil, logger))
	require.NoError(t, logger.Close())

	contents, err := os.ReadFile(logger.Path())
	require.NoError(t, err)
	assert.Contains(t, string(contents), "captured")
}

func TestCheckoutWithoutRepoFails(t *testing.T) {
	eng := newTestEngine(t, Options{})
	err := runSingleStep(t, eng, workflow.Step{Checkout: &workflow.CheckoutAction{}}, nil)
	assert.ErrorIs(t, err, engine.ErrCheckoutFailed)
}

func TestSetupCreatesJobDir(t *testing.T) {
	workspace := t.TempDir()
	eng := newTestEngine(t, Options{Workspace: workspace})

	ctx := context.Background()
	id := engine.JobID{Run: "test", Job: "dir"}
	job := &workflow.Job{Name: "dir"}

	require.NoError(t, eng.SetupJob(ctx, id, job))

	info, err := os.Stat(filepath.Join(workspace, id.String()))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, eng.DestroyJob(ctx, id))
	_, err = os.Stat(filepath.Join(workspace, id.String()))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestStepDirStaysInsideJobDir(t *testing.T) {
	workspace := t.TempDir()
	eng := newTestEngine(t, Options{Workspace: workspace})

	ctx := context.Background()
	id := engine.JobID{Run: "test", Job: "escape"}
	job := &workflow.Job{Name: "escape", Steps: []workflow.Step{
		{Run: "touch marker", Dir: "../../.."},
	}}

	require.NoError(t, eng.SetupJob(ctx, id, job))
	defer eng.DestroyJob(ctx, id)

	require.NoError(t, eng.RunStep(ctx, id, job, 0, nil, newTestLogger(t, id)))

	assert.FileExists(t, filepath.Join(workspace, id.String(), "marker"), "traversal is clamped to the job dir")
	assert.NoFileExists(t, filepath.Join(workspace, "marker"))
}

func TestRunStepCancellation(t *testing.T) {
	eng := newTestEngine(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	id := engine.JobID{Run: "test", Job: "cancel"}
	job := &workflow.Job{Name: "cancel", Steps: []workflow.Step{{Run: "sleep 30"}}}
	logger := newTestLogger(t, id)

	require.NoError(t, eng.SetupJob(ctx, id, job))
	defer eng.DestroyJob(context.Background(), id)

	done := make(chan error, 1)
	go func() {
		done <- eng.RunStep(ctx, id, job, 0, nil, logger)
	}()

	cancel()
	err := <-done
	assert.Error(t, err, "cancelled step should terminate its external process")
}
