// Package docker executes steps inside containers: one step, one
// container, all sharing a per-job workspace volume and network.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/spool-ci/spool/engine"
	"github.com/spool-ci/spool/log"
	"github.com/spool-ci/spool/workflow"
)

const workspaceDir = "/spool/workspace"

type Options struct {
	Image string
	Repo  string
	Ref   string
}

type Engine struct {
	docker client.APIClient
	image  string
	repo   string
	ref    string
	l      *slog.Logger
}

func New(ctx context.Context, opts Options) (*Engine, error) {
	dcli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}

	l := log.FromContext(ctx).With("component", "engine/docker")

	return &Engine{
		docker: dcli,
		image:  opts.Image,
		repo:   opts.Repo,
		ref:    opts.Ref,
		l:      l,
	}, nil
}

// SetupJob creates the job's workspace volume and network, and pulls
// the base image. The pull is retried with backoff; this is registry
// flakiness handling, never a step retry.
func (e *Engine) SetupJob(ctx context.Context, id engine.JobID, job *workflow.Job) error {
	e.l.Info("setting up job", "job", id.String(), "image", e.image)

	_, err := e.docker.VolumeCreate(ctx, volume.CreateOptions{
		Name:   workspaceVolume(id),
		Driver: "local",
	})
	if err != nil {
		return err
	}

	_, err = e.docker.NetworkCreate(ctx, jobNetwork(id), network.CreateOptions{
		Driver: "bridge",
	})
	if err != nil {
		return err
	}

	return retry.Do(
		func() error {
			reader, err := e.docker.ImagePull(ctx, e.image, image.PullOptions{})
			if err != nil {
				return fmt.Errorf("pulling image %s: %w", e.image, err)
			}
			defer reader.Close()
			_, err = io.Copy(io.Discard, reader)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(2*time.Second),
	)
}

func (e *Engine) RunStep(ctx context.Context, id engine.JobID, job *workflow.Job, idx int, env map[string]string, logger *engine.RunLogger) error {
	step := &job.Steps[idx]

	command, err := engine.StepCommand(step, engine.CommandOptions{Repo: e.repo, Ref: e.ref})
	if err != nil {
		return err
	}

	workdir := workspaceDir
	if step.Dir != "" {
		workdir = workspaceDir + "/" + step.Dir
	}

	resp, err := e.docker.ContainerCreate(ctx, &container.Config{
		Image:      e.image,
		Cmd:        []string{"sh", "-c", command},
		WorkingDir: workdir,
		Tty:        false,
		Hostname:   "spool",
		Env:        engine.ConstructEnvs(env).Slice(),
	}, hostConfig(id), nil, nil, "")
	if err != nil {
		return fmt.Errorf("creating container: %w", err)
	}

	defer func() {
		err := e.docker.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true})
		if err != nil {
			e.l.Error("failed to remove container", "container", resp.ID, "error", err)
		}
	}()

	err = e.docker.NetworkConnect(ctx, jobNetwork(id), resp.ID, nil)
	if err != nil {
		return fmt.Errorf("connecting network: %w", err)
	}

	err = e.docker.ContainerStart(ctx, resp.ID, container.StartOptions{})
	if err != nil {
		return err
	}
	e.l.Info("started container", "container", resp.ID, "step", step.DisplayName())

	if err := e.tailStep(ctx, resp.ID, idx, logger); err != nil {
		e.l.Error("failed to tail container", "container", resp.ID, "error", err)
	}

	state, err := e.waitStep(ctx, resp.ID)
	if err != nil {
		return err
	}

	if state.ExitCode != 0 {
		return engine.StepError(step.Kind(), state.ExitCode)
	}

	return nil
}

func (e *Engine) DestroyJob(ctx context.Context, id engine.JobID) error {
	if err := e.docker.NetworkRemove(ctx, jobNetwork(id)); err != nil {
		return err
	}
	return e.docker.VolumeRemove(ctx, workspaceVolume(id), true)
}

// waitStep blocks until the container terminates, then reports its
// final state.
func (e *Engine) waitStep(ctx context.Context, containerID string) (*container.State, error) {
	wait, errCh := e.docker.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
	case <-wait:
	}

	info, err := e.docker.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, err
	}

	return info.State, nil
}

func (e *Engine) tailStep(ctx context.Context, containerID string, idx int, logger *engine.RunLogger) error {
	logs, err := e.docker.ContainerLogs(ctx, containerID, container.LogsOptions{
		Follow:     true,
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return err
	}

	go func() {
		_, err := stdcopy.StdCopy(logger.Stdout(idx), logger.Stderr(idx), logs)
		if err != nil && !errors.Is(err, context.Canceled) {
			e.l.Error("copying container logs", "container", containerID, "error", err)
		}
		_ = logs.Close()
	}()
	return nil
}

func workspaceVolume(id engine.JobID) string {
	return "workspace-" + id.String()
}

func jobNetwork(id engine.JobID) string {
	return "job-" + id.String()
}

func hostConfig(id engine.JobID) *container.HostConfig {
	return &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeVolume,
				Source: workspaceVolume(id),
				Target: workspaceDir,
			},
		},
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
	}
}
