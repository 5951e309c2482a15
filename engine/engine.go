package engine

import (
	"context"
	"fmt"
	"regexp"

	"github.com/spool-ci/spool/workflow"
)

// Engine executes the steps of a single job. One job maps to one
// sequential execution lane; RunStep is never called concurrently for
// the same JobID. Implementations run exactly one external process per
// step and consume its exit code as the sole success signal.
type Engine interface {
	// SetupJob prepares the execution context (workspace directory,
	// container network, ...) for a job.
	SetupJob(ctx context.Context, id JobID, job *workflow.Job) error

	// RunStep executes step idx of the job with the fully resolved
	// environment, streaming captured output into the run logger. It
	// blocks until the external process terminates. A nonzero exit
	// maps to a step error (see errors.go); all other errors are
	// infrastructure failures.
	RunStep(ctx context.Context, id JobID, job *workflow.Job, idx int, env map[string]string, logger *RunLogger) error

	// DestroyJob tears the execution context back down. Called even
	// after a failed step; partially completed steps are not rolled
	// back.
	DestroyJob(ctx context.Context, id JobID) error
}

var idRe = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// JobID identifies one job within one run.
type JobID struct {
	Run string
	Job string
}

func (id JobID) String() string {
	return fmt.Sprintf("%s-%s", normalize(id.Run), normalize(id.Job))
}

func normalize(name string) string {
	return idRe.ReplaceAllString(name, "-")
}
