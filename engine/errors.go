package engine

import (
	"errors"
	"fmt"

	"github.com/spool-ci/spool/workflow"
)

var (
	ErrCheckoutFailed       = errors.New("checkout failed")
	ErrToolchainUnavailable = errors.New("toolchain unavailable")
)

// CommandExitError reports a step's external process exiting nonzero.
type CommandExitError struct {
	Code int
}

func (e *CommandExitError) Error() string {
	return fmt.Sprintf("command failed with exit code %d", e.Code)
}

// StepError wraps a nonzero exit in the error matching the step kind,
// keeping the exit code recoverable through errors.As.
func StepError(kind workflow.StepKind, code int) error {
	exit := &CommandExitError{Code: code}
	switch kind {
	case workflow.StepKindCheckout:
		return fmt.Errorf("%w: %w", ErrCheckoutFailed, exit)
	case workflow.StepKindToolchain:
		return fmt.Errorf("%w: %w", ErrToolchainUnavailable, exit)
	}
	return exit
}

// ExitCode extracts the external process exit code from a step error,
// or -1 when the step never produced one.
func ExitCode(err error) int {
	var exit *CommandExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return -1
}
