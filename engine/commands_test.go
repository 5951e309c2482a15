package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spool-ci/spool/workflow"
)

func TestCheckoutCommand(t *testing.T) {
	step := &workflow.Step{Checkout: &workflow.CheckoutAction{Submodules: true}}
	opts := CommandOptions{Repo: "https://example.com/repo.git", Ref: "main"}

	command, err := StepCommand(step, opts)
	require.NoError(t, err)

	lines := strings.Split(command, "\n")
	assert.Equal(t, []string{
		"git init",
		"git remote add origin https://example.com/repo.git",
		"git fetch --depth=1 --recurse-submodules=yes origin main",
		"git checkout FETCH_HEAD",
	}, lines)
}

func TestCheckoutWithoutSubmodules(t *testing.T) {
	step := &workflow.Step{Checkout: &workflow.CheckoutAction{}}
	opts := CommandOptions{Repo: "https://example.com/repo.git"}

	command, err := StepCommand(step, opts)
	require.NoError(t, err)
	assert.NotContains(t, command, "--recurse-submodules")
}

func TestCheckoutWithoutRepo(t *testing.T) {
	step := &workflow.Step{Checkout: &workflow.CheckoutAction{}}

	_, err := StepCommand(step, CommandOptions{})
	assert.ErrorIs(t, err, ErrCheckoutFailed)
}

func TestToolchainCommand(t *testing.T) {
	step := &workflow.Step{Toolchain: &workflow.ToolchainAction{
		Toolchain:  "nightly",
		Components: workflow.StringList{"rustfmt", "clippy"},
	}}

	command, err := StepCommand(step, CommandOptions{})
	require.NoError(t, err)
	assert.Equal(t, "rustup toolchain install nightly --component rustfmt --component clippy", command)
}

func TestToolchainEmptySpec(t *testing.T) {
	step := &workflow.Step{Toolchain: &workflow.ToolchainAction{}}

	_, err := StepCommand(step, CommandOptions{})
	assert.ErrorIs(t, err, ErrToolchainUnavailable)
}

func TestRunCommandPassthrough(t *testing.T) {
	step := &workflow.Step{Run: "cargo test --all-features"}

	command, err := StepCommand(step, CommandOptions{})
	require.NoError(t, err)
	assert.Equal(t, "cargo test --all-features", command)
}

func TestStepErrorMapping(t *testing.T) {
	checkout := StepError(workflow.StepKindCheckout, 128)
	assert.ErrorIs(t, checkout, ErrCheckoutFailed)
	assert.Equal(t, 128, ExitCode(checkout))

	toolchain := StepError(workflow.StepKindToolchain, 1)
	assert.ErrorIs(t, toolchain, ErrToolchainUnavailable)
	assert.Equal(t, 1, ExitCode(toolchain))

	run := StepError(workflow.StepKindRun, 101)
	assert.NotErrorIs(t, run, ErrCheckoutFailed)
	assert.Equal(t, 101, ExitCode(run))

	assert.Equal(t, -1, ExitCode(assert.AnError))
}
