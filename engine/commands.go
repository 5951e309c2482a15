package engine

import (
	"fmt"
	"strings"

	"github.com/spool-ci/spool/workflow"
)

// CommandOptions carries the run-level context a step command needs:
// the repository to fetch and the ref the triggering event points at.
type CommandOptions struct {
	Repo string
	Ref  string
}

// StepCommand renders the single shell invocation a step maps to.
// Every step kind becomes exactly one external process; multi-line
// commands run under one shell.
func StepCommand(step *workflow.Step, opts CommandOptions) (string, error) {
	switch step.Kind() {
	case workflow.StepKindCheckout:
		if opts.Repo == "" {
			return "", fmt.Errorf("%w: no repository configured", ErrCheckoutFailed)
		}
		return strings.Join(checkoutCommands(opts, step.Checkout.Submodules), "\n"), nil

	case workflow.StepKindToolchain:
		return toolchainCommand(step.Toolchain)

	case workflow.StepKindRun:
		return step.Run, nil
	}

	return "", fmt.Errorf("step %q declares no action", step.DisplayName())
}

// checkoutCommands generates the git commands fetching the triggering
// ref into the workspace. The caller must ensure the working directory
// is the desired workspace before executing them.
func checkoutCommands(opts CommandOptions, submodules bool) []string {
	fetchArgs := []string{"--depth=1"}
	if submodules {
		fetchArgs = append(fetchArgs, "--recurse-submodules=yes")
	}
	fetchArgs = append(fetchArgs, "origin")
	if opts.Ref != "" {
		fetchArgs = append(fetchArgs, opts.Ref)
	}

	return []string{
		"git init",
		fmt.Sprintf("git remote add origin %s", opts.Repo),
		fmt.Sprintf("git fetch %s", strings.Join(fetchArgs, " ")),
		"git checkout FETCH_HEAD",
	}
}

// toolchainCommand maps a toolchain spec to one installer invocation.
// The installer itself is an opaque external collaborator; only its
// exit code is consumed.
func toolchainCommand(t *workflow.ToolchainAction) (string, error) {
	if t.Toolchain == "" {
		return "", fmt.Errorf("%w: empty toolchain spec", ErrToolchainUnavailable)
	}

	args := []string{"rustup", "toolchain", "install", t.Toolchain}
	for _, c := range t.Components {
		args = append(args, "--component", c)
	}

	return strings.Join(args, " "), nil
}
