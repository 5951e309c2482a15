package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/spool-ci/spool/config"
	"github.com/spool-ci/spool/db"
	"github.com/spool-ci/spool/engine"
	"github.com/spool-ci/spool/engine/docker"
	"github.com/spool-ci/spool/engine/host"
	"github.com/spool-ci/spool/log"
	"github.com/spool-ci/spool/report"
	"github.com/spool-ci/spool/scheduler"
	"github.com/spool-ci/spool/workflow"
)

func main() {
	cmd := &cli.Command{
		Name:  "spool",
		Usage: "single-node CI workflow runner",
		Commands: []*cli.Command{
			runCommand(),
			checkCommand(),
			historyCommand(),
		},
	}

	ctx := context.Background()
	logger := log.New("spool")
	ctx = log.IntoContext(ctx, logger)

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "execute a workflow file against a triggering event",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Value: ".spool/workflow.yml", Usage: "workflow file to run"},
			&cli.StringFlag{Name: "event", Value: "push", Usage: "triggering event kind (push, pull_request)"},
			&cli.StringFlag{Name: "branch", Value: "main", Usage: "branch the event points at"},
			&cli.StringFlag{Name: "repo", Usage: "repository URL for checkout steps"},
			&cli.StringFlag{Name: "ref", Usage: "ref for checkout steps (defaults to the event branch)"},
			&cli.StringFlag{Name: "engine", Usage: "execution engine (host, docker)"},
			&cli.BoolFlag{Name: "json", Usage: "print the run result as JSON"},
		},
		Action: runAction,
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	l := log.FromContext(ctx)

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	path := cmd.String("file")
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading workflow file: %w", err)
	}

	def, err := workflow.FromFile(filepath.Base(path), contents)
	if err != nil {
		return err
	}

	kind, err := workflow.ParseEventKind(cmd.String("event"))
	if err != nil {
		return err
	}
	ev := workflow.Event{Kind: kind, Branch: cmd.String("branch")}

	runID := newRunID()

	if !def.Matches(ev) {
		l.Info("event matched no trigger rule", "workflow", def.Name, "event", ev.Kind, "branch", ev.Branch)
		return finish(cmd, cfg, report.NoMatch(def, runID, ev))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg, cmd, ev)
	if err != nil {
		return err
	}

	sched := scheduler.New(ctx, scheduler.Options{
		Engine:      eng,
		LogDir:      cfg.Runner.LogDir,
		MaxParallel: cfg.Runner.MaxParallel,
	})

	l.Info("starting run", "workflow", def.Name, "run", runID, "jobs", len(def.Jobs))
	results := sched.Execute(ctx, def, runID)
	run := report.Collect(def, runID, ev, results)

	return finish(cmd, cfg, run)
}

func buildEngine(ctx context.Context, cfg *config.Config, cmd *cli.Command, ev workflow.Event) (engine.Engine, error) {
	name := cmd.String("engine")
	if name == "" {
		name = cfg.Runner.Engine
	}

	ref := cmd.String("ref")
	if ref == "" {
		ref = ev.Branch
	}

	switch name {
	case "host":
		return host.New(ctx, host.Options{
			Shell:     cfg.Runner.Shell,
			Repo:      cmd.String("repo"),
			Ref:       ref,
			Workspace: cfg.Runner.Workspace,
			Timeout:   cfg.Runner.ParsedStepTimeout(),
		})
	case "docker":
		return docker.New(ctx, docker.Options{
			Image: cfg.Docker.Image,
			Repo:  cmd.String("repo"),
			Ref:   ref,
		})
	}

	return nil, fmt.Errorf("unknown engine %q", name)
}

// finish prints the run result, records history when configured, and
// converts the outcome into the process exit status.
func finish(cmd *cli.Command, cfg *config.Config, run *report.Run) error {
	if cmd.Bool("json") {
		out, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		fmt.Print(run.Summary())
	}

	if cfg.History.DBPath != "" {
		d, err := db.Make(cfg.History.DBPath)
		if err != nil {
			return fmt.Errorf("opening history db: %w", err)
		}
		defer d.Close()

		if err := d.RecordRun(run); err != nil {
			return fmt.Errorf("recording run: %w", err)
		}
	}

	if code := run.ExitCode(); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "parse and validate a workflow file without running it",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Value: ".spool/workflow.yml", Usage: "workflow file to check"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("file")
			contents, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading workflow file: %w", err)
			}

			def, err := workflow.FromFile(filepath.Base(path), contents)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			fmt.Printf("%s: ok (%d jobs)\n", def.Name, len(def.Jobs))
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list recent runs from the history database",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "number of runs to list"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(ctx)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.History.DBPath == "" {
				return fmt.Errorf("no history database configured (SPOOL_HISTORY_DB_PATH)")
			}

			d, err := db.Make(cfg.History.DBPath)
			if err != nil {
				return fmt.Errorf("opening history db: %w", err)
			}
			defer d.Close()

			runs, err := d.Runs(int(cmd.Int("limit")))
			if err != nil {
				return err
			}

			for _, r := range runs {
				fmt.Printf("%s  %-10s  %s/%s  %s\n", r.ID, r.Status, r.Event, r.Branch, r.Workflow)
			}
			return nil
		},
	}
}

func newRunID() string {
	return fmt.Sprintf("%s-%04x", time.Now().UTC().Format("20060102-150405"), rand.IntN(1<<16))
}
