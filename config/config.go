package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Runner struct {
	Engine      string `env:"ENGINE, default=host"`
	Shell       string `env:"SHELL, default=/bin/sh"`
	Workspace   string `env:"WORKSPACE"`
	LogDir      string `env:"LOG_DIR, default=/var/log/spool"`
	MaxParallel int    `env:"MAX_PARALLEL, default=0"`
	StepTimeout string `env:"STEP_TIMEOUT, default=30m"`
}

// ParsedStepTimeout returns the configured per-step timeout,
// falling back to 30 minutes on a bad duration string.
func (r Runner) ParsedStepTimeout() time.Duration {
	d, err := time.ParseDuration(r.StepTimeout)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

type Docker struct {
	Image string `env:"IMAGE, default=alpine:latest"`
}

type History struct {
	DBPath string `env:"DB_PATH"`
}

type Config struct {
	Runner  Runner  `env:",prefix=SPOOL_RUNNER_"`
	Docker  Docker  `env:",prefix=SPOOL_DOCKER_"`
	History History `env:",prefix=SPOOL_HISTORY_"`
}

func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	err := envconfig.Process(ctx, &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
