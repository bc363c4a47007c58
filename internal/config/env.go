package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3100"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".fieldops/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"fieldops/"`
	S3Region string `envconfig:"S3_REGION" default:"eu-west-1"`
}

type DispatchEnv struct {
	// Empty means the built-in policy.
	PolicyFile  string `envconfig:"DISPATCH_POLICY_FILE"`
	PolicyWatch bool   `envconfig:"DISPATCH_POLICY_WATCH" default:"true"`
}

type SweepEnv struct {
	Interval    time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	Concurrency int           `envconfig:"SWEEP_CONCURRENCY" default:"4"`
}

type AMQPEnv struct {
	// Empty disables the event relay.
	URL           string        `envconfig:"AMQP_URL"`
	Exchange      string        `envconfig:"AMQP_EXCHANGE" default:"fieldops.assignments"`
	RetryAttempts int           `envconfig:"AMQP_RETRY_ATTEMPTS" default:"5"`
	RetryDelay    time.Duration `envconfig:"AMQP_RETRY_DELAY" default:"1s"`
}

type Env struct {
	BaseEnv
	StorageEnv
	DispatchEnv
	SweepEnv
	AMQPEnv
}

const namespace = "FIELDOPS"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

// RequireAPIKey is checked only by commands that expose the HTTP API.
func (e *BaseEnv) RequireAPIKey() error {
	if e.APIKey == "" {
		return fmt.Errorf("required key %s_API_KEY missing value", namespace)
	}
	return nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}
