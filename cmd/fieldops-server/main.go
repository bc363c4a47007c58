package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/fieldops/fieldops/internal/config"
	"github.com/fieldops/fieldops/pkg/clog"
	"github.com/fieldops/fieldops/pkg/storage"
)

var (
	app = kingpin.New("fieldops-server", "Field service assignment and date negotiation service")

	serveCmd = app.Command("serve", "Run the HTTP API, timeout sweeper, event relay and policy watcher").Default()

	sweepCmd         = app.Command("sweep", "Time out expired offers once and exit")
	sweepConcurrency = sweepCmd.Flag("concurrency", "Parallel updates (defaults to FIELDOPS_SWEEP_CONCURRENCY)").Int()

	seedCmd  = app.Command("seed", "Load service orders and providers from a YAML fixture")
	seedFile = seedCmd.Flag("file", "Fixture file").Short('f').Required().ExistingFile()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}
	setupLogger(env)

	ctx := context.Background()
	store, err := newStorage(ctx, env)
	if err != nil {
		slog.Error("failed to create storage", "type", env.StorageEnv.Type, "error", err)
		os.Exit(1)
	}

	switch command {
	case serveCmd.FullCommand():
		err = runServe(env, store)
	case sweepCmd.FullCommand():
		concurrency := env.SweepEnv.Concurrency
		if *sweepConcurrency > 0 {
			concurrency = *sweepConcurrency
		}
		err = runSweep(ctx, env, store, concurrency)
	case seedCmd.FullCommand():
		err = runSeed(ctx, store, *seedFile)
	}
	if err != nil {
		slog.Error(command+" failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger(env *config.Env) {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr,
			clog.WithLevel(level),
			clog.WithColumns(append(clog.HTTPColumns, clog.DomainColumns...)...),
		)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}

func newStorage(ctx context.Context, env *config.Env) (storage.Storage, error) {
	switch env.StorageEnv.Type {
	case "s3":
		return storage.NewS3Storage(ctx, env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
	default:
		return storage.NewLocalStorage(env.StorageEnv.BaseDir)
	}
}
