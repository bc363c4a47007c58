package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	server "github.com/fieldops/fieldops/internal"
	"github.com/fieldops/fieldops/internal/assignment"
	assignmentrepo "github.com/fieldops/fieldops/internal/assignment/repositoryimpl"
	"github.com/fieldops/fieldops/internal/config"
	"github.com/fieldops/fieldops/internal/dispatch"
	"github.com/fieldops/fieldops/internal/eventbus"
	"github.com/fieldops/fieldops/internal/eventrelay"
	providerrepo "github.com/fieldops/fieldops/internal/provider/repositoryimpl"
	serviceorderrepo "github.com/fieldops/fieldops/internal/serviceorder/repositoryimpl"
	"github.com/fieldops/fieldops/internal/timeout"
	"github.com/fieldops/fieldops/pkg/panicerr"
	"github.com/fieldops/fieldops/pkg/pubsub"
	"github.com/fieldops/fieldops/pkg/storage"
)

const shutdownTimeout = 10 * time.Second

func newService(env *config.Env, store storage.Storage, bus *eventbus.Bus) (*assignment.Service, *dispatch.PolicyStore, error) {
	policies, err := dispatch.NewPolicyStore(env.DispatchEnv.PolicyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load dispatch policy: %w", err)
	}
	strategy := dispatch.NewStrategy(
		serviceorderrepo.NewYAMLRepository(store),
		providerrepo.NewYAMLRepository(store),
		policies,
	)
	svc := assignment.NewService(assignmentrepo.NewYAMLRepository(store), strategy, policies, bus)
	return svc, policies, nil
}

func runServe(env *config.Env, store storage.Storage) error {
	if err := env.RequireAPIKey(); err != nil {
		return err
	}

	bus := eventbus.New()
	svc, policies, err := newService(env, store, bus)
	if err != nil {
		return err
	}
	srv := server.NewServer(env, assignment.NewServer(svc, env.SweepEnv.Concurrency))
	sweeper := timeout.NewSweeper(svc, env.SweepEnv.Interval, env.SweepEnv.Concurrency)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	var relay *eventrelay.Relay
	if env.AMQPEnv.URL != "" {
		conn, err := pubsub.DialWithRetry(ctx, pubsub.ConnectionOptions{
			URL:           env.AMQPEnv.URL,
			RetryAttempts: env.AMQPEnv.RetryAttempts,
			Delay:         env.AMQPEnv.RetryDelay,
			Logger:        slog.Default(),
		})
		if err != nil {
			return err
		}
		publisher, err := pubsub.NewPublisher(conn, env.AMQPEnv.Exchange, slog.Default())
		if err != nil {
			_ = conn.Close()
			return err
		}
		defer publisher.Close()
		relay = eventrelay.New(bus, publisher)
	} else {
		slog.Info("FIELDOPS_AMQP_URL not set, event relay disabled")
	}

	// Any background component failing takes the whole process down.
	run := func(name string, fn func(context.Context) error) func() {
		return func() {
			if err := fn(ctx); err != nil {
				slog.Error(name+" failed", "error", err)
				cancel()
			}
		}
	}

	var wg conc.WaitGroup
	wg.Go(run("timeout sweeper", panicerr.SafeLoop(sweeper.Start)))
	if relay != nil {
		wg.Go(run("event relay", panicerr.SafeLoop(relay.Start)))
	}
	if env.DispatchEnv.PolicyWatch && env.DispatchEnv.PolicyFile != "" {
		wg.Go(run("policy watcher", panicerr.SafeContext(policies.Watch)))
	}
	wg.Go(run("server", panicerr.SafeContext(func(ctx context.Context) error {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})))

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	wg.Wait()
	return nil
}

func runSweep(ctx context.Context, env *config.Env, store storage.Storage, concurrency int) error {
	svc, _, err := newService(env, store, nil)
	if err != nil {
		return err
	}
	n, err := svc.SweepExpiredOffers(ctx, concurrency)
	if err != nil {
		return err
	}
	fmt.Printf("%d offer(s) timed out\n", n)
	return nil
}
