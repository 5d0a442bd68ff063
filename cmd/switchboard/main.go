// Command switchboard runs the message-routing core: HTTP ingest,
// AMQP ingest, triage/instruction refresh loops, and partition
// maintenance, all under one process.
//
// Grounded on email-service/api/cmd/main.go's generic Run(builder,
// sigCh, logger) shape: bootstrap, start in a goroutine, wait for an OS
// signal or a crash, then a timed graceful stop.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tzeusy/switchboard/internal/bootstrap"
	applogger "github.com/tzeusy/switchboard/internal/logger"
)

type runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type builder func(ctx context.Context) (runner, func(), error)

func run(build builder, sigCh <-chan os.Signal, lg zerolog.Logger) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, cleanup, err := build(ctx)
	if err != nil {
		lg.Error().Err(err).Msg("bootstrap failed")
		return 1
	}
	defer cleanup()

	errCh := make(chan error, 1)
	go func() {
		lg.Info().Msg("switchboard starting")
		if err := app.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		lg.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		lg.Error().Err(err).Msg("switchboard crashed")
		return 1
	}

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()

	if err := app.Stop(stopCtx); err != nil {
		lg.Error().Err(err).Msg("graceful stop failed")
		return 1
	}

	lg.Info().Msg("shutdown complete")
	return 0
}

func buildFromBootstrap(ctx context.Context) (runner, func(), error) {
	app, cleanup, err := bootstrap.NewApp(ctx)
	if err != nil {
		return nil, nil, err
	}
	return app, cleanup, nil
}

func main() {
	applogger.Init()
	zerolog.TimeFieldFormat = time.RFC3339Nano

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	code := run(buildFromBootstrap, sigCh, applogger.Logger)
	os.Exit(code)
}
