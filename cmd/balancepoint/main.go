package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/balancepoint/pkg/log"
	"github.com/raterudder/balancepoint/pkg/meter"
	"github.com/raterudder/balancepoint/pkg/server"
	"github.com/raterudder/balancepoint/pkg/storage"
	"github.com/raterudder/balancepoint/pkg/weather"
	"golang.org/x/sync/errgroup"
)

func main() {
	// a missing .env is fine, flags and the environment still apply
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Ctx(context.Background()).Warn("failed to load .env", slog.Any("error", err))
	}

	// init packages
	w := weather.Configured()
	s := storage.Configured()
	m := meter.Configured(s)

	// init server
	srv := server.Configured(w, s)

	// parse flags
	lflag.Configure()

	// lflag automatically sets llog's level, but we need to set the slog level
	level, err := log.LevelFromLLog()
	if err != nil {
		panic(err)
	}
	log.SetDefaultLogLevel(level)
	slog.SetDefault(log.Ctx(context.Background()))
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	// Run blocks until the context is canceled or one of them fails
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return m.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "balancepoint failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "balancepoint exited cleanly")
}
