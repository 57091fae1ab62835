// Command processd serves OGC API - Processes over HTTP, backed by one of
// the job stores and running the builtin processes.
//
// Usage:
//
//	processd -config processd.yaml
//
// Every setting can also be given as a PROCESSES_* environment variable;
// see package config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/processes/api"
	audithook "github.com/xraph/processes/audit_hook"
	"github.com/xraph/processes/config"
	"github.com/xraph/processes/notify"
	"github.com/xraph/processes/orchestrator"
	"github.com/xraph/processes/process"
	"github.com/xraph/processes/process/builtin"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("processd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	s, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("store close error", slog.String("error", err.Error()))
		}
	}()

	if cfg.Store.Migrate {
		if err := s.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate store: %w", err)
		}
	}
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}

	reg := process.NewRegistry()
	if err := builtin.Register(reg); err != nil {
		return fmt.Errorf("register builtin processes: %w", err)
	}

	opts := []orchestrator.Option{
		orchestrator.WithConfig(cfg.Engine),
		orchestrator.WithLogger(logger),
	}
	if cfg.NATS.URL != "" {
		nc, err := notify.Connect(cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer nc.Close()
		opts = append(opts, orchestrator.WithExtension(
			notify.New(nc, notify.WithSubjectPrefix(cfg.NATS.SubjectPrefix)),
		))
		logger.Info("publishing lifecycle events", slog.String("url", cfg.NATS.URL))
	}

	if cfg.Audit {
		opts = append(opts, orchestrator.WithExtension(
			audithook.New(audithook.LogRecorder(logger.With(slog.String("component", "audit"))), audithook.WithLogger(logger)),
		))
	}

	orch, err := orchestrator.New(s, reg, opts...)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}
	if err := orch.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.New(orch, api.WithLogger(logger), api.WithBaseURL(cfg.BaseURL)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening",
			slog.String("addr", cfg.Listen),
			slog.String("store", cfg.Store.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Engine.ShutdownTimeout)
		defer cancel()

		httpErr := srv.Shutdown(shutdownCtx)
		// Stop after the server so in-flight sync requests see their jobs
		// finish or fall back to async.
		orchErr := orch.Stop(shutdownCtx)
		return errors.Join(httpErr, orchErr)
	})
	return g.Wait()
}
