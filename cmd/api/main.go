package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"example.com/remindbot/internal/app"
	"example.com/remindbot/internal/config"
	"example.com/remindbot/internal/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "remindbot:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	var wg sync.WaitGroup
	if cfg.TickInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Scheduler.Run(ctx, cfg.TickInterval, time.Now)
		}()
	}
	if cfg.Mode == config.ModePolling {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("long polling stopped", "error", err)
			}
		}()
	}

	srv := server.New(cfg.HTTPAddr, a.Router)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	logger.Info("http server listening", "addr", cfg.HTTPAddr, "env", cfg.Env)

	select {
	case <-ctx.Done():
		logger.Info("signal received, shutting down")
	case err := <-errCh:
		stop()
		wg.Wait()
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := <-errCh; err != nil {
		logger.Error("server error", "error", err)
	}
	wg.Wait()
	return nil
}
