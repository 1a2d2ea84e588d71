// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/netfab/pkg/logging"
	"github.com/AleutianAI/netfab/services/fabd"
	"github.com/AleutianAI/netfab/services/fabd/cache"
	"github.com/AleutianAI/netfab/services/fabd/config"
	"github.com/AleutianAI/netfab/services/fabd/storage"
	"github.com/AleutianAI/netfab/services/fabd/telemetry"
	"github.com/AleutianAI/netfab/services/fabd/watch"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

func newServeCmd(a *app) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the fabd HTTP service",
		Long: `serve stores networks in BadgerDB and exposes them over HTTP under /v1.
The configuration file is created with defaults on first run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, cmd, configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Config file (default ~/.netfab/fabd.yaml)")
	return cmd
}

// serve wires the fabd components from the configuration and blocks until
// ctx is done.
func (a *app) serve(ctx context.Context, cmd *cobra.Command, configPath string) error {
	cfg, created, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// The file's log settings apply unless given on the command line.
	if !cmd.Flags().Changed("log-level") && !cmd.Flags().Changed("json") {
		level, err := logging.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return err
		}
		_ = a.logger.Close()
		a.logger = logging.New(logging.Config{
			Level:   level,
			Service: "fabd",
			JSON:    cfg.Logging.JSON,
			LogDir:  cfg.Logging.Dir,
			Output:  cmd.ErrOrStderr(),
		})
		slog.SetDefault(a.logger.Slog())
	}
	logger := a.logger.Slog()
	if created {
		a.printer.Info("created default configuration")
	}

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	storeCfg := storage.DefaultConfig(cfg.Storage.Dir)
	storeCfg.InMemory = cfg.Storage.InMemory
	storeCfg.Logger = logger
	store, err := storage.Open(storeCfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := fabd.NewService(store, cache.New(cache.WithMaxEntries(cfg.Cache.Size)), cfg.Evaluation, logger)
	if err != nil {
		return err
	}

	metrics, err := telemetry.NewMetrics(otel.Meter("netfab.fabd"))
	if err != nil {
		return fmt.Errorf("create http metrics: %w", err)
	}

	if cfg.Watch.Dir != "" {
		w, err := watch.New(cfg.Watch.Dir, svc.ApplyChanges, &watch.Options{
			Debounce: cfg.Watch.Debounce,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		defer w.Stop()

		initial, err := w.Scan()
		if err != nil {
			return err
		}
		svc.ApplyChanges(ctx, initial)
		if err := w.Start(ctx); err != nil {
			return err
		}
		logger.Info("watching network directory",
			slog.String("dir", cfg.Watch.Dir),
			slog.Int("loaded", len(initial)))
	}

	router := fabd.NewRouter(svc, cfg.Server, metrics)
	a.printer.Success(fmt.Sprintf("fabd %s listening on http://%s", fabd.ServiceVersion, cfg.Server.Addr))
	return fabd.NewServer(cfg.Server, router, logger).Run(ctx)
}
