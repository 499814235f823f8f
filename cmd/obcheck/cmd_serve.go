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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/obcheck/services/phasecheck"
	"github.com/AleutianAI/obcheck/services/phasecheck/diag"
	"github.com/AleutianAI/obcheck/services/phasecheck/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func runServeCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	lg := logger.Slog()

	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}

	tcfg := cfg.Telemetry
	tcfg.ServiceVersion = version
	if tcfg.MetricExporter == "" || tcfg.MetricExporter == telemetry.ExporterNone {
		tcfg.MetricExporter = telemetry.ExporterPrometheus
	}
	providers, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(sctx); err != nil {
			lg.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	sink, err := diag.NewOTelSink(providers.Meter("obcheck.phasecheck"))
	if err != nil {
		return err
	}
	opts := []phasecheck.HandlerOption{
		phasecheck.WithVersion(version),
		phasecheck.WithMetricsSink(sink),
		phasecheck.WithRateLimit(cfg.Server.CheckRate, cfg.Server.CheckBurst),
	}

	if cfg.Store.Path != "" {
		store, closeDB, err := openStore(cfg.Store.Path, lg)
		if err != nil {
			return err
		}
		defer closeDB()
		opts = append(opts, phasecheck.WithStore(store))
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := phasecheck.NewRouter(phasecheck.NewHandlers(opts...), providers.MetricsHandler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(ctx, srv, lg)
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, lg *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		lg.Info("phase check API listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}
