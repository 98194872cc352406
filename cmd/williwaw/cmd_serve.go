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
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/williwaw/cmd/williwaw/config"
	"github.com/AleutianAI/williwaw/services/engine/api"
	"github.com/AleutianAI/williwaw/services/engine/telemetry"
)

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = Version
	if v := config.Global.Telemetry.TraceExporter; v != "" {
		tcfg.TraceExporter = v
	}
	if v := config.Global.Telemetry.MetricExporter; v != "" {
		tcfg.MetricExporter = v
	}
	if v := config.Global.Telemetry.OTLPEndpoint; v != "" {
		tcfg.OTLPEndpoint = v
	}
	tshutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tshutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err.Error())
		}
	}()

	svcCfg := api.DefaultServiceConfig()
	svcCfg.Logger = logger.With("component", "engine-api")
	if dir := config.Global.Engine.StoreDir; dir != "" {
		svcCfg.StorePath = config.ExpandPath(dir)
	}
	svc, err := api.NewService(svcCfg)
	if err != nil {
		return fmt.Errorf("creating engine service: %w", err)
	}

	if debugMode || config.Global.Service.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(tcfg.ServiceName))
	if debugMode || config.Global.Service.Debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	api.RegisterRoutes(v1, api.NewHandlers(svc))

	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}

	host := serveHost
	if host == "" {
		host = config.Global.Service.Host
	}
	port := servePort
	if port == 0 {
		port = config.Global.Service.Port
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("engine server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		svc.Close(context.Background())
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down engine server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := svc.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("service close: %w", err))
	}
	return errors.Join(errs...)
}
