// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package execute

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for document execution.
var (
	tracer = otel.Tracer("williwaw.execute")
	meter  = otel.Meter("williwaw.execute")
)

var (
	runLatency    metric.Float64Histogram
	runTotal      metric.Int64Counter
	stepsExecuted metric.Int64Counter
	stepsSkipped  metric.Int64Counter
	stepsFailed   metric.Int64Counter
	patchesSent   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runLatency, err = meter.Float64Histogram(
			"execute_run_duration_seconds",
			metric.WithDescription("Duration of document runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runTotal, err = meter.Int64Counter(
			"execute_runs_total",
			metric.WithDescription("Total number of document runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		stepsExecuted, err = meter.Int64Counter(
			"execute_steps_total",
			metric.WithDescription("Total number of executed steps"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		stepsSkipped, err = meter.Int64Counter(
			"execute_steps_skipped_total",
			metric.WithDescription("Total number of steps skipped as cache hits"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		stepsFailed, err = meter.Int64Counter(
			"execute_steps_failed_total",
			metric.WithDescription("Total number of failed steps"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		patchesSent, err = meter.Int64Counter(
			"execute_patches_total",
			metric.WithDescription("Total number of patches emitted"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordRun(ctx context.Context, result *RunResult) {
	if runLatency == nil {
		return
	}
	runLatency.Record(ctx, result.Duration.Seconds())
	runTotal.Add(ctx, 1)
	stepsExecuted.Add(ctx, int64(result.Executed))
	stepsSkipped.Add(ctx, int64(result.Skipped))
	stepsFailed.Add(ctx, int64(len(result.Failed)))
	patchesSent.Add(ctx, int64(result.Patches))
}
