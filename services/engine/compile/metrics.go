// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compile

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for document compilation.
var (
	tracer = otel.Tracer("williwaw.compile")
	meter  = otel.Meter("williwaw.compile")
)

var (
	compileLatency metric.Float64Histogram
	compileTotal   metric.Int64Counter
	resourceCount  metric.Int64Histogram
	extractErrors  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		compileLatency, err = meter.Float64Histogram(
			"compile_duration_seconds",
			metric.WithDescription("Duration of document compilation"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		compileTotal, err = meter.Int64Counter(
			"compile_total",
			metric.WithDescription("Total number of document compilations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resourceCount, err = meter.Int64Histogram(
			"compile_resources",
			metric.WithDescription("Number of executable resources per compilation"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		extractErrors, err = meter.Int64Counter(
			"compile_extract_errors_total",
			metric.WithDescription("Total number of relation extraction failures"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordCompile(ctx context.Context, elapsed time.Duration, resources int) {
	if compileLatency == nil {
		return
	}
	compileLatency.Record(ctx, elapsed.Seconds())
	compileTotal.Add(ctx, 1)
	resourceCount.Record(ctx, int64(resources))
}

func recordCompileError(ctx context.Context, language string) {
	if extractErrors == nil {
		return
	}
	extractErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("language", language)))
}
