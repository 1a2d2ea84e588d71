// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package instrument

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for fabrication and evaluation.
var (
	tracer = otel.Tracer("netfab.instrument")
	meter  = otel.Meter("netfab.instrument")
)

var (
	fabricateLatency metric.Float64Histogram
	fabricateTotal   metric.Int64Counter
	planSteps        metric.Int64Histogram
	evaluateLatency  metric.Float64Histogram
	evaluateTotal    metric.Int64Counter
	batchRows        metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		fabricateLatency, err = meter.Float64Histogram(
			"netfab_fabricate_duration_seconds",
			metric.WithDescription("Duration of plan fabrication"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fabricateTotal, err = meter.Int64Counter(
			"netfab_fabricate_total",
			metric.WithDescription("Total fabrications by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		planSteps, err = meter.Int64Histogram(
			"netfab_plan_steps",
			metric.WithDescription("Steps per fabricated plan"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		evaluateLatency, err = meter.Float64Histogram(
			"netfab_evaluate_duration_seconds",
			metric.WithDescription("Duration of plan evaluation"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		evaluateTotal, err = meter.Int64Counter(
			"netfab_evaluate_total",
			metric.WithDescription("Total evaluations by mode and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		batchRows, err = meter.Int64Histogram(
			"netfab_batch_rows",
			metric.WithDescription("Rows per batch evaluation"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func recordFabricate(ctx context.Context, duration time.Duration, steps int, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	fabricateLatency.Record(ctx, duration.Seconds(), attrs)
	fabricateTotal.Add(ctx, 1, attrs)
	if steps > 0 {
		planSteps.Record(ctx, int64(steps))
	}
}

func recordEvaluate(ctx context.Context, mode string, duration time.Duration, rows int, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	)
	evaluateLatency.Record(ctx, duration.Seconds(), attrs)
	evaluateTotal.Add(ctx, 1, attrs)
	if mode == modeBatch {
		batchRows.Record(ctx, int64(rows))
	}
}
