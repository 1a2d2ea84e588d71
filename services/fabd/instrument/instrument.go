// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package instrument wraps the fabricator and evaluator with tracing,
// metrics and debug logging.
//
// The core packages stay free of observability; the service composes them
// through these decorators:
//
//	fab := instrument.NewFabricator(fabricate.New(), logger)
//	plan, err := fab.FabricateContext(ctx, net)
package instrument

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AleutianAI/netfab/pkg/evaluate"
	"github.com/AleutianAI/netfab/pkg/fabricate"
	"github.com/AleutianAI/netfab/pkg/network"
	"github.com/AleutianAI/netfab/services/fabd/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	modeSingle = "single"
	modeBatch  = "batch"
)

// Fabricator decorates a fabricate.Fabricator.
//
// Thread Safety: Safe for concurrent use if the wrapped fabricator is.
type Fabricator struct {
	inner  fabricate.Fabricator
	logger *slog.Logger
}

var _ fabricate.Fabricator = (*Fabricator)(nil)

// NewFabricator wraps inner. A nil logger uses slog.Default().
func NewFabricator(inner fabricate.Fabricator, logger *slog.Logger) *Fabricator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fabricator{inner: inner, logger: logger}
}

// Fabricate implements fabricate.Fabricator without a parent span.
func (f *Fabricator) Fabricate(n *network.Network) (*fabricate.Plan, error) {
	return f.FabricateContext(context.Background(), n)
}

// FabricateContext fabricates n inside a "Fabricator.Fabricate" span.
func (f *Fabricator) FabricateContext(ctx context.Context, n *network.Network) (*fabricate.Plan, error) {
	var attrs []attribute.KeyValue
	if n != nil {
		attrs = append(attrs,
			attribute.Int("netfab.nodes", n.NodeCount()),
			attribute.Int("netfab.edges", n.EdgeCount()),
		)
	}
	ctx, span := startSpan(ctx, "Fabricator.Fabricate", attrs...)
	defer span.End()

	start := time.Now()
	plan, err := f.inner.Fabricate(n)
	duration := time.Since(start)

	logger := telemetry.LoggerWithTrace(ctx, f.logger)
	if err != nil {
		var fe *fabricate.FabricationError
		if errors.As(err, &fe) {
			span.SetAttributes(attribute.Int64("netfab.node_id", int64(fe.NodeID)))
		}
		telemetry.RecordError(span, err)
		recordFabricate(ctx, duration, 0, "error")
		logger.Debug("fabrication failed", slog.String("error", err.Error()))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("netfab.steps", plan.SlotCount()),
		attribute.Int("netfab.pruned", len(plan.Pruned())),
		attribute.String("netfab.fingerprint", plan.Fingerprint()),
	)
	telemetry.SetSpanOK(span)
	recordFabricate(ctx, duration, plan.SlotCount(), "ok")
	logger.Debug("plan fabricated",
		slog.Int("steps", plan.SlotCount()),
		slog.Int("pruned", len(plan.Pruned())),
		slog.Int("stages", len(plan.Stages())),
		slog.Duration("duration", duration),
	)
	return plan, nil
}

// Evaluator decorates an evaluate.Evaluator and its batch runner.
//
// Thread Safety: Safe for concurrent use if the wrapped evaluator is.
type Evaluator struct {
	inner  evaluate.Evaluator
	batch  *evaluate.Batch
	logger *slog.Logger
}

var _ evaluate.Evaluator = (*Evaluator)(nil)

// NewEvaluator wraps inner; batches run on at most limit goroutines
// (see evaluate.NewBatch). A nil inner uses evaluate.Sequential.
func NewEvaluator(inner evaluate.Evaluator, limit int, logger *slog.Logger) *Evaluator {
	if inner == nil {
		inner = evaluate.NewSequential()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		inner:  inner,
		batch:  evaluate.NewBatch(inner, limit),
		logger: logger,
	}
}

// Evaluate implements evaluate.Evaluator without a parent span.
func (e *Evaluator) Evaluate(plan *fabricate.Plan, inputs []float64) ([]float64, error) {
	return e.EvaluateContext(context.Background(), plan, inputs)
}

// EvaluateContext evaluates one row inside an "Evaluator.Evaluate" span.
func (e *Evaluator) EvaluateContext(ctx context.Context, plan *fabricate.Plan, inputs []float64) ([]float64, error) {
	ctx, span := startSpan(ctx, "Evaluator.Evaluate", attribute.Int("netfab.inputs", len(inputs)))
	defer span.End()

	start := time.Now()
	out, err := e.inner.Evaluate(plan, inputs)
	duration := time.Since(start)

	if err != nil {
		e.fail(ctx, span, err, modeSingle, duration, 1)
		return nil, err
	}
	telemetry.SetSpanOK(span)
	recordEvaluate(ctx, modeSingle, duration, 1, "ok")
	return out, nil
}

// EvaluateBatch evaluates rows inside an "Evaluator.EvaluateBatch" span.
func (e *Evaluator) EvaluateBatch(ctx context.Context, plan *fabricate.Plan, rows [][]float64) ([][]float64, error) {
	ctx, span := startSpan(ctx, "Evaluator.EvaluateBatch",
		attribute.Int("netfab.rows", len(rows)),
		attribute.Int("netfab.limit", e.batch.Limit()),
	)
	defer span.End()

	start := time.Now()
	out, err := e.batch.EvaluateBatch(ctx, plan, rows)
	duration := time.Since(start)

	if err != nil {
		var rowErr *evaluate.RowError
		if errors.As(err, &rowErr) {
			span.SetAttributes(attribute.Int("netfab.row", rowErr.Row))
		}
		e.fail(ctx, span, err, modeBatch, duration, len(rows))
		return nil, err
	}
	telemetry.SetSpanOK(span)
	recordEvaluate(ctx, modeBatch, duration, len(rows), "ok")
	telemetry.LoggerWithTrace(ctx, e.logger).Debug("batch evaluated",
		slog.Int("rows", len(rows)),
		slog.Duration("duration", duration),
	)
	return out, nil
}

func (e *Evaluator) fail(ctx context.Context, span trace.Span, err error, mode string, duration time.Duration, rows int) {
	var evalErr *evaluate.EvaluationError
	if errors.As(err, &evalErr) {
		span.SetAttributes(
			attribute.String("netfab.error_kind", evalErr.Kind.String()),
			attribute.Int64("netfab.node_id", int64(evalErr.NodeID)),
		)
	}
	telemetry.RecordError(span, err)
	recordEvaluate(ctx, mode, duration, rows, "error")
	telemetry.LoggerWithTrace(ctx, e.logger).Debug("evaluation failed",
		slog.String("mode", mode),
		slog.String("error", err.Error()),
	)
}
