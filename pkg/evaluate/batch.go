// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evaluate

import (
	"context"
	"runtime"

	"github.com/AleutianAI/netfab/pkg/fabricate"
	"golang.org/x/sync/errgroup"
)

// Batch evaluates many input rows against one plan in parallel.
//
// Description:
//
//	Each row is an independent evaluation. Rows run on at most Limit
//	goroutines at once. The first failing row cancels the rest, and the
//	batch returns no partial result.
//
// Thread Safety:
//
//	Batch is safe for concurrent use if its Evaluator is.
type Batch struct {
	eval  Evaluator
	limit int
}

// NewBatch creates a Batch.
//
// Inputs:
//
//	eval - Per-row evaluator. If nil, a Sequential evaluator is used.
//	limit - Maximum concurrent rows. Values < 1 mean runtime.GOMAXPROCS(0).
func NewBatch(eval Evaluator, limit int) *Batch {
	if eval == nil {
		eval = NewSequential()
	}
	if limit < 1 {
		limit = runtime.GOMAXPROCS(0)
	}
	return &Batch{eval: eval, limit: limit}
}

// Limit returns the maximum number of rows evaluated concurrently.
func (b *Batch) Limit() int { return b.limit }

// EvaluateBatch runs plan against every row.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil. Checked before each row.
//	plan - The plan to run. Must not be nil.
//	rows - Input rows, each in the plan's input order.
//
// Outputs:
//
//	[][]float64 - Output rows, aligned with rows.
//	error - *RowError wrapping the first row failure, or the context error.
func (b *Batch) EvaluateBatch(ctx context.Context, plan *fabricate.Plan, rows [][]float64) ([][]float64, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if plan == nil {
		return nil, ErrNilPlan
	}

	results := make([][]float64, len(rows))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(b.limit)

	for i, row := range rows {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			out, err := b.eval.Evaluate(plan, row)
			if err != nil {
				return &RowError{Row: i, Err: err}
			}
			results[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
