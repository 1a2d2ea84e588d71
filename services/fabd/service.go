// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fabd is the network fabrication service.
//
// It stores network documents by name, fabricates plans on demand through
// a revision-keyed plan cache, and evaluates them over HTTP.
package fabd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/AleutianAI/netfab/pkg/evaluate"
	"github.com/AleutianAI/netfab/pkg/fabricate"
	"github.com/AleutianAI/netfab/pkg/netfile"
	"github.com/AleutianAI/netfab/pkg/network"
	"github.com/AleutianAI/netfab/services/fabd/cache"
	"github.com/AleutianAI/netfab/services/fabd/config"
	"github.com/AleutianAI/netfab/services/fabd/instrument"
	"github.com/AleutianAI/netfab/services/fabd/storage"
	"github.com/AleutianAI/netfab/services/fabd/watch"
)

// ServiceVersion is the fabd service version.
const ServiceVersion = "0.1.0"

// Service manages stored networks and their plans.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	store   *storage.Store
	plans   *cache.PlanCache
	fab     *instrument.Fabricator
	eval    *instrument.Evaluator
	maxRows int
	logger  *slog.Logger
}

// NewService creates a Service.
//
// Inputs:
//
//	store - Network store. Required.
//	plans - Plan cache. Nil creates one with default options.
//	cfg - Evaluation settings (pruning, evaluator, batch concurrency,
//	      row limit). An empty Evaluator means "sequential".
//	logger - Nil uses slog.Default().
func NewService(store *storage.Store, plans *cache.PlanCache, cfg config.EvaluationConfig, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if plans == nil {
		plans = cache.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxRows := cfg.MaxBatchRows
	if maxRows < 1 {
		maxRows = config.DefaultConfig().Evaluation.MaxBatchRows
	}

	return &Service{
		store:   store,
		plans:   plans,
		fab:     instrument.NewFabricator(fabricate.New(fabricate.WithPruning(cfg.Prune)), logger),
		eval:    instrument.NewEvaluator(newEvaluator(cfg), cfg.Concurrency, logger),
		maxRows: maxRows,
		logger:  logger,
	}, nil
}

// PutNetwork parses body, checks that it builds, and stores it under name.
//
// Description:
//
//	The document must decode, validate and build into a well-formed
//	network; otherwise nothing is stored. Cycles are not checked here and
//	surface when the plan is first fabricated. Cached plans of earlier
//	revisions are dropped.
//
// Outputs:
//
//	NetworkInfo - The stored revision.
//	error - storage.ErrInvalidName, netfile errors,
//	        *network.MalformedGraphError, or storage errors.
func (s *Service) PutNetwork(ctx context.Context, name string, format netfile.Format, body []byte) (NetworkInfo, error) {
	if err := storage.ValidateName(name); err != nil {
		return NetworkInfo{}, err
	}
	net, err := buildNetwork(format, body, name)
	if err != nil {
		return NetworkInfo{}, err
	}

	rec, err := s.store.Put(ctx, storage.Record{Name: name, Format: string(format), Body: body})
	if err != nil {
		return NetworkInfo{}, fmt.Errorf("store %s: %w", name, err)
	}
	dropped := s.plans.Invalidate(name)

	s.logger.Info("network stored",
		slog.String("name", name),
		slog.Uint64("revision", rec.Revision),
		slog.Int("nodes", net.NodeCount()),
		slog.Int("edges", net.EdgeCount()),
		slog.Int("plans_dropped", dropped),
	)

	info := infoOf(rec)
	info.Nodes = net.NodeCount()
	info.Edges = net.EdgeCount()
	return info, nil
}

// GetNetwork returns the stored record for name.
func (s *Service) GetNetwork(ctx context.Context, name string) (storage.Record, error) {
	return s.store.Get(ctx, name)
}

// ListNetworks returns every stored network in name order.
func (s *Service) ListNetworks(ctx context.Context) ([]NetworkInfo, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]NetworkInfo, len(recs))
	for i, rec := range recs {
		infos[i] = infoOf(rec)
	}
	return infos, nil
}

// DeleteNetwork removes name and its cached plans.
func (s *Service) DeleteNetwork(ctx context.Context, name string) error {
	if err := s.store.Delete(ctx, name); err != nil {
		return err
	}
	s.plans.Invalidate(name)
	s.logger.Info("network deleted", slog.String("name", name))
	return nil
}

// Plan returns the plan for the current revision of name.
//
// Outputs:
//
//	*fabricate.Plan - The plan.
//	storage.Record - The record the plan was fabricated from.
//	bool - True if the plan came from the cache.
//	error - storage.ErrNotFound, *fabricate.FabricationError, or
//	        document errors.
func (s *Service) Plan(ctx context.Context, name string) (*fabricate.Plan, storage.Record, bool, error) {
	rec, err := s.store.Get(ctx, name)
	if err != nil {
		return nil, storage.Record{}, false, err
	}

	key := cache.Key{Name: rec.Name, Revision: rec.Revision}
	plan, hit, err := s.plans.GetOrFabricate(ctx, key, func(ctx context.Context) (*fabricate.Plan, error) {
		net, err := buildNetwork(netfile.Format(rec.Format), rec.Body, rec.Name)
		if err != nil {
			return nil, err
		}
		return s.fab.FabricateContext(ctx, net)
	})
	if err != nil {
		return nil, rec, false, err
	}
	return plan, rec, hit, nil
}

// Describe returns the JSON view of the current plan for name.
func (s *Service) Describe(ctx context.Context, name string) (PlanDescription, error) {
	plan, rec, hit, err := s.Plan(ctx, name)
	if err != nil {
		return PlanDescription{}, err
	}
	return describePlan(rec.Name, rec.Revision, plan, hit), nil
}

// Evaluate runs one input row through the current plan for name.
func (s *Service) Evaluate(ctx context.Context, name string, inputs []float64) (EvaluateResponse, error) {
	plan, rec, _, err := s.Plan(ctx, name)
	if err != nil {
		return EvaluateResponse{}, err
	}
	out, err := s.eval.EvaluateContext(ctx, plan, inputs)
	if err != nil {
		return EvaluateResponse{}, err
	}
	if err := checkFinite(out); err != nil {
		return EvaluateResponse{}, err
	}
	return EvaluateResponse{Name: rec.Name, Revision: rec.Revision, Outputs: out}, nil
}

// EvaluateBatch runs rows through the current plan for name in parallel.
//
// Outputs:
//
//	BatchResponse - Output rows aligned with rows.
//	error - ErrEmptyBatch, ErrBatchTooLarge, *evaluate.RowError,
//	        ErrNonFiniteOutput, or the errors of Plan.
func (s *Service) EvaluateBatch(ctx context.Context, name string, rows [][]float64) (BatchResponse, error) {
	if len(rows) == 0 {
		return BatchResponse{}, ErrEmptyBatch
	}
	if len(rows) > s.maxRows {
		return BatchResponse{}, fmt.Errorf("%w: %d rows, limit %d", ErrBatchTooLarge, len(rows), s.maxRows)
	}
	plan, rec, _, err := s.Plan(ctx, name)
	if err != nil {
		return BatchResponse{}, err
	}
	out, err := s.eval.EvaluateBatch(ctx, plan, rows)
	if err != nil {
		return BatchResponse{}, err
	}
	for i, row := range out {
		if err := checkFinite(row); err != nil {
			return BatchResponse{}, &evaluate.RowError{Row: i, Err: err}
		}
	}
	return BatchResponse{Name: rec.Name, Revision: rec.Revision, Outputs: out}, nil
}

// CacheStats returns the plan cache counters.
func (s *Service) CacheStats() cache.Stats {
	return s.plans.Stats()
}

// ApplyChanges mirrors watched network files into the store.
//
// Description:
//
//	Upserts read the file and store it like PutNetwork; removals delete
//	the network. Failures are logged per file and do not stop the batch.
//	It has the watch.Handler signature.
func (s *Service) ApplyChanges(ctx context.Context, changes []watch.Change) {
	for _, c := range changes {
		logger := s.logger.With(slog.String("path", c.Path), slog.String("name", c.Name))
		switch c.Op {
		case watch.OpUpsert:
			body, err := os.ReadFile(c.Path)
			if err != nil {
				logger.Warn("read network file", slog.String("error", err.Error()))
				continue
			}
			if _, err := s.PutNetwork(ctx, c.Name, c.Format, body); err != nil {
				logger.Warn("network file rejected", slog.String("error", err.Error()))
			}
		case watch.OpRemove:
			err := s.DeleteNetwork(ctx, c.Name)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				logger.Warn("remove network", slog.String("error", err.Error()))
			}
		}
	}
}

// newEvaluator returns the evaluator named by cfg.Evaluator.
func newEvaluator(cfg config.EvaluationConfig) evaluate.Evaluator {
	if cfg.Evaluator == "staged" {
		return evaluate.NewStaged(cfg.StageWorkers, 0)
	}
	return evaluate.NewSequential()
}

// checkFinite rejects outputs that overflowed or became NaN.
func checkFinite(outputs []float64) error {
	for i, v := range outputs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: output %d is %v", ErrNonFiniteOutput, i, v)
		}
	}
	return nil
}

// buildNetwork decodes body and builds the network it describes.
func buildNetwork(format netfile.Format, body []byte, name string) (*network.Network, error) {
	doc, err := netfile.Parse(body, format, name+"."+string(format))
	if err != nil {
		return nil, err
	}
	return doc.Network()
}

func infoOf(rec storage.Record) NetworkInfo {
	return NetworkInfo{
		Name:      rec.Name,
		Format:    rec.Format,
		Revision:  rec.Revision,
		UpdatedAt: rec.UpdatedAt,
	}
}
