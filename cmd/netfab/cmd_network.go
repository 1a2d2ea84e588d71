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
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/AleutianAI/netfab/pkg/evaluate"
	"github.com/AleutianAI/netfab/pkg/fabricate"
	"github.com/AleutianAI/netfab/pkg/netfile"
	"github.com/spf13/cobra"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check network files for structural problems and cycles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				if err := validateFile(a, path); err != nil {
					failed++
				}
			}
			if failed > 0 {
				a.printer.Error(fmt.Sprintf("%d of %d file(s) invalid", failed, len(args)))
				return errReported
			}
			return nil
		},
	}
}

func validateFile(a *app, path string) error {
	_, net, err := loadFile(path)
	if err == nil {
		_, err = fabricate.New().Fabricate(net)
	}
	if err != nil {
		a.printer.Title(path)
		a.printer.Issues(err)
		slog.Debug("validation failed", slog.String("path", path), slog.String("error", err.Error()))
		return err
	}
	a.printer.Success(fmt.Sprintf("%s: %d nodes, %d edges", path, net.NodeCount(), net.EdgeCount()))
	return nil
}

func newInspectCmd(a *app) *cobra.Command {
	var keepUnreachable bool

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Fabricate a network and show its evaluation plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, plan, err := fabricateFile(args[0], !keepUnreachable)
			if err != nil {
				return a.reportIssues(err)
			}
			a.printer.Plan(doc.Name, plan)
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepUnreachable, "keep-unreachable", false, "Keep nodes that cannot reach an output")
	return cmd
}

func newConvertCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <file>",
		Short: "Print a network file as canonical YAML",
		Long: `convert reads a YAML or HCL network file, checks that it builds, and
prints it as YAML. Use it to migrate HCL files or normalize formatting.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, _, err := loadFile(args[0])
			if err != nil {
				return a.reportIssues(err)
			}
			data, err := netfile.EncodeYAML(doc)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newEvalCmd(a *app) *cobra.Command {
	var (
		inputs          []string
		concurrency     int
		keepUnreachable bool
		staged          bool
	)

	cmd := &cobra.Command{
		Use:   "eval <file> --input 1,2 [--input ...]",
		Short: "Evaluate a network against one or more input rows",
		Long: `eval fabricates the network once and evaluates every --input row
against the plan. Values within a row are comma separated and follow the
network's input order. --staged evaluates each row stage by stage,
spreading wide stages across goroutines.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := parseRows(inputs)
			if err != nil {
				return err
			}
			_, plan, err := fabricateFile(args[0], !keepUnreachable)
			if err != nil {
				return a.reportIssues(err)
			}

			var eval evaluate.Evaluator = evaluate.NewSequential()
			if staged {
				eval = evaluate.NewStaged(0, 0)
			}
			batch := evaluate.NewBatch(eval, concurrency)
			outputs, err := batch.EvaluateBatch(cmd.Context(), plan, rows)
			if err != nil {
				return err
			}
			for i, out := range outputs {
				a.printer.Outputs(i, rows[i], out)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "Comma-separated input row (repeatable)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Rows evaluated in parallel (0 = GOMAXPROCS)")
	cmd.Flags().BoolVar(&keepUnreachable, "keep-unreachable", false, "Keep nodes that cannot reach an output")
	cmd.Flags().BoolVar(&staged, "staged", false, "Evaluate stage by stage")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// fabricateFile loads path and fabricates its plan.
func fabricateFile(path string, prune bool) (*netfile.Document, *fabricate.Plan, error) {
	doc, net, err := loadFile(path)
	if err != nil {
		return nil, nil, err
	}
	plan, err := fabricate.New(fabricate.WithPruning(prune)).Fabricate(net)
	if err != nil {
		return nil, nil, err
	}
	return doc, plan, nil
}

// reportIssues prints err as a list of issues.
func (a *app) reportIssues(err error) error {
	a.printer.Issues(err)
	return errReported
}

// parseRows parses "1,2.5,-3" rows. An empty row means a network without
// inputs.
func parseRows(specs []string) ([][]float64, error) {
	rows := make([][]float64, len(specs))
	for i, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			rows[i] = []float64{}
			continue
		}
		parts := strings.Split(spec, ",")
		row := make([]float64, len(parts))
		for j, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("--input %d, value %d: %w", i+1, j+1, err)
			}
			row[j] = v
		}
		rows[i] = row
	}
	return rows, nil
}
