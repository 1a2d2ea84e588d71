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
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/AleutianAI/netfab/pkg/logging"
	"github.com/AleutianAI/netfab/pkg/netfile"
	"github.com/AleutianAI/netfab/pkg/network"
	"github.com/AleutianAI/netfab/pkg/ux"
	"github.com/AleutianAI/netfab/services/fabd"
	"github.com/spf13/cobra"
)

// errReported marks a failure whose details were already printed.
var errReported = errors.New("reported")

// app holds the state shared by all commands of one invocation.
type app struct {
	logLevel string
	jsonLogs bool
	output   string

	logger  *logging.Logger
	printer *ux.Printer
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "netfab",
		Short: "Fabricate and evaluate neural network graphs",
		Long: `netfab turns a network description (YAML or HCL) into an ordered
evaluation plan and runs it against input values.`,
		Version:       fabd.ServiceVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Close()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flags.BoolVar(&a.jsonLogs, "json", false, "Write logs as JSON")
	flags.StringVar(&a.output, "output", "", "Output style: styled or plain (default: styled on a terminal, $"+ux.ModeEnv+" overrides)")

	rootCmd.AddCommand(
		newValidateCmd(a),
		newInspectCmd(a),
		newConvertCmd(a),
		newEvalCmd(a),
		newServeCmd(a),
	)
	return rootCmd
}

// setup configures logging and output for the command about to run.
func (a *app) setup(cmd *cobra.Command) error {
	level, err := logging.ParseLevel(a.logLevel)
	if err != nil {
		return err
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		Service: "netfab",
		JSON:    a.jsonLogs,
		Output:  cmd.ErrOrStderr(),
	})
	slog.SetDefault(a.logger.Slog())

	mode := ux.ParseMode(a.output)
	if a.output == "" {
		mode = ux.DetectMode(outputFile(cmd))
	}
	a.printer = ux.NewPrinter(cmd.OutOrStdout(), mode)
	return nil
}

// outputFile returns the command's stdout as a file, or nil when it has
// been redirected to a buffer.
func outputFile(cmd *cobra.Command) *os.File {
	f, _ := cmd.OutOrStdout().(*os.File)
	return f
}

// loadFile reads, parses and builds the network at path.
func loadFile(path string) (*netfile.Document, *network.Network, error) {
	format, err := netfile.FormatFromPath(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := netfile.Parse(data, format, path)
	if err != nil {
		return nil, nil, err
	}
	net, err := doc.Network()
	if err != nil {
		return doc, nil, err
	}
	return doc, net, nil
}
