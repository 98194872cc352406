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
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/williwaw/cmd/williwaw/config"
	"github.com/AleutianAI/williwaw/pkg/logging"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// --- Global Command Variables ---
var (
	fromNodes []string
	watchMode bool
	outputTo  string
	docID     string
	storeDir  string
	servePort int
	serveHost string
	debugMode bool

	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "williwaw",
		Short: "A reactive execution engine for executable documents",
		Long: `Williwaw compiles executable documents into dependency graphs,
executes the stale cells stage by stage, and streams the resulting
patches to observers.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(); err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			initLogging()
			return nil
		},
	}

	runCmd = &cobra.Command{
		Use:   "run [document]",
		Short: "Execute a document and write the results back",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun, // Defined in cmd_run.go
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the execution engine over HTTP",
		RunE:  runServe, // Defined in cmd_serve.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the williwaw version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("williwaw %s\n", Version)
		},
	}
)

func init() {
	runCmd.Flags().StringSliceVar(&fromNodes, "from", nil, "Run only these node ids and their dependents")
	runCmd.Flags().BoolVar(&watchMode, "watch", false, "Re-execute whenever the document file changes")
	runCmd.Flags().StringVarP(&outputTo, "output", "o", "", "Write the executed document here instead of in place")
	runCmd.Flags().StringVar(&docID, "doc-id", "", "Digest cache key (defaults to the document id)")
	runCmd.Flags().StringVar(&storeDir, "store", "", "Digest store directory (overrides config)")

	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind (overrides config)")
	serveCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug mode")

	rootCmd.AddCommand(runCmd, serveCmd, versionCmd)
}

// initLogging wires slog to the configured destinations. Pipes get
// JSON, terminals get text.
func initLogging() {
	tty := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	logger = logging.New(logging.Config{
		Level:   logging.ParseLevel(config.Global.Logging.Level),
		LogDir:  config.Global.Logging.Dir,
		Service: "cli",
		JSON:    !tty,
	})
	slog.SetDefault(logger.Slog())
}
