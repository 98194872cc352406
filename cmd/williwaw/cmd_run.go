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
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/williwaw/cmd/williwaw/config"
	"github.com/AleutianAI/williwaw/services/engine/codec"
	"github.com/AleutianAI/williwaw/services/engine/execute"
	"github.com/AleutianAI/williwaw/services/engine/kernel"
	"github.com/AleutianAI/williwaw/services/engine/kernel/calc"
	"github.com/AleutianAI/williwaw/services/engine/schema"
	"github.com/AleutianAI/williwaw/services/engine/store"
)

func runRun(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	pool, err := kernel.NewPool(ctx, calc.NewFactory())
	if err != nil {
		return fmt.Errorf("starting kernels: %w", err)
	}
	defer pool.Shutdown(context.Background())

	exec := execute.New(pool, execute.WithStore(st))

	// In watch mode the executed document is never written back to the
	// watched file; saving there would retrigger the watcher.
	save := !watchMode || outputTo != ""
	if err := executeFile(ctx, exec, path, save); err != nil {
		return err
	}
	if !watchMode {
		return nil
	}

	logger.Info("watching for changes", "path", path)
	return watchFile(ctx, path, func() {
		if err := executeFile(ctx, exec, path, outputTo != ""); err != nil {
			logger.Error("re-execution failed", "path", path, "error", err.Error())
		}
	})
}

// openStore opens the digest store from the --store flag or config.
// An empty directory selects an in-memory store.
func openStore() (store.DigestStore, error) {
	dir := storeDir
	if dir == "" {
		dir = config.Global.Engine.StoreDir
	}
	cfg := store.InMemoryConfig()
	if dir != "" {
		cfg = store.DefaultConfig(config.ExpandPath(dir))
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening digest store: %w", err)
	}
	return st, nil
}

func executeFile(ctx context.Context, exec *execute.Executor, path string, save bool) error {
	doc, err := codec.Load(path)
	if err != nil {
		return err
	}

	result, err := exec.Run(ctx, doc, execute.Options{From: fromNodes, DocID: docID})
	if err != nil {
		return fmt.Errorf("executing %s: %w", path, err)
	}
	printRun(doc, result)

	if save {
		out := outputTo
		if out == "" {
			out = path
		}
		if err := codec.Save(out, doc); err != nil {
			return err
		}
	}
	return nil
}

// printRun prints the run summary and any diagnostics to stdout.
func printRun(doc *schema.Article, result *execute.RunResult) {
	fmt.Printf("run %s: %d executed, %d skipped, %d failed in %s\n",
		result.RunID[:8], result.Executed, result.Skipped, len(result.Failed),
		result.Duration.Round(time.Millisecond))

	if len(result.Cyclic) > 0 {
		fmt.Printf("  dependency cycle: %s\n", strings.Join(result.Cyclic, ", "))
	}

	schema.Walk(doc, func(n schema.Node, _ schema.Address) bool {
		exec, ok := n.(schema.Executable)
		if !ok {
			return true
		}
		for _, msg := range exec.Execution().Messages {
			fmt.Fprintf(os.Stderr, "  %s [%s]: %s\n", n.NodeID(), msg.Level, msg.Message)
		}
		return true
	})
}
