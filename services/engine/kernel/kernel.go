// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package kernel defines the execution backend contract.
//
// A kernel owns a language scope: executing code mutates the scope,
// and Set injects values into it directly. Kernels are stateful and
// NOT safe for concurrent use; the executor serializes access per
// kernel and uses forks to evaluate pure code concurrently.
package kernel

import (
	"context"
	"errors"

	"github.com/AleutianAI/williwaw/services/engine/schema"
)

var (
	// ErrUnsupportedLanguage is returned when no kernel handles the
	// requested language.
	ErrUnsupportedLanguage = errors.New("kernel: unsupported language")

	// ErrForkUnsupported is returned by Fork on kernels that cannot
	// clone their scope.
	ErrForkUnsupported = errors.New("kernel: fork not supported")

	// ErrTerminated is returned when code is sent to a terminated
	// kernel.
	ErrTerminated = errors.New("kernel: terminated")
)

// Result is the outcome of executing one piece of code.
//
// A nil error with a Result means the code ran to completion; its
// diagnostics, if any, ride along as Messages. A non-nil error means
// the code itself failed, and the executor records it on the node as
// an error message, never as a process fault.
type Result struct {
	// Outputs holds the values the code produced, in order, as
	// JSON-compatible values.
	Outputs []any

	// Messages holds non-fatal diagnostics emitted during execution.
	Messages []schema.ExecutionMessage
}

// Value returns the last output, which is the value of an expression.
func (r *Result) Value() any {
	if r == nil || len(r.Outputs) == 0 {
		return nil
	}
	return r.Outputs[len(r.Outputs)-1]
}

// Kernel executes code in a persistent language scope.
type Kernel interface {
	// Name returns the kernel implementation name, used as the Source
	// of execution messages.
	Name() string

	// Supports reports whether the kernel handles the language.
	Supports(language string) bool

	// Execute runs code in the kernel's scope. Cancelling the context
	// abandons the execution.
	Execute(ctx context.Context, code string) (*Result, error)

	// Set assigns a value to a name in the kernel's scope.
	Set(ctx context.Context, name string, value any) error

	// ForkSupported reports whether Fork is available.
	ForkSupported() bool

	// Fork returns an independent kernel sharing a copy of the current
	// scope. Executing in the fork never mutates the parent, which
	// makes forks suitable for evaluating pure expressions
	// concurrently with writes to the parent.
	Fork(ctx context.Context) (Kernel, error)

	// Terminate releases the kernel. The kernel must not be used
	// afterwards.
	Terminate(ctx context.Context) error
}
