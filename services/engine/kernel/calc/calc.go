// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package calc is the built-in calculator kernel.
//
// Code cells are HCL attribute bodies: each line assigns the value of
// an expression to a name, and names assigned in earlier cells are in
// scope for later ones. A cell that is a single bare expression
// evaluates to its value without assigning anything, which is the form
// inline expressions use.
//
//	a = 1
//	b = a * 2
//
// The scope is a plain value map, so forking the kernel is a map copy.
// That makes calc the reference kernel for concurrent evaluation of
// pure expressions.
package calc

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/AleutianAI/williwaw/services/engine/kernel"
	"github.com/AleutianAI/williwaw/services/engine/schema"
)

// Name is the kernel name reported on execution messages.
const Name = "calc"

// Calc evaluates HCL expressions over a persistent variable scope.
// Not safe for concurrent use.
type Calc struct {
	vars       map[string]cty.Value
	terminated bool
}

// New returns an empty-scope calc kernel.
func New() *Calc {
	return &Calc{vars: make(map[string]cty.Value)}
}

// NewFactory adapts New to the pool's factory signature.
func NewFactory() kernel.Factory {
	return func(ctx context.Context) (kernel.Kernel, error) {
		return New(), nil
	}
}

func (c *Calc) Name() string { return Name }

func (c *Calc) Supports(language string) bool {
	return strings.EqualFold(language, Name)
}

func (c *Calc) ForkSupported() bool { return true }

// Execute evaluates the cell and returns one output per assignment in
// source order, or the expression value for a bare-expression cell.
func (c *Calc) Execute(ctx context.Context, code string) (*kernel.Result, error) {
	if c.terminated {
		return nil, kernel.ErrTerminated
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	attrs, expr, err := parseCell(code)
	if err != nil {
		return nil, err
	}

	evalCtx := &hcl.EvalContext{Variables: c.vars}

	if expr != nil {
		v, diags := expr.Value(evalCtx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%s", diagText(diags))
		}
		out, err := ctyToGo(v)
		if err != nil {
			return nil, err
		}
		return &kernel.Result{Outputs: []any{out}}, nil
	}

	res := &kernel.Result{}
	for _, attr := range attrs {
		v, diags := attr.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%s: %s", attr.Name, diagText(diags))
		}
		out, err := ctyToGo(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", attr.Name, err)
		}
		c.vars[attr.Name] = v
		res.Outputs = append(res.Outputs, out)
	}
	if len(res.Outputs) == 0 {
		res.Messages = append(res.Messages, schema.ExecutionMessage{
			Level:   schema.MessageLevelWarning,
			Message: "cell contains no assignments or expression",
			Source:  Name,
		})
	}
	return res, nil
}

// Set injects a value into the scope, as Parameter nodes do.
func (c *Calc) Set(ctx context.Context, name string, value any) error {
	if c.terminated {
		return kernel.ErrTerminated
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := goToCty(value)
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	c.vars[name] = v
	return nil
}

// Fork copies the scope into an independent kernel.
func (c *Calc) Fork(ctx context.Context) (kernel.Kernel, error) {
	if c.terminated {
		return nil, kernel.ErrTerminated
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vars := make(map[string]cty.Value, len(c.vars))
	for k, v := range c.vars {
		vars[k] = v // cty values are immutable
	}
	return &Calc{vars: vars}, nil
}

func (c *Calc) Terminate(ctx context.Context) error {
	c.terminated = true
	c.vars = nil
	return nil
}

// Analyze extracts the symbols a cell uses and assigns without
// evaluating it. Assignment names count as assigned; every variable
// referenced by any expression counts as used, including references to
// names assigned earlier in the same cell.
func Analyze(code string) (uses, assigns []string, err error) {
	attrs, expr, err := parseCell(code)
	if err != nil {
		return nil, nil, err
	}

	seen := map[string]bool{}
	record := func(traversals []hcl.Traversal) {
		for _, t := range traversals {
			name := t.RootName()
			if !seen[name] {
				seen[name] = true
				uses = append(uses, name)
			}
		}
	}

	if expr != nil {
		record(expr.Variables())
		return uses, nil, nil
	}
	for _, attr := range attrs {
		record(attr.Expr.Variables())
		assigns = append(assigns, attr.Name)
	}
	return uses, assigns, nil
}

// parseCell parses code as an attribute body, falling back to a bare
// expression. Exactly one of the returns is populated.
func parseCell(code string) ([]*hclsyntax.Attribute, hclsyntax.Expression, error) {
	file, diags := hclsyntax.ParseConfig([]byte(code), "cell.calc", hcl.InitialPos)
	if !diags.HasErrors() {
		body, ok := file.Body.(*hclsyntax.Body)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected body type %T", file.Body)
		}
		if len(body.Blocks) > 0 {
			return nil, nil, fmt.Errorf("blocks are not allowed in calc cells")
		}
		attrs := make([]*hclsyntax.Attribute, 0, len(body.Attributes))
		for _, a := range body.Attributes {
			attrs = append(attrs, a)
		}
		sort.Slice(attrs, func(i, j int) bool {
			return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
		})
		return attrs, nil, nil
	}

	expr, exprDiags := hclsyntax.ParseExpression([]byte(strings.TrimSpace(code)), "cell.calc", hcl.InitialPos)
	if exprDiags.HasErrors() {
		// Report the original parse failure, which is usually the more
		// useful of the two.
		return nil, nil, fmt.Errorf("%s", diagText(diags))
	}
	return nil, expr, nil
}

func diagText(diags hcl.Diagnostics) string {
	parts := make([]string, 0, len(diags))
	for _, d := range diags {
		if d.Severity == hcl.DiagError {
			parts = append(parts, d.Summary)
		}
	}
	return strings.Join(parts, "; ")
}
