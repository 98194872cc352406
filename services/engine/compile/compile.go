// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compile turns a document into dependency-graph resources.
//
// Compiling walks the document, assigns stable identifiers to
// executable nodes that lack one, extracts each node's symbol relations
// from its source, applies @uses/@assigns/@pure/@impure comment tags,
// and computes the compile digest that drives execution skipping.
//
// Compilation is error tolerant: a cell whose source cannot be parsed
// gets an error message on the node and an empty relation list, and the
// rest of the document still compiles.
package compile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/williwaw/services/engine/graph"
	"github.com/AleutianAI/williwaw/services/engine/schema"
)

// Extractor pulls symbol relations out of one cell's source code.
type Extractor func(ctx context.Context, code string) ([]graph.Relation, error)

// Result is the output of compiling one document.
type Result struct {
	// Graph is the dependency graph over the document's resources.
	Graph *graph.Graph

	// Addresses maps node ids to their current tree addresses, valid
	// until the next structural mutation.
	Addresses schema.AddressMap
}

// Compiler compiles documents. Safe for concurrent use: each Compile
// call keeps its state on the stack and extractors create their own
// parsers per call.
type Compiler struct {
	extractors map[string]Extractor
}

// New returns a compiler with relation extractors for the built-in
// languages: calc, python, javascript and bash.
func New() *Compiler {
	return &Compiler{extractors: map[string]Extractor{
		"calc":       extractCalc,
		"python":     extractPython,
		"py":         extractPython,
		"javascript": extractJavaScript,
		"js":         extractJavaScript,
		"bash":       extractBash,
		"sh":         extractBash,
	}}
}

// Register adds or replaces the extractor for a language.
func (c *Compiler) Register(language string, e Extractor) {
	c.extractors[strings.ToLower(language)] = e
}

// Compile analyzes the document and builds its dependency graph.
// Executable nodes are mutated in place: missing ids are assigned,
// compile digests and execution-required reasons are set, and compile
// diagnostics land in the node's messages.
func (c *Compiler) Compile(ctx context.Context, doc *schema.Article) (*Result, error) {
	if err := initMetrics(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "compile.document")
	defer span.End()
	start := time.Now()

	assignIDs(doc)
	addresses := schema.Assemble(doc)

	var infos []*graph.ResourceInfo
	var walkErr error
	schema.Walk(doc, func(n schema.Node, _ schema.Address) bool {
		if walkErr != nil {
			return false
		}
		exec, ok := n.(schema.Executable)
		if !ok {
			return true
		}
		if err := ctx.Err(); err != nil {
			walkErr = err
			return false
		}
		infos = append(infos, c.compileNode(ctx, exec))
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}

	g, err := graph.New(infos)
	if err != nil {
		return nil, fmt.Errorf("building graph: %w", err)
	}

	recordCompile(ctx, time.Since(start), len(infos))
	return &Result{Graph: g, Addresses: addresses}, nil
}

// compileNode produces the ResourceInfo for one executable node and
// updates the node's compile-time execution state.
func (c *Compiler) compileNode(ctx context.Context, exec schema.Executable) *graph.ResourceInfo {
	state := exec.Execution()
	state.Messages = nil

	info := &graph.ResourceInfo{
		Resource: graph.Resource{
			ID:       exec.NodeID(),
			NodeType: exec.NodeType(),
			Language: strings.ToLower(exec.ProgrammingLanguage()),
		},
	}

	source := exec.Source()
	switch t := exec.(type) {
	case *schema.Parameter:
		info.Relations = []graph.Relation{{Kind: graph.RelationAssigns, Symbol: t.Name}}
		// A parameter's value is its semantics: a new value must
		// invalidate dependents the way edited code would.
		source = fmt.Sprintf("%v", t.Value)

	case *schema.CodeExpression:
		info.Pure = true
		info.Relations = c.extract(ctx, exec, info.Resource.Language, t.Code, state)
		// Expressions must not write; drop any assigns the extractor or
		// tags produced and flag them.
		info.Relations = stripAssigns(info.Relations, state)

	case *schema.CodeChunk:
		info.Relations = c.extract(ctx, exec, info.Resource.Language, t.Code, state)
		tags := parseTags(t.Code)
		info.Relations = tags.apply(info.Relations)
		info.Pure = tags.pure
	}

	info.CompileDigest = digest(info.Resource.Language, source, info.Relations)
	info.ExecuteDigest = state.ExecuteDigest
	info.ExecuteFailed = state.ExecuteFailed

	state.CompileDigest = info.CompileDigest
	state.ExecutionRequired = requiredReason(info)
	return info
}

func (c *Compiler) extract(ctx context.Context, exec schema.Executable, language, code string, state *schema.ExecutionState) []graph.Relation {
	if strings.TrimSpace(code) == "" {
		return nil
	}
	extractor, ok := c.extractors[language]
	if !ok {
		state.Messages = append(state.Messages, schema.ExecutionMessage{
			Level:   schema.MessageLevelWarning,
			Message: fmt.Sprintf("no relation extractor for language %q", language),
			Source:  "compile",
		})
		return nil
	}
	relations, err := extractor(ctx, code)
	if err != nil {
		state.Messages = append(state.Messages, schema.ExecutionMessage{
			Level:   schema.MessageLevelError,
			Message: err.Error(),
			Source:  "compile",
		})
		recordCompileError(ctx, language)
		return nil
	}
	return relations
}

func stripAssigns(relations []graph.Relation, state *schema.ExecutionState) []graph.Relation {
	out := relations[:0]
	for _, rel := range relations {
		if rel.Kind == graph.RelationAssigns {
			state.Messages = append(state.Messages, schema.ExecutionMessage{
				Level:   schema.MessageLevelWarning,
				Message: fmt.Sprintf("expression assigns %q; expressions must be pure", rel.Symbol),
				Source:  "compile",
			})
			continue
		}
		out = append(out, rel)
	}
	return out
}

// requiredReason classifies why the resource needs execution, from
// digests alone. Dependency-driven reasons are the planner's call.
func requiredReason(info *graph.ResourceInfo) schema.ExecutionRequired {
	switch {
	case info.ExecuteDigest == "":
		return schema.RequiredNeverExecuted
	case info.ExecuteFailed:
		return schema.RequiredFailed
	case info.CompileDigest != info.ExecuteDigest:
		return schema.RequiredSemanticsChanged
	default:
		return schema.RequiredNo
	}
}

// assignIDs gives every executable node without an id a deterministic
// one: a type prefix plus a per-type counter, skipping ids already
// taken in the document.
func assignIDs(doc *schema.Article) {
	taken := map[string]bool{}
	schema.Walk(doc, func(n schema.Node, _ schema.Address) bool {
		if id := n.NodeID(); id != "" {
			taken[id] = true
		}
		return true
	})

	counters := map[string]int{}
	next := func(prefix string) string {
		for {
			counters[prefix]++
			id := fmt.Sprintf("%s-%d", prefix, counters[prefix])
			if !taken[id] {
				taken[id] = true
				return id
			}
		}
	}

	schema.Walk(doc, func(n schema.Node, _ schema.Address) bool {
		switch t := n.(type) {
		case *schema.CodeChunk:
			if t.ID == "" {
				t.ID = next("cch")
			}
		case *schema.CodeExpression:
			if t.ID == "" {
				t.ID = next("cxp")
			}
		case *schema.Parameter:
			if t.ID == "" {
				t.ID = next("par")
			}
		}
		return true
	})
}
