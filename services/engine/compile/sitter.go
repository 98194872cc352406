// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compile

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/williwaw/services/engine/graph"
)

// ErrSyntax is returned when a cell's source fails to parse.
var ErrSyntax = errors.New("compile: source contains syntax errors")

// parseSitter parses code with a fresh tree-sitter parser. A new
// parser per call keeps extraction safe for concurrent use.
func parseSitter(ctx context.Context, lang *sitter.Language, code string) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, []byte(code))
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	if tree.RootNode() == nil || tree.RootNode().HasError() {
		tree.Close()
		return nil, ErrSyntax
	}
	return tree, nil
}

// walkSitter visits every node in the tree depth first.
func walkSitter(node *sitter.Node, visit func(*sitter.Node)) {
	visit(node)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		walkSitter(node.NamedChild(i), visit)
	}
}

// symbolSet accumulates symbol names preserving first-appearance order.
type symbolSet struct {
	order []string
	seen  map[string]bool
}

func newSymbolSet() *symbolSet {
	return &symbolSet{seen: map[string]bool{}}
}

func (s *symbolSet) add(name string) {
	if name != "" && !s.seen[name] {
		s.seen[name] = true
		s.order = append(s.order, name)
	}
}

func (s *symbolSet) has(name string) bool { return s.seen[name] }

// relationsFrom assembles relations: reads first, then writes. Names
// both read and written inside the same cell count as writes only;
// intra-cell reads of a cell's own assignments are not dependencies.
func relationsFrom(uses, assigns, bound *symbolSet) []graph.Relation {
	var out []graph.Relation
	for _, sym := range uses.order {
		if !assigns.has(sym) && !bound.has(sym) {
			out = append(out, graph.Relation{Kind: graph.RelationUses, Symbol: sym})
		}
	}
	for _, sym := range assigns.order {
		out = append(out, graph.Relation{Kind: graph.RelationAssigns, Symbol: sym})
	}
	return out
}
