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

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/AleutianAI/williwaw/services/engine/graph"
)

// extractPython derives symbol relations from a Python cell.
//
// Assignment targets, function and class definitions, and loop
// variables count as writes. Every other identifier reference counts as
// a read unless the same cell writes or locally binds it. Attribute
// names and keyword-argument names are not variable references.
func extractPython(ctx context.Context, code string) ([]graph.Relation, error) {
	tree, err := parseSitter(ctx, python.GetLanguage(), code)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	content := []byte(code)
	uses := newSymbolSet()
	assigns := newSymbolSet()
	bound := newSymbolSet()

	// Tree-sitter hands out fresh node values on every traversal, so
	// non-reference identifiers are remembered by byte offset.
	skip := map[uint32]bool{}

	collectTargets := func(target *sitter.Node, into *symbolSet) {
		if target == nil {
			return
		}
		walkSitter(target, func(n *sitter.Node) {
			if n.Type() == "identifier" {
				into.add(n.Content(content))
				skip[n.StartByte()] = true
			}
		})
	}

	walkSitter(tree.RootNode(), func(n *sitter.Node) {
		switch n.Type() {
		case "assignment", "augmented_assignment":
			collectTargets(n.ChildByFieldName("left"), assigns)
		case "for_statement":
			collectTargets(n.ChildByFieldName("left"), assigns)
		case "function_definition", "class_definition":
			if name := n.ChildByFieldName("name"); name != nil {
				assigns.add(name.Content(content))
				skip[name.StartByte()] = true
			}
		case "parameters", "lambda_parameters":
			collectTargets(n, bound)
		case "keyword_argument":
			if name := n.ChildByFieldName("name"); name != nil {
				skip[name.StartByte()] = true
			}
		case "attribute":
			if attr := n.ChildByFieldName("attribute"); attr != nil {
				skip[attr.StartByte()] = true
			}
		}
	})

	walkSitter(tree.RootNode(), func(n *sitter.Node) {
		if n.Type() == "identifier" && !skip[n.StartByte()] {
			uses.add(n.Content(content))
		}
	})

	return relationsFrom(uses, assigns, bound), nil
}
