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
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/AleutianAI/williwaw/services/engine/graph"
)

// extractJavaScript derives symbol relations from a JavaScript cell.
//
// Variable declarations (including destructuring), assignments, and
// function/class declarations count as writes. Member-access property
// names and object keys are separate node types in the grammar, so
// plain identifier nodes are variable references.
func extractJavaScript(ctx context.Context, code string) ([]graph.Relation, error) {
	tree, err := parseSitter(ctx, javascript.GetLanguage(), code)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	content := []byte(code)
	uses := newSymbolSet()
	assigns := newSymbolSet()
	bound := newSymbolSet()
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
		case "variable_declarator":
			collectTargets(n.ChildByFieldName("name"), assigns)
		case "assignment_expression", "augmented_assignment_expression":
			if left := n.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
				assigns.add(left.Content(content))
				skip[left.StartByte()] = true
			}
		case "function_declaration", "class_declaration", "generator_function_declaration":
			if name := n.ChildByFieldName("name"); name != nil {
				assigns.add(name.Content(content))
				skip[name.StartByte()] = true
			}
		case "formal_parameters", "arrow_function":
			if n.Type() == "arrow_function" {
				if param := n.ChildByFieldName("parameter"); param != nil {
					collectTargets(param, bound)
				}
				if params := n.ChildByFieldName("parameters"); params != nil {
					collectTargets(params, bound)
				}
			} else {
				collectTargets(n, bound)
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
