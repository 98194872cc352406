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
	"github.com/smacker/go-tree-sitter/bash"

	"github.com/AleutianAI/williwaw/services/engine/graph"
)

// extractBash derives symbol relations from a bash cell. Variable
// assignments are writes; $name and ${name} expansions are reads.
func extractBash(ctx context.Context, code string) ([]graph.Relation, error) {
	tree, err := parseSitter(ctx, bash.GetLanguage(), code)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	content := []byte(code)
	uses := newSymbolSet()
	assigns := newSymbolSet()

	walkSitter(tree.RootNode(), func(n *sitter.Node) {
		switch n.Type() {
		case "variable_assignment":
			if name := n.ChildByFieldName("name"); name != nil {
				assigns.add(name.Content(content))
			}
		case "simple_expansion", "expansion":
			walkSitter(n, func(c *sitter.Node) {
				if c.Type() == "variable_name" {
					uses.add(c.Content(content))
				}
			})
		}
	})

	return relationsFrom(uses, assigns, newSymbolSet()), nil
}
