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

	"github.com/AleutianAI/williwaw/services/engine/graph"
	"github.com/AleutianAI/williwaw/services/engine/kernel/calc"
)

// extractCalc derives relations from a calc cell. The calc kernel's
// own analyzer already understands the cell grammar, so its answer is
// exact rather than approximated from an AST walk.
func extractCalc(ctx context.Context, code string) ([]graph.Relation, error) {
	uses, assigns, err := calc.Analyze(code)
	if err != nil {
		return nil, err
	}
	var out []graph.Relation
	assigned := make(map[string]bool, len(assigns))
	for _, sym := range assigns {
		assigned[sym] = true
	}
	for _, sym := range uses {
		if !assigned[sym] {
			out = append(out, graph.Relation{Kind: graph.RelationUses, Symbol: sym})
		}
	}
	for _, sym := range assigns {
		out = append(out, graph.Relation{Kind: graph.RelationAssigns, Symbol: sym})
	}
	return out, nil
}
