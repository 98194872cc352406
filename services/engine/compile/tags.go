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
	"strings"

	"github.com/AleutianAI/williwaw/services/engine/graph"
)

// cellTags are author overrides embedded in cell comments:
//
//	# @uses data, config
//	# @assigns model
//	# @pure
//
// Tags are authoritative for their own kind: when a cell declares
// @uses, the declared symbols replace every use the extractor found,
// and likewise for @assigns. That lets authors both declare
// dependencies static analysis cannot see (dynamic lookups, file side
// effects named as symbols) and remove spurious ones it misread. A
// kind without a tag keeps its extracted relations.
type cellTags struct {
	uses       []string
	assigns    []string
	hasUses    bool
	hasAssigns bool
	pure       bool
}

// apply merges the tags into the extracted relations.
func (t cellTags) apply(parsed []graph.Relation) []graph.Relation {
	var out []graph.Relation
	for _, rel := range parsed {
		if t.hasUses && rel.Kind == graph.RelationUses {
			continue
		}
		if t.hasAssigns && rel.Kind == graph.RelationAssigns {
			continue
		}
		out = append(out, rel)
	}
	for _, sym := range t.uses {
		out = append(out, graph.Relation{Kind: graph.RelationUses, Symbol: sym})
	}
	for _, sym := range t.assigns {
		out = append(out, graph.Relation{Kind: graph.RelationAssigns, Symbol: sym})
	}
	return out
}

// parseTags scans comment lines for relation and purity tags. Comment
// markers #, // and -- are all recognized so the same syntax works
// across cell languages.
func parseTags(code string) cellTags {
	var tags cellTags
	for _, line := range strings.Split(code, "\n") {
		text, ok := commentText(strings.TrimSpace(line))
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(text, "@uses"):
			tags.hasUses = true
			tags.uses = append(tags.uses, splitSymbols(strings.TrimPrefix(text, "@uses"))...)
		case strings.HasPrefix(text, "@assigns"):
			tags.hasAssigns = true
			tags.assigns = append(tags.assigns, splitSymbols(strings.TrimPrefix(text, "@assigns"))...)
		case text == "@pure":
			tags.pure = true
		case text == "@impure":
			tags.pure = false
		}
	}
	return tags
}

func commentText(line string) (string, bool) {
	for _, marker := range []string{"#", "//", "--"} {
		if strings.HasPrefix(line, marker) {
			return strings.TrimSpace(strings.TrimPrefix(line, marker)), true
		}
	}
	return "", false
}

func splitSymbols(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
