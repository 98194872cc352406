// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

// Clone returns a deep copy of the node.
//
// The executor clones a node before handing it to a concurrent task so
// that no two tasks ever share a mutable reference to the same node or
// its ancestors. The switch is exhaustive over the variant set.
func Clone(n Node) Node {
	switch t := n.(type) {
	case nil:
		return nil
	case *Article:
		out := *t
		out.Content = CloneBlocks(t.Content)
		return &out
	case *Section:
		out := *t
		out.Content = CloneBlocks(t.Content)
		return &out
	case *Heading:
		out := *t
		out.Content = CloneInlines(t.Content)
		return &out
	case *Paragraph:
		out := *t
		out.Content = CloneInlines(t.Content)
		return &out
	case *Text:
		out := *t
		return &out
	case *CodeChunk:
		out := *t
		out.Outputs = cloneValues(t.Outputs)
		out.Messages = cloneMessages(t.Messages)
		return &out
	case *CodeExpression:
		out := *t
		out.Output = CloneValue(t.Output)
		out.Messages = cloneMessages(t.Messages)
		return &out
	case *Parameter:
		out := *t
		out.Value = CloneValue(t.Value)
		out.Messages = cloneMessages(t.Messages)
		return &out
	default:
		// Unreachable for the closed variant set.
		return nil
	}
}

// CloneBlocks deep copies a block sequence.
func CloneBlocks(blocks []Block) []Block {
	if blocks == nil {
		return nil
	}
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = Clone(b).(Block)
	}
	return out
}

// CloneInlines deep copies an inline sequence.
func CloneInlines(inlines []Inline) []Inline {
	if inlines == nil {
		return nil
	}
	out := make([]Inline, len(inlines))
	for i, in := range inlines {
		out[i] = Clone(in).(Inline)
	}
	return out
}

// CloneValue deep copies a JSON-compatible kernel value (nil, bool,
// float64, int, string, []any, map[string]any). Unknown types are
// returned as-is; kernels must only emit JSON-compatible values.
func CloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		return cloneValues(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}

func cloneValues(vs []any) []any {
	if vs == nil {
		return nil
	}
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = CloneValue(v)
	}
	return out
}

func cloneMessages(ms []ExecutionMessage) []ExecutionMessage {
	if ms == nil {
		return nil
	}
	out := make([]ExecutionMessage, len(ms))
	copy(out, ms)
	return out
}
