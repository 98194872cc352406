// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patch computes and applies minimal edit operations between
// two values of the same node type.
//
// The executor diffs each step's private pre/post clones and applies
// the resulting operations to the live tree between stages; the same
// operations stream to external sinks for live UI sync. The diff/apply
// pair maintains the round-trip property Apply(a, Diff(a, b)) == b, and
// Diff(a, a) always produces zero operations. An empty operation list
// means "no observable change" and must never be applied or forwarded.
package patch

import (
	"github.com/AleutianAI/williwaw/services/engine/schema"
)

// OpKind identifies an edit operation.
type OpKind string

const (
	// OpAdd inserts items into a sequence before the addressed index.
	OpAdd OpKind = "add"

	// OpRemove removes Items items starting at the addressed index.
	OpRemove OpKind = "remove"

	// OpReplace replaces a scalar field, or Items sequence items
	// starting at the addressed index.
	OpReplace OpKind = "replace"

	// OpMove moves Items items from the From address to the target
	// address within the same node.
	OpMove OpKind = "move"

	// OpCopy copies Items items from the From address to the target
	// address within the same node.
	OpCopy OpKind = "copy"

	// OpTransform converts a node to a different variant, preserving
	// content where the variants share it.
	OpTransform OpKind = "transform"
)

// Operation is a single edit, addressed relative to the patch target.
type Operation struct {
	Kind OpKind `json:"kind"`

	// Address locates the field or sequence position the operation
	// applies to, relative to the patch target node.
	Address schema.Address `json:"address"`

	// From is the source location for move and copy.
	From schema.Address `json:"from,omitempty"`

	// Items is the number of sequence items affected. Zero means one.
	Items int `json:"items,omitempty"`

	// Value carries the operand for add and replace.
	Value *Value `json:"value,omitempty"`

	// To is the target variant for transform.
	To schema.NodeType `json:"to,omitempty"`
}

// count returns the effective item count of the operation.
func (o Operation) count() int {
	if o.Items <= 0 {
		return 1
	}
	return o.Items
}

// Patch targets a node, by identifier or by address, and carries an
// ordered list of operations.
type Patch struct {
	// NodeID identifies the target node. When set, appliers must
	// re-resolve the node by identifier rather than trusting a cached
	// address, since any earlier structural mutation invalidates
	// addresses.
	NodeID string `json:"nodeId,omitempty"`

	// Address locates the target when NodeID is empty.
	Address schema.Address `json:"address,omitempty"`

	// Ops are applied in order.
	Ops []Operation `json:"ops"`
}

// IsEmpty reports whether the patch carries no operations. Empty
// patches represent "no observable change" and are never applied or
// transmitted.
func (p *Patch) IsEmpty() bool {
	return p == nil || len(p.Ops) == 0
}
