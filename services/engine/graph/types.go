// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph derives the dependency graph of a compiled document.
//
// The compiler produces one ResourceInfo per executable node, listing
// the symbols the node uses and assigns. The graph connects readers to
// writers: a resource that uses a symbol depends on every resource that
// assigns it, regardless of document position, so forward references
// work. Writers of the same symbol are additionally chained in document
// order, which keeps the final value of a multiply-assigned symbol
// deterministic.
//
// # Thread Safety
//
// A Graph is immutable after New and safe for concurrent reads.
package graph

import "github.com/AleutianAI/williwaw/services/engine/schema"

// RelationKind classifies how a resource touches a symbol.
type RelationKind string

const (
	// RelationUses marks the resource as a reader of the symbol.
	RelationUses RelationKind = "uses"

	// RelationAssigns marks the resource as a writer of the symbol.
	RelationAssigns RelationKind = "assigns"
)

// Relation is one symbol dependency of a resource.
type Relation struct {
	Kind   RelationKind `json:"kind"`
	Symbol string       `json:"symbol"`
}

// Resource identifies an executable node in the document.
type Resource struct {
	// ID is the node's stable identifier.
	ID string `json:"id"`

	// NodeType is the node's variant.
	NodeType schema.NodeType `json:"nodeType"`

	// Language is the node's programming language, or "" for nodes
	// without one (Parameter).
	Language string `json:"language,omitempty"`
}

// ResourceInfo is the compiler's full description of one resource.
type ResourceInfo struct {
	Resource Resource `json:"resource"`

	// Relations lists the symbols the resource uses and assigns, in the
	// order the compiler discovered them.
	Relations []Relation `json:"relations,omitempty"`

	// CompileDigest is the content hash of the resource's code and
	// normalized relations.
	CompileDigest string `json:"compileDigest"`

	// ExecuteDigest is the compile digest recorded at the most recent
	// successful execution, or "" if the resource never ran.
	ExecuteDigest string `json:"executeDigest,omitempty"`

	// ExecuteFailed indicates the most recent execution failed, which
	// disqualifies the resource from digest-based skipping.
	ExecuteFailed bool `json:"executeFailed,omitempty"`

	// Pure indicates the resource does not mutate kernel state, making
	// it eligible for evaluation in a forked kernel.
	Pure bool `json:"pure,omitempty"`
}

// Uses returns the symbols the resource reads, in discovery order.
func (r *ResourceInfo) Uses() []string {
	return r.symbols(RelationUses)
}

// Assigns returns the symbols the resource writes, in discovery order.
func (r *ResourceInfo) Assigns() []string {
	return r.symbols(RelationAssigns)
}

func (r *ResourceInfo) symbols(kind RelationKind) []string {
	var out []string
	seen := map[string]bool{}
	for _, rel := range r.Relations {
		if rel.Kind == kind && !seen[rel.Symbol] {
			seen[rel.Symbol] = true
			out = append(out, rel.Symbol)
		}
	}
	return out
}
