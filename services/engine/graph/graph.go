// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateResource is returned when two resources share an id.
	ErrDuplicateResource = errors.New("graph: duplicate resource id")

	// ErrUnknownResource is returned when a query names an id the graph
	// does not contain.
	ErrUnknownResource = errors.New("graph: unknown resource id")
)

// Graph is the dependency graph over a document's resources.
//
// Resources keep the order the compiler discovered them in (document
// order); every query that returns multiple resources returns them in
// that order, so downstream staging is deterministic.
type Graph struct {
	order []string
	infos map[string]*ResourceInfo

	deps       map[string]map[string]bool // id -> ids it depends on
	dependents map[string]map[string]bool // id -> ids that depend on it
}

// New builds the graph from compiler output.
//
// Edges are derived from symbol relations: every reader of a symbol
// depends on every writer of it (excluding itself), and writers of the
// same symbol are chained in document order. Cycles are representable;
// detecting them is the planner's job.
func New(infos []*ResourceInfo) (*Graph, error) {
	g := &Graph{
		infos:      make(map[string]*ResourceInfo, len(infos)),
		deps:       make(map[string]map[string]bool, len(infos)),
		dependents: make(map[string]map[string]bool, len(infos)),
	}

	for _, info := range infos {
		id := info.Resource.ID
		if id == "" {
			return nil, fmt.Errorf("%w: resource with empty id", ErrUnknownResource)
		}
		if _, ok := g.infos[id]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateResource, id)
		}
		g.order = append(g.order, id)
		g.infos[id] = info
		g.deps[id] = map[string]bool{}
		g.dependents[id] = map[string]bool{}
	}

	writers := map[string][]string{} // symbol -> writer ids in document order
	for _, id := range g.order {
		for _, sym := range g.infos[id].Assigns() {
			writers[sym] = append(writers[sym], id)
		}
	}

	for _, id := range g.order {
		for _, sym := range g.infos[id].Uses() {
			for _, w := range writers[sym] {
				if w != id {
					g.addEdge(w, id)
				}
			}
		}
	}
	for _, ws := range writers {
		for i := 1; i < len(ws); i++ {
			g.addEdge(ws[i-1], ws[i])
		}
	}

	return g, nil
}

func (g *Graph) addEdge(from, to string) {
	g.deps[to][from] = true
	g.dependents[from][to] = true
}

// Len returns the number of resources.
func (g *Graph) Len() int {
	return len(g.order)
}

// Contains reports whether the graph holds the resource.
func (g *Graph) Contains(id string) bool {
	_, ok := g.infos[id]
	return ok
}

// Info returns the resource's compile-time description.
func (g *Graph) Info(id string) (*ResourceInfo, error) {
	info, ok := g.infos[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, id)
	}
	return info, nil
}

// Resources returns all resources in document order.
func (g *Graph) Resources() []*ResourceInfo {
	out := make([]*ResourceInfo, len(g.order))
	for i, id := range g.order {
		out[i] = g.infos[id]
	}
	return out
}

// IDs returns all resource ids in document order.
func (g *Graph) IDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Dependencies returns the ids the resource directly depends on, in
// document order.
func (g *Graph) Dependencies(id string) ([]string, error) {
	set, ok := g.deps[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, id)
	}
	return g.inOrder(set), nil
}

// Dependents returns the ids that directly depend on the resource, in
// document order.
func (g *Graph) Dependents(id string) ([]string, error) {
	set, ok := g.dependents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, id)
	}
	return g.inOrder(set), nil
}

// ForwardReachable returns the roots plus everything transitively
// downstream of them, in document order. This is the execution set for
// a run triggered from specific nodes.
func (g *Graph) ForwardReachable(roots ...string) ([]string, error) {
	reached := map[string]bool{}
	queue := make([]string, 0, len(roots))
	for _, id := range roots {
		if !g.Contains(id) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownResource, id)
		}
		if !reached[id] {
			reached[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for next := range g.dependents[id] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	return g.inOrder(reached), nil
}

// inOrder projects a set of ids onto document order.
func (g *Graph) inOrder(set map[string]bool) []string {
	var out []string
	for _, id := range g.order {
		if set[id] {
			out = append(out, id)
		}
	}
	return out
}
