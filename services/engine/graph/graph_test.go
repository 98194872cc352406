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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/williwaw/services/engine/schema"
)

func res(id string, relations ...Relation) *ResourceInfo {
	return &ResourceInfo{
		Resource:  Resource{ID: id, NodeType: schema.TypeCodeChunk, Language: "calc"},
		Relations: relations,
	}
}

func uses(sym string) Relation    { return Relation{Kind: RelationUses, Symbol: sym} }
func assigns(sym string) Relation { return Relation{Kind: RelationAssigns, Symbol: sym} }

// chain builds a -> b -> c via symbol flow.
func chain() *Graph {
	g, err := New([]*ResourceInfo{
		res("a", assigns("x")),
		res("b", uses("x"), assigns("y")),
		res("c", uses("y")),
	})
	if err != nil {
		panic(err)
	}
	return g
}

func TestNew_ReaderDependsOnWriter(t *testing.T) {
	g := chain()

	deps, err := g.Dependencies("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, deps)

	dependents, err := g.Dependents("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, dependents)
}

func TestNew_ForwardReferenceWorks(t *testing.T) {
	// The reader appears before the writer in the document.
	g, err := New([]*ResourceInfo{
		res("early", uses("later")),
		res("late", assigns("later")),
	})
	require.NoError(t, err)

	deps, err := g.Dependencies("early")
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, deps)
}

func TestNew_WritersOfSameSymbolChainInDocumentOrder(t *testing.T) {
	g, err := New([]*ResourceInfo{
		res("w1", assigns("x")),
		res("w2", assigns("x")),
		res("r", uses("x")),
	})
	require.NoError(t, err)

	deps, err := g.Dependencies("w2")
	require.NoError(t, err)
	assert.Equal(t, []string{"w1"}, deps)

	deps, err = g.Dependencies("r")
	require.NoError(t, err)
	assert.Equal(t, []string{"w1", "w2"}, deps)
}

func TestNew_SelfAssignmentIsNotAnEdge(t *testing.T) {
	// a = a + 1 reads and writes the same symbol.
	g, err := New([]*ResourceInfo{
		res("acc", uses("a"), assigns("a")),
	})
	require.NoError(t, err)

	deps, err := g.Dependencies("acc")
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestNew_DuplicateID(t *testing.T) {
	_, err := New([]*ResourceInfo{res("a"), res("a")})
	assert.ErrorIs(t, err, ErrDuplicateResource)
}

func TestForwardReachable(t *testing.T) {
	g := chain()

	ids, err := g.ForwardReachable("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids)

	ids, err = g.ForwardReachable("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	ids, err = g.ForwardReachable("c")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids)

	_, err = g.ForwardReachable("nope")
	assert.ErrorIs(t, err, ErrUnknownResource)
}

func TestForwardReachable_Diamond(t *testing.T) {
	g, err := New([]*ResourceInfo{
		res("top", assigns("x")),
		res("left", uses("x"), assigns("l")),
		res("right", uses("x"), assigns("r")),
		res("bottom", uses("l"), uses("r")),
	})
	require.NoError(t, err)

	ids, err := g.ForwardReachable("top")
	require.NoError(t, err)
	assert.Equal(t, []string{"top", "left", "right", "bottom"}, ids)

	deps, err := g.Dependencies("bottom")
	require.NoError(t, err)
	assert.Equal(t, []string{"left", "right"}, deps)
}

func TestResourceInfo_SymbolAccessorsDeduplicate(t *testing.T) {
	info := res("n", uses("x"), uses("x"), assigns("y"), uses("z"))
	assert.Equal(t, []string{"x", "z"}, info.Uses())
	assert.Equal(t, []string{"y"}, info.Assigns())
}

func TestGraph_Queries(t *testing.T) {
	g := chain()

	assert.Equal(t, 3, g.Len())
	assert.True(t, g.Contains("b"))
	assert.False(t, g.Contains("zz"))
	assert.Equal(t, []string{"a", "b", "c"}, g.IDs())

	info, err := g.Info("a")
	require.NoError(t, err)
	assert.Equal(t, "a", info.Resource.ID)

	_, err = g.Info("zz")
	assert.ErrorIs(t, err, ErrUnknownResource)
}
