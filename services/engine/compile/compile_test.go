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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/williwaw/services/engine/graph"
	"github.com/AleutianAI/williwaw/services/engine/schema"
)

func chunk(id, language, code string) *schema.CodeChunk {
	return &schema.CodeChunk{ID: id, Language: language, Code: code}
}

func doc(blocks ...schema.Block) *schema.Article {
	return &schema.Article{ID: "doc", Content: blocks}
}

func relMap(rels []graph.Relation) map[graph.Relation]bool {
	out := map[graph.Relation]bool{}
	for _, r := range rels {
		out[r] = true
	}
	return out
}

func TestCompile_CalcChain(t *testing.T) {
	d := doc(
		chunk("a", "calc", "x = 1"),
		chunk("b", "calc", "y = x * 2"),
	)

	res, err := New().Compile(context.Background(), d)
	require.NoError(t, err)

	deps, err := res.Graph.Dependencies("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, deps)

	info, err := res.Graph.Info("b")
	require.NoError(t, err)
	assert.True(t, relMap(info.Relations)[graph.Relation{Kind: graph.RelationUses, Symbol: "x"}])
	assert.True(t, relMap(info.Relations)[graph.Relation{Kind: graph.RelationAssigns, Symbol: "y"}])
}

func TestCompile_AssignsMissingIDs(t *testing.T) {
	d := doc(
		chunk("", "calc", "a = 1"),
		&schema.Paragraph{Content: []schema.Inline{
			&schema.CodeExpression{Language: "calc", Code: "a"},
		}},
		&schema.Parameter{Name: "rate", Value: float64(2)},
	)

	_, err := New().Compile(context.Background(), d)
	require.NoError(t, err)

	assert.Equal(t, "cch-1", d.Content[0].(*schema.CodeChunk).ID)
	assert.Equal(t, "cxp-1", d.Content[1].(*schema.Paragraph).Content[0].(*schema.CodeExpression).ID)
	assert.Equal(t, "par-1", d.Content[2].(*schema.Parameter).ID)
}

func TestCompile_GeneratedIDsSkipTakenOnes(t *testing.T) {
	d := doc(
		chunk("cch-1", "calc", "a = 1"),
		chunk("", "calc", "b = 2"),
	)

	_, err := New().Compile(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "cch-2", d.Content[1].(*schema.CodeChunk).ID)
}

func TestCompile_DigestStableAcrossRelationOrder(t *testing.T) {
	a := digest("calc", "x = a + b", []graph.Relation{
		{Kind: graph.RelationUses, Symbol: "a"},
		{Kind: graph.RelationUses, Symbol: "b"},
		{Kind: graph.RelationAssigns, Symbol: "x"},
	})
	b := digest("calc", "x = a + b", []graph.Relation{
		{Kind: graph.RelationAssigns, Symbol: "x"},
		{Kind: graph.RelationUses, Symbol: "b"},
		{Kind: graph.RelationUses, Symbol: "a"},
	})
	assert.Equal(t, a, b)

	changed := digest("calc", "x = a + b + 1", nil)
	assert.NotEqual(t, a, changed)
}

func TestCompile_SetsExecutionRequired(t *testing.T) {
	fresh := chunk("fresh", "calc", "a = 1")
	cached := chunk("cached", "calc", "b = 2")
	failed := chunk("failed", "calc", "c = 3")
	failed.ExecuteFailed = true

	d := doc(fresh, cached, failed)
	c := New()

	// First compile to learn the digests, then mark cached/failed as
	// previously executed.
	res, err := c.Compile(context.Background(), d)
	require.NoError(t, err)
	cached.ExecuteDigest = cached.CompileDigest
	failed.ExecuteDigest = failed.CompileDigest

	res, err = c.Compile(context.Background(), d)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, schema.RequiredNeverExecuted, fresh.ExecutionRequired)
	assert.Equal(t, schema.RequiredNo, cached.ExecutionRequired)
	assert.Equal(t, schema.RequiredFailed, failed.ExecutionRequired)

	cached.Code = "b = 99"
	_, err = c.Compile(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, schema.RequiredSemanticsChanged, cached.ExecutionRequired)
}

func TestCompile_ExpressionIsPureAndCannotAssign(t *testing.T) {
	expr := &schema.CodeExpression{ID: "e1", Language: "calc", Code: "a + 1"}
	d := doc(&schema.Paragraph{ID: "p", Content: []schema.Inline{expr}})

	res, err := New().Compile(context.Background(), d)
	require.NoError(t, err)

	info, err := res.Graph.Info("e1")
	require.NoError(t, err)
	assert.True(t, info.Pure)
	assert.Equal(t, []string{"a"}, info.Uses())
	assert.Empty(t, info.Assigns())
}

func TestCompile_ParameterAssignsItsName(t *testing.T) {
	d := doc(
		&schema.Parameter{ID: "p1", Name: "rate", Value: float64(3)},
		chunk("c1", "calc", "total = rate * 2"),
	)

	res, err := New().Compile(context.Background(), d)
	require.NoError(t, err)

	deps, err := res.Graph.Dependencies("c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, deps)
}

func TestCompile_ParameterValueChangesDigest(t *testing.T) {
	p := &schema.Parameter{ID: "p1", Name: "rate", Value: float64(3)}
	d := doc(p)
	c := New()

	_, err := c.Compile(context.Background(), d)
	require.NoError(t, err)
	first := p.CompileDigest
	require.NotEmpty(t, first)

	p.Value = float64(4)
	_, err = c.Compile(context.Background(), d)
	require.NoError(t, err)
	assert.NotEqual(t, first, p.CompileDigest)
}

func TestCompile_SyntaxErrorIsAMessageNotAFailure(t *testing.T) {
	bad := chunk("bad", "calc", "a = = 1")
	good := chunk("good", "calc", "b = 1")
	d := doc(bad, good)

	res, err := New().Compile(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Graph.Len())

	require.NotEmpty(t, bad.Messages)
	assert.Equal(t, schema.MessageLevelError, bad.Messages[0].Level)
	assert.Equal(t, "compile", bad.Messages[0].Source)
	assert.Empty(t, good.Messages)
}

func TestCompile_UnknownLanguageWarns(t *testing.T) {
	c := chunk("c1", "fortran", "X = 1")
	d := doc(c)

	_, err := New().Compile(context.Background(), d)
	require.NoError(t, err)
	require.NotEmpty(t, c.Messages)
	assert.Equal(t, schema.MessageLevelWarning, c.Messages[0].Level)
}

func TestParseTags(t *testing.T) {
	tags := parseTags("# @uses data, config\n# @assigns model\nmodel = fit(data)\n# @pure")
	assert.True(t, tags.pure)
	assert.True(t, tags.hasUses)
	assert.True(t, tags.hasAssigns)
	assert.Equal(t, []string{"data", "config"}, tags.uses)
	assert.Equal(t, []string{"model"}, tags.assigns)

	tags = parseTags("// @pure\n// @impure")
	assert.False(t, tags.pure)

	tags = parseTags("a = 1")
	assert.False(t, tags.hasUses)
	assert.False(t, tags.hasAssigns)
}

func TestCellTags_TagsAreAuthoritativeForTheirKind(t *testing.T) {
	parsed := []graph.Relation{
		{Kind: graph.RelationUses, Symbol: "a"},
		{Kind: graph.RelationAssigns, Symbol: "b"},
	}

	// @uses replaces the parsed uses; the parsed assigns survive.
	tags := parseTags("# @uses c")
	assert.Equal(t, []graph.Relation{
		{Kind: graph.RelationAssigns, Symbol: "b"},
		{Kind: graph.RelationUses, Symbol: "c"},
	}, tags.apply(parsed))

	// A bare @assigns with no symbols removes every parsed assign.
	tags = parseTags("# @assigns")
	assert.Equal(t, []graph.Relation{
		{Kind: graph.RelationUses, Symbol: "a"},
	}, tags.apply(parsed))

	// No tags: parsed relations pass through untouched.
	assert.Equal(t, parsed, parseTags("x = 1").apply(parsed))
}

func TestCompile_TagsOverrideExtractedRelations(t *testing.T) {
	// The extractor sees "a"; the tag narrows the cell's reads to "n".
	c := chunk("c1", "calc", "# @uses n\nb = a + 1")
	d := doc(c, chunk("w", "calc", "n = 2"))

	res, err := New().Compile(context.Background(), d)
	require.NoError(t, err)

	info, err := res.Graph.Info("c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, info.Uses())
	assert.Equal(t, []string{"b"}, info.Assigns())

	deps, err := res.Graph.Dependencies("c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"w"}, deps)
}

func TestExtractPython(t *testing.T) {
	rels, err := extractPython(context.Background(), "b = a + 1\nc = b * other\ndef f(x):\n    return x + b")
	require.NoError(t, err)

	m := relMap(rels)
	assert.True(t, m[graph.Relation{Kind: graph.RelationUses, Symbol: "a"}])
	assert.True(t, m[graph.Relation{Kind: graph.RelationUses, Symbol: "other"}])
	assert.True(t, m[graph.Relation{Kind: graph.RelationAssigns, Symbol: "b"}])
	assert.True(t, m[graph.Relation{Kind: graph.RelationAssigns, Symbol: "c"}])
	assert.True(t, m[graph.Relation{Kind: graph.RelationAssigns, Symbol: "f"}])
	// b is assigned in the cell, so it is not an external use; x is a
	// parameter binding.
	assert.False(t, m[graph.Relation{Kind: graph.RelationUses, Symbol: "b"}])
	assert.False(t, m[graph.Relation{Kind: graph.RelationUses, Symbol: "x"}])
}

func TestExtractPython_AttributeNamesAreNotUses(t *testing.T) {
	rels, err := extractPython(context.Background(), "y = frame.mean")
	require.NoError(t, err)

	m := relMap(rels)
	assert.True(t, m[graph.Relation{Kind: graph.RelationUses, Symbol: "frame"}])
	assert.False(t, m[graph.Relation{Kind: graph.RelationUses, Symbol: "mean"}])
}

func TestExtractJavaScript(t *testing.T) {
	rels, err := extractJavaScript(context.Background(), "const b = a + 1;\nlet c = b.length;\nfunction f(x) { return x + c; }")
	require.NoError(t, err)

	m := relMap(rels)
	assert.True(t, m[graph.Relation{Kind: graph.RelationUses, Symbol: "a"}])
	assert.True(t, m[graph.Relation{Kind: graph.RelationAssigns, Symbol: "b"}])
	assert.True(t, m[graph.Relation{Kind: graph.RelationAssigns, Symbol: "c"}])
	assert.True(t, m[graph.Relation{Kind: graph.RelationAssigns, Symbol: "f"}])
	assert.False(t, m[graph.Relation{Kind: graph.RelationUses, Symbol: "length"}])
	assert.False(t, m[graph.Relation{Kind: graph.RelationUses, Symbol: "x"}])
}

func TestExtractBash(t *testing.T) {
	rels, err := extractBash(context.Background(), "out=\"$base/$name\"\necho \"$out\"")
	require.NoError(t, err)

	m := relMap(rels)
	assert.True(t, m[graph.Relation{Kind: graph.RelationUses, Symbol: "base"}])
	assert.True(t, m[graph.Relation{Kind: graph.RelationUses, Symbol: "name"}])
	assert.True(t, m[graph.Relation{Kind: graph.RelationAssigns, Symbol: "out"}])
	assert.False(t, m[graph.Relation{Kind: graph.RelationUses, Symbol: "out"}])
}

func TestCompile_AddressesCoverExecutables(t *testing.T) {
	d := doc(chunk("c1", "calc", "a = 1"))

	res, err := New().Compile(context.Background(), d)
	require.NoError(t, err)

	ptr, err := res.Addresses.ResolveID(d, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", ptr.Node().NodeID())
}
