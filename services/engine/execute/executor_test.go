// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package execute

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/williwaw/services/engine/compile"
	"github.com/AleutianAI/williwaw/services/engine/graph"
	"github.com/AleutianAI/williwaw/services/engine/kernel"
	"github.com/AleutianAI/williwaw/services/engine/kernel/calc"
	"github.com/AleutianAI/williwaw/services/engine/patch"
	"github.com/AleutianAI/williwaw/services/engine/plan"
	"github.com/AleutianAI/williwaw/services/engine/schema"
	"github.com/AleutianAI/williwaw/services/engine/sink"
	"github.com/AleutianAI/williwaw/services/engine/store"
)

func calcPool(t *testing.T) *kernel.Pool {
	t.Helper()
	pool, err := kernel.NewPool(context.Background(), calc.NewFactory())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })
	return pool
}

// calcDoc is a three-resource document: two chained chunks and a pure
// expression reading both.
func calcDoc() *schema.Article {
	return &schema.Article{
		ID: "doc-1",
		Content: []schema.Block{
			&schema.CodeChunk{ID: "ch-a", Language: "calc", Code: "a = 1"},
			&schema.CodeChunk{ID: "ch-b", Language: "calc", Code: "b = a + 2"},
			&schema.Paragraph{ID: "pa-1", Content: []schema.Inline{
				&schema.Text{ID: "tx-1", Value: "total: "},
				&schema.CodeExpression{ID: "ex-1", Language: "calc", Code: "a + b"},
			}},
		},
	}
}

func chunk(t *testing.T, doc *schema.Article, id string) *schema.CodeChunk {
	t.Helper()
	ptr, err := schema.Find(doc, id)
	require.NoError(t, err)
	c, ok := ptr.Node().(*schema.CodeChunk)
	require.True(t, ok, "%s is not a chunk", id)
	return c
}

func expression(t *testing.T, doc *schema.Article, id string) *schema.CodeExpression {
	t.Helper()
	ptr, err := schema.Find(doc, id)
	require.NoError(t, err)
	e, ok := ptr.Node().(*schema.CodeExpression)
	require.True(t, ok, "%s is not an expression", id)
	return e
}

func drain(ch *sink.Channel) []sink.Envelope {
	var out []sink.Envelope
	for {
		select {
		case env := <-ch.C:
			out = append(out, env)
		default:
			return out
		}
	}
}

// assertSettled checks that no executable node was left pending or
// running after a run returned.
func assertSettled(t *testing.T, doc *schema.Article) {
	t.Helper()
	schema.Walk(doc, func(n schema.Node, _ schema.Address) bool {
		if exec, ok := n.(schema.Executable); ok {
			status := exec.Execution().ExecutionStatus
			assert.NotEqual(t, schema.StatusPending, status, "node %s", n.NodeID())
			assert.NotEqual(t, schema.StatusRunning, status, "node %s", n.NodeID())
		}
		return true
	})
}

func TestRun_CalcDocument(t *testing.T) {
	ch := sink.NewChannel(256)
	exec := New(calcPool(t), WithSink(ch))
	doc := calcDoc()
	observer := schema.Clone(doc).(*schema.Article)

	result, err := exec.Run(context.Background(), doc, Options{})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 3, result.Stages)
	assert.Equal(t, 3, result.Executed)
	assert.Equal(t, 0, result.Skipped)
	assert.Empty(t, result.Failed)
	assert.Empty(t, result.Cancelled)
	assert.Empty(t, result.Cyclic)

	a := chunk(t, doc, "ch-a")
	b := chunk(t, doc, "ch-b")
	ex := expression(t, doc, "ex-1")
	assert.Equal(t, []any{float64(1)}, a.Outputs)
	assert.Equal(t, []any{float64(3)}, b.Outputs)
	assert.Equal(t, float64(4), ex.Output)

	for _, node := range []schema.Executable{a, b, ex} {
		state := node.Execution()
		assert.Equal(t, schema.StatusSucceeded, state.ExecutionStatus)
		assert.Equal(t, schema.RequiredNo, state.ExecutionRequired)
		assert.NotEmpty(t, state.CompileDigest)
		assert.Equal(t, state.CompileDigest, state.ExecuteDigest)
		assert.Equal(t, 1, state.ExecutionCount)
	}
	assertSettled(t, doc)

	// The patch stream reconstructs the run on an observer's replica.
	envelopes := drain(ch)
	require.NotEmpty(t, envelopes)
	assert.Equal(t, result.Patches, uint64(len(envelopes)))
	for i, env := range envelopes {
		assert.Equal(t, result.RunID, env.RunID)
		assert.Equal(t, uint64(i+1), env.Seq)
		require.NoError(t, patch.Apply(observer, env.Patch))
	}
	assert.Equal(t, doc, observer)
}

func TestRun_SecondRunSkipsEverything(t *testing.T) {
	ch := sink.NewChannel(256)
	exec := New(calcPool(t), WithSink(ch))
	doc := calcDoc()

	_, err := exec.Run(context.Background(), doc, Options{})
	require.NoError(t, err)
	drain(ch)

	result, err := exec.Run(context.Background(), doc, Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Executed)
	assert.Equal(t, 3, result.Skipped)
	assert.Equal(t, uint64(0), result.Patches)
	assert.Empty(t, drain(ch))
	assertSettled(t, doc)
}

func TestRun_FromRunsForwardClosureOnly(t *testing.T) {
	exec := New(calcPool(t))
	doc := calcDoc()
	doc.Content = append(doc.Content, &schema.CodeChunk{
		ID: "ch-c", Language: "calc", Code: "c = 10",
	})

	_, err := exec.Run(context.Background(), doc, Options{})
	require.NoError(t, err)

	before := chunk(t, doc, "ch-c").ExecutionCount

	// Forcing ch-a re-runs it and its dependents, nothing else.
	result, err := exec.Run(context.Background(), doc, Options{From: []string{"ch-a"}})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Executed)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 2, chunk(t, doc, "ch-a").ExecutionCount)
	assert.Equal(t, 2, chunk(t, doc, "ch-b").ExecutionCount)
	assert.Equal(t, before, chunk(t, doc, "ch-c").ExecutionCount)
	assertSettled(t, doc)
}

func TestRun_FailureTaintsDownstream(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	defer st.Close()

	exec := New(calcPool(t), WithStore(st))
	doc := &schema.Article{
		ID: "doc-f",
		Content: []schema.Block{
			&schema.CodeChunk{ID: "ch-a", Language: "calc", Code: "a = 1"},
			&schema.CodeChunk{ID: "ch-b", Language: "calc", Code: "b = a + 1"},
		},
	}

	_, err = exec.Run(ctx, doc, Options{DocID: "doc-f"})
	require.NoError(t, err)
	require.Equal(t, []any{float64(2)}, chunk(t, doc, "ch-b").Outputs)

	// Break the upstream chunk. Its dependent still runs, against the
	// stale scope, but must come out marked for re-execution.
	chunk(t, doc, "ch-a").Code = "a = oops + 1"
	result, err := exec.Run(ctx, doc, Options{DocID: "doc-f"})
	require.NoError(t, err)

	assert.Equal(t, []string{"ch-a"}, result.Failed)

	a := chunk(t, doc, "ch-a")
	assert.Equal(t, schema.StatusFailed, a.ExecutionStatus)
	assert.Equal(t, schema.RequiredFailed, a.ExecutionRequired)
	assert.True(t, a.ExecuteFailed)
	assert.Empty(t, a.ExecuteDigest)
	require.NotEmpty(t, a.Messages)
	assert.Equal(t, schema.MessageLevelError, a.Messages[0].Level)

	b := chunk(t, doc, "ch-b")
	assert.Equal(t, schema.StatusSucceeded, b.ExecutionStatus)
	assert.Equal(t, schema.RequiredDependenciesFailed, b.ExecutionRequired)
	assert.Empty(t, b.ExecuteDigest)

	// Cleared digests must not survive in the store either.
	_, err = st.Get(ctx, "doc-f", "ch-a")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.Get(ctx, "doc-f", "ch-b")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Fixing the upstream chunk re-runs the whole chain.
	chunk(t, doc, "ch-a").Code = "a = 1"
	result, err = exec.Run(ctx, doc, Options{DocID: "doc-f"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Executed)
	assert.Empty(t, result.Failed)
	assert.Equal(t, schema.RequiredNo, chunk(t, doc, "ch-b").ExecutionRequired)
	assertSettled(t, doc)
}

func TestRun_StoreHydrationSkipsAcrossSessions(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	defer st.Close()

	doc := &schema.Article{
		ID:      "doc-h",
		Content: []schema.Block{&schema.CodeChunk{ID: "ch-a", Language: "calc", Code: "a = 1"}},
	}
	first := New(calcPool(t), WithStore(st))
	_, err = first.Run(ctx, doc, Options{})
	require.NoError(t, err)

	// A stripped copy of the document, a fresh pool and a fresh
	// executor: only the store knows the chunk already ran.
	stripped := &schema.Article{
		ID:      "doc-h",
		Content: []schema.Block{&schema.CodeChunk{ID: "ch-a", Language: "calc", Code: "a = 1"}},
	}
	second := New(calcPool(t), WithStore(st))
	result, err := second.Run(ctx, stripped, Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Executed)
	assert.Equal(t, 1, result.Skipped)
	a := chunk(t, stripped, "ch-a")
	assert.Equal(t, schema.RequiredNo, a.ExecutionRequired)
	assert.Equal(t, a.CompileDigest, a.ExecuteDigest)
}

func TestRun_CycleIsReportedNotExecuted(t *testing.T) {
	exec := New(calcPool(t))
	doc := &schema.Article{
		ID: "doc-c",
		Content: []schema.Block{
			&schema.CodeChunk{ID: "ch-a", Language: "calc", Code: "a = b + 1"},
			&schema.CodeChunk{ID: "ch-b", Language: "calc", Code: "b = a + 1"},
			&schema.CodeChunk{ID: "ch-c", Language: "calc", Code: "c = 1"},
		},
	}

	result, err := exec.Run(context.Background(), doc, Options{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"ch-a", "ch-b"}, result.Cyclic)
	assert.Equal(t, 1, result.Executed)
	assert.Equal(t, []any{float64(1)}, chunk(t, doc, "ch-c").Outputs)

	a := chunk(t, doc, "ch-a")
	assert.Equal(t, schema.StatusFailed, a.ExecutionStatus)
	require.NotEmpty(t, a.Messages)
	assert.Contains(t, a.Messages[0].Message, "dependency cycle")
	assert.Equal(t, 0, a.ExecutionCount)
	assertSettled(t, doc)
}

func TestRun_EmptyChunkSettlesWithoutKernel(t *testing.T) {
	exec := New(calcPool(t))
	doc := &schema.Article{
		ID:      "doc-e",
		Content: []schema.Block{&schema.CodeChunk{ID: "ch-a", Language: "calc", Code: "   "}},
	}

	result, err := exec.Run(context.Background(), doc, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Executed)
	a := chunk(t, doc, "ch-a")
	assert.Equal(t, schema.StatusEmpty, a.ExecutionStatus)
	assert.Equal(t, schema.RequiredNo, a.ExecutionRequired)
	assert.Equal(t, a.CompileDigest, a.ExecuteDigest)
}

func TestRun_ParameterFeedsKernelScope(t *testing.T) {
	exec := New(calcPool(t))
	doc := &schema.Article{
		ID: "doc-p",
		Content: []schema.Block{
			&schema.Parameter{ID: "par-1", Name: "rate", Value: float64(2)},
			&schema.CodeChunk{ID: "ch-a", Language: "calc", Code: "y = rate * 3"},
		},
	}

	result, err := exec.Run(context.Background(), doc, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Executed)
	assert.Equal(t, []any{float64(6)}, chunk(t, doc, "ch-a").Outputs)

	ptr, err := schema.Find(doc, "par-1")
	require.NoError(t, err)
	param := ptr.Node().(*schema.Parameter)
	assert.Equal(t, schema.StatusSucceeded, param.ExecutionStatus)
}

func TestRun_UnsupportedLanguageFailsTheStep(t *testing.T) {
	exec := New(calcPool(t))
	doc := &schema.Article{
		ID: "doc-u",
		Content: []schema.Block{
			&schema.CodeChunk{ID: "ch-a", Language: "fortran", Code: "X = 1"},
		},
	}

	result, err := exec.Run(context.Background(), doc, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"ch-a"}, result.Failed)
	a := chunk(t, doc, "ch-a")
	assert.Equal(t, schema.StatusFailed, a.ExecutionStatus)
	require.NotEmpty(t, a.Messages)
	assert.Contains(t, a.Messages[len(a.Messages)-1].Message, "unsupported language")
}

// brokenForkKernel advertises fork support but refuses every fork,
// standing in for a kernel whose fork syscall fails at run time.
type brokenForkKernel struct{}

func (k *brokenForkKernel) Name() string              { return "mock" }
func (k *brokenForkKernel) Supports(lang string) bool { return lang == "mock" }
func (k *brokenForkKernel) ForkSupported() bool       { return true }
func (k *brokenForkKernel) Set(context.Context, string, any) error { return nil }
func (k *brokenForkKernel) Terminate(context.Context) error        { return nil }

func (k *brokenForkKernel) Fork(context.Context) (kernel.Kernel, error) {
	return nil, errors.New("scope snapshot refused")
}

func (k *brokenForkKernel) Execute(context.Context, string) (*kernel.Result, error) {
	return &kernel.Result{Outputs: []any{"ok"}}, nil
}

func TestRun_ForkFailureFailsOnlyItsStep(t *testing.T) {
	ctx := context.Background()
	pool, err := kernel.NewPool(ctx, func(context.Context) (kernel.Kernel, error) {
		return &brokenForkKernel{}, nil
	})
	require.NoError(t, err)

	compiler := compile.New()
	compiler.Register("mock", func(context.Context, string) ([]graph.Relation, error) {
		return nil, nil
	})

	exec := New(pool, WithCompiler(compiler))
	doc := &schema.Article{
		ID: "doc-bf",
		Content: []schema.Block{
			&schema.CodeChunk{ID: "ch-1", Language: "mock", Code: "first"},
			&schema.Paragraph{ID: "pa-1", Content: []schema.Inline{
				&schema.CodeExpression{ID: "ex-1", Language: "mock", Code: "second"},
			}},
		},
	}

	result, err := exec.Run(ctx, doc, Options{})
	require.NoError(t, err)

	// The chunk ran on the shared kernel; only the expression, which
	// needed the fork, failed.
	assert.Equal(t, 2, result.Executed)
	assert.Equal(t, []string{"ex-1"}, result.Failed)
	assert.Equal(t, []any{"ok"}, chunk(t, doc, "ch-1").Outputs)

	ex := expression(t, doc, "ex-1")
	assert.Equal(t, schema.StatusFailed, ex.ExecutionStatus)
	require.NotEmpty(t, ex.Messages)
	assert.Contains(t, ex.Messages[len(ex.Messages)-1].Message, "fork kernel")
	assertSettled(t, doc)
}

func TestApplyResults_BadPatchFailsOnlyItsStep(t *testing.T) {
	ctx := context.Background()
	doc := &schema.Article{
		ID: "doc-ap",
		Content: []schema.Block{
			&schema.CodeChunk{ID: "ch-a", Language: "calc", Code: "a = 1"},
			&schema.CodeChunk{ID: "ch-b", Language: "calc", Code: "b = 2"},
		},
	}
	compiled, err := compile.New().Compile(ctx, doc)
	require.NoError(t, err)

	exec := New(calcPool(t))
	r := &run{
		id:        "run-ap",
		docID:     doc.ID,
		doc:       doc,
		addresses: compiled.Addresses,
		graph:     compiled.Graph,
		tainted:   map[string]bool{},
		result:    &RunResult{},
	}

	// Three step results: one whose node vanished from the tree, one
	// whose patch addresses a field the node does not have, and one
	// well-formed.
	ghost := plan.Step{Info: &graph.ResourceInfo{Resource: graph.Resource{ID: "ghost"}}}
	stepA := plan.Step{Info: mustInfo(t, compiled.Graph, "ch-a")}
	stepB := plan.Step{Info: mustInfo(t, compiled.Graph, "ch-b")}

	ghostPatch := &patch.Patch{NodeID: "ghost", Ops: []patch.Operation{{
		Kind:    patch.OpReplace,
		Address: schema.Address{schema.NameSlot("executionStatus")},
		Value:   patch.NewValue(string(schema.StatusSucceeded)),
	}}}
	badPatch := &patch.Patch{NodeID: "ch-a", Ops: []patch.Operation{{
		Kind:    patch.OpReplace,
		Address: schema.Address{schema.NameSlot("noSuchField")},
		Value:   patch.NewValue(1),
	}}}

	live := chunk(t, doc, "ch-b")
	post := schema.Clone(live).(*schema.CodeChunk)
	post.ExecutionStatus = schema.StatusSucceeded
	post.ExecuteDigest = post.CompileDigest
	ops, err := patch.Diff(live, post)
	require.NoError(t, err)
	goodPatch := &patch.Patch{NodeID: "ch-b", Ops: ops}

	err = exec.applyResults(ctx, r, []plan.Step{ghost, stepA, stepB},
		[]*patch.Patch{ghostPatch, badPatch, goodPatch})
	require.NoError(t, err)

	assert.Equal(t, []string{"ghost", "ch-a"}, r.result.Failed)

	a := chunk(t, doc, "ch-a")
	assert.Equal(t, schema.StatusFailed, a.ExecutionStatus)
	require.NotEmpty(t, a.Messages)
	assert.Contains(t, a.Messages[len(a.Messages)-1].Message, "apply patch")

	// The bad patches did not stop the last one from landing.
	assert.Equal(t, schema.StatusSucceeded, chunk(t, doc, "ch-b").ExecutionStatus)
}

func mustInfo(t *testing.T, g *graph.Graph, id string) *graph.ResourceInfo {
	t.Helper()
	info, err := g.Info(id)
	require.NoError(t, err)
	return info
}

func TestRun_ParameterReinjectedInFreshSession(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	defer st.Close()

	content := func(code string) []schema.Block {
		return []schema.Block{
			&schema.Parameter{ID: "par-1", Name: "rate", Value: float64(2)},
			&schema.CodeChunk{ID: "ch-a", Language: "calc", Code: code},
		}
	}

	first := New(calcPool(t), WithStore(st))
	_, err = first.Run(ctx, &schema.Article{ID: "doc-pr", Content: content("y = rate * 3")}, Options{})
	require.NoError(t, err)

	// New session, new kernel scope. The unchanged chunk keeps its
	// cache hit, but the parameter runs again so its value is back in
	// scope.
	doc := &schema.Article{ID: "doc-pr", Content: content("y = rate * 3")}
	second := New(calcPool(t), WithStore(st))
	result, err := second.Run(ctx, doc, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Executed)
	assert.Equal(t, 1, result.Skipped)
	ptr, err := schema.Find(doc, "par-1")
	require.NoError(t, err)
	assert.Equal(t, schema.StatusSucceeded, ptr.Node().(*schema.Parameter).ExecutionStatus)

	// Editing the chunk in the same fresh session works because the
	// parameter was re-injected.
	chunk(t, doc, "ch-a").Code = "y = rate * 4"
	result, err = second.Run(ctx, doc, Options{})
	require.NoError(t, err)

	assert.Empty(t, result.Failed)
	assert.Equal(t, []any{float64(8)}, chunk(t, doc, "ch-a").Outputs)
}

func TestRun_HydratedChunkSkipLeavesScopeCold(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	defer st.Close()

	content := func(code string) []schema.Block {
		return []schema.Block{
			&schema.CodeChunk{ID: "ch-a", Language: "calc", Code: "a = 1"},
			&schema.CodeChunk{ID: "ch-b", Language: "calc", Code: code},
		}
	}

	first := New(calcPool(t), WithStore(st))
	_, err = first.Run(ctx, &schema.Article{ID: "doc-cold", Content: content("b = a + 1")}, Options{})
	require.NoError(t, err)

	// A fresh session edits only the downstream chunk. The upstream
	// chunk is a store-backed cache hit and is not re-executed, so the
	// fresh kernel scope never sees its assignment: the edited chunk
	// fails until the upstream is forced with Options.From or the
	// session that holds the scope is reused.
	doc := &schema.Article{ID: "doc-cold", Content: content("b = a + 2")}
	second := New(calcPool(t), WithStore(st))
	result, err := second.Run(ctx, doc, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, []string{"ch-b"}, result.Failed)
	assert.Equal(t, schema.StatusFailed, chunk(t, doc, "ch-b").ExecutionStatus)

	// Forcing the skipped upstream repopulates the scope and recovers.
	result, err = second.Run(ctx, doc, Options{From: []string{"ch-a"}})
	require.NoError(t, err)
	assert.Empty(t, result.Failed)
	assert.Equal(t, []any{float64(3)}, chunk(t, doc, "ch-b").Outputs)
}

func TestRun_ParameterSkipsReaderLanguagesWithoutKernel(t *testing.T) {
	exec := New(calcPool(t))
	doc := &schema.Article{
		ID: "doc-pl",
		Content: []schema.Block{
			&schema.Parameter{ID: "par-1", Name: "rate", Value: float64(2)},
			&schema.CodeChunk{ID: "ch-a", Language: "calc", Code: "y = rate * 3"},
			&schema.CodeChunk{ID: "ch-f", Language: "fortran", Code: "# @uses rate\nZ = rate"},
		},
	}

	result, err := exec.Run(context.Background(), doc, Options{})
	require.NoError(t, err)

	// Only the chunk in the unsupported language fails; the parameter
	// injects into the languages that have a kernel and its calc
	// reader runs.
	assert.Equal(t, []string{"ch-f"}, result.Failed)
	assert.Equal(t, []any{float64(6)}, chunk(t, doc, "ch-a").Outputs)

	ptr, err := schema.Find(doc, "par-1")
	require.NoError(t, err)
	assert.Equal(t, schema.StatusSucceeded, ptr.Node().(*schema.Parameter).ExecutionStatus)
	assertSettled(t, doc)
}

// cancellingKernel cancels the run's context when it sees the marker,
// standing in for a user interrupting mid-run.
type cancellingKernel struct {
	cancel context.CancelFunc
}

func (k *cancellingKernel) Name() string                { return "mock" }
func (k *cancellingKernel) Supports(lang string) bool   { return lang == "mock" }
func (k *cancellingKernel) ForkSupported() bool         { return false }
func (k *cancellingKernel) Set(context.Context, string, any) error { return nil }
func (k *cancellingKernel) Terminate(context.Context) error        { return nil }

func (k *cancellingKernel) Fork(context.Context) (kernel.Kernel, error) {
	return nil, kernel.ErrForkUnsupported
}

func (k *cancellingKernel) Execute(ctx context.Context, code string) (*kernel.Result, error) {
	if strings.Contains(code, "INTERRUPT") {
		k.cancel()
		return nil, ctx.Err()
	}
	return &kernel.Result{Outputs: []any{"ok"}}, nil
}

func TestRun_CancellationStopsRemainingStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mock := &cancellingKernel{cancel: cancel}
	pool, err := kernel.NewPool(ctx, func(context.Context) (kernel.Kernel, error) {
		return mock, nil
	})
	require.NoError(t, err)

	compiler := compile.New()
	compiler.Register("mock", func(context.Context, string) ([]graph.Relation, error) {
		return nil, nil
	})

	exec := New(pool, WithCompiler(compiler))
	doc := &schema.Article{
		ID: "doc-x",
		Content: []schema.Block{
			&schema.CodeChunk{ID: "ch-1", Language: "mock", Code: "# @assigns a\nfirst"},
			&schema.CodeChunk{ID: "ch-2", Language: "mock", Code: "# @uses a\n# @assigns b\nINTERRUPT"},
			&schema.CodeChunk{ID: "ch-3", Language: "mock", Code: "# @uses b\nlast"},
		},
	}

	result, err := exec.Run(ctx, doc, Options{})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)

	assert.Equal(t, 1, result.Executed)
	assert.Equal(t, []string{"ch-2", "ch-3"}, result.Cancelled)
	assert.Equal(t, schema.StatusSucceeded, chunk(t, doc, "ch-1").ExecutionStatus)

	for _, id := range []string{"ch-2", "ch-3"} {
		state := chunk(t, doc, id).ExecutionState
		assert.Equal(t, schema.StatusCancelled, state.ExecutionStatus, "node %s", id)
		assert.Equal(t, schema.RequiredCancelled, state.ExecutionRequired, "node %s", id)
	}
	assertSettled(t, doc)
}
