// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package execute runs compiled documents stage by stage.
//
// Within a stage, steps are independent and run concurrently: impure
// steps serialize per language kernel, pure expressions evaluate in
// kernel forks. Every step works on a private clone of its node and
// never touches the live tree; the clone is diffed against the live
// node when the stage completes, and the resulting patches are applied
// to the live tree serially, in step order, then forwarded to the
// sink. The live document therefore only ever changes between stages,
// and observers replaying the patch stream hold an exact replica.
//
// A step failure is data, not a fault: the error lands on the node as
// a message and the run continues. Downstream steps still execute with
// whatever values the scope holds, but they are marked as requiring
// re-execution once their failed dependency is fixed.
package execute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/williwaw/services/engine/compile"
	"github.com/AleutianAI/williwaw/services/engine/graph"
	"github.com/AleutianAI/williwaw/services/engine/kernel"
	"github.com/AleutianAI/williwaw/services/engine/patch"
	"github.com/AleutianAI/williwaw/services/engine/plan"
	"github.com/AleutianAI/williwaw/services/engine/schema"
	"github.com/AleutianAI/williwaw/services/engine/sink"
	"github.com/AleutianAI/williwaw/services/engine/store"
)

// ErrNodeMissing indicates a planned resource has no node in the tree,
// which means the document was mutated behind the executor's back.
var ErrNodeMissing = errors.New("execute: planned node missing from document")

// Option configures an Executor.
type Option func(*Executor)

// WithSink directs patch envelopes to s. Default is sink.Nop.
func WithSink(s sink.Sink) Option {
	return func(e *Executor) { e.sink = s }
}

// WithStore persists execute digests across sessions.
func WithStore(s store.DigestStore) Option {
	return func(e *Executor) { e.store = s }
}

// WithCompiler replaces the default compiler.
func WithCompiler(c *compile.Compiler) Option {
	return func(e *Executor) { e.compiler = c }
}

// Executor runs documents against a kernel pool. Safe for sequential
// reuse; a single Executor must not run two documents concurrently when
// they share kernel languages.
type Executor struct {
	compiler *compile.Compiler
	pool     *kernel.Pool
	sink     sink.Sink
	store    store.DigestStore
}

// New returns an executor over the pool.
func New(pool *kernel.Pool, opts ...Option) *Executor {
	e := &Executor{
		compiler: compile.New(),
		pool:     pool,
		sink:     sink.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Options controls a single run.
type Options struct {
	// From triggers the run from specific node ids; the run covers them
	// plus everything transitively downstream. Empty means the whole
	// document.
	From []string

	// DocID scopes digest-store keys. Defaults to the article's id.
	DocID string
}

// RunResult summarizes one run.
type RunResult struct {
	RunID     string
	Stages    int
	Executed  int
	Skipped   int
	Failed    []string
	Cancelled []string
	Cyclic    []string
	Patches   uint64
	Duration  time.Duration
}

// run carries the per-run state shared by the stage loop.
type run struct {
	id        string
	docID     string
	doc       *schema.Article
	addresses schema.AddressMap
	graph     *graph.Graph
	seq       uint64
	tainted   map[string]bool // failed, or downstream of a failure
	result    *RunResult
}

// Run compiles, plans and executes the document in place.
//
// The returned error reports engine faults only; cell failures are
// recorded on their nodes and listed in RunResult.Failed. A cancelled
// context ends the run between stages, marks the remaining steps
// cancelled and returns the context's error alongside the partial
// result.
func (e *Executor) Run(ctx context.Context, doc *schema.Article, opts Options) (*RunResult, error) {
	if err := initMetrics(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "execute.run")
	defer span.End()
	start := time.Now()

	// Snapshot before compiling so the digest and diagnostic updates
	// compilation writes into the tree reach observers as a patch.
	preCompile := schema.Clone(doc)

	compiled, err := e.compiler.Compile(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	r := &run{
		id:        uuid.New().String(),
		docID:     opts.DocID,
		doc:       doc,
		addresses: compiled.Addresses,
		graph:     compiled.Graph,
		tainted:   map[string]bool{},
		result:    &RunResult{},
	}
	if r.docID == "" {
		r.docID = doc.ID
	}
	r.result.RunID = r.id

	if err := e.hydrateDigests(ctx, r); err != nil {
		return nil, err
	}
	if err := e.emitCompilePatch(ctx, r, preCompile); err != nil {
		return nil, err
	}

	var p *plan.Plan
	if len(opts.From) > 0 {
		p, err = plan.ComputeFrom(r.graph, e.pool, opts.From...)
	} else {
		p, err = plan.Compute(r.graph, e.pool)
	}
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	r.result.Stages = len(p.Stages)
	r.result.Cyclic = p.Cyclic

	if err := e.markCyclic(ctx, r, p.Cyclic); err != nil {
		return nil, err
	}
	if err := e.markScheduled(ctx, r, p); err != nil {
		return nil, err
	}

	slog.Info("run starting",
		"runId", r.id,
		"docId", r.docID,
		"stages", len(p.Stages),
		"steps", p.StepCount(),
		"cached", p.StepCount()-p.RunCount())

	runErr := e.runStages(ctx, r, p)

	r.result.Duration = time.Since(start)
	recordRun(ctx, r.result)
	slog.Info("run finished",
		"runId", r.id,
		"executed", r.result.Executed,
		"skipped", r.result.Skipped,
		"failed", len(r.result.Failed),
		"patches", r.result.Patches,
		"duration", r.result.Duration.String())
	return r.result, runErr
}

// hydrateDigests fills execute digests absent from the document from
// the persistent store, so a stripped document still skips cached work.
func (e *Executor) hydrateDigests(ctx context.Context, r *run) error {
	if e.store == nil {
		return nil
	}
	for _, info := range r.graph.Resources() {
		if info.ExecuteDigest != "" {
			continue
		}
		digest, err := e.store.Get(ctx, r.docID, info.Resource.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("hydrate digests: %w", err)
		}
		info.ExecuteDigest = digest

		exec, err := r.executable(info.Resource.ID)
		if err != nil {
			return err
		}
		state := exec.Execution()
		state.ExecuteDigest = digest
		if !state.ExecuteFailed {
			if state.CompileDigest == digest {
				state.ExecutionRequired = schema.RequiredNo
			} else {
				state.ExecutionRequired = schema.RequiredSemanticsChanged
			}
		}
	}
	return nil
}

// emitCompilePatch publishes the document changes compilation made,
// such as refreshed compile digests and diagnostic messages, so
// observers see them before any execution patches arrive.
func (e *Executor) emitCompilePatch(ctx context.Context, r *run, pre schema.Node) error {
	ops, err := patch.Diff(pre, r.doc)
	if err != nil {
		return fmt.Errorf("diff compiled document: %w", err)
	}
	p := &patch.Patch{NodeID: r.doc.ID, Ops: ops}
	if !p.IsEmpty() {
		e.emit(ctx, r, p)
	}
	return nil
}

// markCyclic records a diagnostic on every resource trapped in a
// dependency cycle. Cyclic resources never execute.
func (e *Executor) markCyclic(ctx context.Context, r *run, cyclic []string) error {
	for _, id := range cyclic {
		err := e.mutateLive(ctx, r, id, func(state *schema.ExecutionState) {
			state.ExecutionStatus = schema.StatusFailed
			state.ExecutionRequired = schema.RequiredSemanticsChanged
			state.Messages = append(state.Messages, schema.ExecutionMessage{
				Level:   schema.MessageLevelError,
				Message: fmt.Sprintf("dependency cycle involving %s", strings.Join(cyclic, ", ")),
				Source:  "plan",
			})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// markScheduled flags every step that will run as pending, with the
// reason it is being re-executed.
func (e *Executor) markScheduled(ctx context.Context, r *run, p *plan.Plan) error {
	for _, stage := range p.Stages {
		for _, step := range stage.Steps {
			if step.Skip {
				r.result.Skipped++
				continue
			}
			info := step.Info
			err := e.mutateLive(ctx, r, info.Resource.ID, func(state *schema.ExecutionState) {
				state.ExecutionStatus = schema.StatusPending
				if state.ExecutionRequired == schema.RequiredNo &&
					info.Resource.NodeType != schema.TypeParameter {
					// Own digest matches; this step runs because an
					// upstream resource does. Parameters with a digest
					// match run anyway, to re-inject their value.
					state.ExecutionRequired = schema.RequiredDependenciesChanged
				}
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// runStages executes the plan stage by stage.
func (e *Executor) runStages(ctx context.Context, r *run, p *plan.Plan) error {
	for i, stage := range p.Stages {
		if ctx.Err() != nil {
			if err := e.cancelRemaining(r, p.Stages[i:]); err != nil {
				return err
			}
			return ctx.Err()
		}

		sctx, span := tracer.Start(ctx, "execute.stage")
		err := e.runStage(sctx, r, stage)
		span.End()
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) runStage(ctx context.Context, r *run, stage plan.Stage) error {
	// Parameters first, serially: they write directly into kernel
	// scopes, which must not happen while cell code is executing.
	var active []plan.Step
	for _, step := range stage.Steps {
		if step.Skip {
			continue
		}
		if step.Info.Resource.NodeType == schema.TypeParameter {
			if err := e.runParameter(ctx, r, step); err != nil {
				return err
			}
			continue
		}
		active = append(active, step)
	}

	results := make([]*patch.Patch, len(active))
	g, gctx := errgroup.WithContext(ctx)

	// Fork steps run concurrently in kernel forks; everything else
	// serializes per language on the shared kernel. Forks are taken
	// before any code runs so the parent scope is quiescent.
	byLanguage := map[string][]int{}
	for i, step := range active {
		if step.IsFork {
			forked, forkErr := e.forkKernel(ctx, step.Info.Resource.Language)
			i := i
			step := step
			g.Go(func() error {
				p, err := e.runStep(gctx, r, step, forked, forkErr)
				results[i] = p
				return err
			})
			continue
		}
		lang := step.Info.Resource.Language
		byLanguage[lang] = append(byLanguage[lang], i)
	}
	for lang, idxs := range byLanguage {
		lang := lang
		idxs := idxs
		g.Go(func() error {
			k, kerr := e.pool.Get(gctx, lang)
			for _, i := range idxs {
				p, err := e.runStep(gctx, r, active[i], k, kerr)
				if err != nil {
					return err
				}
				results[i] = p
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return e.applyResults(ctx, r, active, results)
}

// applyResults applies the stage's patches to the live tree serially,
// in step order, which keeps the tree and the patch stream
// deterministic regardless of goroutine scheduling. An application
// error is fatal to that step only: the node is marked failed and the
// remaining patches still apply.
func (e *Executor) applyResults(ctx context.Context, r *run, active []plan.Step, results []*patch.Patch) error {
	for i, p := range results {
		id := active[i].Info.Resource.ID
		if !p.IsEmpty() {
			if err := patch.Apply(r.doc, p); err != nil {
				e.failApply(ctx, r, id, err)
			} else {
				e.emit(ctx, r, p)
			}
		}
		if err := e.settleStep(ctx, r, id); err != nil {
			return err
		}
	}
	return nil
}

// failApply records a patch-application failure on the step's node.
// When even that node is unreachable the failure is kept on the run
// result alone; settleStep picks up the rest.
func (e *Executor) failApply(ctx context.Context, r *run, id string, cause error) {
	err := e.mutateLive(ctx, r, id, func(state *schema.ExecutionState) {
		state.ExecutionStatus = schema.StatusFailed
		state.ExecutionRequired = schema.RequiredFailed
		state.ExecuteFailed = true
		state.ExecuteDigest = ""
		state.Messages = append(state.Messages, schema.ExecutionMessage{
			Level:   schema.MessageLevelError,
			Message: fmt.Sprintf("apply patch: %v", cause),
			Source:  "execute",
		})
	})
	if err != nil {
		slog.Warn("patch discarded, node unreachable", "node", id, "error", cause.Error())
	}
}

// settleStep does the serial bookkeeping for a finished step: outcome
// counters, failure taint and digest persistence.
func (e *Executor) settleStep(ctx context.Context, r *run, id string) error {
	exec, err := r.executable(id)
	if err != nil {
		// The node vanished mid-run. Count the failure and drop its
		// cache entry; the rest of the plan continues.
		r.result.Failed = append(r.result.Failed, id)
		r.taint(id)
		if e.store != nil {
			return e.store.Delete(ctx, r.docID, id)
		}
		return nil
	}
	state := exec.Execution()

	switch state.ExecutionStatus {
	case schema.StatusSucceeded, schema.StatusEmpty:
		r.result.Executed++
	case schema.StatusFailed:
		r.result.Executed++
		r.result.Failed = append(r.result.Failed, id)
		r.taint(id)
	case schema.StatusCancelled:
		r.result.Cancelled = append(r.result.Cancelled, id)
	}

	if e.store == nil {
		return nil
	}
	if state.ExecuteDigest == "" {
		return e.store.Delete(ctx, r.docID, id)
	}
	return e.store.Put(ctx, r.docID, id, state.ExecuteDigest)
}

// runStep executes one cell against its kernel and returns the patch
// from the live node to the step's private post-state clone. A kernel
// acquisition error (kerr) is recorded as that step's failure, exactly
// like a failure from the code itself.
func (e *Executor) runStep(ctx context.Context, r *run, step plan.Step, k kernel.Kernel, kerr error) (*patch.Patch, error) {
	id := step.Info.Resource.ID
	live, err := r.executable(id)
	if err != nil {
		return nil, err
	}
	post := schema.Clone(live).(schema.Executable)
	state := post.Execution()

	code := strings.TrimSpace(post.Source())
	started := time.Now()

	switch {
	case code == "":
		state.ExecutionStatus = schema.StatusEmpty
		state.ExecutionRequired = schema.RequiredNo
		state.ExecuteDigest = state.CompileDigest
		state.ExecuteFailed = false

	case kerr != nil:
		finishStep(state, started, nil, kerr, "execute")

	case k == nil:
		finishStep(state, started, nil, fmt.Errorf("%w: %q", kernel.ErrUnsupportedLanguage, step.Info.Resource.Language), "execute")

	default:
		res, execErr := k.Execute(ctx, post.Source())
		if execErr != nil && ctx.Err() != nil {
			state.ExecutionStatus = schema.StatusCancelled
			state.ExecutionRequired = schema.RequiredCancelled
		} else {
			finishStep(state, started, res, execErr, k.Name())
			if execErr == nil {
				applyOutputs(post, res)
			}
		}
	}

	if state.ExecutionStatus != schema.StatusCancelled && r.isTainted(id) {
		// An upstream failure means this result came from stale
		// inputs; force re-execution on the next attempt.
		state.ExecutionRequired = schema.RequiredDependenciesFailed
		state.ExecuteDigest = ""
	}

	ops, err := patch.Diff(live, post)
	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", id, err)
	}
	return &patch.Patch{NodeID: id, Ops: ops}, nil
}

// finishStep fills terminal execution state for a step that reached
// its kernel. Called from stage goroutines, so it only touches the
// step's private state.
func finishStep(state *schema.ExecutionState, started time.Time, res *kernel.Result, execErr error, source string) {
	state.ExecutionCount++
	state.ExecutionDurationMilli = time.Since(started).Milliseconds()
	state.ExecutionEndedMilli = time.Now().UnixMilli()

	if execErr != nil {
		state.ExecutionStatus = schema.StatusFailed
		state.ExecutionRequired = schema.RequiredFailed
		state.ExecuteFailed = true
		state.ExecuteDigest = ""
		state.Messages = append(state.Messages, schema.ExecutionMessage{
			Level:   schema.MessageLevelError,
			Message: execErr.Error(),
			Source:  source,
		})
		return
	}

	state.ExecutionStatus = schema.StatusSucceeded
	state.ExecutionRequired = schema.RequiredNo
	state.ExecuteFailed = false
	state.ExecuteDigest = state.CompileDigest
	if res != nil {
		state.Messages = append(state.Messages, res.Messages...)
	}
}

// applyOutputs writes kernel outputs onto the node variant.
func applyOutputs(post schema.Executable, res *kernel.Result) {
	switch t := post.(type) {
	case *schema.CodeChunk:
		t.Outputs = nil
		if res != nil && len(res.Outputs) > 0 {
			t.Outputs = res.Outputs
		}
	case *schema.CodeExpression:
		t.Output = res.Value()
	}
}

// runParameter injects the parameter's value into the kernels of its
// readers' languages, serially, then patches the node's state. A
// language no kernel supports is left alone; the readers in that
// language fail on their own steps.
func (e *Executor) runParameter(ctx context.Context, r *run, step plan.Step) error {
	id := step.Info.Resource.ID
	live, err := r.executable(id)
	if err != nil {
		return err
	}
	param := live.(*schema.Parameter)
	post := schema.Clone(param).(*schema.Parameter)
	state := &post.ExecutionState
	started := time.Now()

	var setErr error
	for _, lang := range r.readerLanguages(id) {
		k, err := e.pool.Get(ctx, lang)
		if errors.Is(err, kernel.ErrUnsupportedLanguage) {
			continue
		}
		if err != nil {
			setErr = err
			break
		}
		if err := k.Set(ctx, param.Name, param.Value); err != nil {
			setErr = err
			break
		}
	}
	finishStep(state, started, nil, setErr, "execute")

	ops, err := patch.Diff(param, post)
	if err != nil {
		return fmt.Errorf("diff %s: %w", id, err)
	}
	p := &patch.Patch{NodeID: id, Ops: ops}
	if !p.IsEmpty() {
		if err := patch.Apply(r.doc, p); err != nil {
			e.failApply(ctx, r, id, err)
		} else {
			e.emit(ctx, r, p)
		}
	}
	return e.settleStep(ctx, r, id)
}

// forkKernel takes a fork of the language's kernel for a fork step.
// The error is the step's to record, never the run's.
func (e *Executor) forkKernel(ctx context.Context, language string) (kernel.Kernel, error) {
	k, err := e.pool.Get(ctx, language)
	if err != nil {
		return nil, err
	}
	forked, err := k.Fork(ctx)
	if err != nil {
		return nil, fmt.Errorf("fork kernel: %w", err)
	}
	return forked, nil
}

// cancelRemaining marks every not-yet-run step in the given stages as
// cancelled.
func (e *Executor) cancelRemaining(r *run, stages []plan.Stage) error {
	for _, stage := range stages {
		for _, step := range stage.Steps {
			if step.Skip {
				continue
			}
			id := step.Info.Resource.ID
			r.result.Cancelled = append(r.result.Cancelled, id)
			err := e.mutateLive(context.Background(), r, id, func(state *schema.ExecutionState) {
				state.ExecutionStatus = schema.StatusCancelled
				state.ExecutionRequired = schema.RequiredCancelled
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// mutateLive mutates a live node's execution state and emits the
// corresponding patch. Only safe between stages, when nothing else
// reads the tree.
func (e *Executor) mutateLive(ctx context.Context, r *run, id string, fn func(*schema.ExecutionState)) error {
	exec, err := r.executable(id)
	if err != nil {
		return err
	}
	pre := schema.Clone(exec)
	fn(exec.Execution())

	ops, err := patch.Diff(pre, exec)
	if err != nil {
		return fmt.Errorf("diff %s: %w", id, err)
	}
	p := &patch.Patch{NodeID: id, Ops: ops}
	if !p.IsEmpty() {
		e.emit(ctx, r, p)
	}
	return nil
}

func (e *Executor) emit(ctx context.Context, r *run, p *patch.Patch) {
	r.seq++
	r.result.Patches++
	if err := e.sink.Send(ctx, sink.NewEnvelope(r.id, r.seq, p)); err != nil {
		slog.Warn("patch sink rejected envelope", "runId", r.id, "seq", r.seq, "error", err.Error())
	}
}

func (r *run) executable(id string) (schema.Executable, error) {
	ptr, err := r.addresses.ResolveID(r.doc, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeMissing, id)
	}
	exec, ok := ptr.Node().(schema.Executable)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not executable", ErrNodeMissing, id)
	}
	return exec, nil
}

// taint marks a resource and everything downstream of it as tainted.
func (r *run) taint(id string) {
	ids, err := r.graph.ForwardReachable(id)
	if err != nil {
		r.tainted[id] = true
		return
	}
	for _, t := range ids {
		r.tainted[t] = true
	}
}

func (r *run) isTainted(id string) bool {
	if !r.tainted[id] {
		return false
	}
	// The failing resource itself is marked via RequiredFailed; taint
	// semantics apply to its dependents.
	deps, err := r.graph.Dependencies(id)
	if err != nil {
		return false
	}
	for _, d := range deps {
		if r.tainted[d] {
			return true
		}
	}
	return false
}

// readerLanguages returns the distinct languages of the resources
// directly downstream of id, in graph order.
func (r *run) readerLanguages(id string) []string {
	deps, err := r.graph.Dependents(id)
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, d := range deps {
		info, err := r.graph.Info(d)
		if err != nil {
			continue
		}
		lang := info.Resource.Language
		if lang != "" && !seen[lang] {
			seen[lang] = true
			out = append(out, lang)
		}
	}
	return out
}
