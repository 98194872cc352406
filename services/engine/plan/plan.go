// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package plan stages a dependency graph for execution.
//
// Staging is Kahn's algorithm: stage N holds every resource whose
// dependencies all sit in stages earlier than N. Resources within a
// stage are independent and may run concurrently; stages run strictly
// in order. Ties inside a stage keep document order, so the same graph
// always produces the same plan.
//
// Resources trapped on a cycle can never reach in-degree zero; they are
// surfaced on the plan rather than silently dropped, so callers can
// report them as diagnostics.
package plan

import (
	"fmt"

	"github.com/AleutianAI/williwaw/services/engine/graph"
	"github.com/AleutianAI/williwaw/services/engine/schema"
)

// Selector assigns kernels to resources by language. Implemented by
// kernel.Pool; planning consults it so the plan is the complete
// schedule, including which kernel serves each step.
type Selector interface {
	// SelectKernel returns the name of the kernel that serves the
	// language and whether that kernel can fork its scope.
	SelectKernel(language string) (name string, canFork bool, err error)
}

// Step schedules one resource within a stage.
type Step struct {
	// Info is the resource's compile-time description.
	Info *graph.ResourceInfo

	// Kernel names the kernel selected for the step's language. Empty
	// when no kernel supports it; the executor records such steps as
	// unsupported-language failures.
	Kernel string

	// IsFork evaluates the step in a fork of the kernel's scope. Set
	// for pure resources whose selected kernel supports forking.
	IsFork bool

	// Skip marks the step as a cache hit: its digest is unchanged,
	// its last run succeeded, and nothing upstream of it will run.
	// Skipped steps are not sent to a kernel.
	Skip bool
}

// Stage is a set of mutually independent steps.
type Stage struct {
	Steps []Step
}

// Plan is the staged execution order for one run.
type Plan struct {
	Stages []Stage

	// Cyclic lists resources that could not be staged because they sit
	// on a dependency cycle, in document order.
	Cyclic []string
}

// StepCount returns the total number of steps across all stages.
func (p *Plan) StepCount() int {
	n := 0
	for _, s := range p.Stages {
		n += len(s.Steps)
	}
	return n
}

// RunCount returns the number of steps that will actually execute.
func (p *Plan) RunCount() int {
	n := 0
	for _, s := range p.Stages {
		for _, step := range s.Steps {
			if !step.Skip {
				n++
			}
		}
	}
	return n
}

// Compute stages the whole graph. A nil selector leaves the steps'
// kernel fields empty.
func Compute(g *graph.Graph, sel Selector) (*Plan, error) {
	return compute(g, sel, g.IDs(), nil)
}

// ComputeFrom stages the roots plus everything transitively downstream
// of them. Roots always execute, even on a digest match: an explicit
// trigger is a demand, not a hint.
func ComputeFrom(g *graph.Graph, sel Selector, roots ...string) (*Plan, error) {
	ids, err := g.ForwardReachable(roots...)
	if err != nil {
		return nil, err
	}
	forced := make(map[string]bool, len(roots))
	for _, id := range roots {
		forced[id] = true
	}
	return compute(g, sel, ids, forced)
}

func compute(g *graph.Graph, sel Selector, ids []string, forced map[string]bool) (*Plan, error) {
	inSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		inSet[id] = true
	}

	// In-degree restricted to the execution set: dependencies outside
	// the set are not running this plan and impose no ordering.
	indeg := make(map[string]int, len(ids))
	for _, id := range ids {
		deps, err := g.Dependencies(id)
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			if inSet[d] {
				indeg[id]++
			}
		}
	}

	p := &Plan{}
	staged := make(map[string]bool, len(ids))
	willRun := make(map[string]bool, len(ids))
	remaining := len(ids)

	for remaining > 0 {
		var stage Stage
		var hits []bool
		for _, id := range ids {
			if !staged[id] && indeg[id] == 0 {
				info, err := g.Info(id)
				if err != nil {
					return nil, err
				}
				hit := skippable(g, info, forced[id], willRun, inSet)
				step := Step{Info: info, Skip: hit}
				if hit && info.Resource.NodeType == schema.TypeParameter {
					// Unchanged parameters still run: re-injecting the
					// value is cheap and a fresh kernel scope needs it.
					// Their dependents keep the cache hit.
					step.Skip = false
				}
				if sel != nil && info.Resource.Language != "" {
					if name, canFork, err := sel.SelectKernel(info.Resource.Language); err == nil {
						step.Kernel = name
						step.IsFork = info.Pure && canFork
					}
				}
				stage.Steps = append(stage.Steps, step)
				hits = append(hits, hit)
			}
		}
		if len(stage.Steps) == 0 {
			break // everything left is on a cycle
		}
		for i, step := range stage.Steps {
			id := step.Info.Resource.ID
			staged[id] = true
			remaining--
			if !hits[i] {
				willRun[id] = true
			}
			dependents, err := g.Dependents(id)
			if err != nil {
				return nil, err
			}
			for _, d := range dependents {
				if inSet[d] && !staged[d] {
					indeg[d]--
				}
			}
		}
		p.Stages = append(p.Stages, stage)
	}

	for _, id := range ids {
		if !staged[id] {
			p.Cyclic = append(p.Cyclic, id)
		}
	}
	return p, nil
}

// skippable reports whether the resource is an up-to-date cache hit.
// Stages are built in topological order, so every in-set dependency has
// already been classified by the time its readers are examined.
func skippable(g *graph.Graph, info *graph.ResourceInfo, forced bool, willRun map[string]bool, inSet map[string]bool) bool {
	if forced {
		return false
	}
	if info.CompileDigest == "" || info.CompileDigest != info.ExecuteDigest {
		return false
	}
	if info.ExecuteFailed {
		return false
	}
	deps, err := g.Dependencies(info.Resource.ID)
	if err != nil {
		return false
	}
	for _, d := range deps {
		if inSet[d] && willRun[d] {
			return false
		}
	}
	return true
}

// Validate returns an error when the plan contains cyclic resources,
// formatted for diagnostics.
func (p *Plan) Validate() error {
	if len(p.Cyclic) == 0 {
		return nil
	}
	return fmt.Errorf("dependency cycle involving %v", p.Cyclic)
}
