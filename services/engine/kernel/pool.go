// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package kernel

import (
	"context"
	"fmt"
	"sync"
)

// Factory creates a fresh kernel instance.
type Factory func(ctx context.Context) (Kernel, error)

// Pool lazily creates and reuses one kernel per language for the
// lifetime of a document session, so consecutive runs share scope
// state.
//
// Pool methods are safe for concurrent use; the kernels they hand out
// are not, and the executor is responsible for serializing access to
// each one.
type Pool struct {
	mu        sync.Mutex
	factories []Factory
	probes    []Kernel // one instance per factory, used for Supports
	active    map[string]Kernel
}

// NewPool builds a pool over the given factories. Factories are probed
// in registration order, so earlier factories win language conflicts.
func NewPool(ctx context.Context, factories ...Factory) (*Pool, error) {
	p := &Pool{
		factories: factories,
		active:    make(map[string]Kernel),
	}
	for i, f := range factories {
		k, err := f(ctx)
		if err != nil {
			_ = p.Shutdown(ctx)
			return nil, fmt.Errorf("kernel factory %d: %w", i, err)
		}
		p.probes = append(p.probes, k)
	}
	return p, nil
}

// Get returns the kernel for a language, creating it on first use.
func (p *Pool) Get(ctx context.Context, language string) (Kernel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if k, ok := p.active[language]; ok {
		return k, nil
	}
	for i, probe := range p.probes {
		if !probe.Supports(language) {
			continue
		}
		// Reuse the probe instance for the first language it serves,
		// otherwise spin up a sibling from the same factory.
		k := probe
		if p.inUse(probe) {
			fresh, err := p.factories[i](ctx)
			if err != nil {
				return nil, err
			}
			k = fresh
		}
		p.active[language] = k
		return k, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
}

// SelectKernel reports which kernel would serve a language: its name
// and whether it can fork its scope. No kernel instance is created.
// Satisfies the planner's Selector contract.
func (p *Pool) SelectKernel(language string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if k, ok := p.active[language]; ok {
		return k.Name(), k.ForkSupported(), nil
	}
	for _, probe := range p.probes {
		if probe.Supports(language) {
			return probe.Name(), probe.ForkSupported(), nil
		}
	}
	return "", false, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
}

func (p *Pool) inUse(k Kernel) bool {
	for _, a := range p.active {
		if a == k {
			return true
		}
	}
	return false
}

// Languages returns the languages with an active kernel.
func (p *Pool) Languages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.active))
	for lang := range p.active {
		out = append(out, lang)
	}
	return out
}

// Shutdown terminates every kernel the pool created. The first error
// is returned; termination continues regardless.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var first error
	seen := map[Kernel]bool{}
	for _, k := range p.active {
		if !seen[k] {
			seen[k] = true
			if err := k.Terminate(ctx); err != nil && first == nil {
				first = err
			}
		}
	}
	for _, k := range p.probes {
		if !seen[k] {
			seen[k] = true
			if err := k.Terminate(ctx); err != nil && first == nil {
				first = err
			}
		}
	}
	p.active = make(map[string]Kernel)
	p.probes = nil
	return first
}
