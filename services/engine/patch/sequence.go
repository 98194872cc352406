// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patch

import (
	"reflect"

	"github.com/AleutianAI/williwaw/services/engine/schema"
)

// Sequence diffing uses an LCS alignment and converts the edit script
// into operations addressed against the evolving target sequence, so
// applying the operations in order reproduces b exactly.
//
// A single removed item aligned with a single added item of the same
// variant recurses into a child diff instead of a remove/add pair; that
// keeps the common "one node edited in place" case minimal.

type editKind int

const (
	editKeep editKind = iota
	editRemove
	editAdd
)

type editStep struct {
	kind editKind
	aIdx int
	bIdx int
}

func diffBlocks(base schema.Address, a, b []schema.Block) ([]Operation, error) {
	an := make([]schema.Node, len(a))
	for i, v := range a {
		an[i] = v
	}
	bn := make([]schema.Node, len(b))
	for i, v := range b {
		bn[i] = v
	}
	return diffSequence(base, an, bn)
}

func diffInlines(base schema.Address, a, b []schema.Inline) ([]Operation, error) {
	an := make([]schema.Node, len(a))
	for i, v := range a {
		an[i] = v
	}
	bn := make([]schema.Node, len(b))
	for i, v := range b {
		bn[i] = v
	}
	return diffSequence(base, an, bn)
}

func diffSequence(base schema.Address, a, b []schema.Node) ([]Operation, error) {
	script := editScript(a, b)

	var ops []Operation
	pos := 0
	for i := 0; i < len(script); {
		step := script[i]
		switch step.kind {
		case editKeep:
			pos++
			i++

		case editRemove:
			// A lone remove aligned with a lone add of the same variant
			// becomes a recursive child diff.
			if i+1 < len(script) && script[i+1].kind == editAdd &&
				singleEdit(script, i) &&
				a[step.aIdx].NodeType() == b[script[i+1].bIdx].NodeType() {
				child, err := diffNode(a[step.aIdx], b[script[i+1].bIdx],
					base.Concat(schema.IndexSlot(pos)))
				if err != nil {
					return nil, err
				}
				ops = append(ops, child...)
				pos++
				i += 2
				continue
			}

			run := 1
			for i+run < len(script) && script[i+run].kind == editRemove {
				run++
			}
			ops = append(ops, Operation{
				Kind:    OpRemove,
				Address: base.Concat(schema.IndexSlot(pos)),
				Items:   run,
			})
			i += run

		case editAdd:
			run := 1
			for i+run < len(script) && script[i+run].kind == editAdd {
				run++
			}
			items := make([]any, run)
			for k := 0; k < run; k++ {
				items[k] = b[script[i+k].bIdx]
			}
			ops = append(ops, Operation{
				Kind:    OpAdd,
				Address: base.Concat(schema.IndexSlot(pos)),
				Items:   run,
				Value:   NewValue(items),
			})
			pos += run
			i += run
		}
	}
	return ops, nil
}

// singleEdit reports whether the edit at i is an isolated remove
// followed by an isolated add (no adjacent edits of the same kind).
func singleEdit(script []editStep, i int) bool {
	if i+1 >= len(script) || script[i].kind != editRemove || script[i+1].kind != editAdd {
		return false
	}
	if i > 0 && script[i-1].kind == editRemove {
		return false
	}
	if i+2 < len(script) && script[i+2].kind == editAdd {
		return false
	}
	return true
}

// editScript aligns a and b by longest common subsequence and returns
// the front-to-back edit steps.
func editScript(a, b []schema.Node) []editStep {
	n, m := len(a), len(b)

	// lcs[i][j] = length of LCS of a[i:] and b[j:].
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if nodesEqual(a[i], b[j]) {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var script []editStep
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case nodesEqual(a[i], b[j]):
			script = append(script, editStep{kind: editKeep, aIdx: i, bIdx: j})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			script = append(script, editStep{kind: editRemove, aIdx: i})
			i++
		default:
			script = append(script, editStep{kind: editAdd, bIdx: j})
			j++
		}
	}
	for ; i < n; i++ {
		script = append(script, editStep{kind: editRemove, aIdx: i})
	}
	for ; j < m; j++ {
		script = append(script, editStep{kind: editAdd, bIdx: j})
	}
	return script
}

func nodesEqual(a, b schema.Node) bool {
	return reflect.DeepEqual(a, b)
}
