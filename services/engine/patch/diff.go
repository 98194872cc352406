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
	"fmt"
	"reflect"

	"github.com/AleutianAI/williwaw/services/engine/schema"
)

// Diff computes the minimal operations transforming a into b.
//
// Both values must be the same node type; the executor only ever diffs
// a node's pre clone against its post clone. Identifiers are treated as
// identity and never diffed. Diff(a, a) returns zero operations.
func Diff(a, b schema.Node) ([]Operation, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: nil node", ErrTypeMismatch)
	}
	if a.NodeType() != b.NodeType() {
		return nil, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, a.NodeType(), b.NodeType())
	}
	return diffNode(a, b, nil)
}

func diffNode(a, b schema.Node, base schema.Address) ([]Operation, error) {
	switch at := a.(type) {
	case *schema.Article:
		bt := b.(*schema.Article)
		ops := replaceIf(nil, base, "title", at.Title, bt.Title)
		seq, err := diffBlocks(base.Concat(schema.NameSlot("content")), at.Content, bt.Content)
		if err != nil {
			return nil, err
		}
		return append(ops, seq...), nil

	case *schema.Section:
		bt := b.(*schema.Section)
		return diffBlocks(base.Concat(schema.NameSlot("content")), at.Content, bt.Content)

	case *schema.Heading:
		bt := b.(*schema.Heading)
		ops := replaceIf(nil, base, "level", at.Level, bt.Level)
		seq, err := diffInlines(base.Concat(schema.NameSlot("content")), at.Content, bt.Content)
		if err != nil {
			return nil, err
		}
		return append(ops, seq...), nil

	case *schema.Paragraph:
		bt := b.(*schema.Paragraph)
		return diffInlines(base.Concat(schema.NameSlot("content")), at.Content, bt.Content)

	case *schema.Text:
		bt := b.(*schema.Text)
		return replaceIf(nil, base, "value", at.Value, bt.Value), nil

	case *schema.CodeChunk:
		bt := b.(*schema.CodeChunk)
		ops := replaceIf(nil, base, "language", at.Language, bt.Language)
		ops = replaceIf(ops, base, "code", at.Code, bt.Code)
		ops = replaceIf(ops, base, "outputs", at.Outputs, bt.Outputs)
		return diffExecution(ops, base, &at.ExecutionState, &bt.ExecutionState), nil

	case *schema.CodeExpression:
		bt := b.(*schema.CodeExpression)
		ops := replaceIf(nil, base, "language", at.Language, bt.Language)
		ops = replaceIf(ops, base, "code", at.Code, bt.Code)
		ops = replaceIf(ops, base, "output", at.Output, bt.Output)
		return diffExecution(ops, base, &at.ExecutionState, &bt.ExecutionState), nil

	case *schema.Parameter:
		bt := b.(*schema.Parameter)
		ops := replaceIf(nil, base, "name", at.Name, bt.Name)
		ops = replaceIf(ops, base, "value", at.Value, bt.Value)
		return diffExecution(ops, base, &at.ExecutionState, &bt.ExecutionState), nil

	default:
		return nil, fmt.Errorf("diff: unhandled node type %T", a)
	}
}

// replaceIf appends a replace operation when the two field values
// differ. Comparison is deep so outputs and messages compare by
// content, not by reference.
func replaceIf(ops []Operation, base schema.Address, field string, av, bv any) []Operation {
	if reflect.DeepEqual(av, bv) {
		return ops
	}
	return append(ops, Operation{
		Kind:    OpReplace,
		Address: base.Concat(schema.NameSlot(field)),
		Value:   NewValue(bv),
	})
}

func diffExecution(ops []Operation, base schema.Address, a, b *schema.ExecutionState) []Operation {
	ops = replaceIf(ops, base, "executionStatus", a.ExecutionStatus, b.ExecutionStatus)
	ops = replaceIf(ops, base, "executionRequired", a.ExecutionRequired, b.ExecutionRequired)
	ops = replaceIf(ops, base, "executionCount", a.ExecutionCount, b.ExecutionCount)
	ops = replaceIf(ops, base, "executionDurationMilli", a.ExecutionDurationMilli, b.ExecutionDurationMilli)
	ops = replaceIf(ops, base, "executionEndedMilli", a.ExecutionEndedMilli, b.ExecutionEndedMilli)
	ops = replaceIf(ops, base, "compileDigest", a.CompileDigest, b.CompileDigest)
	ops = replaceIf(ops, base, "executeDigest", a.ExecuteDigest, b.ExecuteDigest)
	ops = replaceIf(ops, base, "executeFailed", a.ExecuteFailed, b.ExecuteFailed)
	ops = replaceIf(ops, base, "messages", a.Messages, b.Messages)
	return ops
}
