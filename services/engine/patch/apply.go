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
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/williwaw/services/engine/schema"
)

// Apply resolves the patch target within root and applies its
// operations in order.
//
// Targets identified by NodeID are re-resolved by identifier search, so
// a patch stays applicable after earlier patches restructured ancestor
// content. Applying an empty patch is an error: empty patches must be
// filtered out before they reach Apply.
func Apply(root schema.Node, p *Patch) error {
	if p.IsEmpty() {
		return ErrEmptyPatch
	}

	var target schema.Node
	switch {
	case p.NodeID != "":
		ptr, err := schema.Find(root, p.NodeID)
		if err != nil {
			return fmt.Errorf("%w: id %q: %v", ErrTargetNotFound, p.NodeID, err)
		}
		target = ptr.Node()
	default:
		ptr, err := schema.Resolve(root, p.Address)
		if err != nil {
			return fmt.Errorf("%w: address %q: %v", ErrTargetNotFound, p.Address.String(), err)
		}
		target = ptr.Node()
	}
	if target == nil {
		return fmt.Errorf("%w: target is a content slot, not a node", ErrTargetNotFound)
	}

	return ApplyOps(target, p.Ops)
}

// ApplyOps applies operations, in order, relative to the target node.
func ApplyOps(target schema.Node, ops []Operation) error {
	for i, op := range ops {
		if err := applyOp(target, op); err != nil {
			return fmt.Errorf("op %d (%s %s): %w", i, op.Kind, op.Address.String(), err)
		}
	}
	return nil
}

func applyOp(target schema.Node, op Operation) error {
	switch op.Kind {
	case OpReplace:
		return applyReplace(target, op)
	case OpAdd:
		return applyAdd(target, op)
	case OpRemove:
		return applyRemove(target, op)
	case OpMove:
		return applyMoveCopy(target, op, true)
	case OpCopy:
		return applyMoveCopy(target, op, false)
	case OpTransform:
		return applyTransform(target, op)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrBadAddress, op.Kind)
	}
}

// location is the result of navigating an operation address: either a
// named field of a node, or a position within a content sequence.
type location struct {
	node  schema.Node
	field string

	blocks  *[]schema.Block
	inlines *[]schema.Inline
	index   int
}

func (l location) isSequence() bool { return l.blocks != nil || l.inlines != nil }

func (l location) length() int {
	if l.blocks != nil {
		return len(*l.blocks)
	}
	return len(*l.inlines)
}

// locate navigates all but the final slot via the pointer layer and
// interprets the final slot as either a field name or a sequence index.
func locate(target schema.Node, addr schema.Address) (location, error) {
	if len(addr) == 0 {
		return location{}, fmt.Errorf("%w: empty address", ErrBadAddress)
	}
	last := addr[len(addr)-1]

	ptr, err := schema.Resolve(target, addr[:len(addr)-1])
	if err != nil {
		return location{}, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}

	if last.Kind == schema.SlotKindName {
		n := ptr.Node()
		if n == nil {
			return location{}, fmt.Errorf("%w: name slot %q on content slot", ErrBadAddress, last.Name)
		}
		return location{node: n, field: last.Name}, nil
	}

	switch ptr.Kind {
	case schema.PointerKindBlocks:
		return location{blocks: ptr.Blocks, index: last.Index}, nil
	case schema.PointerKindInlines:
		return location{inlines: ptr.Inlines, index: last.Index}, nil
	default:
		return location{}, fmt.Errorf("%w: index slot %d on non-sequence", ErrBadAddress, last.Index)
	}
}

func applyReplace(target schema.Node, op Operation) error {
	loc, err := locate(target, op.Address)
	if err != nil {
		return err
	}
	if !loc.isSequence() {
		return setField(loc.node, loc.field, op.Value.Interface())
	}

	count := op.count()
	if loc.index < 0 || loc.index+count > loc.length() {
		return fmt.Errorf("%w: replace %d items at %d of %d", ErrBadAddress, count, loc.index, loc.length())
	}
	if loc.blocks != nil {
		items, err := operandBlocks(op.Value)
		if err != nil {
			return err
		}
		if len(items) != count {
			return fmt.Errorf("%w: %d operand items for %d positions", ErrBadOperand, len(items), count)
		}
		copy((*loc.blocks)[loc.index:loc.index+count], items)
		return nil
	}
	items, err := operandInlines(op.Value)
	if err != nil {
		return err
	}
	if len(items) != count {
		return fmt.Errorf("%w: %d operand items for %d positions", ErrBadOperand, len(items), count)
	}
	copy((*loc.inlines)[loc.index:loc.index+count], items)
	return nil
}

func applyAdd(target schema.Node, op Operation) error {
	loc, err := locate(target, op.Address)
	if err != nil {
		return err
	}
	if !loc.isSequence() {
		return fmt.Errorf("%w: add on field %q", ErrBadAddress, loc.field)
	}
	if loc.index < 0 || loc.index > loc.length() {
		return fmt.Errorf("%w: insert at %d of %d", ErrBadAddress, loc.index, loc.length())
	}
	if loc.blocks != nil {
		items, err := operandBlocks(op.Value)
		if err != nil {
			return err
		}
		*loc.blocks = insertBlocks(*loc.blocks, loc.index, items)
		return nil
	}
	items, err := operandInlines(op.Value)
	if err != nil {
		return err
	}
	*loc.inlines = insertInlines(*loc.inlines, loc.index, items)
	return nil
}

func applyRemove(target schema.Node, op Operation) error {
	loc, err := locate(target, op.Address)
	if err != nil {
		return err
	}
	if !loc.isSequence() {
		return fmt.Errorf("%w: remove on field %q", ErrBadAddress, loc.field)
	}
	count := op.count()
	if loc.index < 0 || loc.index+count > loc.length() {
		return fmt.Errorf("%w: remove %d items at %d of %d", ErrBadAddress, count, loc.index, loc.length())
	}
	if loc.blocks != nil {
		*loc.blocks = append((*loc.blocks)[:loc.index], (*loc.blocks)[loc.index+count:]...)
		return nil
	}
	*loc.inlines = append((*loc.inlines)[:loc.index], (*loc.inlines)[loc.index+count:]...)
	return nil
}

// applyMoveCopy lifts items from the From address and inserts them at
// the target address. For moves the removal happens first, so the
// target index is interpreted against the post-removal sequence.
func applyMoveCopy(target schema.Node, op Operation, move bool) error {
	src, err := locate(target, op.From)
	if err != nil {
		return err
	}
	if !src.isSequence() {
		return fmt.Errorf("%w: %s from field %q", ErrBadAddress, op.Kind, src.field)
	}
	count := op.count()
	if src.index < 0 || src.index+count > src.length() {
		return fmt.Errorf("%w: %s %d items at %d of %d", ErrBadAddress, op.Kind, count, src.index, src.length())
	}

	var value any
	if src.blocks != nil {
		items := make([]any, count)
		for i := 0; i < count; i++ {
			items[i] = schema.Clone((*src.blocks)[src.index+i])
		}
		value = items
	} else {
		items := make([]any, count)
		for i := 0; i < count; i++ {
			items[i] = schema.Clone((*src.inlines)[src.index+i])
		}
		value = items
	}

	if move {
		if err := applyRemove(target, Operation{Kind: OpRemove, Address: op.From, Items: count}); err != nil {
			return err
		}
	}
	return applyAdd(target, Operation{
		Kind:    OpAdd,
		Address: op.Address,
		Items:   count,
		Value:   NewValue(value),
	})
}

// applyTransform converts the addressed node to a different variant.
// Only conversions that preserve content are supported.
func applyTransform(target schema.Node, op Operation) error {
	loc, err := locate(target, op.Address)
	if err != nil {
		return err
	}
	if loc.blocks == nil {
		return fmt.Errorf("%w: transform must address a block position", ErrBadTransform)
	}
	if loc.index < 0 || loc.index >= loc.length() {
		return fmt.Errorf("%w: index %d of %d", ErrBadAddress, loc.index, loc.length())
	}

	old := (*loc.blocks)[loc.index]
	var next schema.Block
	switch from := old.(type) {
	case *schema.Paragraph:
		if op.To == schema.TypeHeading {
			next = &schema.Heading{ID: from.ID, Level: 1, Content: from.Content}
		}
	case *schema.Heading:
		if op.To == schema.TypeParagraph {
			next = &schema.Paragraph{ID: from.ID, Content: from.Content}
		}
	}
	if next == nil {
		return fmt.Errorf("%w: %s to %s", ErrBadTransform, old.NodeType(), op.To)
	}
	(*loc.blocks)[loc.index] = next
	return nil
}

func insertBlocks(seq []schema.Block, at int, items []schema.Block) []schema.Block {
	out := make([]schema.Block, 0, len(seq)+len(items))
	out = append(out, seq[:at]...)
	out = append(out, items...)
	return append(out, seq[at:]...)
}

func insertInlines(seq []schema.Inline, at int, items []schema.Inline) []schema.Inline {
	out := make([]schema.Inline, 0, len(seq)+len(items))
	out = append(out, seq[:at]...)
	out = append(out, items...)
	return append(out, seq[at:]...)
}

// operandBlocks coerces an operation value into block items. Items are
// cloned so that applying the same patch to two trees never shares
// node pointers between them. Wire-form items (generic JSON maps) are
// decoded through the schema's discriminated encoding.
func operandBlocks(v *Value) ([]schema.Block, error) {
	raw := v.Interface()
	items, err := operandItems(raw)
	if err != nil {
		return nil, err
	}
	out := make([]schema.Block, len(items))
	for i, item := range items {
		n, err := coerceNode(item)
		if err != nil {
			return nil, err
		}
		b, ok := n.(schema.Block)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a block", ErrBadOperand, n.NodeType())
		}
		out[i] = b
	}
	return out, nil
}

func operandInlines(v *Value) ([]schema.Inline, error) {
	raw := v.Interface()
	items, err := operandItems(raw)
	if err != nil {
		return nil, err
	}
	out := make([]schema.Inline, len(items))
	for i, item := range items {
		n, err := coerceNode(item)
		if err != nil {
			return nil, err
		}
		in, ok := n.(schema.Inline)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not an inline", ErrBadOperand, n.NodeType())
		}
		out[i] = in
	}
	return out, nil
}

func operandItems(raw any) ([]any, error) {
	switch t := raw.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil operand", ErrBadOperand)
	case []any:
		return t, nil
	default:
		return []any{t}, nil
	}
}

func coerceNode(item any) (schema.Node, error) {
	switch t := item.(type) {
	case schema.Node:
		return schema.Clone(t), nil
	case map[string]any:
		data, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadOperand, err)
		}
		n, err := schema.DecodeNode(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadOperand, err)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("%w: %T is not a node", ErrBadOperand, item)
	}
}
