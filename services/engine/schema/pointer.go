// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates no node matched the address or identifier.
	ErrNotFound = errors.New("node not found")

	// ErrInvalidSlot indicates a slot that cannot apply to the node it
	// was consumed against (name slot on a sequence, index slot on a
	// struct, or any slot on a leaf).
	ErrInvalidSlot = errors.New("invalid slot")

	// ErrIndexOutOfRange indicates an index slot beyond sequence bounds.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// PointerKind discriminates what a resolved Pointer refers to, so
// callers can only perform operations valid for what was found.
type PointerKind int

const (
	// PointerKindArticle points at the document root.
	PointerKindArticle PointerKind = iota

	// PointerKindBlock points at a single block node.
	PointerKindBlock

	// PointerKindInline points at a single inline node.
	PointerKindInline

	// PointerKindBlocks points at a whole block-content slot.
	PointerKindBlocks

	// PointerKindInlines points at a whole inline-content slot.
	PointerKindInlines
)

// Pointer is a typed reference into a live document tree.
//
// Exactly one field corresponding to Kind is set. Because every node
// variant uses pointer receivers, mutating through a Pointer mutates
// the tree it was resolved against.
type Pointer struct {
	Kind    PointerKind
	Article *Article
	Block   Block
	Inline  Inline
	Blocks  *[]Block
	Inlines *[]Inline
}

// Node returns the pointed-at node, or nil for content-slot pointers.
func (p Pointer) Node() Node {
	switch p.Kind {
	case PointerKindArticle:
		return p.Article
	case PointerKindBlock:
		return p.Block
	case PointerKindInline:
		return p.Inline
	default:
		return nil
	}
}

// pointerFor wraps a node in the pointer variant matching its position
// in the tree.
func pointerFor(n Node) (Pointer, error) {
	switch t := n.(type) {
	case *Article:
		return Pointer{Kind: PointerKindArticle, Article: t}, nil
	case Block:
		return Pointer{Kind: PointerKindBlock, Block: t}, nil
	case Inline:
		return Pointer{Kind: PointerKindInline, Inline: t}, nil
	default:
		return Pointer{}, fmt.Errorf("unhandled node type %T", n)
	}
}

// Resolve consumes the slots of addr one at a time, delegating into
// children, and returns a Pointer to what the full address designates.
//
// Resolve only navigates node-valued paths (content slots and sequence
// positions). Scalar fields are addressed by patch operations relative
// to a resolved node, not by Resolve itself.
func Resolve(root Node, addr Address) (Pointer, error) {
	return resolveNode(root, addr, nil)
}

func resolveNode(n Node, rest Address, consumed Address) (Pointer, error) {
	if n == nil {
		return Pointer{}, fmt.Errorf("resolve %q: %w", consumed.String(), ErrNotFound)
	}
	if len(rest) == 0 {
		return pointerFor(n)
	}

	slot := rest[0]
	if slot.Kind != SlotKindName {
		return Pointer{}, fmt.Errorf("resolve %q: index slot %d on %s: %w",
			consumed.String(), slot.Index, n.NodeType(), ErrInvalidSlot)
	}

	switch t := n.(type) {
	case *Article:
		if slot.Name == "content" {
			return resolveBlocks(&t.Content, rest[1:], consumed.Concat(slot))
		}
	case *Section:
		if slot.Name == "content" {
			return resolveBlocks(&t.Content, rest[1:], consumed.Concat(slot))
		}
	case *Heading:
		if slot.Name == "content" {
			return resolveInlines(&t.Content, rest[1:], consumed.Concat(slot))
		}
	case *Paragraph:
		if slot.Name == "content" {
			return resolveInlines(&t.Content, rest[1:], consumed.Concat(slot))
		}
	case *Text, *CodeChunk, *CodeExpression, *Parameter:
		// Leaves: no node-valued children to delegate into.
	default:
		return Pointer{}, fmt.Errorf("unhandled node type %T", n)
	}

	return Pointer{}, fmt.Errorf("resolve: name slot %q on %s: %w",
		slot.Name, n.NodeType(), ErrInvalidSlot)
}

func resolveBlocks(blocks *[]Block, rest Address, consumed Address) (Pointer, error) {
	if len(rest) == 0 {
		return Pointer{Kind: PointerKindBlocks, Blocks: blocks}, nil
	}
	slot := rest[0]
	if slot.Kind != SlotKindIndex {
		return Pointer{}, fmt.Errorf("resolve %q: name slot %q on block sequence: %w",
			consumed.String(), slot.Name, ErrInvalidSlot)
	}
	if slot.Index < 0 || slot.Index >= len(*blocks) {
		return Pointer{}, fmt.Errorf("resolve %q: index %d of %d blocks: %w",
			consumed.String(), slot.Index, len(*blocks), ErrIndexOutOfRange)
	}
	return resolveNode((*blocks)[slot.Index], rest[1:], consumed.Concat(slot))
}

func resolveInlines(inlines *[]Inline, rest Address, consumed Address) (Pointer, error) {
	if len(rest) == 0 {
		return Pointer{Kind: PointerKindInlines, Inlines: inlines}, nil
	}
	slot := rest[0]
	if slot.Kind != SlotKindIndex {
		return Pointer{}, fmt.Errorf("resolve %q: name slot %q on inline sequence: %w",
			consumed.String(), slot.Name, ErrInvalidSlot)
	}
	if slot.Index < 0 || slot.Index >= len(*inlines) {
		return Pointer{}, fmt.Errorf("resolve %q: index %d of %d inlines: %w",
			consumed.String(), slot.Index, len(*inlines), ErrIndexOutOfRange)
	}
	return resolveNode((*inlines)[slot.Index], rest[1:], consumed.Concat(slot))
}

// Find walks the tree until it finds the node with the given identifier.
//
// Find is the correctness fallback when no assembled address is valid
// anymore (an ancestor was restructured). It is a full walk, so callers
// on hot paths should prefer a fresh AddressMap.
func Find(root Node, id string) (Pointer, error) {
	if id == "" {
		return Pointer{}, fmt.Errorf("find: empty id: %w", ErrNotFound)
	}
	var found Node
	Walk(root, func(n Node, _ Address) bool {
		if n.NodeID() == id {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		return Pointer{}, fmt.Errorf("find %q: %w", id, ErrNotFound)
	}
	return pointerFor(found)
}

// Walk visits every node in depth-first document order, passing each
// node and its current address. The visitor returns false to stop the
// walk early.
func Walk(root Node, visit func(n Node, addr Address) bool) {
	walkNode(root, nil, visit)
}

func walkNode(n Node, addr Address, visit func(Node, Address) bool) bool {
	if n == nil {
		return true
	}
	if !visit(n, addr) {
		return false
	}
	switch t := n.(type) {
	case *Article:
		return walkBlocks(t.Content, addr.Concat(NameSlot("content")), visit)
	case *Section:
		return walkBlocks(t.Content, addr.Concat(NameSlot("content")), visit)
	case *Heading:
		return walkInlines(t.Content, addr.Concat(NameSlot("content")), visit)
	case *Paragraph:
		return walkInlines(t.Content, addr.Concat(NameSlot("content")), visit)
	case *Text, *CodeChunk, *CodeExpression, *Parameter:
		return true
	default:
		return true
	}
}

func walkBlocks(blocks []Block, base Address, visit func(Node, Address) bool) bool {
	for i, b := range blocks {
		if !walkNode(b, base.Concat(IndexSlot(i)), visit) {
			return false
		}
	}
	return true
}

func walkInlines(inlines []Inline, base Address, visit func(Node, Address) bool) bool {
	for i, in := range inlines {
		if !walkNode(in, base.Concat(IndexSlot(i)), visit) {
			return false
		}
	}
	return true
}
