// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schema defines the executable-document node tree.
//
// A document is a tree of typed node variants. The variant set is closed
// on purpose: Resolve, Find, Walk, Clone and the patch engine all switch
// exhaustively over NodeType, so adding a variant without extending those
// switches is a compile-time or test-time failure, not a silent gap.
//
// Executable variants (CodeChunk, CodeExpression, Parameter) carry their
// execution state directly on the node so that a serialized document
// preserves statuses, digests and diagnostics between runs.
package schema

// NodeType discriminates the closed set of node variants.
type NodeType string

const (
	TypeArticle        NodeType = "Article"
	TypeSection        NodeType = "Section"
	TypeHeading        NodeType = "Heading"
	TypeParagraph      NodeType = "Paragraph"
	TypeCodeChunk      NodeType = "CodeChunk"
	TypeCodeExpression NodeType = "CodeExpression"
	TypeParameter      NodeType = "Parameter"
	TypeText           NodeType = "Text"
)

// Node is the interface shared by every variant in the tree.
//
// All concrete variants use pointer receivers, so a Node value always
// aliases the node stored in the tree and mutations through it are
// visible to other holders of the same pointer.
type Node interface {
	// NodeType returns the variant discriminator.
	NodeType() NodeType

	// NodeID returns the node's stable identifier, or "" if it has none.
	NodeID() string
}

// Block is a node that can appear in block content.
type Block interface {
	Node
	isBlock()
}

// Inline is a node that can appear in inline content.
type Inline interface {
	Node
	isInline()
}

// Executable is a node the execution engine can schedule.
//
// ProgrammingLanguage returns "" for nodes without a language tag
// (Parameter). Source returns the executable text, which may be empty.
type Executable interface {
	Node
	Execution() *ExecutionState
	ProgrammingLanguage() string
	Source() string
}

// Article is the document root.
type Article struct {
	ID      string  `json:"id,omitempty"`
	Title   string  `json:"title,omitempty"`
	Content []Block `json:"content"`
}

func (a *Article) NodeType() NodeType { return TypeArticle }
func (a *Article) NodeID() string     { return a.ID }

// Section groups blocks under an optional heading.
type Section struct {
	ID      string  `json:"id,omitempty"`
	Content []Block `json:"content"`
}

func (s *Section) NodeType() NodeType { return TypeSection }
func (s *Section) NodeID() string     { return s.ID }
func (s *Section) isBlock()           {}

// Heading is a section heading with inline content.
type Heading struct {
	ID      string   `json:"id,omitempty"`
	Level   int      `json:"level"`
	Content []Inline `json:"content"`
}

func (h *Heading) NodeType() NodeType { return TypeHeading }
func (h *Heading) NodeID() string     { return h.ID }
func (h *Heading) isBlock()           {}

// Paragraph is a block of inline content.
type Paragraph struct {
	ID      string   `json:"id,omitempty"`
	Content []Inline `json:"content"`
}

func (p *Paragraph) NodeType() NodeType { return TypeParagraph }
func (p *Paragraph) NodeID() string     { return p.ID }
func (p *Paragraph) isBlock()           {}

// Text is a run of plain text.
type Text struct {
	ID    string `json:"id,omitempty"`
	Value string `json:"value"`
}

func (t *Text) NodeType() NodeType { return TypeText }
func (t *Text) NodeID() string     { return t.ID }
func (t *Text) isInline()          {}

// CodeChunk is an executable block of code.
//
// Outputs holds the kernel outputs from the most recent execution as
// JSON-compatible values (nil, bool, float64, string, []any,
// map[string]any). Kernels produce dynamic values, so this is the one
// place the schema stores untyped data.
type CodeChunk struct {
	ID       string `json:"id,omitempty"`
	Language string `json:"language,omitempty"`
	Code     string `json:"code"`
	Outputs  []any  `json:"outputs,omitempty"`

	ExecutionState
}

func (c *CodeChunk) NodeType() NodeType            { return TypeCodeChunk }
func (c *CodeChunk) NodeID() string                { return c.ID }
func (c *CodeChunk) isBlock()                      {}
func (c *CodeChunk) Execution() *ExecutionState    { return &c.ExecutionState }
func (c *CodeChunk) ProgrammingLanguage() string   { return c.Language }
func (c *CodeChunk) Source() string                { return c.Code }

// CodeExpression is an executable inline expression.
//
// Expressions are pure by construction: they must not mutate kernel
// state, which makes them eligible for evaluation in a forked kernel.
type CodeExpression struct {
	ID       string `json:"id,omitempty"`
	Language string `json:"language,omitempty"`
	Code     string `json:"code"`
	Output   any    `json:"output,omitempty"`

	ExecutionState
}

func (c *CodeExpression) NodeType() NodeType          { return TypeCodeExpression }
func (c *CodeExpression) NodeID() string              { return c.ID }
func (c *CodeExpression) isInline()                   {}
func (c *CodeExpression) Execution() *ExecutionState  { return &c.ExecutionState }
func (c *CodeExpression) ProgrammingLanguage() string { return c.Language }
func (c *CodeExpression) Source() string              { return c.Code }

// Parameter assigns a named value into the kernel scope without running
// any code. It participates in the dependency graph as a writer of its
// own name.
type Parameter struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Value any    `json:"value,omitempty"`

	ExecutionState
}

func (p *Parameter) NodeType() NodeType          { return TypeParameter }
func (p *Parameter) NodeID() string              { return p.ID }
func (p *Parameter) isBlock()                    {}
func (p *Parameter) Execution() *ExecutionState  { return &p.ExecutionState }
func (p *Parameter) ProgrammingLanguage() string { return "" }
func (p *Parameter) Source() string              { return "" }

// Compile-time variant checks. Every block/inline/executable variant
// must appear here so a new variant cannot be added half-wired.
var (
	_ Block = (*Section)(nil)
	_ Block = (*Heading)(nil)
	_ Block = (*Paragraph)(nil)
	_ Block = (*CodeChunk)(nil)
	_ Block = (*Parameter)(nil)

	_ Inline = (*Text)(nil)
	_ Inline = (*CodeExpression)(nil)

	_ Executable = (*CodeChunk)(nil)
	_ Executable = (*CodeExpression)(nil)
	_ Executable = (*Parameter)(nil)
)
