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
	"encoding/json"
	"fmt"
)

// Every variant serializes with a "type" discriminator so that a
// document survives a JSON round trip with its variants intact. The
// MarshalJSON methods use local aliases to avoid marshal recursion;
// DecodeBlock/DecodeInline switch exhaustively on the discriminator.

func marshalTyped(t NodeType, v any) ([]byte, error) {
	inner, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(inner) < 2 || inner[0] != '{' {
		return nil, fmt.Errorf("marshal %s: unexpected encoding", t)
	}
	head := []byte(fmt.Sprintf(`{"type":%q`, t))
	if len(inner) == 2 { // "{}"
		return append(head, '}'), nil
	}
	head = append(head, ',')
	return append(head, inner[1:]...), nil
}

func (a *Article) MarshalJSON() ([]byte, error) {
	type alias Article
	return marshalTyped(TypeArticle, (*alias)(a))
}

func (s *Section) MarshalJSON() ([]byte, error) {
	type alias Section
	return marshalTyped(TypeSection, (*alias)(s))
}

func (h *Heading) MarshalJSON() ([]byte, error) {
	type alias Heading
	return marshalTyped(TypeHeading, (*alias)(h))
}

func (p *Paragraph) MarshalJSON() ([]byte, error) {
	type alias Paragraph
	return marshalTyped(TypeParagraph, (*alias)(p))
}

func (t *Text) MarshalJSON() ([]byte, error) {
	type alias Text
	return marshalTyped(TypeText, (*alias)(t))
}

func (c *CodeChunk) MarshalJSON() ([]byte, error) {
	type alias CodeChunk
	return marshalTyped(TypeCodeChunk, (*alias)(c))
}

func (c *CodeExpression) MarshalJSON() ([]byte, error) {
	type alias CodeExpression
	return marshalTyped(TypeCodeExpression, (*alias)(c))
}

func (p *Parameter) MarshalJSON() ([]byte, error) {
	type alias Parameter
	return marshalTyped(TypeParameter, (*alias)(p))
}

// typeProbe extracts just the discriminator from a raw node.
type typeProbe struct {
	Type NodeType `json:"type"`
}

// DecodeNode decodes a raw JSON node of any variant.
func DecodeNode(data []byte) (Node, error) {
	var probe typeProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	switch probe.Type {
	case TypeArticle:
		var a Article
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, err
		}
		return &a, nil
	case TypeText, TypeCodeExpression:
		return DecodeInline(data)
	case TypeSection, TypeHeading, TypeParagraph, TypeCodeChunk, TypeParameter:
		return DecodeBlock(data)
	default:
		return nil, fmt.Errorf("decode node: unknown type %q", probe.Type)
	}
}

// DecodeBlock decodes a raw JSON block variant.
func DecodeBlock(data []byte) (Block, error) {
	var probe typeProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	switch probe.Type {
	case TypeSection:
		var v Section
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &v, nil
	case TypeHeading:
		var v Heading
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &v, nil
	case TypeParagraph:
		var v Paragraph
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &v, nil
	case TypeCodeChunk:
		var v CodeChunk
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &v, nil
	case TypeParameter:
		var v Parameter
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &v, nil
	default:
		return nil, fmt.Errorf("decode block: unknown type %q", probe.Type)
	}
}

// DecodeInline decodes a raw JSON inline variant.
func DecodeInline(data []byte) (Inline, error) {
	var probe typeProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode inline: %w", err)
	}
	switch probe.Type {
	case TypeText:
		var v Text
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &v, nil
	case TypeCodeExpression:
		var v CodeExpression
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &v, nil
	default:
		return nil, fmt.Errorf("decode inline: unknown type %q", probe.Type)
	}
}

// blockSeq is the raw form of a []Block field.
type blockSeq []json.RawMessage

func decodeBlocks(raw blockSeq) ([]Block, error) {
	if raw == nil {
		return nil, nil
	}
	out := make([]Block, len(raw))
	for i, r := range raw {
		b, err := DecodeBlock(r)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}

func decodeInlines(raw blockSeq) ([]Inline, error) {
	if raw == nil {
		return nil, nil
	}
	out := make([]Inline, len(raw))
	for i, r := range raw {
		in, err := DecodeInline(r)
		if err != nil {
			return nil, fmt.Errorf("inline %d: %w", i, err)
		}
		out[i] = in
	}
	return out, nil
}

func (a *Article) UnmarshalJSON(data []byte) error {
	type alias Article
	aux := struct {
		*alias
		Content blockSeq `json:"content"`
	}{alias: (*alias)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	content, err := decodeBlocks(aux.Content)
	if err != nil {
		return err
	}
	a.Content = content
	return nil
}

func (s *Section) UnmarshalJSON(data []byte) error {
	type alias Section
	aux := struct {
		*alias
		Content blockSeq `json:"content"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	content, err := decodeBlocks(aux.Content)
	if err != nil {
		return err
	}
	s.Content = content
	return nil
}

func (h *Heading) UnmarshalJSON(data []byte) error {
	type alias Heading
	aux := struct {
		*alias
		Content blockSeq `json:"content"`
	}{alias: (*alias)(h)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	content, err := decodeInlines(aux.Content)
	if err != nil {
		return err
	}
	h.Content = content
	return nil
}

func (p *Paragraph) UnmarshalJSON(data []byte) error {
	type alias Paragraph
	aux := struct {
		*alias
		Content blockSeq `json:"content"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	content, err := decodeInlines(aux.Content)
	if err != nil {
		return err
	}
	p.Content = content
	return nil
}
