// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package codec reads and writes documents as JSON.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AleutianAI/williwaw/services/engine/schema"
)

// ErrNotArticle is returned when the decoded root node is not an
// article.
var ErrNotArticle = errors.New("codec: root node is not an Article")

// Decode reads one JSON document from r.
func Decode(r io.Reader) (*schema.Article, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("codec: read: %w", err)
	}
	node, err := schema.DecodeNode(data)
	if err != nil {
		return nil, fmt.Errorf("codec: decode: %w", err)
	}
	doc, ok := node.(*schema.Article)
	if !ok {
		return nil, fmt.Errorf("%w: got %s", ErrNotArticle, node.NodeType())
	}
	return doc, nil
}

// Encode writes the document to w as indented JSON with a trailing
// newline, the form documents are stored in on disk.
func Encode(w io.Writer, doc *schema.Article) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("codec: encode: %w", err)
	}
	return nil
}

// Load reads a document from a file.
func Load(path string) (*schema.Article, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("codec: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Save writes a document to a file, replacing any previous content.
func Save(path string, doc *schema.Article) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("codec: create %s: %w", path, err)
	}
	if err := Encode(f, doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
