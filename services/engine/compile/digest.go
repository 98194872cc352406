// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compile

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/AleutianAI/williwaw/services/engine/graph"
)

// digest hashes the semantic identity of a cell: its language, source
// and normalized relations. Relations are sorted so discovery order
// does not change the digest; two cells that read and write the same
// symbols with the same code always hash alike.
func digest(language, code string, relations []graph.Relation) string {
	keys := make([]string, len(relations))
	for i, rel := range relations {
		keys[i] = string(rel.Kind) + ":" + rel.Symbol
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(code))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(keys, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}
