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

// AddressMap records, for every node carrying a stable identifier, the
// address at which it currently lives.
//
// The map is advisory: it is valid only until the next structural
// mutation of the tree. Callers must re-assemble after such mutations
// or fall back to Find when a cached address turns out stale.
type AddressMap map[string]Address

// Assemble walks the whole tree once and records the current address of
// every node that has an identifier.
func Assemble(root Node) AddressMap {
	m := make(AddressMap)
	Walk(root, func(n Node, addr Address) bool {
		if id := n.NodeID(); id != "" {
			a := make(Address, len(addr))
			copy(a, addr)
			m[id] = a
		}
		return true
	})
	return m
}

// ResolveID resolves an identifier using the assembled address first
// and falling back to a full identifier search if the address is stale
// or missing.
func (m AddressMap) ResolveID(root Node, id string) (Pointer, error) {
	if addr, ok := m[id]; ok {
		if p, err := Resolve(root, addr); err == nil && p.Node() != nil && p.Node().NodeID() == id {
			return p, nil
		}
	}
	return Find(root, id)
}
