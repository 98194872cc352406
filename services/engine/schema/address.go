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
	"fmt"
	"strconv"
	"strings"
)

// SlotKind discriminates the two slot variants of an address step.
type SlotKind int

const (
	// SlotKindName addresses a named field of a struct-like node.
	SlotKindName SlotKind = iota

	// SlotKindIndex addresses a position in a sequence.
	SlotKindIndex
)

// Slot is one step of an Address: either a field name or a sequence
// index. A name slot applied to a sequence, or an index slot applied to
// a struct field, is an addressing error, never a silent no-op.
type Slot struct {
	Kind  SlotKind `json:"kind"`
	Name  string   `json:"name,omitempty"`
	Index int      `json:"index,omitempty"`
}

// NameSlot returns a slot addressing the named field.
func NameSlot(name string) Slot {
	return Slot{Kind: SlotKindName, Name: name}
}

// IndexSlot returns a slot addressing a sequence position.
func IndexSlot(index int) Slot {
	return Slot{Kind: SlotKindIndex, Index: index}
}

// String returns "name" for name slots and the decimal index for index
// slots.
func (s Slot) String() string {
	if s.Kind == SlotKindIndex {
		return strconv.Itoa(s.Index)
	}
	return s.Name
}

// Address locates a node or field within the document tree as an
// ordered sequence of slots from the root.
//
// An address is valid only until the next structural mutation of an
// ancestor. Callers that hold addresses across mutations must fall back
// to identifier lookup (Find) rather than trusting a cached address.
type Address []Slot

// String renders the address as dot-separated slots, e.g. "content.3.code".
func (a Address) String() string {
	if len(a) == 0 {
		return ""
	}
	parts := make([]string, len(a))
	for i, s := range a {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}

// Concat returns a new address with the given slots appended. The
// receiver is not modified.
func (a Address) Concat(slots ...Slot) Address {
	out := make(Address, 0, len(a)+len(slots))
	out = append(out, a...)
	out = append(out, slots...)
	return out
}

// ParseAddress parses the dot-separated form produced by String.
// Numeric segments become index slots, everything else name slots.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, nil
	}
	parts := strings.Split(s, ".")
	addr := make(Address, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("address %q: empty slot", s)
		}
		if i, err := strconv.Atoi(p); err == nil {
			if i < 0 {
				return nil, fmt.Errorf("address %q: negative index %d", s, i)
			}
			addr = append(addr, IndexSlot(i))
			continue
		}
		addr = append(addr, NameSlot(p))
	}
	return addr, nil
}
