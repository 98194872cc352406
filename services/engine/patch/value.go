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
)

// Value is a type-erased, serializable container carrying operands
// across add/replace operations, so the patch engine does not need to
// know every node type.
//
// In-process it holds the original Go value (a scalar, a kernel output,
// or schema nodes); over the wire it serializes to plain JSON using the
// node variants' own discriminated encoding.
type Value struct {
	v any
}

// NewValue wraps a value for transport inside an operation.
func NewValue(v any) *Value {
	return &Value{v: v}
}

// Interface returns the wrapped value. After a JSON round trip the
// value is generic JSON (nil, bool, float64, string, []any,
// map[string]any) rather than the original typed form.
func (v *Value) Interface() any {
	if v == nil {
		return nil
	}
	return v.v
}

// MarshalJSON encodes the wrapped value.
func (v *Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.v)
}

// UnmarshalJSON decodes into generic JSON form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	v.v = out
	return nil
}
