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

import "errors"

var (
	// ErrTypeMismatch indicates Diff was called with two values of
	// different node types.
	ErrTypeMismatch = errors.New("diff: node types differ")

	// ErrEmptyPatch indicates an attempt to apply a patch with no
	// operations.
	ErrEmptyPatch = errors.New("apply: empty patch")

	// ErrBadOperand indicates an operation value that does not fit the
	// addressed field.
	ErrBadOperand = errors.New("apply: operand does not fit target")

	// ErrBadAddress indicates an operation address that does not
	// designate a field or sequence position of the target node.
	ErrBadAddress = errors.New("apply: bad operation address")

	// ErrBadTransform indicates an unsupported variant conversion.
	ErrBadTransform = errors.New("apply: unsupported transform")

	// ErrTargetNotFound indicates the patch target could not be
	// resolved in the tree, e.g. because its address went stale.
	ErrTargetNotFound = errors.New("apply: patch target not found")
)
