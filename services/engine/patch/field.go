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
	"reflect"

	"github.com/AleutianAI/williwaw/services/engine/schema"
)

// setField writes a replacement value into a named field of a node.
//
// Field names follow the wire encoding (camelCase JSON keys), which is
// also the form Diff emits. Values may be the schema's native Go types
// or their generic JSON equivalents (float64 for numbers, []any for
// sequences, map[string]any for structs), so a patch survives a trip
// through the codec and still applies.
func setField(n schema.Node, field string, v any) error {
	switch t := n.(type) {
	case *schema.Article:
		switch field {
		case "title":
			return setString(&t.Title, v)
		case "content":
			return setBlockContent(&t.Content, v)
		}
	case *schema.Section:
		if field == "content" {
			return setBlockContent(&t.Content, v)
		}
	case *schema.Heading:
		switch field {
		case "level":
			return setInt(&t.Level, v)
		case "content":
			return setInlineContent(&t.Content, v)
		}
	case *schema.Paragraph:
		if field == "content" {
			return setInlineContent(&t.Content, v)
		}
	case *schema.Text:
		if field == "value" {
			return setString(&t.Value, v)
		}
	case *schema.CodeChunk:
		switch field {
		case "language":
			return setString(&t.Language, v)
		case "code":
			return setString(&t.Code, v)
		case "outputs":
			return setAnySlice(&t.Outputs, v)
		default:
			return setExecField(&t.ExecutionState, field, v)
		}
	case *schema.CodeExpression:
		switch field {
		case "language":
			return setString(&t.Language, v)
		case "code":
			return setString(&t.Code, v)
		case "output":
			t.Output = schema.CloneValue(v)
			return nil
		default:
			return setExecField(&t.ExecutionState, field, v)
		}
	case *schema.Parameter:
		switch field {
		case "name":
			return setString(&t.Name, v)
		case "value":
			t.Value = schema.CloneValue(v)
			return nil
		default:
			return setExecField(&t.ExecutionState, field, v)
		}
	}
	return fmt.Errorf("%w: no field %q on %s", ErrBadAddress, field, n.NodeType())
}

func setExecField(st *schema.ExecutionState, field string, v any) error {
	switch field {
	case "executionStatus":
		s, err := asString(v)
		if err != nil {
			return err
		}
		st.ExecutionStatus = schema.ExecutionStatus(s)
	case "executionRequired":
		s, err := asString(v)
		if err != nil {
			return err
		}
		st.ExecutionRequired = schema.ExecutionRequired(s)
	case "executionCount":
		return setInt(&st.ExecutionCount, v)
	case "executionDurationMilli":
		return setInt64(&st.ExecutionDurationMilli, v)
	case "executionEndedMilli":
		return setInt64(&st.ExecutionEndedMilli, v)
	case "compileDigest":
		return setString(&st.CompileDigest, v)
	case "executeDigest":
		return setString(&st.ExecuteDigest, v)
	case "executeFailed":
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%w: %T is not a bool", ErrBadOperand, v)
		}
		st.ExecuteFailed = b
	case "messages":
		msgs, err := asMessages(v)
		if err != nil {
			return err
		}
		st.Messages = msgs
	default:
		return fmt.Errorf("%w: no execution field %q", ErrBadAddress, field)
	}
	return nil
}

func setString(dst *string, v any) error {
	s, err := asString(v)
	if err != nil {
		return err
	}
	*dst = s
	return nil
}

func setInt(dst *int, v any) error {
	switch t := v.(type) {
	case int:
		*dst = t
	case int64:
		*dst = int(t)
	case float64:
		*dst = int(t)
	default:
		return fmt.Errorf("%w: %T is not an integer", ErrBadOperand, v)
	}
	return nil
}

func setInt64(dst *int64, v any) error {
	switch t := v.(type) {
	case int64:
		*dst = t
	case int:
		*dst = int64(t)
	case float64:
		*dst = int64(t)
	default:
		return fmt.Errorf("%w: %T is not an integer", ErrBadOperand, v)
	}
	return nil
}

func setAnySlice(dst *[]any, v any) error {
	switch t := v.(type) {
	case nil:
		*dst = nil
	case []any:
		*dst = schema.CloneValue(t).([]any)
	default:
		return fmt.Errorf("%w: %T is not a sequence", ErrBadOperand, v)
	}
	return nil
}

func setBlockContent(dst *[]schema.Block, v any) error {
	items, err := operandBlocks(NewValue(v))
	if err != nil {
		return err
	}
	*dst = items
	return nil
}

func setInlineContent(dst *[]schema.Inline, v any) error {
	items, err := operandInlines(NewValue(v))
	if err != nil {
		return err
	}
	*dst = items
	return nil
}

// asString accepts plain strings and named string types, so values
// like ExecutionStatus pass through Diff unconverted.
func asString(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	rv := reflect.ValueOf(v)
	if rv.IsValid() && rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	return "", fmt.Errorf("%w: %T is not a string", ErrBadOperand, v)
}

func asMessages(v any) ([]schema.ExecutionMessage, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []schema.ExecutionMessage:
		out := make([]schema.ExecutionMessage, len(t))
		copy(out, t)
		return out, nil
	case []any:
		data, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadOperand, err)
		}
		var out []schema.ExecutionMessage
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadOperand, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T is not a message list", ErrBadOperand, v)
	}
}
