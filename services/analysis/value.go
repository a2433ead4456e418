// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis implements the multi-stage analysis pipeline engine:
// the per-run context with template substitution, the six stage behaviors,
// ensemble answering over prioritized knowledge sources, and the
// sequential pipeline driver.
//
// The engine is a library. It owns no network clients of its own; the
// completion, retrieval, and token-accounting collaborators are injected
// through the interfaces in services/llm and services/retrieval.
package analysis

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// Stage result values
// =============================================================================

// ValueKind discriminates the closed set of shapes a stage result can take.
type ValueKind int

const (
	// KindText is free-form model output.
	KindText ValueKind = iota + 1
	// KindObject is a parsed JSON object.
	KindObject
	// KindList is an ordered list of parsed JSON objects.
	KindList
)

// String returns the wire name of the kind.
func (k ValueKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindObject:
		return "object"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// Value is the result a stage writes into the run context.
//
// # Description
//
// Value is a tagged union over text, object, and list-of-object results.
// Field-path navigation and template substitution dispatch on the kind
// instead of reflecting over bare maps, so a stage that produces the
// wrong shape fails a lookup loudly (warning recorded) rather than
// silently substituting garbage.
//
// The zero Value is invalid; construct through TextValue, ObjectValue,
// or ListValue.
type Value struct {
	kind   ValueKind
	text   string
	object map[string]any
	list   []map[string]any
}

// TextValue wraps raw model output.
func TextValue(text string) Value {
	return Value{kind: KindText, text: text}
}

// ObjectValue wraps a parsed JSON object. A nil map is stored as an
// empty object so lookups stay total.
func ObjectValue(object map[string]any) Value {
	if object == nil {
		object = map[string]any{}
	}
	return Value{kind: KindObject, object: object}
}

// ListValue wraps an ordered list of parsed JSON objects.
func ListValue(items []map[string]any) Value {
	if items == nil {
		items = []map[string]any{}
	}
	return Value{kind: KindList, list: items}
}

// Kind reports which variant this value holds.
func (v Value) Kind() ValueKind { return v.kind }

// IsZero reports whether the value was never constructed.
func (v Value) IsZero() bool { return v.kind == 0 }

// Text returns the text payload. The second return is false for
// non-text values.
func (v Value) Text() (string, bool) {
	return v.text, v.kind == KindText
}

// Object returns the object payload. The second return is false for
// non-object values.
func (v Value) Object() (map[string]any, bool) {
	return v.object, v.kind == KindObject
}

// List returns the list payload. The second return is false for
// non-list values.
func (v Value) List() ([]map[string]any, bool) {
	return v.list, v.kind == KindList
}

// Field looks up a top-level field of an object value.
func (v Value) Field(name string) (any, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	val, ok := v.object[name]
	return val, ok
}

// String renders the whole-value textual form used for {stage}
// placeholders: text verbatim, structured values as compact JSON.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindObject:
		return marshalCompact(v.object)
	case KindList:
		return marshalCompact(v.list)
	default:
		return ""
	}
}

// MarshalJSON emits the underlying payload so run results serialize as
// plain structured data (text as a JSON string, object and list as-is).
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return json.Marshal(v.text)
	case KindObject:
		return json.Marshal(v.object)
	case KindList:
		return json.Marshal(v.list)
	default:
		return []byte("null"), nil
	}
}

// renderAny is the textual form of a single substituted field: strings
// verbatim, everything else compact JSON.
func renderAny(val any) string {
	if s, ok := val.(string); ok {
		return s
	}
	return marshalCompact(val)
}

func marshalCompact(val any) string {
	b, err := json.Marshal(val)
	if err != nil {
		// Values originate from json.Unmarshal, so this only fires for
		// hand-built maps holding unmarshalable types.
		return fmt.Sprintf("%v", val)
	}
	return string(b)
}
