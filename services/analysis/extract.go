// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// Best-effort JSON extraction
// =============================================================================
//
// Models wrap structured answers in prose ("Here is the plan: {...}
// thanks"). The extraction contract is a greedy span match: first
// opening delimiter to last closing delimiter, parsed as JSON.
//
// # Limitations
//
// The greedy span mis-extracts when the output contains multiple
// JSON-like spans or unbalanced braces inside string literals. That is
// the documented contract: best-effort structured extraction with a
// raw-text fallback, not a strict parser. Callers must treat a
// ParseDegradedError as a normal degradation, never a stage failure.

// ExtractJSONObject pulls the greedy {...} span out of completion
// output and parses it as a JSON object.
func ExtractJSONObject(text string) (map[string]any, error) {
	span, ok := greedySpan(text, '{', '}')
	if !ok {
		return nil, &ParseDegradedError{Want: "object"}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(span), &obj); err != nil {
		return nil, &ParseDegradedError{Want: "object", Err: err}
	}
	return obj, nil
}

// ExtractJSONList pulls the greedy [...] span out of completion output
// and parses it as a list of objects. Scalar elements are wrapped as
// {"value": element} so list results stay uniformly object-shaped.
func ExtractJSONList(text string) ([]map[string]any, error) {
	span, ok := greedySpan(text, '[', ']')
	if !ok {
		return nil, &ParseDegradedError{Want: "list"}
	}
	var raw []any
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return nil, &ParseDegradedError{Want: "list", Err: err}
	}
	items := make([]map[string]any, 0, len(raw))
	for _, el := range raw {
		if obj, ok := el.(map[string]any); ok {
			items = append(items, obj)
			continue
		}
		items = append(items, map[string]any{"value": el})
	}
	return items, nil
}

// greedySpan slices from the first opening delimiter to the last
// closing delimiter, inclusive.
func greedySpan(text string, opening, closing byte) (string, bool) {
	start := strings.IndexByte(text, opening)
	end := strings.LastIndexByte(text, closing)
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
