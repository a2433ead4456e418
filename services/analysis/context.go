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
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// InitialInputKey is the reserved placeholder name for the original
// question or document a pipeline run was invoked with. Stage names
// must not collide with it.
const InitialInputKey = "initial_input"

// placeholderPattern matches {name} and {name.field.subfield} markers.
// Anything else inside braces (JSON literals in prompts, for example)
// is left alone.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*)\}`)

// Warning records a recoverable degradation observed during a run:
// an unresolved placeholder, a skipped iteration item, a failed parse.
// Warnings ride along in the run result so callers can diagnose a
// partially-specified pipeline without digging through service logs.
type Warning struct {
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}

// Context is the per-run, append-only store of named stage results.
//
// # Description
//
// A Context is created once per pipeline invocation, seeded with the
// immutable initial input, and grows by exactly one named result per
// completed stage. No result is ever overwritten; the reserved name
// "initial_input" is rejected at append time. The Context also collects
// the run's warnings.
//
// # Thread Safety
//
// Not safe for concurrent use. A Context is owned by the single
// goroutine driving the run for the lifetime of that run.
type Context struct {
	initialInput string
	order        []string
	results      map[string]Value
	warnings     []Warning
	logger       *slog.Logger
}

// NewContext creates the context for one pipeline run. A nil logger
// falls back to slog.Default().
func NewContext(initialInput string, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		initialInput: initialInput,
		results:      make(map[string]Value),
		logger:       logger,
	}
}

// InitialInput returns the input the run started from.
func (c *Context) InitialInput() string { return c.initialInput }

// StageNames returns the completed stage names in execution order.
func (c *Context) StageNames() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Result returns the recorded value for a completed stage.
func (c *Context) Result(name string) (Value, bool) {
	v, ok := c.results[name]
	return v, ok
}

// Results returns a copy of the name -> value mapping.
func (c *Context) Results() map[string]Value {
	out := make(map[string]Value, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// Append records a completed stage's result.
//
// # Errors
//
//   - the name is empty, reserved, or already recorded (results are
//     append-only and never overwritten)
//   - the value is the zero Value
func (c *Context) Append(name string, v Value) error {
	if name == "" {
		return fmt.Errorf("stage name cannot be empty")
	}
	if name == InitialInputKey {
		return fmt.Errorf("stage name %q is reserved", InitialInputKey)
	}
	if _, exists := c.results[name]; exists {
		return fmt.Errorf("stage %q already has a recorded result", name)
	}
	if v.IsZero() {
		return fmt.Errorf("stage %q produced no value", name)
	}
	c.results[name] = v
	c.order = append(c.order, name)
	return nil
}

// Warn records a recoverable degradation and logs it.
func (c *Context) Warn(stage, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.warnings = append(c.warnings, Warning{Stage: stage, Message: msg})
	c.logger.Warn("pipeline degradation", "stage", stage, "detail", msg)
}

// Warnings returns a copy of the warnings recorded so far.
func (c *Context) Warnings() []Warning {
	out := make([]Warning, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// =============================================================================
// Template substitution
// =============================================================================

// Render substitutes {initial_input}, {stage}, and {stage.field}
// markers in a prompt template.
//
// # Description
//
// The substitution map covers the initial input and every recorded
// result. Object results are reachable both as a whole ({stage}, the
// compact JSON form) and per field ({stage.field}; deeper dotted paths
// walk nested objects). String fields substitute verbatim; any other
// field renders as compact JSON.
//
// A placeholder that resolves to nothing is left verbatim and recorded
// as a warning. Rendering never fails: a template that references a
// stage which has not run yet is a normal authoring state, not an
// error.
func (c *Context) Render(template string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		ref := match[1 : len(match)-1]
		if text, ok := c.lookup(ref); ok {
			return text
		}
		c.Warn("", "placeholder {%s} is unresolved; left verbatim", ref)
		return match
	})
}

// lookup resolves a single placeholder reference to its textual form.
func (c *Context) lookup(ref string) (string, bool) {
	if ref == InitialInputKey {
		return c.initialInput, true
	}
	name, path, hasPath := strings.Cut(ref, ".")
	v, ok := c.results[name]
	if !ok {
		return "", false
	}
	if !hasPath {
		return v.String(), true
	}
	val, ok := walkPath(v, strings.Split(path, "."))
	if !ok {
		return "", false
	}
	return renderAny(val), true
}

// walkPath descends through nested object fields. Only mappings are
// traversable; hitting anything else stops the walk.
func walkPath(v Value, segments []string) (any, bool) {
	obj, ok := v.Object()
	if !ok {
		return nil, false
	}
	var cur any = obj
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// ResolveList resolves an iterate_over field path to a list of objects.
//
// # Description
//
// The first path segment names a completed stage; remaining segments
// walk nested object fields. The terminal value must be a list; its
// object items are returned in order. Every miss degrades to an empty
// list with a warning rather than an error, because a dangling path is
// an authoring mistake the surrounding Search stage converts into
// NoQueries with full context.
func (c *Context) ResolveList(stage, path string) []map[string]any {
	segments := strings.Split(path, ".")
	v, ok := c.results[segments[0]]
	if !ok {
		c.Warn(stage, "iterate_over %q references unknown stage %q", path, segments[0])
		return nil
	}

	var terminal any
	if len(segments) == 1 {
		if items, ok := v.List(); ok {
			return items
		}
		terminal = valuePayload(v)
	} else {
		terminal, ok = walkPath(v, segments[1:])
		if !ok {
			c.Warn(stage, "iterate_over %q does not resolve to a value (non-mapping intermediate or missing field)", path)
			return nil
		}
	}

	items, dropped, ok := coerceObjectList(terminal)
	if !ok {
		c.Warn(stage, "iterate_over %q resolved to %T, not a list", path, terminal)
		return nil
	}
	if dropped > 0 {
		c.Warn(stage, "iterate_over %q skipped %d non-object item(s)", path, dropped)
	}
	return items
}

// valuePayload unwraps a Value to its raw payload for coercion.
func valuePayload(v Value) any {
	switch v.Kind() {
	case KindText:
		return v.text
	case KindObject:
		return v.object
	case KindList:
		return v.list
	default:
		return nil
	}
}

// coerceObjectList accepts []map[string]any directly and []any whose
// elements are objects. Non-object elements are dropped and counted.
func coerceObjectList(val any) (items []map[string]any, dropped int, ok bool) {
	switch list := val.(type) {
	case []map[string]any:
		return list, 0, true
	case []any:
		items = make([]map[string]any, 0, len(list))
		for _, el := range list {
			if m, isObj := el.(map[string]any); isObj {
				items = append(items, m)
			} else {
				dropped++
			}
		}
		return items, dropped, true
	default:
		return nil, 0, false
	}
}
