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
	"errors"
	"fmt"
)

// =============================================================================
// Error taxonomy
// =============================================================================
//
// Fatal errors abort a run: InvalidModelError (checked before any
// external call), ContextTooLargeError (budget retry exhausted),
// NoQueriesError, ExternalCallError (except the ensemble's online
// step, which degrades to a placeholder). ParseDegradedError never
// propagates out of a stage; it annotates the raw-text fallback.

// InvalidModelError reports a model identifier the registry rejects.
// It is raised before any retrieval or completion call is made.
type InvalidModelError struct {
	Model string
}

func (e *InvalidModelError) Error() string {
	return fmt.Sprintf("model %q is not a registered model", e.Model)
}

// IsInvalidModel reports whether err wraps an InvalidModelError.
func IsInvalidModel(err error) bool {
	var target *InvalidModelError
	return errors.As(err, &target)
}

// ContextTooLargeError reports a rendered prompt that still exceeds the
// model's context window after budget reduction was exhausted. It
// carries the counts and the retrieval sizes attempted so callers can
// diagnose without re-running.
type ContextTooLargeError struct {
	Model    string
	Tokens   int
	Limit    int
	KKeyword int
	KVector  int
}

func (e *ContextTooLargeError) Error() string {
	return fmt.Sprintf("prompt is %d tokens but model %q allows %d (k_keyword=%d, k_vector=%d)",
		e.Tokens, e.Model, e.Limit, e.KKeyword, e.KVector)
}

// IsContextTooLarge reports whether err wraps a ContextTooLargeError.
func IsContextTooLarge(err error) bool {
	var target *ContextTooLargeError
	return errors.As(err, &target)
}

// NoQueriesError reports a Search stage whose query resolution produced
// nothing to execute.
type NoQueriesError struct {
	Stage string
}

func (e *NoQueriesError) Error() string {
	return fmt.Sprintf("search stage %q resolved zero queries", e.Stage)
}

// IsNoQueries reports whether err wraps a NoQueriesError.
func IsNoQueries(err error) bool {
	var target *NoQueriesError
	return errors.As(err, &target)
}

// ExternalCallError reports a collaborator failure: a retriever, the
// completion backend, or the web-search backend. Timeouts and
// cancellations surface here too; Unwrap keeps context.Canceled and
// context.DeadlineExceeded visible to errors.Is.
type ExternalCallError struct {
	Op  string
	Err error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }

// IsExternalCall reports whether err wraps an ExternalCallError.
func IsExternalCall(err error) bool {
	var target *ExternalCallError
	return errors.As(err, &target)
}

// ParseDegradedError reports a failed best-effort JSON extraction. It
// is always recovered locally: the stage returns raw text annotated
// with the parse error instead of failing.
type ParseDegradedError struct {
	Want string // "object" or "list"
	Err  error  // nil when no candidate span was found at all
}

func (e *ParseDegradedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("no JSON %s span found in completion output", e.Want)
	}
	return fmt.Sprintf("JSON %s span failed to parse: %v", e.Want, e.Err)
}

func (e *ParseDegradedError) Unwrap() error { return e.Err }

// IsParseDegraded reports whether err wraps a ParseDegradedError.
func IsParseDegraded(err error) bool {
	var target *ParseDegradedError
	return errors.As(err, &target)
}
