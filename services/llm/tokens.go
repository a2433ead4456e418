// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"log/slog"

	"github.com/tmc/langchaingo/llms"
)

// CountTokens counts prompt tokens under the model's tokenizer.
//
// # Description
//
// Counting goes through langchaingo's tiktoken binding. Models without
// a native encoding fall back to an approximate universal one, which
// is acceptable because the registry's limit table is calibrated
// against the same counter: the comparison stays meaningful even when
// the absolute count is approximate.
//
// Never fails; an empty text counts as zero.
func CountTokens(model, text string) int {
	if text == "" {
		return 0
	}
	return llms.CountTokens(model, text)
}

// CheckLimit counts text under the model's tokenizer and compares the
// count against the model's registered context window.
//
// # Outputs
//
//   - tokens: the counted size of text
//   - limit: the model's window, or the default for absent models
//   - exceeds: tokens > limit
//
// CheckLimit never fails. An identifier absent from the table is
// logged and measured against DefaultContextTokens rather than being
// waved through unboundedly.
func (r *ModelRegistry) CheckLimit(text, model string) (tokens, limit int, exceeds bool) {
	tokens = CountTokens(model, text)
	limit, known := r.Limit(model)
	if !known {
		slog.Debug("model absent from limit table, using default limit",
			"model", model, "default_limit", limit)
	}
	return tokens, limit, tokens > limit
}
