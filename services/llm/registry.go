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
	"sort"
)

// DefaultContextTokens is the limit applied to a model identifier that
// is genuinely absent from the registry table. It exists so the limit
// check stays meaningful for unlisted models instead of silently
// allowing unlimited input; validation normally rejects unknown models
// long before this fallback matters.
const DefaultContextTokens = 4096

// defaultModelLimits is the shipped model -> context window table.
// Window sizes are in tokens under the same tokenizer CountTokens
// uses, so limit comparisons are calibrated against the counter.
var defaultModelLimits = map[string]int{
	// OpenAI hosted
	"gpt-4o":                     128000,
	"gpt-4o-mini":                128000,
	"gpt-4o-search-preview":      128000,
	"gpt-4o-mini-search-preview": 128000,
	"gpt-4-turbo":                128000,
	"gpt-4":                      8192,
	"gpt-3.5-turbo":              16385,

	// Anthropic hosted
	"claude-sonnet-4-5": 200000,
	"claude-opus-4-1":   200000,

	// Local (Ollama)
	"gpt-oss":     131072,
	"llama3.1:8b": 131072,
	"qwen3:14b":   40960,
	"mistral:7b":  32768,
}

// ModelRegistry is the fixed mapping from model identifier to maximum
// context length, doubling as the valid-model set used to reject
// unknown identifiers before any external call is made.
//
// # Thread Safety
//
// Register during construction only. Reads are safe to share once the
// registry is wired into the engine.
type ModelRegistry struct {
	limits       map[string]int
	defaultLimit int
}

// NewModelRegistry returns a registry seeded with the shipped table.
func NewModelRegistry() *ModelRegistry {
	limits := make(map[string]int, len(defaultModelLimits))
	for model, limit := range defaultModelLimits {
		limits[model] = limit
	}
	return &ModelRegistry{
		limits:       limits,
		defaultLimit: DefaultContextTokens,
	}
}

// Register adds or overrides a model entry. Deployments running local
// models register them here at startup.
func (r *ModelRegistry) Register(model string, contextTokens int) {
	if model == "" || contextTokens <= 0 {
		return
	}
	r.limits[model] = contextTokens
}

// IsValid reports whether the identifier is a registered model.
func (r *ModelRegistry) IsValid(model string) bool {
	_, ok := r.limits[model]
	return ok
}

// Limit returns the context window for a model. The boolean is false
// when the model is absent and the default limit was substituted.
func (r *ModelRegistry) Limit(model string) (int, bool) {
	if limit, ok := r.limits[model]; ok {
		return limit, true
	}
	return r.defaultLimit, false
}

// Models returns the registered identifiers in sorted order.
func (r *ModelRegistry) Models() []string {
	models := make([]string, 0, len(r.limits))
	for model := range r.limits {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}
