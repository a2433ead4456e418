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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===== Registry =====

// TestNewModelRegistry_SeedsShippedTable verifies the registry comes up
// with the shipped model table and rejects identifiers outside it.
func TestNewModelRegistry_SeedsShippedTable(t *testing.T) {
	reg := NewModelRegistry()

	assert.True(t, reg.IsValid("gpt-4o"), "shipped hosted model should be valid")
	assert.True(t, reg.IsValid("llama3.1:8b"), "shipped local model should be valid")
	assert.False(t, reg.IsValid("gpt-7-hyperdrive"), "unknown identifier must not validate")

	limit, known := reg.Limit("gpt-4o")
	assert.True(t, known, "shipped model should resolve its own limit")
	assert.Equal(t, 128000, limit, "gpt-4o window size")
}

// TestModelRegistry_Register verifies entries can be added and
// overridden, and that degenerate inputs are ignored.
func TestModelRegistry_Register(t *testing.T) {
	reg := NewModelRegistry()

	reg.Register("qwen3:32b", 40960)
	assert.True(t, reg.IsValid("qwen3:32b"), "registered local model should be valid")
	limit, known := reg.Limit("qwen3:32b")
	assert.True(t, known)
	assert.Equal(t, 40960, limit)

	reg.Register("gpt-4", 100)
	limit, _ = reg.Limit("gpt-4")
	assert.Equal(t, 100, limit, "re-registration should override the shipped entry")

	reg.Register("", 1000)
	assert.False(t, reg.IsValid(""), "empty identifier must be ignored")
	reg.Register("broken", 0)
	assert.False(t, reg.IsValid("broken"), "non-positive window must be ignored")
}

// TestModelRegistry_Limit_DefaultSubstitution verifies an absent model
// is measured against the default window rather than waved through.
func TestModelRegistry_Limit_DefaultSubstitution(t *testing.T) {
	reg := NewModelRegistry()

	limit, known := reg.Limit("never-registered")
	assert.False(t, known, "absent model should report known=false")
	assert.Equal(t, DefaultContextTokens, limit, "absent model should get the default window")
}

// TestModelRegistry_Models verifies the listing is sorted and tracks
// registration.
func TestModelRegistry_Models(t *testing.T) {
	reg := NewModelRegistry()
	reg.Register("aaa-first", 2048)

	models := reg.Models()
	require.NotEmpty(t, models)
	assert.True(t, sort.StringsAreSorted(models), "listing should be sorted")
	assert.Contains(t, models, "aaa-first")
	assert.Contains(t, models, "gpt-4o")
}

// ===== Token accounting =====

// TestCountTokens verifies the counter's basic shape without pinning
// tokenizer internals: empty is zero, content is positive, and more
// content never counts lower.
func TestCountTokens(t *testing.T) {
	assert.Equal(t, 0, CountTokens("gpt-4o", ""), "empty text counts as zero")

	short := CountTokens("gpt-4o", "What is the revenue outlook for NVDA?")
	assert.Greater(t, short, 0, "non-empty text should count positive")

	long := CountTokens("gpt-4o", strings.Repeat("What is the revenue outlook for NVDA? ", 50))
	assert.Greater(t, long, short, "repeated text should count higher")
}

// TestCountTokens_UnknownModelStillCounts verifies counting does not
// fail for identifiers without a native encoding.
func TestCountTokens_UnknownModelStillCounts(t *testing.T) {
	got := CountTokens("qwen3:14b", "portfolio risk decomposition")
	assert.Greater(t, got, 0, "fallback encoding should still produce a count")
}

// TestModelRegistry_CheckLimit exercises the exceeds contract by
// calibrating a registered window against the counter itself, so the
// assertions hold regardless of the exact tokenizer output.
func TestModelRegistry_CheckLimit(t *testing.T) {
	const text = "Summarize the last four quarters of capex guidance."
	measured := CountTokens("probe-model", text)
	require.Greater(t, measured, 1, "calibration text must span multiple tokens")

	reg := NewModelRegistry()
	reg.Register("probe-model", measured)

	tokens, limit, exceeds := reg.CheckLimit(text, "probe-model")
	assert.Equal(t, measured, tokens)
	assert.Equal(t, measured, limit)
	assert.False(t, exceeds, "a prompt exactly at the window must fit")

	reg.Register("probe-model", measured-1)
	tokens, limit, exceeds = reg.CheckLimit(text, "probe-model")
	assert.Equal(t, measured, tokens)
	assert.Equal(t, measured-1, limit)
	assert.True(t, exceeds, "one token over the window must exceed")
}

// TestModelRegistry_CheckLimit_AbsentModelUsesDefault verifies the
// check stays meaningful for unlisted models.
func TestModelRegistry_CheckLimit_AbsentModelUsesDefault(t *testing.T) {
	reg := NewModelRegistry()

	tokens, limit, exceeds := reg.CheckLimit("a short probe", "ghost-model")
	assert.Greater(t, tokens, 0)
	assert.Equal(t, DefaultContextTokens, limit, "absent model should be measured against the default window")
	assert.False(t, exceeds)

	huge := strings.Repeat("quarterly earnings call transcript ", 2000)
	tokens, limit, exceeds = reg.CheckLimit(huge, "ghost-model")
	assert.Equal(t, DefaultContextTokens, limit)
	assert.Greater(t, tokens, limit, "the probe text is built to overflow the default window")
	assert.True(t, exceeds)
}
