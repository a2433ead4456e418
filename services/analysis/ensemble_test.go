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
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianResearch/services/retrieval"
)

// =============================================================================
// Validation Tests
// =============================================================================

// TestEnsemble_Answer_UnknownModelFailsBeforeAnyCall verifies the model
// check happens before any retrieval or completion call is made.
func TestEnsemble_Answer_UnknownModelFailsBeforeAnyCall(t *testing.T) {
	rig := newTestRig(t)

	_, err := rig.ensemble.Answer(context.Background(), AnswerRequest{
		Question: "anything",
		Model:    "imaginary-model",
	})

	require.Error(t, err)
	assert.True(t, IsInvalidModel(err))
	assert.Contains(t, err.Error(), "imaginary-model")
	assert.Zero(t, rig.keyword.callCount(), "no retrieval before validation")
	assert.Zero(t, rig.vector.callCount(), "no retrieval before validation")
	assert.Empty(t, rig.completion.completeCalls, "no completion before validation")
	assert.Empty(t, rig.completion.searchCalls, "no search before validation")
}

// TestEnsemble_Answer_RequestValidation verifies malformed requests fail
// with plain validation errors and zero collaborator calls.
func TestEnsemble_Answer_RequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     AnswerRequest
		errPart string
	}{
		{
			name:    "empty question",
			req:     AnswerRequest{Model: "gpt-4o"},
			errPart: "question is required",
		},
		{
			name:    "empty model",
			req:     AnswerRequest{Question: "q"},
			errPart: "model is required",
		},
		{
			name:    "unknown source",
			req:     AnswerRequest{Question: "q", Model: "gpt-4o", PriorityOrder: []string{"carrier_pigeon"}},
			errPart: "unknown knowledge source",
		},
		{
			name:    "duplicate source",
			req:     AnswerRequest{Question: "q", Model: "gpt-4o", PriorityOrder: []string{"internal", "online_search", "online"}},
			errPart: "listed more than once",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newTestRig(t)
			_, err := rig.ensemble.Answer(context.Background(), tt.req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
			assert.Zero(t, rig.keyword.callCount())
			assert.Empty(t, rig.completion.searchCalls)
		})
	}
}

// =============================================================================
// Happy Path Tests
// =============================================================================

// TestEnsemble_Answer_DefaultPriority verifies the full two-source flow:
// retrieval with default sizes, internal-first prompt layout, the
// conflict-resolution rule, and the final completion on the caller's
// model.
func TestEnsemble_Answer_DefaultPriority(t *testing.T) {
	rig := newTestRig(t)
	rig.keyword.passages = []retrieval.Passage{{Content: "keyword fact", Source: "10k.txt", Score: 3}}
	rig.vector.passages = []retrieval.Passage{{Content: "vector fact", Source: "memo.txt", Score: 0.9}}

	result, err := rig.ensemble.Answer(context.Background(), AnswerRequest{
		Question: "What is the lithium supply outlook?",
		Model:    "gpt-4o",
	})

	require.NoError(t, err)
	assert.Equal(t, "mock answer", result.Answer)
	assert.Equal(t, "mock search result", result.OnlineRaw)
	assert.Equal(t, 10, result.KKeywordUsed, "default k applied")
	assert.Equal(t, 10, result.KVectorUsed)
	require.Len(t, result.Sources, 2, "fused internal passages ride along")

	require.Len(t, rig.completion.completeCalls, 1)
	final := rig.completion.completeCalls[0]
	assert.Equal(t, "gpt-4o", final.model)
	require.NotNil(t, final.params.Temperature)
	assert.InDelta(t, 0.2, float64(*final.params.Temperature), 1e-6, "default temperature")

	prompt := final.prompt
	assert.Contains(t, prompt, "Question: What is the lithium supply outlook?")
	internalIdx := strings.Index(prompt, "1. INTERNAL CORPUS")
	onlineIdx := strings.Index(prompt, "2. ONLINE SEARCH")
	require.GreaterOrEqual(t, internalIdx, 0)
	require.Greater(t, onlineIdx, internalIdx, "sources appear under numbered headings in priority order")
	assert.Contains(t, prompt, "keyword fact")
	assert.Contains(t, prompt, "mock search result")
	assert.Contains(t, prompt, "defer to the first-priority source")
	assert.Contains(t, prompt, "Do not fabricate")

	require.Len(t, rig.completion.searchCalls, 1)
	assert.Equal(t, "What is the lithium supply outlook?", rig.completion.searchCalls[0].prompt,
		"online search gets the raw question, not the rendered prompt")
}

// TestEnsemble_Answer_OnlineFirstAliasUsesCallerModel verifies the
// "online_search" alias is accepted, reorders the prompt, and that the
// final answer still goes to the caller-specified model.
func TestEnsemble_Answer_OnlineFirstAliasUsesCallerModel(t *testing.T) {
	rig := newTestRig(t)
	rig.keyword.passages = []retrieval.Passage{}
	rig.vector.passages = []retrieval.Passage{}

	result, err := rig.ensemble.Answer(context.Background(), AnswerRequest{
		Question:      "Which fabs supply HBM3E?",
		Model:         "gpt-4o",
		PriorityOrder: []string{"online_search", "internal"},
	})

	require.NoError(t, err)
	require.Len(t, rig.completion.searchCalls, 1)
	assert.Equal(t, "gpt-4o", rig.completion.searchCalls[0].model)

	require.Len(t, rig.completion.completeCalls, 1)
	assert.Equal(t, "gpt-4o", rig.completion.completeCalls[0].model,
		"final answer must use the caller's model, not a search-internal default")

	prompt := rig.completion.completeCalls[0].prompt
	onlineIdx := strings.Index(prompt, "1. ONLINE SEARCH")
	internalIdx := strings.Index(prompt, "2. INTERNAL CORPUS")
	require.GreaterOrEqual(t, onlineIdx, 0)
	assert.Greater(t, internalIdx, onlineIdx)
	assert.Contains(t, prompt, "(no passages retrieved)")
	assert.NotEmpty(t, result.Answer)
}

// TestEnsemble_Answer_SourceSubsets verifies sources absent from the
// priority order are not consulted at all.
func TestEnsemble_Answer_SourceSubsets(t *testing.T) {
	t.Run("internal only", func(t *testing.T) {
		rig := newTestRig(t)
		rig.keyword.passages = []retrieval.Passage{{Content: "fact", Source: "a"}}
		rig.vector.passages = []retrieval.Passage{}

		result, err := rig.ensemble.Answer(context.Background(), AnswerRequest{
			Question:      "q",
			Model:         "gpt-4o",
			PriorityOrder: []string{SourceInternal},
		})

		require.NoError(t, err)
		assert.Empty(t, rig.completion.searchCalls, "online not in priority order")
		assert.Empty(t, result.OnlineRaw)
		assert.NotContains(t, rig.completion.completeCalls[0].prompt, "ONLINE SEARCH")
	})

	t.Run("online only", func(t *testing.T) {
		rig := newTestRig(t)

		result, err := rig.ensemble.Answer(context.Background(), AnswerRequest{
			Question:      "q",
			Model:         "gpt-4o",
			PriorityOrder: []string{SourceOnline},
		})

		require.NoError(t, err)
		assert.Zero(t, rig.keyword.callCount(), "internal not in priority order")
		assert.Zero(t, rig.vector.callCount())
		assert.Empty(t, result.Sources)
		assert.NotContains(t, rig.completion.completeCalls[0].prompt, "INTERNAL CORPUS")
	})
}

// =============================================================================
// Degradation Tests
// =============================================================================

// TestEnsemble_Answer_OnlineFailureDowngradesToPlaceholder verifies a
// web-search failure becomes the placeholder string instead of failing
// the call.
func TestEnsemble_Answer_OnlineFailureDowngradesToPlaceholder(t *testing.T) {
	rig := newTestRig(t)
	rig.keyword.passages = []retrieval.Passage{{Content: "fact", Source: "a"}}
	rig.vector.passages = []retrieval.Passage{}
	rig.completion.searchErr = errors.New("search backend down")

	result, err := rig.ensemble.Answer(context.Background(), AnswerRequest{
		Question: "q",
		Model:    "gpt-4o",
	})

	require.NoError(t, err, "online search is best-effort")
	assert.Equal(t, "[Online search unavailable: search backend down]", result.OnlineRaw)
	assert.Contains(t, rig.completion.completeCalls[0].prompt, "[Online search unavailable: search backend down]")
}

// TestEnsemble_Answer_RetrievalFailureIsFatal verifies an internal
// retriever failure aborts the call with ExternalCallError before the
// final completion.
func TestEnsemble_Answer_RetrievalFailureIsFatal(t *testing.T) {
	rig := newTestRig(t)
	rig.keyword.err = errors.New("weaviate unreachable")

	_, err := rig.ensemble.Answer(context.Background(), AnswerRequest{
		Question: "q",
		Model:    "gpt-4o",
	})

	require.Error(t, err)
	assert.True(t, IsExternalCall(err))
	assert.Contains(t, err.Error(), "keyword retrieval")
	assert.Empty(t, rig.completion.completeCalls)
}

// TestEnsemble_Answer_CompletionFailureIsFatal verifies a final
// completion failure surfaces as ExternalCallError.
func TestEnsemble_Answer_CompletionFailureIsFatal(t *testing.T) {
	rig := newTestRig(t)
	rig.keyword.passages = []retrieval.Passage{}
	rig.vector.passages = []retrieval.Passage{}
	rig.completion.err = errors.New("rate limited")

	_, err := rig.ensemble.Answer(context.Background(), AnswerRequest{
		Question:      "q",
		Model:         "gpt-4o",
		PriorityOrder: []string{SourceInternal},
	})

	require.Error(t, err)
	assert.True(t, IsExternalCall(err))
	assert.Contains(t, err.Error(), "completion failed")
}

// TestEnsemble_Answer_CancellationNotSwallowed verifies cancellation
// during the online step propagates as a cancellation error rather than
// degrading to the placeholder.
func TestEnsemble_Answer_CancellationNotSwallowed(t *testing.T) {
	rig := newTestRig(t)
	rig.keyword.passages = []retrieval.Passage{}
	rig.vector.passages = []retrieval.Passage{}

	ctx, cancel := context.WithCancel(context.Background())
	rig.completion.searchFn = func(ctx context.Context, prompt, model string) (string, error) {
		cancel()
		return "", ctx.Err()
	}

	_, err := rig.ensemble.Answer(ctx, AnswerRequest{
		Question: "q",
		Model:    "gpt-4o",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, rig.completion.completeCalls, "canceled run must not proceed to the final completion")
}

// =============================================================================
// Budget Reduction Tests
// =============================================================================

// TestEnsemble_Answer_BudgetReductionRetriesExactlyOnce verifies the
// bounded retry: 40/40 over the limit halves to 20/20, and a second
// overflow fails with ContextTooLarge instead of reducing again.
func TestEnsemble_Answer_BudgetReductionRetriesExactlyOnce(t *testing.T) {
	rig := newTestRig(t)

	_, err := rig.ensemble.Answer(context.Background(), AnswerRequest{
		Question: "q",
		Model:    "tiny-model",
		KKeyword: 40,
		KVector:  40,
	})

	require.Error(t, err)
	require.True(t, IsContextTooLarge(err))

	var tooLarge *ContextTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, "tiny-model", tooLarge.Model)
	assert.Equal(t, 50, tooLarge.Limit)
	assert.Greater(t, tooLarge.Tokens, tooLarge.Limit)
	assert.Equal(t, 20, tooLarge.KKeyword, "error reports the reduced sizes attempted")
	assert.Equal(t, 20, tooLarge.KVector)

	require.Len(t, rig.keyword.calls, 2, "one original attempt plus exactly one reduction")
	assert.Equal(t, 40, rig.keyword.calls[0].k)
	assert.Equal(t, 20, rig.keyword.calls[1].k)
	require.Len(t, rig.vector.calls, 2)
	assert.Equal(t, 40, rig.vector.calls[0].k)
	assert.Equal(t, 20, rig.vector.calls[1].k)
	assert.Empty(t, rig.completion.completeCalls, "no final completion on an over-budget prompt")
}

// TestEnsemble_Answer_AtFloorFailsWithoutRetry verifies that when both
// sizes already sit at the floor, no pointless reduction pass runs.
func TestEnsemble_Answer_AtFloorFailsWithoutRetry(t *testing.T) {
	rig := newTestRig(t)

	_, err := rig.ensemble.Answer(context.Background(), AnswerRequest{
		Question: "q",
		Model:    "tiny-model",
		KKeyword: 5,
		KVector:  5,
	})

	require.Error(t, err)
	assert.True(t, IsContextTooLarge(err))
	assert.Equal(t, 1, rig.keyword.callCount(), "halving 5/5 changes nothing, so no retry")
}

// TestEnsemble_Answer_AutoReduceDisabled verifies the flag gates the
// retry entirely.
func TestEnsemble_Answer_AutoReduceDisabled(t *testing.T) {
	rig := newTestRig(t)
	disabled := false

	_, err := rig.ensemble.Answer(context.Background(), AnswerRequest{
		Question:          "q",
		Model:             "tiny-model",
		KKeyword:          40,
		KVector:           40,
		AutoReduceOnLimit: &disabled,
	})

	require.Error(t, err)
	var tooLarge *ContextTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, 40, tooLarge.KKeyword, "no reduction happened")
	assert.Equal(t, 1, rig.keyword.callCount())
}

// TestHalveFloor verifies the halving arithmetic at and around the floor.
func TestHalveFloor(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{40, 20},
		{20, 10},
		{11, 5},
		{10, 5},
		{7, 5},
		{5, 5},
		{1, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, halveFloor(tt.in), "halveFloor(%d)", tt.in)
	}
}

// TestEnsemble_Answer_DoesNotMutateCallerRequest verifies defaults and
// alias normalization operate on a copy of the caller's priority slice.
func TestEnsemble_Answer_DoesNotMutateCallerRequest(t *testing.T) {
	rig := newTestRig(t)
	rig.keyword.passages = []retrieval.Passage{}
	rig.vector.passages = []retrieval.Passage{}
	priority := []string{"online_search", "internal"}

	_, err := rig.ensemble.Answer(context.Background(), AnswerRequest{
		Question:      "q",
		Model:         "gpt-4o",
		PriorityOrder: priority,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"online_search", "internal"}, priority,
		"caller's slice must keep its original spelling")
}
