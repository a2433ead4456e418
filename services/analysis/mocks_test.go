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
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianResearch/services/llm"
	"github.com/AleutianAI/AleutianResearch/services/retrieval"
)

// =============================================================================
// Test Doubles
// =============================================================================
//
// Hand-rolled mocks with call recording so tests can assert not just
// outcomes but which collaborators were consulted, how often, and with
// which arguments.

type retrieveCall struct {
	query string
	k     int
}

// mockRetriever returns either a fixed passage list or, by default, k
// generated passages of ~130 bytes each so token-budget tests can make
// prompts grow with k.
type mockRetriever struct {
	mu       sync.Mutex
	name     string
	passages []retrieval.Passage
	err      error
	calls    []retrieveCall
}

func (m *mockRetriever) Name() string { return m.name }

func (m *mockRetriever) Retrieve(ctx context.Context, query string, k int) ([]retrieval.Passage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, retrieveCall{query: query, k: k})
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	if m.passages != nil {
		return m.passages, nil
	}
	out := make([]retrieval.Passage, k)
	for i := range out {
		out[i] = retrieval.Passage{
			Content: fmt.Sprintf("%s passage %d: %s", m.name, i, strings.Repeat("filler data ", 10)),
			Source:  fmt.Sprintf("%s-%d.txt", m.name, i),
			Score:   1,
		}
	}
	return out, nil
}

func (m *mockRetriever) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type completeCall struct {
	prompt string
	model  string
	params llm.GenerationParams
}

type searchCall struct {
	prompt string
	model  string
}

// mockCompletion implements llm.CompletionClient with canned responses
// and full call recording. Safe for the parallel search fan-out tests.
type mockCompletion struct {
	mu             sync.Mutex
	response       string
	err            error
	searchResponse string
	searchErr      error
	searchFn       func(ctx context.Context, prompt, model string) (string, error)
	completeCalls  []completeCall
	searchCalls    []searchCall
}

func (m *mockCompletion) Complete(ctx context.Context, prompt, model string, params llm.GenerationParams) (string, error) {
	m.mu.Lock()
	m.completeCalls = append(m.completeCalls, completeCall{prompt: prompt, model: model, params: params})
	m.mu.Unlock()

	if m.err != nil {
		return "", m.err
	}
	if m.response == "" {
		return "mock answer", nil
	}
	return m.response, nil
}

func (m *mockCompletion) CompleteWithSearch(ctx context.Context, prompt, model string) (string, error) {
	m.mu.Lock()
	m.searchCalls = append(m.searchCalls, searchCall{prompt: prompt, model: model})
	m.mu.Unlock()

	if m.searchFn != nil {
		return m.searchFn(ctx, prompt, model)
	}
	if m.searchErr != nil {
		return "", m.searchErr
	}
	if m.searchResponse == "" {
		return "mock search result", nil
	}
	return m.searchResponse, nil
}

// =============================================================================
// Fixtures
// =============================================================================

// testRegistry returns the default registry plus "tiny-model" with a
// 50-token limit for forcing budget overflows.
func testRegistry() *llm.ModelRegistry {
	registry := llm.NewModelRegistry()
	registry.Register("tiny-model", 50)
	return registry
}

type testRig struct {
	keyword    *mockRetriever
	vector     *mockRetriever
	completion *mockCompletion
	registry   *llm.ModelRegistry
	ensemble   *Ensemble
	executor   *Executor
	pipeline   *Pipeline
}

// newTestRig wires mocks through a real Ensemble, Executor, and Pipeline.
func newTestRig(t *testing.T) *testRig {
	t.Helper()

	rig := &testRig{
		keyword:    &mockRetriever{name: "keyword"},
		vector:     &mockRetriever{name: "vector"},
		completion: &mockCompletion{},
		registry:   testRegistry(),
	}

	var err error
	rig.ensemble, err = NewEnsemble(rig.keyword, rig.vector, rig.completion, rig.registry)
	require.NoError(t, err)
	rig.executor, err = NewExecutor(rig.completion, rig.ensemble, rig.registry, ExecutorConfig{})
	require.NoError(t, err)
	rig.pipeline, err = NewPipeline(rig.executor, PipelineOptions{})
	require.NoError(t, err)
	return rig
}
