// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the Aleutian Research service.
//
// # Description
//
// Provides standard counters and histograms for answers, pipeline runs,
// retrieval operations, and LLM backend calls. All metrics use the
// "research_" prefix for consistent naming.
//
// # Thread Safety
//
// Safe for concurrent use after creation.
type Metrics struct {
	// --- Answer Metrics ---

	// AnswersTotal counts ensemble answers by status.
	AnswersTotal metric.Int64Counter

	// AnswerDuration records end-to-end answer latency in seconds.
	AnswerDuration metric.Float64Histogram

	// AnswerBudgetRetries counts answers that needed the retrieval
	// budget halved to fit the model window.
	AnswerBudgetRetries metric.Int64Counter

	// --- Pipeline Metrics ---

	// PipelineRunsTotal counts pipeline runs by pipeline name and status.
	PipelineRunsTotal metric.Int64Counter

	// PipelineRunDuration records full pipeline run duration in seconds.
	PipelineRunDuration metric.Float64Histogram

	// StageExecutionsTotal counts stage executions by stage type and status.
	StageExecutionsTotal metric.Int64Counter

	// StageDuration records per-stage execution duration in seconds.
	StageDuration metric.Float64Histogram

	// --- Retrieval Metrics ---

	// RetrievalsTotal counts retrieval operations by retriever and status.
	RetrievalsTotal metric.Int64Counter

	// RetrievalDuration records retrieval operation duration in seconds.
	RetrievalDuration metric.Float64Histogram

	// --- LLM Metrics ---

	// LLMCallsTotal counts backend completion calls by backend and status.
	LLMCallsTotal metric.Int64Counter

	// LLMCallDuration records backend completion latency in seconds.
	LLMCallDuration metric.Float64Histogram

	// --- Ingest Metrics ---

	// DocumentsIngestedTotal counts documents ingested by source.
	DocumentsIngestedTotal metric.Int64Counter

	// ChunksIndexedTotal counts chunks written to the vector store.
	ChunksIndexedTotal metric.Int64Counter

	// --- Pipeline Library ---

	// PipelineLibrarySize tracks the number of loaded pipeline
	// definitions. Registered via RegisterPipelineLibrarySize.
	PipelineLibrarySize metric.Int64ObservableGauge

	// --- Error Metrics ---

	// ErrorsTotal counts errors by type and component.
	ErrorsTotal metric.Int64Counter
}

// NewMetrics creates a Metrics instance with all instruments registered
// against the provided meter. Returns an error if any registration
// fails.
//
// # Example
//
//	meter := otel.Meter("research")
//	metrics, err := telemetry.NewMetrics(meter)
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
//	metrics.AnswersTotal.Add(ctx, 1, ...)
//
// # Thread Safety
//
// Safe for concurrent use after creation.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	// --- Answer Metrics ---
	m.AnswersTotal, err = meter.Int64Counter(
		"research_answers_total",
		metric.WithDescription("Total ensemble answers"),
		metric.WithUnit("{answer}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create answers_total: %w", err)
	}

	m.AnswerDuration, err = meter.Float64Histogram(
		"research_answer_duration_seconds",
		metric.WithDescription("End-to-end answer latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, fmt.Errorf("create answer_duration: %w", err)
	}

	m.AnswerBudgetRetries, err = meter.Int64Counter(
		"research_answer_budget_retries_total",
		metric.WithDescription("Answers that needed the retrieval budget halved"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create answer_budget_retries: %w", err)
	}

	// --- Pipeline Metrics ---
	m.PipelineRunsTotal, err = meter.Int64Counter(
		"research_pipeline_runs_total",
		metric.WithDescription("Total pipeline runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline_runs_total: %w", err)
	}

	m.PipelineRunDuration, err = meter.Float64Histogram(
		"research_pipeline_run_duration_seconds",
		metric.WithDescription("Full pipeline run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline_run_duration: %w", err)
	}

	m.StageExecutionsTotal, err = meter.Int64Counter(
		"research_stage_executions_total",
		metric.WithDescription("Total stage executions"),
		metric.WithUnit("{stage}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage_executions_total: %w", err)
	}

	m.StageDuration, err = meter.Float64Histogram(
		"research_stage_duration_seconds",
		metric.WithDescription("Per-stage execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage_duration: %w", err)
	}

	// --- Retrieval Metrics ---
	m.RetrievalsTotal, err = meter.Int64Counter(
		"research_retrievals_total",
		metric.WithDescription("Total retrieval operations"),
		metric.WithUnit("{retrieval}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create retrievals_total: %w", err)
	}

	m.RetrievalDuration, err = meter.Float64Histogram(
		"research_retrieval_duration_seconds",
		metric.WithDescription("Retrieval operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("create retrieval_duration: %w", err)
	}

	// --- LLM Metrics ---
	m.LLMCallsTotal, err = meter.Int64Counter(
		"research_llm_calls_total",
		metric.WithDescription("Total LLM backend calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create llm_calls_total: %w", err)
	}

	m.LLMCallDuration, err = meter.Float64Histogram(
		"research_llm_call_duration_seconds",
		metric.WithDescription("LLM backend call latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, fmt.Errorf("create llm_call_duration: %w", err)
	}

	// --- Ingest Metrics ---
	m.DocumentsIngestedTotal, err = meter.Int64Counter(
		"research_documents_ingested_total",
		metric.WithDescription("Total documents ingested"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create documents_ingested_total: %w", err)
	}

	m.ChunksIndexedTotal, err = meter.Int64Counter(
		"research_chunks_indexed_total",
		metric.WithDescription("Total chunks written to the vector store"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create chunks_indexed_total: %w", err)
	}

	// Note: PipelineLibrarySize requires a callback registration, handled separately

	// --- Error Metrics ---
	m.ErrorsTotal, err = meter.Int64Counter(
		"research_errors_total",
		metric.WithDescription("Total errors by type and component"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors_total: %w", err)
	}

	return m, nil
}

// RegisterPipelineLibrarySize registers a callback for the pipeline
// library size gauge.
//
// # Description
//
// Sets up an observable gauge that reports how many pipeline
// definitions are currently loaded. The callback is invoked each time
// metrics are scraped.
//
// # Inputs
//
//   - meter: The OTel meter to use for registration.
//   - sizeFunc: A function that returns the current definition count.
//
// # Outputs
//
//   - metric.Registration: Registration handle for cleanup.
//   - error: Non-nil if registration fails.
func (m *Metrics) RegisterPipelineLibrarySize(meter metric.Meter, sizeFunc func() int64) (metric.Registration, error) {
	var err error
	m.PipelineLibrarySize, err = meter.Int64ObservableGauge(
		"research_pipeline_library_size",
		metric.WithDescription("Number of loaded pipeline definitions"),
		metric.WithUnit("{definition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline_library_size: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.PipelineLibrarySize, sizeFunc())
		return nil
	}, m.PipelineLibrarySize)
}
