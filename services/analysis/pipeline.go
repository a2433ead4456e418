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
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// EngineVersion is the pipeline engine's semantic version. Pipeline
// definitions declare the minimum engine version they require.
const EngineVersion = "1.4.0"

// ===== Run Results =====

// StageTrace records one executed stage for the run trace.
type StageTrace struct {
	Name       string    `json:"name"`
	Type       StageType `json:"stage_type"`
	DurationMs int64     `json:"duration_ms"`
}

// RunResult is the complete outcome of a pipeline run.
//
// # Description
//
// A RunResult exists only for runs where every stage succeeded; a failed
// run returns an error and no partial result set. Results holds each
// stage's value keyed by stage name, StageOrder preserves declaration
// order, and Warnings collects the recoverable degradations recorded
// while rendering and parsing.
type RunResult struct {
	RunID        string           `json:"run_id"`
	InitialInput string           `json:"initial_input"`
	StageOrder   []string         `json:"stage_order"`
	Results      map[string]Value `json:"results"`
	Warnings     []Warning        `json:"warnings,omitempty"`
	Traces       []StageTrace     `json:"traces"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  time.Time        `json:"completed_at"`
}

// FinalOutput returns the last stage's result rendered as text. This is
// what most callers treat as "the answer" of a pipeline.
func (r *RunResult) FinalOutput() string {
	if len(r.StageOrder) == 0 {
		return ""
	}
	last := r.Results[r.StageOrder[len(r.StageOrder)-1]]
	return last.String()
}

// ===== Observer =====

// RunObserver receives progress callbacks during a pipeline run.
//
// # Description
//
// Observers back live progress surfaces such as the websocket stream.
// Callbacks fire synchronously on the run's goroutine, so observers must
// return quickly and must not call back into the run.
type RunObserver interface {
	// StageStarted fires before a stage executes. Index is zero-based.
	StageStarted(runID string, stage StageConfig, index, total int)

	// StageCompleted fires after a stage succeeds, with its result.
	StageCompleted(runID string, stage StageConfig, result Value, durationMs int64)

	// RunCompleted fires exactly once per run, with the run's final
	// error or nil on success.
	RunCompleted(runID string, err error)
}

// ===== Pipeline =====

// Pipeline drives an ordered list of stage configurations to completion.
//
// # Description
//
// Stages execute strictly in declared order; each stage's templates may
// reference only stages that already completed. A failing stage aborts
// the run and the partial context accumulated so far is discarded, so a
// run is all-or-nothing from the caller's perspective. Cancellation is
// honored at every stage boundary, and in-flight external calls observe
// the same context.
//
// # Thread Safety
//
// Pipeline is safe for concurrent use; every run owns its own Context.
//
// # Example
//
//	pipeline, err := analysis.NewPipeline(executor, analysis.PipelineOptions{})
//	result, err := pipeline.Run(ctx, stages, "Compare NVDA and AMD exposure to HBM supply")
type Pipeline struct {
	executor *Executor
	logger   *slog.Logger
}

// PipelineOptions carries optional Pipeline collaborators.
type PipelineOptions struct {
	// Logger for run lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewPipeline creates a Pipeline around an Executor.
func NewPipeline(executor *Executor, opts PipelineOptions) (*Pipeline, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{executor: executor, logger: logger}, nil
}

// Run executes the stages in order against a fresh Context.
//
// # Inputs
//
//   - ctx: Context for cancellation, checked at each stage boundary and
//     observed by in-flight external calls.
//   - stages: The ordered stage configurations. Validated before any
//     external call is made.
//   - initialInput: The user's original input, available to every
//     stage's templates as {initial_input}.
//
// # Outputs
//
//   - *RunResult: The full trace on success.
//   - error: The first stage's failure, wrapped with the stage name. The
//     typed taxonomy survives wrapping, so errors.As and the Is* helpers
//     work on the returned error.
func (p *Pipeline) Run(ctx context.Context, stages []StageConfig, initialInput string) (*RunResult, error) {
	return p.RunObserved(ctx, stages, initialInput, nil)
}

// RunObserved is Run with per-run progress callbacks. A nil observer is
// valid and equivalent to Run.
func (p *Pipeline) RunObserved(ctx context.Context, stages []StageConfig, initialInput string, observer RunObserver) (*RunResult, error) {
	ctx, span := tracer.Start(ctx, "PipelineRun")
	defer span.End()

	normalized, err := normalizeStages(stages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid pipeline")
		return nil, err
	}

	runID := uuid.NewString()
	span.SetAttributes(attribute.String("run_id", runID), attribute.Int("stages", len(normalized)))
	logger := p.logger.With("runID", runID)
	pc := NewContext(initialInput, logger)
	startedAt := time.Now().UTC()
	traces := make([]StageTrace, 0, len(normalized))

	logger.Info("Pipeline run starting", "stages", len(normalized))
	for i, cfg := range normalized {
		if err := ctx.Err(); err != nil {
			logger.Warn("Pipeline run canceled", "completedStages", i)
			span.SetStatus(codes.Error, "canceled")
			notifyRunCompleted(observer, runID, err)
			return nil, err
		}

		notifyStageStarted(observer, runID, cfg, i, len(normalized))
		stageStart := time.Now()
		value, err := p.executor.ExecuteStage(ctx, cfg, pc)
		durationMs := time.Since(stageStart).Milliseconds()
		if err != nil {
			wrapped := fmt.Errorf("stage %q: %w", cfg.Name, err)
			logger.Error("Stage failed, aborting run",
				"stage", cfg.Name,
				"stageType", cfg.Type.String(),
				"completedStages", i,
				"error", err)
			span.RecordError(wrapped)
			span.SetStatus(codes.Error, "stage failed")
			notifyRunCompleted(observer, runID, wrapped)
			return nil, wrapped
		}

		if err := pc.Append(cfg.Name, value); err != nil {
			wrapped := fmt.Errorf("stage %q: %w", cfg.Name, err)
			span.RecordError(wrapped)
			span.SetStatus(codes.Error, "context append failed")
			notifyRunCompleted(observer, runID, wrapped)
			return nil, wrapped
		}

		traces = append(traces, StageTrace{Name: cfg.Name, Type: cfg.Type, DurationMs: durationMs})
		notifyStageCompleted(observer, runID, cfg, value, durationMs)
		logger.Debug("Stage completed", "stage", cfg.Name, "durationMs", durationMs)
	}

	result := &RunResult{
		RunID:        runID,
		InitialInput: initialInput,
		StageOrder:   pc.StageNames(),
		Results:      pc.Results(),
		Warnings:     pc.Warnings(),
		Traces:       traces,
		StartedAt:    startedAt,
		CompletedAt:  time.Now().UTC(),
	}
	logger.Info("Pipeline run complete",
		"stages", len(normalized),
		"warnings", len(result.Warnings),
		"durationMs", result.CompletedAt.Sub(startedAt).Milliseconds())
	notifyRunCompleted(observer, runID, nil)
	return result, nil
}

// normalizeStages applies defaults and validates the stage list before
// any external call is made. Name collisions across stages are caught
// here; collisions with reserved names are caught by each config's
// Validate.
func normalizeStages(stages []StageConfig) ([]StageConfig, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("pipeline requires at least one stage")
	}
	normalized := make([]StageConfig, len(stages))
	seen := make(map[string]bool, len(stages))
	for i := range stages {
		cfg := stages[i]
		cfg.EnsureDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		if seen[cfg.Name] {
			return nil, fmt.Errorf("duplicate stage name %q", cfg.Name)
		}
		seen[cfg.Name] = true
		normalized[i] = cfg
	}
	return normalized, nil
}

func notifyStageStarted(observer RunObserver, runID string, cfg StageConfig, index, total int) {
	if observer != nil {
		observer.StageStarted(runID, cfg, index, total)
	}
}

func notifyStageCompleted(observer RunObserver, runID string, cfg StageConfig, value Value, durationMs int64) {
	if observer != nil {
		observer.StageCompleted(runID, cfg, value, durationMs)
	}
}

func notifyRunCompleted(observer RunObserver, runID string, err error) {
	if observer != nil {
		observer.RunCompleted(runID, err)
	}
}
