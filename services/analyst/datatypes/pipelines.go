// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains request and response types for pipeline runs and
// the websocket progress stream.
package datatypes

import (
	"fmt"

	"github.com/AleutianAI/AleutianResearch/services/analysis"
	"github.com/AleutianAI/AleutianResearch/services/analysis/library"
)

// =============================================================================
// Pipeline Run Types
// =============================================================================

// PipelineRunRequest represents a pipeline run request body.
//
// # Description
//
// A run targets either a named pipeline from the loaded library or an
// inline YAML definition, never both. The same shape is read off the
// websocket progress stream.
//
// # Fields
//
//   - Pipeline: Name of a library pipeline to run.
//   - Definition: Inline YAML pipeline definition.
//   - Input: The initial input the first stage's templates see.
type PipelineRunRequest struct {
	Pipeline   string `json:"pipeline,omitempty" validate:"omitempty,max=128"`
	Definition string `json:"definition,omitempty" validate:"omitempty,maxbytes=262144"`
	Input      string `json:"input" validate:"required,maxbytes=65536"`
}

// Validate checks the struct tags and the pipeline/definition
// exclusivity rule.
func (r *PipelineRunRequest) Validate() error {
	if err := apiValidate.Struct(r); err != nil {
		return err
	}
	if (r.Pipeline == "") == (r.Definition == "") {
		return fmt.Errorf("exactly one of pipeline or definition is required")
	}
	return nil
}

// PipelineRunResponse represents a completed pipeline run.
type PipelineRunResponse struct {
	RunID       string                    `json:"run_id"`
	Pipeline    string                    `json:"pipeline"`
	FinalOutput string                    `json:"final_output"`
	StageOrder  []string                  `json:"stage_order"`
	Results     map[string]analysis.Value `json:"results"`
	Warnings    []analysis.Warning        `json:"warnings,omitempty"`
	Traces      []analysis.StageTrace     `json:"traces"`
	DurationMs  int64                     `json:"duration_ms"`
}

// NewPipelineRunResponse builds the response from an engine run result.
func NewPipelineRunResponse(pipeline string, result *analysis.RunResult) *PipelineRunResponse {
	return &PipelineRunResponse{
		RunID:       result.RunID,
		Pipeline:    pipeline,
		FinalOutput: result.FinalOutput(),
		StageOrder:  result.StageOrder,
		Results:     result.Results,
		Warnings:    result.Warnings,
		Traces:      result.Traces,
		DurationMs:  result.CompletedAt.Sub(result.StartedAt).Milliseconds(),
	}
}

// PipelineListResponse lists the loaded pipeline definitions.
type PipelineListResponse struct {
	Pipelines     []library.Summary `json:"pipelines"`
	Count         int               `json:"count"`
	EngineVersion string            `json:"engine_version"`
}

// NewPipelineListResponse builds the listing from library summaries.
func NewPipelineListResponse(pipelines []library.Summary) *PipelineListResponse {
	return &PipelineListResponse{
		Pipelines:     pipelines,
		Count:         len(pipelines),
		EngineVersion: analysis.EngineVersion,
	}
}

// =============================================================================
// Websocket Progress Events
// =============================================================================

// Websocket event types sent while a pipeline runs.
const (
	EventConnected      = "connected"
	EventStageStarted   = "stage_started"
	EventStageCompleted = "stage_completed"
	EventRunCompleted   = "run_completed"
	EventError          = "error"
)

// PipelineEvent is one message on the websocket progress stream.
//
// The populated fields depend on Type: connected carries SessionID,
// stage events carry the stage fields, run_completed carries RunID and
// Output, and error carries Error.
type PipelineEvent struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	RunID      string `json:"run_id,omitempty"`
	Stage      string `json:"stage,omitempty"`
	StageType  string `json:"stage_type,omitempty"`
	Index      int    `json:"index,omitempty"`
	Total      int    `json:"total,omitempty"`
	Output     string `json:"output,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}
