// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianResearch/pkg/telemetry"
	"github.com/AleutianAI/AleutianResearch/services/analysis"
	"github.com/AleutianAI/AleutianResearch/services/analysis/library"
	"github.com/AleutianAI/AleutianResearch/services/analyst/datatypes"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var pipelineTracer = otel.Tracer("research.analyst.handlers")

// runTarget is a resolved pipeline: its display name and compiled
// stages.
type runTarget struct {
	name   string
	stages []analysis.StageConfig
}

// resolveRunTarget turns a run request into compiled stages, either by
// library lookup or by compiling the inline definition. A non-zero
// status means resolution failed and the message should go to the
// client with that status.
func resolveRunTarget(lib *library.Library, req *datatypes.PipelineRunRequest) (*runTarget, int, string) {
	if req.Pipeline != "" {
		entry, ok := lib.Get(req.Pipeline)
		if !ok {
			return nil, http.StatusNotFound, fmt.Sprintf("pipeline %q not found", req.Pipeline)
		}
		return &runTarget{name: entry.Def.Name, stages: entry.Stages}, 0, ""
	}

	def, err := library.ParseDefinition([]byte(req.Definition))
	if err != nil {
		return nil, http.StatusBadRequest, err.Error()
	}
	stages, err := def.Compile(analysis.EngineVersion)
	if err != nil {
		return nil, http.StatusBadRequest, err.Error()
	}
	name := def.Name
	if name == "" {
		name = "inline"
	}
	return &runTarget{name: name, stages: stages}, 0, ""
}

// HandleRunPipeline serves POST /v1/pipelines/run: executes a named
// library pipeline or an inline definition against an initial input.
func HandleRunPipeline(runner *analysis.Pipeline, lib *library.Library, metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := pipelineTracer.Start(c.Request.Context(), "HandleRunPipeline")
		defer span.End()
		started := time.Now()

		var req datatypes.PipelineRunRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "bad request body")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "validation failed")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		target, status, message := resolveRunTarget(lib, &req)
		if status != 0 {
			span.SetStatus(codes.Error, "pipeline resolution failed")
			c.JSON(status, gin.H{"error": message})
			return
		}

		span.SetAttributes(
			attribute.String("pipeline", target.name),
			attribute.Int("stages", len(target.stages)),
		)
		slog.Info("Starting pipeline run", "pipeline", target.name, "stages", len(target.stages))

		result, err := runner.Run(ctx, target.stages, req.Input)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "run failed")
			status, message := statusForEngineError(err)
			slog.Error("Pipeline run failed", "pipeline", target.name, "status", status, "error", err)
			recordPipelineRun(ctx, metrics, target.name, "error", time.Since(started))
			c.JSON(status, gin.H{"error": message})
			return
		}

		recordPipelineRun(ctx, metrics, target.name, "success", time.Since(started))
		slog.Info("Pipeline run complete", "pipeline", target.name, "run_id", result.RunID,
			"duration_ms", time.Since(started).Milliseconds())
		c.JSON(http.StatusOK, datatypes.NewPipelineRunResponse(target.name, result))
	}
}

// HandleListPipelines serves GET /v1/pipelines: the loaded library
// definitions and the engine version they are gated against.
func HandleListPipelines(lib *library.Library) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, datatypes.NewPipelineListResponse(lib.List()))
	}
}

func recordPipelineRun(ctx context.Context, metrics *telemetry.Metrics, pipeline, status string, elapsed time.Duration) {
	if metrics == nil {
		return
	}
	metrics.PipelineRunsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("status", status),
	))
	metrics.PipelineRunDuration.Record(ctx, elapsed.Seconds())
}
