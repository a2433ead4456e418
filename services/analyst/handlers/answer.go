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
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianResearch/pkg/telemetry"
	"github.com/AleutianAI/AleutianResearch/services/analysis"
	"github.com/AleutianAI/AleutianResearch/services/analyst/cache"
	"github.com/AleutianAI/AleutianResearch/services/analyst/datatypes"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var answerTracer = otel.Tracer("research.analyst.handlers")

// HandleAnswer serves POST /v1/answer: ensemble question answering with
// a TTL-bounded answer cache in front of the engine.
//
// # Description
//
// Identical requests inside the cache TTL are served from BadgerDB with
// Cached set on the response; no_cache bypasses the lookup but still
// refreshes the entry. Engine failures map onto the HTTP taxonomy via
// statusForEngineError.
func HandleAnswer(ensemble *analysis.Ensemble, answers *cache.Cache, metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := answerTracer.Start(c.Request.Context(), "HandleAnswer")
		defer span.End()
		started := time.Now()

		var req datatypes.AnswerRequest
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

		engineReq := req.EngineRequest()
		engineReq.EnsureDefaults()
		if err := engineReq.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "validation failed")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		span.SetAttributes(attribute.String("model", req.Model))
		slog.Info("Received answer request", "model", req.Model, "no_cache", req.NoCache)

		key := cache.Fingerprint(req.CacheFields()...)
		if answers != nil && !req.NoCache {
			if resp, ok := cachedAnswer(ctx, answers, key); ok {
				span.SetAttributes(attribute.Bool("cache_hit", true))
				recordAnswer(ctx, metrics, "cache_hit", time.Since(started))
				c.JSON(http.StatusOK, resp)
				return
			}
		}

		result, err := ensemble.Answer(ctx, engineReq)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "answer failed")
			status, message := statusForEngineError(err)
			slog.Error("Answer request failed", "model", req.Model, "status", status, "error", err)
			recordAnswer(ctx, metrics, "error", time.Since(started))
			c.JSON(status, gin.H{"error": message})
			return
		}

		elapsed := time.Since(started)
		resp := datatypes.NewAnswerResponse(req.Model, result, elapsed.Milliseconds())
		recordAnswer(ctx, metrics, "success", elapsed)
		if metrics != nil && result.KKeywordUsed < engineReq.KKeyword {
			metrics.AnswerBudgetRetries.Add(ctx, 1)
		}

		if answers != nil {
			// Cache writes are best effort and happen off the request path.
			go storeAnswer(answers, key, resp)
		}

		slog.Info("Answer request complete", "model", req.Model,
			"duration_ms", elapsed.Milliseconds(), "sources", len(resp.Sources))
		c.JSON(http.StatusOK, resp)
	}
}

// cachedAnswer loads and decodes a cache entry. Decode failures count
// as misses; the entry gets overwritten by the fresh answer.
func cachedAnswer(ctx context.Context, answers *cache.Cache, key string) (*datatypes.AnswerResponse, bool) {
	raw, ok, err := answers.Get(ctx, key)
	if err != nil {
		slog.Warn("Answer cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var resp datatypes.AnswerResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		slog.Warn("Answer cache entry is corrupt, ignoring", "error", err)
		return nil, false
	}
	resp.Cached = true
	return &resp, true
}

func storeAnswer(answers *cache.Cache, key string, resp *datatypes.AnswerResponse) {
	raw, err := json.Marshal(resp)
	if err != nil {
		slog.Warn("Failed to encode answer for caching", "error", err)
		return
	}
	if err := answers.Set(context.Background(), key, raw); err != nil {
		slog.Warn("Failed to cache answer", "error", err)
	}
}

func recordAnswer(ctx context.Context, metrics *telemetry.Metrics, status string, elapsed time.Duration) {
	if metrics == nil {
		return
	}
	metrics.AnswersTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	metrics.AnswerDuration.Record(ctx, elapsed.Seconds())
}
