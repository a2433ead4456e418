// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides request and response structures for the
// analyst service.
//
// This file contains the ensemble answer and model listing types. For
// pipeline run types see pipelines.go, for ingestion types see
// documents.go, and for market data types see market.go.
package datatypes

import (
	"strconv"

	"github.com/AleutianAI/AleutianResearch/pkg/validation"
	"github.com/AleutianAI/AleutianResearch/services/analysis"
	"github.com/AleutianAI/AleutianResearch/services/llm"
	"github.com/AleutianAI/AleutianResearch/services/retrieval"
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxQuestionBytes is the maximum size of an answer question.
	// Per SEC-003: Unbounded text input mitigation.
	MaxQuestionBytes = 32 * 1024 // 32KB

	// MaxInputBytes is the maximum size of a pipeline initial input.
	MaxInputBytes = 64 * 1024 // 64KB

	// MaxDefinitionBytes is the maximum size of an inline pipeline
	// definition submitted over the API.
	MaxDefinitionBytes = 256 * 1024 // 256KB

	// MaxDocumentBytes is the maximum size of a single ingested document.
	MaxDocumentBytes = 10 * 1024 * 1024 // 10MB

	// MaxDocumentsPerRequest is the maximum number of documents in one
	// ingestion request.
	MaxDocumentsPerRequest = 100

	// MaxRetrievalK bounds the per-source retrieval size a caller may ask
	// for. The engine applies its own defaults below this.
	MaxRetrievalK = 100
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// apiValidate is the validator instance for analyst datatypes.
// Initialized in init() with custom validators.
var apiValidate *validator.Validate

func init() {
	apiValidate = validator.New()

	// Register custom validator for byte-bounded string fields (SEC-003)
	_ = apiValidate.RegisterValidation("maxbytes", validateMaxBytes)

	// Data space labels flow into Weaviate where filters
	_ = apiValidate.RegisterValidation("dataspace", validateDataSpace)
}

// validateMaxBytes validates that a string field does not exceed the
// byte limit given as the tag parameter, e.g. `maxbytes=32768`.
//
// # Description
//
// Checks byte length (not rune count) to prevent memory exhaustion
// with large multi-byte payloads.
//
// # Inputs
//
//   - fl: Validator field level containing the string and the limit param
//
// # Outputs
//
//   - bool: true if the field is within the limit, false otherwise
func validateMaxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

// validateDataSpace delegates to the shared data space label rules.
func validateDataSpace(fl validator.FieldLevel) bool {
	return validation.ValidateDataSpace(fl.Field().String()) == nil
}

// =============================================================================
// Answer Request Types
// =============================================================================

// AnswerRequest represents an ensemble answer request body.
//
// # Description
//
// AnswerRequest carries the question and retrieval controls for the
// POST /v1/answer endpoint. Retrieval sizes, priority order, and
// temperature are optional; the engine fills production defaults for
// anything unset. Source names in PriorityOrder accept the canonical
// names "internal" and "online" plus their aliases.
//
// # Validation
//
// Uses go-playground/validator:
//   - Question: required, max 32KB (SEC-003)
//   - Model: required, max 128 characters
//   - KKeyword / KVector: 1-100 when set
//   - Temperature: 0.0-2.0 when set
type AnswerRequest struct {
	Question          string   `json:"question" validate:"required,maxbytes=32768"`
	Model             string   `json:"model" validate:"required,max=128"`
	KKeyword          int      `json:"k_keyword,omitempty" validate:"omitempty,min=1,max=100"`
	KVector           int      `json:"k_vector,omitempty" validate:"omitempty,min=1,max=100"`
	PriorityOrder     []string `json:"priority_order,omitempty" validate:"omitempty,max=4,dive,max=64"`
	Temperature       *float32 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	AutoReduceOnLimit *bool    `json:"auto_reduce_on_limit,omitempty"`

	// NoCache skips the answer cache for this request. Cached answers
	// can trail the corpus by the cache TTL.
	NoCache bool `json:"no_cache,omitempty"`
}

// Validate checks the request against the struct validation tags.
func (r *AnswerRequest) Validate() error {
	return apiValidate.Struct(r)
}

// EngineRequest converts the transport request into the engine's
// request type. Defaults are left unset; the engine fills them.
func (r *AnswerRequest) EngineRequest() analysis.AnswerRequest {
	return analysis.AnswerRequest{
		Question:          r.Question,
		Model:             r.Model,
		KKeyword:          r.KKeyword,
		KVector:           r.KVector,
		PriorityOrder:     r.PriorityOrder,
		AutoReduceOnLimit: r.AutoReduceOnLimit,
		Temperature:       r.Temperature,
	}
}

// CacheFields returns the request fields that determine the answer, in
// a stable order, for cache fingerprinting. NoCache is deliberately
// excluded.
func (r *AnswerRequest) CacheFields() []string {
	fields := []string{
		r.Question,
		r.Model,
		strconv.Itoa(r.KKeyword),
		strconv.Itoa(r.KVector),
	}
	fields = append(fields, r.PriorityOrder...)
	if r.Temperature != nil {
		fields = append(fields, strconv.FormatFloat(float64(*r.Temperature), 'f', -1, 32))
	}
	if r.AutoReduceOnLimit != nil {
		fields = append(fields, strconv.FormatBool(*r.AutoReduceOnLimit))
	}
	return fields
}

// AnswerResponse represents a completed ensemble answer.
type AnswerResponse struct {
	// Answer is the synthesized answer text.
	Answer string `json:"answer"`

	// Model is the model the caller asked for.
	Model string `json:"model"`

	// Sources is the fused internal passage list the answer drew from.
	Sources []retrieval.Passage `json:"sources,omitempty"`

	// OnlineRaw is the raw web-search response or the unavailability
	// placeholder; empty when online was not consulted.
	OnlineRaw string `json:"online_raw,omitempty"`

	// KKeywordUsed and KVectorUsed are the retrieval sizes of the
	// attempt that fit the token budget.
	KKeywordUsed int `json:"k_keyword_used"`
	KVectorUsed  int `json:"k_vector_used"`

	// Cached is true when the answer was served from the answer cache.
	Cached bool `json:"cached"`

	// DurationMs is the server-side time spent producing the answer.
	// Near zero for cache hits.
	DurationMs int64 `json:"duration_ms"`
}

// NewAnswerResponse builds the response for a fresh engine answer.
func NewAnswerResponse(model string, result *analysis.AnswerResult, durationMs int64) *AnswerResponse {
	return &AnswerResponse{
		Answer:       result.Answer,
		Model:        model,
		Sources:      result.Sources,
		OnlineRaw:    result.OnlineRaw,
		KKeywordUsed: result.KKeywordUsed,
		KVectorUsed:  result.KVectorUsed,
		DurationMs:   durationMs,
	}
}

// =============================================================================
// Model Listing Types
// =============================================================================

// ModelInfo describes one registered model.
type ModelInfo struct {
	Name          string `json:"name"`
	ContextTokens int    `json:"context_tokens"`
}

// ModelsResponse lists the models the engine accepts.
type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
	Count  int         `json:"count"`
}

// NewModelsResponse builds the listing from the model registry.
func NewModelsResponse(registry *llm.ModelRegistry) *ModelsResponse {
	names := registry.Models()
	models := make([]ModelInfo, 0, len(names))
	for _, name := range names {
		limit, _ := registry.Limit(name)
		models = append(models, ModelInfo{Name: name, ContextTokens: limit})
	}
	return &ModelsResponse{Models: models, Count: len(models)}
}
