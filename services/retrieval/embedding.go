// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
)

// MaxEmbedLength caps the text sent to the embedding service. Longer
// inputs are truncated; the embedding model's own context window is
// smaller than most corpus documents anyway.
const MaxEmbedLength = 8000

type embeddingRequest struct {
	Text string `json:"text"`
}

type embeddingResponse struct {
	Id        string    `json:"id"`
	Timestamp int64     `json:"timestamp"`
	Text      string    `json:"text"`
	Vector    []float32 `json:"vector"`
	Dim       int       `json:"dim"`
}

type batchEmbeddingRequest struct {
	Texts []string `json:"texts"`
}

type batchEmbeddingResponse struct {
	Id        string      `json:"id"`
	Timestamp int64       `json:"timestamp"`
	Vectors   [][]float32 `json:"vectors"`
	Model     string      `json:"model"`
	Dim       int         `json:"dim"`
}

// HTTPEmbedder computes embeddings by calling the embedding service over HTTP.
//
// # Description
//
// HTTPEmbedder posts to the embedding service's /embed endpoint for single
// texts and /batch_embed for document ingestion. The base URL is injected at
// construction so tests can point it at a local httptest server.
//
// # Thread Safety
//
// HTTPEmbedder is safe for concurrent use. The underlying http.Client
// handles connection pooling.
//
// # Example
//
//	embedder, err := retrieval.NewHTTPEmbedder("http://embeddings:8000")
//	vector, err := embedder.Embed(ctx, "Who supplies lithium to Albemarle?")
type HTTPEmbedder struct {
	baseURL     string
	client      *http.Client
	batchClient *http.Client
}

// NewHTTPEmbedder creates an embedder for the service at baseURL.
//
// # Inputs
//
//   - baseURL: Root URL of the embedding service, e.g. "http://localhost:8000".
//
// # Outputs
//
//   - *HTTPEmbedder: Ready to use embedder.
//   - error: Non-nil if baseURL is empty.
func NewHTTPEmbedder(baseURL string) (*HTTPEmbedder, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("embedding service URL is required")
	}
	return &HTTPEmbedder{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		// Batch embedding of a full filing can take minutes.
		batchClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// Embed computes a vector embedding for a single text.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - text: The text to embed. Truncated to MaxEmbedLength bytes.
//
// # Outputs
//
//   - []float32: The embedding vector.
//   - error: Non-nil if the request fails or the service responds non-200.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "Embed")
	defer span.End()

	if len(text) > MaxEmbedLength {
		slog.Debug("Truncating text for embedding", "originalLen", len(text), "truncatedLen", MaxEmbedLength)
		text = text[:MaxEmbedLength]
	}

	var out embeddingResponse
	if err := e.post(ctx, e.client, "/embed", embeddingRequest{Text: text}, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed request failed")
		return nil, err
	}
	if len(out.Vector) == 0 {
		err := fmt.Errorf("embedding service returned an empty vector")
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty vector")
		return nil, err
	}
	return out.Vector, nil
}

// EmbedBatch computes embeddings for many texts in one request.
//
// # Description
//
// Used by the ingest pipeline where per-chunk round trips would dominate
// indexing time. The service must return vectors in input order.
//
// # Outputs
//
//   - [][]float32: One vector per input text, in input order.
//   - error: Non-nil if the request fails or the vector count does not
//     match the input count.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := tracer.Start(ctx, "EmbedBatch")
	defer span.End()

	if len(texts) == 0 {
		return nil, nil
	}

	var out batchEmbeddingResponse
	if err := e.post(ctx, e.batchClient, "/batch_embed", batchEmbeddingRequest{Texts: texts}, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch embed request failed")
		return nil, err
	}
	if len(out.Vectors) != len(texts) {
		err := fmt.Errorf("embedding service returned %d vectors for %d texts", len(out.Vectors), len(texts))
		span.RecordError(err)
		span.SetStatus(codes.Error, "vector count mismatch")
		return nil, err
	}
	return out.Vectors, nil
}

func (e *HTTPEmbedder) post(ctx context.Context, client *http.Client, path string, payload any, out any) error {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach embedding service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("Failed to close embedding response body", "error", err)
		}
	}()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to parse embedding response: %w", err)
	}
	return nil
}
