// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval provides passage retrieval over the research corpus
// stored in Weaviate. It exposes a keyword (BM25) retriever, a vector
// (nearVector) retriever, and a rank-fusion helper that merges the two
// result lists into a single ranked set of passages.
package retrieval

import (
	"context"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("research.retrieval")

// Passage is a single retrieved chunk of corpus text.
//
// # Description
//
// Passages are the unit of evidence handed to the answering engine. Score
// semantics depend on the retriever that produced the passage (BM25 score
// for keyword search, certainty for vector search, fused rank score after
// fusion), so scores are only comparable within one result list.
type Passage struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// Retriever retrieves the top-k passages for a query.
//
// # Description
//
// Implementations must return passages ordered best-first and must return
// at most k passages. A query that matches nothing yields an empty slice,
// not an error.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Retriever interface {
	// Name identifies the retriever in logs and warnings ("keyword", "vector").
	Name() string

	// Retrieve returns up to k passages for the query, best match first.
	Retrieve(ctx context.Context, query string, k int) ([]Passage, error)
}

// EmbeddingProvider computes vector embeddings for text.
//
// # Description
//
// EmbeddingProvider wraps calls to the embedding model so retrievers and
// the ingest pipeline do not care whether embeddings come from the local
// embedding service, Ollama, or a remote API.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
