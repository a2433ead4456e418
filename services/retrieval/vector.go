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
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel/codes"
)

// WeaviateVectorRetriever retrieves passages by embedding similarity.
//
// # Description
//
// WeaviateVectorRetriever embeds the query and runs a nearVector search
// over the ResearchChunk class. It is the semantic half of the ensemble:
// paraphrased questions find passages that share no keywords with them.
//
// # Thread Safety
//
// WeaviateVectorRetriever is safe for concurrent use provided the injected
// EmbeddingProvider is.
//
// # Example
//
//	embedder, _ := retrieval.NewHTTPEmbedder("http://embeddings:8000")
//	vec := retrieval.NewWeaviateVectorRetriever(client, embedder, "")
//	passages, err := vec.Retrieve(ctx, "who supplies battery-grade lithium", 10)
type WeaviateVectorRetriever struct {
	client    *weaviate.Client
	embedder  EmbeddingProvider
	dataSpace string
}

// NewWeaviateVectorRetriever creates a nearVector retriever over ResearchChunk.
//
// # Inputs
//
//   - client: Weaviate client for database access.
//   - embedder: Provider for computing query embeddings.
//   - dataSpace: Optional workspace scope. Empty searches the whole corpus.
//
// # Outputs
//
//   - *WeaviateVectorRetriever: Ready to use retriever.
//
// # Assumptions
//
//   - Embedding dimensions match the vectors stored at ingest time.
func NewWeaviateVectorRetriever(client *weaviate.Client, embedder EmbeddingProvider, dataSpace string) *WeaviateVectorRetriever {
	return &WeaviateVectorRetriever{client: client, embedder: embedder, dataSpace: dataSpace}
}

// Name identifies this retriever in logs and warnings.
func (r *WeaviateVectorRetriever) Name() string { return "vector" }

// Retrieve returns up to k passages nearest to the query embedding.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - query: The search query text. Embedded before searching.
//   - k: Maximum number of passages to return.
//
// # Outputs
//
//   - []Passage: Nearest passages, highest certainty first. Score is the
//     certainty in [0,1]. Empty if the corpus is empty.
//   - error: Non-nil if embedding or the query fails.
//
// # Limitations
//
//   - Short queries like "tell me more" have weak semantic signal.
//   - Returns empty results for k <= 0 rather than erroring.
func (r *WeaviateVectorRetriever) Retrieve(ctx context.Context, query string, k int) ([]Passage, error) {
	ctx, span := tracer.Start(ctx, "VectorRetrieve")
	defer span.End()

	if k <= 0 {
		return nil, nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query embedding failed")
		slog.Error("Failed to embed query for vector search", "error", err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	nearVector := r.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	// Request certainty (always [0,1]) instead of distance which varies by metric.
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "data_space"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	builder := r.client.GraphQL().Get().
		WithClassName(ChunkClassName).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(k)

	if r.dataSpace != "" {
		builder = builder.WithWhere(filters.Where().
			WithPath([]string{"data_space"}).
			WithOperator(filters.Equal).
			WithValueString(r.dataSpace))
	}

	result, err := builder.Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "nearVector query failed")
		slog.Error("Vector search failed", "error", err)
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	parsed, err := ParseGraphQLResponse[ChunkQueryResponse](result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "nearVector parse failed")
		slog.Error("Failed to parse vector search results", "error", err)
		return nil, fmt.Errorf("failed to parse vector results: %w", err)
	}

	passages := make([]Passage, 0, len(parsed.Get.ResearchChunk))
	for _, chunk := range parsed.Get.ResearchChunk {
		var score float64
		if chunk.Additional.Certainty != nil {
			score = float64(*chunk.Additional.Certainty)
		}
		passages = append(passages, Passage{
			Content: chunk.Content,
			Source:  chunk.Source,
			Score:   score,
		})
	}

	slog.Debug("Vector retrieval complete", "query", query, "requested", k, "returned", len(passages))
	return passages, nil
}
