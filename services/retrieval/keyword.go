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
	"strconv"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel/codes"
)

// WeaviateKeywordRetriever retrieves passages with BM25 keyword search.
//
// # Description
//
// WeaviateKeywordRetriever runs a BM25 query over the content property of
// the ResearchChunk class. It is the lexical half of the ensemble: exact
// tickers, names, and figures that embeddings blur together rank well here.
//
// # Thread Safety
//
// WeaviateKeywordRetriever is safe for concurrent use. The underlying
// Weaviate client handles connection pooling.
//
// # Example
//
//	kw := retrieval.NewWeaviateKeywordRetriever(client, "")
//	passages, err := kw.Retrieve(ctx, "Albemarle lithium supply agreements", 10)
type WeaviateKeywordRetriever struct {
	client    *weaviate.Client
	dataSpace string
}

// NewWeaviateKeywordRetriever creates a BM25 retriever over ResearchChunk.
//
// # Inputs
//
//   - client: Weaviate client for database access.
//   - dataSpace: Optional workspace scope. Empty searches the whole corpus.
//
// # Outputs
//
//   - *WeaviateKeywordRetriever: Ready to use retriever.
//
// # Assumptions
//
//   - Client is connected and authenticated to Weaviate.
//   - The ResearchChunk class exists with content and source properties.
func NewWeaviateKeywordRetriever(client *weaviate.Client, dataSpace string) *WeaviateKeywordRetriever {
	return &WeaviateKeywordRetriever{client: client, dataSpace: dataSpace}
}

// Name identifies this retriever in logs and warnings.
func (r *WeaviateKeywordRetriever) Name() string { return "keyword" }

// Retrieve returns up to k passages matching the query by BM25 score.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - query: The search query text.
//   - k: Maximum number of passages to return.
//
// # Outputs
//
//   - []Passage: Matching passages, highest BM25 score first. Empty if
//     nothing matches.
//   - error: Non-nil if the query fails or the response cannot be parsed.
//
// # Limitations
//
//   - Returns empty results for k <= 0 rather than erroring.
func (r *WeaviateKeywordRetriever) Retrieve(ctx context.Context, query string, k int) ([]Passage, error) {
	ctx, span := tracer.Start(ctx, "KeywordRetrieve")
	defer span.End()

	if k <= 0 {
		return nil, nil
	}

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "data_space"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "score"},
		}},
	}

	builder := r.client.GraphQL().Get().
		WithClassName(ChunkClassName).
		WithFields(fields...).
		WithBM25(r.client.GraphQL().Bm25ArgBuilder().WithQuery(query)).
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
		span.SetStatus(codes.Error, "bm25 query failed")
		slog.Error("Keyword search failed", "error", err)
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	parsed, err := ParseGraphQLResponse[ChunkQueryResponse](result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bm25 parse failed")
		slog.Error("Failed to parse keyword search results", "error", err)
		return nil, fmt.Errorf("failed to parse keyword results: %w", err)
	}

	passages := make([]Passage, 0, len(parsed.Get.ResearchChunk))
	for _, chunk := range parsed.Get.ResearchChunk {
		score, err := strconv.ParseFloat(chunk.Additional.Score, 64)
		if err != nil {
			score = 0
		}
		passages = append(passages, Passage{
			Content: chunk.Content,
			Source:  chunk.Source,
			Score:   score,
		})
	}

	slog.Debug("Keyword retrieval complete", "query", query, "requested", k, "returned", len(passages))
	return passages, nil
}
