// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianResearch/services/retrieval"
)

// BatchSize is the number of chunks to batch import at once.
const BatchSize = 100

// Indexer splits, embeds, and imports research documents.
type Indexer struct {
	client   *weaviate.Client
	embedder BatchEmbedder
}

// NewIndexer creates a document indexer.
//
// Inputs:
//
//	client - Weaviate client. Must not be nil.
//	embedder - Batch embedding backend. Must not be nil.
//
// Outputs:
//
//	*Indexer - The configured indexer
//	error - Non-nil if a collaborator is nil
//
// Thread Safety: Ingest is safe for concurrent use.
func NewIndexer(client *weaviate.Client, embedder BatchEmbedder) (*Indexer, error) {
	if client == nil {
		return nil, fmt.Errorf("ingest: weaviate client is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingest: embedder is required")
	}
	return &Indexer{client: client, embedder: embedder}, nil
}

// Ingest splits a document, embeds the chunks, and batch imports them.
//
// Description:
//
//	Chunk IDs are deterministic (sha256 of data space and chunk text),
//	so re-ingesting the same document updates in place instead of
//	duplicating. Chunks that fail to import are logged and counted out
//	of the result; the rest of the batch still lands.
//
// Inputs:
//
//	ctx - Context for cancellation
//	doc - The document to ingest. Content and Source are required.
//
// Outputs:
//
//	*Result - Split and import counts
//	error - Non-nil when splitting, embedding, or the batch call fails
func (ix *Indexer) Ingest(ctx context.Context, doc Document) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Indexer.Ingest")
	defer span.End()
	span.SetAttributes(
		attribute.String("ingest.source", doc.Source),
		attribute.String("ingest.data_space", doc.DataSpace),
	)

	if doc.Content == "" {
		return nil, fmt.Errorf("document content is required")
	}
	if doc.Source == "" {
		return nil, fmt.Errorf("document source is required")
	}

	splitter := SplitterForSource(doc.Source)
	chunks, err := splitter.SplitText(doc.Content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to split content: %w", err)
	}
	result := &Result{Source: doc.Source, ChunksSplit: len(chunks)}
	if len(chunks) == 0 {
		slog.Warn("No chunks produced after splitting", "source", doc.Source)
		return result, nil
	}
	slog.Info("Split document into chunks", "source", doc.Source, "chunk_count", len(chunks))

	vectors, err := ix.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("batch embedding failed: %w", err)
	}
	if len(vectors) != len(chunks) {
		err := fmt.Errorf("embedding service returned %d vectors for %d chunks", len(vectors), len(chunks))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ingestedAt := time.Now().UnixMilli()
	for i := 0; i < len(chunks); i += BatchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := i + BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		objects := make([]*models.Object, 0, end-i)
		for j := i; j < end; j++ {
			objects = append(objects, ix.chunkObject(doc, chunks[j], vectors[j], j, ingestedAt))
		}

		resp, err := ix.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return result, fmt.Errorf("failed to save chunks to Weaviate: %w", err)
		}
		result.ChunksIndexed += countSuccesses(resp, doc.Source)
	}

	span.SetAttributes(attribute.Int("ingest.chunks_indexed", result.ChunksIndexed))
	slog.Info("Successfully processed document",
		"source", doc.Source, "chunks_processed", result.ChunksIndexed)
	return result, nil
}

// chunkObject builds one batch object with a deterministic ID.
func (ix *Indexer) chunkObject(doc Document, chunk string, vector []float32, index int, ingestedAt int64) *models.Object {
	hash := sha256.Sum256([]byte(doc.DataSpace + "\x00" + chunk))
	chunkUUID, _ := uuid.FromBytes(hash[:16])

	return &models.Object{
		Class:  retrieval.ChunkClassName,
		ID:     strfmt.UUID(chunkUUID.String()),
		Vector: vector,
		Properties: map[string]interface{}{
			"content":       chunk,
			"source":        fmt.Sprintf("%s_part_%d", doc.Source, index+1),
			"parent_source": doc.Source,
			"data_space":    doc.DataSpace,
			"version_tag":   doc.VersionTag,
			"ingested_at":   ingestedAt,
		},
	}
}

// countSuccesses tallies batch items that landed and logs the rest.
func countSuccesses(resp []models.ObjectsGetResponse, source string) int {
	indexed := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			indexed++
			continue
		}
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("Error in Weaviate batch item", "source", source, "error", errItem.Message)
			}
			continue
		}
		status := "UNKNOWN"
		if item.Result != nil && item.Result.Status != nil {
			status = *item.Result.Status
		}
		slog.Warn("Failed Weaviate batch item, no error provided", "source", source, "status", status)
	}
	return indexed
}
