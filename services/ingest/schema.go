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
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/AleutianResearch/services/retrieval"
)

// GetResearchChunkSchema returns the Weaviate schema for the
// ResearchChunk class. Vectors come from the embedding service, so the
// class carries no vectorizer.
func GetResearchChunkSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       retrieval.ChunkClassName,
		Description: "Embedded chunks of research documents (filings, transcripts, notes)",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "Chunk text",
				Tokenization: "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "Chunk source (parent source plus part number)",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "parent_source",
				DataType:        []string{"text"},
				Description:     "Source document the chunk was split from",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "data_space",
				DataType:        []string{"text"},
				Description:     "Data space for multi-tenant isolation",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "version_tag",
				DataType:        []string{"text"},
				Description:     "Ingestion version tag",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "ingested_at",
				DataType:    []string{"int"},
				Description: "Ingestion time, unix milliseconds",
			},
		},
	}
}

// EnsureSchema creates the ResearchChunk class if it doesn't exist.
//
// Description:
//
//	Checks if the class exists in Weaviate and creates it if not.
//	This operation is idempotent.
//
// Inputs:
//
//	ctx - Context for cancellation
//	client - Weaviate client
//
// Outputs:
//
//	error - Non-nil if schema creation fails
func EnsureSchema(ctx context.Context, client *weaviate.Client) error {
	schema := GetResearchChunkSchema()

	_, err := client.Schema().ClassGetter().WithClassName(retrieval.ChunkClassName).Do(ctx)
	if err == nil {
		slog.Info("ResearchChunk schema already exists")
		return nil
	}

	slog.Info("Creating ResearchChunk schema")
	if err := client.Schema().ClassCreator().WithClass(schema).Do(ctx); err != nil {
		return fmt.Errorf("creating ResearchChunk schema: %w", err)
	}

	slog.Info("ResearchChunk schema created successfully")
	return nil
}
