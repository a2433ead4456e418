// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest turns research documents (SEC filings, earnings call
// transcripts, analyst notes) into embedded chunks in the vector store.
//
// The flow is split -> embed -> batch import. Splitting is
// filing-aware: 10-K/10-Q style documents break on ITEM headings so a
// chunk never straddles two disclosure items.
package ingest

import (
	"context"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("research.ingest")

// Document is one source document to ingest.
type Document struct {
	// Content is the full document text.
	Content string `json:"content"`

	// Source names the document (e.g. "NVDA_10-K_2025.htm"). Chunk
	// sources are derived from it.
	Source string `json:"source"`

	// DataSpace isolates tenants; empty means the shared space.
	DataSpace string `json:"data_space"`

	// VersionTag distinguishes re-ingestions of the same source.
	VersionTag string `json:"version_tag"`
}

// Result reports what one ingestion did.
type Result struct {
	Source        string `json:"source"`
	ChunksSplit   int    `json:"chunks_split"`
	ChunksIndexed int    `json:"chunks_indexed"`
}

// BatchEmbedder embeds a batch of texts in one call. Satisfied by
// retrieval.HTTPEmbedder.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
