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
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianResearch/pkg/telemetry"
	"github.com/AleutianAI/AleutianResearch/services/analyst/datatypes"
	"github.com/AleutianAI/AleutianResearch/services/ingest"
	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var documentsTracer = otel.Tracer("research.analyst.handlers")

// HandleIngestDocuments serves POST /v1/documents: chunks and indexes
// inline documents, or loads a prefix from the research GCS bucket.
//
// # Description
//
// Inline documents are indexed one by one with per-source accounting;
// a failure on one document does not stop the rest. GCS loads require
// the bucket loader to be configured at startup.
func HandleIngestDocuments(indexer *ingest.Indexer, bucket *ingest.BucketLoader, metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := documentsTracer.Start(c.Request.Context(), "HandleIngestDocuments")
		defer span.End()

		var req datatypes.IngestRequest
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

		if req.GCSPrefix != "" {
			if bucket == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "GCS ingestion is not configured"})
				return
			}

			span.SetAttributes(attribute.String("gcs_prefix", req.GCSPrefix))
			slog.Info("Starting GCS ingestion", "prefix", req.GCSPrefix, "data_space", req.DataSpace)

			count, err := bucket.LoadPrefix(ctx, indexer, req.GCSPrefix, req.DataSpace)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "gcs load failed")
				slog.Error("GCS ingestion failed", "prefix", req.GCSPrefix, "error", err)
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}

			recordIngestion(ctx, metrics, "gcs", count, 0)
			c.JSON(http.StatusOK, gin.H{"status": "success", "documents": count})
			return
		}

		results := make([]ingest.Result, 0, len(req.Documents))
		failures := make(map[string]string)
		for i := range req.Documents {
			doc := &req.Documents[i]
			doc.EnsureDefaults()

			result, err := indexer.Ingest(ctx, doc.Engine())
			if err != nil {
				slog.Error("Document ingestion failed", "source", doc.Source, "error", err)
				failures[doc.Source] = err.Error()
				continue
			}
			results = append(results, *result)
		}

		resp := datatypes.NewIngestResponse(results, failures)
		recordIngestion(ctx, metrics, "inline", resp.Documents, resp.Chunks)
		span.SetAttributes(
			attribute.Int("documents", resp.Documents),
			attribute.Int("chunks", resp.Chunks),
		)

		if resp.Documents == 0 && len(failures) > 0 {
			span.SetStatus(codes.Error, "all documents failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "ingestion failed for every document", "failures": failures})
			return
		}

		slog.Info("Ingestion complete", "documents", resp.Documents, "chunks", resp.Chunks,
			"failures", len(failures))
		c.JSON(http.StatusOK, resp)
	}
}

// HandleListSources serves GET /v1/documents: the distinct document
// sources currently in the corpus.
func HandleListSources(client *weaviate.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		sources, err := ingest.ListSources(c.Request.Context(), client)
		if err != nil {
			slog.Error("Failed to list document sources", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to list document sources"})
			return
		}
		c.JSON(http.StatusOK, datatypes.SourcesResponse{Sources: sources, Count: len(sources)})
	}
}

func recordIngestion(ctx context.Context, metrics *telemetry.Metrics, source string, documents, chunks int) {
	if metrics == nil {
		return
	}
	metrics.DocumentsIngestedTotal.Add(ctx, int64(documents),
		metric.WithAttributes(attribute.String("source", source)))
	if chunks > 0 {
		metrics.ChunksIndexedTotal.Add(ctx, int64(chunks))
	}
}
