// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains request and response types for document ingestion.
package datatypes

import (
	"fmt"

	"github.com/AleutianAI/AleutianResearch/services/ingest"
)

// =============================================================================
// Ingestion Request Types
// =============================================================================

// IngestDocument is one document submitted inline for ingestion.
//
// # Validation
//
//   - Content: required, max 10MB (SEC-003)
//   - Source: required, max 512 characters
type IngestDocument struct {
	Content    string `json:"content" validate:"required,maxbytes=10485760"`
	Source     string `json:"source" validate:"required,max=512"`
	DataSpace  string `json:"data_space,omitempty" validate:"omitempty,dataspace"`
	VersionTag string `json:"version_tag,omitempty" validate:"omitempty,max=128"`
}

// EnsureDefaults fills unset optional fields.
func (d *IngestDocument) EnsureDefaults() {
	if d.VersionTag == "" {
		d.VersionTag = "latest"
	}
}

// Engine converts the transport document into the ingest package's
// document type.
func (d *IngestDocument) Engine() ingest.Document {
	return ingest.Document{
		Content:    d.Content,
		Source:     d.Source,
		DataSpace:  d.DataSpace,
		VersionTag: d.VersionTag,
	}
}

// IngestRequest represents a document ingestion request body.
//
// # Description
//
// A request either carries documents inline or names a GCS prefix to
// load from the configured research bucket, never both.
type IngestRequest struct {
	Documents []IngestDocument `json:"documents,omitempty" validate:"omitempty,max=100,dive"`
	GCSPrefix string           `json:"gcs_prefix,omitempty" validate:"omitempty,max=512"`

	// DataSpace applies to GCS loads; inline documents carry their own.
	DataSpace string `json:"data_space,omitempty" validate:"omitempty,dataspace"`
}

// Validate checks the struct tags and the documents/prefix exclusivity
// rule.
func (r *IngestRequest) Validate() error {
	if err := apiValidate.Struct(r); err != nil {
		return err
	}
	if len(r.Documents) == 0 && r.GCSPrefix == "" {
		return fmt.Errorf("documents or gcs_prefix is required")
	}
	if len(r.Documents) > 0 && r.GCSPrefix != "" {
		return fmt.Errorf("documents and gcs_prefix are mutually exclusive")
	}
	return nil
}

// IngestResponse reports what an ingestion request did.
type IngestResponse struct {
	// Status is "success" when every document indexed, "partial" when
	// some failed.
	Status string `json:"status"`

	// Documents is the number of documents indexed.
	Documents int `json:"documents"`

	// Chunks is the total number of chunks written.
	Chunks int `json:"chunks"`

	// Results holds the per-document accounting for inline ingestion.
	Results []ingest.Result `json:"results,omitempty"`

	// Failures maps failed sources to their error messages.
	Failures map[string]string `json:"failures,omitempty"`
}

// NewIngestResponse builds the response from per-document results and
// failures.
func NewIngestResponse(results []ingest.Result, failures map[string]string) *IngestResponse {
	chunks := 0
	for _, r := range results {
		chunks += r.ChunksIndexed
	}
	status := "success"
	if len(failures) > 0 {
		status = "partial"
	}
	return &IngestResponse{
		Status:    status,
		Documents: len(results),
		Chunks:    chunks,
		Results:   results,
		Failures:  failures,
	}
}

// SourcesResponse lists the distinct document sources in the corpus.
type SourcesResponse struct {
	Sources []string `json:"sources"`
	Count   int      `json:"count"`
}
