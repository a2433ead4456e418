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
	"io"
	"log/slog"
	"os"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// BucketLoader pulls research documents from a GCS bucket, where the
// filings pipeline drops them.
type BucketLoader struct {
	storageClient *storage.Client
	BucketName    string
}

// NewBucketLoader creates a loader for the named bucket.
//
// Description:
//
//	With saKeyPath set, credentials come from the service account key
//	file; otherwise Application Default Credentials are used.
//
// Inputs:
//
//	ctx - Context for client construction
//	bucketName - GCS bucket holding source documents
//	saKeyPath - Optional path to a service account key file
//
// Outputs:
//
//	*BucketLoader - The configured loader
//	error - Non-nil if the key file is missing or the client fails
func NewBucketLoader(ctx context.Context, bucketName, saKeyPath string) (*BucketLoader, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	var opts []option.ClientOption
	if saKeyPath != "" {
		if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s. Please ensure you have the correct key and it is accessible", saKeyPath)
		}
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &BucketLoader{
		storageClient: storageClient,
		BucketName:    bucketName,
	}, nil
}

// List returns the object names under a prefix.
func (b *BucketLoader) List(ctx context.Context, prefix string) ([]string, error) {
	it := b.storageClient.Bucket(b.BucketName).Objects(ctx, &storage.Query{Prefix: prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing gs://%s/%s: %w", b.BucketName, prefix, err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// Fetch reads one object's full content.
func (b *BucketLoader) Fetch(ctx context.Context, objectName string) ([]byte, error) {
	reader, err := b.storageClient.Bucket(b.BucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening gs://%s/%s: %w", b.BucketName, objectName, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading gs://%s/%s: %w", b.BucketName, objectName, err)
	}
	return data, nil
}

// LoadPrefix fetches every object under a prefix and ingests it.
//
// Description:
//
//	Objects are ingested one at a time; a failed object is logged and
//	skipped so one bad filing does not abort a bulk load. The object's
//	base name becomes the document source.
//
// Inputs:
//
//	ctx - Context for cancellation
//	indexer - Destination indexer
//	prefix - Object prefix to load (e.g. "filings/2025/")
//	dataSpace - Data space for the ingested chunks
//
// Outputs:
//
//	int - Number of documents successfully ingested
//	error - Non-nil if listing fails or the context is cancelled
func (b *BucketLoader) LoadPrefix(ctx context.Context, indexer *Indexer, prefix, dataSpace string) (int, error) {
	names, err := b.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	slog.Info("Loading documents from bucket",
		"bucket", b.BucketName, "prefix", prefix, "count", len(names))

	loaded := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}

		data, err := b.Fetch(ctx, name)
		if err != nil {
			slog.Warn("Skipping unreadable object", "object", name, "error", err)
			continue
		}

		doc := Document{
			Content:   string(data),
			Source:    path.Base(name),
			DataSpace: dataSpace,
		}
		if _, err := indexer.Ingest(ctx, doc); err != nil {
			slog.Warn("Skipping document that failed to ingest", "object", name, "error", err)
			continue
		}
		loaded++
	}

	return loaded, nil
}

// Close releases the underlying storage client.
func (b *BucketLoader) Close() error {
	return b.storageClient.Close()
}
