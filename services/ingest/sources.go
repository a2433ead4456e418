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
	"sort"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/AleutianAI/AleutianResearch/services/retrieval"
)

// ListSources returns the distinct parent sources currently in the
// vector store.
//
// Description:
//
//	Aggregates the ResearchChunk class grouped by parent_source. The
//	GraphQL aggregate response is dynamically shaped, so parsing walks
//	the maps defensively and skips anything malformed.
//
// Inputs:
//
//	ctx - Context for cancellation
//	client - Weaviate client
//
// Outputs:
//
//	[]string - Sorted distinct source names; empty when nothing is ingested
//	error - Non-nil if the aggregate query fails
func ListSources(ctx context.Context, client *weaviate.Client) ([]string, error) {
	agg, err := client.GraphQL().Aggregate().
		WithClassName(retrieval.ChunkClassName).
		WithGroupBy("parent_source").
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sources: %w", err)
	}
	if len(agg.Errors) > 0 {
		return nil, fmt.Errorf("aggregate query error: %s", agg.Errors[0].Message)
	}

	sources := make([]string, 0)
	aggMap, ok := agg.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return sources, nil
	}
	groups, ok := aggMap[retrieval.ChunkClassName].([]interface{})
	if !ok {
		return sources, nil
	}
	for _, groupItem := range groups {
		groupMap, ok := groupItem.(map[string]interface{})
		if !ok {
			continue
		}
		groupedBy, ok := groupMap["groupedBy"].(map[string]interface{})
		if !ok {
			continue
		}
		if name, ok := groupedBy["value"].(string); ok && name != "" {
			sources = append(sources, name)
		}
	}

	sort.Strings(sources)
	return sources, nil
}
