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
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// ChunkClassName is the Weaviate class holding indexed corpus chunks.
const ChunkClassName = "ResearchChunk"

// ChunkQueryResponse is the GraphQL response shape for ResearchChunk queries.
type ChunkQueryResponse struct {
	Get struct {
		ResearchChunk []ChunkResult `json:"ResearchChunk"`
	} `json:"Get"`
}

// ChunkResult is a single chunk returned by a ResearchChunk query.
//
// Weaviate reports the BM25 score as a JSON string and certainty as a
// float, so both are kept in their wire types and converted by the
// retriever that requested them.
type ChunkResult struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	DataSpace  string `json:"data_space"`
	Additional struct {
		ID        string   `json:"id"`
		Score     string   `json:"score"`
		Certainty *float32 `json:"certainty"`
	} `json:"_additional"`
}

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// This generic function encapsulates the marshal/unmarshal pattern required to
// convert Weaviate's dynamic response (map[string]models.JSONObject) into a
// strongly-typed Go struct. The target type T must have json tags matching
// the expected response shape.
//
// # Type Parameters
//
//   - T: The target struct type with json tags matching the response shape.
//
// # Inputs
//
//   - resp: The GraphQL response from Weaviate client's Do() method.
//
// # Outputs
//
//   - *T: Pointer to the parsed struct.
//   - error: Non-nil if response is nil, carries GraphQL errors, or parsing fails.
//
// # Limitations
//
//   - Requires the target type to exactly match the expected response structure.
//   - Type mismatches will result in zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("graphql query failed: %s", resp.Errors[0].Message)
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}
