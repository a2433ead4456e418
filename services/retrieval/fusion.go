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

import "sort"

// rrfRankConstant dampens the gap between adjacent ranks. 60 is the value
// from the original reciprocal rank fusion paper and works well unchanged.
const rrfRankConstant = 60

// FuseWeighted merges two ranked passage lists with reciprocal rank fusion.
//
// # Description
//
// BM25 scores and vector certainties live on incompatible scales, so the
// fusion works on ranks, not raw scores. Each passage contributes
// weight * 1/(60 + rank) per list it appears in; passages present in both
// lists accumulate both contributions and therefore rise. Duplicates are
// detected by exact content match.
//
// # Inputs
//
//   - keyword: Passages from the keyword retriever, best first.
//   - vector: Passages from the vector retriever, best first.
//   - keywordWeight: Weight for keyword ranks. The ensemble uses 0.5.
//   - vectorWeight: Weight for vector ranks. The ensemble uses 0.5.
//
// # Outputs
//
//   - []Passage: Deduplicated passages ordered by fused score, highest
//     first. Ties keep keyword-list order, then vector-list order. Score
//     holds the fused value.
//
// # Limitations
//
//   - Near-duplicate chunks with differing whitespace are not merged.
func FuseWeighted(keyword, vector []Passage, keywordWeight, vectorWeight float64) []Passage {
	type fused struct {
		passage Passage
		score   float64
		seen    int
	}

	order := make([]string, 0, len(keyword)+len(vector))
	byContent := make(map[string]*fused, len(keyword)+len(vector))

	accumulate := func(list []Passage, weight float64) {
		for rank, p := range list {
			contribution := weight / float64(rrfRankConstant+rank+1)
			if entry, ok := byContent[p.Content]; ok {
				entry.score += contribution
				continue
			}
			byContent[p.Content] = &fused{passage: p, score: contribution, seen: len(order)}
			order = append(order, p.Content)
		}
	}
	accumulate(keyword, keywordWeight)
	accumulate(vector, vectorWeight)

	merged := make([]Passage, 0, len(order))
	for _, content := range order {
		entry := byContent[content]
		entry.passage.Score = entry.score
		merged = append(merged, entry.passage)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged
}
