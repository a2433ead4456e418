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
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

var (
	CHUNK_SIZE    = 1000
	CHUNK_OVERLAP = int(float64(CHUNK_SIZE) * 0.10) // Chunk_overlap is 10% of the CHUNK_SIZE

	defaultSeparators = []string{"\n\n", "\n", " ", ""}

	// SEC filings break on disclosure items first so a chunk never
	// straddles two items.
	filingSeparators = []string{
		"\nITEM ", "\nItem ", "\nPART ", "\nPart ",
		"\n\n", "\n", " ", "",
	}

	// Earnings call transcripts break on speaker turns.
	transcriptSeparators = []string{
		"\nOperator:", "\nOperator ", "\nQ - ", "\nA - ",
		"\n\n", "\n", " ", "",
	}

	markdownSeparators = []string{
		"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
		"\n\n", "\n", " ", "",
	}
)

// filingMarkers identify SEC filing sources by name.
var filingMarkers = []string{"10-k", "10-q", "8-k", "20-f", "s-1", "def 14a", "def14a"}

// SplitterForSource picks a text splitter appropriate for the source
// document.
//
// Description:
//
//	Routing is by source name: SEC filing markers (10-K, 10-Q, ...)
//	and .htm/.html extensions get the filing splitter, transcript
//	sources get the speaker-turn splitter, markdown gets heading
//	splitting, everything else the default recursive splitter.
//
// Inputs:
//
//	source - The document's source name (usually a file name).
//
// Outputs:
//
//	textsplitter.TextSplitter - Ready to split the document content.
func SplitterForSource(source string) textsplitter.TextSplitter {
	lower := strings.ToLower(source)

	for _, marker := range filingMarkers {
		if strings.Contains(lower, marker) {
			return newSplitter(filingSeparators)
		}
	}
	if strings.Contains(lower, "transcript") || strings.Contains(lower, "earnings-call") {
		return newSplitter(transcriptSeparators)
	}

	switch filepath.Ext(lower) {
	case ".htm", ".html":
		return newSplitter(filingSeparators)
	case ".md":
		return newSplitter(markdownSeparators)
	default:
		return newSplitter(defaultSeparators)
	}
}

func newSplitter(separators []string) textsplitter.TextSplitter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(CHUNK_SIZE),
		textsplitter.WithChunkOverlap(CHUNK_OVERLAP),
		textsplitter.WithSeparators(separators),
	)
}
