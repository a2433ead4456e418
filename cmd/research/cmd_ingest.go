// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianResearch/services/analyst/datatypes"
	"github.com/spf13/cobra"
)

var (
	blockedDirs = map[string]bool{
		".git":         true,
		".venv":        true,
		".idea":        true,
		"node_modules": true,
		"__pycache__":  true,
		"build":        true,
		"dist":         true,
	}
	// Text formats the chunker can split. Binary formats need
	// extraction upstream before they are worth sending.
	allowedFileExts = map[string]bool{
		".txt":      true,
		".md":       true,
		".markdown": true,
		".csv":      true,
		".json":     true,
		".html":     true,
		".htm":      true,
		".xml":      true,
		".yaml":     true,
		".yml":      true,
	}
)

// fileWorker drains the jobs channel, posting one document per request
// so a single unreadable or rejected file never sinks the batch.
func fileWorker(
	id int,
	wg *sync.WaitGroup,
	jobs <-chan string,
	analystURL string,
	dataSpace string,
	versionTag string,
) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Minute}

	for file := range jobs {
		fmt.Printf("[Worker %d] Ingesting: %s\n", id, file)
		content, err := os.ReadFile(file)
		if err != nil {
			log.Printf("[Worker %d] Could not read file %s: %v", id, file, err)
			continue
		}

		postBody, err := json.Marshal(datatypes.IngestRequest{
			Documents: []datatypes.IngestDocument{{
				Content:    string(content),
				Source:     file,
				DataSpace:  dataSpace,
				VersionTag: versionTag,
			}},
		})
		if err != nil {
			log.Printf("[Worker %d] could not create request for file %s: %v", id, file, err)
			continue
		}

		resp, err := client.Post(analystURL, "application/json", bytes.NewBuffer(postBody))
		if err != nil {
			log.Printf("[Worker %d] Failed to send %s to the analyst: %v", id, file, err)
			continue
		}

		bodyBytes, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 400 {
			log.Printf("[Worker %d] Analyst error for %s, status %d: %s\n", id,
				file, resp.StatusCode, serviceError(bodyBytes))
		} else {
			var ingestResp datatypes.IngestResponse
			if err := json.Unmarshal(bodyBytes, &ingestResp); err == nil {
				log.Printf("[Worker %d] Ingested %s (chunks: %d)\n", id, file, ingestResp.Chunks)
			} else {
				log.Printf("[Worker %d] Ingested %s (response unclear)\n", id, file)
			}
		}
		resp.Body.Close()
	}
}

func runIngestCommand(cmd *cobra.Command, args []string) {
	if len(args) == 0 {
		log.Fatalf("Usage: research ingest <file or directory> [more paths...]")
	}

	analystURL := fmt.Sprintf("%s/v1/documents", getAnalystBaseURL())

	fmt.Println("Scanning for ingestible documents...")
	var allFiles []string
	for _, path := range args {
		err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				if blockedDirs[info.Name()] {
					log.Printf("Skipping blocked directory: %s\n", p)
					return filepath.SkipDir
				}
				return nil
			}
			if !allowedFileExts[filepath.Ext(p)] {
				return nil
			}
			allFiles = append(allFiles, p)
			return nil
		})
		if err != nil {
			log.Printf("Error walking path %s: %v", path, err)
		}
	}
	if len(allFiles) == 0 {
		fmt.Println("No ingestible files found.")
		return
	}

	dataSpace, _ := cmd.Flags().GetString("data-space")
	versionTag, _ := cmd.Flags().GetString("version")

	numWorkers := 4
	if len(allFiles) < numWorkers {
		numWorkers = len(allFiles)
	}
	fmt.Printf("Found %d files. Starting ingestion with %d workers...\n", len(allFiles), numWorkers)

	var wg sync.WaitGroup
	jobs := make(chan string, len(allFiles))

	for w := 1; w <= numWorkers; w++ {
		wg.Add(1)
		go fileWorker(w, &wg, jobs, analystURL, dataSpace, versionTag)
	}

	for _, file := range allFiles {
		jobs <- file
	}
	close(jobs)

	wg.Wait()
	fmt.Println("\nIngestion complete.")
}
