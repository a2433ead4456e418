package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/AleutianAI/AleutianResearch/services/analyst/datatypes"
)

func TestFileWorker(t *testing.T) {
	// 1. Create a dummy file to ingest
	tmpFile, err := os.CreateTemp("", "test_ingest_*.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())
	tmpFile.WriteString("NVDA reported record data center revenue.")
	tmpFile.Close()

	// 2. Create a mock analyst capturing the upload
	var received datatypes.IngestRequest
	mockAnalyst := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/documents" {
			t.Errorf("Worker hit wrong endpoint: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)

		json.NewEncoder(w).Encode(datatypes.IngestResponse{
			Status:    "success",
			Documents: 1,
			Chunks:    3,
		})
	}))
	defer mockAnalyst.Close()

	// 3. Run the worker against one job
	var wg sync.WaitGroup
	jobs := make(chan string, 1)

	wg.Add(1)
	go fileWorker(1, &wg, jobs, mockAnalyst.URL+"/v1/documents", "filings", "2026-08")

	jobs <- tmpFile.Name()
	close(jobs)
	wg.Wait()

	// 4. Assertions
	if len(received.Documents) != 1 {
		t.Fatalf("Expected 1 document in the request, got %d", len(received.Documents))
	}
	doc := received.Documents[0]
	if doc.Content != "NVDA reported record data center revenue." {
		t.Errorf("Worker sent wrong content: %q", doc.Content)
	}
	if doc.Source != tmpFile.Name() {
		t.Errorf("Worker sent wrong source: %q", doc.Source)
	}
	if doc.DataSpace != "filings" || doc.VersionTag != "2026-08" {
		t.Errorf("Worker dropped the data space or version tag: %+v", doc)
	}
}
