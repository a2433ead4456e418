package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestAskQuestion(t *testing.T) {
	// 1. Setup a fake analyst
	mockAnalyst := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/answer" {
			t.Errorf("Expected path /v1/answer, got %s", r.URL.Path)
		}

		var reqBody map[string]interface{}
		json.NewDecoder(r.Body).Decode(&reqBody)
		if reqBody["question"] != "What did NVDA guide for Q3?" {
			t.Errorf("Unexpected question: %v", reqBody["question"])
		}
		if reqBody["model"] != "gpt-4o-mini" {
			t.Errorf("Unexpected model: %v", reqBody["model"])
		}

		resp := map[string]interface{}{
			"answer": "Management guided to $32.5B.",
			"model":  "gpt-4o-mini",
			"sources": []map[string]interface{}{
				{"source": "NVDA_10Q.txt", "content": "...", "score": 0.91},
			},
			"k_keyword_used": 10,
			"k_vector_used":  10,
			"duration_ms":    412,
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer mockAnalyst.Close()

	// 2. Point the CLI at the mock
	os.Setenv("RESEARCH_SERVER_URL", mockAnalyst.URL)
	defer os.Unsetenv("RESEARCH_SERVER_URL")

	askModel = "gpt-4o-mini"
	askTemperature = -1

	// 3. Run and assert
	response, err := askQuestion("What did NVDA guide for Q3?")
	if err != nil {
		t.Fatalf("askQuestion returned error: %v", err)
	}
	if response.Answer != "Management guided to $32.5B." {
		t.Errorf("Unexpected answer: %q", response.Answer)
	}
	if len(response.Sources) != 1 {
		t.Errorf("Expected 1 source, got %d", len(response.Sources))
	}
}

func TestAskQuestionServerError(t *testing.T) {
	mockAnalyst := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": `model "made-up" is not a registered model`,
		})
	}))
	defer mockAnalyst.Close()

	os.Setenv("RESEARCH_SERVER_URL", mockAnalyst.URL)
	defer os.Unsetenv("RESEARCH_SERVER_URL")

	askModel = "made-up"
	askTemperature = -1

	_, err := askQuestion("anything")
	if err == nil {
		t.Fatal("Expected an error for a 400 response")
	}
	if !strings.Contains(err.Error(), "not a registered model") {
		t.Errorf("Error should carry the service message, got: %v", err)
	}
}
