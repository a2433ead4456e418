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
	"context"
	"errors"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianResearch/pkg/extensions"
	"github.com/AleutianAI/AleutianResearch/pkg/logging"
	"github.com/AleutianAI/AleutianResearch/pkg/telemetry"
	"github.com/AleutianAI/AleutianResearch/services/analysis"
	"github.com/AleutianAI/AleutianResearch/services/analysis/library"
	"github.com/AleutianAI/AleutianResearch/services/analyst/cache"
	"github.com/AleutianAI/AleutianResearch/services/analyst/routes"
	"github.com/AleutianAI/AleutianResearch/services/ingest"
	"github.com/AleutianAI/AleutianResearch/services/llm"
	"github.com/AleutianAI/AleutianResearch/services/marketdata"
	"github.com/AleutianAI/AleutianResearch/services/retrieval"
)

// newCompletionBackend picks the completion backend from
// LLM_BACKEND_TYPE. The close function is nil for backends without
// held resources.
func newCompletionBackend() (llm.CompletionClient, func(), error) {
	switch backend := os.Getenv("LLM_BACKEND_TYPE"); backend {
	case "openai":
		slog.Info("Using OpenAI completion backend")
		client, err := llm.NewOpenAIClient(llm.OpenAIConfig{BaseURL: os.Getenv("OPENAI_BASE_URL")})
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	case "claude", "anthropic":
		slog.Info("Using Anthropic completion backend")
		client, err := llm.NewAnthropicClient("")
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	case "ollama":
		slog.Info("Using Ollama completion backend")
		client, err := llm.NewOllamaClient(os.Getenv("OLLAMA_SERVICE_URL"))
		return client, nil, err
	default:
		slog.Warn("LLM_BACKEND_TYPE not set or invalid, defaulting to ollama", "value", backend)
		client, err := llm.NewOllamaClient(os.Getenv("OLLAMA_SERVICE_URL"))
		return client, nil, err
	}
}

// connectWeaviate parses WEAVIATE_SERVICE_URL and returns a client, or
// nil when the URL is absent or unusable.
func connectWeaviate(ctx context.Context) *weaviate.Client {
	// Sanitize: Trim quotes and whitespace just in case Podman passes them literally
	weaviateURL := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")
	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("WEAVIATE_SERVICE_URL not set or empty. Running in lightweight mode (models and market data only).")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid. Running in lightweight mode.",
			"url", weaviateURL, "error", err)
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client", "error", err)
		return nil
	}

	if err := ingest.EnsureSchema(ctx, client); err != nil {
		slog.Error("Weaviate schema check failed, running in lightweight mode", "error", err)
		return nil
	}
	return client
}

// openAnswerCache builds the answer cache: persistent when
// ANSWER_CACHE_DIR is set, in-memory otherwise.
func openAnswerCache() *cache.Cache {
	cfg := cache.InMemoryConfig()
	if dir := os.Getenv("ANSWER_CACHE_DIR"); dir != "" {
		cfg = cache.DefaultConfig()
		cfg.Path = dir
	}
	if raw := os.Getenv("ANSWER_CACHE_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			slog.Warn("ANSWER_CACHE_TTL is not a duration, keeping default", "value", raw, "error", err)
		} else {
			cfg.TTL = ttl
		}
	}

	answers, err := cache.Open(cfg)
	if err != nil {
		slog.Warn("Answer cache unavailable, every request hits the engine", "error", err)
		return nil
	}
	return answers
}

func main() {
	port := os.Getenv("ANALYST_PORT")
	if port == "" {
		port = "12310"
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("LOG_LEVEL")),
		Service: "analyst",
		JSON:    true,
		LogDir:  os.Getenv("LOG_DIR"),
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Telemetry ---
	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.ServiceName = "analyst-service"
	shutdownTelemetry, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatalf("failed to setup telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Error("failed to shutdown telemetry", "error", err)
		}
	}()

	meter := otel.Meter("research.analyst")
	metrics, err := telemetry.NewMetrics(meter)
	if err != nil {
		slog.Warn("Metrics disabled", "error", err)
		metrics = nil
	}

	// --- Completion backend and model registry ---
	registry := llm.NewModelRegistry()

	log.Println("Configuring the completion backend")
	completion, closeBackend, err := newCompletionBackend()
	if err != nil {
		log.Fatalf("Failed to initialize completion backend: %v", err)
	}
	if closeBackend != nil {
		defer closeBackend()
	}

	// --- Retrieval federation ---
	weaviateClient := connectWeaviate(ctx)

	var embedder *retrieval.HTTPEmbedder
	if embeddingURL := os.Getenv("EMBEDDING_SERVICE_URL"); embeddingURL != "" {
		embedder, err = retrieval.NewHTTPEmbedder(embeddingURL)
		if err != nil {
			slog.Warn("Embedding service misconfigured, vector retrieval disabled", "error", err)
		}
	} else {
		slog.Info("EMBEDDING_SERVICE_URL not set, vector retrieval disabled")
	}

	dataSpace := os.Getenv("ANALYST_DATA_SPACE")

	var ensemble *analysis.Ensemble
	var runner *analysis.Pipeline
	var indexer *ingest.Indexer
	if weaviateClient != nil && embedder != nil {
		keyword := retrieval.NewWeaviateKeywordRetriever(weaviateClient, dataSpace)
		vector := retrieval.NewWeaviateVectorRetriever(weaviateClient, embedder, dataSpace)

		ensemble, err = analysis.NewEnsemble(keyword, vector, completion, registry)
		if err != nil {
			log.Fatalf("Failed to build the answer ensemble: %v", err)
		}

		executor, err := analysis.NewExecutor(completion, ensemble, registry, analysis.ExecutorConfig{})
		if err != nil {
			log.Fatalf("Failed to build the stage executor: %v", err)
		}
		runner, err = analysis.NewPipeline(executor, analysis.PipelineOptions{Logger: logger.Slog()})
		if err != nil {
			log.Fatalf("Failed to build the pipeline runner: %v", err)
		}

		indexer, err = ingest.NewIndexer(weaviateClient, embedder)
		if err != nil {
			log.Fatalf("Failed to build the document indexer: %v", err)
		}
	}

	// --- Pipeline library ---
	pipelineDir := os.Getenv("PIPELINE_DIR")
	if pipelineDir == "" {
		pipelineDir = "/app/pipelines"
	}
	lib := library.NewLibrary(pipelineDir)
	if count, err := lib.Load(); err != nil {
		slog.Warn("Pipeline library failed to load", "dir", pipelineDir, "error", err)
	} else {
		slog.Info("Loaded pipeline library", "dir", pipelineDir, "count", count)
	}
	if metrics != nil {
		if _, err := metrics.RegisterPipelineLibrarySize(meter, func() int64 { return int64(lib.Len()) }); err != nil {
			slog.Warn("Pipeline library gauge disabled", "error", err)
		}
	}
	go func() {
		if err := lib.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("Pipeline watcher stopped", "error", err)
		}
	}()

	// --- Answer cache ---
	answers := openAnswerCache()
	if answers != nil {
		defer answers.Close()
	}

	// --- Market data ---
	var market *marketdata.Store
	if token := os.Getenv("INFLUXDB_TOKEN"); token != "" {
		store, closeMarket, err := marketdata.Connect(ctx, marketdata.Config{
			URL:    os.Getenv("INFLUXDB_URL"),
			Token:  token,
			Org:    os.Getenv("INFLUXDB_ORG"),
			Bucket: os.Getenv("INFLUXDB_BUCKET"),
		})
		if err != nil {
			slog.Warn("InfluxDB unavailable, market data routes disabled", "error", err)
		} else {
			market = store
			defer closeMarket()
		}
	} else {
		slog.Info("INFLUXDB_TOKEN not set, market data routes disabled")
	}

	// --- API authentication ---
	var authProvider extensions.AuthProvider = &extensions.NopAuthProvider{}
	if token := os.Getenv("ANALYST_API_TOKEN"); token != "" {
		authProvider = extensions.NewTokenAuthProvider(token)
		slog.Info("API token authentication enabled")
	}

	// --- GCS bulk ingestion ---
	var bucket *ingest.BucketLoader
	if bucketName := os.Getenv("GCS_BUCKET_NAME"); bucketName != "" && indexer != nil {
		bucket, err = ingest.NewBucketLoader(ctx, bucketName, os.Getenv("GCS_SA_KEY_PATH"))
		if err != nil {
			slog.Warn("GCS bucket loader unavailable", "bucket", bucketName, "error", err)
			bucket = nil
		} else {
			defer bucket.Close()
		}
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("analyst-service"))

	routes.SetupRoutes(router, routes.Dependencies{
		Ensemble: ensemble,
		Runner:   runner,
		Library:  lib,
		Registry: registry,
		Answers:  answers,
		Indexer:  indexer,
		Bucket:   bucket,
		Weaviate: weaviateClient,
		Market:   market,
		Fetcher:  marketdata.NewFetcher(),
		Metrics:  metrics,
		Auth:     authProvider,
		Audit:    &extensions.SlogAuditLogger{},
	})
	log.Println("started up the analyst service")

	log.Println("Starting the analyst server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
