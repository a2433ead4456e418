// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianResearch/pkg/extensions"
	"github.com/AleutianAI/AleutianResearch/pkg/telemetry"
	"github.com/AleutianAI/AleutianResearch/services/analysis"
	"github.com/AleutianAI/AleutianResearch/services/analysis/library"
	"github.com/AleutianAI/AleutianResearch/services/analyst/cache"
	"github.com/AleutianAI/AleutianResearch/services/analyst/handlers"
	"github.com/AleutianAI/AleutianResearch/services/analyst/middleware"
	"github.com/AleutianAI/AleutianResearch/services/ingest"
	"github.com/AleutianAI/AleutianResearch/services/llm"
	"github.com/AleutianAI/AleutianResearch/services/marketdata"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

// Dependencies carries everything the route handlers need. Nil fields
// disable their routes: without a vector store the service still
// answers /v1/models and market data queries, it just cannot retrieve
// or run pipelines.
type Dependencies struct {
	Ensemble *analysis.Ensemble
	Runner   *analysis.Pipeline
	Library  *library.Library
	Registry *llm.ModelRegistry
	Answers  *cache.Cache
	Indexer  *ingest.Indexer
	Bucket   *ingest.BucketLoader
	Weaviate *weaviate.Client
	Market   *marketdata.Store
	Fetcher  *marketdata.Fetcher
	Metrics  *telemetry.Metrics
	Auth     extensions.AuthProvider
	Audit    extensions.AuditLogger
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {

	router.GET("/health", handlers.HealthCheck)
	if handler := telemetry.MetricsHandler(); handler != nil {
		router.GET("/metrics", gin.WrapH(handler))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	if deps.Auth != nil {
		v1.Use(middleware.Auth(deps.Auth, deps.Audit))
	}
	{
		v1.GET("/models", handlers.HandleListModels(deps.Registry))

		if deps.Ensemble != nil {
			v1.POST("/answer", handlers.HandleAnswer(deps.Ensemble, deps.Answers, deps.Metrics))
		}

		// Pipeline routes
		pipelines := v1.Group("/pipelines")
		{
			pipelines.GET("", handlers.HandleListPipelines(deps.Library))
			if deps.Runner != nil {
				pipelines.POST("/run", handlers.HandleRunPipeline(deps.Runner, deps.Library, deps.Metrics))
				pipelines.GET("/ws", handlers.HandlePipelineWS(deps.Runner, deps.Library))
			}
		}

		// Document ingestion routes
		if deps.Indexer != nil {
			v1.POST("/documents", handlers.HandleIngestDocuments(deps.Indexer, deps.Bucket, deps.Metrics))
		}
		if deps.Weaviate != nil {
			v1.GET("/documents/sources", handlers.HandleListSources(deps.Weaviate))
		}

		// Market data routes
		if deps.Market != nil {
			market := v1.Group("/marketdata")
			{
				market.GET("/prices/:ticker", handlers.HandlePriceHistory(deps.Market))
				market.GET("/quotes/:ticker", handlers.HandleLatestQuote(deps.Market))
				market.GET("/ipos", handlers.HandleIPOCalendar(deps.Market))
				market.POST("/refresh", handlers.HandleMarketRefresh(deps.Market, deps.Fetcher))
			}
		}
	}
}
