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
	"github.com/AleutianAI/AleutianResearch/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	askModel         string
	askKKeyword      int
	askKVector       int
	askSources       []string
	askTemperature   float32
	askNoCache       bool
	pipelineInput    string
	followRun        bool
	quoteDays        int
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	rootCmd = &cobra.Command{
		Use:   "research",
		Short: "A cli for the Aleutian Research analyst service",
		Long: `Research is the terminal client for the Aleutian Research analyst:
				ask questions against your document corpus, run analysis
				pipelines, ingest filings and notes, and check market data.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}

	// --- Ask ---
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the analyst a question (interactive session when no question is given)",
		Run:   runAskCommand, // Defined in cmd_ask.go
	}

	// --- Pipelines ---
	pipelineCmd = &cobra.Command{
		Use:   "pipeline",
		Short: "Run and inspect multi-stage analysis pipelines",
	}
	pipelineRunCmd = &cobra.Command{
		Use:   "run [file or pipeline name]",
		Short: "Run a pipeline from a local YAML file or from the server library",
		Run:   runPipelineRun, // Defined in cmd_pipeline.go
	}
	pipelineListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the pipelines loaded in the server library",
		Run:   runPipelineList, // Defined in cmd_pipeline.go
	}

	// --- Ingest ---
	ingestCmd = &cobra.Command{
		Use:     "ingest [path...]",
		Short:   "Ingest local documents into the knowledge base",
		Aliases: []string{"i"},
		Run:     runIngestCommand, // Defined in cmd_ingest.go
	}

	// --- Market Data ---
	quoteCmd = &cobra.Command{
		Use:   "quote [ticker]",
		Short: "Show the latest quote for a ticker",
		Args:  cobra.ExactArgs(1),
		Run:   runQuoteCommand, // Defined in cmd_market.go
	}
	pricesCmd = &cobra.Command{
		Use:   "prices [ticker]",
		Short: "Show recent daily candles for a ticker",
		Args:  cobra.ExactArgs(1),
		Run:   runPricesCommand, // Defined in cmd_market.go
	}

	// --- Models ---
	modelsCmd = &cobra.Command{
		Use:   "models",
		Short: "List the models the analyst accepts",
		Run:   runModelsCommand, // Defined in cmd_models.go
	}
)

// init runs when the Go program starts
func init() {
	// Global UX personality flag
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default, rich nautical), standard, minimal, or machine (scripting)")

	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askModel, "model", "m", "gpt-4o-mini", "Model to answer with")
	askCmd.Flags().IntVar(&askKKeyword, "k-keyword", 0, "Keyword passages to retrieve (0 = server default)")
	askCmd.Flags().IntVar(&askKVector, "k-vector", 0, "Vector passages to retrieve (0 = server default)")
	askCmd.Flags().StringSliceVar(&askSources, "source", nil,
		"Knowledge source priority (repeatable: internal, online)")
	askCmd.Flags().Float32Var(&askTemperature, "temperature", -1, "Sampling temperature (-1 = server default)")
	askCmd.Flags().BoolVar(&askNoCache, "no-cache", false, "Bypass the answer cache for this question")

	rootCmd.AddCommand(pipelineCmd)
	pipelineCmd.AddCommand(pipelineRunCmd)
	pipelineRunCmd.Flags().StringVarP(&pipelineInput, "input", "i", "", "Initial input text for the run")
	pipelineRunCmd.Flags().BoolVar(&followRun, "follow", false, "Stream per-stage progress over the websocket")
	pipelineCmd.AddCommand(pipelineListCmd)

	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().String("data-space", "", "The logical data space to ingest into (e.g., 'filings', 'notes')")
	ingestCmd.Flags().String("version", "", "A version tag for this ingestion (e.g., 'v1.1', '2026-08-01')")

	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(pricesCmd)
	pricesCmd.Flags().IntVar(&quoteDays, "days", 0, "Trading days of history to show (0 = server default)")

	rootCmd.AddCommand(modelsCmd)
}
