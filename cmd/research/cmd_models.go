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
	"fmt"
	"log"
	"time"

	"github.com/AleutianAI/AleutianResearch/pkg/ux"
	"github.com/AleutianAI/AleutianResearch/services/analyst/datatypes"
	"github.com/spf13/cobra"
)

func runModelsCommand(cmd *cobra.Command, args []string) {
	var resp datatypes.ModelsResponse
	url := fmt.Sprintf("%s/v1/models", getAnalystBaseURL())
	if err := getJSON(context.Background(), url, &resp, 30*time.Second); err != nil {
		log.Fatalf("Error: %v", err)
	}

	ux.Title(fmt.Sprintf("Registered models (%d)", resp.Count))
	fmt.Printf("%-32s %14s\n", "model", "context tokens")
	for _, model := range resp.Models {
		fmt.Printf("%-32s %14d\n", model.Name, model.ContextTokens)
	}
}
