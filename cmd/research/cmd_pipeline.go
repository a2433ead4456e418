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
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianResearch/pkg/ux"
	"github.com/AleutianAI/AleutianResearch/services/analyst/datatypes"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

func runPipelineRun(cmd *cobra.Command, args []string) {
	if len(args) != 1 {
		log.Fatalf("Usage: research pipeline run <file or pipeline name> --input <text>")
	}
	if pipelineInput == "" {
		log.Fatalf("--input is required: the text the first stage starts from")
	}

	req := buildRunRequest(args[0], pipelineInput)

	if followRun {
		followPipelineRun(req)
		return
	}

	label := req.Pipeline
	if label == "" {
		label = args[0]
	}
	spin := ux.NewSpinner(fmt.Sprintf("Running %s", label))
	spin.Start()
	resp, err := sendPipelineRun(req)
	spin.Stop()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	printRunResult(resp)
}

// buildRunRequest treats an argument that names a readable file as an
// inline YAML definition and anything else as a server library name.
func buildRunRequest(target, input string) datatypes.PipelineRunRequest {
	req := datatypes.PipelineRunRequest{Input: input}
	if data, err := os.ReadFile(target); err == nil {
		req.Definition = string(data)
	} else {
		req.Pipeline = target
	}
	return req
}

// sendPipelineRun posts one run request and waits for the full result.
// Pipelines chain several completions, so the timeout is generous.
func sendPipelineRun(req datatypes.PipelineRunRequest) (datatypes.PipelineRunResponse, error) {
	var resp datatypes.PipelineRunResponse
	url := fmt.Sprintf("%s/v1/pipelines/run", getAnalystBaseURL())
	err := postJSON(context.Background(), url, req, &resp, 10*time.Minute)
	return resp, err
}

func printRunResult(resp datatypes.PipelineRunResponse) {
	ux.Title(fmt.Sprintf("Pipeline %s", resp.Pipeline))
	ux.Muted(fmt.Sprintf("run %s · %dms", resp.RunID, resp.DurationMs))

	for i, trace := range resp.Traces {
		fmt.Printf("%d. %s (%s) %dms\n", i+1, trace.Name, trace.Type, trace.DurationMs)
	}
	for _, warning := range resp.Warnings {
		if warning.Stage != "" {
			ux.Warning(fmt.Sprintf("%s: %s", warning.Stage, warning.Message))
		} else {
			ux.Warning(warning.Message)
		}
	}

	fmt.Println()
	fmt.Println(ux.Styles.Box.Render(resp.FinalOutput))
}

// followPipelineRun streams per-stage progress over the websocket
// endpoint instead of waiting silently for the aggregate response.
func followPipelineRun(req datatypes.PipelineRunRequest) {
	base := getAnalystBaseURL()
	wsURL := strings.Replace(base, "http", "ws", 1) + "/v1/pipelines/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", wsURL, err)
	}
	defer conn.Close()

	for {
		var event datatypes.PipelineEvent
		if err := conn.ReadJSON(&event); err != nil {
			log.Fatalf("Lost the analyst connection: %v", err)
		}

		switch event.Type {
		case datatypes.EventConnected:
			ux.Muted(fmt.Sprintf("session %s", event.SessionID))
			if err := conn.WriteJSON(req); err != nil {
				log.Fatalf("Failed to send the run request: %v", err)
			}

		case datatypes.EventStageStarted:
			fmt.Printf("[%d/%d] %s (%s)...\n", event.Index+1, event.Total, event.Stage, event.StageType)

		case datatypes.EventStageCompleted:
			ux.Success(fmt.Sprintf("%s finished in %dms", event.Stage, event.DurationMs))

		case datatypes.EventRunCompleted:
			fmt.Println()
			fmt.Println(ux.Styles.Box.Render(event.Output))
			ux.Muted(fmt.Sprintf("run %s · %dms", event.RunID, event.DurationMs))
			return

		case datatypes.EventError:
			log.Fatalf("Pipeline run failed: %s", event.Error)
		}
	}
}

func runPipelineList(cmd *cobra.Command, args []string) {
	var resp datatypes.PipelineListResponse
	url := fmt.Sprintf("%s/v1/pipelines", getAnalystBaseURL())
	if err := getJSON(context.Background(), url, &resp, 30*time.Second); err != nil {
		log.Fatalf("Error: %v", err)
	}

	if resp.Count == 0 {
		fmt.Println("The server library holds no pipelines.")
		return
	}

	ux.Title(fmt.Sprintf("Pipelines (engine %s)", resp.EngineVersion))
	for _, p := range resp.Pipelines {
		line := fmt.Sprintf("%s  (%d stages)", p.Name, p.StageCount)
		if p.StageCount == 1 {
			line = fmt.Sprintf("%s  (1 stage)", p.Name)
		}
		fmt.Println(line)
		if p.Description != "" {
			ux.Muted("  " + p.Description)
		}
		if p.MinEngine != "" {
			ux.Muted("  requires engine >= " + p.MinEngine)
		}
	}
}
