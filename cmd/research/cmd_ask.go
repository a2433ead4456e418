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
	"io"
	"log"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianResearch/pkg/ux"
	"github.com/AleutianAI/AleutianResearch/services/analyst/datatypes"
	"github.com/spf13/cobra"
)

func runAskCommand(cmd *cobra.Command, args []string) {
	if len(args) == 0 {
		runInteractiveAsk()
		return
	}

	question := strings.Join(args, " ")
	resp, err := askQuestion(question)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	printAnswer(resp)
}

// askQuestion sends one question to the analyst with the current flag
// values and waits for the synthesized answer.
func askQuestion(question string) (datatypes.AnswerResponse, error) {
	req := datatypes.AnswerRequest{
		Question:      question,
		Model:         askModel,
		KKeyword:      askKKeyword,
		KVector:       askKVector,
		PriorityOrder: askSources,
		NoCache:       askNoCache,
	}
	if askTemperature >= 0 {
		temp := askTemperature
		req.Temperature = &temp
	}

	var resp datatypes.AnswerResponse
	url := fmt.Sprintf("%s/v1/answer", getAnalystBaseURL())

	spin := ux.NewSpinner(fmt.Sprintf("Consulting %s", askModel))
	spin.Start()
	err := postJSON(context.Background(), url, req, &resp, 3*time.Minute)
	spin.Stop()

	return resp, err
}

func printAnswer(resp datatypes.AnswerResponse) {
	fmt.Println(ux.Styles.Box.Render(resp.Answer))

	if len(resp.Sources) > 0 {
		fmt.Println("\nSources Used:")
		for i, source := range resp.Sources {
			scoreInfo := ""
			if source.Score != 0 {
				scoreInfo = fmt.Sprintf("(Score: %.4f)", source.Score)
			}
			fmt.Printf("%d. %s %s\n", i+1, source.Source, scoreInfo)
		}
	} else {
		ux.Muted("(no corpus passages matched; the answer leans on online search and the model)")
	}

	meta := fmt.Sprintf("%s · %dms · k=%d/%d", resp.Model, resp.DurationMs,
		resp.KKeywordUsed, resp.KVectorUsed)
	if resp.Cached {
		meta += " · cached"
	}
	ux.Muted(meta)
}

// runInteractiveAsk loops on styled input until exit, quit, or Ctrl+D.
// Arrow keys recall earlier questions when stdin is a terminal.
func runInteractiveAsk() {
	reader := NewInteractiveInputReader(50)
	if p, ok := reader.(PromptingInputReader); ok {
		p.SetPrompt("research> ")
	}

	ux.Title("Aleutian Research")
	ux.Muted("Ask about your corpus. Type 'exit' or press Ctrl+D to leave.")

	for {
		if _, ok := reader.(PromptingInputReader); !ok {
			fmt.Print("research> ")
		}
		question, err := reader.ReadLine()
		if err == io.EOF {
			fmt.Println()
			return
		}
		if err != nil {
			log.Fatalf("Input error: %v", err)
		}

		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			return
		}

		resp, err := askQuestion(question)
		if err != nil {
			ux.Error(err.Error())
			continue
		}
		printAnswer(resp)
		fmt.Println()
	}
}
