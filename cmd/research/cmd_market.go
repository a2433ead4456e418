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
	"strings"
	"time"

	"github.com/AleutianAI/AleutianResearch/pkg/ux"
	"github.com/AleutianAI/AleutianResearch/services/analyst/datatypes"
	"github.com/AleutianAI/AleutianResearch/services/marketdata"
	"github.com/spf13/cobra"
)

func runQuoteCommand(cmd *cobra.Command, args []string) {
	ticker := strings.ToUpper(args[0])

	var quote marketdata.Quote
	url := fmt.Sprintf("%s/v1/marketdata/quotes/%s", getAnalystBaseURL(), ticker)
	if err := getJSON(context.Background(), url, &quote, 30*time.Second); err != nil {
		log.Fatalf("Error: %v", err)
	}

	changeStyle := ux.Styles.Success
	if quote.Change < 0 {
		changeStyle = ux.Styles.Error
	}

	fmt.Printf("%s  %.2f  %s\n",
		ux.Styles.Title.Render(quote.Ticker),
		quote.Price,
		changeStyle.Render(fmt.Sprintf("%+.2f (%+.2f%%)", quote.Change, quote.ChangePct)))
	ux.Muted(fmt.Sprintf("volume %d · as of %s", quote.Volume,
		quote.Time.Format("2006-01-02")))
}

func runPricesCommand(cmd *cobra.Command, args []string) {
	ticker := strings.ToUpper(args[0])

	url := fmt.Sprintf("%s/v1/marketdata/prices/%s", getAnalystBaseURL(), ticker)
	if quoteDays > 0 {
		url = fmt.Sprintf("%s?days=%d", url, quoteDays)
	}

	var resp datatypes.PriceHistoryResponse
	if err := getJSON(context.Background(), url, &resp, 30*time.Second); err != nil {
		log.Fatalf("Error: %v", err)
	}

	if resp.Count == 0 {
		fmt.Printf("No candles stored for %s. Run a market refresh first.\n", ticker)
		return
	}

	ux.Title(fmt.Sprintf("%s · last %d candles", resp.Ticker, resp.Count))
	fmt.Printf("%-12s %10s %10s %10s %10s %12s\n", "date", "open", "high", "low", "close", "volume")
	for _, candle := range resp.Candles {
		fmt.Printf("%-12s %10.2f %10.2f %10.2f %10.2f %12d\n",
			candle.Time.Format("2006-01-02"),
			candle.Open, candle.High, candle.Low, candle.Close, candle.Volume)
	}
}
