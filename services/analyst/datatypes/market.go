// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains response types for the market data endpoints.
package datatypes

import (
	"time"

	"github.com/AleutianAI/AleutianResearch/pkg/validation"
	"github.com/AleutianAI/AleutianResearch/services/marketdata"
)

// =============================================================================
// Market Data Types
// =============================================================================

// PriceHistoryResponse holds daily candles for one ticker.
type PriceHistoryResponse struct {
	Ticker  string              `json:"ticker"`
	Days    int                 `json:"days"`
	Candles []marketdata.Candle `json:"candles"`
	Count   int                 `json:"count"`
}

// IPOCalendarResponse holds IPO events inside a date window.
type IPOCalendarResponse struct {
	From  time.Time        `json:"from"`
	To    time.Time        `json:"to"`
	IPOs  []marketdata.IPO `json:"ipos"`
	Count int              `json:"count"`
}

// MarketRefreshRequest asks the service to fetch and store fresh daily
// candles for a set of tickers.
//
// # Validation
//
//   - Tickers: required, 1-50 symbols, each max 12 characters
//   - Since: optional ISO date (2006-01-02); default one year back
type MarketRefreshRequest struct {
	Tickers []string `json:"tickers" validate:"required,min=1,max=50,dive,max=12"`
	Since   string   `json:"since,omitempty"`
}

// Validate checks the struct tags and the ticker symbol format, so a
// bad batch fails before any Yahoo calls are spent.
func (r *MarketRefreshRequest) Validate() error {
	if err := apiValidate.Struct(r); err != nil {
		return err
	}
	return validation.ValidateTickers(r.Tickers)
}

// MarketRefreshResponse reports the per-ticker refresh outcomes.
type MarketRefreshResponse struct {
	Status  string            `json:"status"`
	Details map[string]string `json:"details"`
}
