// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianResearch/pkg/validation"
	"github.com/AleutianAI/AleutianResearch/services/analyst/datatypes"
	"github.com/AleutianAI/AleutianResearch/services/marketdata"
	"github.com/gin-gonic/gin"
)

// dateLayout is the wire format for market data date parameters.
const dateLayout = "2006-01-02"

// HandlePriceHistory serves GET /v1/marketdata/prices/:ticker with an
// optional ?days= parameter (default one trading year).
func HandlePriceHistory(store *marketdata.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticker, err := validation.SanitizeTicker(c.Param("ticker"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		days := marketdata.DefaultHistoryDays
		if raw := c.Query("days"); raw != "" {
			days, err = strconv.Atoi(raw)
			if err != nil || days <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
				return
			}
		}

		candles, err := store.PriceHistory(c.Request.Context(), ticker, days)
		if err != nil {
			slog.Error("Price history query failed", "ticker", ticker, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to query price history"})
			return
		}

		c.JSON(http.StatusOK, datatypes.PriceHistoryResponse{
			Ticker:  ticker,
			Days:    days,
			Candles: candles,
			Count:   len(candles),
		})
	}
}

// HandleLatestQuote serves GET /v1/marketdata/quotes/:ticker.
func HandleLatestQuote(store *marketdata.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticker, err := validation.SanitizeTicker(c.Param("ticker"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		quote, err := store.LatestQuote(c.Request.Context(), ticker)
		if err != nil {
			if errors.Is(err, marketdata.ErrNoData) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no quote for ticker " + ticker})
				return
			}
			slog.Error("Quote query failed", "ticker", ticker, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to query quote"})
			return
		}

		c.JSON(http.StatusOK, quote)
	}
}

// HandleIPOCalendar serves GET /v1/marketdata/ipos with optional
// ?from= and ?to= date parameters. The default window is the next two
// weeks.
func HandleIPOCalendar(store *marketdata.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now().UTC().Truncate(24 * time.Hour)
		from, to := now, now.AddDate(0, 0, 14)

		var err error
		if raw := c.Query("from"); raw != "" {
			from, err = time.Parse(dateLayout, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "from must be a YYYY-MM-DD date"})
				return
			}
		}
		if raw := c.Query("to"); raw != "" {
			to, err = time.Parse(dateLayout, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "to must be a YYYY-MM-DD date"})
				return
			}
		}
		if to.Before(from) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "window end precedes start"})
			return
		}

		ipos, err := store.IPOWindow(c.Request.Context(), from, to)
		if err != nil {
			slog.Error("IPO calendar query failed", "from", from, "to", to, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to query IPO calendar"})
			return
		}

		c.JSON(http.StatusOK, datatypes.IPOCalendarResponse{
			From:  from,
			To:    to,
			IPOs:  ipos,
			Count: len(ipos),
		})
	}
}

// HandleMarketRefresh serves POST /v1/marketdata/refresh: fetches fresh
// daily candles for the requested tickers and stores them.
//
// # Description
//
// The refresh is incremental; each ticker resumes from its latest
// stored candle, falling back to the request's since date (default one
// year back). Per-ticker outcomes are reported in the response details.
func HandleMarketRefresh(store *marketdata.Store, fetcher *marketdata.Fetcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.MarketRefreshRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		since := time.Now().UTC().AddDate(-1, 0, 0)
		if req.Since != "" {
			parsed, err := time.Parse(dateLayout, req.Since)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a YYYY-MM-DD date"})
				return
			}
			since = parsed
		}

		slog.Info("Starting market data refresh", "tickers", len(req.Tickers), "since", since)
		details := store.Refresh(c.Request.Context(), fetcher, req.Tickers, since)

		status := "success"
		for _, outcome := range details {
			if strings.HasPrefix(outcome, "Error:") {
				status = "partial"
				break
			}
		}

		c.JSON(http.StatusOK, datatypes.MarketRefreshResponse{Status: status, Details: details})
	}
}
