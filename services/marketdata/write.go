// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/AleutianResearch/pkg/validation"
)

const refreshWorkers = 8 // parallel fetches per refresh call

// RecordCandles writes daily candles for a ticker. Candles with a zero
// timestamp are skipped.
func (s *Store) RecordCandles(ctx context.Context, ticker string, candles []Candle) error {
	sanitized, err := validation.SanitizeTicker(ticker)
	if err != nil {
		return fmt.Errorf("invalid ticker: %w", err)
	}

	var points []*write.Point
	for _, c := range candles {
		if c.Time.IsZero() {
			continue
		}
		points = append(points, influxdb2.NewPoint(
			MeasurementPrice,
			map[string]string{"ticker": sanitized},
			map[string]interface{}{
				"open":      c.Open,
				"high":      c.High,
				"low":       c.Low,
				"close":     c.Close,
				"adj_close": c.AdjClose,
				"volume":    c.Volume,
			},
			c.Time,
		))
	}
	if len(points) == 0 {
		return nil
	}
	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write candles for %s: %w", sanitized, err)
	}
	return nil
}

// RecordIPO writes one IPO calendar event.
func (s *Store) RecordIPO(ctx context.Context, ipo IPO) error {
	sanitized, err := validation.SanitizeTicker(ipo.Ticker)
	if err != nil {
		return fmt.Errorf("invalid ticker: %w", err)
	}
	if ipo.Date.IsZero() {
		return fmt.Errorf("IPO date is required")
	}

	point := influxdb2.NewPoint(
		MeasurementIPO,
		map[string]string{
			"ticker":   sanitized,
			"exchange": ipo.Exchange,
		},
		map[string]interface{}{
			"company":    ipo.Company,
			"price_low":  ipo.PriceLow,
			"price_high": ipo.PriceHigh,
			"shares":     ipo.Shares,
		},
		ipo.Date,
	)
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("failed to write IPO event for %s: %w", sanitized, err)
	}
	return nil
}

// Refresh pulls daily candles for each ticker from the fetcher and
// stores anything newer than what the bucket already holds. Returns a
// per-ticker status map; individual ticker failures do not abort the
// batch.
func (s *Store) Refresh(ctx context.Context, fetcher *Fetcher, tickers []string, since time.Time) map[string]string {
	details := make(map[string]string, len(tickers))
	if fetcher == nil {
		for _, t := range tickers {
			details[t] = "Error: no fetcher configured"
		}
		return details
	}

	jobs := make(chan string, len(tickers))
	results := make(chan map[string]string, len(tickers))

	var wg sync.WaitGroup
	for i := 0; i < refreshWorkers; i++ {
		wg.Add(1)
		go s.refreshWorker(ctx, i, &wg, fetcher, jobs, results, since)
	}

	for _, ticker := range tickers {
		sanitized, err := validation.SanitizeTicker(ticker)
		if err != nil {
			details[ticker] = "Error: " + err.Error()
			continue
		}
		jobs <- sanitized
	}
	close(jobs)

	wg.Wait()
	close(results)

	for res := range results {
		for k, v := range res {
			details[k] = v
		}
	}
	return details
}

// refreshWorker processes a single ticker at a time off the jobs channel.
func (s *Store) refreshWorker(ctx context.Context, id int, wg *sync.WaitGroup,
	fetcher *Fetcher, jobs <-chan string, results chan<- map[string]string,
	since time.Time) {

	defer wg.Done()
	for ticker := range jobs {
		if ctx.Err() != nil {
			results <- map[string]string{ticker: "Error: " + ctx.Err().Error()}
			continue
		}
		slog.Info("Refresh worker processing", "worker_id", id, "ticker", ticker)

		start, err := s.latestCandleTime(ctx, ticker, since)
		if err != nil {
			slog.Error("Failed to find latest stored candle", "worker_id", id, "ticker", ticker, "error", err)
			results <- map[string]string{ticker: "Error: " + err.Error()}
			continue
		}

		candles, err := fetcher.DailyCandles(ctx, ticker, start)
		if err != nil {
			slog.Error("Failed to fetch candles", "worker_id", id, "ticker", ticker, "error", err)
			results <- map[string]string{ticker: "Error: " + err.Error()}
			continue
		}

		if len(candles) == 0 {
			slog.Info("No new data to write", "worker_id", id, "ticker", ticker)
			results <- map[string]string{ticker: "No new data"}
			continue
		}

		if err := s.RecordCandles(ctx, ticker, candles); err != nil {
			slog.Error("Failed to write candles", "worker_id", id, "ticker", ticker, "error", err)
			results <- map[string]string{ticker: "Error: " + err.Error()}
			continue
		}
		results <- map[string]string{ticker: fmt.Sprintf("%d points written", len(candles))}
	}
}
