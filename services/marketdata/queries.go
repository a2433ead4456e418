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
	"time"

	"github.com/AleutianAI/AleutianResearch/pkg/validation"
	"github.com/influxdata/influxdb-client-go/v2/api/query"
)

// DefaultHistoryDays is the price history window when the caller does
// not specify one.
const DefaultHistoryDays = 252 // one year of trading days

// PriceHistory returns up to the last `days` daily candles for a
// ticker, oldest first. A non-positive days defaults to one trading
// year.
func (s *Store) PriceHistory(ctx context.Context, ticker string, days int) ([]Candle, error) {
	sanitized, err := validation.SanitizeTicker(ticker)
	if err != nil {
		return nil, fmt.Errorf("invalid ticker: %w", err)
	}
	if days <= 0 {
		days = DefaultHistoryDays
	}

	// Over-fetch by 10 calendar days to cover weekends and holidays,
	// then trim to the requested count below.
	query := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -%dd)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.ticker == "%s")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: false)
	`, s.bucket, days+10, MeasurementPrice, sanitized)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("price history query failed: %w", err)
	}
	if result == nil {
		return []Candle{}, nil
	}

	var candles []Candle
	for result.Next() {
		candles = append(candles, candleFromRecord(result.Record()))
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("price history result error: %w", result.Err())
	}

	if len(candles) > days {
		candles = candles[len(candles)-days:]
	}
	return candles, nil
}

// LatestQuote returns the most recent close for a ticker with its
// change versus the prior session. Returns ErrNoData when the ticker
// has no candles in the last 30 days.
func (s *Store) LatestQuote(ctx context.Context, ticker string) (Quote, error) {
	sanitized, err := validation.SanitizeTicker(ticker)
	if err != nil {
		return Quote{}, fmt.Errorf("invalid ticker: %w", err)
	}

	query := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -30d)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.ticker == "%s")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: true)
		  |> limit(n: 2)
	`, s.bucket, MeasurementPrice, sanitized)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return Quote{}, fmt.Errorf("latest quote query failed: %w", err)
	}

	var rows []Candle
	if result != nil {
		for result.Next() {
			rows = append(rows, candleFromRecord(result.Record()))
		}
		if result.Err() != nil {
			return Quote{}, fmt.Errorf("latest quote result error: %w", result.Err())
		}
	}
	if len(rows) == 0 {
		return Quote{}, fmt.Errorf("ticker %s: %w", sanitized, ErrNoData)
	}

	latest := rows[0]
	quote := Quote{
		Ticker: sanitized,
		Time:   latest.Time,
		Price:  latest.Close,
		Volume: latest.Volume,
	}
	if len(rows) > 1 && rows[1].Close != 0 {
		quote.Change = latest.Close - rows[1].Close
		quote.ChangePct = quote.Change / rows[1].Close * 100
	}
	return quote, nil
}

// IPOWindow returns IPO calendar events between from and to inclusive,
// oldest first.
func (s *Store) IPOWindow(ctx context.Context, from, to time.Time) ([]IPO, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("window end %s precedes start %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	query := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: %s, stop: %s)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: false)
	`, s.bucket, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339), MeasurementIPO)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("IPO window query failed: %w", err)
	}
	if result == nil {
		return []IPO{}, nil
	}

	var events []IPO
	for result.Next() {
		record := result.Record()
		event := IPO{Date: record.Time()}
		if v, ok := record.ValueByKey("ticker").(string); ok {
			event.Ticker = v
		}
		if v, ok := record.ValueByKey("exchange").(string); ok {
			event.Exchange = v
		}
		if v, ok := record.ValueByKey("company").(string); ok {
			event.Company = v
		}
		if v, ok := record.ValueByKey("price_low").(float64); ok {
			event.PriceLow = v
		}
		if v, ok := record.ValueByKey("price_high").(float64); ok {
			event.PriceHigh = v
		}
		if v, ok := record.ValueByKey("shares").(int64); ok {
			event.Shares = v
		}
		events = append(events, event)
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("IPO window result error: %w", result.Err())
	}
	return events, nil
}

// latestCandleTime finds the day after the newest stored candle for a
// ticker, so incremental refreshes do not rewrite existing points.
// Falls back to the caller's start time when nothing is stored yet.
func (s *Store) latestCandleTime(ctx context.Context, ticker string, fallback time.Time) (time.Time, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -30d)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.ticker == "%s")
		  |> last()
	`, s.bucket, MeasurementPrice, ticker)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return fallback, err
	}

	if result != nil && result.Next() {
		// +1 day to avoid duplicating the stored candle
		next := result.Record().Time().Add(24 * time.Hour)
		if next.After(fallback) {
			return next, nil
		}
	}
	if result != nil && result.Err() != nil {
		return fallback, result.Err()
	}
	return fallback, nil
}

func candleFromRecord(record *query.FluxRecord) Candle {
	c := Candle{Time: record.Time()}
	if v, ok := record.ValueByKey("open").(float64); ok {
		c.Open = v
	}
	if v, ok := record.ValueByKey("high").(float64); ok {
		c.High = v
	}
	if v, ok := record.ValueByKey("low").(float64); ok {
		c.Low = v
	}
	if v, ok := record.ValueByKey("close").(float64); ok {
		c.Close = v
	}
	if v, ok := record.ValueByKey("adj_close").(float64); ok {
		c.AdjClose = v
	}
	if v, ok := record.ValueByKey("volume").(int64); ok {
		c.Volume = v
	}
	return c
}
