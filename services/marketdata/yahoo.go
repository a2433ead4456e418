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
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher pulls daily candles from the Yahoo Finance chart API.
type Fetcher struct {
	client  HTTPClient
	baseURL string
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient overrides the default 30s-timeout HTTP client.
func WithHTTPClient(client HTTPClient) FetcherOption {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithBaseURL points the Fetcher at an alternate chart API host.
func WithBaseURL(baseURL string) FetcherOption {
	return func(f *Fetcher) {
		if baseURL != "" {
			f.baseURL = baseURL
		}
	}
}

// NewFetcher builds a Fetcher with sane defaults.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: defaultYahooBaseURL,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type yahooChartResponse struct {
	Chart struct {
		Result []yahooResult `json:"result"`
		Error  interface{}   `json:"error"`
	} `json:"chart"`
}

type yahooResult struct {
	Meta struct {
		Currency string `json:"currency"`
		Symbol   string `json:"symbol"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []float64 `json:"open"`
			High   []float64 `json:"high"`
			Low    []float64 `json:"low"`
			Close  []float64 `json:"close"`
			Volume []int64   `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// DailyCandles fetches daily candles for a ticker from since until now.
// Returns nil with no error when since is in the future.
func (f *Fetcher) DailyCandles(ctx context.Context, ticker string, since time.Time) ([]Candle, error) {
	start := since.Unix()
	end := time.Now().Unix()
	if start > end {
		return nil, nil
	}

	url := fmt.Sprintf(
		"%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d&events=history",
		f.baseURL, ticker, start, end,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Yahoo API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Yahoo API returned status %s", resp.Status)
	}

	var chartData yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chartData); err != nil {
		return nil, fmt.Errorf("failed to decode Yahoo JSON: %w", err)
	}

	if chartData.Chart.Error != nil {
		return nil, fmt.Errorf("Yahoo API error: %v", chartData.Chart.Error)
	}
	if len(chartData.Chart.Result) == 0 {
		return nil, fmt.Errorf("no results for ticker %s", ticker)
	}

	res := chartData.Chart.Result[0]
	if len(res.Indicators.AdjClose) == 0 || len(res.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("incomplete indicators for ticker %s", ticker)
	}

	adjCloseData := res.Indicators.AdjClose[0].AdjClose
	quoteData := res.Indicators.Quote[0]

	var candles []Candle
	for i, ts := range res.Timestamp {
		if len(adjCloseData) <= i ||
			len(quoteData.Close) <= i ||
			len(quoteData.Open) <= i ||
			len(quoteData.High) <= i ||
			len(quoteData.Low) <= i ||
			len(quoteData.Volume) <= i {
			continue
		}
		candles = append(candles, Candle{
			Time:     time.Unix(ts, 0).UTC(),
			Open:     quoteData.Open[i],
			High:     quoteData.High[i],
			Low:      quoteData.Low[i],
			Close:    quoteData.Close[i],
			AdjClose: adjCloseData[i],
			Volume:   quoteData.Volume[i],
		})
	}
	return candles, nil
}
