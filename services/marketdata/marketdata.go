// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package marketdata stores and serves price history and IPO calendar
// data backed by InfluxDB. All tickers are sanitized before they are
// interpolated into Flux queries.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

const (
	// MeasurementPrice is the InfluxDB measurement for daily OHLCV candles.
	MeasurementPrice = "stock_price"

	// MeasurementIPO is the InfluxDB measurement for IPO calendar events.
	MeasurementIPO = "ipo_event"
)

// ErrNoData indicates a query matched no rows for the requested ticker.
var ErrNoData = errors.New("no market data")

// Candle is one day of OHLCV data for a ticker.
type Candle struct {
	Time     time.Time `json:"time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adj_close"`
	Volume   int64     `json:"volume"`
}

// Quote is the most recent price for a ticker with its change versus
// the prior close.
type Quote struct {
	Ticker    string    `json:"ticker"`
	Time      time.Time `json:"time"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
	Volume    int64     `json:"volume"`
}

// IPO is one upcoming or completed listing event.
type IPO struct {
	Ticker    string    `json:"ticker"`
	Company   string    `json:"company"`
	Exchange  string    `json:"exchange"`
	Date      time.Time `json:"date"`
	PriceLow  float64   `json:"price_low"`
	PriceHigh float64   `json:"price_high"`
	Shares    int64     `json:"shares"`
}

// Store reads and writes market data through the InfluxDB v2 API.
type Store struct {
	queryAPI api.QueryAPI
	writeAPI api.WriteAPIBlocking
	bucket   string
}

// NewStore builds a Store from already-constructed API handles.
func NewStore(queryAPI api.QueryAPI, writeAPI api.WriteAPIBlocking, bucket string) (*Store, error) {
	if queryAPI == nil {
		return nil, fmt.Errorf("query API cannot be nil")
	}
	if writeAPI == nil {
		return nil, fmt.Errorf("write API cannot be nil")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket cannot be empty")
	}
	return &Store{queryAPI: queryAPI, writeAPI: writeAPI, bucket: bucket}, nil
}

// Config holds the InfluxDB connection settings.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Connect creates an InfluxDB client, waits for the instance to report
// healthy, and returns a ready Store plus a close function. The health
// wait covers container startup ordering.
func Connect(ctx context.Context, cfg Config) (*Store, func(), error) {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:8086"
	}
	if cfg.Token == "" {
		return nil, nil, fmt.Errorf("influx token is required")
	}
	if cfg.Org == "" {
		cfg.Org = "aleutian-research"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "market-data"
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	var ready bool
	for i := 0; i < 5; i++ {
		health, err := client.Health(ctx)
		if err == nil && health.Status == "pass" {
			ready = true
			break
		}

		var errMsg string
		if err != nil {
			errMsg = err.Error()
		} else if health != nil && health.Message != nil {
			errMsg = *health.Message
		}
		slog.Warn("InfluxDB not ready, retrying...", "attempt", i+1, "error", errMsg)

		select {
		case <-ctx.Done():
			client.Close()
			return nil, nil, ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	if !ready {
		client.Close()
		return nil, nil, fmt.Errorf("InfluxDB at %s not healthy after all retries", cfg.URL)
	}

	store := &Store{
		queryAPI: client.QueryAPI(cfg.Org),
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
	}
	return store, client.Close, nil
}
