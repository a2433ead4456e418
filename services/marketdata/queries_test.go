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
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInflux serves the v2 query and write endpoints the Store touches,
// recording Flux queries and line-protocol writes.
type fakeInflux struct {
	mu      sync.Mutex
	queries []string
	writes  []string
	buckets []string
	respond func(flux string) string
}

func (f *fakeInflux) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v2/query", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Query string `json:"query"`
		}
		_ = json.Unmarshal(body, &req)

		f.mu.Lock()
		f.queries = append(f.queries, req.Query)
		respond := f.respond
		f.mu.Unlock()

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		if respond != nil {
			_, _ = io.WriteString(w, respond(req.Query))
		}
	})

	mux.HandleFunc("/api/v2/write", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.writes = append(f.writes, string(body))
		f.buckets = append(f.buckets, r.URL.Query().Get("bucket"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func (f *fakeInflux) capturedQueries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func (f *fakeInflux) capturedWrites() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

// newFakeStore wires a real InfluxDB client against the fake server.
func newFakeStore(t *testing.T) (*fakeInflux, *Store) {
	t.Helper()
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	client := influxdb2.NewClient(srv.URL, "test-token")
	t.Cleanup(client.Close)

	store, err := NewStore(
		client.QueryAPI("research"),
		client.WriteAPIBlocking("research", "market-data"),
		"market-data",
	)
	require.NoError(t, err)
	return fake, store
}

// priceCSV builds an annotated-CSV response shaped like a pivoted
// stock_price query result.
func priceCSV(rows ...string) string {
	lines := []string{
		"#datatype,string,long,dateTime:RFC3339,dateTime:RFC3339,dateTime:RFC3339,string,string,double,double,double,double,double,long",
		"#group,false,false,true,true,false,true,true,false,false,false,false,false,false",
		"#default,_result,,,,,,,,,,,,",
		",result,table,_start,_stop,_time,_measurement,ticker,open,high,low,close,adj_close,volume",
	}
	lines = append(lines, rows...)
	return strings.Join(lines, "\n") + "\n"
}

func priceRow(ts, ticker string, open, high, low, closePrice, adjClose float64, volume int64) string {
	return fmt.Sprintf(",,0,2025-01-02T00:00:00Z,2025-12-31T00:00:00Z,%s,stock_price,%s,%g,%g,%g,%g,%g,%d",
		ts, ticker, open, high, low, closePrice, adjClose, volume)
}

// TestNewStore_Validation verifies the nil and empty argument guards.
func TestNewStore_Validation(t *testing.T) {
	client := influxdb2.NewClient("http://localhost:9", "t")
	defer client.Close()

	queryAPI := client.QueryAPI("org")
	writeAPI := client.WriteAPIBlocking("org", "bucket")

	_, err := NewStore(nil, writeAPI, "bucket")
	assert.ErrorContains(t, err, "query API")

	_, err = NewStore(queryAPI, nil, "bucket")
	assert.ErrorContains(t, err, "write API")

	_, err = NewStore(queryAPI, writeAPI, "")
	assert.ErrorContains(t, err, "bucket")
}

// TestPriceHistory verifies candle parsing, ordering, and that the
// Flux query carries the sanitized ticker.
func TestPriceHistory(t *testing.T) {
	fake, store := newFakeStore(t)
	fake.respond = func(string) string {
		return priceCSV(
			priceRow("2025-06-23T00:00:00Z", "NVDA", 100, 110, 99, 105.5, 105.2, 1000000),
			priceRow("2025-06-24T00:00:00Z", "NVDA", 105.5, 112, 104, 111, 110.7, 1200000),
			priceRow("2025-06-25T00:00:00Z", "NVDA", 111, 115, 110, 114, 113.6, 900000),
		)
	}

	candles, err := store.PriceHistory(context.Background(), "nvda", 90)
	require.NoError(t, err)
	require.Len(t, candles, 3)

	first := candles[0]
	assert.Equal(t, "2025-06-23T00:00:00Z", first.Time.UTC().Format(time.RFC3339))
	assert.InDelta(t, 100.0, first.Open, 1e-9)
	assert.InDelta(t, 110.0, first.High, 1e-9)
	assert.InDelta(t, 99.0, first.Low, 1e-9)
	assert.InDelta(t, 105.5, first.Close, 1e-9)
	assert.InDelta(t, 105.2, first.AdjClose, 1e-9)
	assert.Equal(t, int64(1000000), first.Volume)

	assert.Equal(t, "2025-06-25T00:00:00Z", candles[2].Time.UTC().Format(time.RFC3339))

	queries := fake.capturedQueries()
	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], `from(bucket: "market-data")`)
	assert.Contains(t, queries[0], `r._measurement == "stock_price"`)
	assert.Contains(t, queries[0], `r.ticker == "NVDA"`)
	assert.Contains(t, queries[0], "pivot")
}

// TestPriceHistory_TrimsToRequestedDays verifies the over-fetch window
// is cut back to the requested candle count.
func TestPriceHistory_TrimsToRequestedDays(t *testing.T) {
	fake, store := newFakeStore(t)
	fake.respond = func(string) string {
		return priceCSV(
			priceRow("2025-06-23T00:00:00Z", "NVDA", 100, 110, 99, 105, 105, 1000),
			priceRow("2025-06-24T00:00:00Z", "NVDA", 105, 112, 104, 111, 111, 1200),
			priceRow("2025-06-25T00:00:00Z", "NVDA", 111, 115, 110, 114, 114, 900),
		)
	}

	candles, err := store.PriceHistory(context.Background(), "NVDA", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, "2025-06-24T00:00:00Z", candles[0].Time.UTC().Format(time.RFC3339))
	assert.Equal(t, "2025-06-25T00:00:00Z", candles[1].Time.UTC().Format(time.RFC3339))
}

// TestPriceHistory_RejectsInjection verifies a hostile ticker never
// reaches the query API.
func TestPriceHistory_RejectsInjection(t *testing.T) {
	fake, store := newFakeStore(t)

	_, err := store.PriceHistory(context.Background(), `AAPL") |> drop()`, 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ticker")
	assert.Empty(t, fake.capturedQueries())
}

// TestLatestQuote verifies the change computation against the prior
// session's close.
func TestLatestQuote(t *testing.T) {
	fake, store := newFakeStore(t)
	fake.respond = func(string) string {
		// Descending order, newest first, as the query sorts it.
		return priceCSV(
			priceRow("2025-06-25T00:00:00Z", "NVDA", 111, 115, 110, 105.5, 105.5, 900000),
			priceRow("2025-06-24T00:00:00Z", "NVDA", 100, 110, 99, 100, 100, 1200000),
		)
	}

	quote, err := store.LatestQuote(context.Background(), "NVDA")
	require.NoError(t, err)
	assert.Equal(t, "NVDA", quote.Ticker)
	assert.Equal(t, "2025-06-25T00:00:00Z", quote.Time.UTC().Format(time.RFC3339))
	assert.InDelta(t, 105.5, quote.Price, 1e-9)
	assert.InDelta(t, 5.5, quote.Change, 1e-9)
	assert.InDelta(t, 5.5, quote.ChangePct, 1e-9)
	assert.Equal(t, int64(900000), quote.Volume)

	queries := fake.capturedQueries()
	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], "limit(n: 2)")
}

// TestLatestQuote_SingleCandle verifies the change stays zero when no
// prior session exists.
func TestLatestQuote_SingleCandle(t *testing.T) {
	fake, store := newFakeStore(t)
	fake.respond = func(string) string {
		return priceCSV(priceRow("2025-06-25T00:00:00Z", "CRCL", 30, 32, 29, 31, 31, 5000))
	}

	quote, err := store.LatestQuote(context.Background(), "CRCL")
	require.NoError(t, err)
	assert.InDelta(t, 31.0, quote.Price, 1e-9)
	assert.Zero(t, quote.Change)
	assert.Zero(t, quote.ChangePct)
}

// TestLatestQuote_NoData verifies the ErrNoData sentinel on an empty
// result.
func TestLatestQuote_NoData(t *testing.T) {
	fake, store := newFakeStore(t)
	fake.respond = func(string) string { return "" }

	_, err := store.LatestQuote(context.Background(), "ZZZZ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoData)
	assert.Contains(t, err.Error(), "ZZZZ")
}

// TestIPOWindow verifies calendar parsing and the range bounds in the
// query.
func TestIPOWindow(t *testing.T) {
	fake, store := newFakeStore(t)
	fake.respond = func(string) string {
		lines := []string{
			"#datatype,string,long,dateTime:RFC3339,dateTime:RFC3339,dateTime:RFC3339,string,string,string,string,double,double,long",
			"#group,false,false,true,true,false,true,true,true,false,false,false,false",
			"#default,_result,,,,,,,,,,,",
			",result,table,_start,_stop,_time,_measurement,exchange,ticker,company,price_low,price_high,shares",
			",,0,2025-06-01T00:00:00Z,2025-07-01T00:00:00Z,2025-06-05T00:00:00Z,ipo_event,NYSE,CRCL,Circle Internet Group,27,28,34000000",
			",,0,2025-06-01T00:00:00Z,2025-07-01T00:00:00Z,2025-06-12T00:00:00Z,ipo_event,NASDAQ,CHYM,Chime Financial,26,28,32000000",
		}
		return strings.Join(lines, "\n") + "\n"
	}

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	events, err := store.IPOWindow(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "CRCL", events[0].Ticker)
	assert.Equal(t, "Circle Internet Group", events[0].Company)
	assert.Equal(t, "NYSE", events[0].Exchange)
	assert.Equal(t, "2025-06-05T00:00:00Z", events[0].Date.UTC().Format(time.RFC3339))
	assert.InDelta(t, 27.0, events[0].PriceLow, 1e-9)
	assert.InDelta(t, 28.0, events[0].PriceHigh, 1e-9)
	assert.Equal(t, int64(34000000), events[0].Shares)
	assert.Equal(t, "CHYM", events[1].Ticker)

	queries := fake.capturedQueries()
	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], "range(start: 2025-06-01T00:00:00Z, stop: 2025-07-01T00:00:00Z)")
	assert.Contains(t, queries[0], `r._measurement == "ipo_event"`)
}

// TestIPOWindow_BadRange verifies an inverted window fails before any
// query is sent.
func TestIPOWindow_BadRange(t *testing.T) {
	fake, store := newFakeStore(t)

	from := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.IPOWindow(context.Background(), from, to)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "precedes")
	assert.Empty(t, fake.capturedQueries())
}

// TestRecordCandles verifies the line-protocol write, including the
// zero-timestamp skip.
func TestRecordCandles(t *testing.T) {
	fake, store := newFakeStore(t)

	candles := []Candle{
		{
			Time:     time.Date(2025, 6, 25, 0, 0, 0, 0, time.UTC),
			Open:     100, High: 110, Low: 99, Close: 105.5, AdjClose: 105.2,
			Volume: 1000000,
		},
		{Open: 1, High: 2, Low: 0.5, Close: 1.5}, // zero time, skipped
	}

	err := store.RecordCandles(context.Background(), "nvda", candles)
	require.NoError(t, err)

	writes := fake.capturedWrites()
	require.Len(t, writes, 1)
	assert.Contains(t, writes[0], "stock_price,ticker=NVDA")
	assert.Contains(t, writes[0], "open=100")
	assert.Contains(t, writes[0], "close=105.5")
	assert.Contains(t, writes[0], "volume=1000000i")
	assert.Len(t, strings.Split(strings.TrimSpace(writes[0]), "\n"), 1)

	fake.mu.Lock()
	bucket := fake.buckets[0]
	fake.mu.Unlock()
	assert.Equal(t, "market-data", bucket)
}

// TestRecordCandles_NoPoints verifies nothing is written when every
// candle is skipped.
func TestRecordCandles_NoPoints(t *testing.T) {
	fake, store := newFakeStore(t)

	err := store.RecordCandles(context.Background(), "NVDA", []Candle{{Close: 1}})
	require.NoError(t, err)
	assert.Empty(t, fake.capturedWrites())
}

// TestRecordIPO verifies tag and field placement for calendar events.
func TestRecordIPO(t *testing.T) {
	fake, store := newFakeStore(t)

	err := store.RecordIPO(context.Background(), IPO{
		Ticker:    "crcl",
		Company:   "Circle Internet Group",
		Exchange:  "NYSE",
		Date:      time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
		PriceLow:  27,
		PriceHigh: 28,
		Shares:    34000000,
	})
	require.NoError(t, err)

	writes := fake.capturedWrites()
	require.Len(t, writes, 1)
	assert.Contains(t, writes[0], "ipo_event")
	assert.Contains(t, writes[0], "ticker=CRCL")
	assert.Contains(t, writes[0], "exchange=NYSE")
	assert.Contains(t, writes[0], `company="Circle Internet Group"`)
	assert.Contains(t, writes[0], "shares=34000000i")
}

// TestRecordIPO_Validation verifies the ticker and date guards.
func TestRecordIPO_Validation(t *testing.T) {
	fake, store := newFakeStore(t)

	err := store.RecordIPO(context.Background(), IPO{Ticker: "bad ticker!"})
	assert.ErrorContains(t, err, "invalid ticker")

	err = store.RecordIPO(context.Background(), IPO{Ticker: "CRCL"})
	assert.ErrorContains(t, err, "date is required")

	assert.Empty(t, fake.capturedWrites())
}
