// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-provided identifiers before they reach
// a query language.
//
// Ticker symbols are interpolated into Flux queries against the market
// store, and data space labels end up in Weaviate where filters. Every
// handler that accepts one of these from a request must validate it
// here first; the rest of the codebase assumes a validated value is
// safe to embed.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// tickerPattern matches exchange ticker symbols: uppercase letters and
// digits, with dots (BRK.A) and hyphens (BF-B) for share classes.
// Capped at 10 characters.
var tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,9}$`)

// ValidateTicker reports whether a ticker symbol is safe to embed in a
// Flux query. The symbol must already be uppercase; use SanitizeTicker
// for raw request input.
func ValidateTicker(ticker string) error {
	if ticker == "" {
		return fmt.Errorf("ticker cannot be empty")
	}

	if !tickerPattern.MatchString(ticker) {
		return fmt.Errorf("invalid ticker format: %q (must be 1-10 uppercase alphanumeric chars, dots, or hyphens)", ticker)
	}

	return nil
}

// ValidateTickers checks a batch of symbols and reports every invalid
// one in a single error, so a refresh request with three typos fails
// once with all three named.
func ValidateTickers(tickers []string) error {
	var invalid []string
	for _, t := range tickers {
		if err := ValidateTicker(strings.ToUpper(strings.TrimSpace(t))); err != nil {
			invalid = append(invalid, t)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid tickers: %v", invalid)
	}
	return nil
}

// SanitizeTicker trims and uppercases raw request input, then
// validates it. Returns the normalized symbol.
func SanitizeTicker(ticker string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(ticker))
	if err := ValidateTicker(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
