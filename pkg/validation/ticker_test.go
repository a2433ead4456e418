package validation

import (
	"strings"
	"testing"
)

func TestValidateTicker(t *testing.T) {
	tests := []struct {
		name    string
		ticker  string
		wantErr bool
	}{
		// Valid tickers
		{"simple", "NVDA", false},
		{"single char", "F", false},
		{"with digit", "SPY500", false},
		{"class share dot", "BRK.A", false},
		{"class share hyphen", "BF-B", false},
		{"max length", "ABCDEFGHIJ", false},

		// Invalid tickers - injection attempts
		{"empty", "", true},
		{"flux injection", `NVDA") |> drop()`, true},
		{"sql injection", "NVDA'; DROP TABLE--", true},
		{"newline injection", "NVDA\n|> drop()", true},
		{"lowercase", "nvda", true}, // Raw input goes through SanitizeTicker
		{"too long", "ABCDEFGHIJK", true},
		{"special chars", "NVDA@#$", true},
		{"spaces", "NV DA", true},
		{"starts with dot", ".NVDA", true},
		{"starts with hyphen", "-NVDA", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTicker(tt.ticker)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTicker(%q) error = %v, wantErr %v", tt.ticker, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTickers(t *testing.T) {
	tests := []struct {
		name    string
		tickers []string
		wantErr bool
	}{
		{"all valid", []string{"NVDA", "AMD", "AAPL"}, false},
		{"lowercase normalized", []string{"nvda", " amd "}, false},
		{"one invalid", []string{"NVDA", "bad!", "AAPL"}, true},
		{"empty slice", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTickers(tt.tickers)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTickers(%v) error = %v, wantErr %v", tt.tickers, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTickersNamesEveryBadSymbol(t *testing.T) {
	err := ValidateTickers([]string{"NVDA", "bad!", "also bad"})
	if err == nil {
		t.Fatal("expected error for invalid tickers")
	}
	msg := err.Error()
	if !strings.Contains(msg, "bad!") || !strings.Contains(msg, "also bad") {
		t.Errorf("error should name every invalid ticker, got %q", msg)
	}
}

func TestSanitizeTicker(t *testing.T) {
	tests := []struct {
		name    string
		ticker  string
		want    string
		wantErr bool
	}{
		{"uppercase passthrough", "NVDA", "NVDA", false},
		{"lowercase normalized", "nvda", "NVDA", false},
		{"mixed case", "NvDa", "NVDA", false},
		{"with spaces trimmed", "  NVDA  ", "NVDA", false},
		{"invalid rejected", "bad!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeTicker(tt.ticker)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizeTicker(%q) error = %v, wantErr %v", tt.ticker, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SanitizeTicker(%q) = %q, want %q", tt.ticker, got, tt.want)
			}
		})
	}
}
