// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
	"testing"
)

// =============================================================================
// NopAuthProvider Tests
// =============================================================================

func TestNopAuthProvider_AcceptsEmptyToken(t *testing.T) {
	provider := &NopAuthProvider{}

	info, err := provider.Validate(context.Background(), "")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if info.UserID != "local-user" {
		t.Errorf("UserID = %q, want local-user", info.UserID)
	}
	if !info.HasRole("admin") {
		t.Error("local user should hold the admin role")
	}
}

func TestNopAuthProvider_AcceptsAnyToken(t *testing.T) {
	provider := &NopAuthProvider{}

	info, err := provider.Validate(context.Background(), "whatever")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if info == nil {
		t.Fatal("Validate() returned nil info")
	}
}

// =============================================================================
// TokenAuthProvider Tests
// =============================================================================

func TestTokenAuthProvider_AcceptsMatchingToken(t *testing.T) {
	provider := NewTokenAuthProvider("s3cret")

	info, err := provider.Validate(context.Background(), "s3cret")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if info.UserID != "token-user" {
		t.Errorf("UserID = %q, want token-user", info.UserID)
	}
	if !info.HasRole("analyst") {
		t.Error("token user should hold the analyst role")
	}
}

func TestTokenAuthProvider_RejectsWrongToken(t *testing.T) {
	provider := NewTokenAuthProvider("s3cret")

	_, err := provider.Validate(context.Background(), "guess")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTokenAuthProvider_RejectsEmptyToken(t *testing.T) {
	provider := NewTokenAuthProvider("s3cret")

	_, err := provider.Validate(context.Background(), "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

// =============================================================================
// AuthInfo Tests
// =============================================================================

func TestAuthInfo_HasRole(t *testing.T) {
	info := &AuthInfo{Roles: []string{"analyst", "viewer"}}

	if !info.HasRole("analyst") {
		t.Error("expected analyst role")
	}
	if info.HasRole("admin") {
		t.Error("did not expect admin role")
	}
}

func TestAuthInfo_HasRole_Empty(t *testing.T) {
	info := &AuthInfo{}

	if info.HasRole("admin") {
		t.Error("empty role list should match nothing")
	}
}

// =============================================================================
// Metadata Tests
// =============================================================================

func TestMetadata_SetGet(t *testing.T) {
	m := Metadata{}.Set("department", "research").Set("mfa", true)

	if v, ok := m.GetString("department"); !ok || v != "research" {
		t.Errorf("GetString(department) = %q, %v", v, ok)
	}
	if !m.Has("mfa") {
		t.Error("expected mfa key")
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("Get on missing key should report absence")
	}
}

func TestMetadata_GetString_WrongType(t *testing.T) {
	m := Metadata{}.Set("count", 3)

	if _, ok := m.GetString("count"); ok {
		t.Error("GetString should reject non-string values")
	}
}

func TestMetadata_SetOnNil(t *testing.T) {
	var m Metadata
	m = m.Set("key", "value")

	if !m.Has("key") {
		t.Error("Set on nil Metadata should allocate")
	}
}

// =============================================================================
// Audit Logger Tests
// =============================================================================

func TestNopAuditLogger(t *testing.T) {
	logger := &NopAuditLogger{}

	if err := logger.Log(context.Background(), AuditEvent{Type: "auth.denied"}); err != nil {
		t.Errorf("Log() error = %v", err)
	}
	if err := logger.Flush(context.Background()); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
}

func TestSlogAuditLogger(t *testing.T) {
	logger := &SlogAuditLogger{}

	err := logger.Log(context.Background(), AuditEvent{
		Type:     "data.ingest",
		UserID:   "local-user",
		Resource: "filings",
		Outcome:  "success",
	})
	if err != nil {
		t.Errorf("Log() error = %v", err)
	}
	if err := logger.Flush(context.Background()); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
}
