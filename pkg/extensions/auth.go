// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"crypto/subtle"
	"errors"
)

// ErrUnauthorized is returned when authentication fails. Enterprise
// implementations should wrap it so middleware can map the failure to
// a 401:
//
//	return nil, fmt.Errorf("token expired: %w", extensions.ErrUnauthorized)
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo is the identity returned by a successful authentication.
// UserID is always populated; the rest depends on the provider.
type AuthInfo struct {
	// UserID uniquely identifies the authenticated user.
	UserID string

	// Email may be empty if the provider does not supply one.
	Email string

	// Roles holds role memberships for authorization decisions.
	// Common roles: "admin", "analyst", "viewer".
	Roles []string

	// Metadata holds additional provider-specific claims.
	Metadata Metadata
}

// HasRole checks if the user holds a specific role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates bearer tokens and returns user identity.
// Implementations must be safe for concurrent use.
type AuthProvider interface {
	// Validate checks the token and returns the identity behind it.
	// An empty token is a valid input; providers decide whether to
	// accept it. Auth failures must wrap ErrUnauthorized.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider accepts every request as the local analyst with
// admin privileges. This is the open source default, so the CLI works
// against a local service without any auth infrastructure.
type NopAuthProvider struct{}

// Validate always succeeds.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{"admin"},
	}, nil
}

// TokenAuthProvider authenticates against a single shared token, for
// self-hosted deployments that expose the analyst beyond localhost.
// The comparison is constant time.
type TokenAuthProvider struct {
	token []byte
}

// NewTokenAuthProvider creates a provider that accepts only the given
// token.
func NewTokenAuthProvider(token string) *TokenAuthProvider {
	return &TokenAuthProvider{token: []byte(token)}
}

// Validate compares the presented token against the shared secret.
func (p *TokenAuthProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	if subtle.ConstantTimeCompare(p.token, []byte(token)) != 1 {
		return nil, ErrUnauthorized
	}
	return &AuthInfo{
		UserID: "token-user",
		Roles:  []string{"analyst"},
	}, nil
}

var (
	_ AuthProvider = (*NopAuthProvider)(nil)
	_ AuthProvider = (*TokenAuthProvider)(nil)
)
