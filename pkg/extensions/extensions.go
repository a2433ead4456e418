// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the enterprise extension points of the
// research stack.
//
// The open source build ships no-op implementations: NopAuthProvider
// authenticates everyone as the local analyst, NopAuditLogger discards
// events. Self-hosted deployments can turn on shared-token auth with
// TokenAuthProvider; enterprise builds swap in providers backed by
// real identity and compliance systems without touching the services.
package extensions

// Metadata carries provider-specific claims on an AuthInfo without
// changing the core type.
type Metadata map[string]any

// Set stores a value and returns the map for chaining.
func (m Metadata) Set(key string, value any) Metadata {
	if m == nil {
		m = make(Metadata)
	}
	m[key] = value
	return m
}

// Get returns the raw value and whether it was present.
func (m Metadata) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// GetString returns the value if it is present and a string.
func (m Metadata) GetString(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Has reports whether the key is present.
func (m Metadata) Has(key string) bool {
	_, ok := m[key]
	return ok
}
