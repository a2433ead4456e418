// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent is one security-relevant event for compliance logging.
//
// Event types use dotted categories for filtering:
//   - "auth.denied", "auth.granted"
//   - "data.ingest", "data.read"
//   - "pipeline.run"
type AuditEvent struct {
	// Timestamp of the event; the logger fills it when zero.
	Timestamp time.Time

	// Type categorizes the event, e.g. "auth.denied".
	Type string

	// UserID identifies the actor, when known.
	UserID string

	// Resource names what was acted on: a route, a data space, a
	// pipeline name.
	Resource string

	// Outcome is "success", "denied", or "error".
	Outcome string

	// Metadata holds event-specific detail.
	Metadata Metadata
}

// AuditLogger records audit events. Implementations must be safe for
// concurrent use and must not block request handling; buffer and
// flush in the background if the sink is slow.
type AuditLogger interface {
	// Log records one event. Errors are for the caller to log, not
	// to fail the request over.
	Log(ctx context.Context, event AuditEvent) error

	// Flush drains any buffered events. Called on shutdown.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards all events. This is the open source default.
type NopAuditLogger struct{}

// Log discards the event.
func (l *NopAuditLogger) Log(_ context.Context, _ AuditEvent) error { return nil }

// Flush is a no-op.
func (l *NopAuditLogger) Flush(_ context.Context) error { return nil }

// SlogAuditLogger writes audit events to the process log stream via
// slog, which lands them in the same place as service logs. Good
// enough for single-node deployments; enterprise builds replace it
// with a tamper-evident store.
type SlogAuditLogger struct{}

// Log writes the event at Info level under the "audit" message.
func (l *SlogAuditLogger) Log(_ context.Context, event AuditEvent) error {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	slog.Info("audit",
		"audit_type", event.Type,
		"user_id", event.UserID,
		"resource", event.Resource,
		"outcome", event.Outcome,
		"at", ts.Format(time.RFC3339),
	)
	return nil
}

// Flush is a no-op; slog writes synchronously.
func (l *SlogAuditLogger) Flush(_ context.Context) error { return nil }

var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*SlogAuditLogger)(nil)
)
