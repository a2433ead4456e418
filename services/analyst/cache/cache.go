// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the BadgerDB-backed answer cache.
//
// Identical answer requests inside the TTL window are served from local
// storage instead of re-running retrieval and synthesis. Entries expire
// on a TTL because cached answers go stale as the corpus and the market
// move; the cache is an accelerator, never a source of truth.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config holds configuration for the answer cache.
type Config struct {
	// Path is the directory for cache files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing and for deployments without a cache volume.
	InMemory bool

	// SyncWrites enables synchronous writes. The cache tolerates losing
	// entries on crash, so the default is false.
	SyncWrites bool

	// TTL is how long a cached answer stays servable. Zero disables
	// expiry.
	TTL time.Duration

	// GCInterval is how often to run value log garbage collection.
	// Set to 0 to disable. Ignored for in-memory caches.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64

	// Logger is the logger for cache operations.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults: 15 minute TTL, async
// writes, 5 minute GC interval.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     false,
		TTL:            15 * time.Minute,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration for tests and cache-less
// deployments: in-memory store, 15 minute TTL, GC disabled.
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
		TTL:      15 * time.Minute,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Cache is the TTL-bounded answer cache.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB handles its own locking.
type Cache struct {
	db     *badger.DB
	ttl    time.Duration
	ratio  float64
	stopGC chan struct{}
	doneGC chan struct{}
	logger *slog.Logger
}

// Open creates the cache with the given configuration.
//
// # Outputs
//
//   - *Cache: The opened cache. Caller must call Close() when done.
//   - error: Non-nil if the path is missing for a persistent cache or
//     the database cannot be opened.
func Open(cfg Config) (*Cache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open answer cache: %w", err)
	}

	c := &Cache{
		db:     db,
		ttl:    cfg.TTL,
		ratio:  cfg.GCDiscardRatio,
		logger: cfg.Logger,
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		c.stopGC = make(chan struct{})
		c.doneGC = make(chan struct{})
		go c.runGC(cfg.GCInterval)
	}

	return c, nil
}

// Get returns the cached value for a key. The boolean is false on a
// miss or an expired entry; that is not an error.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("context cancelled: %w", err)
	}

	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}
	return value, true, nil
}

// Set stores a value under a key, subject to the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Close stops garbage collection and closes the store.
func (c *Cache) Close() error {
	if c.stopGC != nil {
		close(c.stopGC)
		<-c.doneGC
	}
	return c.db.Close()
}

func (c *Cache) runGC(interval time.Duration) {
	defer close(c.doneGC)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopGC:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when there is nothing
			// to collect; that is the common case, not a failure.
			err := c.db.RunValueLogGC(c.ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				if c.logger != nil {
					c.logger.Warn("answer cache GC error", "error", err)
				}
			}
		}
	}
}

// Fingerprint derives a stable cache key from the request fields that
// determine an answer. Fields are NUL-separated before hashing so field
// boundaries cannot alias.
func Fingerprint(fields ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(fields, "\x00")))
	return "answer/" + hex.EncodeToString(sum[:])
}
