// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// MinKeyMlockKB is the mlock headroom expected for locked key storage.
// API keys are tiny; this only guards against a zero/near-zero limit.
const MinKeyMlockKB = 64

var secureMemOnce sync.Once

// initSecureMemory wires memguard's interrupt handler and probes the
// mlock ceiling once per process.
func initSecureMemory() {
	secureMemOnce.Do(func() {
		memguard.CatchInterrupt()
		sufficient, limitKB := checkMlockLimit()
		if sufficient {
			slog.Debug("secure key storage initialized", "mlock_limit_kb", limitKB)
			return
		}
		slog.Warn("mlock limit is low; locked key pages may be refused",
			"mlock_limit_kb", limitKB, "wanted_kb", MinKeyMlockKB)
	})
}

// checkMlockLimit queries the kernel's RLIMIT_MEMLOCK. Returns whether
// the limit covers MinKeyMlockKB and the current limit in KB (-1 when
// unlimited or unknown).
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("could not determine mlock limit", "error", err)
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinKeyMlockKB, limitKB
}

// SecretKey holds a backend API key in mlocked memory for the lifetime
// of the client that uses it. The key never lands in a heap string the
// runtime could swap out or copy around.
type SecretKey struct {
	buf *memguard.LockedBuffer
}

// LoadAPIKey resolves a backend API key.
//
// Resolution order:
//  1. explicit value (test and embedding callers)
//  2. <envName>_FILE pointing at a secret mount; file content is moved
//     into locked memory and the source slice wiped
//  3. the plain environment variable
//
// Returns an error when none of the three yields a key.
func LoadAPIKey(explicit, envName string) (*SecretKey, error) {
	initSecureMemory()

	if explicit != "" {
		return &SecretKey{buf: memguard.NewBufferFromBytes([]byte(explicit))}, nil
	}
	if path := os.Getenv(envName + "_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
		}
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 {
			return nil, fmt.Errorf("key file %s is empty", path)
		}
		return &SecretKey{buf: memguard.NewBufferFromBytes(trimmed)}, nil
	}
	if v := os.Getenv(envName); v != "" {
		return &SecretKey{buf: memguard.NewBufferFromBytes([]byte(v))}, nil
	}
	return nil, fmt.Errorf("%s is not set", envName)
}

// Value returns a no-copy view of the key. The view is valid until
// Destroy is called.
func (k *SecretKey) Value() string {
	if k == nil || k.buf == nil {
		return ""
	}
	return k.buf.String()
}

// Destroy wipes the locked buffer. Call when the owning client shuts
// down.
func (k *SecretKey) Destroy() {
	if k != nil && k.buf != nil {
		k.buf.Destroy()
	}
}
