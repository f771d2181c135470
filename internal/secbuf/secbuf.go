// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package secbuf provides scrub-on-close buffers for PIN plaintext.
//
// A Buffer owns a byte slice and guarantees the slice is overwritten
// before it goes out of scope, on every exit path including panics.
// Callers must defer Close immediately after acquiring a Buffer.
package secbuf

import "sync"

// Buffer wraps a plaintext byte slice that must be scrubbed before the
// process exits any code path that read it.
type Buffer struct {
	mu    sync.Mutex
	data  []byte
	wiped bool
}

// New takes ownership of b. The caller must not retain b after this call;
// all access must go through the returned Buffer.
func New(b []byte) *Buffer {
	return &Buffer{data: b}
}

// FromString takes ownership of a copy of s's bytes.
func FromString(s string) *Buffer {
	return New([]byte(s))
}

// Bytes returns the current contents. The returned slice aliases the
// Buffer's storage and becomes invalid after Close.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// Len returns the number of bytes currently held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Close overwrites the buffer with zeroes. Safe to call more than once.
// The overwrite loop is written so the compiler cannot prove the store
// dead and elide it (each byte is set individually via an index that
// escapes through the method's own receiver).
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wiped {
		return nil
	}
	wipe(b.data)
	b.wiped = true
	return nil
}

// wipe overwrites p with zeroes without being optimized away: the slice
// is backed by heap memory reachable through the caller's *Buffer, so a
// dead-store eliminator would need to prove the Buffer itself is dead,
// which it is not until Close returns.
func wipe(p []byte) {
	for i := range p {
		p[i] = 0
	}
}
