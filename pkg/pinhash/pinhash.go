// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pinhash implements the Hash Engine: a stateless, scheme-polymorphic
// password hashing and verification library for short numeric PINs.
//
// Two schemes are registered: SHA-512-crypt ($6$) and Argon2id
// ($argon2id$). Verify auto-detects the scheme from the stored record's
// prefix so the default scheme can change without invalidating existing
// records.
package pinhash

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/jeranaias/pinauth/internal/secbuf"
)

// Scheme identifies a registered password hashing algorithm.
type Scheme string

const (
	// SchemeSHA512Crypt is the glibc crypt(3) $6$ scheme.
	SchemeSHA512Crypt Scheme = "sha512-crypt"
	// SchemeArgon2ID is the PHC-encoded Argon2id scheme.
	SchemeArgon2ID Scheme = "argon2id"
)

// ErrUnsupportedScheme is returned by Hash when the configured scheme has
// no registered implementation.
var ErrUnsupportedScheme = errors.New("pinhash: unsupported scheme")

// ErrHashFailure is returned by Hash when the underlying primitive fails.
var ErrHashFailure = errors.New("pinhash: hash failure")

// Argon2Params overrides Argon2id cost parameters. A zero value in any
// field means "use the hasher's defaults"; all three must be positive to
// take effect, per spec.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// Config selects the scheme used for new records and tunes its parameters.
type Config struct {
	Scheme Scheme
	Argon2 Argon2Params
}

// hasher is the uniform interface every registered scheme implements.
// Adding a scheme means writing one hasher and adding one row to
// registry.
type hasher interface {
	// hash produces a self-describing record from plaintext.
	hash(plaintext []byte, cfg Config) (string, error)
	// verify performs a constant-time comparison of candidate against record.
	verify(candidate []byte, record string) bool
	// prefix is the record prefix this hasher claims ownership of on verify.
	prefix() string
}

// registry maps scheme identifiers to their hasher implementation. New
// schemes are added here and nowhere else.
var registry = map[Scheme]hasher{
	SchemeSHA512Crypt: sha512CryptHasher{},
	SchemeArgon2ID:    argon2idHasher{},
}

// detectOrder controls prefix-sniffing precedence in Verify.
var detectOrder = []Scheme{SchemeSHA512Crypt, SchemeArgon2ID}

// Hash selects the scheme named by cfg.Scheme, hashes plaintext under a
// fresh cryptographically random salt, scrubs plaintext, and returns a
// self-describing record.
func Hash(plaintext *secbuf.Buffer, cfg Config) (string, error) {
	defer plaintext.Close()

	h, ok := registry[cfg.Scheme]
	if !ok {
		return "", ErrUnsupportedScheme
	}
	record, err := h.hash(plaintext.Bytes(), cfg)
	if err != nil {
		return "", errors.Join(ErrHashFailure, err)
	}
	return record, nil
}

// Verify detects the scheme from record's prefix and checks candidate
// against it in constant time. Scrubs candidate before returning.
// Malformed or unrecognized records verify false; they never raise.
func Verify(candidate *secbuf.Buffer, record string, fallback Scheme) bool {
	defer candidate.Close()

	h := detect(record, fallback)
	if h == nil {
		return false
	}
	return h.verify(candidate.Bytes(), record)
}

// detect picks the hasher whose prefix matches record, or the hasher for
// fallback when no prefix matches (spec.md §4.1: "otherwise falls back to
// configured default").
func detect(record string, fallback Scheme) hasher {
	for _, s := range detectOrder {
		h := registry[s]
		if strings.HasPrefix(record, h.prefix()) {
			return h
		}
	}
	if h, ok := registry[fallback]; ok {
		return h
	}
	return nil
}

// constantTimeEqual compares two equal-length records in constant time.
// A length mismatch only occurs for malformed/corrupt stored records, not
// as a function of the secret being compared, so it is safe to branch on.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
