// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pinhash

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2idHasher implements the PHC-encoded Argon2id scheme using
// golang.org/x/crypto/argon2, the teacher's own direct dependency.
type argon2idHasher struct{}

const (
	argon2idPrefix = "$argon2id$"

	defaultArgon2Time    = 1
	defaultArgon2MemKiB  = 64 * 1024
	defaultArgon2Threads = 4
	argon2SaltLen        = 16
	argon2KeyLen         = 32
)

func (argon2idHasher) prefix() string { return argon2idPrefix }

func (argon2idHasher) hash(plaintext []byte, cfg Config) (string, error) {
	memKiB, iterations, parallelism := resolveArgon2Params(cfg.Argon2)

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2id: generate salt: %w", err)
	}

	key := argon2.IDKey(plaintext, salt, iterations, memKiB, parallelism, argon2KeyLen)

	return encodeArgon2idRecord(memKiB, iterations, parallelism, salt, key), nil
}

func (argon2idHasher) verify(candidate []byte, record string) bool {
	memKiB, iterations, parallelism, salt, want, ok := parseArgon2idRecord(record)
	if !ok {
		return false
	}
	got := argon2.IDKey(candidate, salt, iterations, memKiB, parallelism, uint32(len(want)))
	return constantTimeEqualBytes(got, want)
}

// resolveArgon2Params applies spec.md §4.1: override only when all three
// costs are positive, otherwise fall back to defaults.
func resolveArgon2Params(p Argon2Params) (memKiB, iterations uint32, parallelism uint8) {
	if p.MemoryKiB > 0 && p.Iterations > 0 && p.Parallelism > 0 {
		return p.MemoryKiB, p.Iterations, p.Parallelism
	}
	return defaultArgon2MemKiB, defaultArgon2Time, defaultArgon2Threads
}

func encodeArgon2idRecord(memKiB, iterations uint32, parallelism uint8, salt, key []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		memKiB, iterations, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

// parseArgon2idRecord parses $argon2id$v=19$m=...,t=...,p=...$salt$hash.
func parseArgon2idRecord(record string) (memKiB, iterations uint32, parallelism uint8, salt, key []byte, ok bool) {
	if !strings.HasPrefix(record, "$argon2id$") {
		return 0, 0, 0, nil, nil, false
	}
	parts := strings.Split(strings.TrimPrefix(record, "$argon2id$"), "$")
	if len(parts) != 4 {
		return 0, 0, 0, nil, nil, false
	}
	versionPart, paramsPart, saltPart, keyPart := parts[0], parts[1], parts[2], parts[3]

	if !strings.HasPrefix(versionPart, "v=") {
		return 0, 0, 0, nil, nil, false
	}

	var m, t uint64
	var p uint64
	for _, kv := range strings.Split(paramsPart, ",") {
		k, v, found := strings.Cut(kv, "=")
		if !found {
			return 0, 0, 0, nil, nil, false
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return 0, 0, 0, nil, nil, false
		}
		switch k {
		case "m":
			m = n
		case "t":
			t = n
		case "p":
			p = n
		default:
			return 0, 0, 0, nil, nil, false
		}
	}
	if m == 0 || t == 0 || p == 0 {
		return 0, 0, 0, nil, nil, false
	}

	saltBytes, err := base64.RawStdEncoding.DecodeString(saltPart)
	if err != nil {
		return 0, 0, 0, nil, nil, false
	}
	keyBytes, err := base64.RawStdEncoding.DecodeString(keyPart)
	if err != nil {
		return 0, 0, 0, nil, nil, false
	}

	return uint32(m), uint32(t), uint8(p), saltBytes, keyBytes, true
}

func constantTimeEqualBytes(a, b []byte) bool {
	return constantTimeEqual(string(a), string(b))
}
