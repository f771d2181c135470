// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pinhash

import (
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"strings"
)

// sha512CryptHasher implements the glibc crypt(3) $6$ scheme, specified
// publicly by Ulrich Drepper ("Unix crypt using SHA-256/SHA-512", the
// algorithm shipped by glibc and libxcrypt). No library in the reference
// corpus implements this; it is hand-written against that public
// algorithm description using only crypto/sha512 — see DESIGN.md.
type sha512CryptHasher struct{}

const (
	sha512CryptPrefix  = "$6$"
	sha512CryptRounds  = 5000
	sha512CryptSaltLen = 16
	itoa64             = "./0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

func (sha512CryptHasher) prefix() string { return sha512CryptPrefix }

func (h sha512CryptHasher) hash(plaintext []byte, _ Config) (string, error) {
	salt := make([]byte, sha512CryptSaltLen)
	raw := make([]byte, sha512CryptSaltLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("sha512-crypt: generate salt: %w", err)
	}
	for i, b := range raw {
		salt[i] = itoa64[int(b)%len(itoa64)]
	}
	digest := sha512Crypt(plaintext, salt, sha512CryptRounds)
	return fmt.Sprintf("$6$%s$%s", salt, digest), nil
}

func (h sha512CryptHasher) verify(candidate []byte, record string) bool {
	salt, rounds, ok := parseSHA512CryptRecord(record)
	if !ok {
		return false
	}
	want := record[strings.LastIndex(record, "$")+1:]
	got := sha512Crypt(candidate, []byte(salt), rounds)
	return constantTimeEqual(want, got)
}

// parseSHA512CryptRecord extracts the salt and round count from a $6$
// record of the form $6$[rounds=N$]salt$hash.
func parseSHA512CryptRecord(record string) (salt string, rounds int, ok bool) {
	if !strings.HasPrefix(record, sha512CryptPrefix) {
		return "", 0, false
	}
	rest := record[len(sha512CryptPrefix):]
	parts := strings.Split(rest, "$")
	rounds = sha512CryptRounds
	if len(parts) < 2 {
		return "", 0, false
	}
	idx := 0
	if strings.HasPrefix(parts[0], "rounds=") {
		var n int
		if _, err := fmt.Sscanf(parts[0], "rounds=%d", &n); err == nil && n > 0 {
			rounds = n
		}
		idx = 1
	}
	if idx >= len(parts) {
		return "", 0, false
	}
	salt = parts[idx]
	if salt == "" || len(salt) > sha512CryptSaltLen {
		return "", 0, false
	}
	return salt, rounds, true
}

// sha512Crypt implements the core SHA-512-based password hashing
// transform. Returns only the 86-character base64-crypt hash segment
// (no $6$ or salt wrapper).
func sha512Crypt(password, salt []byte, rounds int) string {
	if rounds < 1000 {
		rounds = 1000
	}
	if rounds > 999999999 {
		rounds = 999999999
	}

	// Digest B: password, salt, password.
	hb := sha512.New()
	hb.Write(password)
	hb.Write(salt)
	hb.Write(password)
	digestB := hb.Sum(nil)

	// Digest A: password, salt, then digest B repeated/truncated to
	// len(password) bytes.
	ha := sha512.New()
	ha.Write(password)
	ha.Write(salt)
	for n := len(password); n > 0; n -= sha512.Size {
		if n > sha512.Size {
			ha.Write(digestB)
		} else {
			ha.Write(digestB[:n])
		}
	}

	// For each bit of the length of the password, add digest B or the
	// password itself.
	for n := len(password); n > 0; n >>= 1 {
		if n&1 != 0 {
			ha.Write(digestB)
		} else {
			ha.Write(password)
		}
	}
	digestA := ha.Sum(nil)

	// Sequence DP: password repeated len(password) times, summarized.
	hdp := sha512.New()
	for i := 0; i < len(password); i++ {
		hdp.Write(password)
	}
	dp := hdp.Sum(nil)

	p := produceSequence(dp, len(password))

	// Sequence DS: salt repeated (16 + digestA[0]) times, summarized.
	hds := sha512.New()
	repeat := 16 + int(digestA[0])
	for i := 0; i < repeat; i++ {
		hds.Write(salt)
	}
	ds := hds.Sum(nil)

	s := produceSequence(ds, len(salt))

	// Main stretching loop.
	for i := 0; i < rounds; i++ {
		hc := sha512.New()
		if i&1 != 0 {
			hc.Write(p)
		} else {
			hc.Write(digestA)
		}
		if i%3 != 0 {
			hc.Write(s)
		}
		if i%7 != 0 {
			hc.Write(p)
		}
		if i&1 != 0 {
			hc.Write(digestA)
		} else {
			hc.Write(p)
		}
		digestA = hc.Sum(nil)
	}

	return encodeSHA512CryptDigest(digestA)
}

// produceSequence builds a byte sequence of length n from repeated/truncated
// copies of src (src is always a 64-byte SHA-512 digest).
func produceSequence(src []byte, n int) []byte {
	out := make([]byte, 0, n)
	for len(out) < n {
		remaining := n - len(out)
		if remaining >= len(src) {
			out = append(out, src...)
		} else {
			out = append(out, src[:remaining]...)
		}
	}
	return out
}

// encodeSHA512CryptDigest applies the algorithm's fixed byte permutation
// and base64-crypt alphabet encoding to a final 64-byte digest.
func encodeSHA512CryptDigest(a []byte) string {
	var buf strings.Builder
	triples := [21][3]int{
		{0, 21, 42}, {22, 43, 1}, {44, 2, 23}, {3, 24, 45}, {25, 46, 4},
		{47, 5, 26}, {6, 27, 48}, {28, 49, 7}, {50, 8, 29}, {9, 30, 51},
		{31, 52, 10}, {53, 11, 32}, {12, 33, 54}, {34, 55, 13}, {56, 14, 35},
		{15, 36, 57}, {37, 58, 16}, {59, 17, 38}, {18, 39, 60}, {40, 61, 19},
		{62, 20, 41},
	}
	for _, t := range triples {
		buf.WriteString(b64From24Bit(a[t[0]], a[t[1]], a[t[2]], 4))
	}
	buf.WriteString(b64From24Bit(0, 0, a[63], 2))
	return buf.String()
}

// b64From24Bit packs three bytes (most to least significant) and emits n
// base64-crypt characters, least significant 6 bits first.
func b64From24Bit(b2, b1, b0 byte, n int) string {
	w := uint32(b2)<<16 | uint32(b1)<<8 | uint32(b0)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = itoa64[w&0x3f]
		w >>= 6
	}
	return string(out)
}
