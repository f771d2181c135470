// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pinhash

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/pinauth/internal/secbuf"
)

func TestHashVerify_RoundTrip(t *testing.T) {
	for _, scheme := range []Scheme{SchemeSHA512Crypt, SchemeArgon2ID} {
		t.Run(string(scheme), func(t *testing.T) {
			cfg := Config{Scheme: scheme}
			record, err := Hash(secbuf.FromString("2468"), cfg)
			require.NoError(t, err)
			require.True(t, Verify(secbuf.FromString("2468"), record, scheme))
			require.False(t, Verify(secbuf.FromString("0000"), record, scheme))
		})
	}
}

func TestHash_UnsupportedScheme(t *testing.T) {
	_, err := Hash(secbuf.FromString("1234"), Config{Scheme: "rot13"})
	require.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestVerify_DetectsSchemeFromPrefix(t *testing.T) {
	argonRecord, err := Hash(secbuf.FromString("1357"), Config{Scheme: SchemeArgon2ID})
	require.NoError(t, err)

	shaRecord, err := Hash(secbuf.FromString("1357"), Config{Scheme: SchemeSHA512Crypt})
	require.NoError(t, err)

	// fallback scheme is irrelevant once the prefix is recognized.
	require.True(t, Verify(secbuf.FromString("1357"), argonRecord, SchemeSHA512Crypt))
	require.True(t, Verify(secbuf.FromString("1357"), shaRecord, SchemeArgon2ID))
}

func TestVerify_MalformedRecordNeverRaises(t *testing.T) {
	require.NotPanics(t, func() {
		require.False(t, Verify(secbuf.FromString("2468"), "garbage", SchemeArgon2ID))
		require.False(t, Verify(secbuf.FromString("2468"), "", SchemeSHA512Crypt))
		require.False(t, Verify(secbuf.FromString("2468"), "$argon2id$v=19$m=bad$x$y", SchemeArgon2ID))
	})
}

func TestArgon2Params_OverrideRequiresAllThree(t *testing.T) {
	record, err := Hash(secbuf.FromString("9999"), Config{
		Scheme: SchemeArgon2ID,
		Argon2: Argon2Params{MemoryKiB: 8 * 1024, Iterations: 2}, // parallelism missing
	})
	require.NoError(t, err)
	require.Contains(t, record, "m=65536,t=1,p=4") // defaults applied, partial override ignored
}

func TestArgon2Params_FullOverrideApplies(t *testing.T) {
	record, err := Hash(secbuf.FromString("9999"), Config{
		Scheme: SchemeArgon2ID,
		Argon2: Argon2Params{MemoryKiB: 8 * 1024, Iterations: 2, Parallelism: 1},
	})
	require.NoError(t, err)
	require.Contains(t, record, "m=8192,t=2,p=1")
}

func TestSHA512Crypt_RecordShape(t *testing.T) {
	record, err := Hash(secbuf.FromString("4242"), Config{Scheme: SchemeSHA512Crypt})
	require.NoError(t, err)
	require.Regexp(t, `^\$6\$[./0-9A-Za-z]{16}\$[./0-9A-Za-z]{86}$`, record)
}

func TestHash_ScrubsPlaintext(t *testing.T) {
	buf := secbuf.FromString("2468")
	_, err := Hash(buf, Config{Scheme: SchemeArgon2ID})
	require.NoError(t, err)
	for _, b := range buf.Bytes() {
		require.Zero(t, b)
	}
}

func TestVerify_ScrubsCandidate(t *testing.T) {
	record, err := Hash(secbuf.FromString("2468"), Config{Scheme: SchemeArgon2ID})
	require.NoError(t, err)

	buf := secbuf.FromString("2468")
	Verify(buf, record, SchemeArgon2ID)
	for _, b := range buf.Bytes() {
		require.Zero(t, b)
	}
}
