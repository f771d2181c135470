// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_ThreeWireFormats(t *testing.T) {
	require.Equal(t, State{Kind: KindCounting, Count: 3, FirstTS: 100}, Parse("count:3:100", 0))
	require.Equal(t, State{Kind: KindLocked, UntilTS: 500}, Parse("lock:500", 0))
	require.Equal(t, State{Kind: KindCounting, Count: 7, FirstTS: 42}, Parse("7", 42))
}

func TestParse_MalformedIsOpen(t *testing.T) {
	require.Equal(t, Open, Parse("garbage", 0))
	require.Equal(t, Open, Parse("", 0))
	require.Equal(t, Open, Parse("count:notanumber:1", 0))
	require.Equal(t, Open, Parse("lock:notanumber", 0))
}

func TestState_StringRoundTrip(t *testing.T) {
	s := State{Kind: KindCounting, Count: 2, FirstTS: 99}
	require.Equal(t, s, Parse(s.String(), 0))

	l := State{Kind: KindLocked, UntilTS: 123}
	require.Equal(t, l, Parse(l.String(), 0))

	require.Equal(t, "", Open.String())
}

func TestEvaluateEntry_ActiveLockRejects(t *testing.T) {
	cfg := DefaultConfig()
	state := State{Kind: KindLocked, UntilTS: 1000}
	require.Equal(t, DecisionLocked, EvaluateEntry(state, 500, cfg))
}

func TestEvaluateEntry_ExpiredLockProceeds(t *testing.T) {
	cfg := DefaultConfig()
	state := State{Kind: KindLocked, UntilTS: 1000}
	require.Equal(t, DecisionProceed, EvaluateEntry(state, 1000, cfg))
	require.Equal(t, DecisionProceed, EvaluateEntry(state, 1500, cfg))
}

func TestEvaluateEntry_WindowExpiryResetsToOpen(t *testing.T) {
	cfg := Config{Threshold: 5, LockoutSecs: 300, WindowSecs: 900}
	state := State{Kind: KindCounting, Count: 4, FirstTS: 1000}
	require.Equal(t, DecisionProceed, EvaluateEntry(state, 1000+901, cfg))
}

func TestEvaluateEntry_WindowZeroNeverExpires(t *testing.T) {
	cfg := Config{Threshold: 5, LockoutSecs: 300, WindowSecs: 0}
	state := State{Kind: KindCounting, Count: 4, FirstTS: 0}
	require.Equal(t, DecisionProceed, EvaluateEntry(state, 1_000_000, cfg))
}

func TestEvaluateEntry_CountAtThresholdLocks(t *testing.T) {
	cfg := DefaultConfig()
	state := State{Kind: KindCounting, Count: 5, FirstTS: 0}
	require.Equal(t, DecisionLocked, EvaluateEntry(state, 10, cfg))
}

func TestEvaluateEntry_ClockRegressionSaturates(t *testing.T) {
	cfg := Config{Threshold: 5, LockoutSecs: 300, WindowSecs: 900}
	state := State{Kind: KindCounting, Count: 1, FirstTS: 10_000}
	// now < first_ts: saturating subtraction yields 0 elapsed, never expiry.
	require.Equal(t, DecisionProceed, EvaluateEntry(state, 1, cfg))
}

func TestOnFailure_BelowThresholdCountsUp(t *testing.T) {
	cfg := DefaultConfig()
	decision, next := OnFailure(Open, 1000, cfg)
	require.Equal(t, DecisionMismatch, decision)
	require.Equal(t, State{Kind: KindCounting, Count: 1, FirstTS: 1000}, next)

	decision, next = OnFailure(next, 1010, cfg)
	require.Equal(t, DecisionMismatch, decision)
	require.Equal(t, State{Kind: KindCounting, Count: 2, FirstTS: 1000}, next)
}

func TestOnFailure_ReachingThresholdLocksWithLockout(t *testing.T) {
	cfg := Config{Threshold: 3, LockoutSecs: 300, WindowSecs: 900}
	state := State{Kind: KindCounting, Count: 2, FirstTS: 1000}
	decision, next := OnFailure(state, 1050, cfg)
	require.Equal(t, DecisionLocked, decision)
	require.Equal(t, State{Kind: KindLocked, UntilTS: 1350}, next)
}

func TestOnFailure_ZeroLockoutStaysLockedAsCounting(t *testing.T) {
	cfg := Config{Threshold: 2, LockoutSecs: 0, WindowSecs: 900}
	state := State{Kind: KindCounting, Count: 1, FirstTS: 1000}
	decision, next := OnFailure(state, 1050, cfg)
	require.Equal(t, DecisionLocked, decision)
	require.Equal(t, State{Kind: KindCounting, Count: 2, FirstTS: 1000}, next)

	// Stays locked indefinitely: another failure still reports Locked,
	// count keeps climbing, never producing a lock: record.
	decision, next = OnFailure(next, 999_999, cfg)
	require.Equal(t, DecisionLocked, decision)
	require.Equal(t, KindCounting, next.Kind)
}

func TestOnFailure_ExpiredWindowRestartsCount(t *testing.T) {
	cfg := Config{Threshold: 5, LockoutSecs: 300, WindowSecs: 900}
	state := State{Kind: KindCounting, Count: 4, FirstTS: 1000}
	decision, next := OnFailure(state, 1000+1000, cfg)
	require.Equal(t, DecisionMismatch, decision)
	require.Equal(t, State{Kind: KindCounting, Count: 1, FirstTS: 1000 + 1000}, next)
}

func TestOnSuccess_IsOpen(t *testing.T) {
	require.Equal(t, Open, OnSuccess())
}
