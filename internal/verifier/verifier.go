// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package verifier implements the Verifier: the privileged, short-lived
// process that authenticates its runtime environment, resolves and
// reads a per-user secret under TOCTOU-safe semantics, enforces the
// rate limiter under an exclusive lock, verifies a PIN read from
// standard input, and communicates the outcome through an exit code.
//
// The orchestration sequence is spec.md §4.4, steps 1-10. No step here
// reveals to the caller which step failed beyond the exit code itself
// (spec.md §4.4's failure semantics); this is why Run returns only an
// ExitCode, never an error with diagnostic text.
package verifier

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/pinauth/internal/pinaudit"
	"github.com/jeranaias/pinauth/internal/pinconfig"
	"github.com/jeranaias/pinauth/internal/secbuf"
	"github.com/jeranaias/pinauth/pkg/pinhash"
	"github.com/jeranaias/pinauth/pkg/pinstore"
	"github.com/jeranaias/pinauth/pkg/ratelimit"
)

// ExitCode is the process exit code contract of spec.md §6.
type ExitCode int

const (
	ExitOK       ExitCode = 0
	ExitMismatch ExitCode = 1
	ExitLocked   ExitCode = 2
	ExitInput    ExitCode = 3
	ExitConfig   ExitCode = 4
)

// maxStdinBytes bounds candidate ingestion; spec.md §6 promises a PIN
// and an optional trailing newline, nothing more.
const maxStdinBytes = 256

// Deps lets cmd/pin-verify (and tests) supply the runtime environment
// this package consumes. Geteuid defaults to os.Geteuid; tests running
// as non-root exercise the debug override path by overriding it.
type Deps struct {
	Stdin   io.Reader
	Logger  *pinaudit.Logger
	Now     int64
	Config  pinconfig.Config
	Geteuid func() int
}

// Run executes the full sequence and returns the exit code to report.
func Run(deps Deps) ExitCode {
	geteuid := deps.Geteuid
	if geteuid == nil {
		geteuid = os.Geteuid
	}

	// Step 1: privilege gate.
	isPrivileged := geteuid() == 0
	if !isPrivileged && !allowNonRootOverride() {
		return ExitConfig
	}

	// Step 2: username.
	user := pinconfig.ResolveUsername()
	if !ValidUsername(user) {
		return ExitConfig
	}

	// Step 3: directory resolution.
	store, err := pinstore.ResolveDir(deps.Config.EffectiveDir(), isPrivileged)
	if err != nil {
		return ExitConfig
	}

	// Step 4: secret load. Absence is MISMATCH, not CONFIG, to avoid
	// user enumeration, and short-circuits before the failure-state
	// file is even opened (spec.md §9, bullet 2).
	record, err := store.ReadSecret(user)
	if err != nil {
		return ExitMismatch
	}

	rlCfg := ratelimit.Config{
		Threshold:   int64(deps.Config.Threshold),
		LockoutSecs: deps.Config.LockoutSecs,
		WindowSecs:  deps.Config.WindowSecs,
	}

	// Step 5: failure-state open and lock. A failure to open degrades
	// gracefully: lockout becomes best-effort, authentication proceeds.
	handle, err := store.OpenFailState(user)
	var state ratelimit.State
	haveHandle := err == nil
	if haveHandle {
		if err := handle.Lock(); err != nil {
			handle.Close()
			haveHandle = false
		}
	}
	if haveHandle {
		defer handle.Close()

		// Step 6: rate-limit entry check.
		decision, s, err := ratelimit.Evaluate(handle, deps.Now, rlCfg)
		if err != nil {
			state = ratelimit.Open
		} else {
			state = s
			if decision == ratelimit.DecisionLocked {
				// A count already at the threshold becomes a timed lock.
				if state.Kind == ratelimit.KindCounting && rlCfg.LockoutSecs > 0 {
					state = ratelimit.State{Kind: ratelimit.KindLocked, UntilTS: deps.Now + rlCfg.LockoutSecs}
				}
				deps.Logger.Locked(user, state.UntilTS)
				_ = ratelimit.Persist(handle, state)
				return ExitLocked
			}
		}
	}

	// Step 7: candidate ingestion.
	candidate, inputErr := readCandidate(deps.Stdin, deps.Config.MinLen, deps.Config.MaxLen)
	if inputErr != nil {
		candidate.Close()
		return ExitInput
	}

	// Step 8: verification.
	fallback := schemeFromName(deps.Config.Scheme)
	ok := pinhash.Verify(candidate, record, fallback)

	// Step 9: outcome persistence.
	if ok {
		if haveHandle {
			_ = ratelimit.Persist(handle, ratelimit.OnSuccess())
		} else {
			_ = store.RemoveFailState(user)
		}
		deps.Logger.Success(user)
		return ExitOK
	}

	if !haveHandle {
		deps.Logger.Failure(user, 0)
		return ExitMismatch
	}

	outcome, next := ratelimit.OnFailure(state, deps.Now, rlCfg)
	_ = ratelimit.Persist(handle, next)
	if outcome == ratelimit.DecisionLocked {
		deps.Logger.LockedThreshold(user)
		return ExitLocked
	}
	deps.Logger.Failure(user, next.Count)
	return ExitMismatch
}

// ValidUsername implements spec.md §4.4 step 2: non-empty, length
// 1..32, characters from [A-Za-z0-9_-], first character alphanumeric
// or underscore, no path separator (the character set already excludes
// '/', so this is enforced by construction, not a second check), and
// not all digits (spec.md §8: an all-digit name is rejected to keep
// usernames from colliding with any purely numeric identifier scheme).
func ValidUsername(user string) bool {
	if len(user) == 0 || len(user) > 32 {
		return false
	}
	first := user[0]
	if !isAlnum(first) && first != '_' {
		return false
	}
	allDigits := true
	for i := 0; i < len(user); i++ {
		c := user[i]
		if !isAlnum(c) && c != '_' && c != '-' {
			return false
		}
		if c < '0' || c > '9' {
			allDigits = false
		}
	}
	return !allDigits
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// readCandidate reads stdin (at most maxStdinBytes), strips a single
// trailing newline and then a single trailing carriage return, and validates length and digit-only constitution per spec.md §4.4
// step 7. The returned buffer is always non-nil so callers can
// unconditionally scrub it.
func readCandidate(r io.Reader, minLen, maxLen int) (*secbuf.Buffer, error) {
	limited := io.LimitReader(r, maxStdinBytes)
	data, err := io.ReadAll(bufio.NewReader(limited))
	if err != nil {
		return secbuf.FromString(""), errInput
	}

	s := string(data)
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")

	if s == "" {
		return secbuf.FromString(""), errInput
	}
	if len(s) < minLen || len(s) > maxLen {
		return secbuf.FromString(s), errInput
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return secbuf.FromString(s), errInput
		}
	}
	return secbuf.FromString(s), nil
}

var errInput = errors.New("verifier: invalid candidate input")

func schemeFromName(name string) pinhash.Scheme {
	if name == string(pinhash.SchemeArgon2ID) {
		return pinhash.SchemeArgon2ID
	}
	return pinhash.SchemeSHA512Crypt
}
