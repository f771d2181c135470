// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provision implements the Provisioner: the administrative tool
// that creates or replaces a user's PIN record, either interactively
// (double-prompt, no echo) or non-interactively via GENPIN_NONINTERACTIVE
// for scripted deployment (spec.md §5).
package provision

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/jeranaias/pinauth/internal/pinconfig"
	"github.com/jeranaias/pinauth/internal/secbuf"
	"github.com/jeranaias/pinauth/pkg/pinhash"
	"github.com/jeranaias/pinauth/pkg/pinstore"
)

// Prompter supplies the two PIN entries the Provisioner needs, either by
// reading a terminal with echo disabled or by splitting a non-interactive
// value. Implementations own scrubbing their own intermediate copies.
type Prompter interface {
	Prompt() (first, second *secbuf.Buffer, err error)
}

// TerminalPrompter reads two hidden lines from fd, matching the
// teacher's promptSecure (golang.org/x/term.ReadPassword, no echo).
type TerminalPrompter struct {
	Fd               int
	Out              io.Writer
	Prompt1, Prompt2 string
}

func NewTerminalPrompter(fd int, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{Fd: fd, Out: out, Prompt1: "Enter new PIN: ", Prompt2: "Repeat new PIN: "}
}

func (p *TerminalPrompter) Prompt() (*secbuf.Buffer, *secbuf.Buffer, error) {
	first, err := p.readHidden(p.Prompt1)
	if err != nil {
		return nil, nil, err
	}
	second, err := p.readHidden(p.Prompt2)
	if err != nil {
		first.Close()
		return nil, nil, err
	}
	return first, second, nil
}

func (p *TerminalPrompter) readHidden(prompt string) (*secbuf.Buffer, error) {
	if p.Out != nil {
		fmt.Fprint(p.Out, prompt)
	}
	line, err := term.ReadPassword(p.Fd)
	if p.Out != nil {
		fmt.Fprintln(p.Out)
	}
	if err != nil {
		return nil, fmt.Errorf("reading PIN: %w", err)
	}
	return secbuf.New(line), nil
}

// NonInteractivePrompter splits GENPIN_NONINTERACTIVE's PIN[:CONFIRM]
// form, reusing the first value as the confirmation when no ':' is
// present (genpin.rs's splitn(2, ':') behavior).
type NonInteractivePrompter struct {
	Value string
}

func (p *NonInteractivePrompter) Prompt() (*secbuf.Buffer, *secbuf.Buffer, error) {
	first, second, found := strings.Cut(p.Value, ":")
	if !found {
		second = first
	}
	return secbuf.FromString(first), secbuf.FromString(second), nil
}

// ErrPINMismatch is returned when the two entries disagree.
var ErrPINMismatch = errors.New("provision: PIN entries do not match")

// ErrNoUsername signals the caller supplied no username; spec.md §5
// treats this as a silent success, not a failure, so callers must check
// for it explicitly rather than treating every error as fatal.
var ErrNoUsername = errors.New("provision: no username supplied")

// Result reports what Provision actually did, for a human-readable summary.
type Result struct {
	User       string
	SecretPath string
	Wrote      bool
}

// Provision implements spec.md §5's full sequence: check that a
// username was supplied, obtain and confirm a PIN via prompter, validate its length
// and digit constitution, hash it, persist the record, and clear any
// stale rate-limit state. cfg carries the already-resolved PIN_MIN_LEN,
// PIN_MAX_LEN, scheme and Argon2 cost parameters (pinconfig.Load output).
func Provision(user string, prompter Prompter, cfg pinconfig.Config, isPrivileged bool) (Result, error) {
	if user == "" {
		return Result{}, ErrNoUsername
	}

	first, second, err := prompter.Prompt()
	if err != nil {
		return Result{}, err
	}
	defer first.Close()
	defer second.Close()

	if string(first.Bytes()) != string(second.Bytes()) {
		return Result{}, ErrPINMismatch
	}

	if err := validatePIN(first, cfg.MinLen, cfg.MaxLen); err != nil {
		return Result{}, err
	}

	hashCfg := pinhash.Config{
		Scheme: pinhash.Scheme(cfg.Scheme),
		Argon2: pinhash.Argon2Params{
			MemoryKiB:   cfg.Argon2MCostKiB,
			Iterations:  cfg.Argon2TCost,
			Parallelism: cfg.Argon2PCost,
		},
	}
	record, err := pinhash.Hash(first, hashCfg)
	if err != nil {
		return Result{}, fmt.Errorf("hashing PIN: %w", err)
	}

	store, err := pinstore.ResolveDir(cfg.EffectiveDir(), isPrivileged)
	if err != nil {
		return Result{}, fmt.Errorf("resolving PIN directory: %w", err)
	}

	if err := store.RemoveFailState(user); err != nil {
		return Result{}, fmt.Errorf("clearing stale lockout state: %w", err)
	}
	if err := store.WriteSecret(user, record); err != nil {
		return Result{}, fmt.Errorf("writing PIN record: %w", err)
	}

	return Result{User: user, SecretPath: store.SecretPath(user), Wrote: true}, nil
}

// validatePIN enforces spec.md §5's length and charset rules: minLen
// must be in 1..32, maxLen must be >= minLen, and the candidate itself
// must fall in [minLen, maxLen] and contain only ASCII digits.
func validatePIN(pin *secbuf.Buffer, minLen, maxLen int) error {
	if minLen <= 0 || minLen > 32 {
		return fmt.Errorf("provision: unreasonable minimum PIN length %d", minLen)
	}
	if maxLen < minLen {
		return fmt.Errorf("provision: maximum PIN length %d is less than minimum %d", maxLen, minLen)
	}
	n := pin.Len()
	if n < minLen {
		return fmt.Errorf("provision: PIN shorter than minimum (%d)", minLen)
	}
	if n > maxLen {
		return fmt.Errorf("provision: PIN longer than allowed maximum (%d)", maxLen)
	}
	for _, b := range pin.Bytes() {
		if b < '0' || b > '9' {
			return errors.New("provision: PIN must contain only digits (0-9)")
		}
	}
	return nil
}

// TightenPermissions applies the teacher's best-effort ownership/mode
// pass: root may chown 0:0 and enforce 0600/0700, non-root only gets an
// advisory message (genpin.rs's equivalent branch on Uid::effective()).
func TightenPermissions(out io.Writer, secretPath, dir string, isPrivileged bool) {
	if !isPrivileged {
		if out != nil {
			fmt.Fprintf(out, "(Not root) Wrote %s. Consider:\n  chown root:root %s\n  chmod 0600 %s\n  chmod 0700 %s\n",
				secretPath, secretPath, secretPath, dir)
		}
		return
	}
	_ = os.Chown(secretPath, 0, 0)
	_ = os.Chown(dir, 0, 0)
	_ = os.Chmod(secretPath, pinstore.FileMode)
	_ = os.Chmod(dir, pinstore.DirMode)
}
