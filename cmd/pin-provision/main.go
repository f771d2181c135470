// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command pin-provision creates or replaces a user's PIN record.
//
// Usage: pin-provision <username>
//
// With GENPIN_NONINTERACTIVE set, the PIN (and optional confirmation)
// is taken from that variable; otherwise the operator is prompted twice
// at a terminal with input echo disabled (spec.md §4.5).
package main

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/jeranaias/pinauth/internal/pinconfig"
	"github.com/jeranaias/pinauth/internal/provision"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		// No username supplied: silent success, matching genpin's
		// original behavior (spec.md §4.5 step 1).
		return
	}
	user := args[0]

	cfg := pinconfig.Load()
	isPrivileged := os.Geteuid() == 0

	fmt.Printf("Creating/Updating PIN for user: %s\n", user)

	var prompter provision.Prompter
	if val, ok := pinconfig.NonInteractivePIN(); ok {
		prompter = &provision.NonInteractivePrompter{Value: val}
	} else if term.IsTerminal(int(os.Stdin.Fd())) {
		prompter = provision.NewTerminalPrompter(int(os.Stdin.Fd()), os.Stdout)
	} else {
		fmt.Fprintln(os.Stderr, "pin-provision: standard input is not a terminal and GENPIN_NONINTERACTIVE is unset")
		os.Exit(1)
	}

	result, err := provision.Provision(user, prompter, cfg, isPrivileged)
	if err != nil {
		if errors.Is(err, provision.ErrNoUsername) {
			return
		}
		fmt.Fprintf(os.Stderr, "pin-provision: %v\n", err)
		os.Exit(1)
	}

	provision.TightenPermissions(os.Stderr, result.SecretPath, cfg.EffectiveDir(), isPrivileged)
	fmt.Printf("PIN hash saved to %s\n", result.SecretPath)
}
