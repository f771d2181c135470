// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command pin-verify is the pam_exec-invoked helper: it authenticates a
// PIN read from standard input against the caller's provisioned secret
// and reports the outcome solely through its exit code (spec.md §6).
// It must run with effective UID 0, installed via pam_exec with the
// dir_sensitive and nullok options left unset.
package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/jeranaias/pinauth/internal/pinaudit"
	"github.com/jeranaias/pinauth/internal/pinconfig"
	"github.com/jeranaias/pinauth/internal/verifier"
)

// eventLogPath is where success/failure/lockout events are appended.
// Opened best-effort: a logging failure must never block authentication.
const eventLogPath = "/var/log/pinauth/events.log"

func main() {
	cfg := pinconfig.Load()

	var logger *pinaudit.Logger
	if f := openEventLog(); f != nil {
		logger = pinaudit.New(f)
	} else {
		logger = pinaudit.New(nil)
	}

	code := verifier.Run(verifier.Deps{
		Stdin:  os.Stdin,
		Logger: logger,
		Now:    time.Now().Unix(),
		Config: cfg,
	})

	os.Exit(int(code))
}

// openEventLog opens the audit log for append, creating its parent
// directory if needed. Returns nil on any failure so pinaudit.Logger's
// nil-writer no-op path absorbs it without surfacing a diagnostic that
// could leak environment details to the PAM stack.
func openEventLog() *os.File {
	if err := os.MkdirAll(filepath.Dir(eventLogPath), 0o700); err != nil {
		return nil
	}
	f, err := os.OpenFile(eventLogPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil
	}
	return f
}
