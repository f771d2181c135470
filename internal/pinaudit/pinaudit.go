// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pinaudit provides a narrow event-record logging collaborator
// for the verifier, grounded on the teacher's
// AuditEvent/AuditLogger (internal/security/audit.go) and its
// maskIdentifier masking scheme, trimmed to the event set spec.md §6
// and §9 describe. Unlike the teacher's logger, there is no Query,
// Tokens, or Cost field — that belonged to the teacher's LLM-proxy
// domain — and the candidate PIN is never a field at all.
package pinaudit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the event kinds spec.md §6 names.
type EventType string

const (
	EventSuccess         EventType = "success"
	EventFailure         EventType = "failure"
	EventLocked          EventType = "locked"
	EventLockedThreshold EventType = "locked_threshold"
)

// Event is one audit log entry. User is always masked before being
// stored here; nothing in this package ever carries a plaintext PIN.
// EventID is a fresh random UUID for every record, so each line can be
// referred to individually, the way the teacher's task records carry a
// uuid.New().String() identifier; it does not link lines to each other.
type Event struct {
	EventID   string            `json:"event_id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType EventType         `json:"event_type"`
	User      string            `json:"user"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ToLogLine formats the event as a single human-readable line, in the
// teacher's "field | field | field" style (AuditEvent.ToLogLine).
func (e Event) ToLogLine() string {
	return fmt.Sprintf("%s | %s | %s",
		e.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		e.EventType,
		e.User,
	)
}

// ToJSON formats the event as a single JSON line.
func (e Event) ToJSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Logger is a thread-safe, line-oriented JSON event sink. A nil *Logger
// is a legal, no-op collaborator (spec.md §9's "absence must not change
// control flow"): every method is safe to call on a nil receiver.
type Logger struct {
	mu  sync.Mutex
	out io.Writer
}

// New wraps out as an event sink.
func New(out io.Writer) *Logger {
	return &Logger{out: out}
}

// Log writes event as one JSON line. Errors are swallowed: an audit
// sink that cannot write must never change the verifier's or
// provisioner's exit code (spec.md §7's propagation policy covers only
// the five authentication error kinds, not the optional logging path).
func (l *Logger) Log(event Event) {
	if l == nil || l.out == nil {
		return
	}
	line, err := event.ToJSON()
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, line)
}

// Success records a successful authentication.
func (l *Logger) Success(user string) {
	l.Log(Event{EventID: uuid.New().String(), Timestamp: now(), EventType: EventSuccess, User: MaskUser(user)})
}

// Failure records a rejected candidate, with the failure count reached.
func (l *Logger) Failure(user string, count int64) {
	l.Log(Event{
		EventID:   uuid.New().String(),
		Timestamp: now(),
		EventType: EventFailure,
		User:      MaskUser(user),
		Metadata:  map[string]string{"count": fmt.Sprintf("%d", count)},
	})
}

// Locked records an attempt rejected because the user is already
// locked, giving the epoch second the lock expires.
func (l *Logger) Locked(user string, untilTS int64) {
	l.Log(Event{
		EventID:   uuid.New().String(),
		Timestamp: now(),
		EventType: EventLocked,
		User:      MaskUser(user),
		Metadata:  map[string]string{"until": fmt.Sprintf("%d", untilTS)},
	})
}

// LockedThreshold records the attempt that tripped the lockout threshold.
func (l *Logger) LockedThreshold(user string) {
	l.Log(Event{EventID: uuid.New().String(), Timestamp: now(), EventType: EventLockedThreshold, User: MaskUser(user)})
}

// MaskUser derives a non-reversible identifier for user, matching the
// teacher's maskIdentifier (internal/security/lockout.go): a SHA-256
// hash prefix, never the plaintext username, in any logged record.
func MaskUser(user string) string {
	sum := sha256.Sum256([]byte(user))
	return "hash:" + hex.EncodeToString(sum[:])[:12]
}

// now is a seam so callers needing deterministic output in tests can
// construct Events directly instead of going through the Logger helpers.
func now() time.Time { return time.Now() }
