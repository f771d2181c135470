// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pinstore implements the Store: path composition, directory
// policy enforcement, and TOCTOU-safe file access for the on-disk
// secret/failure-state directory.
//
// Directory policy is grounded on the teacher's UnixKeyStore
// (internal/security/keystore_unix.go): stat, check for symlinks, check
// mode&0077 for group/world bits. Nofollow + close-on-exec opens use
// golang.org/x/sys/unix, a direct teacher dependency, because os.OpenFile
// has no portable O_NOFOLLOW flag.
package pinstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrNotProvisioned is returned by ReadSecret when no secret record
// exists, or exists but cannot be read, for the given user.
var ErrNotProvisioned = errors.New("pinstore: user not provisioned")

// ErrInsecureDirectory is returned by ResolveDir when the requested
// directory fails the privileged ownership/permission policy.
var ErrInsecureDirectory = errors.New("pinstore: insecure store directory")

const (
	secretSuffix = ".passwd"
	failSuffix   = ".fail"

	// DirMode is the expected/enforced mode for the store directory.
	DirMode = 0o700
	// FileMode is the expected/enforced mode for secret and failure files.
	FileMode = 0o600
)

// Store resolves paths under a single store directory and provides
// TOCTOU-safe access to the per-user secret and failure-state files.
type Store struct {
	dir string
}

// ResolveDir validates requested per spec.md §4.2 and returns a Store
// rooted at it.
//
// Under a privileged effective identity (isPrivileged true): requested
// must be absolute, must not resolve to a symbolic link, must be owned
// by the privileged uid, and must not carry group- or world-write bits.
// Under a non-privileged identity (debug-build verifier runs, tests, and
// a provisioner run without root — see SPEC_FULL.md §9), requested is
// accepted as given.
func ResolveDir(requested string, isPrivileged bool) (*Store, error) {
	if !isPrivileged {
		return &Store{dir: requested}, nil
	}

	if !filepath.IsAbs(requested) {
		return nil, fmt.Errorf("%w: %s: must be an absolute path", ErrInsecureDirectory, requested)
	}

	info, err := os.Lstat(requested)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInsecureDirectory, requested, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("%w: %s: must not be a symbolic link", ErrInsecureDirectory, requested)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s: not a directory", ErrInsecureDirectory, requested)
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if ok && stat.Uid != uint32(os.Geteuid()) {
		return nil, fmt.Errorf("%w: %s: not owned by the privileged identity", ErrInsecureDirectory, requested)
	}

	if info.Mode().Perm()&0o022 != 0 {
		return nil, fmt.Errorf("%w: %s: group- or world-writable (mode %o)", ErrInsecureDirectory, requested, info.Mode().Perm())
	}

	return &Store{dir: requested}, nil
}

// Dir returns the resolved store directory.
func (s *Store) Dir() string { return s.dir }

// SecretPath returns the path a user's secret record is (or would be)
// stored at, for diagnostics and administrative tooling.
func (s *Store) SecretPath(user string) string { return s.secretPath(user) }

func (s *Store) secretPath(user string) string { return filepath.Join(s.dir, user+secretSuffix) }
func (s *Store) failPath(user string) string   { return filepath.Join(s.dir, user+failSuffix) }

// ReadSecret opens the user's secret file refusing to follow symlinks,
// reads it whole, and trims trailing whitespace. A missing or unreadable
// file fails with ErrNotProvisioned.
func (s *Store) ReadSecret(user string) (string, error) {
	f, err := openNoFollowCloExec(s.secretPath(user), unix.O_RDONLY, 0)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotProvisioned, err)
	}
	defer f.Close()

	data, err := readAllLimited(f, 8192)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotProvisioned, err)
	}
	return trimTrailingSpace(string(data)), nil
}

// WriteSecret writes record to the user's secret file with owner-only
// permissions, truncating any prior content. Used by the Provisioner.
func (s *Store) WriteSecret(user string, record string) error {
	if err := os.MkdirAll(s.dir, DirMode); err != nil {
		return fmt.Errorf("pinstore: create store directory: %w", err)
	}
	path := s.secretPath(user)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, FileMode)
	if err != nil {
		return fmt.Errorf("pinstore: write secret: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(record + "\n"); err != nil {
		return fmt.Errorf("pinstore: write secret: %w", err)
	}
	return f.Chmod(FileMode)
}

// RemoveFailState deletes the user's failure-state file, if any. Used by
// the Provisioner to reset lockout state on re-provisioning, and by the
// Verifier on successful authentication.
func (s *Store) RemoveFailState(user string) error {
	err := os.Remove(s.failPath(user))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pinstore: remove failure state: %w", err)
	}
	return nil
}

// FailHandle is an open, lockable handle to a user's failure-state file.
type FailHandle struct {
	f *os.File
}

// OpenFailState opens the failure-state file for read/write, creating it
// if absent, refusing to follow symlinks, setting close-on-exec. Returns
// an error only on an open failure the caller should treat as "proceed
// without rate-limit state" per spec.md §4.2/§4.4.
func (s *Store) OpenFailState(user string) (*FailHandle, error) {
	f, err := openNoFollowCloExec(s.failPath(user), unix.O_RDWR|unix.O_CREAT, FileMode)
	if err != nil {
		return nil, fmt.Errorf("pinstore: open failure state: %w", err)
	}
	return &FailHandle{f: f}, nil
}

// Lock acquires an exclusive advisory lock over the whole file, blocking
// until available. Held across the entire read-modify-write cycle.
func (h *FailHandle) Lock() error {
	return unix.Flock(int(h.f.Fd()), unix.LOCK_EX)
}

// Unlock releases the advisory lock. Close also releases it, so callers
// typically just defer Close.
func (h *FailHandle) Unlock() error {
	return unix.Flock(int(h.f.Fd()), unix.LOCK_UN)
}

// ReadAll reads the entire current contents of the handle from the start.
func (h *FailHandle) ReadAll() (string, error) {
	if _, err := h.f.Seek(0, 0); err != nil {
		return "", err
	}
	data, err := readAllLimited(h.f, 4096)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteAll truncates the file and writes record from offset zero.
func (h *FailHandle) WriteAll(record string) error {
	if err := h.f.Truncate(0); err != nil {
		return err
	}
	if _, err := h.f.Seek(0, 0); err != nil {
		return err
	}
	_, err := h.f.WriteString(record)
	return err
}

// Close releases the lock (if held) and the file handle.
func (h *FailHandle) Close() error {
	_ = h.Unlock()
	return h.f.Close()
}

// openNoFollowCloExec opens path refusing to follow a trailing symlink and
// with close-on-exec set, atomically with the open call.
func openNoFollowCloExec(path string, flags int, mode uint32) (*os.File, error) {
	fd, err := unix.Open(path, flags|unix.O_NOFOLLOW|unix.O_CLOEXEC, mode)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}

func readAllLimited(f *os.File, limit int64) ([]byte, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size > limit {
		size = limit
	}
	buf := make([]byte, size)
	n, err := f.ReadAt(buf, 0)
	if err != nil && n == 0 {
		return nil, err
	}
	return buf[:n], nil
}

func trimTrailingSpace(s string) string {
	i := len(s)
	for i > 0 {
		c := s[i-1]
		if c != '\n' && c != '\r' && c != ' ' && c != '\t' {
			break
		}
		i--
	}
	return s[:i]
}
