// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pinstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := ResolveDir(dir, false)
	require.NoError(t, err)
	return s
}

func TestResolveDir_NonPrivilegedAcceptsAsGiven(t *testing.T) {
	dir := t.TempDir()
	s, err := ResolveDir(dir, false)
	require.NoError(t, err)
	require.Equal(t, dir, s.Dir())
}

func TestResolveDir_PrivilegedRejectsRelativePath(t *testing.T) {
	_, err := ResolveDir("relative/path", true)
	require.ErrorIs(t, err, ErrInsecureDirectory)
}

func TestResolveDir_PrivilegedRejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	require.NoError(t, os.Mkdir(target, 0o700))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	_, err := ResolveDir(link, true)
	require.ErrorIs(t, err, ErrInsecureDirectory)
}

func TestResolveDir_PrivilegedRejectsWorldWritable(t *testing.T) {
	dir := t.TempDir()
	insecure := filepath.Join(dir, "insecure")
	require.NoError(t, os.Mkdir(insecure, 0o777))
	require.NoError(t, os.Chmod(insecure, 0o777)) // Mkdir's mode is filtered by the umask

	_, err := ResolveDir(insecure, true)
	require.ErrorIs(t, err, ErrInsecureDirectory)
}

func TestWriteReadSecret_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteSecret("alice", "$6$abc$def"))

	record, err := s.ReadSecret("alice")
	require.NoError(t, err)
	require.Equal(t, "$6$abc$def", record)
}

func TestReadSecret_MissingUserFailsNotProvisioned(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ReadSecret("nobody")
	require.ErrorIs(t, err, ErrNotProvisioned)
}

func TestWriteSecret_FileModeIsOwnerOnly(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteSecret("bob", "$argon2id$v=19$m=1,t=1,p=1$a$b"))

	info, err := os.Stat(filepath.Join(s.Dir(), "bob.passwd"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(FileMode), info.Mode().Perm())
}

func TestRemoveFailState_MissingIsNotAnError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RemoveFailState("ghost"))
}

func TestOpenFailState_CreatesAndPersistsAcrossReopen(t *testing.T) {
	s := newTestStore(t)

	h, err := s.OpenFailState("carol")
	require.NoError(t, err)
	require.NoError(t, h.Lock())
	require.NoError(t, h.WriteAll("count:100"))
	require.NoError(t, h.Close())

	h2, err := s.OpenFailState("carol")
	require.NoError(t, err)
	defer h2.Close()
	require.NoError(t, h2.Lock())
	data, err := h2.ReadAll()
	require.NoError(t, err)
	require.Equal(t, "count:100", data)
}

func TestRemoveFailState_DeletesExisting(t *testing.T) {
	s := newTestStore(t)
	h, err := s.OpenFailState("dave")
	require.NoError(t, err)
	require.NoError(t, h.WriteAll("count:1"))
	require.NoError(t, h.Close())

	require.NoError(t, s.RemoveFailState("dave"))
	_, err = os.Stat(filepath.Join(s.Dir(), "dave.fail"))
	require.True(t, os.IsNotExist(err))
}
