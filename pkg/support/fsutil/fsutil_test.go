// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"crypto/sha256"
	"encoding/hex"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a/b.txt", []byte("x"), 0644))

	exists, err := FileExists(fs, "/a/b.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = FileExists(fs, "/a/c.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	isDir, err := IsDir(fs, "/a")
	require.NoError(t, err)
	assert.True(t, isDir)
	isDir, err = IsDir(fs, "/a/b.txt")
	require.NoError(t, err)
	assert.False(t, isDir)
	isDir, err = IsDir(fs, "/missing")
	require.NoError(t, err)
	assert.False(t, isDir)
}

func TestReplaceTildeInDir(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)

	got, err := ReplaceTildeInDir("~/datasets")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(usr.HomeDir, "datasets"), got)

	got, err = ReplaceTildeInDir("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)

	got, err = ReplaceTildeInDir("")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestValidateChecksum(t *testing.T) {
	fs := afero.NewMemMapFs()
	contents := []byte("darknet")
	require.NoError(t, afero.WriteFile(fs, "/w.bin", contents, 0644))
	sum := sha256.Sum256(contents)

	require.NoError(t, ValidateChecksum(fs, "/w.bin", hex.EncodeToString(sum[:])))
	require.Error(t, ValidateChecksum(fs, "/w.bin", "00"))
	require.Error(t, ValidateChecksum(fs, "/missing.bin", "00"))
}
