/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/skyforge/errors"
)

func testStore(t *testing.T) (*Store, string, string) {
	t.Helper()

	local := t.TempDir()
	remote := t.TempDir()
	s, err := New(local, "file://"+remote, nil)
	require.NoError(t, err)
	return s, local, remote
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestNewSchemes(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
		wantErr  bool
	}{
		{name: "file scheme", url: "file:///var/store", expected: "file"},
		{name: "bare path", url: "/var/store", expected: "file"},
		{name: "ssh scheme", url: "ssh://user@host:2022/images", expected: "ssh"},
		{name: "unsupported scheme", url: "s3://bucket/images", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(t.TempDir(), tt.url, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrUnsupportedScheme)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, s.Scheme())
		})
	}
}

func TestNewStripsTrailingSlash(t *testing.T) {
	s, err := New(t.TempDir(), "file:///var/store/", nil)
	require.NoError(t, err)
	assert.Equal(t, "file:///var/store", s.URL)
}

func TestStoreAndRetrieve(t *testing.T) {
	s, local, remote := testStore(t)
	writeFile(t, local, "image.vhd", "artifact payload")

	require.NoError(t, s.Store("image.vhd"))
	assert.FileExists(t, filepath.Join(remote, "image.vhd"))

	require.NoError(t, os.Remove(filepath.Join(local, "image.vhd")))
	require.NoError(t, s.Retrieve("image.vhd"))

	data, err := os.ReadFile(filepath.Join(local, "image.vhd"))
	require.NoError(t, err)
	assert.Equal(t, "artifact payload", string(data))
}

func TestStoreExpandsGlobs(t *testing.T) {
	s, local, remote := testStore(t)
	writeFile(t, local, "meta.yaml", "a")
	writeFile(t, local, "meta.yaml.sha256", "b")
	writeFile(t, local, "meta.yaml.sha512", "c")

	require.NoError(t, s.Store("meta.yaml*"))
	assert.FileExists(t, filepath.Join(remote, "meta.yaml"))
	assert.FileExists(t, filepath.Join(remote, "meta.yaml.sha256"))
	assert.FileExists(t, filepath.Join(remote, "meta.yaml.sha512"))
}

func TestStoreMissingFilesIsNoop(t *testing.T) {
	s, _, remote := testStore(t)

	require.NoError(t, s.Store("nothing-here.yaml"))
	entries, err := os.ReadDir(remote)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListNewestFirst(t *testing.T) {
	s, _, remote := testStore(t)

	writeFile(t, remote, "img-r1.yaml", "1")
	writeFile(t, remote, "img-r2.yaml", "2")
	writeFile(t, remote, "other.txt", "x")

	// mtimes decide the order
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(remote, "img-r1.yaml"), old, old))

	names, err := s.List("img-r*.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"img-r2.yaml", "img-r1.yaml"}, names)
}

func TestListEmptyMatchListsAll(t *testing.T) {
	s, _, remote := testStore(t)
	writeFile(t, remote, "a.yaml", "a")

	names, err := s.List("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.yaml"}, names)
}

func TestRemove(t *testing.T) {
	s, _, remote := testStore(t)
	writeFile(t, remote, "img.vhd", "payload")

	require.NoError(t, s.Remove("img.vhd", "never-existed.vhd"))
	assert.NoFileExists(t, filepath.Join(remote, "img.vhd"))
}

func TestChecksums(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.vhd")
	require.NoError(t, os.WriteFile(path, []byte("artifact payload"), 0o644))

	require.NoError(t, SaveChecksums(path))
	assert.FileExists(t, path+".sha256")
	assert.FileExists(t, path+".sha512")

	ok, err := VerifyChecksum(path)
	require.NoError(t, err)
	assert.True(t, ok)

	// corruption is detected
	require.NoError(t, os.WriteFile(path, []byte("tampered payload"), 0o644))
	ok, err = VerifyChecksum(path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyChecksumMissingSum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.vhd")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := VerifyChecksum(path)
	assert.Error(t, err)
}
