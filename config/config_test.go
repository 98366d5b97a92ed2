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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromPathDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "color", cfg.Log.Format)
	assert.Equal(t, "work", cfg.Work.Dir)
	assert.Equal(t, "configs/images.yaml", cfg.Work.Spec)
	assert.Equal(t, "https://alpinelinux.org/releases.json", cfg.Releases.URL)
	assert.Equal(t, "https://dl-cdn.alpinelinux.org/alpine", cfg.Releases.Mirror)
	assert.Empty(t, cfg.AWS.Region)
	assert.Empty(t, cfg.AWS.Profile)
}

func TestLoadFromPathOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `log:
  level: debug
  format: plain
work:
  dir: /srv/skyforge/work
  spec: specs/alpine.yaml
releases:
  url: https://mirror.internal/releases.json
aws:
  region: eu-north-1
  profile: imaging
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "plain", cfg.Log.Format)
	assert.Equal(t, "/srv/skyforge/work", cfg.Work.Dir)
	assert.Equal(t, "specs/alpine.yaml", cfg.Work.Spec)
	assert.Equal(t, "https://mirror.internal/releases.json", cfg.Releases.URL)

	// unset keys still fall back to defaults
	assert.Equal(t, "https://dl-cdn.alpinelinux.org/alpine", cfg.Releases.Mirror)

	assert.Equal(t, "eu-north-1", cfg.AWS.Region)
	assert.Equal(t, "imaging", cfg.AWS.Profile)
}

func TestLoadFromPathMissingFile(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
