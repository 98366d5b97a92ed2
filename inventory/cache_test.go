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

package inventory

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/skyforge/image"
	"github.com/cowdogmoo/skyforge/logging"
)

type fakeLister struct {
	regions []string
	images  map[string][]image.Tags
}

func (f *fakeLister) Regions(ctx context.Context) ([]string, error) {
	return f.regions, nil
}

func (f *fakeLister) ListImages(ctx context.Context, region string) ([]image.Tags, error) {
	return f.images[region], nil
}

func testLog() *logging.Logger {
	return logging.NewLogger(slog.LevelError)
}

func awsTags(id, name string, kv map[string]string) image.Tags {
	t := image.Tags{
		"id":       id,
		"Name":     name,
		"created":  "2024-01-01T00:00:00.000Z",
		"launched": "Never",
		"public":   "true",
	}
	for k, v := range kv {
		t[k] = v
	}
	return t
}

func TestBuildParsesImageNames(t *testing.T) {
	lister := &fakeLister{
		regions: []string{"us-west-2"},
		images: map[string][]image.Tags{
			"us-west-2": {
				awsTags("ami-1", "alpine-3.18.4-x86_64-bios-tiny-r2", nil),
				awsTags("ami-2", "alpine-edge-x86_64-bios-tiny-r0", nil),
				awsTags("ami-3", "alpine-3.19.0_rc2-x86_64-bios-tiny-r0", nil),
				awsTags("ami-4", "someone-elses-image", nil),
				awsTags("ami-5", "alpine-garbage", nil),
			},
		},
	}

	cache, err := Build(context.Background(), lister, "alpine-", nil, testLog())
	require.NoError(t, err)

	rc := cache["us-west-2"]
	require.NotNil(t, rc)

	// the foreign image and the unparseable one are dropped
	require.Len(t, rc.Images, 3)

	img := rc.Images["ami-1"]
	require.NotNil(t, img)
	assert.Equal(t, "3.18.4", img.Release)
	assert.Equal(t, "3.18", img.Version)
	assert.Equal(t, "x86_64-bios-tiny", img.Variant)
	assert.Equal(t, "2", img.Revision)
	assert.Equal(t, "3.18-x86_64-bios-tiny", img.VariantKey)
	assert.Equal(t, "3.18.4-2", img.ReleaseKey)
	assert.False(t, img.RC)
	assert.True(t, img.Unused())

	edge := rc.Images["ami-2"]
	require.NotNil(t, edge)
	assert.Equal(t, "edge", edge.Release)
	assert.Equal(t, "edge", edge.Version)
	assert.Equal(t, "0", edge.ReleaseKey)

	rcImg := rc.Images["ami-3"]
	require.NotNil(t, rcImg)
	assert.True(t, rcImg.RC)
}

func TestBuildDeprecationMarksEOL(t *testing.T) {
	lister := &fakeLister{
		regions: []string{"us-west-2"},
		images: map[string][]image.Tags{
			"us-west-2": {
				awsTags("ami-old", "alpine-3.12.9-x86_64-bios-tiny-r0",
					map[string]string{"deprecated": "2020-01-01T00:00:00.000Z"}),
				awsTags("ami-new", "alpine-3.18.4-x86_64-bios-tiny-r0",
					map[string]string{"deprecated": "9999-01-01T00:00:00.000Z"}),
				awsTags("ami-private", "alpine-3.18.4-aarch64-bios-tiny-r0",
					map[string]string{"public": "false"}),
			},
		},
	}

	cache, err := Build(context.Background(), lister, "alpine-", nil, testLog())
	require.NoError(t, err)

	rc := cache["us-west-2"]
	assert.True(t, rc.Images["ami-old"].EOL)
	assert.False(t, rc.Images["ami-new"].EOL)
	assert.False(t, rc.Images["ami-old"].Private)
	assert.True(t, rc.Images["ami-private"].Private)
}

func TestBuildLatestIndex(t *testing.T) {
	lister := &fakeLister{
		regions: []string{"us-west-2"},
		images: map[string][]image.Tags{
			"us-west-2": {
				awsTags("ami-1", "alpine-3.18.2-x86_64-bios-tiny-r0", nil),
				awsTags("ami-2", "alpine-3.18.4-x86_64-bios-tiny-r0", nil),
				awsTags("ami-3", "alpine-3.18.4-x86_64-bios-tiny-r1", nil),
				awsTags("ami-4", "alpine-3.18.4-x86_64-uefi-tiny-r5", nil),
			},
		},
	}

	cache, err := Build(context.Background(), lister, "alpine-", nil, testLog())
	require.NoError(t, err)

	latest := cache["us-west-2"].Latest
	require.NotNil(t, latest["3.18-x86_64-bios-tiny"])
	assert.Equal(t, "3.18.4-1", latest["3.18-x86_64-bios-tiny"].ReleaseKey)
	assert.Equal(t, "3.18.4-5", latest["3.18-x86_64-uefi-tiny"].ReleaseKey)
}

func TestBuildRegionFilter(t *testing.T) {
	lister := &fakeLister{
		regions: []string{"us-west-2", "eu-north-1"},
		images: map[string][]image.Tags{
			"us-west-2": {awsTags("ami-1", "alpine-3.18.4-x86_64-bios-tiny-r0", nil)},
			"eu-north-1": {
				awsTags("ami-2", "alpine-3.18.4-x86_64-bios-tiny-r0", nil),
			},
		},
	}

	cache, err := Build(context.Background(), lister, "alpine-", []string{"eu-north-1"}, testLog())
	require.NoError(t, err)

	assert.Equal(t, []string{"eu-north-1"}, cache.Regions())
	assert.Equal(t, 1, cache.Total())
}

func TestCompareRelease(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"3.18.4", "3.18.4", 0},
		{"3.18.2", "3.18.4", -1},
		{"3.18.4", "3.18.2", 1},
		{"3.9", "3.10", -1},
		{"3.18", "3.18.4", -1},
		{"edge", "3.18.4", 1},
		{"3.18.4", "edge", -1},
		{"edge", "edge", 0},
	}

	for _, tt := range tests {
		got := compareRelease(tt.a, tt.b)
		switch tt.expected {
		case 0:
			assert.Zero(t, got, "%s vs %s", tt.a, tt.b)
		case -1:
			assert.Negative(t, got, "%s vs %s", tt.a, tt.b)
		case 1:
			assert.Positive(t, got, "%s vs %s", tt.a, tt.b)
		}
	}
}

func TestCacheSaveAndLoad(t *testing.T) {
	lister := &fakeLister{
		regions: []string{"us-west-2"},
		images: map[string][]image.Tags{
			"us-west-2": {
				awsTags("ami-1", "alpine-3.18.4-x86_64-bios-tiny-r2",
					map[string]string{"snapshot_id": "snap-1"}),
			},
		},
	}

	cache, err := Build(context.Background(), lister, "alpine-", nil, testLog())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "image-cache.yaml")
	require.NoError(t, cache.Save(path))

	loaded, err := LoadCache(path)
	require.NoError(t, err)

	img := loaded["us-west-2"].Images["ami-1"]
	require.NotNil(t, img)
	assert.Equal(t, "ami-1", img.ID)
	assert.Equal(t, "alpine-3.18.4-x86_64-bios-tiny-r2", img.Name)
	assert.Equal(t, "snap-1", img.SnapshotID)
	assert.Equal(t, cache["us-west-2"].Latest, loaded["us-west-2"].Latest)
	assert.Equal(t, "1 regions, 1 images", loaded.String())
}
