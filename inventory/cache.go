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

// Package inventory builds and consumes the per-region image cache used
// for pruning reports and the released-image datasource.
package inventory

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/cowdogmoo/skyforge/errors"
	"github.com/cowdogmoo/skyforge/image"
	"github.com/cowdogmoo/skyforge/logging"
)

// imageNameRe decomposes an image name into release, optional rc, variant
// and revision, e.g. "alpine-3.18.4-x86_64-bios-tiny-r2".
var imageNameRe = regexp.MustCompile(`(edge|[\d.]+)(?:_rc(\d+))?-(.+)-r?(\d+)$`)

// deprecationLayout is EC2's DeprecationTime format.
const deprecationLayout = "2006-01-02T15:04:05.000Z"

// Image is one cached cloud image.
type Image struct {
	ID         string `yaml:"-"`
	Name       string `yaml:"name"`
	Release    string `yaml:"release"`
	Version    string `yaml:"version"`
	Variant    string `yaml:"variant"`
	Revision   string `yaml:"revision"`
	VariantKey string `yaml:"variant_key"`
	ReleaseKey string `yaml:"release_key"`
	Created    string `yaml:"created"`
	Launched   string `yaml:"launched"`
	Deprecated string `yaml:"deprecated"`
	RC         bool   `yaml:"rc"`
	EOL        bool   `yaml:"eol"`
	Private    bool   `yaml:"private"`
	SnapshotID string `yaml:"snapshot_id"`
}

// Unused reports whether the image has never been launched.
func (i *Image) Unused() bool {
	return i.Launched == "" || i.Launched == "Never"
}

// Latest records the newest release of one variant in a region.
type Latest struct {
	Release    string `yaml:"release"`
	Revision   string `yaml:"revision"`
	ReleaseKey string `yaml:"release_key"`
}

// Region is one region's cached images plus its per-variant latest index.
type Region struct {
	Images map[string]*Image  `yaml:"images"`
	Latest map[string]*Latest `yaml:"latest"`
}

// Cache maps region names to their cached inventory.
type Cache map[string]*Region

// Lister is the provider surface the cache is built from.
type Lister interface {
	Regions(ctx context.Context) ([]string, error)
	ListImages(ctx context.Context, region string) ([]image.Tags, error)
}

// Build lists every requested region concurrently and assembles the
// cache. Only images whose name starts with prefix are considered; names
// that fail to parse are logged and skipped, since tags cannot be
// trusted to have been applied.
func Build(ctx context.Context, lister Lister, prefix string, regions []string, log *logging.Logger) (Cache, error) {
	if len(regions) == 0 {
		var err error
		regions, err = lister.Regions(ctx)
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(regions)

	now := time.Now().UTC()
	cache := Cache{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, region := range regions {
		g.Go(func() error {
			images, err := lister.ListImages(gctx, region)
			if err != nil {
				return errors.Wrap("list images", region, err)
			}

			rc := buildRegion(region, prefix, images, now, log)
			mu.Lock()
			cache[region] = rc
			mu.Unlock()

			log.Info("%s : %d images", region, len(rc.Images))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cache, nil
}

func buildRegion(region, prefix string, images []image.Tags, now time.Time, log *logging.Logger) *Region {
	rc := &Region{
		Images: map[string]*Image{},
		Latest: map[string]*Latest{},
	}

	for _, t := range images {
		id := t.Get("id")
		name := t.Get("Name")

		if !strings.HasPrefix(name, prefix) {
			log.Warn("IGNORING %s %s %s", region, id, name)
			continue
		}

		m := imageNameRe.FindStringSubmatch(name)
		if m == nil {
			log.Error("!PARSE %s %s %s", region, id, name)
			continue
		}

		release, rcSuffix, variant, revision := m[1], m[2], m[3], m[4]

		version := release
		if parts := strings.Split(release, "."); len(parts) > 2 {
			version = strings.Join(parts[:2], ".")
		}

		variantKey := version + "-" + variant
		releaseKey := revision
		if release != "edge" {
			releaseKey = release + "-" + revision
		}

		eol := false
		if dep := t.Get("deprecated"); dep != "" {
			if dt, err := time.Parse(deprecationLayout, dep); err == nil {
				eol = dt.Before(now)
			}
		}

		img := &Image{
			ID:         id,
			Name:       name,
			Release:    release,
			Version:    version,
			Variant:    variant,
			Revision:   revision,
			VariantKey: variantKey,
			ReleaseKey: releaseKey,
			Created:    t.Get("created"),
			Launched:   t.Get("launched"),
			Deprecated: t.Get("deprecated"),
			RC:         rcSuffix != "",
			EOL:        eol,
			Private:    t.Get("public") != "true",
			SnapshotID: t.Get("snapshot_id"),
		}
		rc.Images[id] = img

		latest := rc.Latest[variantKey]
		if latest == nil || releaseLess(latest.Release, latest.Revision, release, revision) {
			rc.Latest[variantKey] = &Latest{
				Release:    release,
				Revision:   revision,
				ReleaseKey: releaseKey,
			}
		}

		log.Debug("%s %v %v %s %s", region, img.Private, img.EOL, img.Launched, name)
	}

	return rc
}

// releaseLess reports whether release a-ra is older than b-rb, comparing
// dotted releases numerically and revisions as integers.
func releaseLess(a, ra, b, rb string) bool {
	if c := compareRelease(a, b); c != 0 {
		return c < 0
	}
	ai, _ := strconv.Atoi(ra)
	bi, _ := strconv.Atoi(rb)
	return ai < bi
}

func compareRelease(a, b string) int {
	if a == b {
		return 0
	}
	// edge sorts after any numbered release
	if a == "edge" {
		return 1
	}
	if b == "edge" {
		return -1
	}

	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		ai, _ := strconv.Atoi(as[i])
		bi, _ := strconv.Atoi(bs[i])
		if ai != bi {
			if ai < bi {
				return -1
			}
			return 1
		}
	}
	return len(as) - len(bs)
}

// Save writes the cache as YAML, with image ids as mapping keys.
func (c Cache) Save(path string) error {
	root := map[string]map[string]any{}
	for region, rc := range c {
		images := map[string]any{}
		for id, img := range rc.Images {
			images[id] = img
		}
		root[region] = map[string]any{
			"images": images,
			"latest": rc.Latest,
		}
	}

	data, err := yaml.Marshal(root)
	if err != nil {
		return errors.Wrap("serialize image cache", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap("write image cache", path, err)
	}
	return nil
}

// LoadCache reads a cache file produced by Save.
func LoadCache(path string) (Cache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap("read image cache", path, err)
	}

	var raw map[string]struct {
		Images map[string]*Image  `yaml:"images"`
		Latest map[string]*Latest `yaml:"latest"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap("parse image cache", path, err)
	}

	cache := Cache{}
	for region, rc := range raw {
		reg := &Region{Images: rc.Images, Latest: rc.Latest}
		if reg.Images == nil {
			reg.Images = map[string]*Image{}
		}
		if reg.Latest == nil {
			reg.Latest = map[string]*Latest{}
		}
		for id, img := range reg.Images {
			img.ID = id
		}
		cache[region] = reg
	}
	return cache, nil
}

// Total returns the cached image count across regions.
func (c Cache) Total() int {
	total := 0
	for _, rc := range c {
		total += len(rc.Images)
	}
	return total
}

// Regions returns the cached region names, sorted.
func (c Cache) Regions() []string {
	regions := make([]string, 0, len(c))
	for region := range c {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	return regions
}

// String summarizes the cache for logging.
func (c Cache) String() string {
	return fmt.Sprintf("%d regions, %d images", len(c), c.Total())
}
