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
	"fmt"
	"sort"
	"strings"

	"github.com/cowdogmoo/skyforge/image"
)

// The releases document is a template-ready datasource describing every
// released image: filter lists for the site UI, then versions, their
// variants, and per-cloud downloads and region links.

// RegionFilter lists which clouds serve a region.
type RegionFilter struct {
	Region string              `yaml:"region"`
	Clouds []map[string]string `yaml:"clouds"`
}

// Filters are the site's selectable dimensions, in document order.
type Filters struct {
	Clouds     []map[string]string `yaml:"clouds"`
	Regions    []*RegionFilter     `yaml:"regions"`
	Archs      []map[string]string `yaml:"archs"`
	Firmwares  []map[string]string `yaml:"firmwares"`
	Bootstraps []map[string]string `yaml:"bootstraps"`
}

// Download is one variant's artifact on one cloud.
type Download struct {
	Cloud       string `yaml:"cloud"`
	ImageName   string `yaml:"image_name"`
	ImageFormat string `yaml:"image_format"`
	ImageURL    string `yaml:"image_url"`
}

// RegionLink is one variant's imported image in one region.
type RegionLink struct {
	Cloud     string `yaml:"cloud"`
	Region    string `yaml:"region"`
	RegionURL string `yaml:"region_url"`
	LaunchURL string `yaml:"launch_url"`
}

// Variant is one released arch/firmware/bootstrap combination.
type Variant struct {
	Variant   string        `yaml:"variant"`
	Arch      string        `yaml:"arch"`
	Firmware  string        `yaml:"firmware"`
	Bootstrap string        `yaml:"bootstrap"`
	Released  string        `yaml:"released"`
	Downloads []*Download   `yaml:"downloads"`
	Regions   []*RegionLink `yaml:"regions"`

	regionsByName map[string]*RegionLink
}

// Version groups released variants under one OS version.
type Version struct {
	Version   string     `yaml:"version"`
	Release   string     `yaml:"release"`
	EndOfLife string     `yaml:"end_of_life"`
	Images    []*Variant `yaml:"images"`

	imagesByKey map[string]*Variant
}

// Releases is the full document.
type Releases struct {
	Filters  *Filters   `yaml:"filters"`
	Versions []*Version `yaml:"versions"`
}

// BuildReleases projects the released cells of the configuration set
// into the datasource document. Edge cells are excluded since edge is
// never "released"; document order follows the persisted set.
func BuildReleases(m *image.Manager) (*Releases, error) {
	filters := &Filters{}
	seen := map[string]bool{}
	regionFilters := map[string]*RegionFilter{}
	versions := map[string]*Version{}
	var versionOrder []string

	addFilter := func(list *[]map[string]string, kind, key string, cfg *image.Config) {
		mark := kind + ":" + key
		if seen[mark] {
			return
		}
		seen[mark] = true
		*list = append(*list, map[string]string{
			kind:           key,
			kind + "_name": extraString(cfg, kind+"_name"),
		})
	}

	for _, key := range m.Keys {
		cfg := m.Configs[key]
		if cfg.Released == "" || cfg.Version == "edge" {
			continue
		}

		released := strings.SplitN(cfg.Uploaded, "T", 2)[0]
		variantKey := fmt.Sprintf("%s %s %s %s", cfg.Release, cfg.Arch, cfg.Firmware, cfg.Bootstrap)

		addFilter(&filters.Clouds, "cloud", cfg.Cloud, cfg)
		addFilter(&filters.Archs, "arch", cfg.Arch, cfg)
		addFilter(&filters.Firmwares, "firmware", cfg.Firmware, cfg)
		addFilter(&filters.Bootstraps, "bootstrap", cfg.Bootstrap, cfg)

		v := versions[cfg.Version]
		if v == nil {
			v = &Version{
				Version:     cfg.Version,
				Release:     cfg.Release,
				EndOfLife:   cfg.EndOfLife,
				imagesByKey: map[string]*Variant{},
			}
			versions[cfg.Version] = v
			versionOrder = append(versionOrder, cfg.Version)
		}

		variant := v.imagesByKey[variantKey]
		if variant == nil {
			variant = &Variant{
				Variant:       variantKey,
				Arch:          cfg.Arch,
				Firmware:      cfg.Firmware,
				Bootstrap:     cfg.Bootstrap,
				Released:      released,
				regionsByName: map[string]*RegionLink{},
			}
			v.imagesByKey[variantKey] = variant
			v.Images = append(v.Images, variant)
		}

		variant.Downloads = append(variant.Downloads, &Download{
			Cloud:       cfg.Cloud,
			ImageName:   cfg.ImageName(),
			ImageFormat: cfg.ImageFormat,
			ImageURL:    strings.TrimSuffix(cfg.DownloadURL, "/") + "/" + cfg.ImageName(),
		})

		for _, region := range sortedKeys(cfg.Artifacts) {
			imageID := cfg.Artifacts[region]

			rf := regionFilters[region]
			if rf == nil {
				rf = &RegionFilter{Region: region}
				regionFilters[region] = rf
				filters.Regions = append(filters.Regions, rf)
			}
			if !regionHasCloud(rf, cfg.Cloud) {
				rf.Clouds = append(rf.Clouds, map[string]string{"cloud": cfg.Cloud})
			}

			variant.regionsByName[region] = &RegionLink{
				Cloud:     cfg.Cloud,
				Region:    region,
				RegionURL: cfg.RegionURL(region, imageID),
				LaunchURL: cfg.LaunchURL(region, imageID),
			}
		}
	}

	// newest version first
	sort.Slice(versionOrder, func(i, j int) bool {
		return compareRelease(versionOrder[i], versionOrder[j]) > 0
	})

	doc := &Releases{Filters: filters}
	for _, ver := range versionOrder {
		v := versions[ver]
		for _, variant := range v.Images {
			for _, region := range sortedKeys(variant.regionsByName) {
				variant.Regions = append(variant.Regions, variant.regionsByName[region])
			}
		}
		doc.Versions = append(doc.Versions, v)
	}

	return doc, nil
}

func regionHasCloud(rf *RegionFilter, cloud string) bool {
	for _, c := range rf.Clouds {
		if c["cloud"] == cloud {
			return true
		}
	}
	return false
}

func extraString(cfg *image.Config, key string) string {
	if v, ok := cfg.Extra[key].(string); ok {
		return v
	}
	return ""
}
