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

// Package release resolves OS version identifiers to their current release
// string, end-of-life date and release notes, and provides the installer
// media URL for each architecture. The config resolution engine consumes
// this interface; the HTTP resolver is the production implementation.
package release

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/cowdogmoo/skyforge/errors"
)

// EdgeEndOfLife is the placeholder EOL for rolling releases, which never
// age out of the build matrix.
const EdgeEndOfLife = "9999-12-31T00:00:00"

// Info is the resolved release data for one version branch.
type Info struct {
	Release   string
	EndOfLife string
	Notes     string
}

// Resolver answers version queries for the config resolution engine.
type Resolver interface {
	// VersionInfo resolves a version identifier ("3.18", "edge") to its
	// current release, end-of-life date and release notes.
	VersionInfo(version string) (*Info, error)

	// InstallerURL returns the installer media URL for an architecture.
	InstallerURL(arch string) string
}

// branch is one entry of the published releases document.
type branch struct {
	Version   string   `json:"version"`
	Releases  []string `json:"releases"`
	EndOfLife string   `json:"end_of_life"`
	Notes     string   `json:"notes"`
}

// HTTPResolver fetches the distribution's releases document once and
// answers all version queries from it.
type HTTPResolver struct {
	// BaseURL is the mirror root, used for installer media URLs.
	BaseURL string

	// ReleasesURL is the releases document endpoint.
	ReleasesURL string

	// Client defaults to a client with a 30s timeout.
	Client *http.Client

	mu       sync.Mutex
	branches map[string]branch
}

// NewHTTPResolver creates a resolver against a mirror root and releases
// document URL.
func NewHTTPResolver(baseURL, releasesURL string) *HTTPResolver {
	return &HTTPResolver{
		BaseURL:     baseURL,
		ReleasesURL: releasesURL,
		Client:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *HTTPResolver) load() error {
	if r.branches != nil {
		return nil
	}

	resp, err := r.Client.Get(r.ReleasesURL)
	if err != nil {
		return errors.Wrap("fetch releases document", r.ReleasesURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch releases document (%s): status %d", r.ReleasesURL, resp.StatusCode)
	}

	var doc struct {
		Branches []branch `json:"branches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return errors.Wrap("parse releases document", r.ReleasesURL, err)
	}

	r.branches = make(map[string]branch, len(doc.Branches))
	for _, b := range doc.Branches {
		r.branches[b.Version] = b
	}

	return nil
}

// VersionInfo implements Resolver. The rolling "edge" version keys on
// itself and never reaches end of life.
func (r *HTTPResolver) VersionInfo(version string) (*Info, error) {
	if version == "edge" {
		return &Info{Release: "edge", EndOfLife: EdgeEndOfLife}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(); err != nil {
		return nil, err
	}

	b, ok := r.branches[version]
	if !ok {
		return nil, fmt.Errorf("unknown version %q", version)
	}

	return &Info{
		Release:   latestRelease(b.Releases),
		EndOfLife: b.EndOfLife,
		Notes:     b.Notes,
	}, nil
}

// InstallerURL implements Resolver using the newest stable branch.
func (r *HTTPResolver) InstallerURL(arch string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(); err != nil {
		return ""
	}

	var newest *semver.Version
	var pick branch
	for v, b := range r.branches {
		if v == "edge" {
			continue
		}
		sv, err := semver.NewVersion(v)
		if err != nil {
			continue
		}
		if newest == nil || sv.GreaterThan(newest) {
			newest = sv
			pick = b
		}
	}
	if newest == nil {
		return ""
	}

	rel := latestRelease(pick.Releases)
	return fmt.Sprintf("%s/v%s/releases/%s/installer-virt-%s-%s.iso",
		r.BaseURL, pick.Version, arch, rel, arch)
}

// latestRelease picks the highest release by semver ordering, falling
// back to the last listed entry for non-semver release strings.
func latestRelease(releases []string) string {
	if len(releases) == 0 {
		return ""
	}

	var newest *semver.Version
	pick := releases[len(releases)-1]
	for _, rel := range releases {
		sv, err := semver.NewVersion(rel)
		if err != nil {
			continue
		}
		if newest == nil || sv.GreaterThan(newest) {
			newest = sv
			pick = rel
		}
	}

	return pick
}

// StaticResolver answers from a fixed map; it backs tests and offline runs.
type StaticResolver struct {
	Versions map[string]Info

	// InstallerTemplate is interpolated with the arch, e.g.
	// "https://mirror.example.com/installer-{arch}.iso".
	InstallerTemplate string
}

// VersionInfo implements Resolver.
func (r *StaticResolver) VersionInfo(version string) (*Info, error) {
	if info, ok := r.Versions[version]; ok {
		return &info, nil
	}
	if version == "edge" {
		return &Info{Release: "edge", EndOfLife: EdgeEndOfLife}, nil
	}
	return nil, fmt.Errorf("unknown version %q", version)
}

// InstallerURL implements Resolver.
func (r *StaticResolver) InstallerURL(arch string) string {
	return strings.ReplaceAll(r.InstallerTemplate, "{arch}", arch)
}
