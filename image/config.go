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

// Package image holds the resolved configuration and lifecycle state for
// one build-matrix cell, the release state machine that advances it, and
// the manager that owns the full configuration set.
package image

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cowdogmoo/skyforge/logging"
	"github.com/cowdogmoo/skyforge/resolver"
	"github.com/cowdogmoo/skyforge/storage"
)

// TimeLayout is the UTC ISO-8601 form used for all lifecycle timestamps.
const TimeLayout = "2006-01-02T15:04:05"

// Config is the resolved, normalized configuration for one cell plus its
// mutable lifecycle fields. Well-known fields are explicit; authored
// fields referenced only by template interpolation live in Extra.
type Config struct {
	ConfigKey string
	ImageKey  string

	Project     string
	Version     string
	Release     string
	Arch        string
	Firmware    string
	Bootstrap   string
	Cloud       string
	Name        string
	Description string

	EndOfLife    string
	ReleaseNotes string

	ImageFormat    string
	StorageURL     string
	DownloadURL    string
	CloudRegionURL string
	CloudLaunchURL string

	RepoKeys       string
	Repos          string
	MOTD           string
	KernelModules  string
	KernelOptions  string
	InitfsFeatures string
	Packages       map[string]string
	Services       map[string]string
	QEMU           map[string]any

	// lifecycle; empty string means not-yet-reached (null when persisted)
	Built        string
	Uploaded     string
	Imported     string
	ImportID     string
	ImportRegion string
	Published    string
	Released     string
	Artifacts    map[string]string
	Revision     int
	Actions      []string
	StateUpdated string

	MetadataUpdated string

	// Extra holds cell-specific authored fields outside the well-known set.
	Extra map[string]any

	log     *logging.Logger
	clouds  Registry
	workDir string
	now     func() time.Time
	store   *storage.Store
}

// Option configures a Config's collaborators.
type Option func(*Config)

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Config) { c.log = log }
}

// WithClouds injects the cloud adapter registry.
func WithClouds(reg Registry) Option {
	return func(c *Config) { c.clouds = reg }
}

// WithWorkDir overrides the local working area (default "work").
func WithWorkDir(dir string) Option {
	return func(c *Config) { c.workDir = dir }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Config) { c.now = now }
}

// New builds a Config from a resolved fragment, projecting well-known
// fields and keeping the remainder in Extra. This is the single place
// the open attribute bag meets the fixed field set.
func New(configKey string, m resolver.Fragment, opts ...Option) *Config {
	c := &Config{
		ConfigKey: configKey,
		workDir:   "work",
		log:       logging.NewLogger(slog.LevelInfo),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	c.applyMap(m)
	return c
}

// applyMap overlays a fragment or metadata mapping onto the config.
func (c *Config) applyMap(m resolver.Fragment) {
	if c.Extra == nil {
		c.Extra = map[string]any{}
	}

	for k, v := range m {
		switch k {
		case "config_key":
			c.ConfigKey = asString(v)
		case "image_key":
			c.ImageKey = asString(v)
		case "project":
			c.Project = asString(v)
		case "version":
			c.Version = resolver.Dequote(asString(v))
		case "release":
			c.Release = asString(v)
		case "arch":
			c.Arch = asString(v)
		case "firmware":
			c.Firmware = asString(v)
		case "bootstrap":
			c.Bootstrap = asString(v)
		case "cloud":
			c.Cloud = asString(v)
		case "name":
			c.Name = asString(v)
		case "description":
			c.Description = asString(v)
		case "end_of_life":
			c.EndOfLife = asString(v)
		case "release_notes":
			c.ReleaseNotes = asString(v)
		case "image_format":
			c.ImageFormat = asString(v)
		case "storage_url":
			c.StorageURL = asString(v)
		case "download_url":
			c.DownloadURL = asString(v)
		case "cloud_region_url":
			c.CloudRegionURL = asString(v)
		case "cloud_launch_url":
			c.CloudLaunchURL = asString(v)
		case "repo_keys":
			c.RepoKeys = asString(v)
		case "repos":
			c.Repos = asString(v)
		case "motd":
			c.MOTD = asString(v)
		case "kernel_modules":
			c.KernelModules = asString(v)
		case "kernel_options":
			c.KernelOptions = asString(v)
		case "initfs_features":
			c.InitfsFeatures = asString(v)
		case "packages":
			c.Packages = asStringMap(v)
		case "services":
			c.Services = asStringMap(v)
		case "qemu":
			if qemu, ok := v.(map[string]any); ok {
				c.QEMU = qemu
			}
		case "built":
			c.Built = asString(v)
		case "uploaded":
			c.Uploaded = asString(v)
		case "imported":
			c.Imported = asString(v)
		case "import_id":
			c.ImportID = asString(v)
		case "import_region":
			c.ImportRegion = asString(v)
		case "published":
			c.Published = asString(v)
		case "released":
			c.Released = asString(v)
		case "artifacts":
			c.Artifacts = asStringMap(v)
		case "revision":
			c.Revision = asInt(v)
		case "actions":
			c.Actions = asStringList(v)
		case "state_updated":
			c.StateUpdated = asString(v)
		case "metadata_updated":
			c.MetadataUpdated = asString(v)
		default:
			c.Extra[k] = v
		}
	}
}

// ToMap is the inverse of applyMap, producing the persisted form.
// Unreached lifecycle timestamps are emitted as nulls.
func (c *Config) ToMap() resolver.Fragment {
	m := resolver.Fragment{
		"config_key":       c.ConfigKey,
		"image_key":        c.ImageKey,
		"project":          c.Project,
		"version":          c.Version,
		"release":          c.Release,
		"arch":             c.Arch,
		"firmware":         c.Firmware,
		"bootstrap":        c.Bootstrap,
		"cloud":            c.Cloud,
		"name":             c.Name,
		"description":      c.Description,
		"end_of_life":      c.EndOfLife,
		"release_notes":    c.ReleaseNotes,
		"image_format":     c.ImageFormat,
		"storage_url":      c.StorageURL,
		"download_url":     c.DownloadURL,
		"cloud_region_url": c.CloudRegionURL,
		"cloud_launch_url": c.CloudLaunchURL,
		"repo_keys":        c.RepoKeys,
		"repos":            c.Repos,
		"motd":             c.MOTD,
		"kernel_modules":   c.KernelModules,
		"kernel_options":   c.KernelOptions,
		"initfs_features":  c.InitfsFeatures,
		"revision":         c.Revision,
		"built":            nullable(c.Built),
		"uploaded":         nullable(c.Uploaded),
		"imported":         nullable(c.Imported),
		"import_id":        nullable(c.ImportID),
		"import_region":    nullable(c.ImportRegion),
		"published":        nullable(c.Published),
		"released":         nullable(c.Released),
		"state_updated":    nullable(c.StateUpdated),
	}

	if c.Packages != nil {
		m["packages"] = toAnyMap(c.Packages)
	}
	if c.Services != nil {
		m["services"] = toAnyMap(c.Services)
	}
	if c.QEMU != nil {
		m["qemu"] = c.QEMU
	}
	if c.Artifacts != nil {
		m["artifacts"] = toAnyMap(c.Artifacts)
	} else {
		m["artifacts"] = nil
	}
	if c.Actions != nil {
		list := make([]any, len(c.Actions))
		for i, a := range c.Actions {
			list[i] = a
		}
		m["actions"] = list
	}
	if c.MetadataUpdated != "" {
		m["metadata_updated"] = c.MetadataUpdated
	}
	for k, v := range c.Extra {
		m[k] = v
	}

	return m
}

// VVersion is the version as it appears in mirror paths.
func (c *Config) VVersion() string {
	return resolver.VVersion(c.Version)
}

// LocalDir is the per-cell staging directory.
func (c *Config) LocalDir() string {
	return filepath.Join(c.workDir, "images", c.Cloud, c.ImageKey)
}

// LocalImage is the path of the locally built base image.
func (c *Config) LocalImage() string {
	return filepath.Join(c.LocalDir(), "image.qcow2")
}

// vars is the declared interpolation variable set for this cell: every
// scalar well-known field plus scalar Extra entries and v_version.
func (c *Config) vars() map[string]string {
	vars := resolver.ScalarVars(c.Extra)
	for k, v := range map[string]string{
		"config_key":    c.ConfigKey,
		"image_key":     c.ImageKey,
		"project":       c.Project,
		"version":       c.Version,
		"v_version":     c.VVersion(),
		"release":       c.Release,
		"arch":          c.Arch,
		"firmware":      c.Firmware,
		"bootstrap":     c.Bootstrap,
		"cloud":         c.Cloud,
		"end_of_life":   c.EndOfLife,
		"release_notes": c.ReleaseNotes,
		"image_format":  c.ImageFormat,
		"revision":      strconv.Itoa(c.Revision),
	} {
		vars[k] = v
	}
	return vars
}

func (c *Config) interpolate(tmpl string, extra map[string]string) string {
	vars := c.vars()
	for k, v := range extra {
		vars[k] = v
	}

	s, err := resolver.Interpolate(tmpl, vars)
	if err != nil {
		// templates are validated at resolution time; keep the raw
		// template rather than losing the value
		c.log.Warn("%s: %v", c.ConfigKey, err)
		return tmpl
	}
	return s
}

// ImageName is the name template interpolated for the current revision.
func (c *Config) ImageName() string {
	return c.interpolate(c.Name, nil)
}

// ImageDescription is the interpolated description.
func (c *Config) ImageDescription() string {
	return c.interpolate(c.Description, nil)
}

// ImageFile is the cloud-format artifact file name.
func (c *Config) ImageFile() string {
	return c.ImageName() + "." + c.ImageFormat
}

// ImagePath is the artifact's path in the staging directory.
func (c *Config) ImagePath() string {
	return filepath.Join(c.LocalDir(), c.ImageFile())
}

// MetadataFile is the metadata file name for the current revision.
func (c *Config) MetadataFile() string {
	return c.ImageName() + ".yaml"
}

// MetadataPath is the metadata file's path in the staging directory.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.LocalDir(), c.MetadataFile())
}

// metadataGlob matches stored metadata for this image at any revision.
func (c *Config) metadataGlob() string {
	return c.interpolate(c.Name, map[string]string{"revision": "*"}) + ".yaml"
}

// RegionURL is the provider console URL for an imported image.
func (c *Config) RegionURL(region, imageID string) string {
	return c.interpolate(c.CloudRegionURL, map[string]string{"region": region, "image_id": imageID})
}

// LaunchURL is the provider launch URL for an imported image.
func (c *Config) LaunchURL(region, imageID string) string {
	return c.interpolate(c.CloudLaunchURL, map[string]string{"region": region, "image_id": imageID})
}

// Validate interpolates every template field once so undeclared variables
// surface at resolution time, not at use time.
func (c *Config) Validate() error {
	vars := c.vars()
	vars["region"] = ""
	vars["image_id"] = ""

	for field, tmpl := range map[string]string{
		"name":             c.Name,
		"description":      c.Description,
		"cloud_region_url": c.CloudRegionURL,
		"cloud_launch_url": c.CloudLaunchURL,
	} {
		if tmpl == "" {
			continue
		}
		if _, err := resolver.Interpolate(tmpl, vars); err != nil {
			return fmt.Errorf("%s: %s: %w", c.ConfigKey, field, err)
		}
	}
	return nil
}

// Tags is the identity and lifecycle projection attached to cloud
// resources and written to metadata files.
func (c *Config) Tags() Tags {
	t := Tags{
		"arch":        c.Arch,
		"bootstrap":   c.Bootstrap,
		"cloud":       c.Cloud,
		"description": c.ImageDescription(),
		"end_of_life": c.EndOfLife,
		"firmware":    c.Firmware,
		"image_key":   c.ImageKey,
		"name":        c.ImageName(),
		"project":     c.Project,
		"release":     c.Release,
		"revision":    strconv.Itoa(c.Revision),
		"version":     c.Version,
	}

	// these may or may not exist yet
	for k, v := range map[string]string{
		"built":         c.Built,
		"uploaded":      c.Uploaded,
		"imported":      c.Imported,
		"import_id":     c.ImportID,
		"import_region": c.ImportRegion,
		"published":     c.Published,
		"released":      c.Released,
	} {
		if v != "" {
			t[k] = v
		}
	}

	return t
}

// Adapter returns this cell's cloud adapter, or nil when the registry has
// none for the cloud.
func (c *Config) Adapter() CloudAdapter {
	return c.clouds.Adapter(c.Cloud)
}

// cloudHas reports whether the cloud's capability set includes a step.
func (c *Config) cloudHas(action string) bool {
	adapter := c.Adapter()
	if adapter == nil {
		return false
	}
	for _, a := range adapter.Actions() {
		if a == action {
			return true
		}
	}
	return false
}

// Storage returns the artifact store bound to this cell's staging
// directory, creating it on first use.
func (c *Config) Storage() (*storage.Store, error) {
	if c.store == nil {
		st, err := storage.New(c.LocalDir(), c.StorageURL, c.log)
		if err != nil {
			return nil, err
		}
		c.store = st
	}
	return c.store, nil
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

func asStringMap(v any) map[string]string {
	raw, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		out[k] = asString(val)
	}
	return out
}

func asStringList(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, len(raw))
	for i, val := range raw {
		out[i] = asString(val)
	}
	return out
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
