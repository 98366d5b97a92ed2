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

package image

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cowdogmoo/skyforge/errors"
	"github.com/cowdogmoo/skyforge/logging"
	"github.com/cowdogmoo/skyforge/release"
	"github.com/cowdogmoo/skyforge/resolver"
)

// Manager owns the full config_key to Config mapping, persists and
// restores it, and fans out state refreshes with filtering. Iteration
// always follows Keys, the persisted document order.
type Manager struct {
	Configs map[string]*Config
	Keys    []string

	path    string
	log     *logging.Logger
	clouds  Registry
	workDir string
	now     func() time.Time
}

// ManagerOption configures a Manager and the Configs it owns.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(log *logging.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// WithManagerClouds injects the cloud adapter registry.
func WithManagerClouds(reg Registry) ManagerOption {
	return func(m *Manager) { m.clouds = reg }
}

// WithManagerWorkDir overrides the local working area.
func WithManagerWorkDir(dir string) ManagerOption {
	return func(m *Manager) { m.workDir = dir }
}

// WithManagerNow overrides the clock, for tests.
func WithManagerNow(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager persisting its set at path.
func NewManager(path string, opts ...ManagerOption) *Manager {
	m := &Manager{
		path:    path,
		workDir: "work",
		log:     logging.NewLogger(slog.LevelInfo),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) configOpts() []Option {
	return []Option{
		WithLogger(m.log),
		WithClouds(m.clouds),
		WithWorkDir(m.workDir),
		WithNow(m.now),
	}
}

// Resolved reports whether a persisted configuration set exists.
func (m *Manager) Resolved() bool {
	return fileExists(m.path)
}

// Resolve expands the dimensional spec into the full configuration set
// and persists it. Any resolution or template error aborts before
// anything is written, so no partial matrix is ever persisted.
func (m *Manager) Resolve(spec *resolver.Spec, versions release.Resolver) error {
	engine := resolver.NewEngine(versions, m.now(), m.log)
	result, err := engine.Resolve(spec)
	if err != nil {
		return err
	}

	configs := make(map[string]*Config, len(result.Keys))
	for _, key := range result.Keys {
		cfg := New(key, result.Configs[key], m.configOpts()...)
		if err := cfg.Validate(); err != nil {
			return err
		}
		configs[key] = cfg
	}

	m.Configs = configs
	m.Keys = result.Keys
	m.log.Info("Resolved %d image configurations", len(m.Keys))

	return m.Save()
}

// Load restores the persisted configuration set, preserving document
// order.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return errors.Wrap("read image configs", m.path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.Wrap("parse image configs", m.path, err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("%s: expected a mapping document", m.path)
	}

	root := doc.Content[0]
	m.Configs = make(map[string]*Config, len(root.Content)/2)
	m.Keys = m.Keys[:0]

	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value

		cfg := &Config{}
		if err := root.Content[i+1].Decode(cfg); err != nil {
			return errors.Wrap("decode image config", key, err)
		}
		cfg.ConfigKey = key
		cfg.Bind(m.configOpts()...)

		m.Configs[key] = cfg
		m.Keys = append(m.Keys, key)
	}

	m.log.Debug("Loaded %d image configurations from %s", len(m.Keys), m.path)
	return nil
}

// Save persists the configuration set atomically: the document is
// written to a temp file and renamed over the old one, so a crash
// mid-write never corrupts committed state.
func (m *Manager) Save() error {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, key := range m.Keys {
		node, err := m.Configs[key].MarshalYAML()
		if err != nil {
			return errors.Wrap("encode image config", key, err)
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			node.(*yaml.Node),
		)
	}

	data, err := yaml.Marshal(root)
	if err != nil {
		return errors.Wrap("serialize image configs", m.path, err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return errors.Wrap("create config dir", filepath.Dir(m.path), err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap("write image configs", tmp, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return errors.Wrap("commit image configs", m.path, err)
	}

	return nil
}

// RefreshState refreshes every selected cell sequentially, re-persists
// the set, and reports whether any cell still has pending actions.
// Stale action lists on unselected cells are cleared so a narrowed run
// never re-executes a previous pass's plan.
func (m *Manager) RefreshState(ctx context.Context, step string, only, skip []string, revise bool) (bool, error) {
	m.log.Info("Refreshing image config state")

	for _, key := range m.Keys {
		cfg := m.Configs[key]
		cfg.Actions = nil

		if !selected(key, only, skip) {
			m.log.Debug("%s skipped by filter", key)
			continue
		}

		if err := cfg.RefreshState(ctx, step, revise); err != nil {
			return false, err
		}
	}

	if err := m.Save(); err != nil {
		return false, err
	}

	for _, key := range m.Keys {
		if len(m.Configs[key].Actions) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// selected applies the dimension-key filters: a cell must contain all
// "only" keys and none of the "skip" keys.
func selected(configKey string, only, skip []string) bool {
	keys := map[string]bool{}
	for _, k := range strings.Split(configKey, "-") {
		keys[k] = true
	}

	for _, k := range only {
		if !keys[k] {
			return false
		}
	}
	for _, k := range skip {
		if keys[k] {
			return false
		}
	}
	return true
}
