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
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cowdogmoo/skyforge/logging"
	"github.com/cowdogmoo/skyforge/resolver"
)

// ConfigTag marks persisted image configurations, distinguishing them
// from ordinary mappings in the persisted set.
const ConfigTag = "!ImageConfig"

// MarshalYAML emits the config as a ConfigTag-tagged mapping with sorted
// keys so the persisted set is byte-stable across runs.
func (c *Config) MarshalYAML() (any, error) {
	m := c.ToMap()

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	node := &yaml.Node{Kind: yaml.MappingNode, Tag: ConfigTag}
	for _, k := range keys {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}

		valNode := &yaml.Node{}
		if m[k] == nil {
			valNode.Kind = yaml.ScalarNode
			valNode.Tag = "!!null"
			valNode.Value = "null"
		} else if err := valNode.Encode(m[k]); err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}

		node.Content = append(node.Content, keyNode, valNode)
	}

	return node, nil
}

// UnmarshalYAML restores a config from its tagged (or plain) mapping
// form. Collaborators are rebound afterwards with Bind.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: expected a mapping, got %s", ConfigTag, value.Tag)
	}

	// retag so Decode treats the custom-tagged node as an ordinary map
	plain := *value
	plain.Tag = "!!map"

	var m map[string]any
	if err := plain.Decode(&m); err != nil {
		return err
	}

	c.applyMap(m)
	return nil
}

// Bind attaches collaborators to a restored config; New applies the same
// options at construction time.
func (c *Config) Bind(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.workDir == "" {
		c.workDir = "work"
	}
	if c.log == nil {
		c.log = logging.NewLogger(slog.LevelInfo)
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
}

// Plain returns the untagged mapping form handed to downstream build
// tooling.
func (c *Config) Plain() resolver.Fragment {
	return c.ToMap()
}
