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

// Package resolver expands the dimensional image configuration into one
// fully-resolved, flat configuration per build-matrix cell. The authoring
// format is YAML with three top-level sections (Default, Dimensions,
// Mandatory) and two conditional operators: WHEN (merge a fragment when
// its trigger keys intersect the cell's dimension keys) and EXCLUDE
// (discard the cell entirely).
package resolver

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cowdogmoo/skyforge/errors"
)

// Fragment is a partially specified nested configuration mapping.
type Fragment = map[string]any

// Spec is the parsed dimensional configuration document. Dimension order
// and dimension-key order are declaration order, which fixes merge
// precedence and matrix enumeration order.
type Spec struct {
	Project    string
	Default    Fragment
	Dimensions []Dimension
	Mandatory  Fragment
	Order      KeyOrder
}

// KeyOrder records the authoring order of mapping keys for the fields
// whose output order is user-visible (motd sections, repos, packages,
// WHEN token lists). Keys are recorded first-seen across Default, the
// dimension fragments in declaration order, then Mandatory — the same
// order merging visits them, so the recorded order matches insertion
// order of the accumulated cell state.
type KeyOrder map[string][]string

func (o KeyOrder) record(field, key string) {
	for _, k := range o[field] {
		if k == key {
			return
		}
	}
	o[field] = append(o[field], key)
}

// orderedKeys returns m's keys in recorded authoring order. Keys the
// document never declared sort last, so fragments built outside a parsed
// spec degrade to plain sorted order.
func (o KeyOrder) orderedKeys(field string, m map[string]any) []string {
	keys := make([]string, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, k := range o[field] {
		if _, ok := m[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}

	rest := make([]string, 0, len(m)-len(keys))
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// orderedFields are the mapping-valued fields whose key order survives
// into normalized output or evaluation order.
var orderedFields = map[string]bool{
	"motd":     true,
	"repos":    true,
	"packages": true,
	"WHEN":     true,
}

// collectKeyOrder walks a fragment node and records the declaration
// order of order-sensitive mapping keys, wherever they appear (including
// inside WHEN blocks).
func collectKeyOrder(node *yaml.Node, order KeyOrder) {
	if node == nil {
		return
	}
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}

	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			if value.Kind == yaml.AliasNode && value.Alias != nil {
				value = value.Alias
			}
			if orderedFields[key.Value] && value.Kind == yaml.MappingNode {
				for j := 0; j+1 < len(value.Content); j += 2 {
					order.record(key.Value, value.Content[j].Value)
				}
			}
			collectKeyOrder(value, order)
		}
	case yaml.SequenceNode:
		for _, c := range node.Content {
			collectKeyOrder(c, order)
		}
	}
}

// Dimension is one named axis of the build matrix.
type Dimension struct {
	Name string
	Keys []DimensionKey
}

// Key returns the dimension key with the given name, or nil.
func (d *Dimension) Key(name string) *DimensionKey {
	for i := range d.Keys {
		if d.Keys[i].Name == name {
			return &d.Keys[i]
		}
	}
	return nil
}

// DimensionKey maps one key of a dimension to its configuration fragment.
// Key names may carry literal double quotes to protect dots (version
// numbers); Dequote strips them wherever the key is used as an identifier.
type DimensionKey struct {
	Name     string
	Fragment Fragment
}

// Dimension returns the dimension with the given name, or nil.
func (s *Spec) Dimension(name string) *Dimension {
	for i := range s.Dimensions {
		if s.Dimensions[i].Name == name {
			return &s.Dimensions[i]
		}
	}
	return nil
}

// Dequote strips the quoting used to protect literal dots in dimension
// keys and version values.
func Dequote(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}

// LoadSpec reads and parses a dimensional spec document.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap("read spec file", path, err)
	}

	spec, err := ParseSpec(data)
	if err != nil {
		return nil, errors.Wrap("parse spec file", path, err)
	}
	return spec, nil
}

// ParseSpec parses a dimensional spec document from YAML bytes.
func ParseSpec(data []byte) (*Spec, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty spec document")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("spec document is not a mapping")
	}

	spec := &Spec{
		Default:   Fragment{},
		Mandatory: Fragment{},
		Order:     KeyOrder{},
	}

	var defaultNode, dimensionsNode, mandatoryNode *yaml.Node
	for i := 0; i < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		switch key.Value {
		case "project":
			spec.Project = value.Value
		case "Default":
			defaultNode = value
		case "Mandatory":
			mandatoryNode = value
		case "Dimensions":
			dimensionsNode = value
		}
	}

	// sections are processed in merge order so key-order recording
	// matches the insertion order a cell accumulates
	if defaultNode != nil {
		if err := defaultNode.Decode(&spec.Default); err != nil {
			return nil, fmt.Errorf("invalid Default section: %w", err)
		}
		collectKeyOrder(defaultNode, spec.Order)
	}

	if dimensionsNode != nil {
		dims, err := parseDimensions(dimensionsNode, spec.Order)
		if err != nil {
			return nil, err
		}
		spec.Dimensions = dims
	}
	if len(spec.Dimensions) == 0 {
		return nil, fmt.Errorf("spec has no Dimensions section")
	}

	if mandatoryNode != nil {
		if err := mandatoryNode.Decode(&spec.Mandatory); err != nil {
			return nil, fmt.Errorf("invalid Mandatory section: %w", err)
		}
		collectKeyOrder(mandatoryNode, spec.Order)
	}

	return spec, nil
}

func parseDimensions(node *yaml.Node, order KeyOrder) ([]Dimension, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("Dimensions section is not a mapping")
	}

	var dims []Dimension
	for i := 0; i < len(node.Content); i += 2 {
		name, keys := node.Content[i], node.Content[i+1]
		if keys.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("dimension %q is not a mapping", name.Value)
		}

		dim := Dimension{Name: name.Value}
		for j := 0; j < len(keys.Content); j += 2 {
			keyNode, fragNode := keys.Content[j], keys.Content[j+1]
			frag := Fragment{}
			if fragNode.Tag != "!!null" {
				if err := fragNode.Decode(&frag); err != nil {
					return nil, fmt.Errorf("dimension key %s.%s: %w", name.Value, keyNode.Value, err)
				}
				collectKeyOrder(fragNode, order)
			}
			dim.Keys = append(dim.Keys, DimensionKey{Name: keyNode.Value, Fragment: frag})
		}

		// an axis with no keys would empty the whole matrix
		if len(dim.Keys) == 0 {
			return nil, fmt.Errorf("dimension %q has no keys", name.Value)
		}
		dims = append(dims, dim)
	}

	return dims, nil
}
