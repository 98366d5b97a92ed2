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

package resolver

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cowdogmoo/skyforge/errors"
	"github.com/cowdogmoo/skyforge/logging"
	"github.com/cowdogmoo/skyforge/release"
)

// maxWhenDepth bounds the WHEN fixed-point loop; nested conditionals
// deeper than this are a configuration error.
const maxWhenDepth = 8

// Result is the resolved configuration set, keyed by config_key, with the
// enumeration order preserved for deterministic iteration.
type Result struct {
	Configs map[string]Fragment
	Keys    []string
}

// Engine expands a dimensional spec into per-cell configurations.
type Engine struct {
	Versions release.Resolver
	Now      time.Time
	Log      *logging.Logger
}

// NewEngine creates a resolution engine. now fixes the end-of-life
// comparison instant for the whole run.
func NewEngine(versions release.Resolver, now time.Time, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.NewLogger(slog.LevelInfo)
	}
	return &Engine{Versions: versions, Now: now.UTC(), Log: log}
}

// Resolve expands the Cartesian product of all dimension keys, merging
// Default, each dimension's fragment (with WHEN/EXCLUDE resolution) and
// Mandatory into one normalized configuration per live cell. It is
// deterministic and idempotent for a given spec and version resolver
// answer set.
func (e *Engine) Resolve(spec *Spec) (*Result, error) {
	if err := e.injectVersionInfo(spec); err != nil {
		return nil, err
	}

	result := &Result{Configs: map[string]Fragment{}}

	for _, cell := range enumerate(spec.Dimensions) {
		merged, ok, err := e.resolveCell(spec, cell)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		configKey := cellConfigKey(cell)
		result.Configs[configKey] = merged
		result.Keys = append(result.Keys, configKey)
	}

	return result, nil
}

// cellKey pairs a dimension with the key chosen for one cell.
type cellKey struct {
	Dimension string
	Key       DimensionKey
}

// enumerate walks the Cartesian product in declaration order.
func enumerate(dims []Dimension) [][]cellKey {
	var cells [][]cellKey

	indices := make([]int, len(dims))
	for {
		cell := make([]cellKey, len(dims))
		for i, d := range dims {
			cell[i] = cellKey{Dimension: d.Name, Key: d.Keys[indices[i]]}
		}
		cells = append(cells, cell)

		// odometer increment, rightmost dimension fastest
		i := len(dims) - 1
		for ; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(dims[i].Keys) {
				break
			}
			indices[i] = 0
		}
		if i < 0 {
			return cells
		}
	}
}

func cellConfigKey(cell []cellKey) string {
	parts := make([]string, len(cell))
	for i, ck := range cell {
		parts[i] = Dequote(ck.Key.Name)
	}
	return strings.Join(parts, "-")
}

// cellKeySet is the de-quoted dimension-key set used by WHEN and EXCLUDE
// trigger matching.
func cellKeySet(cell []cellKey) map[string]bool {
	set := make(map[string]bool, len(cell))
	for _, ck := range cell {
		set[Dequote(ck.Key.Name)] = true
	}
	return set
}

// injectVersionInfo queries the version resolver for each version
// dimension key and seeds release, end_of_life, release_notes plus the
// name/description lists consumed by normalization.
func (e *Engine) injectVersionInfo(spec *Spec) error {
	dim := spec.Dimension("version")
	if dim == nil {
		return nil
	}

	for i := range dim.Keys {
		key := &dim.Keys[i]
		info, err := e.Versions.VersionInfo(Dequote(key.Name))
		if err != nil {
			return errors.Wrap("resolve version", Dequote(key.Name), err)
		}

		if key.Fragment == nil {
			key.Fragment = Fragment{}
		}
		key.Fragment["release"] = info.Release
		key.Fragment["end_of_life"] = info.EndOfLife
		key.Fragment["release_notes"] = info.Notes
		key.Fragment["name"] = []any{info.Release}
		key.Fragment["description"] = []any{info.Release}
	}

	return nil
}

// resolveCell merges one cell's fragments in strict order. The second
// return value is false when the cell is eliminated by EXCLUDE or
// end_of_life.
func (e *Engine) resolveCell(spec *Spec, cell []cellKey) (Fragment, bool, error) {
	configKey := cellConfigKey(cell)
	keySet := cellKeySet(cell)

	merged := Fragment{}
	relStr := ""
	for _, ck := range cell {
		value := Dequote(ck.Key.Name)
		merged[ck.Dimension] = value
		if ck.Dimension == "version" {
			if rel, ok := ck.Key.Fragment["release"].(string); ok {
				relStr = rel
			}
		}
	}

	// image_key substitutes the resolved release for the raw version key
	imageParts := make([]string, len(cell))
	for i, ck := range cell {
		if ck.Dimension == "version" && relStr != "" {
			imageParts[i] = relStr
		} else {
			imageParts[i] = Dequote(ck.Key.Name)
		}
	}
	merged["image_key"] = strings.Join(imageParts, "-")
	if relStr != "" {
		merged["release"] = relStr
	}
	if spec.Project != "" {
		merged["project"] = spec.Project
	}

	if err := Merge(merged, spec.Default); err != nil {
		return nil, false, err
	}

	for _, ck := range cell {
		if err := Merge(merged, ck.Key.Fragment); err != nil {
			return nil, false, err
		}

		if err := resolveWhen(merged, keySet, spec.Order); err != nil {
			return nil, false, errors.Wrap("resolve conditionals", configKey, err)
		}

		if triggers, excluded := popExclude(merged, keySet); excluded {
			e.Log.Debug("%s SKIPPED, %s excludes %v", configKey, Dequote(ck.Key.Name), triggers)
			return nil, false, nil
		}

		past, err := e.endOfLifePast(merged)
		if err != nil {
			return nil, false, errors.Wrap("parse end_of_life", configKey, err)
		}
		if past {
			e.Log.Warn("%s SKIPPED, %s end_of_life %v", configKey, Dequote(ck.Key.Name), merged["end_of_life"])
			return nil, false, nil
		}
	}

	if err := Merge(merged, spec.Mandatory); err != nil {
		return nil, false, err
	}

	if err := Normalize(merged, spec.Order); err != nil {
		return nil, false, errors.Wrap("normalize configuration", configKey, err)
	}

	e.resolveInstallerURL(merged)

	return merged, true, nil
}

// resolveWhen runs the bounded fixed-point over WHEN blocks. Trigger keys
// within one token list are OR'd; nested WHEN blocks surface on the next
// pass, composing as AND. Token lists within one block are evaluated in
// authoring order, so the later-merge-wins tie-break follows the document.
func resolveWhen(merged Fragment, keySet map[string]bool, order KeyOrder) error {
	for depth := 0; ; depth++ {
		raw, present := merged["WHEN"]
		if !present {
			return nil
		}
		if depth == maxWhenDepth {
			return fmt.Errorf("%w: depth limit %d exceeded", errors.ErrUnresolvedConditional, maxWhenDepth)
		}
		delete(merged, "WHEN")

		block, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: WHEN is not a mapping", errors.ErrUnresolvedConditional)
		}

		for _, tokens := range order.orderedKeys("WHEN", block) {
			if !tokensMatch(tokens, keySet) {
				continue
			}

			frag, ok := block[tokens].(map[string]any)
			if !ok {
				return fmt.Errorf("%w: WHEN %q is not a mapping", errors.ErrUnresolvedConditional, tokens)
			}
			if err := Merge(merged, frag); err != nil {
				return err
			}
		}
	}
}

func tokensMatch(tokens string, keySet map[string]bool) bool {
	for _, token := range strings.Fields(tokens) {
		if keySet[Dequote(token)] {
			return true
		}
	}
	return false
}

// popExclude removes any EXCLUDE list and reports whether its triggers
// intersect the cell's dimension keys.
func popExclude(merged Fragment, keySet map[string]bool) ([]string, bool) {
	raw, present := merged["EXCLUDE"]
	if !present {
		return nil, false
	}
	delete(merged, "EXCLUDE")

	list, ok := raw.([]any)
	if !ok {
		return nil, false
	}

	triggers := make([]string, 0, len(list))
	excluded := false
	for _, t := range list {
		trigger := Dequote(fmt.Sprint(t))
		triggers = append(triggers, trigger)
		if keySet[trigger] {
			excluded = true
		}
	}
	return triggers, excluded
}

// eolLayouts are the accepted end_of_life formats.
var eolLayouts = []string{"2006-01-02T15:04:05", "2006-01-02"}

func (e *Engine) endOfLifePast(merged Fragment) (bool, error) {
	eol, ok := merged["end_of_life"].(string)
	if !ok || eol == "" {
		return false, nil
	}

	for _, layout := range eolLayouts {
		if t, err := time.Parse(layout, eol); err == nil {
			return e.Now.After(t), nil
		}
	}
	return false, fmt.Errorf("invalid end_of_life %q", eol)
}

// resolveInstallerURL asks the version resolver for the architecture's
// installer media URL.
func (e *Engine) resolveInstallerURL(merged Fragment) {
	arch, ok := merged["arch"].(string)
	if !ok {
		return
	}

	url := e.Versions.InstallerURL(arch)
	if url == "" {
		return
	}

	qemu, ok := merged["qemu"].(map[string]any)
	if !ok {
		qemu = map[string]any{}
		merged["qemu"] = qemu
	}
	qemu["iso_url"] = url
}
