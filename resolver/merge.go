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
	"dario.cat/mergo"

	"github.com/cowdogmoo/skyforge/errors"
)

// Merge merges src into dst deep-additively: nested maps merge key by key,
// scalars and lists are replaced wholesale by the later fragment. The
// source fragment is deep-copied first so spec fragments are never aliased
// into a cell's accumulated state.
func Merge(dst, src Fragment) error {
	cp, ok := deepCopy(src).(Fragment)
	if !ok {
		cp = Fragment{}
	}

	// mergo skips nil source values; an explicit null must still win ties.
	applyNulls(dst, cp)

	if err := mergo.Merge(&dst, cp, mergo.WithOverride); err != nil {
		return errors.Wrap("merge configuration fragment", "", err)
	}
	return nil
}

// applyNulls copies explicit null entries from src into dst (recursing
// through shared nested maps) and removes them from src.
func applyNulls(dst, src Fragment) {
	for k, v := range src {
		if v == nil {
			dst[k] = nil
			delete(src, k)
			continue
		}

		if sm, ok := v.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				applyNulls(dm, sm)
			}
		}
	}
}

// deepCopy copies a fragment value tree. Scalars are immutable and pass
// through unchanged.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
