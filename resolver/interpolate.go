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
	"strconv"
	"strings"

	"github.com/cowdogmoo/skyforge/errors"
)

// Interpolate substitutes {name} tokens in a template against a declared
// variable set. "{{" and "}}" escape literal braces. A token naming an
// undeclared variable is an error, surfaced at resolution time rather
// than at use time.
func Interpolate(tmpl string, vars map[string]string) (string, error) {
	var out strings.Builder
	for i := 0; i < len(tmpl); {
		c := tmpl[i]

		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			out.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			out.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated interpolation token in %q", tmpl)
			}
			name := tmpl[i+1 : i+end]
			value, ok := vars[name]
			if !ok {
				return "", fmt.Errorf("%w: %q in %q", errors.ErrUndeclaredVariable, name, tmpl)
			}
			out.WriteString(value)
			i += end + 1
		default:
			out.WriteByte(c)
			i++
		}
	}

	return out.String(), nil
}

// ScalarVars collects a fragment's top-level scalar fields as the declared
// interpolation variable set for that cell.
func ScalarVars(f Fragment) map[string]string {
	vars := make(map[string]string, len(f))
	for k, v := range f {
		switch t := v.(type) {
		case string:
			vars[k] = t
		case bool:
			vars[k] = strconv.FormatBool(t)
		case int:
			vars[k] = strconv.Itoa(t)
		case int64:
			vars[k] = strconv.FormatInt(t, 10)
		case float64:
			vars[k] = strconv.FormatFloat(t, 'f', -1, 64)
		}
	}
	return vars
}
