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

package errors

import (
	"errors"
	"testing"
)

func TestWrap(t *testing.T) {
	base := errors.New("connection refused")

	tests := []struct {
		name     string
		action   string
		detail   string
		err      error
		expected string
	}{
		{
			name:     "action only",
			action:   "list stored metadata",
			err:      base,
			expected: "failed to list stored metadata: connection refused",
		},
		{
			name:     "action with detail",
			action:   "retrieve file",
			detail:   "alpine-3.18.4-x86_64-r2.yaml",
			err:      base,
			expected: "failed to retrieve file (alpine-3.18.4-x86_64-r2.yaml): connection refused",
		},
		{
			name:   "nil error returns nil",
			action: "store artifacts",
			detail: "image.vhd",
			err:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Wrap(tt.action, tt.detail, tt.err)

			if tt.err == nil {
				if result != nil {
					t.Errorf("Expected nil error, got: %v", result)
				}
				return
			}

			if result == nil {
				t.Fatal("Expected wrapped error, got nil")
			}
			if result.Error() != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result.Error())
			}
			if !errors.Is(result, tt.err) {
				t.Error("Expected wrapped error to match the base error")
			}
		})
	}
}

func TestIsUnwrapsSentinels(t *testing.T) {
	err := Wrap("configure storage", "s3", ErrUnsupportedScheme)

	if !Is(err, ErrUnsupportedScheme) {
		t.Error("Expected sentinel to be found in the chain")
	}
	if Is(err, ErrUndeclaredVariable) {
		t.Error("Did not expect an unrelated sentinel to match")
	}
}
