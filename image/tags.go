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

import "strconv"

// Tags is the string key/value projection of an image's identity and
// lifecycle, as attached to cloud resources and written to metadata files.
type Tags map[string]string

// Get returns the tag value, or "" when absent.
func (t Tags) Get(key string) string {
	return t[key]
}

// Revision parses the revision tag, defaulting to 0.
func (t Tags) Revision() int {
	rev, err := strconv.Atoi(t["revision"])
	if err != nil {
		return 0
	}
	return rev
}

// KV is one entry of a cloud provider's list-form tag set.
type KV struct {
	Key   string
	Value string
}

// AsList converts to the list form cloud APIs expect.
func (t Tags) AsList() []KV {
	list := make([]KV, 0, len(t))
	for k, v := range t {
		list = append(list, KV{Key: k, Value: v})
	}
	return list
}

// TagsFromList converts a cloud provider's list-form tag set.
func TagsFromList(list []KV) Tags {
	t := make(Tags, len(list))
	for _, kv := range list {
		t[kv.Key] = kv.Value
	}
	return t
}
