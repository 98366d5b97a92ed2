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

import "context"

// CloudAdapter is the per-provider capability surface the state machine
// drives. Providers lacking import or publish omit those step names from
// Actions; the state machine treats a missing capability as a
// permanently-satisfied step.
type CloudAdapter interface {
	// Actions returns the step names this provider supports
	// ("import", "publish").
	Actions() []string

	// GetLatestImportedTags returns the tag set of the most recently
	// imported revision of an image, or nil when none exists.
	GetLatestImportedTags(ctx context.Context, project, imageKey string) (Tags, error)

	// ImportImage imports the uploaded artifact and returns the provider
	// image id and the region it was imported into.
	ImportImage(ctx context.Context, cfg *Config) (id, region string, err error)

	// DeleteImage removes an imported image.
	DeleteImage(ctx context.Context, imageID string) error

	// PublishImage makes an imported image available and returns the
	// region to image-id map of resulting artifacts.
	PublishImage(ctx context.Context, cfg *Config) (map[string]string, error)
}

// Registry maps cloud names to their adapters. It is injected into the
// Manager and each Config rather than discovered through process-global
// registration.
type Registry map[string]CloudAdapter

// Adapter returns the adapter for a cloud, or nil.
func (r Registry) Adapter(cloud string) CloudAdapter {
	if r == nil {
		return nil
	}
	return r[cloud]
}
