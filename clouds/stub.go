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

package clouds

import (
	"context"

	"github.com/cowdogmoo/skyforge/image"
)

// StubAdapter covers providers whose images are built locally and
// uploaded to storage, but not imported or published here: nocloud has
// no provider at all, and azure/gcp/oci automation is not written yet.
// The empty capability set makes the state machine treat import and
// publish as permanently satisfied.
type StubAdapter struct {
	Cloud string
}

// Actions returns no capabilities.
func (s *StubAdapter) Actions() []string { return nil }

// GetLatestImportedTags reports no imported images.
func (s *StubAdapter) GetLatestImportedTags(ctx context.Context, project, imageKey string) (image.Tags, error) {
	return nil, nil
}

// ImportImage is not supported.
func (s *StubAdapter) ImportImage(ctx context.Context, cfg *image.Config) (string, string, error) {
	return "", "", nil
}

// DeleteImage is not supported.
func (s *StubAdapter) DeleteImage(ctx context.Context, imageID string) error { return nil }

// PublishImage is not supported.
func (s *StubAdapter) PublishImage(ctx context.Context, cfg *image.Config) (map[string]string, error) {
	return nil, nil
}
