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
	"github.com/cowdogmoo/skyforge/image"
	"github.com/cowdogmoo/skyforge/logging"
)

// DefaultRegistry builds the adapter set injected into the config
// manager. The client config's credential override applies uniformly to
// every adapter that talks to a provider.
func DefaultRegistry(cc ClientConfig, log *logging.Logger) image.Registry {
	return image.Registry{
		"aws":     NewAWSAdapter(cc, log),
		"nocloud": &StubAdapter{Cloud: "nocloud"},
		"azure":   &StubAdapter{Cloud: "azure"},
		"gcp":     &StubAdapter{Cloud: "gcp"},
		"oci":     &StubAdapter{Cloud: "oci"},
	}
}
