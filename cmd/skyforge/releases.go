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

package main

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cowdogmoo/skyforge/image"
	"github.com/cowdogmoo/skyforge/inventory"
	"github.com/cowdogmoo/skyforge/logging"
)

var releasesOutFile string

var releasesCmd = &cobra.Command{
	Use:   "releases",
	Short: "Generate the released-images datasource",
	Long: `Projects every released image configuration into a template-ready YAML
datasource (filters, versions, variants, downloads, region links). Run
after all images have been released.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := loadOrResolve(false)
		if err != nil {
			return err
		}

		// edge is never released; final skips remote metadata discovery
		if _, err := mgr.RefreshState(cmd.Context(), image.StepFinal, nil, []string{"edge"}, false); err != nil {
			return err
		}

		logging.Info("Transforming image data")
		doc, err := inventory.BuildReleases(mgr)
		if err != nil {
			return err
		}

		out := os.Stdout
		if releasesOutFile != "" {
			f, err := os.Create(releasesOutFile)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	},
}

func init() {
	releasesCmd.Flags().StringVarP(&releasesOutFile, "output", "o", "", "Output file (default stdout)")
}
