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
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cowdogmoo/skyforge/clouds"
	"github.com/cowdogmoo/skyforge/inventory"
	"github.com/cowdogmoo/skyforge/logging"
)

var (
	cacheCloud   string
	cacheRegion  string
	cachePrefix  string
	cacheOutFile string
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Build the cloud image inventory cache",
	Long: `Lists every owned image across regions and writes the inventory cache
consumed by the prune command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cacheCloud != "aws" {
			return fmt.Errorf("unsupported cloud %q", cacheCloud)
		}

		adapter := clouds.NewAWSAdapter(awsClientConfig(), logging.Default())

		var regions []string
		if cacheRegion != "" {
			regions = []string{cacheRegion}
		}

		cache, err := inventory.Build(cmd.Context(), adapter, cachePrefix, regions, logging.Default())
		if err != nil {
			return err
		}

		out := cacheOutFile
		if out == "" {
			out = filepath.Join(cfg.Work.Dir, "image-cache.yaml")
		}
		if err := cache.Save(out); err != nil {
			return err
		}

		logging.Info("Wrote %s (%s)", out, cache)
		return nil
	},
}

func init() {
	cacheCmd.Flags().StringVar(&cacheCloud, "cloud", "aws", "Cloud provider")
	cacheCmd.Flags().StringVar(&cacheRegion, "region", "", "Specific region, instead of all regions")
	cacheCmd.Flags().StringVar(&cachePrefix, "prefix", "alpine-", "Only cache images whose name has this prefix")
	cacheCmd.Flags().StringVarP(&cacheOutFile, "output", "o", "", "Cache file path (default <work>/image-cache.yaml)")
}
