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

	"github.com/spf13/cobra"

	"github.com/cowdogmoo/skyforge/logging"
)

var configsRebuild bool

var configsCmd = &cobra.Command{
	Use:   "configs",
	Short: "Resolve the image configuration matrix",
	Long: `Expands the dimensional spec into one configuration per build-matrix
cell and persists the set under the work directory. On subsequent runs the
persisted set is reused unless --rebuild is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := loadOrResolve(configsRebuild)
		if err != nil {
			return err
		}

		for _, key := range mgr.Keys {
			fmt.Println(key)
		}
		logging.Info("%d image configurations", len(mgr.Keys))
		return nil
	},
}

func init() {
	configsCmd.Flags().BoolVar(&configsRebuild, "rebuild", false, "Re-resolve even if a persisted set exists")
}
