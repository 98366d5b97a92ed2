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

	"github.com/cowdogmoo/skyforge/image"
	"github.com/cowdogmoo/skyforge/logging"
)

var (
	refreshOnly   []string
	refreshSkip   []string
	refreshRevise bool
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [step]",
	Short: "Refresh image lifecycle state",
	Long: `Reconciles every selected image configuration against stored metadata
and reports which lifecycle steps remain. The step may be one of local,
upload, import, publish, release, or the meta-targets state (dry run, the
default) and rollback (reverse completed steps).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		step := image.StepState
		if len(args) > 0 {
			step = args[0]
		}
		if !validStep(step) {
			return fmt.Errorf("invalid step %q", step)
		}

		mgr, err := loadOrResolve(false)
		if err != nil {
			return err
		}

		pending, err := mgr.RefreshState(cmd.Context(), step, refreshOnly, refreshSkip, refreshRevise)
		if err != nil {
			return err
		}

		if pending {
			logging.Info("Actions pending")
		} else {
			logging.Info("No actions pending")
		}
		return nil
	},
}

func validStep(step string) bool {
	if step == image.StepState || step == image.StepRollback {
		return true
	}
	for _, s := range image.Steps {
		if s == step {
			return true
		}
	}
	return false
}

func init() {
	refreshCmd.Flags().StringSliceVar(&refreshOnly, "only", nil, "Only cells containing all of these dimension keys")
	refreshCmd.Flags().StringSliceVar(&refreshSkip, "skip", nil, "Skip cells containing any of these dimension keys")
	refreshCmd.Flags().BoolVar(&refreshRevise, "revise", false, "Bump revision of published or released cells")
}
