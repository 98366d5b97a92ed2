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
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cowdogmoo/skyforge/clouds"
	"github.com/cowdogmoo/skyforge/inventory"
	"github.com/cowdogmoo/skyforge/logging"
)

var (
	pruneReally    bool
	pruneSelection inventory.Selection
)

var pruneCmd = &cobra.Command{
	Use:   "prune <cache-file>",
	Short: "Prune cloud images selected from the inventory cache",
	Long: `Given an inventory cache file, computes which images match the enabled
selection predicates. Without --really only the plan is reported.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := inventory.LoadCache(args[0])
		if err != nil {
			return err
		}
		logging.Info("Loaded image cache from %s (%s)", args[0], cache)

		plan := inventory.PlanPrune(cache, pruneSelection, logging.Default())
		plan.LogSummary(logging.Default())

		if !pruneReally || plan.Count() == 0 {
			logging.Warn("Not really pruning any images.")
			return nil
		}

		logging.Warn("Please confirm you wish to actually prune %d images...", plan.Count())
		fmt.Print("(yes/NO): ")
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "yes" {
			logging.Warn("Not really pruning any images.")
			return nil
		}

		adapter := clouds.NewAWSAdapter(awsClientConfig(), logging.Default())
		plan.Execute(cmd.Context(), adapter, logging.Default())
		return nil
	},
}

func init() {
	pruneCmd.Flags().BoolVar(&pruneReally, "really", false, "Really prune images")
	pruneCmd.Flags().BoolVar(&pruneSelection.Private, "private", false, "Prune private images")
	pruneCmd.Flags().BoolVar(&pruneSelection.EdgeEOL, "edge-eol", false, "Prune end-of-life edge images")
	pruneCmd.Flags().BoolVar(&pruneSelection.RC, "rc", false, "Prune release-candidate images")
	pruneCmd.Flags().BoolVar(&pruneSelection.EOLUnusedNotLatest, "eol-unused-not-latest", false, "Prune end-of-life images never launched and not latest")
	pruneCmd.Flags().BoolVar(&pruneSelection.EOLNotLatest, "eol-not-latest", false, "Prune end-of-life images not latest")
	pruneCmd.Flags().BoolVar(&pruneSelection.UnusedNotLatest, "unused-not-latest", false, "Prune images never launched and not latest")
}
