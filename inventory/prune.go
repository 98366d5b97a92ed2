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

package inventory

import (
	"context"
	"sort"

	"github.com/cowdogmoo/skyforge/logging"
)

// Selection enables the pruning predicates. Each enabled predicate
// independently adds matching images to the removal set; evaluation is
// first match wins per image, in field declaration order.
type Selection struct {
	Private            bool
	EdgeEOL            bool
	RC                 bool
	EOLUnusedNotLatest bool
	EOLNotLatest       bool
	UnusedNotLatest    bool
}

// Removal reasons, also used as summary keys.
const (
	ReasonPrivate            = "PRIVATE"
	ReasonEdgeEOL            = "EDGE-EOL"
	ReasonRC                 = "RC"
	ReasonEOLUnusedNotLatest = "EOL-UNUSED-NOT-LATEST"
	ReasonEOLNotLatest       = "EOL-NOT-LATEST"
	ReasonUnusedNotLatest    = "UNUSED-NOT-LATEST"
	ReasonUnknownVariant     = "__WTF__"
	ReasonKept               = "__KEPT__"
)

// Plan is the computed removal set plus a per-region reason summary.
type Plan struct {
	Removes map[string]map[string]*Image
	Summary map[string]map[string]int
}

// classify returns the removal reason for one image, or ReasonKept.
func (s Selection) classify(img *Image, latest map[string]*Latest) string {
	if s.Private && img.Private {
		return ReasonPrivate
	}
	if s.EdgeEOL && img.Version == "edge" && img.EOL {
		return ReasonEdgeEOL
	}
	if s.RC && img.RC {
		return ReasonRC
	}

	l, ok := latest[img.VariantKey]
	if !ok {
		return ReasonUnknownVariant
	}
	notLatest := img.ReleaseKey != l.ReleaseKey

	if s.EOLUnusedNotLatest && img.EOL && img.Unused() && notLatest {
		return ReasonEOLUnusedNotLatest
	}
	if s.EOLNotLatest && img.EOL && notLatest {
		return ReasonEOLNotLatest
	}
	if s.UnusedNotLatest && img.Unused() && notLatest {
		return ReasonUnusedNotLatest
	}

	return ReasonKept
}

// PlanPrune walks the cache and computes the removal plan.
func PlanPrune(cache Cache, sel Selection, log *logging.Logger) *Plan {
	plan := &Plan{
		Removes: map[string]map[string]*Image{},
		Summary: map[string]map[string]int{},
	}

	for _, region := range cache.Regions() {
		rc := cache[region]
		log.Info("--- %s : %d ---", region, len(rc.Images))

		for _, id := range sortedImageIDs(rc.Images) {
			img := rc.Images[id]
			reason := sel.classify(img, rc.Latest)

			if plan.Summary[region] == nil {
				plan.Summary[region] = map[string]int{}
			}
			plan.Summary[region][reason]++

			switch reason {
			case ReasonKept:
				log.Debug("%s %s %s", region, reason, img.Name)
			case ReasonUnknownVariant:
				log.Warn("variant key %q not in latest, skipping %s", img.VariantKey, img.Name)
			default:
				log.Info("%s %s %s", region, reason, img.Name)
				if plan.Removes[region] == nil {
					plan.Removes[region] = map[string]*Image{}
				}
				plan.Removes[region][id] = img
			}
		}
	}

	return plan
}

// LogSummary reports per-region and total counts by reason.
func (p *Plan) LogSummary(log *logging.Logger) {
	totals := map[string]int{}

	log.Info("SUMMARY")
	for _, region := range sortedKeys(p.Summary) {
		log.Info("  %s", region)
		reasons := p.Summary[region]
		for _, reason := range sortedKeys(reasons) {
			log.Info("    %d %s", reasons[reason], reason)
			totals[reason] += reasons[reason]
		}
	}

	log.Info("TOTALS")
	for _, reason := range sortedKeys(totals) {
		log.Info("  %d %s", totals[reason], reason)
	}
}

// Count returns the number of images in the removal set.
func (p *Plan) Count() int {
	count := 0
	for _, images := range p.Removes {
		count += len(images)
	}
	return count
}

// Deleter removes one image from one region.
type Deleter interface {
	DeleteImageIn(ctx context.Context, region, imageID string) error
}

// Execute removes every planned image. Individual failures are logged
// and do not stop the remaining removals, since the plan is re-derivable
// from a fresh cache.
func (p *Plan) Execute(ctx context.Context, deleter Deleter, log *logging.Logger) {
	for _, region := range sortedKeys(p.Removes) {
		for _, id := range sortedImageIDs(p.Removes[region]) {
			img := p.Removes[region][id]
			log.Info("Deregistering %s/%s: %s", region, id, img.Name)
			if err := deleter.DeleteImageIn(ctx, region, id); err != nil {
				log.Warn("Failed: %v", err)
			}
		}
	}
	log.Info("DONE")
}

func sortedImageIDs(m map[string]*Image) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
