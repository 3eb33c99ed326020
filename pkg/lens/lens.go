// Package lens compares analysis runs and narrows exported graphs to the
// part around a selection.
package lens

import (
	"sort"

	"github.com/ritzau/reach-analyzer/pkg/model"
)

// ResultDiff summarizes how findings moved between two runs
type ResultDiff struct {
	NewlyUnused    []string `json:"newlyUnused"`
	NoLongerUnused []string `json:"noLongerUnused"`
	NewlyMissing   []string `json:"newlyMissing"`
	Resolved       []string `json:"resolved"` // previously missing, now found or no longer referenced
}

// Empty reports whether the findings are unchanged
func (d *ResultDiff) Empty() bool {
	return len(d.NewlyUnused) == 0 && len(d.NoLongerUnused) == 0 &&
		len(d.NewlyMissing) == 0 && len(d.Resolved) == 0
}

// CompareResults diffs the unused and missing findings of two runs. A nil
// previous result compares against an empty one.
func CompareResults(prev, next *model.AnalysisResult) *ResultDiff {
	if prev == nil {
		prev = &model.AnalysisResult{}
	}

	oldUnused := make(map[string]bool, len(prev.Unused))
	for _, u := range prev.Unused {
		oldUnused[u.Path] = true
	}
	newUnused := make(map[string]bool, len(next.Unused))
	for _, u := range next.Unused {
		newUnused[u.Path] = true
	}
	oldMissing := make(map[string]bool, len(prev.Missing))
	for _, m := range prev.Missing {
		oldMissing[m.Path] = true
	}
	newMissing := make(map[string]bool, len(next.Missing))
	for _, m := range next.Missing {
		newMissing[m.Path] = true
	}

	return &ResultDiff{
		NewlyUnused:    subtract(newUnused, oldUnused),
		NoLongerUnused: subtract(oldUnused, newUnused),
		NewlyMissing:   subtract(newMissing, oldMissing),
		Resolved:       subtract(oldMissing, newMissing),
	}
}

// subtract returns the sorted keys of a that are not in b
func subtract(a, b map[string]bool) []string {
	out := []string{}
	for k := range a {
		if !b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
