package analysis

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ritzau/reach-analyzer/pkg/config"
	"github.com/ritzau/reach-analyzer/pkg/graph"
	"github.com/ritzau/reach-analyzer/pkg/model"
)

// ThresholdRule names the fallback that ranks by referrer count
const ThresholdRule = "referrers"

// Candidate is one missing path as seen by a severity policy
type Candidate struct {
	Path      string // slash-separated, relative to the workspace root
	Referrers []*model.ModuleRecord
	// IsRouting reports whether a referrer is a framework routing file
	IsRouting func(*model.ModuleRecord) bool
}

// Classifier assigns a severity to a missing path and names the rule that
// decided it
type Classifier interface {
	Classify(c Candidate) (model.Severity, string)
}

// SeverityRule fires when all of its non-empty predicates hold
type SeverityRule struct {
	Name     string
	Severity model.Severity

	// PathContains matches if the guessed path contains any substring.
	// The path is matched with a leading "/", so "/lib/" matches "lib/x".
	PathContains []string
	// ReferrerIsEntry matches if any referrer is a routing file
	ReferrerIsEntry bool
	// ReferrerPathContains matches if any referrer path contains a substring
	ReferrerPathContains []string
}

func (r SeverityRule) matches(c Candidate) bool {
	if len(r.PathContains) > 0 && !containsAny("/"+c.Path, r.PathContains) {
		return false
	}
	if r.ReferrerIsEntry && !anyReferrer(c.Referrers, func(m *model.ModuleRecord) bool {
		return c.IsRouting != nil && c.IsRouting(m)
	}) {
		return false
	}
	if len(r.ReferrerPathContains) > 0 && !anyReferrer(c.Referrers, func(m *model.ModuleRecord) bool {
		return containsAny("/"+m.RelPath, r.ReferrerPathContains)
	}) {
		return false
	}
	return true
}

// Thresholds rank by referrer count when no rule fires
type Thresholds struct {
	HighAt   int
	MediumAt int
}

// SeverityPolicy is an ordered rule list plus referrer-count thresholds.
// The first matching rule wins.
type SeverityPolicy struct {
	Rules      []SeverityRule
	Thresholds Thresholds
}

// DefaultRules are tuned for Next.js style application trees
func DefaultRules() []SeverityRule {
	return []SeverityRule{
		{
			Name:         "core-module",
			Severity:     model.SeverityCritical,
			PathContains: []string{"/lib/", "/hooks/", "/context/", "/providers/", "/store/", "/auth/"},
		},
		{
			Name:            "routing-referrer",
			Severity:        model.SeverityHigh,
			ReferrerIsEntry: true,
		},
		{
			Name:                 "shared-referrer",
			Severity:             model.SeverityMedium,
			ReferrerPathContains: []string{"/shared/", "/common/", "/landing/"},
		},
	}
}

// DefaultSeverityPolicy returns the default rules with thresholds 3 and 2
func DefaultSeverityPolicy() SeverityPolicy {
	return SeverityPolicy{
		Rules:      DefaultRules(),
		Thresholds: Thresholds{HighAt: 3, MediumAt: 2},
	}
}

// PolicyFromConfig puts configured rules ahead of the default rules, or in
// place of them when replace_defaults is set
func PolicyFromConfig(sc config.SeverityConfig) (SeverityPolicy, error) {
	policy := SeverityPolicy{
		Thresholds: Thresholds{HighAt: sc.HighAt, MediumAt: sc.MediumAt},
	}
	for _, rc := range sc.Rules {
		sev, err := model.ParseSeverity(rc.Severity)
		if err != nil {
			return SeverityPolicy{}, fmt.Errorf("severity rule %q: %w", rc.Name, err)
		}
		policy.Rules = append(policy.Rules, SeverityRule{
			Name:                 rc.Name,
			Severity:             sev,
			PathContains:         rc.PathContains,
			ReferrerIsEntry:      rc.ReferrerIsEntry,
			ReferrerPathContains: rc.ReferrerPathContains,
		})
	}
	if !sc.ReplaceAll {
		policy.Rules = append(policy.Rules, DefaultRules()...)
	}
	return policy, nil
}

// Classify implements Classifier
func (p SeverityPolicy) Classify(c Candidate) (model.Severity, string) {
	for _, rule := range p.Rules {
		if rule.matches(c) {
			return rule.Severity, rule.Name
		}
	}

	n := len(c.Referrers)
	switch {
	case p.Thresholds.HighAt > 0 && n >= p.Thresholds.HighAt:
		return model.SeverityHigh, ThresholdRule
	case p.Thresholds.MediumAt > 0 && n >= p.Thresholds.MediumAt:
		return model.SeverityMedium, ThresholdRule
	default:
		return model.SeverityLow, ThresholdRule
	}
}

// FindMissing classifies every unresolved reference. The report is sorted by
// severity, most severe first, then by path.
func FindMissing(catalog *model.Catalog, index *graph.UnresolvedIndex, isRouting func(*model.ModuleRecord) bool, classifier Classifier) []model.MissingFile {
	missing := make([]model.MissingFile, 0, index.Len())

	for _, entry := range index.Entries() {
		c := Candidate{
			Path:      relPath(catalog.Root, entry.GuessedPath),
			IsRouting: isRouting,
		}
		referrers := make([]string, 0, len(entry.Referrers))
		for _, id := range entry.ReferrerIDs() {
			m := catalog.Get(id)
			if m == nil {
				continue
			}
			c.Referrers = append(c.Referrers, m)
			referrers = append(referrers, m.RelPath)
		}

		sev, rule := classifier.Classify(c)
		missing = append(missing, model.MissingFile{
			Path:      c.Path,
			Severity:  sev,
			Rule:      rule,
			Referrers: referrers,
			Literals:  entry.LiteralList(),
		})
	}

	sort.SliceStable(missing, func(i, j int) bool {
		if missing[i].Severity != missing[j].Severity {
			return missing[i].Severity > missing[j].Severity
		}
		return missing[i].Path < missing[j].Path
	})
	return missing
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func anyReferrer(refs []*model.ModuleRecord, pred func(*model.ModuleRecord) bool) bool {
	for _, m := range refs {
		if pred(m) {
			return true
		}
	}
	return false
}
