// Package imports finds the literal module references in JavaScript,
// TypeScript and stylesheet sources.
//
// Extraction is regex based: each Matcher recognizes one reference syntax
// and runs independently over the whole file. The result is the union of all
// matches, so matchers can overlap freely. Computed targets (template
// literals with substitutions, string concatenation) are never reported.
package imports

import (
	"regexp"
	"sort"
	"strings"
)

// Kind tags the syntax a matcher recognizes
type Kind string

const (
	KindStatic  Kind = "static"
	KindDynamic Kind = "dynamic"
	KindRequire Kind = "require"
	KindLazy    Kind = "lazy"
	KindCSS     Kind = "css"
	KindAsset   Kind = "asset"
	KindProp    Kind = "prop"
)

// Matcher is one reference syntax. The literal target is the first non-empty
// capture group of Pattern.
type Matcher struct {
	Kind    Kind
	Pattern *regexp.Regexp
}

// Reference is a literal found by a specific matcher
type Reference struct {
	Kind    Kind
	Literal string
}

// quoted captures a string in single, double or back quotes
const quoted = `(?:'([^'\n]*)'|"([^"\n]*)"|` + "`([^`]*)`" + `)`

// pathLike captures a quoted value that starts like a file path
const pathLike = `['"]((?:\.{1,2}/|/|@/|~/)[^'"\s]*)['"]`

var defaultMatchers = []Matcher{
	{
		// import x from 'a'; import 'a'; export { y } from 'a'; import type T from 'a'
		Kind:    KindStatic,
		Pattern: regexp.MustCompile(`(?m)(?:^|[;\s}])(?:import|export)\s+(?:[\w*{}\s,$]+?\s+from\s*)?` + quoted),
	},
	{
		Kind:    KindDynamic,
		Pattern: regexp.MustCompile(`\bimport\s*\(\s*` + quoted + `\s*[,)]`),
	},
	{
		Kind:    KindRequire,
		Pattern: regexp.MustCompile(`\brequire(?:\.resolve)?\s*\(\s*` + quoted + `\s*\)`),
	},
	{
		// lazy(() => import('a')), dynamic(() => import('a')), loadable(...)
		Kind:    KindLazy,
		Pattern: regexp.MustCompile(`\b(?:lazy|dynamic|loadable)\s*\(\s*(?:async\s*)?\(\s*\)\s*=>\s*(?:\{\s*return\s+)?import\s*\(\s*` + quoted),
	},
	{
		// @import 'a'; @import url('a'); @import url(a)
		Kind:    KindCSS,
		Pattern: regexp.MustCompile(`@import\s+(?:url\(\s*(?:` + quoted + `|([^'")\s]+))\s*\)|` + quoted + `)`),
	},
	{
		// Only values with a file extension; route links such as
		// href="/dashboard" are not file references.
		Kind:    KindAsset,
		Pattern: regexp.MustCompile(`\b(?:src|href|poster)\s*=\s*\{?\s*['"]((?:\.{1,2}/|/|@/|~/)[^'"\s?#]*\.[A-Za-z0-9]{1,8}(?:[?#][^'"\s]*)?)['"]`),
	},
	{
		// component="./Widget", componentPath: '@/ui/Panel', layout="../Shell"
		Kind:    KindProp,
		Pattern: regexp.MustCompile(`\b(?:component|componentPath|layout|template)\s*[=:]\s*\{?\s*` + pathLike),
	},
}

// DefaultMatchers returns a copy of the built-in matcher list
func DefaultMatchers() []Matcher {
	out := make([]Matcher, len(defaultMatchers))
	copy(out, defaultMatchers)
	return out
}

// Extractor runs a fixed list of matchers. It is immutable and safe for
// concurrent use.
type Extractor struct {
	matchers []Matcher
}

// New creates an extractor. With no matchers it uses DefaultMatchers.
func New(matchers ...Matcher) *Extractor {
	if len(matchers) == 0 {
		matchers = DefaultMatchers()
	}
	return &Extractor{matchers: matchers}
}

// WithMatcher returns a new extractor with m appended
func (e *Extractor) WithMatcher(m Matcher) *Extractor {
	matchers := make([]Matcher, 0, len(e.matchers)+1)
	matchers = append(matchers, e.matchers...)
	matchers = append(matchers, m)
	return &Extractor{matchers: matchers}
}

// Matchers returns the matcher list in evaluation order
func (e *Extractor) Matchers() []Matcher {
	out := make([]Matcher, len(e.matchers))
	copy(out, e.matchers)
	return out
}

// Extract returns the sorted, deduplicated literal targets in content
func (e *Extractor) Extract(content []byte) []string {
	seen := make(map[string]struct{})
	for _, ref := range e.References(content) {
		seen[ref.Literal] = struct{}{}
	}

	literals := make([]string, 0, len(seen))
	for lit := range seen {
		literals = append(literals, lit)
	}
	sort.Strings(literals)
	return literals
}

// References returns every match tagged with the kind that found it. The
// same literal may appear once per kind.
func (e *Extractor) References(content []byte) []Reference {
	var refs []Reference
	for _, m := range e.matchers {
		seen := make(map[string]struct{})
		for _, groups := range m.Pattern.FindAllSubmatch(content, -1) {
			lit, ok := literal(groups)
			if !ok {
				continue
			}
			if _, dup := seen[lit]; dup {
				continue
			}
			seen[lit] = struct{}{}
			refs = append(refs, Reference{Kind: m.Kind, Literal: lit})
		}
	}
	return refs
}

// Extract runs the default matchers over content
func Extract(content []byte) []string {
	return defaultExtractor.Extract(content)
}

var defaultExtractor = New()

func literal(groups [][]byte) (string, bool) {
	for _, g := range groups[1:] {
		if len(g) == 0 {
			continue
		}
		lit := strings.TrimSpace(string(g))
		if lit == "" || strings.Contains(lit, "${") {
			return "", false
		}
		return lit, true
	}
	return "", false
}
