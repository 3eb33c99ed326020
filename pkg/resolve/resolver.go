package resolve

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Kind classifies a literal import target
type Kind int

const (
	External Kind = iota
	Relative
	Alias
	RootAbsolute
)

func (k Kind) String() string {
	switch k {
	case Relative:
		return "relative"
	case Alias:
		return "alias"
	case RootAbsolute:
		return "root-absolute"
	default:
		return "external"
	}
}

// Internal reports whether targets of this kind belong to the project
func (k Kind) Internal() bool {
	return k != External
}

// Lookup answers catalog membership for an absolute path
type Lookup interface {
	Lookup(abs string) (int64, bool)
}

// AliasEntry substitutes Prefix with the absolute directory Dir
type AliasEntry struct {
	Prefix string
	Dir    string
}

// Options configures a Resolver. All directories are absolute.
type Options struct {
	Workspace  string
	SourceRoot string
	// Aliases must be ordered longest prefix first
	Aliases    []AliasEntry
	RootMarker string
	// Extensions is the priority list for extension and index fallback
	Extensions []string
	// Catalogued is the set of extensions the collector accepts. Targets with
	// any other extension are probed on disk instead of in the catalog.
	Catalogued  []string
	StaticRoots []string

	// Stat overrides the on-disk probe, mainly for tests
	Stat func(path string) (fs.FileInfo, error)
}

// Resolution is the outcome of resolving one literal
type Resolution struct {
	Literal string
	Kind    Kind
	// Base is the absolute path before extension and index fallback. It is
	// the best guess for where a missing file should live.
	Base string
	Path string
	ID   int64
	// Found means Path is a catalogued module
	Found bool
	// OnDisk means Path exists but is not catalogued: an image, font or data
	// file, or a module the collector skipped
	OnDisk bool
	// StatErr is set when a disk probe failed for a reason other than the
	// file not existing
	StatErr error
}

// Missing reports an internal target that no candidate satisfied
func (r Resolution) Missing() bool {
	return r.Kind.Internal() && !r.Found && !r.OnDisk
}

// Resolver turns literal targets into catalogued paths. It holds no mutable
// state and is safe for concurrent use.
type Resolver struct {
	opts       Options
	lookup     Lookup
	catalogued map[string]struct{}
	stat       func(string) (fs.FileInfo, error)
}

// New creates a resolver over the given catalog lookup
func New(opts Options, lookup Lookup) *Resolver {
	if opts.RootMarker == "" {
		opts.RootMarker = "/"
	}
	if opts.SourceRoot == "" {
		opts.SourceRoot = opts.Workspace
	}
	r := &Resolver{
		opts:       opts,
		lookup:     lookup,
		catalogued: make(map[string]struct{}, len(opts.Catalogued)),
		stat:       opts.Stat,
	}
	for _, ext := range opts.Catalogued {
		r.catalogued[ext] = struct{}{}
	}
	if r.stat == nil {
		r.stat = os.Stat
	}
	return r
}

var externalPrefixes = []string{"//", "#", "data:", "mailto:", "tel:", "javascript:", "blob:"}

// Classify decides how a literal target is resolved. URLs and bare package
// names are External.
func (r *Resolver) Classify(literal string) Kind {
	if literal == "" || strings.Contains(literal, "://") {
		return External
	}
	for _, p := range externalPrefixes {
		if strings.HasPrefix(literal, p) {
			return External
		}
	}
	if _, ok := r.matchAlias(literal); ok {
		return Alias
	}
	if literal == "." || literal == ".." || strings.HasPrefix(literal, "./") || strings.HasPrefix(literal, "../") {
		return Relative
	}
	if strings.HasPrefix(literal, r.opts.RootMarker) {
		return RootAbsolute
	}
	return External
}

// Base computes the absolute path a literal points at before extension
// fallback. fromFile is the absolute path of the referencing module. It
// returns "" for external targets.
func (r *Resolver) Base(literal, fromFile string) string {
	literal = stripQuery(literal)

	switch r.Classify(literal) {
	case Alias:
		a, _ := r.matchAlias(literal)
		rest := strings.TrimPrefix(literal[len(a.Prefix):], "/")
		return filepath.Join(a.Dir, filepath.FromSlash(rest))
	case RootAbsolute:
		rest := strings.TrimPrefix(literal, r.opts.RootMarker)
		return filepath.Join(r.opts.SourceRoot, filepath.FromSlash(rest))
	case Relative:
		return filepath.Join(filepath.Dir(fromFile), filepath.FromSlash(literal))
	default:
		return ""
	}
}

// Candidates lists the paths tried for base, in priority order:
// base itself, base with each extension, then base/index with each extension.
func (r *Resolver) Candidates(base string) []string {
	out := make([]string, 0, 1+2*len(r.opts.Extensions))
	out = append(out, base)
	for _, ext := range r.opts.Extensions {
		out = append(out, base+ext)
	}
	for _, ext := range r.opts.Extensions {
		out = append(out, filepath.Join(base, "index"+ext))
	}
	return out
}

// Resolve resolves literal as referenced from fromFile. External targets are
// never looked up.
func (r *Resolver) Resolve(literal, fromFile string) Resolution {
	res := Resolution{Literal: literal}

	clean := stripQuery(literal)
	if strings.HasPrefix(literal, "#") {
		clean = ""
	}
	res.Kind = r.Classify(clean)
	if !res.Kind.Internal() {
		return res
	}

	res.Base = r.Base(clean, fromFile)
	for _, candidate := range r.Candidates(res.Base) {
		if id, ok := r.lookup.Lookup(candidate); ok {
			res.Path = candidate
			res.ID = id
			res.Found = true
			return res
		}
	}

	// Targets outside the catalog only need to exist: images, fonts, data
	// files, and modules the collector skipped (gitignored, skip dirs)
	for _, path := range r.diskCandidates(clean, res.Kind, res.Base) {
		ok, err := r.exists(path)
		if err != nil && res.StatErr == nil {
			res.StatErr = err
		}
		if ok {
			res.Path = path
			res.OnDisk = true
			return res
		}
	}
	return res
}

// diskCandidates lists the paths probed on disk after a catalog miss. Static
// roots only serve non-module root-absolute targets.
func (r *Resolver) diskCandidates(literal string, kind Kind, base string) []string {
	paths := r.Candidates(base)
	if _, module := r.catalogued[filepath.Ext(base)]; module || kind != RootAbsolute {
		return paths
	}
	rest := filepath.FromSlash(strings.TrimPrefix(literal, r.opts.RootMarker))
	for _, root := range r.opts.StaticRoots {
		paths = append(paths, filepath.Join(root, rest))
	}
	return paths
}

func (r *Resolver) exists(path string) (bool, error) {
	info, err := r.stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (r *Resolver) matchAlias(literal string) (AliasEntry, bool) {
	for _, a := range r.opts.Aliases {
		if !strings.HasPrefix(literal, a.Prefix) {
			continue
		}
		// "~utils" must not claim "~utilsExtra"
		if strings.HasSuffix(a.Prefix, "/") || len(literal) == len(a.Prefix) || literal[len(a.Prefix)] == '/' {
			return a, true
		}
	}
	return AliasEntry{}, false
}

// stripQuery drops "?raw" and "#frag" suffixes
func stripQuery(literal string) string {
	if i := strings.IndexAny(literal, "?#"); i > 0 {
		return literal[:i]
	}
	return literal
}
