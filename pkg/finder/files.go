package finder

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/ritzau/reach-analyzer/pkg/logging"
	"github.com/ritzau/reach-analyzer/pkg/model"
)

// CriticalFunc decides whether a file is exempt from unused reporting.
// rel is slash-separated and relative to the walk root.
type CriticalFunc func(rel, name string) bool

// Options controls what the collector walks and catalogues
type Options struct {
	SkipDirs         []string
	SkipDotDirs      bool
	RespectGitignore bool
	Extensions       []string
	CriticalNames    []string
	CriticalPatterns []string

	// Critical overrides the predicate built from CriticalNames and
	// CriticalPatterns when set.
	Critical CriticalFunc
}

// CriticalPredicate builds the default criticality rule: the file name is in
// names, or the relative path matches one of the doublestar patterns.
func CriticalPredicate(names, patterns []string) CriticalFunc {
	nameSet := make(map[string]struct{}, len(names))
	for _, n := range names {
		nameSet[n] = struct{}{}
	}
	return func(rel, name string) bool {
		if _, ok := nameSet[name]; ok {
			return true
		}
		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, rel); ok {
				return true
			}
		}
		return false
	}
}

// walker carries the state of one collection pass
type walker struct {
	root     string
	skip     map[string]struct{}
	exts     map[string]struct{}
	opts     Options
	critical CriticalFunc
	gi       *ignore.GitIgnore
	warnings []model.Warning
}

// Collect walks root and catalogues every file with an accepted extension.
// It never descends into skip-listed directories (or dot-directories when
// SkipDotDirs is set). Unreadable directories are recorded as warnings and
// skipped; the walk itself never fails.
func Collect(root string, opts Options) (*model.Catalog, []model.Warning) {
	logger := logging.New("finder")

	w := &walker{
		root:     root,
		skip:     toSet(opts.SkipDirs),
		exts:     toSet(opts.Extensions),
		opts:     opts,
		critical: opts.Critical,
	}
	if w.critical == nil {
		w.critical = CriticalPredicate(opts.CriticalNames, opts.CriticalPatterns)
	}
	if opts.RespectGitignore {
		w.gi = loadGitignore(root)
	}

	records := w.walk()
	catalog := model.NewCatalog(root, records)

	logger.Debug("collected files", "root", root, "files", catalog.Len(), "warnings", len(w.warnings))
	return catalog, w.warnings
}

// walk is iterative: directories are pushed on an explicit stack so deep
// trees cannot exhaust the goroutine stack.
func (w *walker) walk() []*model.ModuleRecord {
	var records []*model.ModuleRecord
	stack := []string{w.root}

	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			w.warn(model.WarningReadDir, dir, err)
			continue
		}

		// ReadDir sorts by name; push subdirectories in reverse so they pop
		// in name order.
		var subdirs []string
		for _, entry := range entries {
			name := entry.Name()
			path := filepath.Join(dir, name)

			// Symlinks are not followed
			if entry.Type()&os.ModeSymlink != 0 {
				continue
			}

			rel := w.rel(path)

			if entry.IsDir() {
				if w.skipDir(name, rel) {
					continue
				}
				subdirs = append(subdirs, path)
				continue
			}

			if !entry.Type().IsRegular() {
				continue
			}

			ext := filepath.Ext(name)
			if _, ok := w.exts[ext]; !ok {
				continue
			}
			if w.gi != nil && w.gi.MatchesPath(rel) {
				continue
			}

			records = append(records, &model.ModuleRecord{
				AbsPath:  path,
				RelPath:  rel,
				Name:     name,
				Ext:      ext,
				Critical: w.critical(rel, name),
			})
		}

		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	return records
}

func (w *walker) skipDir(name, rel string) bool {
	if _, ok := w.skip[name]; ok {
		return true
	}
	if w.opts.SkipDotDirs && strings.HasPrefix(name, ".") {
		return true
	}
	if w.gi != nil && (w.gi.MatchesPath(rel) || w.gi.MatchesPath(rel+"/")) {
		return true
	}
	return false
}

func (w *walker) rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (w *walker) warn(kind model.WarningKind, path string, err error) {
	w.warnings = append(w.warnings, model.Warning{
		Kind:    kind,
		Path:    w.rel(path),
		Message: err.Error(),
	})
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

// SortedPaths returns the relative paths of a catalog, mainly for logging
// and tests
func SortedPaths(c *model.Catalog) []string {
	paths := make([]string, 0, c.Len())
	for _, m := range c.Modules {
		paths = append(paths, m.RelPath)
	}
	sort.Strings(paths)
	return paths
}
