package model

import (
	"fmt"
	"sort"
	"time"
)

// ModuleRecord is a catalogued source file. Records are created once by the
// collector and never mutated afterward.
type ModuleRecord struct {
	ID       int64  `json:"-"`
	AbsPath  string `json:"absPath"`
	RelPath  string `json:"path"` // slash-separated, relative to the workspace root
	Name     string `json:"name"`
	Ext      string `json:"ext"`
	Critical bool   `json:"critical,omitempty"`
}

// Stem returns the file name without its extension (e.g. "page" for "page.tsx")
func (m *ModuleRecord) Stem() string {
	return m.Name[:len(m.Name)-len(m.Ext)]
}

// Catalog is the set of modules found by a single collection pass.
// IDs are dense indices into Modules, assigned in RelPath order.
type Catalog struct {
	Root    string
	Modules []*ModuleRecord
	byPath  map[string]int64
}

// NewCatalog builds a catalog from records, sorting them by relative path and
// assigning IDs.
func NewCatalog(root string, records []*ModuleRecord) *Catalog {
	sort.Slice(records, func(i, j int) bool {
		return records[i].RelPath < records[j].RelPath
	})

	c := &Catalog{
		Root:    root,
		Modules: records,
		byPath:  make(map[string]int64, len(records)),
	}
	for i, rec := range records {
		rec.ID = int64(i)
		c.byPath[rec.AbsPath] = rec.ID
	}
	return c
}

// Lookup returns the ID of the module at the given absolute path
func (c *Catalog) Lookup(absPath string) (int64, bool) {
	id, ok := c.byPath[absPath]
	return id, ok
}

// Get returns the module with the given ID, or nil
func (c *Catalog) Get(id int64) *ModuleRecord {
	if id < 0 || id >= int64(len(c.Modules)) {
		return nil
	}
	return c.Modules[id]
}

// Len returns the number of catalogued modules
func (c *Catalog) Len() int {
	return len(c.Modules)
}

// ImportEdge is one distinct literal reference found in a file
type ImportEdge struct {
	From     int64
	Literal  string
	Resolved int64
	Ok       bool
}

// Severity ranks how urgently a missing file should be restored
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity converts a severity name into a Severity
func ParseSeverity(name string) (Severity, error) {
	for sev, n := range severityNames {
		if n == name {
			return sev, nil
		}
	}
	return SeverityLow, fmt.Errorf("unknown severity %q", name)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	sev, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// WarningKind classifies a recoverable problem met during a run
type WarningKind string

const (
	WarningReadDir    WarningKind = "read_dir"
	WarningReadFile   WarningKind = "read_file"
	WarningStat       WarningKind = "stat"
	WarningUnresolved WarningKind = "unresolved"
)

// Warning is a recoverable problem. Warnings never abort a run.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Path    string      `json:"path"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s: %s", w.Kind, w.Path, w.Message)
}

// SortWarnings orders warnings by kind, path and message
func SortWarnings(ws []Warning) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].Kind != ws[j].Kind {
			return ws[i].Kind < ws[j].Kind
		}
		if ws[i].Path != ws[j].Path {
			return ws[i].Path < ws[j].Path
		}
		return ws[i].Message < ws[j].Message
	})
}

// UnusedFile is a catalogued file that no entry point reaches
type UnusedFile struct {
	Path string `json:"path"`
	Ext  string `json:"ext"`
}

// MissingFile is an internal reference that no file on disk satisfies
type MissingFile struct {
	Path      string   `json:"path"` // guessed path, relative to the workspace root
	Severity  Severity `json:"severity"`
	Rule      string   `json:"rule"`
	Referrers []string `json:"referrers"`
	Literals  []string `json:"literals"`
}

// ImportCycle is a strongly connected set of files
type ImportCycle struct {
	Files []string `json:"files"`
}

// Summary holds the headline counts of a run
type Summary struct {
	TotalFiles  int `json:"totalFiles"`
	EntryPoints int `json:"entryPoints"`
	Critical    int `json:"critical"`
	Reachable   int `json:"reachable"`
	Unused      int `json:"unused"`
	Missing     int `json:"missing"`
	Edges       int `json:"edges"`
	Cycles      int `json:"cycles"`
	Warnings    int `json:"warnings"`
}

// AnalysisResult is the in-memory outcome of one run. StartedAt and Duration
// are the only fields that differ between runs over an unchanged tree.
type AnalysisResult struct {
	Workspace   string        `json:"workspace"`
	Mode        string        `json:"mode"`
	Reachable   []string      `json:"reachable"`
	Unused      []UnusedFile  `json:"unused"`
	Missing     []MissingFile `json:"missing"`
	Cycles      []ImportCycle `json:"cycles"`
	Warnings    []Warning     `json:"warnings"`
	Summary     Summary       `json:"summary"`
	Fingerprint string        `json:"fingerprint"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
}
