package analysis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ritzau/reach-analyzer/pkg/config"
	"github.com/ritzau/reach-analyzer/pkg/cycles"
	"github.com/ritzau/reach-analyzer/pkg/finder"
	"github.com/ritzau/reach-analyzer/pkg/graph"
	"github.com/ritzau/reach-analyzer/pkg/imports"
	"github.com/ritzau/reach-analyzer/pkg/logging"
	"github.com/ritzau/reach-analyzer/pkg/model"
	"github.com/ritzau/reach-analyzer/pkg/resolve"
)

// Mode selects which reports a run produces
type Mode string

const (
	ModeUnused  Mode = "unused"
	ModeMissing Mode = "missing"
	ModeAll     Mode = "all"
)

// ParseMode converts a command-line mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeUnused, ModeMissing, ModeAll:
		return Mode(s), nil
	case "":
		return ModeAll, nil
	}
	return "", fmt.Errorf("unknown mode %q (want unused, missing or all)", s)
}

func (m Mode) unused() bool  { return m == ModeUnused || m == ModeAll }
func (m Mode) missing() bool { return m == ModeMissing || m == ModeAll }

// Publisher receives progress and results. The web server implements it.
type Publisher interface {
	PublishStatus(state, message string, step, total int)
	PublishResult(result *model.AnalysisResult, g *model.Graph)
}

const totalSteps = 4

// Runner orchestrates collection, graph building and the analyzers
type Runner struct {
	mu        sync.Mutex // Prevent concurrent analysis runs
	cfg       *config.Config
	cache     *graph.ExtractCache
	extractor *imports.Extractor
	publisher Publisher
	policy    Classifier

	last      *model.AnalysisResult
	lastGraph *model.Graph
}

// RunnerOption customizes a Runner
type RunnerOption func(*Runner)

// WithPublisher sends status and results to p
func WithPublisher(p Publisher) RunnerOption {
	return func(r *Runner) { r.publisher = p }
}

// WithClassifier replaces the configured severity policy
func WithClassifier(c Classifier) RunnerOption {
	return func(r *Runner) { r.policy = c }
}

// WithExtractor replaces the default import extractor
func WithExtractor(e *imports.Extractor) RunnerOption {
	return func(r *Runner) { r.extractor = e }
}

// NewRunner creates a runner for a finalized configuration
func NewRunner(cfg *config.Config, opts ...RunnerOption) (*Runner, error) {
	cache, err := graph.NewExtractCache(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating extract cache: %w", err)
	}
	r := &Runner{
		cfg:       cfg,
		cache:     cache,
		extractor: imports.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// SetConfig swaps the configuration used by later runs. Cached extractions
// stay valid since they depend only on file content.
func (r *Runner) SetConfig(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

// Config returns the current configuration
func (r *Runner) Config() *config.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Last returns the most recent result, or nil before the first run
func (r *Runner) Last() (*model.AnalysisResult, *model.Graph) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.lastGraph
}

// Run executes one analysis pass. I/O problems are reported as warnings in
// the result; the only errors are an invalid severity policy and context
// cancellation.
func (r *Runner) Run(ctx context.Context, mode Mode) (*model.AnalysisResult, error) {
	// Lock to prevent concurrent analysis
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := logging.New("analysis")
	cfg := r.cfg
	started := time.Now()

	policy := r.policy
	if policy == nil {
		p, err := PolicyFromConfig(cfg.Severity)
		if err != nil {
			return nil, &config.ConfigError{Field: "severity.rules", Err: err}
		}
		policy = p
	}

	logger.Info("starting analysis", "workspace", cfg.Workspace, "mode", mode)

	// Phase 1: collect
	r.publishStatus("collecting", "Collecting source files...", 1)
	catalog, warnings := finder.Collect(cfg.Workspace, finder.Options{
		SkipDirs:         cfg.SkipDirs,
		SkipDotDirs:      cfg.SkipDotDirs,
		RespectGitignore: cfg.RespectGitignore,
		Extensions:       cfg.Extensions,
		CriticalNames:    cfg.CriticalNames,
		CriticalPatterns: cfg.CriticalPatterns,
	})
	logger.Debug("collected", "files", catalog.Len())

	// Phase 2: read, extract, resolve
	r.publishStatus("building", "Building dependency graph...", 2)
	sourceRoot := cfg.SourceRootPath()
	if info, err := os.Stat(sourceRoot); err != nil || !info.IsDir() {
		warnings = append(warnings, model.Warning{
			Kind:    model.WarningStat,
			Path:    cfg.SourceRoot,
			Message: "source root not found, resolving root-absolute imports against the workspace",
		})
		sourceRoot = cfg.Workspace
	}
	resolver := resolve.New(resolveOptions(cfg, sourceRoot), catalog)

	build, err := graph.Build(ctx, catalog, resolver, graph.Options{
		Workers:   cfg.Workers,
		Extractor: r.extractor,
		Cache:     r.cache,
	})
	if err != nil {
		r.publishStatus("error", fmt.Sprintf("Analysis cancelled: %v", err), 2)
		return nil, err
	}
	warnings = append(warnings, build.Warnings...)

	routing := RoutingPredicate(cfg.EntryNames, cfg.RoutingDirs)
	entries := EntryPoints(catalog, routing)

	result := &model.AnalysisResult{
		Workspace:   cfg.Workspace,
		Mode:        string(mode),
		Reachable:   []string{},
		Unused:      []model.UnusedFile{},
		Missing:     []model.MissingFile{},
		Fingerprint: build.Fingerprint,
		StartedAt:   started,
	}

	// Phase 3: analyzers
	r.publishStatus("analyzing", "Analyzing reachability and missing files...", 3)
	var reachable map[int64]bool
	if mode.unused() {
		reachable = FindReachable(build.Graph, entries)
		result.Reachable = reachablePaths(catalog, reachable)
		result.Unused = FindUnused(catalog, reachable)
	}
	if mode.missing() {
		result.Missing = FindMissing(catalog, build.Unresolved, routing, policy)
	}
	if !mode.unused() {
		// The missing report already lists every unresolved target
		warnings = dropKind(warnings, model.WarningUnresolved)
	}
	result.Cycles = cycles.FindImportCycles(build.Graph)

	model.SortWarnings(warnings)
	if warnings == nil {
		warnings = []model.Warning{}
	}
	result.Warnings = warnings

	critical := 0
	for _, m := range catalog.Modules {
		if m.Critical {
			critical++
		}
	}
	result.Summary = model.Summary{
		TotalFiles:  catalog.Len(),
		EntryPoints: len(entries),
		Critical:    critical,
		Reachable:   len(result.Reachable),
		Unused:      len(result.Unused),
		Missing:     len(result.Missing),
		Edges:       build.Graph.EdgeCount(),
		Cycles:      len(result.Cycles),
		Warnings:    len(result.Warnings),
	}
	result.Duration = time.Since(started)

	// Phase 4: publish
	exported := ExportGraph(build.Graph, entries, result)
	r.last = result
	r.lastGraph = exported
	if r.publisher != nil {
		r.publisher.PublishResult(result, exported)
	}
	r.publishStatus("ready", "Analysis complete", totalSteps)

	logger.Info("analysis complete",
		"files", result.Summary.TotalFiles,
		"unused", result.Summary.Unused,
		"missing", result.Summary.Missing,
		"warnings", result.Summary.Warnings,
		"duration", result.Duration)
	return result, nil
}

func (r *Runner) publishStatus(state, message string, step int) {
	if r.publisher != nil {
		r.publisher.PublishStatus(state, message, step, totalSteps)
	}
}

func resolveOptions(cfg *config.Config, sourceRoot string) resolve.Options {
	aliases := make([]resolve.AliasEntry, len(cfg.AliasTable))
	for i, a := range cfg.AliasTable {
		aliases[i] = resolve.AliasEntry{Prefix: a.Prefix, Dir: a.AbsDir}
	}
	return resolve.Options{
		Workspace:   cfg.Workspace,
		SourceRoot:  sourceRoot,
		Aliases:     aliases,
		RootMarker:  cfg.RootMarker,
		Extensions:  cfg.ResolveExtensions,
		Catalogued:  cfg.Extensions,
		StaticRoots: cfg.StaticRootPaths(),
	}
}

func dropKind(ws []model.Warning, kind model.WarningKind) []model.Warning {
	out := ws[:0]
	for _, w := range ws {
		if w.Kind != kind {
			out = append(out, w)
		}
	}
	return out
}
