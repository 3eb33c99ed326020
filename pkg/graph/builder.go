package graph

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ritzau/reach-analyzer/pkg/imports"
	"github.com/ritzau/reach-analyzer/pkg/logging"
	"github.com/ritzau/reach-analyzer/pkg/model"
	"github.com/ritzau/reach-analyzer/pkg/resolve"
)

// Resolver resolves one literal target relative to the referencing file
type Resolver interface {
	Resolve(literal, fromFile string) resolve.Resolution
}

// Options controls a graph build
type Options struct {
	// Workers bounds the per-file pool; zero means GOMAXPROCS
	Workers   int
	Extractor *imports.Extractor
	Cache     *ExtractCache
}

// Result is everything a build produces
type Result struct {
	Graph      *DependencyGraph
	Unresolved *UnresolvedIndex
	Edges      []model.ImportEdge
	Warnings   []model.Warning
	// Fingerprint is an xxhash over every module's path and content
	Fingerprint string
	CacheHits   int
}

// fileResult is the partial result of the read, extract, resolve stage for
// one module
type fileResult struct {
	id          int64
	hash        uint64
	cached      bool
	resolutions []resolve.Resolution
	warnings    []model.Warning
}

// Build reads every catalogued module, extracts its literal references and
// resolves them. Files are processed by a bounded worker pool; a single
// aggregator merges the partial results in catalog order, so the result does
// not depend on scheduling. Read failures become warnings. The only error is
// context cancellation.
func Build(ctx context.Context, catalog *model.Catalog, resolver Resolver, opts Options) (*Result, error) {
	logger := logging.New("graph")

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	extractor := opts.Extractor
	if extractor == nil {
		extractor = imports.New()
	}

	agg := newAggregator(catalog)
	results := make(chan fileResult, workers)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			agg.add(r)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, m := range catalog.Modules {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r := processFile(m, extractor, resolver, opts.Cache)
			select {
			case results <- r:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	err := g.Wait()
	close(results)
	<-done

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := agg.result()
	logger.Debug("built dependency graph",
		"modules", catalog.Len(),
		"edges", res.Graph.EdgeCount(),
		"unresolved", res.Unresolved.Len(),
		"cache_hits", res.CacheHits,
		"workers", workers)
	return res, nil
}

func processFile(m *model.ModuleRecord, extractor *imports.Extractor, resolver Resolver, cache *ExtractCache) fileResult {
	r := fileResult{id: m.ID}

	info, err := os.Stat(m.AbsPath)
	if err != nil {
		r.warnings = append(r.warnings, model.Warning{Kind: model.WarningReadFile, Path: m.RelPath, Message: err.Error()})
		return r
	}

	entry, hit := cache.get(m.AbsPath, info.Size(), info.ModTime())
	if !hit {
		content, err := os.ReadFile(m.AbsPath)
		if err != nil {
			r.warnings = append(r.warnings, model.Warning{Kind: model.WarningReadFile, Path: m.RelPath, Message: err.Error()})
			return r
		}
		entry = cachedFile{
			literals: extractor.Extract(content),
			hash:     xxhash.Sum64(content),
		}
		cache.put(m.AbsPath, info.Size(), info.ModTime(), entry)
	}
	r.hash = entry.hash
	r.cached = hit

	for _, lit := range entry.literals {
		res := resolver.Resolve(lit, m.AbsPath)
		if !res.Kind.Internal() {
			continue
		}
		if res.StatErr != nil {
			r.warnings = append(r.warnings, model.Warning{Kind: model.WarningStat, Path: m.RelPath, Message: res.StatErr.Error()})
		}
		r.resolutions = append(r.resolutions, res)
	}
	return r
}

// aggregator is the only writer of the graph and the unresolved index
type aggregator struct {
	catalog    *model.Catalog
	graph      *DependencyGraph
	unresolved *UnresolvedIndex
	edges      []model.ImportEdge
	warnings   []model.Warning
	digest     *xxhash.Digest
	cacheHits  int

	// results arrive in any order and are merged in catalog order
	pending map[int64]fileResult
	next    int64
}

func newAggregator(catalog *model.Catalog) *aggregator {
	return &aggregator{
		catalog:    catalog,
		graph:      NewDependencyGraph(catalog),
		unresolved: NewUnresolvedIndex(),
		digest:     xxhash.New(),
		pending:    make(map[int64]fileResult),
	}
}

func (a *aggregator) add(r fileResult) {
	a.pending[r.id] = r
	for {
		next, ok := a.pending[a.next]
		if !ok {
			return
		}
		delete(a.pending, a.next)
		a.merge(next)
		a.next++
	}
}

func (a *aggregator) merge(r fileResult) {
	m := a.catalog.Get(r.id)

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], r.hash)
	_, _ = a.digest.WriteString(m.RelPath)
	_, _ = a.digest.Write(buf[:])

	if r.cached {
		a.cacheHits++
	}
	a.warnings = append(a.warnings, r.warnings...)

	for _, res := range r.resolutions {
		switch {
		case res.Found:
			a.graph.AddDependency(r.id, res.ID)
			a.edges = append(a.edges, model.ImportEdge{From: r.id, Literal: res.Literal, Resolved: res.ID, Ok: true})
		case res.OnDisk:
			// exists but is not catalogued; neither an edge nor missing
		default:
			a.unresolved.Add(res.Base, r.id, res.Literal)
			a.edges = append(a.edges, model.ImportEdge{From: r.id, Literal: res.Literal})
			a.warnings = append(a.warnings, model.Warning{
				Kind:    model.WarningUnresolved,
				Path:    m.RelPath,
				Message: fmt.Sprintf("cannot resolve %q (expected %s)", res.Literal, a.rel(res.Base)),
			})
		}
	}
}

func (a *aggregator) rel(path string) string {
	rel, err := filepath.Rel(a.catalog.Root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (a *aggregator) result() *Result {
	return &Result{
		Graph:       a.graph,
		Unresolved:  a.unresolved,
		Edges:       a.edges,
		Warnings:    a.warnings,
		Fingerprint: fmt.Sprintf("%016x", a.digest.Sum64()),
		CacheHits:   a.cacheHits,
	}
}
