package analysis

import (
	"path"
	"sort"
	"strings"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/ritzau/reach-analyzer/pkg/graph"
	"github.com/ritzau/reach-analyzer/pkg/model"
)

// EntryPoints returns the IDs of modules the host always loads: routing
// files plus every critical file
func EntryPoints(catalog *model.Catalog, isRouting func(*model.ModuleRecord) bool) []int64 {
	var ids []int64
	for _, m := range catalog.Modules {
		if m.Critical || isRouting(m) {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// RoutingPredicate reports whether a module is a framework routing file: its
// stem is one of names (page, layout, route, ...) and one of its parent
// directories is one of dirs (app, pages). With no dirs the stem decides.
func RoutingPredicate(names, dirs []string) func(*model.ModuleRecord) bool {
	stems := make(map[string]struct{}, len(names))
	for _, n := range names {
		stems[n] = struct{}{}
	}
	roots := make(map[string]struct{}, len(dirs))
	for _, d := range dirs {
		roots[d] = struct{}{}
	}
	return func(m *model.ModuleRecord) bool {
		if _, ok := stems[m.Stem()]; !ok {
			return false
		}
		if len(roots) == 0 {
			return true
		}
		for _, seg := range strings.Split(path.Dir(m.RelPath), "/") {
			if _, ok := roots[seg]; ok {
				return true
			}
		}
		return false
	}
}

// FindReachable walks the graph depth-first from every entry point. The
// walker's visited set is shared across entries, so each module is visited
// at most once and cycles terminate.
func FindReachable(g *graph.DependencyGraph, entries []int64) map[int64]bool {
	reached := make(map[int64]bool)
	df := traverse.DepthFirst{
		Visit: func(n gonum.Node) { reached[n.ID()] = true },
	}
	for _, id := range entries {
		if g.Graph().Node(id) == nil {
			continue
		}
		df.Walk(g.Graph(), simple.Node(id), nil)
	}
	return reached
}

// FindUnused returns catalog - reachable - critical, sorted by path. Critical
// files are never reported, whether or not the walk reached them.
func FindUnused(catalog *model.Catalog, reachable map[int64]bool) []model.UnusedFile {
	unused := make([]model.UnusedFile, 0)
	for _, m := range catalog.Modules {
		if reachable[m.ID] || m.Critical {
			continue
		}
		unused = append(unused, model.UnusedFile{Path: m.RelPath, Ext: m.Ext})
	}
	sort.Slice(unused, func(i, j int) bool { return unused[i].Path < unused[j].Path })
	return unused
}

// reachablePaths converts a reachable set into sorted relative paths
func reachablePaths(catalog *model.Catalog, reachable map[int64]bool) []string {
	paths := make([]string, 0, len(reachable))
	for id := range reachable {
		if m := catalog.Get(id); m != nil {
			paths = append(paths, m.RelPath)
		}
	}
	sort.Strings(paths)
	return paths
}
