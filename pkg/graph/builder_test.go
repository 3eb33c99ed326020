package graph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/reach-analyzer/pkg/finder"
	"github.com/ritzau/reach-analyzer/pkg/model"
	"github.com/ritzau/reach-analyzer/pkg/resolve"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

var exts = []string{".tsx", ".ts", ".css"}

func setup(t *testing.T, dir string) (*model.Catalog, *resolve.Resolver) {
	t.Helper()
	catalog, warnings := finder.Collect(dir, finder.Options{
		SkipDirs:    []string{"node_modules"},
		SkipDotDirs: true,
		Extensions:  exts,
	})
	require.Empty(t, warnings)

	r := resolve.New(resolve.Options{
		Workspace:  dir,
		SourceRoot: filepath.Join(dir, "src"),
		Aliases:    []resolve.AliasEntry{{Prefix: "@/", Dir: filepath.Join(dir, "src")}},
		Extensions: exts,
		Catalogued: exts,
	}, catalog)
	return catalog, r
}

func fixture(t *testing.T) string {
	dir := t.TempDir()
	writeFile(t, dir, "src/app/page.tsx", `
import Card from '@/widgets/Card'
import { api } from '../lib/api'
import Header from './Header'
import React from 'react'
import './page.css'`)
	writeFile(t, dir, "src/app/Header.tsx", `import { api } from "@/lib/api"`)
	writeFile(t, dir, "src/app/page.css", `@import "./missing.css";`)
	writeFile(t, dir, "src/lib/api.ts", `import self from './api'`)
	writeFile(t, dir, "node_modules/pkg/index.ts", `import x from './nope'`)
	return dir
}

func TestBuildEdgesAndUnresolved(t *testing.T) {
	dir := fixture(t)
	catalog, r := setup(t, dir)

	res, err := Build(context.Background(), catalog, r, Options{Workers: 2})
	require.NoError(t, err)

	assert.ElementsMatch(t, [][2]string{
		{"src/app/Header.tsx", "src/lib/api.ts"},
		{"src/app/page.tsx", "src/app/Header.tsx"},
		{"src/app/page.tsx", "src/app/page.css"},
		{"src/app/page.tsx", "src/lib/api.ts"},
	}, res.Graph.EdgePaths(), "self-import of api.ts collapses, react is external")

	require.Equal(t, 2, res.Unresolved.Len())
	card, ok := res.Unresolved.Get(filepath.Join(dir, "src", "widgets", "Card"))
	require.True(t, ok)
	pageID, _ := catalog.Lookup(filepath.Join(dir, "src", "app", "page.tsx"))
	assert.Equal(t, []int64{pageID}, card.ReferrerIDs())
	assert.Equal(t, []string{"@/widgets/Card"}, card.LiteralList())

	var unresolved []string
	for _, w := range res.Warnings {
		if w.Kind == model.WarningUnresolved {
			unresolved = append(unresolved, w.Path)
		}
	}
	assert.ElementsMatch(t, []string{"src/app/page.css", "src/app/page.tsx"}, unresolved)
}

func TestBuildSkippedDirectoryContributesNothing(t *testing.T) {
	dir := fixture(t)
	catalog, r := setup(t, dir)

	res, err := Build(context.Background(), catalog, r, Options{})
	require.NoError(t, err)

	for _, e := range res.Graph.EdgePaths() {
		assert.NotContains(t, e[0], "node_modules")
		assert.NotContains(t, e[1], "node_modules")
	}
	_, ok := res.Unresolved.Get(filepath.Join(dir, "node_modules", "pkg", "nope"))
	assert.False(t, ok)
}

func TestBuildIsDeterministicAcrossWorkerCounts(t *testing.T) {
	dir := fixture(t)
	for i := 0; i < 20; i++ {
		writeFile(t, dir, filepath.Join("src", "gen", string(rune('a'+i))+".ts"), `import { api } from '@/lib/api'`)
	}
	catalog, r := setup(t, dir)

	one, err := Build(context.Background(), catalog, r, Options{Workers: 1})
	require.NoError(t, err)
	many, err := Build(context.Background(), catalog, r, Options{Workers: 8})
	require.NoError(t, err)

	assert.Equal(t, one.Graph.Edges(), many.Graph.Edges())
	assert.Equal(t, one.Edges, many.Edges)
	assert.Equal(t, one.Warnings, many.Warnings)
	assert.Equal(t, one.Fingerprint, many.Fingerprint)
}

func TestBuildFingerprintTracksContent(t *testing.T) {
	dir := fixture(t)
	catalog, r := setup(t, dir)

	before, err := Build(context.Background(), catalog, r, Options{})
	require.NoError(t, err)

	writeFile(t, dir, "src/lib/api.ts", `export const api = {}`)
	after, err := Build(context.Background(), catalog, r, Options{})
	require.NoError(t, err)

	assert.NotEqual(t, before.Fingerprint, after.Fingerprint)
}

func TestBuildUsesExtractCache(t *testing.T) {
	dir := fixture(t)
	catalog, r := setup(t, dir)

	cache, err := NewExtractCache(16)
	require.NoError(t, err)

	first, err := Build(context.Background(), catalog, r, Options{Cache: cache})
	require.NoError(t, err)
	assert.Zero(t, first.CacheHits)
	assert.Equal(t, catalog.Len(), cache.Len())

	second, err := Build(context.Background(), catalog, r, Options{Cache: cache})
	require.NoError(t, err)
	assert.Equal(t, catalog.Len(), second.CacheHits)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.Graph.Edges(), second.Graph.Edges())
}

func TestNewExtractCacheDisabled(t *testing.T) {
	cache, err := NewExtractCache(0)
	require.NoError(t, err)
	assert.Nil(t, cache)
	assert.Zero(t, cache.Len())
}

func TestBuildReadFailureIsWarning(t *testing.T) {
	dir := fixture(t)
	catalog, r := setup(t, dir)

	// Removed after collection: the stat fails during the build
	require.NoError(t, os.Remove(filepath.Join(dir, "src", "app", "Header.tsx")))

	res, err := Build(context.Background(), catalog, r, Options{})
	require.NoError(t, err)

	var readFailures []string
	for _, w := range res.Warnings {
		if w.Kind == model.WarningReadFile {
			readFailures = append(readFailures, w.Path)
		}
	}
	assert.Equal(t, []string{"src/app/Header.tsx"}, readFailures)
	headerID, _ := catalog.Lookup(filepath.Join(dir, "src", "app", "Header.tsx"))
	assert.Empty(t, res.Graph.Dependencies(headerID))
}

func TestBuildCancelled(t *testing.T) {
	dir := fixture(t)
	catalog, r := setup(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, catalog, r, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
