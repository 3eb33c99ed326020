package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/reach-analyzer/pkg/analysis"
	"github.com/ritzau/reach-analyzer/pkg/config"
	"github.com/ritzau/reach-analyzer/pkg/model"
)

func sampleResult() (*model.AnalysisResult, *model.Graph) {
	res := &model.AnalysisResult{
		Workspace: "/ws",
		Mode:      "all",
		Unused:    []model.UnusedFile{{Path: "src/old.ts", Ext: ".ts"}},
		Missing: []model.MissingFile{
			{Path: "src/lib/db", Severity: model.SeverityCritical, Rule: "core-module", Referrers: []string{"src/app/page.tsx"}},
			{Path: "src/widgets/Card", Severity: model.SeverityMedium, Rule: "shared-referrer", Referrers: []string{"src/a.ts", "src/b.ts"}},
			{Path: "src/misc/x", Severity: model.SeverityLow, Rule: "default", Referrers: []string{"src/a.ts"}},
		},
		Summary: model.Summary{TotalFiles: 4, Unused: 1, Missing: 3},
	}

	g := model.NewGraph()
	for _, id := range []string{"src/app/page.tsx", "src/a.ts", "src/b.ts", "src/c.ts"} {
		g.AddNode(&model.Node{ID: id, Label: filepath.Base(id), Type: model.NodeModule})
	}
	g.AddEdge(&model.Edge{Source: "src/app/page.tsx", Target: "src/a.ts", Type: "import"})
	g.AddEdge(&model.Edge{Source: "src/a.ts", Target: "src/b.ts", Type: "import"})
	g.AddEdge(&model.Edge{Source: "src/b.ts", Target: "src/c.ts", Type: "import"})
	return res, g
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func post(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, nil))
	return rec
}

func TestResultEndpointsBeforeAnalysis(t *testing.T) {
	s := NewServer(analysis.ModeAll)
	defer s.Close()
	h := s.Handler()

	for _, target := range []string{"/api/result", "/api/unused", "/api/missing"} {
		assert.Equal(t, http.StatusServiceUnavailable, get(t, h, target).Code, target)
	}

	// The graph is always available, empty until the first run
	rec := get(t, h, "/api/graph")
	require.Equal(t, http.StatusOK, rec.Code)
	var g model.Graph
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
	assert.Empty(t, g.Nodes)
}

func TestResultEndpoints(t *testing.T) {
	s := NewServer(analysis.ModeAll)
	defer s.Close()
	s.PublishResult(sampleResult())
	h := s.Handler()

	rec := get(t, h, "/api/result")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var res model.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 3, res.Summary.Missing)

	var unused []model.UnusedFile
	require.NoError(t, json.Unmarshal(get(t, h, "/api/unused").Body.Bytes(), &unused))
	assert.Equal(t, []model.UnusedFile{{Path: "src/old.ts", Ext: ".ts"}}, unused)

	t.Run("missing severity filter", func(t *testing.T) {
		var missing []model.MissingFile
		require.NoError(t, json.Unmarshal(get(t, h, "/api/missing").Body.Bytes(), &missing))
		assert.Len(t, missing, 3)

		rec := get(t, h, "/api/missing?severity=medium")
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &missing))
		require.Len(t, missing, 2)
		assert.Equal(t, "src/lib/db", missing[0].Path)
		assert.Equal(t, "src/widgets/Card", missing[1].Path)

		assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/missing?severity=urgent").Code)
	})

	t.Run("focused graph", func(t *testing.T) {
		rec := get(t, h, "/api/files/src/a.ts/focused")
		require.Equal(t, http.StatusOK, rec.Code)

		var g model.Graph
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
		assert.Len(t, g.Nodes, 3)
		assert.Contains(t, g.Nodes, "src/app/page.tsx")
		assert.Contains(t, g.Nodes, "src/b.ts")
		assert.NotContains(t, g.Nodes, "src/c.ts")
		assert.Len(t, g.Edges, 2)

		require.NoError(t, json.Unmarshal(get(t, h, "/api/files/src/a.ts/focused?depth=2").Body.Bytes(), &g))
		assert.Contains(t, g.Nodes, "src/c.ts")

		assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/files/src/a.ts/focused?depth=far").Code)
		assert.Equal(t, http.StatusNotFound, get(t, h, "/api/files/src/nope.ts/focused").Code)
	})
}

func TestGraphDiff(t *testing.T) {
	s := NewServer(analysis.ModeAll)
	defer s.Close()
	h := s.Handler()

	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/api/graph/diff").Code)

	res, g := sampleResult()
	s.PublishResult(res, g)
	hash := get(t, h, "/api/graph").Header().Get("X-Graph-Hash")
	require.NotEmpty(t, hash)

	// The next run drops c.ts and its import
	res2, g2 := sampleResult()
	delete(g2.Nodes, "src/c.ts")
	g2.Edges = g2.Edges[:2]
	s.PublishResult(res2, g2)

	var diff struct {
		FullGraph    bool     `json:"fullGraph"`
		RemovedNodes []string `json:"removedNodes"`
		RemovedEdges []string `json:"removedEdges"`
	}
	require.NoError(t, json.Unmarshal(get(t, h, "/api/graph/diff?since="+hash).Body.Bytes(), &diff))
	assert.False(t, diff.FullGraph)
	assert.Equal(t, []string{"src/c.ts"}, diff.RemovedNodes)
	assert.Equal(t, []string{"src/b.ts|src/c.ts|import"}, diff.RemovedEdges)

	require.NoError(t, json.Unmarshal(get(t, h, "/api/graph/diff?since=unknown").Body.Bytes(), &diff))
	assert.True(t, diff.FullGraph)
}

// fakeAnalyzer publishes a canned result
type fakeAnalyzer struct {
	server *Server
	modes  chan analysis.Mode
	block  chan struct{}
}

func (f *fakeAnalyzer) Run(ctx context.Context, mode analysis.Mode) (*model.AnalysisResult, error) {
	f.modes <- mode
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	res, g := sampleResult()
	res.Mode = string(mode)
	f.server.PublishStatus("ready", "done", 4, 4)
	f.server.PublishResult(res, g)
	return res, nil
}

func TestAnalyzeEndpoint(t *testing.T) {
	s := NewServer(analysis.ModeUnused)
	defer s.Close()
	h := s.Handler()

	assert.Equal(t, http.StatusServiceUnavailable, post(t, h, "/api/analyze").Code)

	fake := &fakeAnalyzer{server: s, modes: make(chan analysis.Mode, 4)}
	s.SetAnalyzer(fake)

	assert.Equal(t, http.StatusBadRequest, post(t, h, "/api/analyze?mode=everything").Code)

	rec := post(t, h, "/api/analyze")
	require.Equal(t, http.StatusAccepted, rec.Code)
	s.Wait()
	assert.Equal(t, analysis.ModeUnused, <-fake.modes)

	rec = post(t, h, "/api/analyze?mode=missing")
	require.Equal(t, http.StatusAccepted, rec.Code)
	s.Wait()
	assert.Equal(t, analysis.ModeMissing, <-fake.modes)

	var res model.AnalysisResult
	require.NoError(t, json.Unmarshal(get(t, h, "/api/result").Body.Bytes(), &res))
	assert.Equal(t, "missing", res.Mode)
}

func TestAnalyzeRejectsOverlappingRuns(t *testing.T) {
	s := NewServer(analysis.ModeAll)
	h := s.Handler()

	fake := &fakeAnalyzer{server: s, modes: make(chan analysis.Mode, 4), block: make(chan struct{})}
	s.SetAnalyzer(fake)

	require.Equal(t, http.StatusAccepted, post(t, h, "/api/analyze").Code)
	<-fake.modes
	assert.Equal(t, http.StatusConflict, post(t, h, "/api/analyze").Code)

	close(fake.block)
	s.Wait()
	assert.Equal(t, http.StatusAccepted, post(t, h, "/api/analyze").Code)
	s.Close()
}

func TestSubscribeStatus(t *testing.T) {
	s := NewServer(analysis.ModeAll)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer s.Close()

	// The status topic replays the latest event to new subscribers
	s.PublishStatus("building", "Building dependency graph...", 2, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/subscribe/status", nil)
	require.NoError(t, err)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	var eventLine, dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventLine = line
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	require.Equal(t, "event: building", eventLine)

	var event struct {
		Topic string `json:"topic"`
		Data  struct {
			State string `json:"state"`
			Step  int    `json:"step"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(dataLine), &event))
	assert.Equal(t, "analysis_status", event.Topic)
	assert.Equal(t, "building", event.Data.State)
	assert.Equal(t, 2, event.Data.Step)
}

func TestAnalyzeWithRunner(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"src/app/page.tsx":   `import Card from "@/widgets/Card"; import { x } from "./helpers"`,
		"src/app/helpers.ts": `export const x = 1`,
		"src/old.ts":         `export const old = 1`,
		"tsconfig.json":      `{"compilerOptions": {"paths": {"@/*": ["./src/*"]}}}`,
	}
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	t.Setenv("REACH_ANALYZER_WORKSPACE", dir)
	cfg, err := config.Load(nil)
	require.NoError(t, err)

	s := NewServer(analysis.ModeAll)
	defer s.Close()
	runner, err := analysis.NewRunner(cfg, analysis.WithPublisher(s))
	require.NoError(t, err)
	s.SetAnalyzer(runner)
	h := s.Handler()

	require.Equal(t, http.StatusAccepted, post(t, h, "/api/analyze").Code)
	s.Wait()

	var unused []model.UnusedFile
	require.NoError(t, json.Unmarshal(get(t, h, "/api/unused").Body.Bytes(), &unused))
	require.Len(t, unused, 1)
	assert.Equal(t, "src/old.ts", unused[0].Path)

	var missing []model.MissingFile
	require.NoError(t, json.Unmarshal(get(t, h, "/api/missing").Body.Bytes(), &missing))
	require.Len(t, missing, 1)
	assert.Equal(t, "src/widgets/Card", missing[0].Path)
	assert.Equal(t, []string{"@/widgets/Card"}, missing[0].Literals)

	var g model.Graph
	require.NoError(t, json.Unmarshal(get(t, h, "/api/graph").Body.Bytes(), &g))
	assert.Equal(t, model.NodeEntry, g.Nodes["src/app/page.tsx"].Type)
	assert.Equal(t, model.NodeUnused, g.Nodes["src/old.ts"].Type)
}
