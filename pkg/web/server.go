package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ritzau/reach-analyzer/pkg/analysis"
	"github.com/ritzau/reach-analyzer/pkg/lens"
	"github.com/ritzau/reach-analyzer/pkg/logging"
	"github.com/ritzau/reach-analyzer/pkg/model"
	"github.com/ritzau/reach-analyzer/pkg/pubsub"
)

// Analyzer runs analyses on demand. *analysis.Runner implements it.
type Analyzer interface {
	Run(ctx context.Context, mode analysis.Mode) (*model.AnalysisResult, error)
}

// Server serves analysis results over HTTP and streams progress over SSE.
// It implements analysis.Publisher.
type Server struct {
	router    *mux.Router
	publisher *pubsub.SSEPublisher
	mode      analysis.Mode

	mu       sync.RWMutex
	analyzer Analyzer
	result   *model.AnalysisResult
	graph    *model.Graph
	hash     string
	running  bool

	// Recent graph snapshots by hash, for /api/graph/diff
	snapshots *lru.Cache[string, *lens.Snapshot]

	// Background runs started by POST /api/analyze
	runs    sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

var _ analysis.Publisher = (*Server)(nil)

// snapshotHistory is how many past graphs /api/graph/diff can diff against
const snapshotHistory = 8

// NewServer creates a new web server. mode is the default for triggered runs.
func NewServer(mode analysis.Mode) *Server {
	ssePublisher := pubsub.NewSSEPublisher()

	// Only the current state matters to a new subscriber
	ssePublisher.ConfigureTopic(pubsub.TopicStatus, pubsub.TopicConfig{
		BufferSize: 10,
		ReplayAll:  false,
	})
	ssePublisher.ConfigureTopic(pubsub.TopicResult, pubsub.TopicConfig{
		BufferSize: 5,
		ReplayAll:  false,
	})

	// Only fails for a non-positive size
	snapshots, _ := lru.New[string, *lens.Snapshot](snapshotHistory)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:    mux.NewRouter(),
		publisher: ssePublisher,
		mode:      mode,
		snapshots: snapshots,
		baseCtx:   ctx,
		cancel:    cancel,
	}
	s.setupRoutes()
	return s
}

// SetAnalyzer sets the analyzer used by POST /api/analyze
func (s *Server) SetAnalyzer(a Analyzer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyzer = a
}

// PublishStatus publishes an analysis_status event
func (s *Server) PublishStatus(state, message string, step, total int) {
	status := pubsub.AnalysisStatus{
		State:   state,
		Message: message,
		Step:    step,
		Total:   total,
	}
	if err := s.publisher.Publish(pubsub.TopicStatus, state, status); err != nil && !errors.Is(err, pubsub.ErrClosed) {
		logging.Warn("failed to publish status", "state", state, "error", err)
	}
}

// PublishResult stores the latest result and announces it, with the
// findings that changed since the previous run, to subscribers
func (s *Server) PublishResult(result *model.AnalysisResult, g *model.Graph) {
	snapshot := lens.CreateSnapshot(g)
	s.snapshots.Add(snapshot.Hash, snapshot)

	s.mu.Lock()
	prev := s.result
	s.result = result
	s.graph = g
	s.hash = snapshot.Hash
	s.mu.Unlock()

	summary := pubsub.ResultSummary{
		Mode:        result.Mode,
		Fingerprint: result.Fingerprint,
		GraphHash:   snapshot.Hash,
		Summary:     result.Summary,
	}
	if prev != nil {
		summary.Changes = lens.CompareResults(prev, result)
	}
	if err := s.publisher.Publish(pubsub.TopicResult, "result", summary); err != nil && !errors.Is(err, pubsub.ErrClosed) {
		logging.Warn("failed to publish result", "error", err)
	}
}

// Handler returns the HTTP handler with request logging applied
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

func (s *Server) setupRoutes() {
	// SSE subscription endpoints
	s.router.HandleFunc("/api/subscribe/status", s.handleSubscribe(pubsub.TopicStatus)).Methods("GET")
	s.router.HandleFunc("/api/subscribe/result", s.handleSubscribe(pubsub.TopicResult)).Methods("GET")

	s.router.HandleFunc("/api/result", s.handleResult).Methods("GET")
	s.router.HandleFunc("/api/unused", s.handleUnused).Methods("GET")
	s.router.HandleFunc("/api/missing", s.handleMissing).Methods("GET")
	s.router.HandleFunc("/api/graph", s.handleGraph).Methods("GET")
	s.router.HandleFunc("/api/graph/diff", s.handleGraphDiff).Methods("GET")
	s.router.HandleFunc("/api/files/{path:.+}/focused", s.handleFileFocused).Methods("GET")
	s.router.HandleFunc("/api/analyze", s.handleAnalyze).Methods("POST")
}

func (s *Server) snapshot() (*model.AnalysisResult, *model.Graph) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result, s.graph
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleSubscribe(topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		flusher, _ := w.(http.Flusher)

		// Initial comment establishes the stream before the first event
		fmt.Fprintf(w, ": connected\n\n")
		if flusher != nil {
			flusher.Flush()
		}

		sub, err := s.publisher.Subscribe(r.Context(), topic)
		if err != nil {
			logging.WarnContext(r.Context(), "subscription refused", "topic", topic, "error", err)
			return
		}
		defer sub.Close()

		for event := range sub.Events() {
			if err := pubsub.WriteSSE(w, event); err != nil {
				logging.DebugContext(r.Context(), "SSE client went away", "topic", topic, "error", err)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	result, _ := s.snapshot()
	if result == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis not available yet")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUnused(w http.ResponseWriter, r *http.Request) {
	result, _ := s.snapshot()
	if result == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis not available yet")
		return
	}
	writeJSON(w, http.StatusOK, result.Unused)
}

// handleMissing lists missing files, optionally filtered by ?severity=, which
// keeps entries at or above the named level
func (s *Server) handleMissing(w http.ResponseWriter, r *http.Request) {
	result, _ := s.snapshot()
	if result == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis not available yet")
		return
	}

	missing := result.Missing
	if name := r.URL.Query().Get("severity"); name != "" {
		floor, err := model.ParseSeverity(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filtered := make([]model.MissingFile, 0, len(missing))
		for _, m := range missing {
			if m.Severity >= floor {
				filtered = append(filtered, m)
			}
		}
		missing = filtered
	}
	writeJSON(w, http.StatusOK, missing)
}

// handleGraph returns the full graph. X-Graph-Hash names it for later
// /api/graph/diff requests.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	g, hash := s.graph, s.hash
	s.mu.RUnlock()

	if g == nil {
		g = model.NewGraph()
	}
	if hash != "" {
		w.Header().Set("X-Graph-Hash", hash)
	}
	writeJSON(w, http.StatusOK, g)
}

// handleGraphDiff returns the changes since the graph named by ?since=. An
// unknown or missing hash yields the full graph.
func (s *Server) handleGraphDiff(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	g := s.graph
	s.mu.RUnlock()
	if g == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis not available yet")
		return
	}

	var old *lens.Snapshot
	if since := r.URL.Query().Get("since"); since != "" {
		old, _ = s.snapshots.Get(since)
	}
	writeJSON(w, http.StatusOK, lens.ComputeDiff(old, g))
}

// handleFileFocused returns the graph around a file or directory: by default
// its direct imports and importers, or everything within ?depth= hops
func (s *Server) handleFileFocused(w http.ResponseWriter, r *http.Request) {
	_, g := s.snapshot()
	if g == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis not available yet")
		return
	}

	depth := 1
	if v := r.URL.Query().Get("depth"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid depth %q", v))
			return
		}
		depth = d
	}

	path := mux.Vars(r)["path"]
	focused := lens.Neighborhood(g, []string{path}, depth)
	if len(focused.Nodes) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%q not in graph", path))
		return
	}
	writeJSON(w, http.StatusOK, focused)
}

// handleAnalyze starts a background run. ?mode= overrides the default mode.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	mode := s.mode
	if name := r.URL.Query().Get("mode"); name != "" {
		m, err := analysis.ParseMode(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode = m
	}

	s.mu.Lock()
	analyzer := s.analyzer
	if analyzer == nil {
		s.mu.Unlock()
		writeError(w, http.StatusServiceUnavailable, "no analyzer configured")
		return
	}
	if s.running {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "analysis already running")
		return
	}
	s.running = true
	s.runs.Add(1)
	s.mu.Unlock()

	requestID := logging.GetRequestID(r.Context())
	go func() {
		defer s.runs.Done()
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()

		ctx := logging.WithRequestID(s.baseCtx, requestID)
		if _, err := analyzer.Run(ctx, mode); err != nil {
			logging.ErrorContext(ctx, "triggered analysis failed", "error", err)
			s.PublishStatus("error", err.Error(), 0, 0)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "mode": string(mode)})
}

// Wait blocks until triggered runs have finished
func (s *Server) Wait() {
	s.runs.Wait()
}

// Start serves HTTP on port until ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("starting web server", "url", fmt.Sprintf("http://localhost:%d", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
	}

	// SSE streams end when the publisher closes
	s.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down web server: %w", err)
	}
	return nil
}

// Close cancels triggered runs, waits for them and closes all subscriptions
func (s *Server) Close() {
	s.cancel()
	s.runs.Wait()
	if err := s.publisher.Close(); err != nil {
		logging.Warn("failed to close publisher", "error", err)
	}
}
