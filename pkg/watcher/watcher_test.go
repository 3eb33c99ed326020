package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func nextEvent(t *testing.T, ch <-chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for change event")
	}
	return ChangeEvent{}
}

// waitFor skips batches until one matches; editors and WriteFile may emit
// several raw events per save
func waitFor(t *testing.T, ch <-chan ChangeEvent, match func(ChangeEvent) bool) ChangeEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "channel closed")
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timeout waiting for matching change event")
		}
	}
}

func containsPath(path string) func(ChangeEvent) bool {
	return func(ev ChangeEvent) bool {
		for _, p := range ev.Paths {
			if p == path {
				return true
			}
		}
		return false
	}
}

func TestDebouncerBatchesQuietPeriod(t *testing.T) {
	in := make(chan ChangeEvent)
	d := NewDebouncer(in, 50*time.Millisecond, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	in <- ChangeEvent{Type: ChangeTypeSource, Paths: []string{"a.ts"}}
	in <- ChangeEvent{Type: ChangeTypeSource, Paths: []string{"b.ts", "a.ts"}}
	in <- ChangeEvent{Type: ChangeTypeConfig, Paths: []string{"reach-analyzer.toml"}}

	first := nextEvent(t, d.Output())
	assert.Equal(t, ChangeTypeConfig, first.Type, "config changes are flushed first")
	assert.Equal(t, []string{"reach-analyzer.toml"}, first.Paths)

	second := nextEvent(t, d.Output())
	assert.Equal(t, ChangeTypeSource, second.Type)
	assert.Equal(t, []string{"a.ts", "b.ts"}, second.Paths)

	close(in)
	_, ok := <-d.Output()
	assert.False(t, ok, "output closes after input")
}

func TestDebouncerMaxWait(t *testing.T) {
	in := make(chan ChangeEvent)
	d := NewDebouncer(in, 200*time.Millisecond, 300*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				select {
				case in <- ChangeEvent{Type: ChangeTypeSource, Paths: []string{"busy.ts"}}:
				case <-stop:
					return
				}
			}
		}
	}()

	// A constant trickle never leaves a quiet period; the deadline still flushes
	start := time.Now()
	ev := nextEvent(t, d.Output())
	close(stop)
	assert.Equal(t, []string{"busy.ts"}, ev.Paths)
	assert.Less(t, time.Since(start), 2*time.Second)

	cancel()
	for range d.Output() {
	}
}

func TestDebouncerStopsOnCancel(t *testing.T) {
	in := make(chan ChangeEvent)
	d := NewDebouncer(in, time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	in <- ChangeEvent{Type: ChangeTypeSource, Paths: []string{"a.ts"}}
	cancel()

	for range d.Output() {
	}
}

func TestAnalyzeChanges(t *testing.T) {
	cfg := AnalyzeChanges(ChangeEvent{Type: ChangeTypeConfig, Paths: []string{"tsconfig.json"}})
	assert.True(t, cfg.NeedConfigReload)
	assert.True(t, cfg.NeedAnalysis)

	src := AnalyzeChanges(ChangeEvent{Type: ChangeTypeSource, Paths: []string{"a.ts"}})
	assert.False(t, src.NeedConfigReload)
	assert.True(t, src.NeedAnalysis)

	src.Merge(cfg)
	assert.True(t, src.NeedConfigReload)
	assert.Equal(t, []string{"a.ts", "tsconfig.json"}, src.ChangedFiles)
}

func TestFileWatcher(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "app", "page.tsx"), "")
	writeFile(t, filepath.Join(root, "node_modules", "pkg", "index.js"), "")

	fw, err := NewFileWatcher(root, Options{
		SkipDirs:    []string{"node_modules"},
		SkipDotDirs: true,
		Extensions:  []string{".ts", ".tsx"},
		ConfigNames: []string{"reach-analyzer.toml", "tsconfig.json"},
		FlushDelay:  20 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, fw.Start(ctx))

	// root, src, src/app
	assert.Equal(t, 3, fw.WatchedCount())

	t.Run("source change", func(t *testing.T) {
		page := filepath.Join(root, "src", "app", "page.tsx")
		writeFile(t, page, "export default 1")
		ev := waitFor(t, fw.Events(), containsPath(page))
		assert.Equal(t, ChangeTypeSource, ev.Type)
	})

	t.Run("config change", func(t *testing.T) {
		tsconfig := filepath.Join(root, "tsconfig.json")
		writeFile(t, tsconfig, "{}")
		ev := waitFor(t, fw.Events(), containsPath(tsconfig))
		assert.Equal(t, ChangeTypeConfig, ev.Type)
	})

	t.Run("new directory is watched", func(t *testing.T) {
		require.NoError(t, os.Mkdir(filepath.Join(root, "src", "lib"), 0o755))
		require.Eventually(t, func() bool { return fw.WatchedCount() == 4 }, 2*time.Second, 10*time.Millisecond)

		util := filepath.Join(root, "src", "lib", "util.ts")
		writeFile(t, util, "")
		ev := waitFor(t, fw.Events(), containsPath(util))
		assert.Equal(t, ChangeTypeSource, ev.Type)
	})

	cancel()
	<-fw.Done()
	for range fw.Events() {
	}
}

func TestFileWatcherIgnoresNoise(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "a.ts"), "")

	fw, err := NewFileWatcher(root, Options{
		SkipDirs:   []string{"node_modules"},
		Extensions: []string{".ts"},
		FlushDelay: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, fw.Start(ctx))

	writeFile(t, filepath.Join(root, "src", "notes.md"), "ignored")

	select {
	case ev := <-fw.Events():
		t.Errorf("unexpected event %+v", ev)
	case <-time.After(150 * time.Millisecond):
	}

	require.NoError(t, fw.Stop())
	<-fw.Done()
	cancel()
}

func TestFileWatcherMissingRoot(t *testing.T) {
	fw, err := NewFileWatcher(filepath.Join(t.TempDir(), "missing"), Options{})
	require.NoError(t, err)
	assert.Error(t, fw.Start(context.Background()))
}
