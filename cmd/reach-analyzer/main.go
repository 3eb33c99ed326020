package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/ritzau/reach-analyzer/pkg/analysis"
	"github.com/ritzau/reach-analyzer/pkg/config"
	"github.com/ritzau/reach-analyzer/pkg/lens"
	"github.com/ritzau/reach-analyzer/pkg/logging"
	"github.com/ritzau/reach-analyzer/pkg/model"
	"github.com/ritzau/reach-analyzer/pkg/output"
	"github.com/ritzau/reach-analyzer/pkg/watcher"
	"github.com/ritzau/reach-analyzer/pkg/web"
)

const usage = `Usage: reach-analyzer [flags] [unused|missing|all]

Finds source files no entry point can reach and internal imports whose
target file does not exist.

Flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func newFlagSet(stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("reach-analyzer", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("workspace", ".", "Path to the project root")
	fs.String("config", "", "Config file (default <workspace>/"+config.DefaultConfigFile+")")
	fs.String("format", "console", "Output format: console or json")
	fs.Bool("watch", false, "Re-run the analysis when files change")
	fs.Bool("web", false, "Serve results over HTTP instead of printing them")
	fs.Int("port", 8080, "Port for the web server (only used with --web)")
	fs.Bool("open", false, "Open a browser on the web server (only used with --web)")
	fs.CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	fs.String("verbosity", "", "Log level: error, warn, info, debug or trace")
	fs.String("log-format", "console", "Log format on stderr: console or json")
	fs.Int("workers", 0, "Files processed in parallel (0 = number of CPUs)")
	fs.String("source-root", "", "Directory that root-absolute imports resolve against")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fmt.Fprint(stderr, fs.FlagUsages())
	}
	return fs
}

// run executes the CLI and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 1
	}

	if fs.NArg() > 1 {
		fmt.Fprintf(stderr, "Error: expected at most one mode, got %v\n", fs.Args())
		return 1
	}
	mode, err := analysis.ParseMode(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(fs)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	configureLogging(cfg, stderr)

	app := &app{
		flags:  fs,
		mode:   mode,
		stdout: stdout,
		stderr: stderr,
	}
	if err := app.start(ctx, cfg); err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if errors.Is(err, context.Canceled) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig layers defaults, the config file, REACH_ANALYZER_ env vars and
// the command line flags
func loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	return config.Load(fs)
}

// configureLogging installs the log handler on w. Reports never go there.
func configureLogging(cfg *config.Config, w io.Writer) {
	level := logging.LevelForVerbosity(cfg.VerboseCnt)
	if cfg.Verbosity != "" {
		if l, ok := logging.ParseLevel(cfg.Verbosity); ok {
			level = l
		} else {
			logging.Warn("unknown verbosity, using default", "verbosity", cfg.Verbosity)
		}
	}
	if cfg.LogFormat == "json" {
		logging.SetJSONOutput(w, level)
		return
	}
	logging.SetOutput(w, level)
}

// app holds what the run modes share
type app struct {
	flags  *pflag.FlagSet
	mode   analysis.Mode
	stdout io.Writer
	stderr io.Writer
	server *web.Server
	last   *model.AnalysisResult // previous console report in watch mode
}

func (a *app) start(ctx context.Context, cfg *config.Config) error {
	if cfg.WebMode {
		return a.serve(ctx, cfg)
	}

	runner, err := analysis.NewRunner(cfg)
	if err != nil {
		return err
	}
	result, err := runner.Run(ctx, a.mode)
	if err != nil {
		return err
	}
	if err := a.report(cfg, result); err != nil {
		return err
	}

	if cfg.Watch {
		a.last = result
		return a.watch(ctx, runner)
	}
	return nil
}

// serve runs the web server, an initial analysis and, with --watch, the
// watch loop until ctx is cancelled
func (a *app) serve(ctx context.Context, cfg *config.Config) error {
	a.server = web.NewServer(a.mode)
	runner, err := analysis.NewRunner(cfg, analysis.WithPublisher(a.server))
	if err != nil {
		return err
	}
	a.server.SetAnalyzer(runner)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Start(ctx, cfg.Port)
	})
	g.Go(func() error {
		if open, _ := a.flags.GetBool("open"); open {
			openBrowser(fmt.Sprintf("http://localhost:%d", cfg.Port))
		}
		result, err := runner.Run(ctx, a.mode)
		if err != nil {
			return err
		}
		logSummary(result)
		if cfg.Watch {
			return a.watch(ctx, runner)
		}
		return nil
	})
	return g.Wait()
}

// watch re-runs the analysis on debounced file changes, reloading the
// configuration first when a config file changed
func (a *app) watch(ctx context.Context, runner *analysis.Runner) error {
	cfg := runner.Config()

	fw, err := watcher.NewFileWatcher(cfg.Workspace, watcher.Options{
		SkipDirs:    cfg.SkipDirs,
		SkipDotDirs: cfg.SkipDotDirs,
		Extensions:  watchedExtensions(cfg),
		ConfigNames: configNames(cfg),
	})
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	debouncer := watcher.NewDebouncer(fw.Events(), watcher.DefaultQuietPeriod, watcher.DefaultMaxWait)
	debouncer.Start(ctx)

	for event := range debouncer.Output() {
		change := watcher.AnalyzeChanges(event)
		logging.Info("changes detected", "type", event.Type.String(), "files", len(change.ChangedFiles))

		if change.NeedConfigReload {
			newCfg, err := loadConfig(a.flags)
			if err != nil {
				logging.Error("config reload failed, keeping the previous configuration", "error", err)
			} else {
				configureLogging(newCfg, a.stderr)
				runner.SetConfig(newCfg)
				cfg = newCfg
			}
		}
		if !change.NeedAnalysis {
			continue
		}

		result, err := runner.Run(ctx, a.mode)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logging.Error("analysis failed", "error", err)
			continue
		}
		if a.server != nil {
			logSummary(result)
			continue
		}
		if cfg.Format == "console" {
			output.PrintChanges(a.stdout, lens.CompareResults(a.last, result))
		}
		a.last = result
		if err := a.report(cfg, result); err != nil {
			return err
		}
	}

	<-fw.Done()
	return nil
}

func (a *app) report(cfg *config.Config, result *model.AnalysisResult) error {
	if cfg.Format == "json" {
		return output.WriteJSON(a.stdout, result)
	}
	output.PrintReport(a.stdout, result)
	return nil
}

func logSummary(result *model.AnalysisResult) {
	logging.Info("analysis ready",
		"unused", result.Summary.Unused,
		"missing", result.Summary.Missing,
		"warnings", result.Summary.Warnings)
}

func watchedExtensions(cfg *config.Config) []string {
	seen := make(map[string]struct{})
	var exts []string
	for _, ext := range append(append([]string{}, cfg.Extensions...), cfg.ResolveExtensions...) {
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	return exts
}

func configNames(cfg *config.Config) []string {
	names := []string{config.DefaultConfigFile}
	if cfg.ConfigFile != "" {
		names = append(names, filepath.Base(cfg.ConfigFile))
	}
	if cfg.TSConfig != "" {
		names = append(names, filepath.Base(cfg.TSConfig))
	}
	return names
}

func openBrowser(url string) {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "linux":
		cmd = "xdg-open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		logging.Warn("cannot open browser on this platform", "os", runtime.GOOS)
		return
	}

	if err := exec.Command(cmd, args...).Start(); err != nil {
		logging.Warn("failed to open browser", "error", err)
	}
}
