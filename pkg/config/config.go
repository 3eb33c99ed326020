package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DefaultConfigFile is looked up in the workspace when --config is not given
const DefaultConfigFile = "reach-analyzer.toml"

// Config holds all configuration for the application
type Config struct {
	Workspace  string `koanf:"workspace"`
	ConfigFile string `koanf:"config"`
	Format     string `koanf:"format"`
	WebMode    bool   `koanf:"web"`
	Port       int    `koanf:"port"`
	Watch      bool   `koanf:"watch"`
	Verbosity  string `koanf:"verbosity"`
	VerboseCnt int    `koanf:"verbose"`
	LogFormat  string `koanf:"log_format"`

	SourceRoot        string            `koanf:"source_root"`
	SkipDirs          []string          `koanf:"skip_dirs"`
	SkipDotDirs       bool              `koanf:"skip_dot_dirs"`
	RespectGitignore  bool              `koanf:"respect_gitignore"`
	Extensions        []string          `koanf:"extensions"`
	ResolveExtensions []string          `koanf:"resolve_extensions"`
	CriticalNames     []string          `koanf:"critical_names"`
	CriticalPatterns  []string          `koanf:"critical_patterns"`
	EntryNames        []string          `koanf:"entry_names"`
	RoutingDirs       []string          `koanf:"routing_dirs"`
	StaticRoots       []string          `koanf:"static_roots"`
	RootMarker        string            `koanf:"root_marker"`
	TSConfig          string            `koanf:"tsconfig"`
	Aliases           map[string]string `koanf:"aliases"`
	Workers           int               `koanf:"workers"`
	CacheSize         int               `koanf:"cache_size"`

	Severity SeverityConfig `koanf:"severity"`

	// Resolved by Finalize
	AliasTable []Alias `koanf:"-"`
}

// SeverityConfig describes the missing-file severity policy
type SeverityConfig struct {
	Rules      []SeverityRule `koanf:"rules"`
	HighAt     int            `koanf:"high_at"`
	MediumAt   int            `koanf:"medium_at"`
	ReplaceAll bool           `koanf:"replace_defaults"`
}

// SeverityRule is one declarative severity rule. All non-empty predicates
// must hold for the rule to fire.
type SeverityRule struct {
	Name                 string   `koanf:"name"`
	Severity             string   `koanf:"severity"`
	PathContains         []string `koanf:"path_contains"`
	ReferrerIsEntry      bool     `koanf:"referrer_is_entry"`
	ReferrerPathContains []string `koanf:"referrer_path_contains"`
}

// Defaults returns the default configuration values, keyed as in the TOML file
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"workspace":          ".",
		"config":             "",
		"format":             "console",
		"web":                false,
		"port":               8080,
		"watch":              false,
		"verbosity":          "",
		"verbose":            0,
		"log_format":         "console",
		"source_root":        "src",
		"skip_dirs":          []string{"node_modules", ".next", ".git", "dist", "build", "out", "coverage", ".turbo", ".vercel"},
		"skip_dot_dirs":      true,
		"respect_gitignore":  true,
		"extensions":         []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".css", ".scss"},
		"resolve_extensions": []string{".tsx", ".ts", ".jsx", ".js", ".mjs", ".cjs", ".json", ".css", ".scss"},
		"critical_names":     []string{"middleware.ts", "middleware.js", "instrumentation.ts", "next.config.js", "next.config.mjs", "next.config.ts"},
		"critical_patterns":  []string{"**/api/**", "**/middleware.*", "**/instrumentation.*", "**/*.config.*", "**/globals.css"},
		"entry_names":        []string{"page", "layout", "template", "loading", "error", "global-error", "not-found", "default", "route", "_app", "_document"},
		"routing_dirs":       []string{"app", "pages"},
		"static_roots":       []string{"public"},
		"root_marker":        "/",
		"tsconfig":           "tsconfig.json",
		"workers":            0,
		"cache_size":         4096,
		"severity": map[string]interface{}{
			"high_at":   3,
			"medium_at": 2,
		},
	}
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(makeMapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Flags and env may move the workspace or name a config file, so peek at
	// them before choosing which file to read.
	workspace, configFile := locate(f)

	// 2. Config File (optional)
	path := configFile
	if path == "" {
		path = filepath.Join(workspace, DefaultConfigFile)
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, &ConfigError{Field: "config", Value: path, Err: err}
		}
	} else if configFile != "" {
		return nil, &ConfigError{Field: "config", Value: configFile, Err: err}
	}

	// 3. Environment Variables
	// Prefix: REACH_ANALYZER_ (e.g., REACH_ANALYZER_PORT=9090,
	// REACH_ANALYZER_SEVERITY__HIGH_AT=4)
	if err := k.Load(env.Provider("REACH_ANALYZER_", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.ProviderWithFlag(f, ".", k, flagKey(f)), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, &ConfigError{Field: "config", Value: path, Err: err}
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// flagKey maps --source-root to source_root and leaves undashed names alone
func flagKey(fs *pflag.FlagSet) func(*pflag.Flag) (string, interface{}) {
	return func(f *pflag.Flag) (string, interface{}) {
		return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(fs, f)
	}
}

// envKey maps REACH_ANALYZER_SOURCE_ROOT to source_root; a double underscore
// separates nested keys.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "REACH_ANALYZER_"))
	return strings.ReplaceAll(s, "__", ".")
}

func locate(f *pflag.FlagSet) (workspace, configFile string) {
	workspace = "."
	if v := os.Getenv("REACH_ANALYZER_WORKSPACE"); v != "" {
		workspace = v
	}
	configFile = os.Getenv("REACH_ANALYZER_CONFIG")
	if f == nil {
		return workspace, configFile
	}
	if fl := f.Lookup("workspace"); fl != nil && fl.Changed {
		workspace = fl.Value.String()
	}
	if fl := f.Lookup("config"); fl != nil && fl.Changed {
		configFile = fl.Value.String()
	}
	return workspace, configFile
}

// Finalize makes the workspace absolute, merges tsconfig aliases and
// validates the result. A failure here invalidates every later resolution,
// so it is the one error class that aborts a run.
func (c *Config) Finalize() error {
	abs, err := filepath.Abs(c.Workspace)
	if err != nil {
		return &ConfigError{Field: "workspace", Value: c.Workspace, Err: err}
	}
	c.Workspace = abs

	aliases := make(map[string]string)
	if c.TSConfig != "" {
		tsPath := c.TSConfig
		if !filepath.IsAbs(tsPath) {
			tsPath = filepath.Join(c.Workspace, tsPath)
		}
		fromTS, err := LoadTSConfigAliases(tsPath)
		if err != nil {
			return &ConfigError{Field: "tsconfig", Value: c.TSConfig, Err: err}
		}
		for prefix, dir := range fromTS {
			aliases[prefix] = dir
		}
	}
	// Explicit aliases win over tsconfig paths
	for prefix, dir := range c.Aliases {
		aliases[prefix] = dir
	}

	table, err := NewAliasTable(c.Workspace, aliases)
	if err != nil {
		return err
	}
	c.AliasTable = table

	return c.Validate()
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
