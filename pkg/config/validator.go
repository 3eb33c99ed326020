package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ritzau/reach-analyzer/pkg/model"
)

// Validate checks the loaded values. It assumes Workspace is already absolute.
func (c *Config) Validate() error {
	switch c.Format {
	case "console", "json":
	default:
		return &ConfigError{Field: "format", Value: c.Format, Err: errors.New("must be console or json")}
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return &ConfigError{Field: "log_format", Value: c.LogFormat, Err: errors.New("must be console or json")}
	}

	if c.Port < 0 || c.Port > 65535 {
		return &ConfigError{Field: "port", Value: fmt.Sprint(c.Port), Err: errors.New("out of range")}
	}
	if c.Workers < 0 {
		return &ConfigError{Field: "workers", Value: fmt.Sprint(c.Workers), Err: errors.New("cannot be negative")}
	}
	if c.CacheSize < 0 {
		return &ConfigError{Field: "cache_size", Value: fmt.Sprint(c.CacheSize), Err: errors.New("cannot be negative")}
	}

	if filepath.IsAbs(c.SourceRoot) || !within(c.Workspace, c.SourceRootPath()) {
		return &ConfigError{Field: "source_root", Value: c.SourceRoot, Err: errors.New("must be inside the workspace")}
	}

	if len(c.Extensions) == 0 {
		return &ConfigError{Field: "extensions", Err: errors.New("at least one extension is required")}
	}
	for _, ext := range append(append([]string{}, c.Extensions...), c.ResolveExtensions...) {
		if !strings.HasPrefix(ext, ".") {
			return &ConfigError{Field: "extensions", Value: ext, Err: errors.New("extensions must start with a dot")}
		}
	}

	for _, pattern := range c.CriticalPatterns {
		if !doublestar.ValidatePattern(pattern) {
			return &ConfigError{Field: "critical_patterns", Value: pattern, Err: errors.New("invalid glob")}
		}
	}

	for _, rule := range c.Severity.Rules {
		if rule.Name == "" {
			return &ConfigError{Field: "severity.rules", Err: errors.New("rule name cannot be empty")}
		}
		if _, err := model.ParseSeverity(rule.Severity); err != nil {
			return &ConfigError{Field: "severity.rules", Value: rule.Name, Err: err}
		}
		if len(rule.PathContains) == 0 && !rule.ReferrerIsEntry && len(rule.ReferrerPathContains) == 0 {
			return &ConfigError{Field: "severity.rules", Value: rule.Name, Err: errors.New("rule has no predicates")}
		}
	}
	if c.Severity.HighAt < c.Severity.MediumAt {
		return &ConfigError{Field: "severity.high_at", Value: fmt.Sprint(c.Severity.HighAt), Err: errors.New("must not be below medium_at")}
	}

	return nil
}

// SourceRootPath returns the absolute source root
func (c *Config) SourceRootPath() string {
	if c.SourceRoot == "" || c.SourceRoot == "." {
		return c.Workspace
	}
	return filepath.Join(c.Workspace, filepath.FromSlash(c.SourceRoot))
}

// StaticRootPaths returns the absolute static asset roots
func (c *Config) StaticRootPaths() []string {
	paths := make([]string, 0, len(c.StaticRoots))
	for _, r := range c.StaticRoots {
		paths = append(paths, filepath.Join(c.Workspace, filepath.FromSlash(r)))
	}
	return paths
}
