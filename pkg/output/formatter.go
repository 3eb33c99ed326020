package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/ritzau/reach-analyzer/pkg/lens"
	"github.com/ritzau/reach-analyzer/pkg/model"
)

// maxWarnings caps the warnings listed in the console report
const maxWarnings = 20

// PrintReport prints a nicely formatted report with colors
func PrintReport(w io.Writer, res *model.AnalysisResult) {
	// Color definitions
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	// Header
	bold.Fprintln(w, "Reach Analyzer - Dependency Report")
	bold.Fprintln(w, "==================================")
	fmt.Fprintf(w, "Workspace: %s\n", res.Workspace)
	fmt.Fprintf(w, "Scanned: %d files (%d entry points, %d critical)\n",
		res.Summary.TotalFiles, res.Summary.EntryPoints, res.Summary.Critical)
	fmt.Fprintf(w, "Imports: %d resolved edges\n", res.Summary.Edges)
	fmt.Fprintln(w)

	if res.Mode != "missing" {
		if len(res.Unused) == 0 {
			green.Fprintln(w, "UNUSED FILES: none")
		} else {
			red.Fprintf(w, "UNUSED FILES (%d):\n", len(res.Unused))
			for _, u := range res.Unused {
				yellow.Fprintf(w, "  %s\n", u.Path)
			}
		}
		fmt.Fprintln(w)
	}

	if res.Mode != "unused" {
		if len(res.Missing) == 0 {
			green.Fprintln(w, "MISSING FILES: none")
		} else {
			red.Fprintf(w, "MISSING FILES (%d):\n", len(res.Missing))
			for _, m := range res.Missing {
				severityColor(m.Severity).Fprintf(w, "  [%s] ", m.Severity)
				fmt.Fprintf(w, "%s", m.Path)
				cyan.Fprintf(w, " (%s)\n", m.Rule)
				for _, ref := range m.Referrers {
					fmt.Fprintf(w, "      <- %s\n", ref)
				}
			}
		}
		fmt.Fprintln(w)
	}

	if len(res.Cycles) > 0 {
		yellow.Fprintf(w, "IMPORT CYCLES (%d):\n", len(res.Cycles))
		for _, c := range res.Cycles {
			fmt.Fprintf(w, "  %v\n", c.Files)
		}
		fmt.Fprintln(w)
	}

	if len(res.Warnings) > 0 {
		yellow.Fprintf(w, "WARNINGS (%d):\n", len(res.Warnings))
		for i, warn := range res.Warnings {
			if i == maxWarnings {
				fmt.Fprintf(w, "  ... and %d more\n", len(res.Warnings)-maxWarnings)
				break
			}
			fmt.Fprintf(w, "  %s\n", warn)
		}
		fmt.Fprintln(w)
	}

	// Summary
	summaryColor := green
	if res.Summary.Unused > 0 || res.Summary.Missing > 0 {
		summaryColor = yellow
	}
	summaryColor.Fprintf(w, "Summary: %d reachable, %d unused, %d missing, %d warnings (%s)\n",
		res.Summary.Reachable, res.Summary.Unused, res.Summary.Missing, res.Summary.Warnings, res.Duration.Round(1e6))

	if res.Summary.Unused == 0 && res.Summary.Missing == 0 {
		green.Fprintln(w, "✓ Every file is reachable and every import resolves!")
	}
}

func severityColor(s model.Severity) *color.Color {
	switch s {
	case model.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case model.SeverityHigh:
		return color.New(color.FgRed)
	case model.SeverityMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

// PrintChanges prints how findings moved since the previous run
func PrintChanges(w io.Writer, diff *lens.ResultDiff) {
	if diff.Empty() {
		color.New(color.Faint).Fprintln(w, "No changes in findings since the last run")
		return
	}

	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)

	bold.Fprintln(w, "Changes since the last run:")
	for _, p := range diff.NewlyUnused {
		red.Fprintf(w, "  + unused   %s\n", p)
	}
	for _, p := range diff.NoLongerUnused {
		green.Fprintf(w, "  - unused   %s\n", p)
	}
	for _, p := range diff.NewlyMissing {
		red.Fprintf(w, "  + missing  %s\n", p)
	}
	for _, p := range diff.Resolved {
		green.Fprintf(w, "  - missing  %s\n", p)
	}
	fmt.Fprintln(w)
}

// WriteJSON writes the result as an indented JSON document
func WriteJSON(w io.Writer, res *model.AnalysisResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}
