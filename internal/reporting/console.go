// Package reporting renders a minimal built-in console summary for a
// Report. Full report emission (console/markdown/HTML) is an external
// collaborator's concern; this package only covers the at-a-glance table
// printed directly by the CLI after an analyze run.
package reporting

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/andrewajenkins/perf-sentinel/internal/model"
)

// WriteSummary renders report to w: one line of run-wide totals, a
// per-suite table sorted by health score (worst first), and — when any
// exist — a table of individual regressions sorted by slowdown.
func WriteSummary(w io.Writer, report *model.Report, noColor bool) {
	colorize(noColor)

	fmt.Fprintf(w, "%s  steps=%d  suites=%d  overallHealth=%.1f  regressions=%d  new=%d\n",
		bold("perf-sentinel"), report.Metadata.TotalSteps, report.Metadata.Suites,
		report.Metadata.OverallHealth, len(report.Regressions), len(report.NewSteps))

	writeSuiteTable(w, report)

	if len(report.Regressions) > 0 {
		fmt.Fprintln(w)
		writeRegressionTable(w, report.Regressions)
	}
}

func writeSuiteTable(w io.Writer, report *model.Report) {
	suites := make([]*model.SuiteSummary, 0, len(report.Suites))
	for _, s := range report.Suites {
		suites = append(suites, s)
	}

	sort.Slice(suites, func(i, j int) bool { return suites[i].HealthScore < suites[j].HealthScore })

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.AppendHeader(table.Row{"Suite", "Category", "Health", "Steps", "Regressions", "New", "Avg (ms)"})

	for _, s := range suites {
		tbl.AppendRow(table.Row{
			s.Suite,
			categoryLabel(s.Category),
			fmt.Sprintf("%.0f", s.HealthScore),
			s.TotalSteps,
			s.Regressions,
			s.NewSteps,
			fmt.Sprintf("%.0f", s.AvgDuration),
		})
	}

	tbl.Render()
}

func writeRegressionTable(w io.Writer, regressions []model.StepRecord) {
	ordered := append([]model.StepRecord(nil), regressions...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Percentage > ordered[j].Percentage })

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.AppendHeader(table.Row{"Step", "Suite", "Duration (ms)", "Prior Avg (ms)", "Slowdown %"})

	for _, r := range ordered {
		tbl.AppendRow(table.Row{
			truncate(r.StepText, regressionStepWidth),
			r.Context.Suite,
			fmt.Sprintf("%.0f", r.Duration),
			fmt.Sprintf("%.0f", r.PriorAverage),
			red(fmt.Sprintf("+%.1f%%", r.Percentage)),
		})
	}

	tbl.Render()
}

const regressionStepWidth = 60

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	return s[:max-1] + "…"
}

func categoryLabel(c model.Category) string {
	switch c {
	case model.CategoryCritical:
		return red(string(c))
	case model.CategoryWarning:
		return yellow(string(c))
	case model.CategoryAttention:
		return yellow(string(c))
	default:
		return green(string(c))
	}
}

var (
	bold   = color.New(color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

func colorize(noColor bool) {
	color.NoColor = noColor
}
