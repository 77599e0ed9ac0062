package engine

import "github.com/andrewajenkins/perf-sentinel/internal/model"

// watchedCriticalPathTags are the tags whose presence pulls a step record
// into critical-path analysis.
var watchedCriticalPathTags = map[string]struct{}{
	"@critical":    {},
	"@smoke":       {},
	"@security":    {},
	"@performance": {},
}

// buildCriticalPath implements §4.E step 7: gather regressions, drift
// records, and new steps whose tags intersect the watched set, classify
// each issue's severity, and compute the overall severity as their max.
func buildCriticalPath(regressions, trends, newSteps []model.StepRecord) model.CriticalPathAnalysis {
	var issues []model.CriticalPathIssue

	collect := func(kind string, records []model.StepRecord, severity model.Severity) {
		for _, r := range records {
			if !intersectsCriticalPathTags(r.Context.Tags) {
				continue
			}

			issues = append(issues, model.CriticalPathIssue{
				Kind:     kind,
				StepText: r.StepText,
				Suite:    r.Context.Suite,
				Tags:     r.Context.Tags,
				Severity: severity,
			})
		}
	}

	collect("regression", regressions, model.SeverityHigh)
	collect("trend", trends, model.SeverityMedium)
	collect("new", newSteps, model.SeverityLow)

	overall := model.SeverityNone
	high := 0

	for _, issue := range issues {
		overall = model.MaxSeverity(overall, issue.Severity)

		if issue.Severity == model.SeverityHigh {
			high++
		}
	}

	return model.CriticalPathAnalysis{
		TotalIssues:        len(issues),
		HighSeverityIssues: high,
		Issues:             issues,
		OverallSeverity:    overall,
	}
}

func intersectsCriticalPathTags(tags []string) bool {
	for _, tag := range tags {
		if _, watched := watchedCriticalPathTags[tag]; watched {
			return true
		}
	}

	return false
}
