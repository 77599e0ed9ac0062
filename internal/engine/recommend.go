package engine

import (
	"fmt"
	"sort"

	"github.com/andrewajenkins/perf-sentinel/internal/model"
)

// prioritizedRecommendation pairs a recommendation with the severity
// rank that determines its position in the final, priority-sorted list.
type prioritizedRecommendation struct {
	text string
	rank int
}

var severityRank = map[model.Severity]int{
	model.SeverityHigh:   3,
	model.SeverityMedium: 2,
	model.SeverityLow:    1,
	model.SeverityNone:   0,
}

// buildRecommendations implements §4.E step 8: derive top-level
// recommendations from critical-path severity and suite-level aggregates,
// sorted high-priority first.
func buildRecommendations(suites map[string]*model.SuiteSummary, criticalPath model.CriticalPathAnalysis) []string {
	var recs []prioritizedRecommendation

	if criticalPath.OverallSeverity != model.SeverityNone {
		recs = append(recs, prioritizedRecommendation{
			text: fmt.Sprintf("critical path shows %s severity issues across %d step(s); review before merging", criticalPath.OverallSeverity, criticalPath.TotalIssues),
			rank: severityRank[criticalPath.OverallSeverity],
		})
	}

	for _, suite := range suites {
		for _, r := range suite.Recommendations {
			recs = append(recs, prioritizedRecommendation{text: r, rank: severityRank[suite.Severity]})
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].rank > recs[j].rank
	})

	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.text
	}

	return out
}
