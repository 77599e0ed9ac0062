// Package contextnorm fills in the defaults for a sample's StepContext so
// that every downstream component — classifier, engine, reporting — can
// assume a fully populated context and never handle absence itself.
package contextnorm

import (
	"strings"

	"github.com/andrewajenkins/perf-sentinel/internal/model"
)

const (
	defaultTestFile = "unknown.feature"
	defaultTestName = "Unknown Test"
	defaultSuite    = "unknown"
	defaultJobID    = "local"
	defaultWorkerID = "local"
)

// Normalize returns a fully populated StepContext. ctx may be nil, meaning
// the sample omitted context entirely; every field then takes its default.
// Tags are coerced to begin with "@" and deduplicated, preserving the
// first occurrence's position.
func Normalize(ctx *model.StepContext) model.StepContext {
	if ctx == nil {
		return model.StepContext{
			TestFile: defaultTestFile,
			TestName: defaultTestName,
			Suite:    defaultSuite,
			JobID:    defaultJobID,
			WorkerID: defaultWorkerID,
			Tags:     []string{},
		}
	}

	out := model.StepContext{
		TestFile: orDefault(ctx.TestFile, defaultTestFile),
		TestName: orDefault(ctx.TestName, defaultTestName),
		Suite:    orDefault(ctx.Suite, defaultSuite),
		JobID:    orDefault(ctx.JobID, defaultJobID),
		WorkerID: orDefault(ctx.WorkerID, defaultWorkerID),
		Tags:     normalizeTags(ctx.Tags),
	}

	return out
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}

// normalizeTags coerces every tag to begin with "@" and removes duplicates,
// keeping the first occurrence.
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))

	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}

		if !strings.HasPrefix(tag, "@") {
			tag = "@" + tag
		}

		if _, dup := seen[tag]; dup {
			continue
		}

		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	return out
}

// MergeTags unions two already-normalized tag sets, preserving a's order
// and appending any of b's tags not already present. Used to accumulate a
// HistoryEntry's context.tags across every observation absorbed.
func MergeTags(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))

	for _, tag := range a {
		if _, dup := seen[tag]; dup {
			continue
		}

		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	for _, tag := range b {
		if _, dup := seen[tag]; dup {
			continue
		}

		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	return out
}
