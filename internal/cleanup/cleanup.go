// Package cleanup implements the retention engine that parses an
// "--older-than" duration, previews or deletes run and job records through
// a storage adapter, and gates destructive runs behind a confirmation
// unless the caller forces it.
package cleanup

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/andrewajenkins/perf-sentinel/internal/storage"
)

var olderThanPattern = regexp.MustCompile(`^(\d+)([dhm])$`)

// ParseOlderThan parses a CLI "--older-than" value like "30d", "12h", or
// "45m" into a duration.
func ParseOlderThan(spec string) (time.Duration, error) {
	matches := olderThanPattern.FindStringSubmatch(spec)
	if matches == nil {
		return 0, fmt.Errorf("cleanup: invalid --older-than value %q, expected a number followed by d, h, or m", spec)
	}

	n, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("cleanup: invalid --older-than value %q: %w", spec, err)
	}

	switch matches[2] {
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	default:
		return time.Duration(n) * time.Minute, nil
	}
}

// Confirmer prompts the operator before a destructive cleanup runs. The
// CLI wires this to a stdin/stdout prompt; tests and --force bypass it.
type Confirmer func(result *storage.CleanupResult) (bool, error)

// Options configures one cleanup invocation.
type Options struct {
	ProjectID string
	Policy    storage.RetentionPolicy
	DryRun    bool
	Force     bool
	Confirm   Confirmer
}

// Outcome reports what a cleanup run did or would do.
type Outcome struct {
	Result    *storage.CleanupResult
	DryRun    bool
	Cancelled bool
}

// Summary renders a human-readable one-line result, using go-humanize for
// byte counts so operators see "42 MB" rather than a raw integer.
func (o Outcome) Summary() string {
	if o.Cancelled {
		return "cleanup cancelled; nothing removed"
	}

	verb := "removed"
	if o.DryRun {
		verb = "would remove"
	}

	return fmt.Sprintf("%s %d run(s) and %d job(s), freeing %s",
		verb, o.Result.RunsRemoved, o.Result.JobsRemoved, humanize.Bytes(uint64(o.Result.BytesFreed)))
}

// Engine runs retention cleanup against one storage adapter.
type Engine struct {
	adapter storage.Adapter
}

// New returns an Engine backed by adapter.
func New(adapter storage.Adapter) *Engine {
	return &Engine{adapter: adapter}
}

// Run implements §4.L: preview the cleanup, and either stop there (dry
// run), ask for confirmation, or delegate to the adapter's destructive
// Cleanup.
func (e *Engine) Run(ctx context.Context, opts Options) (*Outcome, error) {
	preview, err := e.adapter.CleanupPreview(ctx, opts.ProjectID, opts.Policy)
	if err != nil {
		return nil, fmt.Errorf("cleanup: previewing: %w", err)
	}

	if opts.DryRun {
		return &Outcome{Result: preview, DryRun: true}, nil
	}

	if !opts.Force && opts.Confirm != nil {
		proceed, err := opts.Confirm(preview)
		if err != nil {
			return nil, fmt.Errorf("cleanup: confirming: %w", err)
		}

		if !proceed {
			return &Outcome{Result: preview, Cancelled: true}, nil
		}
	}

	result, err := e.adapter.Cleanup(ctx, opts.ProjectID, opts.Policy)
	if err != nil {
		return nil, fmt.Errorf("cleanup: removing: %w", err)
	}

	return &Outcome{Result: result}, nil
}
