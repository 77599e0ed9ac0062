package model

import (
	"encoding/json"
	"fmt"
	"time"
)

const suiteHistoryKey = "suiteHistory"

// HistoryEntry is the rolling baseline for one stepText within one
// project: a bounded window of recent durations plus their derived
// average and sample standard deviation.
type HistoryEntry struct {
	Durations []float64   `json:"durations"`
	Average   float64     `json:"average"`
	StdDev    float64     `json:"stdDev"`
	Context   StepContext `json:"context"`
	FirstSeen time.Time   `json:"firstSeen"`
	LastSeen  time.Time   `json:"lastSeen"`
}

// SuiteHistory tracks bounded parallel sequences used for suite-level
// regression detection. Each sequence is truncated to at most 20 entries,
// oldest first.
type SuiteHistory struct {
	AvgDurationHistory    []float64 `json:"avgDurationHistory"`
	TotalStepsHistory     []int     `json:"totalStepsHistory"`
	RegressionRateHistory []float64 `json:"regressionRateHistory"`
	LastUpdated           time.Time `json:"lastUpdated"`
}

// MaxSuiteHistoryEntries bounds each SuiteHistory parallel sequence.
const MaxSuiteHistoryEntries = 20

// AppendAndTruncate appends one round of suite metrics and truncates every
// parallel sequence to MaxSuiteHistoryEntries from the front.
func (sh *SuiteHistory) AppendAndTruncate(avgDuration float64, totalSteps int, regressionRate float64, at time.Time) {
	sh.AvgDurationHistory = truncateFront(append(sh.AvgDurationHistory, avgDuration), MaxSuiteHistoryEntries)
	sh.TotalStepsHistory = truncateFrontInt(append(sh.TotalStepsHistory, totalSteps), MaxSuiteHistoryEntries)
	sh.RegressionRateHistory = truncateFront(append(sh.RegressionRateHistory, regressionRate), MaxSuiteHistoryEntries)
	sh.LastUpdated = at
}

func truncateFront(xs []float64, max int) []float64 {
	if len(xs) <= max {
		return xs
	}

	return xs[len(xs)-max:]
}

func truncateFrontInt(xs []int, max int) []int {
	if len(xs) <= max {
		return xs
	}

	return xs[len(xs)-max:]
}

// HistoryDocument is the per-project mapping of stepText to HistoryEntry,
// plus a reserved suiteHistory mapping of suite name to SuiteHistory.
//
// It round-trips through JSON via custom Marshal/Unmarshal methods so that
// keys written by a newer or differently configured version of the tool —
// anything that isn't a well-formed HistoryEntry — survive a read-modify-
// write cycle unmodified instead of being silently dropped.
type HistoryDocument struct {
	Steps        map[string]*HistoryEntry
	SuiteHistory map[string]*SuiteHistory
	Unknown      map[string]json.RawMessage
}

// NewHistoryDocument returns an empty, ready-to-use document.
func NewHistoryDocument() *HistoryDocument {
	return &HistoryDocument{
		Steps:        map[string]*HistoryEntry{},
		SuiteHistory: map[string]*SuiteHistory{},
		Unknown:      map[string]json.RawMessage{},
	}
}

// Clone returns a deep copy, since the engine must never mutate the
// document a storage adapter handed it in place.
func (h *HistoryDocument) Clone() *HistoryDocument {
	if h == nil {
		return NewHistoryDocument()
	}

	clone := NewHistoryDocument()

	for step, entry := range h.Steps {
		cloned := *entry
		cloned.Durations = append([]float64(nil), entry.Durations...)
		cloned.Context.Tags = append([]string(nil), entry.Context.Tags...)
		clone.Steps[step] = &cloned
	}

	for suite, sh := range h.SuiteHistory {
		cloned := *sh
		cloned.AvgDurationHistory = append([]float64(nil), sh.AvgDurationHistory...)
		cloned.TotalStepsHistory = append([]int(nil), sh.TotalStepsHistory...)
		cloned.RegressionRateHistory = append([]float64(nil), sh.RegressionRateHistory...)
		clone.SuiteHistory[suite] = &cloned
	}

	for k, v := range h.Unknown {
		clone.Unknown[k] = append(json.RawMessage(nil), v...)
	}

	return clone
}

// MarshalJSON flattens Steps and SuiteHistory back into one object,
// alongside any preserved unknown keys.
func (h *HistoryDocument) MarshalJSON() ([]byte, error) {
	flat := make(map[string]json.RawMessage, len(h.Steps)+len(h.Unknown)+1)

	for k, v := range h.Unknown {
		flat[k] = v
	}

	for step, entry := range h.Steps {
		raw, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("marshaling history entry %q: %w", step, err)
		}

		flat[step] = raw
	}

	if len(h.SuiteHistory) > 0 {
		raw, err := json.Marshal(h.SuiteHistory)
		if err != nil {
			return nil, fmt.Errorf("marshaling suite history: %w", err)
		}

		flat[suiteHistoryKey] = raw
	}

	return json.Marshal(flat)
}

// UnmarshalJSON splits the flat object into Steps, SuiteHistory, and
// Unknown. A key is treated as a HistoryEntry unless it is the reserved
// suiteHistory key or fails to parse as one, in which case it is kept
// verbatim in Unknown.
func (h *HistoryDocument) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("decoding history document: %w", err)
	}

	doc := NewHistoryDocument()

	if raw, ok := flat[suiteHistoryKey]; ok {
		var suites map[string]*SuiteHistory
		if err := json.Unmarshal(raw, &suites); err == nil {
			doc.SuiteHistory = suites
		} else {
			doc.Unknown[suiteHistoryKey] = raw
		}

		delete(flat, suiteHistoryKey)
	}

	for key, raw := range flat {
		var entry HistoryEntry
		if err := json.Unmarshal(raw, &entry); err != nil || !looksLikeHistoryEntry(raw) {
			doc.Unknown[key] = raw
			continue
		}

		doc.Steps[key] = &entry
	}

	*h = *doc

	return nil
}

// looksLikeHistoryEntry guards against a key that parses as a valid (but
// entirely zero) HistoryEntry purely because it happens to be `{}` or a
// document that shares no fields with HistoryEntry; only a payload that
// actually carries a durations array is treated as one of ours.
func looksLikeHistoryEntry(raw json.RawMessage) bool {
	var probe struct {
		Durations *[]float64 `json:"durations"`
	}

	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}

	return probe.Durations != nil
}
