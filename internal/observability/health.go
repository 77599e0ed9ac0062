// Package observability provides the opt-in metrics and health surfaces
// exposed only when a command is run with --metrics-addr (`health-check`
// for storage-adapter health, `analyze` for classification counts too);
// perf-sentinel never runs a standing server otherwise.
package observability

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/andrewajenkins/perf-sentinel/internal/storage"
)

const (
	healthStatusOK          = "ok"
	healthStatusUnavailable = "unavailable"
)

// CheckStorage reduces the per-adapter health entries a command has already
// gathered (primary and, when configured, filesystem fallback) to one
// verdict, healthy only when every entry is healthy, and returns the
// entries unchanged alongside it.
func CheckStorage(ctx context.Context, statuses []storage.Health) (bool, []storage.Health) {
	healthy := true

	for _, s := range statuses {
		if s.Status != storage.HealthHealthy {
			healthy = false
		}
	}

	return healthy, statuses
}

// LivenessHandler serves /healthz for the metrics-addr window opened by
// `analyze --metrics-addr` or `health-check --metrics-addr`. It always
// returns 200; liveness here
// means "the process is up," not "storage is reachable" — that's readiness.
func LivenessHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusOK)
		writeHealthJSON(rw, healthStatusOK)
	})
}

// ReadinessHandler serves /readyz, running the check function passed in at
// construction time on every request.
func ReadinessHandler(check func(ctx context.Context) (bool, []storage.Health)) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		rw.Header().Set("Content-Type", "application/json")

		healthy, statuses := check(hr.Context())
		if !healthy {
			rw.WriteHeader(http.StatusServiceUnavailable)
			writeHealthDetail(rw, healthStatusUnavailable, statuses)

			return
		}

		rw.WriteHeader(http.StatusOK)
		writeHealthDetail(rw, healthStatusOK, statuses)
	})
}

func writeHealthJSON(w io.Writer, status string) {
	data, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return
	}

	writeOrDiscard(w, data)
}

func writeHealthDetail(w io.Writer, status string, statuses []storage.Health) {
	details := make([]map[string]string, 0, len(statuses))

	for _, s := range statuses {
		entry := map[string]string{"type": string(s.Type), "status": string(s.Status)}
		if s.Err != nil {
			entry["error"] = s.Err.Error()
		}

		details = append(details, entry)
	}

	data, err := json.Marshal(map[string]any{"status": status, "adapters": details})
	if err != nil {
		writeHealthJSON(w, status)
		return
	}

	writeOrDiscard(w, data)
}

func writeOrDiscard(w io.Writer, data []byte) {
	_, err := w.Write(data)
	if err != nil {
		return
	}
}
