// Package health reports whether the assistant's backends can answer.
//
// Two HTTP probes are exposed:
//
//   - /healthz — liveness. A process that can serve HTTP is alive, so this
//     always returns 200.
//   - /readyz  — readiness. Runs every registered [Checker] — the document
//     store, the embedding backends, the model chain — and returns 503
//     until all of them pass. A cold Ollama model or an unreachable
//     Postgres shows up here, not as a failed chat request.
//
// Responses are JSON with a top-level "status" ("ok" or "fail") and a
// "checks" map, e.g. {"status":"fail","checks":{"database":"ok",
// "llm":"fail: connection refused"}}.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check. Five seconds is enough for
// a Ping or a one-token completion against a warm backend; anything slower
// is not ready.
const checkTimeout = 5 * time.Second

// Checker probes one backend. Check returns nil when the backend can serve
// and an error describing the failure otherwise; it must respect context
// cancellation.
type Checker struct {
	// Name labels the backend in the JSON response and in warm-up logs
	// ("database", "embeddings", "llm", "whisper").
	Name string

	Check func(ctx context.Context) error
}

// Handler serves the /healthz and /readyz probes. The checker list is fixed
// at construction; the Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] over the given checkers. Checks run sequentially
// in the order given, so list the cheap ones (database Ping) before the
// expensive ones (model completion).
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Probe runs every checker once and returns the failures keyed by checker
// name. An empty map means every backend answered. Each check gets its own
// [checkTimeout] deadline derived from ctx.
//
// Besides backing Readyz, Probe is run once at startup to force model
// loading before the first real question arrives.
func (h *Handler) Probe(ctx context.Context) map[string]error {
	failed := make(map[string]error)
	for _, c := range h.checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(cctx)
		cancel()
		if err != nil {
			failed[c.Name] = err
		}
	}
	return failed
}

// Healthz is the liveness probe. Always 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, payload{Status: "ok"})
}

// Readyz is the readiness probe: 200 when every backend passes, 503 with
// the per-backend failures otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	failed := h.Probe(r.Context())

	checks := make(map[string]string, len(h.checkers))
	for _, c := range h.checkers {
		if err, ok := failed[c.Name]; ok {
			checks[c.Name] = "fail: " + err.Error()
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := payload{Status: "ok", Checks: checks}
	status := http.StatusOK
	if len(failed) > 0 {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// payload is the JSON body of both probes.
type payload struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
