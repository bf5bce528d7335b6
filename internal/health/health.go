// Package health serves the liveness and readiness probes of the voice
// front end.
//
//   - GET /healthz reports that the process is serving HTTP, together with
//     the turn controller's current mode and state.
//   - GET /readyz runs every registered [Checker] concurrently and answers
//     200 only when all of them pass.
//
// Both endpoints answer with a JSON object carrying a top-level "status"
// ("ok" or "fail").
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/echovault/internal/resilience"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the dependency
// is usable.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Info   map[string]string `json:"info,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Option configures a Handler.
type Option func(*Handler)

// WithInfo adds the key/value pairs returned by fn to every /healthz answer.
func WithInfo(fn func() map[string]string) Option {
	return func(h *Handler) { h.info = fn }
}

// WithCheckers registers readiness checks.
func WithCheckers(checkers ...Checker) Option {
	return func(h *Handler) { h.checkers = append(h.checkers, checkers...) }
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
	info     func() map[string]string
}

// New returns a Handler.
func New(opts ...Option) *Handler {
	h := &Handler{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	res := result{Status: "ok"}
	if h.info != nil {
		res.Info = h.info()
	}
	writeJSON(w, http.StatusOK, res)
}

// Readyz answers 200 when every checker passes and 503 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	errs := make([]error, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			errs[i] = c.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK
	for i, c := range h.checkers {
		if errs[i] != nil {
			res.Checks[c.Name] = "fail: " + errs[i].Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// FallbackChecker reports a provider chain as unready when the breaker of
// every backend in it is open.
func FallbackChecker[T any](g *resilience.FallbackGroup[T]) Checker {
	return Checker{
		Name: g.Kind(),
		Check: func(context.Context) error {
			var open []string
			for _, name := range g.Names() {
				if g.Breaker(name).State() != resilience.StateOpen {
					return nil
				}
				open = append(open, name)
			}
			return fmt.Errorf("all backends unavailable: %s", strings.Join(open, ", "))
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
