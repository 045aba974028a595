package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"passgate.org/internal/access"
	"passgate.org/internal/auth"
	"passgate.org/internal/obs"
	"passgate.org/internal/stream"
)

const serviceName = "passgate-api"

// Pinger is satisfied by every repository.
type Pinger interface {
	Ping(ctx context.Context) error
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe reports readiness by pinging the store.
type ReadyProbe struct {
	Store Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	return rp.Store.Ping(ctx)
}

// Options wires the API to its collaborators.
type Options struct {
	Engine     *access.Engine
	Signer     *auth.Signer
	Stream     *stream.Stream
	Ready      readinessChecker
	Version    string
	RateBurst  int
	RatePerSec float64
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	engine     *access.Engine
	signer     *auth.Signer
	stream     *stream.Stream
	readyProbe readinessChecker
	version    string
	rateBurst  int
	ratePerSec float64
}

func New(opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		engine:     opts.Engine,
		signer:     opts.Signer,
		stream:     opts.Stream,
		readyProbe: opts.Ready,
		version:    opts.Version,
		rateBurst:  opts.RateBurst,
		ratePerSec: opts.RatePerSec,
	}
	if a.readyProbe == nil {
		a.readyProbe = ReadyProbe{}
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/auth/login", a.handleLogin)

	admin := []auth.Role{auth.RoleAdmin}

	// transits
	a.mux.Handle("POST /v1/transits", a.protect(a.handleRecordTransit, false, auth.RoleAdmin, auth.RolePassage))
	a.mux.Handle("GET /v1/transits", a.protect(a.handleListTransits, false, admin...))
	a.mux.Handle("GET /v1/transits/stream", a.protect(a.Stream, false, admin...))
	a.mux.Handle("GET /v1/transits/{id}", a.protect(a.handleGetTransit, true))
	a.mux.Handle("PUT /v1/transits/{id}", a.protect(a.handleCorrectTransit, false, admin...))
	a.mux.Handle("DELETE /v1/transits/{id}", a.protect(a.handleDeleteTransit, false, admin...))

	// badges
	a.mux.Handle("GET /v1/badges/{badge}/stats", a.protect(a.handleBadgeStats, true))
	a.mux.Handle("GET /v1/badges/suspended", a.protect(a.handleSuspended, false, admin...))
	a.mux.Handle("POST /v1/badges/reactivate", a.protect(a.handleReactivate, false, admin...))

	// grants
	a.mux.Handle("POST /v1/authorizations", a.protect(a.handleGrant, false, admin...))
	a.mux.Handle("DELETE /v1/authorizations/{badge}/{passage}", a.protect(a.handleRevoke, false, admin...))

	// reports
	a.mux.Handle("GET /v1/reports/passages", a.protect(a.handlePassageReport, true, auth.RoleAdmin, auth.RoleUser))
	a.mux.Handle("GET /v1/reports/users", a.protect(a.handleUserReport, true, auth.RoleAdmin, auth.RoleUser))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "NotFound", "resource not found")
	})

	return a
}

// Handler returns the mux wrapped with the full middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		obs.Warn("readiness check failed", map[string]any{"error": err})
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	}
	if a.engine != nil {
		info["max_unauthorized_attempts"] = a.engine.MaxUnauthorizedAttempts()
		info["suspension_duration_seconds"] = int64(a.engine.SuspensionDuration() / time.Second)
		info["suspension_clock"] = a.engine.SuspensionClock()
	}
	writeJSON(w, http.StatusOK, info)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
