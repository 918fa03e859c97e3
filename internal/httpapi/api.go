package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"agenda.org/internal/auth"
	"agenda.org/internal/event"
	"agenda.org/internal/obs"
	"agenda.org/internal/stream"
)

// ReadyProbe pings the backing database for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer in front of the event service.
type API struct {
	mux      *http.ServeMux
	svc      *event.Service
	resolver *auth.Resolver
	hub      *stream.Hub
	probe    ReadyProbe
	version  string

	exchangeSecret string
	corsOrigin     string
	baseURL        string
	rateBurst      int
	ratePerSec     float64
}

// Options carries the optional collaborators and knobs for New.
type Options struct {
	Resolver *auth.Resolver
	Hub      *stream.Hub
	Probe    ReadyProbe
	Version  string

	ExchangeSecret string
	CORSOrigin     string
	BaseURL        string
	RateBurst      int
	RatePerSec     float64
}

func New(svc *event.Service, opts Options) *API {
	a := &API{
		mux:            http.NewServeMux(),
		svc:            svc,
		resolver:       opts.Resolver,
		hub:            opts.Hub,
		probe:          opts.Probe,
		version:        opts.Version,
		exchangeSecret: opts.ExchangeSecret,
		corsOrigin:     opts.CORSOrigin,
		baseURL:        opts.BaseURL,
		rateBurst:      opts.RateBurst,
		ratePerSec:     opts.RatePerSec,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 40
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 20
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.healthz)
	a.mux.HandleFunc("/readyz", a.readyz)
	a.mux.HandleFunc("/v1/info", a.info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// sessions
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/exchange", a.handleExchange)

	// events
	a.mux.HandleFunc("/v1/events", a.handleEventsCollection)
	a.mux.HandleFunc("/v1/events/", a.handleEventResource)
	a.mux.HandleFunc("/v1/tags", a.handleTags)

	// users
	a.mux.HandleFunc("/v1/users", a.handleUsersCollection)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	// live updates + shared links
	a.mux.HandleFunc("/v1/stream", a.handleStream)
	a.mux.HandleFunc("/e/", a.handleShortLink)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler chain for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = a.withAuth(h)
	h = CORS(h, a.corsOrigin)
	h = SecurityHeaders(h)
	h = RequestID(h)
	h = Logging(h)
	return obs.Instrument(h)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "agenda-api",
		"version": a.version,
	})
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "agenda-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
