package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"relive.org/internal/audit"
	"relive.org/internal/auth"
	"relive.org/internal/obs"
	"relive.org/internal/relief"
)

// ReadyProbe reports whether the API's backing store is reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config carries the HTTP-layer knobs.
type Config struct {
	Version       string
	RateBurst     int
	RatePerSecond int
	MaxBodyBytes  int64
}

// API is the HTTP layer. All routes live under /api except the operational
// endpoints (/healthz, /readyz, /metrics).
type API struct {
	router     chi.Router
	auth       *auth.Service
	relief     relief.Service
	audit      *audit.Store
	readyProbe ReadyProbe
	validate   *validator.Validate
	log        *zap.Logger
	version    string

	rateBurst     int
	ratePerSecond int
	maxBodyBytes  int64
}

func New(authSvc *auth.Service, reliefSvc relief.Service, auditStore *audit.Store, rp ReadyProbe, cfg Config) *API {
	a := &API{
		router:     chi.NewRouter(),
		auth:       authSvc,
		relief:     reliefSvc,
		audit:      auditStore,
		readyProbe: rp,
		validate:   validator.New(),
		log:        obs.Logger(),
		version:    cfg.Version,

		rateBurst:     cfg.RateBurst,
		ratePerSecond: cfg.RatePerSecond,
		maxBodyBytes:  cfg.MaxBodyBytes,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSecond <= 0 {
		a.ratePerSecond = 10
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}

	r := a.router

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", a.Healthz)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", a.handleRegister)
			r.Post("/login", a.handleLogin)
			r.Post("/refresh", a.handleRefresh)
			r.Post("/logout", a.handleLogout)
		})

		// Public listings.
		r.Get("/requests", a.handleListOpenRequests)
		r.Get("/volunteer-opportunities", a.handleListOpportunities)

		// Token-gated surface.
		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)

			r.Get("/me", a.handleMe)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(auth.RoleShelter))
				r.Post("/requests", a.handleCreateRequest)
				r.Delete("/requests/{id}", a.handleDeleteRequest)
				r.Get("/shelter/requests", a.handleShelterRequests)
				r.Post("/shelter/volunteer-opportunities", a.handleCreateOpportunity)
				r.Delete("/volunteer-opportunities/{id}", a.handleDeleteOpportunity)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireRole(auth.RoleDonor))
				r.Post("/requests/{id}/fulfill", a.handleFulfillRequest)
				r.Post("/donations", a.handleCreateDonation)
				r.Get("/donor/donations", a.handleDonorDonations)
				r.Delete("/donations/{id}", a.handleDeleteDonation)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireRole(auth.RoleVolunteer))
				r.Post("/volunteer-opportunities/{id}/apply", a.handleApply)
				r.Get("/volunteer/tasks", a.handleVolunteerTasks)
			})
		})
	})

	return a
}

// Handler wraps the router with the full middleware chain, metrics outermost
// so every request is counted.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSecond)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(a.log)(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "relive-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) auditEvent(r *http.Request, action, resourceType, resourceID string, meta map[string]any) {
	_ = audit.LogEvent(r.Context(), action, meta)
	if a.audit == nil {
		return
	}
	entry := &audit.Entry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     meta,
	}
	if err := a.audit.Append(r.Context(), entry); err != nil {
		a.log.Warn("audit append failed", zap.String("action", action), zap.Error(err))
	}
}
