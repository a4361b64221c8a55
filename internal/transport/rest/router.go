package rest

import (
	"io/fs"
	"net/http"
	"time"

	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/security"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterDeps struct {
	Cache   domain.CacheRepository
	Handler *Handler

	// Verifier nil leaves the read surface open (dev / trusted network).
	Verifier  security.AccessTokenVerifier
	JWTIssuer string

	// Assets holds tracker.js; nil disables the /tracker.js route.
	Assets fs.FS

	RateLimitEnabled bool
	RateLimit        int
	RateLimitWindow  time.Duration
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Cache == nil {
		panic("rest.NewRouter: nil cache")
	}
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}

	r := chi.NewRouter()

	// Request ID + structured access log
	r.Use(RequestID)
	r.Use(HTTPLogger)

	// Panic recovery
	r.Use(middleware.Recoverer)

	// Cross-cutting
	r.Use(SecurityHeaders)
	r.Use(CORS)

	r.Get("/healthz", d.Handler.Health)

	if d.Assets != nil {
		r.Get("/tracker.js", func(w http.ResponseWriter, req *http.Request) {
			http.ServeFileFS(w, req, d.Assets, "tracker.js")
		})
	}

	r.Route("/traffic", func(r chi.Router) {
		// Throttle the API only; /healthz and /tracker.js stay reachable for
		// probes and page loads even when a shared NAT is being throttled.
		if d.RateLimitEnabled {
			r.Use(RateLimitMiddleware(d.Cache, d.RateLimit, d.RateLimitWindow))
		}

		// collection: open, the tracker posts from anonymous browsers
		r.Post("/record-visit", d.Handler.RecordVisit)
		r.Post("/update-duration", d.Handler.UpdateDuration)

		// dashboard reads, optionally token-gated
		r.Group(func(r chi.Router) {
			if d.Verifier != nil {
				r.Use(AuthMiddleware(d.Verifier, d.JWTIssuer))
			}
			r.Get("/stats", d.Handler.Stats)
			r.Get("/insights", d.Handler.Insights)
		})
	})

	return r
}
