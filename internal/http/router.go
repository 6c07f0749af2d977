package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sjc1990app/server/internal/auth"
	"github.com/sjc1990app/server/internal/http/handlers"
	"github.com/sjc1990app/server/internal/middleware"
	"go.uber.org/zap"
)

// Access is the authorization a route requires
type Access int

const (
	Public Access = iota
	Authenticated
	SelfOrAdmin
	AdminOnly
)

// Route is one entry of the route table
type Route struct {
	Method  string
	Pattern string
	Access  Access
	Limiter *middleware.RateLimiter
	Handler http.HandlerFunc
}

// Handlers groups the endpoint handlers served by the router
type Handlers struct {
	Auth       *handlers.AuthHandler
	Users      *handlers.UserHandler
	Classrooms *handlers.ClassroomHandler
}

// Limiters are the per-IP limiters guarding the unauthenticated auth endpoints
type Limiters struct {
	Register *middleware.RateLimiter
	Verify   *middleware.RateLimiter
}

// Routes returns the route table
func Routes(h Handlers, l Limiters) []Route {
	return []Route{
		{http.MethodPost, "/auth/register", Public, l.Register, h.Auth.HandleRegister},
		{http.MethodPost, "/auth/verify", Public, l.Verify, h.Auth.HandleVerify},
		{http.MethodGet, "/auth/pending-approvals", AdminOnly, nil, h.Auth.HandlePendingApprovals},
		{http.MethodPost, "/auth/approve/{userId}", AdminOnly, nil, h.Auth.HandleApprove},
		{http.MethodPost, "/auth/reject/{userId}", AdminOnly, nil, h.Auth.HandleReject},

		{http.MethodPut, "/users/{userId}/profile", SelfOrAdmin, nil, h.Users.HandleUpdateProfile},
		{http.MethodPost, "/users/{userId}/profile-photo", SelfOrAdmin, nil, h.Users.HandleRequestPhotoUpload},
		{http.MethodPut, "/users/{userId}/profile-photo-complete", SelfOrAdmin, nil, h.Users.HandleCompletePhotoUpload},
		{http.MethodGet, "/users/{userId}/preferences", SelfOrAdmin, nil, h.Users.HandleGetPreferences},
		{http.MethodPut, "/users/{userId}/preferences", SelfOrAdmin, nil, h.Users.HandleUpdatePreferences},
		{http.MethodPost, "/users/{userId}/classrooms", SelfOrAdmin, nil, h.Users.HandleAssignClassrooms},
		{http.MethodGet, "/users/{userId}/classrooms", SelfOrAdmin, nil, h.Users.HandleListUserClassrooms},

		{http.MethodGet, "/classrooms", Public, nil, h.Classrooms.HandleList},
		{http.MethodGet, "/classrooms/{classroomId}/members", Authenticated, nil, h.Classrooms.HandleMembers},
	}
}

// RouterConfig holds everything NewRouter wires together
type RouterConfig struct {
	Routes   []Route
	Tokens   *auth.JWTService
	Log      *zap.Logger
	Registry *prometheus.Registry
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	metrics := middleware.NewMetrics(cfg.Registry)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(cfg.Log))
	r.Use(chimw.Recoverer)
	r.Use(metrics.Handler)

	r.Get("/health", handlers.NewHealthHandler(cfg.Log).ServeHTTP)
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))

	authenticate := middleware.Authenticate(cfg.Tokens)
	for _, route := range cfg.Routes {
		var chain []func(http.Handler) http.Handler
		if route.Limiter != nil {
			chain = append(chain, middleware.RateLimit(route.Limiter, middleware.GetIPKey))
		}
		switch route.Access {
		case Authenticated:
			chain = append(chain, authenticate)
		case SelfOrAdmin:
			chain = append(chain, authenticate, middleware.RequireSelfOrAdmin)
		case AdminOnly:
			chain = append(chain, authenticate, middleware.RequireAdmin)
		}
		r.With(chain...).Method(route.Method, route.Pattern, route.Handler)
	}

	return r
}
