package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/cors"
	"github.com/unrolled/secure"

	"github.com/erazemk/arsenal/internal/metrics"
	"github.com/erazemk/arsenal/internal/model"
)

// Options configures the API router.
type Options struct {
	JWTSecret string
	TokenTTL  time.Duration
	// CORSOrigins lists the browser origins allowed to call the API.
	CORSOrigins []string
	// AuthRateLimit caps login and registration attempts per IP per minute.
	// Zero disables the limit.
	AuthRateLimit int
	Production    bool
	Metrics       *metrics.Metrics
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, opts Options) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: opts.JWTSecret, TokenTTL: opts.TokenTTL}
	usersHandler := &UsersHandler{DB: db}
	basesHandler := &BasesHandler{DB: db}
	assetsHandler := &AssetsHandler{DB: db}
	transfersHandler := &TransfersHandler{DB: db, Metrics: opts.Metrics}
	assignmentsHandler := &AssignmentsHandler{DB: db, Metrics: opts.Metrics}
	purchasesHandler := &PurchasesHandler{DB: db, Metrics: opts.Metrics}
	dashboardHandler := &DashboardHandler{DB: db}

	authMW := AuthMiddleware(opts.JWTSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireCommand := RequireRole(model.RoleAdmin, model.RoleBaseCommander)
	requireStaff := RequireRole(model.RoleAdmin, model.RoleBaseCommander, model.RoleLogisticsOfficer)
	requireLogistics := RequireRole(model.RoleAdmin, model.RoleLogisticsOfficer)

	limit := func(h http.HandlerFunc) http.Handler { return h }
	if opts.AuthRateLimit > 0 {
		limiter := httprate.Limit(opts.AuthRateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				jsonError(w, http.StatusTooManyRequests, "too many requests, try again later")
			}),
		)
		limit = func(h http.HandlerFunc) http.Handler { return limiter(h) }
	}
	authed := func(h http.HandlerFunc) http.Handler { return authMW(h) }

	// Public.
	mux.Handle("POST /api/auth/register", limit(authHandler.Register))
	mux.Handle("POST /api/auth/login", limit(authHandler.Login))
	mux.HandleFunc("GET /api/auth/verify", authHandler.Verify)

	// Own account.
	mux.Handle("GET /api/auth/me", authed(authHandler.Me))
	mux.Handle("PUT /api/auth/profile", authed(authHandler.UpdateProfile))
	mux.Handle("POST /api/auth/logout", authed(authHandler.Logout))

	// Bases: read (all roles), write (admin and commanders).
	mux.Handle("GET /api/bases", authed(basesHandler.List))
	mux.Handle("GET /api/bases/{id}", authed(basesHandler.Get))
	mux.Handle("POST /api/bases", authMW(requireCommand(http.HandlerFunc(basesHandler.Create))))
	mux.Handle("PUT /api/bases/{id}", authMW(requireCommand(http.HandlerFunc(basesHandler.Update))))
	mux.Handle("DELETE /api/bases/{id}", authMW(requireCommand(http.HandlerFunc(basesHandler.Delete))))

	// Assets: base scope is checked per asset.
	mux.Handle("GET /api/assets", authed(assetsHandler.List))
	mux.Handle("GET /api/assets/types", authed(assetsHandler.Types))
	mux.Handle("GET /api/assets/metrics", authed(assetsHandler.Metrics))
	mux.Handle("GET /api/assets/metrics/summary", authed(assetsHandler.Summary))
	mux.Handle("POST /api/assets", authed(assetsHandler.Create))
	mux.Handle("GET /api/assets/{id}", authed(assetsHandler.Get))
	mux.Handle("PUT /api/assets/{id}", authed(assetsHandler.Update))
	mux.Handle("DELETE /api/assets/{id}", authed(assetsHandler.Delete))
	mux.Handle("GET /api/assets/{id}/movements", authed(assetsHandler.Movements))
	mux.Handle("GET /api/assets/{id}/metrics", authed(assetsHandler.PeriodMetrics))
	mux.Handle("PUT /api/assets/{id}/image", authed(assetsHandler.UploadImage))
	mux.Handle("GET /api/assets/{id}/image", authed(assetsHandler.GetImage))

	// Transfers.
	mux.Handle("GET /api/transfers", authed(transfersHandler.List))
	mux.Handle("POST /api/transfers", authed(transfersHandler.Create))
	mux.Handle("GET /api/transfers/{id}", authed(transfersHandler.Get))
	mux.Handle("PUT /api/transfers/{id}", authed(transfersHandler.Update))
	mux.Handle("PATCH /api/transfers/{id}/status", authed(transfersHandler.SetStatus))
	mux.Handle("DELETE /api/transfers/{id}", authed(transfersHandler.Delete))

	// Assignments.
	mux.Handle("GET /api/assignments", authed(assignmentsHandler.List))
	mux.Handle("GET /api/assignments/metrics/summary", authed(assignmentsHandler.Summary))
	mux.Handle("GET /api/assignments/{id}", authed(assignmentsHandler.Get))
	mux.Handle("POST /api/assignments", authMW(requireStaff(http.HandlerFunc(assignmentsHandler.Create))))
	mux.Handle("PUT /api/assignments/{id}", authMW(requireStaff(http.HandlerFunc(assignmentsHandler.Update))))
	mux.Handle("PATCH /api/assignments/{id}/return", authMW(requireLogistics(http.HandlerFunc(assignmentsHandler.Return))))
	mux.Handle("PATCH /api/assignments/{id}/status", authMW(requireLogistics(http.HandlerFunc(assignmentsHandler.SetStatus))))
	mux.Handle("DELETE /api/assignments/{id}", authMW(requireStaff(http.HandlerFunc(assignmentsHandler.Delete))))

	// Purchases.
	mux.Handle("GET /api/purchases", authed(purchasesHandler.List))
	mux.Handle("GET /api/purchases/{id}", authed(purchasesHandler.Get))
	mux.Handle("POST /api/purchases", authMW(requireStaff(http.HandlerFunc(purchasesHandler.Create))))
	mux.Handle("PATCH /api/purchases/{id}/status", authMW(requireCommand(http.HandlerFunc(purchasesHandler.SetStatus))))

	// Users: mutations are admin only.
	mux.Handle("GET /api/users", authMW(requireCommand(http.HandlerFunc(usersHandler.List))))
	mux.Handle("GET /api/users/me", authed(authHandler.Me))
	mux.Handle("GET /api/users/{id}", authed(usersHandler.Get))
	mux.Handle("GET /api/users/{id}/bases", authed(usersHandler.Bases))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))
	mux.Handle("PATCH /api/users/{id}/base", authMW(requireAdmin(http.HandlerFunc(usersHandler.SetBase))))
	mux.Handle("POST /api/users/{id}/assign-base", authMW(requireAdmin(http.HandlerFunc(usersHandler.AssignBase))))
	mux.Handle("DELETE /api/users/{id}/remove-base/{baseId}", authMW(requireAdmin(http.HandlerFunc(usersHandler.RemoveBase))))
	mux.Handle("PUT /api/users/{id}/set-primary-base", authMW(requireAdmin(http.HandlerFunc(usersHandler.SetPrimaryBase))))

	// Dashboard: read only aggregation.
	mux.Handle("GET /api/dashboard", authed(dashboardHandler.Overview))
	mux.Handle("GET /api/dashboard/stats", authed(dashboardHandler.Stats))
	mux.Handle("GET /api/dashboard/activities", authed(dashboardHandler.Activities))
	mux.Handle("GET /api/dashboard/metrics", authed(dashboardHandler.Metrics))

	mux.Handle("GET /metrics", opts.Metrics.Handler())

	return chain(opts.Metrics.Middleware(mux),
		securityHeaders(opts.Production),
		cors.New(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           86400,
		}).Handler,
		middleware.RequestID,
		middleware.RealIP,
		LoggingMiddleware,
		Recoverer,
	)
}

// chain wraps h so that the first middleware runs outermost.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func securityHeaders(production bool) func(http.Handler) http.Handler {
	sm := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        production,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:      !production,
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sm.Process(w, r); err != nil {
				slog.Warn("secure headers blocked request", "error", err)
				jsonError(w, http.StatusBadRequest, "request blocked")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
