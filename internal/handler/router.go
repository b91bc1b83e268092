package handler

import (
	"net/http"
	"time"

	"github.com/franciscofreire-cloud/lista-compras/internal/infra/observability"
	"github.com/franciscofreire-cloud/lista-compras/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// Routes follow the API contract the Lista Rápida frontend consumes.
func NewRouter(listSvc *service.ListService, profileSvc *service.ProfileService, authSvc *service.AuthService, metrics *observability.Metrics, allowedOrigins []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.MetricsMiddleware(metrics))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 1. 🔐 Autenticação
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authRegisterHandler(authSvc, logger))
			r.Post("/login", authLoginHandler(authSvc, logger))

			r.Group(func(r chi.Router) {
				r.Use(JWTAuthMiddleware(authSvc, logger))
				r.Post("/logout", authLogoutHandler(authSvc, logger))
			})
		})

		// =============================================
		// 2. 📊 Métricas
		// =============================================
		r.Get("/metrics/sync", syncMetricsHandler(metrics))

		// Everything below requires a valid session.
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(authSvc, logger))

			// =============================================
			// 3. 🛒 Lista atual
			// =============================================
			r.Route("/list", func(r chi.Router) {
				r.Get("/", getListHandler(listSvc, logger))
				r.Post("/items", addItemHandler(listSvc, logger))
				r.Put("/items/{itemID}", updateItemHandler(listSvc, logger))
				r.Delete("/items/{itemID}", removeItemHandler(listSvc, logger))
				r.Put("/balance", setBalanceHandler(listSvc, logger))
				r.Post("/finalize", finalizeHandler(listSvc, logger))
				r.Post("/draft", saveDraftHandler(listSvc, logger))
			})

			// =============================================
			// 4. 🗂 Histórico de compras
			// =============================================
			r.Route("/history", func(r chi.Router) {
				r.Get("/", listHistoryHandler(listSvc, logger))
				r.Get("/{recordID}", getHistoryRecordHandler(listSvc, logger))
				r.Delete("/{recordID}", deleteHistoryRecordHandler(listSvc, logger))
				r.Post("/{recordID}/resume", resumeHandler(listSvc, logger))
			})

			// =============================================
			// 5. 👤 Perfil & tema
			// =============================================
			r.Route("/profile", func(r chi.Router) {
				r.Get("/", getProfileHandler(profileSvc, logger))
				r.Put("/", updateProfileHandler(profileSvc, logger))
				r.Post("/theme", toggleThemeHandler(profileSvc, logger))
			})
		})
	})

	return r
}

// ============================================================
// Operational handlers
// ============================================================

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}
}

func syncMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetSyncSnapshot())
	}
}
