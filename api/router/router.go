package router

import (
	"log/slog"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/offboardpro/offboardpro/api/auth"
	bootstrap "github.com/offboardpro/offboardpro/api/bootstrap"
	"github.com/offboardpro/offboardpro/api/handlers"
)

// NewRouter returns the central HTTP router for the process-wide app.
func NewRouter() http.Handler {
	// Initialize app dependencies (non-fatal if it fails here; requests re-check).
	if err := bootstrap.Ensure(); err != nil {
		slog.Error("bootstrap ensure failed", "err", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		})
	}
	return New(bootstrap.Get())
}

// New maps the services of a onto HTTP endpoints on a grpc-gateway mux.
func New(a *bootstrap.App) http.Handler {
	h := handlers.Handlers{
		Billing:      a.Billing,
		Entitlements: a.Entitlements,
		Tracker:      a.Tracker,
		Account:      a.Account,
		Health:       a.GRPC,
	}
	user := func(next runtime.HandlerFunc) runtime.HandlerFunc { return auth.RequireUser(a.Verifier, next) }
	optional := func(next runtime.HandlerFunc) runtime.HandlerFunc { return auth.OptionalUser(a.Verifier, next) }
	metricsHandler := promhttp.Handler()

	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{http.MethodPost, "/api/razorpay", optional(h.CreateOrder)},
		{http.MethodPost, "/api/orders", user(h.CreateOrder)},
		{http.MethodPost, "/api/payments/confirm", user(h.ConfirmPayment)},
		{http.MethodPost, "/api/payments/webhook", h.Webhook},
		{http.MethodGet, "/api/entitlement", user(h.GetEntitlement)},
		{http.MethodGet, "/api/entitlement/stream", auth.RequireStreamUser(a.Verifier, a.Hub.HandleWebSocket)},
		{http.MethodGet, "/api/items", user(h.ListItems)},
		{http.MethodPost, "/api/items", user(h.CreateItem)},
		{http.MethodDelete, "/api/items", user(h.BulkDeleteItems)},
		{http.MethodPost, "/api/items/{id}/toggle", user(h.ToggleItem)},
		{http.MethodDelete, "/api/items/{id}", user(h.DeleteItem)},
		{http.MethodGet, "/api/shared/{id}", h.SharedItem},
		{http.MethodDelete, "/api/account", user(h.DeleteAccount)},
		{http.MethodGet, "/healthz", h.Healthz},
		{http.MethodGet, "/metrics", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			metricsHandler.ServeHTTP(w, r)
		}},
	}

	mux := runtime.NewServeMux()
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.handler); err != nil {
			slog.Error("failed to register route", "method", rt.method, "pattern", rt.pattern, "err", err)
		}
	}

	origins := []string{a.Config.FrontendOrigin}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: a.Config.FrontendOrigin != "*",
	}).Handler(mux)
}
