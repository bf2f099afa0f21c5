package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mochilink/mochi-sync/internal/api/handler"
	"github.com/mochilink/mochi-sync/internal/api/middleware"
	"github.com/mochilink/mochi-sync/internal/bridge"
	"github.com/mochilink/mochi-sync/internal/listsync"
	"github.com/mochilink/mochi-sync/internal/storage"
)

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(
	store storage.Storage,
	engine *listsync.Engine,
	bridges *bridge.Registry,
	bootstrapKey string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// API reference (no auth required)
	r.Get("/docs", handler.Docs)

	// API routes (auth required, JSON Content-Type)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentType)
		r.Use(middleware.Auth(store, bootstrapKey))

		// API Keys
		keyHandler := handler.NewAPIKeyHandler(store)
		r.Post("/keys", keyHandler.Create)
		r.Get("/keys", keyHandler.List)
		r.Delete("/keys/{id}", keyHandler.Delete)

		// Engine-wide introspection and fleet-wide sync control
		syncHandler := handler.NewSyncHandler(engine)
		r.Get("/stats", syncHandler.Stats)
		r.Post("/sync", syncHandler.ForceAll)
		r.Get("/sync/status", syncHandler.StatusAll)

		// Audit log
		auditHandler := handler.NewAuditHandler(store)
		r.Get("/audit", auditHandler.List)

		// Server registry
		serverHandler := handler.NewServerHandler(store, bridges)
		r.Post("/servers", serverHandler.Create)
		r.Get("/servers", serverHandler.List)

		// Server-scoped resources
		r.Route("/servers/{server_id}", func(r chi.Router) {
			r.Get("/", serverHandler.Get)
			r.Put("/", serverHandler.Update)
			r.Delete("/", serverHandler.Delete)

			// Sync control
			r.Post("/sync", syncHandler.Force)
			r.Get("/sync/status", syncHandler.Status)

			// Whitelist
			wlHandler := handler.NewWhitelistHandler(engine)
			r.Get("/whitelist", wlHandler.List)
			r.Post("/whitelist", wlHandler.Add)
			r.Get("/whitelist/pending", wlHandler.Pending)
			r.Get("/whitelist/{player_id}", wlHandler.Check)
			r.Delete("/whitelist/{player_id}", wlHandler.Remove)

			// Bans
			banHandler := handler.NewBanHandler(engine)
			r.Get("/bans", banHandler.List)
			r.Post("/bans", banHandler.Create)
			r.Get("/bans/pending", banHandler.Pending)
			r.Get("/bans/{ban_type}/{target}", banHandler.Check)
			r.Delete("/bans/{ban_type}/{target}", banHandler.Delete)
		})
	})

	return r
}
