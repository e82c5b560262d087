package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/ccrelay/nexus/internal/auth/google"
	"github.com/ccrelay/nexus/internal/db"
	"github.com/ccrelay/nexus/internal/dispatcher"
	"github.com/ccrelay/nexus/internal/pool"
	"github.com/ccrelay/nexus/internal/proxy/handlers"
	"github.com/ccrelay/nexus/internal/proxy/middleware"
	"github.com/ccrelay/nexus/internal/proxy/monitor"
	"github.com/ccrelay/nexus/internal/router"
	"github.com/ccrelay/nexus/internal/upstream"
)

func main() {
	database, err := db.InitDB("nexus.db")
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if google.IsUsingDefaultOAuthCredentials() {
		log.Printf("⚠️ OAuth is using built-in default client credentials. Set GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET for stricter credential governance.")
	}

	credentials, err := pool.LoadCredentials(database)
	if err != nil {
		log.Fatalf("Failed to load accounts: %v", err)
	}
	log.Printf("📦 Loaded %d active account(s)", len(credentials))

	refresher := pool.NewGormRefresher(database)
	accountPool := pool.New(credentials, refresher)

	transportFactory := upstream.NewTransportFactory(upstream.ProxyConfig{})
	upstreamClient := upstream.NewClient(transportFactory)

	proxyMonitor := monitor.NewProxyMonitor(database)

	customMapping := router.NewCustomMapping(database)
	modelRouter := router.New(customMapping, router.DefaultOpenAICompat(), router.DefaultAnthropicCompat())

	requestDispatcher := dispatcher.New(accountPool, upstreamClient)

	go backgroundRefreshLoop(accountPool)

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	adminPassword := os.Getenv("NEXUS_ADMIN_PASSWORD")
	optionalAdminAuth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminPassword == "" {
				next.ServeHTTP(w, r)
				return
			}
			_, pass, ok := r.BasicAuth()
			if !ok || pass != adminPassword {
				w.Header().Set("WWW-Authenticate", `Basic realm="Nexus Admin"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	// ============================================
	// Public / dashboard routes
	// ============================================

	r.With(optionalAdminAuth).Get("/", handlers.DashboardHandler(database))
	r.With(optionalAdminAuth).Get("/monitor", handlers.MonitorPageHandler(proxyMonitor))
	r.With(optionalAdminAuth).Get("/monitor/history", handlers.MonitorHistoryPageHandler(proxyMonitor))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/auth/google/login", google.HandleLoginWithDB(database))
	r.Get("/auth/google/callback", google.HandleCallback(database))

	r.Route("/api", func(r chi.Router) {
		r.Use(optionalAdminAuth)

		r.Get("/accounts", handlers.AccountsAPIHandler(database))
		r.Get("/accounts/{id}/models", handlers.AccountModelsHandler(accountPool, upstreamClient))
		r.Post("/accounts/{id}/promote", handlers.SetPrimaryAccountHandler(database))
		r.Post("/accounts/{id}/refresh", handlers.RefreshAccountHandler(accountPool))
		r.Post("/accounts/{id}/active", handlers.UpdateAccountActiveHandler(database, accountPool))

		r.Get("/config/apikey", handlers.GetAPIKeyHandler(database))
		r.Post("/config/apikey/regenerate", handlers.RegenerateAPIKeyHandler(database))
		r.Get("/support-status", handlers.SupportStatusHandler())

		r.Get("/model-routes", handlers.ModelRoutesHandler(database))
		r.Post("/model-routes", handlers.CreateModelRouteHandler(database, customMapping))
		r.Put("/model-routes/{id}", handlers.UpdateModelRouteHandler(database, customMapping))
		r.Delete("/model-routes/{id}", handlers.DeleteModelRouteHandler(database, customMapping))
		r.Post("/model-routes/reset", handlers.ResetModelRoutesHandler(database, customMapping))

		r.Get("/version", handlers.VersionHandler())

		r.Get("/request-logs", handlers.GetRequestLogsHandler(proxyMonitor))
		r.Get("/request-logs/history", handlers.GetRequestLogsHistoryHandler(proxyMonitor))
		r.Get("/request-stats", handlers.GetRequestStatsHandler(proxyMonitor))
		r.Post("/request-logs/clear", handlers.ClearRequestLogsHandler(proxyMonitor))
		r.Post("/request-logs/toggle", handlers.ToggleLoggingHandler(proxyMonitor))
		r.Get("/request-logs/status", handlers.GetLoggingStatusHandler(proxyMonitor))
	})

	// ============================================
	// Protocol surfaces (API key required)
	// ============================================

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(database))
		r.Post("/chat/completions", handlers.OpenAIChatHandler(requestDispatcher, modelRouter, proxyMonitor))
		r.Post("/completions", handlers.LegacyCompletionsHandler(requestDispatcher, modelRouter, proxyMonitor))
		r.Post("/responses", handlers.OpenAIChatHandler(requestDispatcher, modelRouter, proxyMonitor))
		r.Post("/messages", handlers.ClaudeMessagesHandler(requestDispatcher, modelRouter, proxyMonitor))
		r.Get("/models", handlers.ListModelsHandler())
		r.Post("/images/generations", handlers.ImageGenerationsHandler(requestDispatcher, modelRouter, proxyMonitor))
		r.Post("/images/edits", handlers.ImageEditsHandler(requestDispatcher, modelRouter, proxyMonitor))
	})

	r.Route("/v1beta", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(database))
		r.Get("/models", handlers.ListGeminiModelsHandler())
		r.Get("/models/*", handlers.GetGeminiModelHandler())
		r.Post("/models/*", handlers.GeminiModelsPostHandler(requestDispatcher, modelRouter, proxyMonitor))
	})

	host := os.Getenv("HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	addr := host + ":" + port
	displayURL := "localhost:" + port
	if host == "0.0.0.0" {
		displayURL = "<your-ip>:" + port
	}

	log.Printf("🚀 nexus starting on http://%s", addr)
	log.Printf("📊 Dashboard: http://%s", displayURL)
	log.Printf("🔌 OpenAI API: http://%s/v1", displayURL)
	log.Printf("🔌 Anthropic API: http://%s/v1/messages", displayURL)
	log.Printf("🔌 Gemini API: http://%s/v1beta/models", displayURL)

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// backgroundRefreshLoop proactively refreshes any credential nearing
// expiry, so a request never has to block on a cold refresh.
func backgroundRefreshLoop(accountPool *pool.AccountPool) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		accountPool.RefreshStale(context.Background())
	}
}
