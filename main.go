// Main entry point for the photo and video gallery core service.
//
// It starts an HTTP server that provides:
//   - A read-only browse/search API over the indexed catalog
//   - On-demand and batch thumbnail generation
//   - HLS playlist/segment output, streamed with slow-client protection
//   - Server-Sent Events for catalog change notifications
//   - Prometheus metrics and health/readiness/liveness probes
//
// Configuration is provided via environment variables; see
// internal/config for the full list and defaults.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photonix-core/internal/adminauth"
	"photonix-core/internal/boot"
	"photonix-core/internal/catalog"
	"photonix-core/internal/config"
	"photonix-core/internal/handlers"
	"photonix-core/internal/logging"
	"photonix-core/internal/middleware"

	"github.com/gorilla/mux"
)

// version is injected at build time via -ldflags; "dev" is the fallback
// for local builds run straight from source.
var version = "dev"

func main() {
	startTime := time.Now()

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	rt, err := boot.Start(ctx, cfg, version)
	cancel()
	if err != nil {
		logging.Fatal("boot failed: %v", err)
	}

	h := handlers.New(rt.Catalog, rt.Indexer, rt.ThumbEngine, rt.HLSEngine, rt.Bus, rt.Scheduler, cfg.PhotosDir, version)

	router := setupRouter(h, rt.Catalog)
	logHTTPRoutes(router)

	loggingConfig := middleware.DefaultLoggingConfig()
	logged := middleware.Logger(loggingConfig, "photonix-core/"+version)(router)

	metricsConfig := middleware.DefaultMetricsConfig()
	metered := middleware.Metrics(metricsConfig)(logged)

	compressionConfig := middleware.DefaultCompressionConfig()
	handler := middleware.Compression(compressionConfig)(metered)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	shutdownComplete := make(chan struct{})
	go handleShutdown(srv, rt, shutdownComplete)

	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time: %v", time.Since(startTime))
	logging.Info("  Listening on: http://0.0.0.0:%s", cfg.Port)

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error: %v", err)
	}

	<-shutdownComplete
}

func setupRouter(h *handlers.Handlers, reg *catalog.Registry) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")
	r.Handle("/metrics", h.MetricsHandler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/browse/{path:.*}", h.Browse).Methods("GET")
	api.HandleFunc("/search", h.Search).Methods("GET")
	api.HandleFunc("/thumbnail", h.GetThumbnail).Methods("GET")
	api.HandleFunc("/thumbnail/stats", h.ThumbnailStats).Methods("GET")
	api.HandleFunc("/hls", h.GetHLSArtifact).Methods("GET")
	api.HandleFunc("/events", h.Events).Methods("GET")

	// Batch thumbnail generation mutates worker pool state and can be used
	// to force expensive work; gate it behind the admin bearer token.
	api.Handle("/thumbnail/batch", adminauth.RequireBearer(reg)(http.HandlerFunc(h.ThumbnailBatch))).Methods("POST")

	return r
}

func logHTTPRoutes(router *mux.Router) {
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")
	if !logging.IsDebugEnabled() {
		return
	}
	_ = router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}
		for _, m := range methods {
			logging.Debug("  %-6s %s", m, path)
		}
		return nil
	})
}

func handleShutdown(srv *http.Server, rt *boot.Runtime, done chan struct{}) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logging.Info("shutdown: signal received: %s", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logging.Info("shutdown: stopping HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("shutdown: HTTP server shutdown error: %v", err)
	}

	if err := rt.Shutdown(ctx); err != nil {
		logging.Warn("shutdown: runtime shutdown error: %v", err)
	}

	logging.Info("shutdown: complete")
}
