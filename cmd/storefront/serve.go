package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/storefront/internal/api"
	"github.com/mmynk/storefront/internal/auth"
	"github.com/mmynk/storefront/internal/guard"
	"github.com/mmynk/storefront/internal/metrics"
	"github.com/mmynk/storefront/internal/middleware"
	"github.com/mmynk/storefront/internal/notify"
	"github.com/mmynk/storefront/internal/service"
	"github.com/mmynk/storefront/internal/storage"
	"github.com/mmynk/storefront/internal/storefront"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backend-for-frontend server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.Storage.DBPath)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	readSession, admin := sessionReaders(cfg.Auth.TokenSecret)
	sessions := storefront.NewRegistry(storefront.Deps{
		API:         api.NewClient(cfg.API.BaseURL, cfg.API.Timeout, m),
		Store:       store,
		Notifier:    notify.Log{},
		Metrics:     m,
		Checkout:    checkoutOptions(cfg),
		ReadSession: readSession,
	}, func(key string) storage.Store {
		return store.Namespace(key)
	}, cfg.Server.NoticeBuffer,
		storefront.WithIdleTTL(cfg.Server.SessionTTL),
		storefront.WithMaxSessions(cfg.Server.MaxSessions),
	)
	defer sessions.Close()

	staticDir, err := filepath.Abs(cfg.Server.StaticPath)
	if err != nil {
		return fmt.Errorf("failed to resolve static path: %w", err)
	}
	slog.Info("Serving static files", "path", staticDir)

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           h2c.NewHandler(newRouter(sessions, admin, reg, staticDir), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Connect server starting",
			"address", srv.Addr,
			"url", fmt.Sprintf("http://localhost%s", srv.Addr),
			"api", cfg.API.BaseURL,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// sessionReaders returns the token reader for sessions and the one admin
// routes trust. Without a secret, sessions fall back to decoding and admin
// routes reject everyone.
func sessionReaders(secret string) (session, admin auth.Reader) {
	admin = auth.Verifier([]byte(secret))
	if secret == "" {
		slog.Warn("No token secret configured; tokens are not verified and admin routes are closed")
		return auth.ReadSession, admin
	}
	return admin, admin
}

// newRouter wires Connect procedures, guarded admin pages, metrics and
// static files.
func newRouter(sessions *storefront.Registry, admin auth.Reader, gatherer prometheus.Gatherer, staticDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, middleware.RequestLogger, chimw.Recoverer, middleware.CORS)

	service.Register(r, service.NewStorefrontService(sessions, admin))

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get(guard.UnauthorizedPath, func(w http.ResponseWriter, r *http.Request) {
		page := filepath.Join(staticDir, "unauthorized.html")
		if _, err := os.Stat(page); err != nil {
			http.Error(w, "You are not allowed to view this page.", http.StatusForbidden)
			return
		}
		http.ServeFile(w, r, page)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAdmin(admin))
		r.Get("/*", staticHandler(filepath.Join(staticDir, "admin"), "/admin"))
	})

	r.NotFound(staticHandler(staticDir, ""))
	return r
}

// staticHandler serves files under dir, falling back to dir/index.html for
// unknown paths.
func staticHandler(dir, prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Unknown Connect procedures must not get a page.
		if strings.HasPrefix(r.URL.Path, "/storefront.v1.") {
			http.NotFound(w, r)
			return
		}

		urlPath := strings.TrimPrefix(r.URL.Path, prefix)
		if urlPath == "" || urlPath == "/" {
			urlPath = "/index.html"
		}

		filePath := filepath.Join(dir, filepath.Clean("/"+urlPath))
		if info, err := os.Stat(filePath); err != nil || info.IsDir() {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		http.ServeFile(w, r, filePath)
	}
}
