package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunegate/resolver/internal/export"
	"github.com/tunegate/resolver/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the resolution HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      newRouter(env),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		}

		go awaitShutdown(ctx, srv, 15*time.Second)

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// awaitShutdown drains in-flight requests once ctx is cancelled. The
// shutdown deadline is a fresh context; the signal context is already
// dead by the time it fires.
func awaitShutdown(ctx context.Context, srv *http.Server, timeout time.Duration) {
	<-ctx.Done()
	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("server shutdown", zap.Error(err))
	}
}

func newRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Post("/resolve", handleResolve(env))
	r.Post("/resolve/batch", handleResolveBatch(env))
	r.Get("/export", handleExport(env))
	r.Get("/status", handleStatus(env))
	r.Get("/health", handleHealth)

	return r
}

func handleResolve(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var query model.ResolutionQuery
		if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		outcome, err := env.Resolver.Resolve(r.Context(), query)
		if err != nil {
			zap.L().Error("resolve request failed", zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, "resolution failed")
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	}
}

func handleResolveBatch(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Queries []model.ResolutionQuery `json:"queries"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Queries) == 0 {
			writeJSONError(w, http.StatusBadRequest, "queries is required")
			return
		}

		outcomes, err := env.Resolver.ResolveMany(r.Context(), req.Queries, cfg.Resolve.BatchConcurrency)
		if err != nil {
			zap.L().Error("batch request failed", zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, "resolution failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
	}
}

func handleExport(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		if _, err := export.Snapshot(r.Context(), env.Store, w); err != nil {
			zap.L().Error("export failed", zap.Error(err))
		}
	}
}

func handleStatus(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, env.Collector.Snapshot())
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
