package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/kbase/kit"
	"github.com/hazyhaar/kbase/knowledge"
	"github.com/hazyhaar/kbase/shield"
)

func init() {
	var (
		addr       string
		fetchEvery time.Duration
	)
	serve := func(ctx context.Context, svc *knowledge.Service, everyChanged bool) error {
		user := env("ADMIN_USER", "admin")
		hash := []byte(env("ADMIN_PASSWORD_HASH", ""))
		if len(hash) == 0 {
			if pw := env("ADMIN_PASSWORD", ""); pw != "" {
				var err error
				if hash, err = bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost); err != nil {
					return err
				}
			}
		}
		if len(hash) == 0 {
			return errors.New("ADMIN_PASSWORD or ADMIN_PASSWORD_HASH is required")
		}

		every := fetchEvery
		if !everyChanged && svc.Config().Scheduler.Interval > 0 {
			every = svc.Config().Scheduler.Interval
		}
		svc.Start(ctx, every)

		srv := &http.Server{
			Addr:              addr,
			Handler:           newRouter(svc, user, hash),
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      5 * time.Minute,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			<-ctx.Done()
			slog.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown", "error", err)
			}
		}()

		slog.Info("server starting", "addr", addr, "fetch_every", every)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		slog.Info("server stopped")
		return nil
	}
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and the background fetch scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := cmd.Flags().Changed("fetch-every")
			return withService(func(ctx context.Context, svc *knowledge.Service, _ []string) error {
				return serve(ctx, svc, changed)
			})(cmd, args)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", ":"+env("PORT", "8086"), "listen address")
	serveCmd.Flags().DurationVar(&fetchEvery, "fetch-every", 0, "run bulk fetches at this interval (0 disables; overrides scheduler.interval)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter mounts the knowledge API under /api behind the shield stack and
// basic auth. /health stays open.
func newRouter(svc *knowledge.Service, user string, hash []byte) http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultAPIStack() {
		r.Use(mw)
	}
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.With(basicAuth(user, hash)).Mount("/api", svc.Routes())
	return r
}

// basicAuth checks credentials against a bcrypt hash and records the user as
// the request actor.
func basicAuth(user string, hash []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
				bcrypt.CompareHashAndPassword(hash, []byte(p)) != nil {
				shield.GetLogger(r.Context()).Warn("admin auth rejected", "user", u, "remote_addr", r.RemoteAddr)
				w.Header().Set("WWW-Authenticate", `Basic realm="kbase"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r.WithContext(kit.WithActor(r.Context(), u)))
		})
	}
}
