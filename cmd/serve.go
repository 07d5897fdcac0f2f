package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"depwatch/internal/bootstrap/config"
	"depwatch/internal/bootstrap/logging"
	domainalert "depwatch/internal/domain/alert"
	"depwatch/internal/errs"
)

// slaLimitsHolder guards the SLA limit table swapped in by the config
// watcher while request handlers read it.
type slaLimitsHolder struct {
	mu     sync.RWMutex
	limits domainalert.SLALimits
}

func (h *slaLimitsHolder) get() domainalert.SLALimits {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.limits
}

func (h *slaLimitsHolder) set(limits domainalert.SLALimits) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.limits = limits
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the cached data and reports over HTTP",
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		addr, _ := cmd.Flags().GetString("addr")

		holder := &slaLimitsHolder{}
		holder.set(slaLimitsFromConfig(deps.App.Config.SLA))
		watchSLALimits(ctx, holder)

		router := newRouter(ctx, deps, holder)
		server := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logging.Info(ctx, "http server listening", slog.String("addr", addr))
			errCh <- server.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return errs.Wrap(err, "shutdown http server")
			}
			return nil
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return errs.Wrap(err, "serve http")
		}
	}),
}

// watchSLALimits re-reads the sla section whenever the config file changes
// on disk, so limit tuning does not require a server restart.
func watchSLALimits(ctx context.Context, holder *slaLimitsHolder) {
	if cfgFile == "" {
		return
	}

	v := viper.New()
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		logging.Warn(ctx, "config watch disabled, file unreadable", slog.Any("err", errs.Loggable(err)))
		return
	}

	v.OnConfigChange(func(event fsnotify.Event) {
		if err := v.ReadInConfig(); err != nil {
			logging.Warn(ctx, "config reload failed", slog.Any("err", errs.Loggable(err)))
			return
		}
		var slaCfg config.SLAConfig
		if err := v.UnmarshalKey("sla", &slaCfg); err != nil {
			logging.Warn(ctx, "config reload failed", slog.Any("err", errs.Loggable(err)))
			return
		}
		holder.set(slaLimitsFromConfig(slaCfg))
		logging.Info(ctx, "sla limits reloaded", slog.String("file", event.Name))
	})
	v.WatchConfig()
}

func newRouter(ctx context.Context, deps appDeps, holder *slaLimitsHolder) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/repos", func(w http.ResponseWriter, req *http.Request) {
			repos, err := deps.Cache.TrackedRepos(req.Context())
			respond(ctx, w, repos, err)
		})

		r.Get("/repos/{owner}/{name}/alerts", func(w http.ResponseWriter, req *http.Request) {
			repo := chi.URLParam(req, "owner") + "/" + chi.URLParam(req, "name")
			state, err := deps.Cache.State(req.Context(), repo)
			if err != nil {
				respond(ctx, w, nil, err)
				return
			}
			if !state.HasCache {
				writeJSON(ctx, w, http.StatusNotFound, map[string]string{
					"error": fmt.Sprintf("no cached data for %s", repo),
				})
				return
			}
			respond(ctx, w, state, nil)
		})

		r.Post("/repos/{owner}/{name}/refresh", func(w http.ResponseWriter, req *http.Request) {
			repo := chi.URLParam(req, "owner") + "/" + chi.URLParam(req, "name")
			outcome, err := deps.Orchestrator.RefreshOne(req.Context(), repo)
			respond(ctx, w, outcome, err)
		})

		r.Post("/refresh", func(w http.ResponseWriter, req *http.Request) {
			result, err := deps.Orchestrator.RefreshAll(req.Context())
			if err != nil {
				respond(ctx, w, nil, err)
				return
			}
			if result.Skipped {
				writeJSON(ctx, w, http.StatusConflict, result)
				return
			}
			respond(ctx, w, result, nil)
		})

		r.Get("/trend", func(w http.ResponseWriter, req *http.Request) {
			points, err := deps.Analytics.Trend(req.Context(), req.URL.Query().Get("repo"))
			respond(ctx, w, points, err)
		})

		r.Get("/mttr", func(w http.ResponseWriter, req *http.Request) {
			entries, err := deps.Analytics.MTTR(req.Context(), req.URL.Query().Get("repo"))
			respond(ctx, w, entries, err)
		})

		r.Get("/sla", func(w http.ResponseWriter, req *http.Request) {
			entries, err := deps.Analytics.SLA(req.Context(), req.URL.Query().Get("repo"), holder.get())
			respond(ctx, w, entries, err)
		})

		r.Get("/vulnerabilities", func(w http.ResponseWriter, req *http.Request) {
			groups, err := deps.Analytics.VulnerabilityGroups(req.Context())
			respond(ctx, w, groups, err)
		})

		r.Get("/dependencies", func(w http.ResponseWriter, req *http.Request) {
			groups, err := deps.Analytics.DependencyGroups(req.Context())
			respond(ctx, w, groups, err)
		})

		r.Get("/ecosystems", func(w http.ResponseWriter, req *http.Request) {
			groups, err := deps.Analytics.EcosystemGroups(req.Context())
			respond(ctx, w, groups, err)
		})

		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			repos, err := deps.Cache.TrackedRepos(req.Context())
			if err != nil {
				respond(ctx, w, nil, err)
				return
			}
			respond(ctx, w, map[string]any{
				"refresh_running": deps.Orchestrator.Running(),
				"tracked_repos":   len(repos),
			}, nil)
		})
	})

	return r
}

func respond(ctx context.Context, w http.ResponseWriter, payload any, err error) {
	if err != nil {
		logging.Error(ctx, "request failed", slog.Any("err", errs.Loggable(err)))
		writeJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(ctx, w, http.StatusOK, payload)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error(ctx, "encode response failed", slog.Any("err", errs.Loggable(err)))
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "Listen address for the HTTP server")
}
