package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	tchttp "github.com/Strob0t/taskcrew/internal/adapter/http"
	tcnats "github.com/Strob0t/taskcrew/internal/adapter/nats"
	"github.com/Strob0t/taskcrew/internal/adapter/natskv"
	tcotel "github.com/Strob0t/taskcrew/internal/adapter/otel"
	"github.com/Strob0t/taskcrew/internal/adapter/ristretto"
	"github.com/Strob0t/taskcrew/internal/adapter/tiered"
	"github.com/Strob0t/taskcrew/internal/adapter/ws"
	"github.com/Strob0t/taskcrew/internal/middleware"
	"github.com/Strob0t/taskcrew/internal/port/cache"
	"github.com/Strob0t/taskcrew/internal/port/worker"
	"github.com/Strob0t/taskcrew/internal/service"
)

// NATS KV buckets of the shared caches.
const (
	statusBucket      = "taskcrew_queue_status"
	idempotencyBucket = "taskcrew_idempotency"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane API and the dispatch scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, closer := setupLogger(cfg)
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// --- Infrastructure ---

			shutdownOTEL, err := tcotel.Setup(ctx, cfg.OTEL)
			if err != nil {
				return fmt.Errorf("otel: %w", err)
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownOTEL(sctx); err != nil {
					log.Warn("otel shutdown", "error", err)
				}
			}()
			metrics, err := tcotel.NewMetrics()
			if err != nil {
				return fmt.Errorf("otel metrics: %w", err)
			}

			store, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer store.close()

			q := connectQueue(ctx, cfg, log)
			if q != nil {
				defer func() { _ = q.Close() }()
			}

			local, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
			if err != nil {
				return fmt.Errorf("cache: %w", err)
			}
			defer func() {
				hits, misses := local.Stats()
				log.Info("cache closed", "hits", hits, "misses", misses)
				local.Close()
			}()
			// Buckets carry their own TTL, so each use gets one.
			statusCache, replyCache := cache.Cache(local), cache.Cache(local)
			if cfg.Cache.Shared && q != nil {
				if statusCache, err = sharedCache(ctx, q, local, statusBucket, cfg.Cache.QueueStatusTTL, cfg.Cache.L1TTL); err != nil {
					return err
				}
				if cfg.Server.IdempotencyTTL > 0 {
					if replyCache, err = sharedCache(ctx, q, local, idempotencyBucket, cfg.Server.IdempotencyTTL, cfg.Cache.L1TTL); err != nil {
						return err
					}
				}
				log.Info("caches shared over nats kv")
			}

			invoker, err := newInvoker(cfg)
			if err != nil {
				return err
			}
			log.Info("worker transport ready", "transport", cfg.Worker.Transport)

			// --- Change sinks ---

			hub := ws.NewHub(cfg.Server.CORSOrigin, log)
			queueStatus := service.NewQueueStatusService(store, statusCache, cfg.Cache.QueueStatusTTL, cfg.Orchestrator.RoleStatusWindow)
			changes := service.NewNotifiers(log, queueStatus)
			for _, s := range outboundSinks(cfg, q) {
				changes.Add(s)
			}
			// With NATS the hub hears every process through the relay,
			// including its own changes, so it is not a local sink.
			relayed := false
			if q != nil {
				stopRelay, err := tcnats.Relay(ctx, q, service.NewNotifiers(log, queueStatus, hub))
				if err != nil {
					log.Warn("change relay unavailable, streaming local changes only", "error", err)
				} else {
					defer stopRelay()
					relayed = true
				}
			}
			if !relayed {
				changes.Add(hub)
			}
			log.Info("change sinks ready", "count", changes.Count(), "relayed", relayed)

			// --- Services ---

			dispatcher := service.NewDispatcher(service.DispatcherDeps{
				Store:   store,
				Invoker: invoker,
				Changes: changes,
				Metrics: metrics,
				Log:     log,
				Config:  cfg.Orchestrator,
			})
			scheduler := service.NewScheduler(dispatcher, store, cfg.Orchestrator, log)

			handlers := &tchttp.Handlers{
				Businesses:  service.NewBusinessService(store),
				Tasks:       service.NewTaskService(store, changes),
				Dispatcher:  dispatcher,
				QueueStatus: queueStatus,
				Stream:      http.HandlerFunc(hub.HandleWS),
				Ping:        store.ping,
				Breakers:    func() map[string]string { return worker.BreakerStates(invoker) },
			}

			// --- HTTP ---

			r := chi.NewRouter()
			r.Use(middleware.RequestID)
			r.Use(tchttp.Logger(log))
			r.Use(chimw.RealIP)
			r.Use(chimw.Recoverer)
			r.Use(tchttp.SecurityHeaders)
			r.Use(tchttp.CORS(cfg.Server.CORSOrigin))
			r.Use(tcotel.HTTPMiddleware(cfg.OTEL.ServiceName))
			var api []func(http.Handler) http.Handler
			if cfg.Server.RateLimit > 0 {
				api = append(api, middleware.NewRateLimiter(float64(cfg.Server.RateLimit), cfg.Server.RateBurst, 10*time.Minute).Handler)
			}
			if cfg.Server.IdempotencyTTL > 0 {
				api = append(api, middleware.Idempotency(replyCache, cfg.Server.IdempotencyTTL, log))
			}
			tchttp.MountRoutes(r, handlers, cfg.Server.APIKey, api...)

			srv := &http.Server{
				Addr:              ":" + cfg.Server.Port,
				Handler:           r,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				// Dispatch calls block on workers; no write timeout.
				IdleTimeout: 120 * time.Second,
			}

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				scheduler.Run(ctx)
			}()

			errCh := make(chan error, 1)
			go func() {
				log.Info("starting server", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					stop()
					wg.Wait()
					return fmt.Errorf("http server: %w", err)
				}
			}
			log.Info("shutting down server")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			err = srv.Shutdown(shutdownCtx)
			wg.Wait()
			return err
		},
	}
	cmd.Flags().String("port", "", "HTTP listen port")
	return cmd
}

// sharedCache puts local in front of the named NATS KV bucket.
func sharedCache(ctx context.Context, q *tcnats.Queue, local cache.Cache, bucket string, ttl, localTTL time.Duration) (cache.Cache, error) {
	kv, err := q.KeyValue(ctx, bucket, ttl)
	if err != nil {
		return nil, fmt.Errorf("shared cache: %w", err)
	}
	return tiered.New(local, natskv.New(kv), localTTL), nil
}
