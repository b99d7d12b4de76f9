package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	tchttp "github.com/Strob0t/taskcrew/internal/adapter/http"
	tcnats "github.com/Strob0t/taskcrew/internal/adapter/nats"
	"github.com/Strob0t/taskcrew/internal/domain/agent"
	"github.com/Strob0t/taskcrew/internal/middleware"
	"github.com/Strob0t/taskcrew/internal/port/messagequeue"
	"github.com/Strob0t/taskcrew/internal/worker"
)

// newWorkerCmd runs development echo workers. "all" serves every role.
func newWorkerCmd() *cobra.Command {
	var (
		role      string
		addr      string
		transport string
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a development echo worker for one role (or all)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, closer := setupLogger(cfg)
			defer closer.Close()

			muxes, err := echoMuxes(role, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			switch transport {
			case "http":
				return serveWorkersHTTP(ctx, addr, muxes, log)
			case "nats":
				return serveWorkersNATS(ctx, cfg.NATS.URL, muxes, log)
			default:
				return fmt.Errorf("unknown worker transport %q (http, nats)", transport)
			}
		},
	}
	cmd.Flags().StringVar(&role, "role", "all", "role to serve, or all")
	cmd.Flags().StringVar(&addr, "addr", ":9000", "listen address for the http transport")
	cmd.Flags().StringVar(&transport, "transport", "http", "worker transport (http, nats)")
	return cmd
}

func echoMuxes(role string, log *slog.Logger) ([]*worker.Mux, error) {
	roles := agent.Roster
	if role != "all" {
		r, err := agent.ParseRole(role)
		if err != nil {
			return nil, err
		}
		roles = []agent.Role{r}
	}
	muxes := make([]*worker.Mux, 0, len(roles))
	for _, r := range roles {
		m := worker.NewEchoMux(r, log)
		if err := m.Validate(); err != nil {
			return nil, err
		}
		muxes = append(muxes, m)
	}
	return muxes, nil
}

func serveWorkersHTTP(ctx context.Context, addr string, muxes []*worker.Mux, log *slog.Logger) error {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(tchttp.Logger(log))
	r.Use(chimw.Recoverer)
	for _, m := range muxes {
		r.Handle("/workers/"+string(m.Role()), m)
	}

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("echo workers listening", "addr", addr, "roles", len(muxes))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("worker server: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func serveWorkersNATS(ctx context.Context, url string, muxes []*worker.Mux, log *slog.Logger) error {
	if url == "" {
		return errors.New("nats transport needs nats.url")
	}
	q, err := tcnats.Connect(ctx, url)
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	for _, m := range muxes {
		subject := messagequeue.WorkerSubject(string(m.Role()))
		cancel, err := q.Respond(subject, m.Respond)
		if err != nil {
			return err
		}
		defer cancel()
		log.Info("echo worker subscribed", "subject", subject)
	}
	<-ctx.Done()
	return nil
}
