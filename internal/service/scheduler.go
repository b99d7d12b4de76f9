package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/taskcrew/internal/config"
	"github.com/Strob0t/taskcrew/internal/port/database"
)

// Scheduler triggers dispatch cycles for every business on a fixed interval.
type Scheduler struct {
	dispatcher *Dispatcher
	store      database.Store
	interval   time.Duration
	limit      int
	log        *slog.Logger
}

// NewScheduler creates a Scheduler. An interval of 0 disables Run.
func NewScheduler(d *Dispatcher, store database.Store, cfg config.Orchestrator, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	limit := cfg.MaxConcurrentBusinesses
	if limit <= 0 {
		limit = 1
	}
	return &Scheduler{
		dispatcher: d,
		store:      store,
		interval:   cfg.TickInterval,
		limit:      limit,
		log:        log,
	}
}

// Run ticks until ctx is cancelled, then waits for in-flight ticks. A tick
// that outlasts the interval does not delay the next one.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info("scheduler disabled")
		return
	}
	s.log.Info("scheduler started", "interval", s.interval, "max_concurrent_businesses", s.limit)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
					s.log.Warn("scheduler tick had failures", "error", err)
				}
			}()
		}
	}
}

// Tick runs one cycle per business, at most limit at a time. A failing
// business does not cancel the others; all failures are joined.
func (s *Scheduler) Tick(ctx context.Context) error {
	businesses, err := s.store.ListBusinesses(ctx)
	if err != nil {
		return fmt.Errorf("list businesses: %w", err)
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(s.limit)
	for _, b := range businesses {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if _, err := s.dispatcher.ProcessQueue(ctx, b.ID); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
