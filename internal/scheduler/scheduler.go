// Package scheduler drives the periodic reconciliation rounds: a sync round
// runs the full pass (drain, pull, sweep) for every registered server, and a
// faster sweep round expires due bans between full passes.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mochilink/mochi-sync/internal/domain"
	"github.com/mochilink/mochi-sync/internal/listsync"
	"github.com/mochilink/mochi-sync/internal/storage"
)

// Config holds the scheduler timings and fan-out limit.
type Config struct {
	// SyncInterval is how often a full sync round runs. Default: 1 minute.
	SyncInterval time.Duration

	// SweepInterval is how often expired bans are swept between full
	// rounds. Default: 15 seconds.
	SweepInterval time.Duration

	// Concurrency caps how many servers are synced at once. Default: 4.
	Concurrency int

	// RoundTimeout bounds one whole round. Default: 2 minutes.
	RoundTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SyncInterval <= 0 {
		c.SyncInterval = time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 15 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.RoundTimeout <= 0 {
		c.RoundTimeout = 2 * time.Minute
	}
	return c
}

// Scheduler owns the background tickers. Start is idempotent while running;
// Stop may be called once from any goroutine.
type Scheduler struct {
	engine    *listsync.Engine
	store     storage.Storage
	publisher *StatusPublisher
	config    Config
	log       *slog.Logger

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     sync.WaitGroup
}

// New creates a scheduler. publisher may be nil when status publishing is
// disabled.
func New(engine *listsync.Engine, store storage.Storage, publisher *StatusPublisher, config Config, log *slog.Logger) *Scheduler {
	return &Scheduler{
		engine:    engine,
		store:     store,
		publisher: publisher,
		config:    config.withDefaults(),
		log:       log.With("component", "scheduler"),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the sync and sweep loops.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.log.Info("scheduler started",
		"syncInterval", s.config.SyncInterval,
		"sweepInterval", s.config.SweepInterval,
		"concurrency", s.config.Concurrency)

	s.done.Add(2)
	go s.loop(s.config.SyncInterval, s.SyncRound)
	go s.loop(s.config.SweepInterval, s.sweepRound)
}

func (s *Scheduler) loop(interval time.Duration, round func(context.Context) error) {
	defer s.done.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.config.RoundTimeout)
			if err := round(ctx); err != nil {
				s.log.Warn("scheduler round finished with errors", "error", err)
			}
			cancel()
		case <-s.stopCh:
			return
		}
	}
}

// Stop halts the loops and waits for an in-flight round to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(s.stopCh)
	})
	s.done.Wait()
	s.log.Info("scheduler stopped")
}

// SyncRound runs one full pass over all registered servers, bounded by the
// configured concurrency. A server whose previous pass is still running is
// skipped silently; other failures are collected but never abort the round.
func (s *Scheduler) SyncRound(ctx context.Context) error {
	servers, err := s.store.ListServers(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for _, srv := range servers {
		g.Go(func() error {
			if err := s.engine.SyncServer(ctx, srv.ID); err != nil && !errors.Is(err, domain.ErrSyncInProgress) {
				s.log.Warn("server sync failed", "server", srv.ID, "error", err)
			}
			// Round errors are logged per server, not propagated; one bad
			// server must not cancel the siblings' context.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, s.engine, servers); err != nil {
			s.log.Warn("status publish failed", "error", err)
		}
	}
	return nil
}

// sweepRound expires due bans on every server between full sync rounds.
func (s *Scheduler) sweepRound(ctx context.Context) error {
	servers, err := s.store.ListServers(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for _, srv := range servers {
		g.Go(func() error {
			if err := s.engine.SweepServer(ctx, srv.ID); err != nil {
				s.log.Warn("ban sweep failed", "server", srv.ID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}
