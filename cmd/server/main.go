package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mochilink/mochi-sync/internal/api"
	"github.com/mochilink/mochi-sync/internal/audit"
	"github.com/mochilink/mochi-sync/internal/bridge"
	"github.com/mochilink/mochi-sync/internal/config"
	"github.com/mochilink/mochi-sync/internal/domain"
	"github.com/mochilink/mochi-sync/internal/listsync"
	"github.com/mochilink/mochi-sync/internal/logging"
	"github.com/mochilink/mochi-sync/internal/scheduler"
	"github.com/mochilink/mochi-sync/internal/storage"
	"github.com/mochilink/mochi-sync/internal/storage/sql"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log, err := logging.Setup(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}

	// Create data directory if needed (for SQLite)
	if cfg.Database.Driver == "sqlite3" {
		if dir := filepath.Dir(cfg.Database.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				log.Error("failed to create data directory", "dir", dir, "error", err)
				os.Exit(1)
			}
		}
	}

	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	// Seed the server registry from the YAML file, if present.
	servers, err := config.LoadServers(cfg.Sync.ServersFile)
	if err != nil {
		log.Error("failed to load server registry", "file", cfg.Sync.ServersFile, "error", err)
		os.Exit(1)
	}
	if err := seedServers(ctx, store, servers); err != nil {
		log.Error("failed to seed server registry", "error", err)
		os.Exit(1)
	}

	// Bridge registry. In file-shim mode every registered server gets a
	// file-backed bridge; otherwise handles are attached by the connection
	// subsystem as servers come online.
	bridges := bridge.NewRegistry()
	if cfg.UseFileShim() {
		log.Info("using file-backed bridges", "dir", cfg.Sync.FileShimDir)
		if err := os.MkdirAll(cfg.Sync.FileShimDir, 0755); err != nil {
			log.Error("failed to create shim directory", "error", err)
			os.Exit(1)
		}
		registered, err := store.ListServers(ctx)
		if err != nil {
			log.Error("failed to list servers", "error", err)
			os.Exit(1)
		}
		for _, srv := range registered {
			bridges.Attach(srv.ID, bridge.NewFileShim(filepath.Join(cfg.Sync.FileShimDir, srv.ID+".json")))
		}
	}

	// Audit recorders: the store and the log always, Redis stream when
	// enabled.
	recorders := audit.Multi{
		audit.NewStoreRecorder(store, log),
		audit.NewLogRecorder(log),
	}
	var publisher *scheduler.StatusPublisher
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		recorders = append(recorders, audit.NewStreamRecorder(client, cfg.Redis.AuditStream, cfg.Redis.AuditStreamMaxLen, log))
		publisher = scheduler.NewStatusPublisher(client, cfg.Redis.StatusKey, log)
	}

	engine := listsync.New(store, bridges, recorders, log)

	sched := scheduler.New(engine, store, publisher, scheduler.Config{
		SyncInterval:  cfg.Sync.Interval,
		SweepInterval: cfg.Sync.SweepInterval,
		Concurrency:   cfg.Sync.Concurrency,
	}, log)
	sched.Start()
	defer sched.Stop()

	router := api.NewRouter(store, engine, bridges, cfg.Sync.BootstrapAPIKey)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Info("starting mochi-sync", "addr", cfg.Server.Addr(), "driver", cfg.Database.Driver)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

// seedServers upserts the YAML-declared servers into the registry. Servers
// created through the API are left untouched.
func seedServers(ctx context.Context, store storage.Storage, servers []config.ServerEntry) error {
	now := time.Now()
	for _, s := range servers {
		name := s.Name
		if name == "" {
			name = s.ID
		}
		existing, err := store.GetServer(ctx, s.ID)
		if errors.Is(err, domain.ErrNotFound) {
			err = store.CreateServer(ctx, &domain.Server{
				ID:           s.ID,
				Name:         name,
				Address:      s.Address,
				Capabilities: s.Capabilities,
				CreatedAt:    now,
				UpdatedAt:    now,
			})
			if err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		existing.Name = name
		existing.Address = s.Address
		existing.Capabilities = s.Capabilities
		existing.UpdatedAt = now
		if err := store.UpdateServer(ctx, existing); err != nil {
			return err
		}
	}
	return nil
}
