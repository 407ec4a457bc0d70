package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/activity"
	"github.com/pscheid92/chatrelay/internal/adapter/discord"
	"github.com/pscheid92/chatrelay/internal/adapter/httpserver"
	"github.com/pscheid92/chatrelay/internal/adapter/postgres"
	"github.com/pscheid92/chatrelay/internal/adapter/redis"
	"github.com/pscheid92/chatrelay/internal/adapter/sqlite"
	"github.com/pscheid92/chatrelay/internal/adapter/websocket"
	"github.com/pscheid92/chatrelay/internal/broadcast"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/ingest"
	"github.com/pscheid92/chatrelay/internal/platform/config"
	"github.com/pscheid92/chatrelay/internal/platform/logging"
	"github.com/pscheid92/chatrelay/internal/platform/retry"
	"github.com/pscheid92/chatrelay/internal/platform/version"
	"github.com/pscheid92/chatrelay/internal/ratelimit"
	"github.com/pscheid92/chatrelay/internal/replay"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	connectTimeout  = 10 * time.Second
	httpStopTimeout = 10 * time.Second
)

var connectPolicy = retry.Policy{
	MaxAttempts:    5,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
}

// backends bundles the shared-state collaborators: Redis-backed in production, in-process when
// REDIS_URL is empty.
type backends struct {
	limiter domain.RateLimiter
	cache   domain.ReplayCache
	counter domain.MessageCounter
	health  []httpserver.HealthCheck
	close   func()
}

type durableStore struct {
	domain.EventStore
	close func()
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupStore(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (*durableStore, error) {
	if cfg.SQLitePath != "" {
		store, err := sqlite.Open(ctx, cfg.SQLitePath, clock)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		slog.Info("Using SQLite message store", "path", cfg.SQLitePath)
		return &durableStore{EventStore: store, close: func() { _ = store.Close() }}, nil
	}

	policy := connectPolicy
	policy.OnRetry = retry.LogRetry("postgres")
	pool, err := retry.Do(ctx, policy, retry.Transient, func() (*pgxpool.Pool, error) {
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		return postgres.Connect(connectCtx, cfg.DatabaseURL)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Using PostgreSQL message store")
	return &durableStore{EventStore: postgres.NewMessageRepo(pool), close: pool.Close}, nil
}

func setupBackends(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (*backends, error) {
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL not set, using in-process rate limiter, replay cache and message counter")
		return &backends{
			limiter: ratelimit.NewFixedWindow(cfg.RateLimitMaxRequests, cfg.RateLimitWindow, clock),
			cache:   replay.New(cfg.MessageHistoryLimit),
			counter: activity.NewCounter(clock),
			close:   func() {},
		}, nil
	}

	policy := connectPolicy
	policy.OnRetry = retry.LogRetry("redis")
	client, err := retry.Do(ctx, policy, retry.Transient, func() (*goredis.Client, error) {
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		return redis.NewClient(connectCtx, cfg.RedisURL)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &backends{
		limiter: redis.NewRateLimiter(client, cfg.RateLimitMaxRequests, cfg.RateLimitWindow),
		cache:   redis.NewReplayCache(client, cfg.MessageHistoryLimit, cfg.MessageTTL),
		counter: redis.NewMessageCounter(client, clock),
		health: []httpserver.HealthCheck{{
			Name:     "redis",
			Critical: true,
			Check:    func(ctx context.Context) error { return client.Ping(ctx).Err() },
		}},
		close: func() { _ = client.Close() },
	}, nil
}

func setupFeed(cfg *config.Config, pipeline *ingest.Pipeline) (*discord.Feed, error) {
	if cfg.DiscordToken == "" {
		slog.Warn("DISCORD_TOKEN not set, upstream feed disabled")
		return nil, nil
	}
	feed, err := discord.NewFeed(cfg.DiscordToken, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord feed: %w", err)
	}
	return feed, nil
}

func healthChecks(store domain.EventStore, b *backends, feed *discord.Feed, hub *broadcast.Hub) []httpserver.HealthCheck {
	checks := append([]httpserver.HealthCheck{{
		Name:     "database",
		Critical: true,
		Check:    store.Ping,
	}}, b.health...)

	checks = append(checks,
		httpserver.HealthCheck{Name: "discord", Check: func(context.Context) error {
			if feed == nil {
				return errors.New("feed disabled")
			}
			if !feed.Healthy() {
				return errors.New("gateway not connected")
			}
			return nil
		}},
		httpserver.HealthCheck{Name: "websocket", Check: func(context.Context) error {
			if hub.Closing() {
				return domain.ErrShuttingDown
			}
			return nil
		}},
	)
	return checks
}

// shutdown stops accepting HTTP requests, then drains the WebSocket connections. The feed stops on
// its own when the run context is cancelled.
func shutdown(srv *httpserver.Server, hub *broadcast.Hub, grace time.Duration) error {
	slog.Info("Shutdown signal received, cleaning up...")

	httpCtx, cancel := context.WithTimeout(context.Background(), httpStopTimeout)
	defer cancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}

	hubCtx, cancel := context.WithTimeout(context.Background(), grace+time.Second)
	defer cancel()
	if err := hub.Shutdown(hubCtx); err != nil {
		slog.Warn("Broadcaster shutdown incomplete", "error", err)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config) error {
	clock := clockwork.NewRealClock()

	store, err := setupStore(ctx, cfg, clock)
	if err != nil {
		return err
	}
	defer store.close()

	b, err := setupBackends(ctx, cfg, clock)
	if err != nil {
		return err
	}
	defer b.close()

	hub := broadcast.NewHub(broadcast.Config{
		MaxConnections:          cfg.MaxTotalConnections,
		MaxConnectionsPerOrigin: cfg.MaxConnectionsPerIP,
		HeartbeatInterval:       cfg.HeartbeatInterval,
		HeartbeatTimeout:        cfg.HeartbeatTimeout,
		ShutdownGracePeriod:     cfg.ShutdownGracePeriod,
	}, b.cache, b.limiter, clock)

	pipeline := ingest.NewPipeline(ingest.Filter{
		ChannelID: cfg.DiscordChannelID,
		GuildID:   cfg.DiscordGuildID,
	}, store, b.cache, b.counter, hub, clock)

	feed, err := setupFeed(cfg, pipeline)
	if err != nil {
		return err
	}

	ws := websocket.NewHandler(hub, websocket.NewCheckOrigin(cfg.Origins(), cfg.AppEnv == "development"))
	srv := httpserver.NewServer(cfg, hub, ws, b.cache, b.counter, healthChecks(store, b, feed, hub))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if feed != nil {
		g.Go(func() error { return feed.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(srv, hub, cfg.ShutdownGracePeriod)
	})

	return g.Wait()
}

func main() {
	cfg := setupConfig()

	// Initialize structured logging
	logCloser := logging.InitLogger(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	info := version.Publish()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version, "commit", info.Commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfg)
	stop()

	if err != nil {
		slog.Error("Application stopped with error", "error", err)
		_ = logCloser.Close()
		os.Exit(1)
	}
	slog.Info("Application stopped")
	_ = logCloser.Close()
}
