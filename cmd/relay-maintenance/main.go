package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	recentMessagesKey   = "recent_messages"
	messagesLastHourKey = "messages_last_hour"
	rateLimitPattern    = "rate_limit:*"
	scanCount           = 100
)

// Repairs relay state in Redis left behind by crashed or misconfigured instances: rate limit
// windows without an expiry, a replay list longer than the configured history and counter entries
// older than an hour.
func main() {
	var (
		redisURL = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		capacity = flag.Int("capacity", envInt("MESSAGE_HISTORY_LIMIT", 100), "Replay cache capacity (or set MESSAGE_HISTORY_LIMIT env)")
		window   = flag.Duration("window", 60*time.Second, "Rate limit window applied to keys without expiry")
		dryRun   = flag.Bool("dry-run", false, "Dry run mode (don't write to Redis)")
		verbose  = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *redisURL == "" {
		log.Fatal("Redis URL required (--redis or REDIS_URL env)")
	}
	if *capacity <= 0 {
		log.Fatal("--capacity must be positive")
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	opts, err := goredis.ParseURL(*redisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	rdb := goredis.NewClient(opts)
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	slog.Info("Connected to Redis", "url", sanitizeURL(*redisURL), "dry_run", *dryRun)

	if err := repairRateLimitKeys(ctx, rdb, *window, *dryRun); err != nil {
		log.Fatalf("Rate limit repair failed: %v", err)
	}
	if err := trimReplayCache(ctx, rdb, *capacity, *dryRun); err != nil {
		log.Fatalf("Replay cache trim failed: %v", err)
	}
	if err := pruneMessageCounter(ctx, rdb, time.Now(), *dryRun); err != nil {
		log.Fatalf("Message counter prune failed: %v", err)
	}

	slog.Info("Maintenance complete")
}

func repairRateLimitKeys(ctx context.Context, rdb *goredis.Client, window time.Duration, dryRun bool) error {
	start := time.Now()
	var cursor uint64
	var scanned, repaired int

	for {
		keys, nextCursor, err := rdb.Scan(ctx, cursor, rateLimitPattern, scanCount).Result()
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		for _, key := range keys {
			scanned++

			ttl, err := rdb.PTTL(ctx, key).Result()
			if err != nil {
				return fmt.Errorf("failed to read ttl of %s: %w", key, err)
			}
			// -1 means the key exists without an expiry; it would throttle its origin forever.
			if ttl != -1 {
				continue
			}

			if !dryRun {
				if err := rdb.PExpire(ctx, key, window).Err(); err != nil {
					return fmt.Errorf("pexpire failed for %s: %w", key, err)
				}
			}
			slog.Debug("Repaired rate limit window", "key", key, "origin", strings.TrimPrefix(key, "rate_limit:"))
			repaired++
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	slog.Info("Rate limit summary",
		"scanned", scanned,
		"repaired", repaired,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func trimReplayCache(ctx context.Context, rdb *goredis.Client, capacity int, dryRun bool) error {
	length, err := rdb.LLen(ctx, recentMessagesKey).Result()
	if err != nil {
		return fmt.Errorf("llen failed: %w", err)
	}

	excess := length - int64(capacity)
	if excess <= 0 {
		slog.Info("Replay cache within capacity", "length", length, "capacity", capacity)
		return nil
	}

	if !dryRun {
		if err := rdb.LTrim(ctx, recentMessagesKey, 0, int64(capacity-1)).Err(); err != nil {
			return fmt.Errorf("ltrim failed: %w", err)
		}
	}
	slog.Info("Replay cache trimmed", "length", length, "capacity", capacity, "removed", excess)
	return nil
}

func pruneMessageCounter(ctx context.Context, rdb *goredis.Client, now time.Time, dryRun bool) error {
	cutoff := "(" + strconv.FormatInt(now.Add(-time.Hour).Unix(), 10)

	stale, err := rdb.ZCount(ctx, messagesLastHourKey, "-inf", cutoff).Result()
	if err != nil {
		return fmt.Errorf("zcount failed: %w", err)
	}

	if stale > 0 && !dryRun {
		if err := rdb.ZRemRangeByScore(ctx, messagesLastHourKey, "-inf", cutoff).Err(); err != nil {
			return fmt.Errorf("zremrangebyscore failed: %w", err)
		}
	}

	remaining, err := rdb.ZCard(ctx, messagesLastHourKey).Result()
	if err != nil {
		return fmt.Errorf("zcard verification failed: %w", err)
	}
	slog.Info("Message counter summary", "stale", stale, "remaining", remaining)
	return nil
}

func envInt(name string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(name)); err == nil {
		return v
	}
	return fallback
}

func sanitizeURL(url string) string {
	// Hide password in Redis URL for logging
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) == 2 {
			credParts := strings.Split(parts[0], ":")
			if len(credParts) >= 2 {
				return credParts[0] + ":" + credParts[1] + ":***@" + parts[1]
			}
		}
	}
	return url
}
