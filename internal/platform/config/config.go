package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8000"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
	LogFile   string `env:"LOG_FILE"`

	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH"`
	RedisURL    string `env:"REDIS_URL"`

	DiscordToken     string `env:"DISCORD_TOKEN"`
	DiscordGuildID   string `env:"DISCORD_GUILD_ID"`
	DiscordChannelID string `env:"DISCORD_CHANNEL_ID"`

	MaxTotalConnections int `env:"MAX_TOTAL_CONNECTIONS" default:"1000"`
	MaxConnectionsPerIP int `env:"MAX_CONNECTIONS_PER_IP" default:"10"`

	RateLimitWindow      time.Duration `env:"RATE_LIMIT_WINDOW" default:"60s"`
	RateLimitMaxRequests int           `env:"RATE_LIMIT_MAX_REQUESTS" default:"100"`

	MessageHistoryLimit int           `env:"MESSAGE_HISTORY_LIMIT" default:"100"`
	MessageTTL          time.Duration `env:"MESSAGE_TTL" default:"24h"`

	HeartbeatInterval   time.Duration `env:"WS_HEARTBEAT_INTERVAL" default:"30s"`
	HeartbeatTimeout    time.Duration `env:"WS_TIMEOUT" default:"60s"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" default:"10s"`

	APIKey         string  `env:"API_KEY"`
	AllowedOrigins string  `env:"ALLOWED_ORIGINS" default:"*"`
	APIRateLimit   float64 `env:"API_RATE_LIMIT" default:"10"`
	APIRateBurst   int     `env:"API_RATE_BURST" default:"20"`

	// TrustedProxies lists CIDRs whose X-Forwarded-For is believed. Empty means the peer address is
	// the client address.
	TrustedProxies string `env:"TRUSTED_PROXIES"`
}

// Origins splits ALLOWED_ORIGINS into trimmed, non-empty entries.
func (c *Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// ProxyRanges parses TRUSTED_PROXIES. A bare IP is treated as a single-host range.
func (c *Config) ProxyRanges() ([]*net.IPNet, error) {
	var ranges []*net.IPNet
	for _, entry := range strings.Split(c.TrustedProxies, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q", entry)
			}
			bits := 8 * net.IPv6len
			if ip.To4() != nil {
				ip, bits = ip.To4(), 8*net.IPv4len
			}
			ranges = append(ranges, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", entry, err)
		}
		ranges = append(ranges, ipNet)
	}
	return ranges, nil
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DiscordChannelID == "" {
		return errors.New("DISCORD_CHANNEL_ID is required")
	}

	switch {
	case cfg.DatabaseURL == "" && cfg.SQLitePath == "":
		return errors.New("one of DATABASE_URL or SQLITE_PATH is required")
	case cfg.DatabaseURL != "" && cfg.SQLitePath != "":
		return errors.New("DATABASE_URL and SQLITE_PATH are mutually exclusive")
	}

	positive := []struct {
		name  string
		value int
	}{
		{"MAX_TOTAL_CONNECTIONS", cfg.MaxTotalConnections},
		{"MAX_CONNECTIONS_PER_IP", cfg.MaxConnectionsPerIP},
		{"RATE_LIMIT_MAX_REQUESTS", cfg.RateLimitMaxRequests},
		{"MESSAGE_HISTORY_LIMIT", cfg.MessageHistoryLimit},
		{"API_RATE_BURST", cfg.APIRateBurst},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}

	if cfg.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", cfg.RateLimitWindow)
	}
	if cfg.HeartbeatInterval <= 0 {
		return fmt.Errorf("WS_HEARTBEAT_INTERVAL must be positive, got %s", cfg.HeartbeatInterval)
	}
	if cfg.HeartbeatTimeout < cfg.HeartbeatInterval {
		return fmt.Errorf("WS_TIMEOUT (%s) must be at least WS_HEARTBEAT_INTERVAL (%s)", cfg.HeartbeatTimeout, cfg.HeartbeatInterval)
	}
	if cfg.APIRateLimit <= 0 {
		return fmt.Errorf("API_RATE_LIMIT must be positive, got %g", cfg.APIRateLimit)
	}
	if _, err := cfg.ProxyRanges(); err != nil {
		return err
	}

	return nil
}
