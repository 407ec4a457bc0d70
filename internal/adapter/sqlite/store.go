// Package sqlite is the embedded durable event store for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/domain"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

const busyTimeout = 5 * time.Second

// Store keeps one row per relayed event in an SQLite file.
type Store struct {
	db    *sql.DB
	clock clockwork.Clock
}

// Open creates the database file and its directory if needed and applies the schema.
func Open(ctx context.Context, path string, clock clockwork.Clock) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db, clock: clock}, nil
}

// Insert returns domain.ErrDuplicateEvent when the source id is already stored.
func (s *Store) Insert(ctx context.Context, event domain.Event) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(id, source_id, author, author_id, avatar, content, channel_id, guild_id, created_at, processed_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(source_id) DO NOTHING`,
		uuid.NewString(),
		event.ID,
		event.Author,
		event.AuthorID,
		event.Avatar,
		event.Content,
		event.ChannelID,
		event.GuildID,
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		s.clock.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message %s: %w", event.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert message %s: %w", event.ID, err)
	}
	if n == 0 {
		return domain.ErrDuplicateEvent
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
