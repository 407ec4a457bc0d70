package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(id string) domain.Event {
	return domain.Event{
		ID:        id,
		Author:    "alice",
		AuthorID:  "u-1",
		Avatar:    "https://cdn.example.com/a.png",
		Content:   "hello",
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		ChannelID: "chan-1",
		GuildID:   "guild-1",
	}
}

func TestMessageRepo_Insert(t *testing.T) {
	repo := NewMessageRepo(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, testEvent("1")))

	var author, content, guildID string
	var createdAt time.Time
	err := testPool.QueryRow(ctx,
		"SELECT author, content, guild_id, created_at FROM messages WHERE source_id = $1", "1",
	).Scan(&author, &content, &guildID, &createdAt)
	require.NoError(t, err)
	assert.Equal(t, "alice", author)
	assert.Equal(t, "hello", content)
	assert.Equal(t, "guild-1", guildID)
	assert.True(t, createdAt.Equal(testEvent("1").Timestamp))
}

func TestMessageRepo_DuplicateSourceID(t *testing.T) {
	repo := NewMessageRepo(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, testEvent("1")))
	err := repo.Insert(ctx, testEvent("1"))

	assert.ErrorIs(t, err, domain.ErrDuplicateEvent)
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMessageRepo_DuplicatesDoNotTripBreaker(t *testing.T) {
	repo := NewMessageRepo(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, testEvent("1")))

	for range 10 {
		assert.ErrorIs(t, repo.Insert(ctx, testEvent("1")), domain.ErrDuplicateEvent)
	}

	assert.NoError(t, repo.Insert(ctx, testEvent("2")))
}

func TestMessageRepo_Ping(t *testing.T) {
	repo := NewMessageRepo(setupTestDB(t))

	assert.NoError(t, repo.Ping(context.Background()))
}
