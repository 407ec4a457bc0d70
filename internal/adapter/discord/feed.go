// Package discord is the upstream feed: a Discord gateway session whose guild messages are turned
// into domain events and handed to the ingestion pipeline one at a time.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pscheid92/chatrelay/internal/broadcast"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/platform/correlation"
	"github.com/pscheid92/chatrelay/internal/platform/retry"
)

const avatarSize = "128"

// Ingester receives one event per upstream message.
type Ingester interface {
	Ingest(ctx context.Context, event domain.Event) (broadcast.Result, error)
}

type Feed struct {
	session   *discordgo.Session
	ingester  Ingester
	ctx       context.Context
	connected atomic.Bool
}

// NewFeed prepares a bot session. Nothing connects until Run.
func NewFeed(token string, ingester Ingester) (*Feed, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentMessageContent
	// Handlers run on the gateway goroutine, so ingestion sees messages in order.
	session.SyncEvents = true

	f := &Feed{session: session, ingester: ingester, ctx: context.Background()}
	session.AddHandler(f.onReady)
	session.AddHandler(f.onDisconnect)
	session.AddHandler(f.onMessageCreate)
	return f, nil
}

// Run opens the gateway, retrying transient failures, and blocks until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	f.ctx = ctx

	policy := retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		OnRetry:        retry.LogRetry("discord"),
	}
	if err := retry.DoVoid(ctx, policy, classifyOpenError, f.session.Open); err != nil {
		return fmt.Errorf("failed to connect to discord: %w", err)
	}
	slog.Info("Discord feed connected")

	<-ctx.Done()

	f.connected.Store(false)
	if err := f.session.Close(); err != nil {
		slog.Warn("Failed to close discord session", "error", err)
	}
	slog.Info("Discord feed stopped")
	return nil
}

func classifyOpenError(err error) retry.Action {
	if errors.Is(err, discordgo.ErrWSAlreadyOpen) {
		return retry.Stop
	}
	return retry.Retry
}

// Healthy reports whether the gateway session is ready.
func (f *Feed) Healthy() bool {
	return f.connected.Load()
}

func (f *Feed) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	f.connected.Store(true)
	slog.Info("Discord gateway ready", "bot", r.User.Username, "guilds", len(r.Guilds))
}

func (f *Feed) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	f.connected.Store(false)
	slog.Warn("Discord gateway disconnected")
}

func (f *Feed) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	event, ok := toEvent(m.Message, m.Member)
	if !ok {
		return
	}

	ctx := correlation.WithID(f.ctx, correlation.NewID())
	if _, err := f.ingester.Ingest(ctx, event); err != nil && !errors.Is(err, domain.ErrEventRejected) {
		slog.ErrorContext(ctx, "Failed to ingest message", "event_id", event.ID, "error", err)
	}
}

// toEvent converts a guild message. Direct messages and messages without an author are skipped.
func toEvent(m *discordgo.Message, member *discordgo.Member) (domain.Event, bool) {
	if m == nil || m.Author == nil || m.GuildID == "" {
		return domain.Event{}, false
	}

	return domain.Event{
		ID:          m.ID,
		Author:      displayName(m.Author, member),
		AuthorID:    m.Author.ID,
		Avatar:      avatarURL(m.Author),
		Content:     m.Content,
		Timestamp:   m.Timestamp.UTC(),
		ChannelID:   m.ChannelID,
		GuildID:     m.GuildID,
		AuthorIsBot: m.Author.Bot,
	}, true
}

func displayName(user *discordgo.User, member *discordgo.Member) string {
	switch {
	case member != nil && member.Nick != "":
		return member.Nick
	case user.GlobalName != "":
		return user.GlobalName
	default:
		return user.Username
	}
}

func avatarURL(user *discordgo.User) string {
	if user.Avatar == "" {
		return ""
	}
	return user.AvatarURL(avatarSize)
}
