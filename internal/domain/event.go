package domain

import "time"

// Event is one chat message received from the upstream feed. It is never mutated after creation.
type Event struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	AuthorID  string    `json:"author_id"`
	Avatar    string    `json:"avatar"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Routing metadata, validated on ingest but not part of the wire payload.
	ChannelID   string `json:"-"`
	GuildID     string `json:"-"`
	AuthorIsBot bool   `json:"-"`
}
