package output

import (
	"context"
	"time"
)

// Message is the gateway view of a chat message, enough for the inactivity
// scan to decide who was last active.
type Message struct {
	ID                string
	ChannelID         string
	AuthorID          string
	AuthorIsBot       bool
	AuthorIsOrganizer bool
	Content           string
	CreatedAt         time.Time
}

// Channel identifies a temporary match channel.
type Channel struct {
	ID   string
	Name string
}

// ChatGateway is the chat platform (Discord) seen from the application.
// Notification-style calls are best effort: the engine tolerates their
// failure, it never depends on delivery.
type ChatGateway interface {
	SendMessage(ctx context.Context, channelID, content string) (messageID string, err error)
	EditMessage(ctx context.Context, channelID, messageID, content string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	// PurgeChannel deletes every message of the channel.
	PurgeChannel(ctx context.Context, channelID string) error
	Message(ctx context.Context, channelID, messageID string) (*Message, error)
	LastMessage(ctx context.Context, channelID string) (*Message, error)
	// History walks the channel newest first and stops when visit returns
	// false, so scans stay bounded.
	History(ctx context.Context, channelID string, visit func(Message) bool) error

	SendDM(ctx context.Context, userID, content string) error

	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	RemoveUserReaction(ctx context.Context, channelID, messageID, emoji, userID string) error
	ClearReaction(ctx context.Context, channelID, messageID, emoji string) error
	// Reactors lists the member IDs that reacted with emoji.
	Reactors(ctx context.Context, channelID, messageID, emoji string) ([]string, error)

	GrantRole(ctx context.Context, userID, roleID string) error
	RevokeRole(ctx context.Context, userID, roleID string) error
	// MemberDisplayName resolves the guild display name of a member.
	MemberDisplayName(ctx context.Context, userID string) (string, error)

	// CreateMatchChannel creates a temporary channel named after the set's
	// play order, visible only to organizers, stream operators and the two
	// players, under a winner or loser bracket category chosen from round.
	CreateMatchChannel(ctx context.Context, name string, round int, playerIDs []string) (channelID string, err error)
	// FindMatchChannel resolves a temporary match channel by name.
	FindMatchChannel(ctx context.Context, name string) (channelID string, ok bool)
	// MatchChannels lists every temporary match channel.
	MatchChannels(ctx context.Context) ([]Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error
	// PurgeMatchCategories deletes the bracket categories and their channels.
	PurgeMatchCategories(ctx context.Context) error
}
