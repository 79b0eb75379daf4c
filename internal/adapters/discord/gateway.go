package discord

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"

	"atos/internal/ports/output"
)

// Bracket category names, lowercase. Kept as two categories so winner-side
// and loser-side sets stay grouped; a full category (50 channels) gets a
// sibling with the same name.
const (
	winnerCategory = "winner bracket"
	loserCategory  = "looser bracket"
)

var _ output.ChatGateway = (*Gateway)(nil)

// Gateway implements the chat port over a discordgo session.
type Gateway struct {
	session *discordgo.Session
	guildID string

	organizerRoleID      string
	streamerRoleID       string
	tournamentCategoryID string
}

func NewGateway(session *discordgo.Session, guildID, organizerRoleID, streamerRoleID, tournamentCategoryID string) *Gateway {
	return &Gateway{
		session:              session,
		guildID:              guildID,
		organizerRoleID:      organizerRoleID,
		streamerRoleID:       streamerRoleID,
		tournamentCategoryID: tournamentCategoryID,
	}
}

func (g *Gateway) SendMessage(_ context.Context, channelID, content string) (string, error) {
	msg, err := g.session.ChannelMessageSend(channelID, content)
	if err != nil {
		return "", fmt.Errorf("send message to %s: %w", channelID, err)
	}
	return msg.ID, nil
}

func (g *Gateway) EditMessage(_ context.Context, channelID, messageID, content string) error {
	_, err := g.session.ChannelMessageEdit(channelID, messageID, content)
	return err
}

func (g *Gateway) DeleteMessage(_ context.Context, channelID, messageID string) error {
	return g.session.ChannelMessageDelete(channelID, messageID)
}

// PurgeChannel deletes every message of the channel, in batches.
func (g *Gateway) PurgeChannel(_ context.Context, channelID string) error {
	for {
		msgs, err := g.session.ChannelMessages(channelID, 100, "", "", "")
		if err != nil {
			return fmt.Errorf("list messages of %s: %w", channelID, err)
		}
		if len(msgs) == 0 {
			return nil
		}
		ids := make([]string, 0, len(msgs))
		for _, m := range msgs {
			ids = append(ids, m.ID)
		}
		if err := g.session.ChannelMessagesBulkDelete(channelID, ids); err != nil {
			// Bulk delete refuses messages older than 14 days.
			for _, id := range ids {
				if err := g.session.ChannelMessageDelete(channelID, id); err != nil {
					return fmt.Errorf("purge %s: %w", channelID, err)
				}
			}
		}
	}
}

func (g *Gateway) Message(ctx context.Context, channelID, messageID string) (*output.Message, error) {
	msg, err := g.session.ChannelMessage(channelID, messageID)
	if err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", messageID, err)
	}
	out := g.toMessage(msg, nil)
	return &out, nil
}

func (g *Gateway) LastMessage(ctx context.Context, channelID string) (*output.Message, error) {
	msgs, err := g.session.ChannelMessages(channelID, 1, "", "", "")
	if err != nil {
		return nil, fmt.Errorf("fetch last message of %s: %w", channelID, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("channel %s is empty", channelID)
	}
	out := g.toMessage(msgs[0], nil)
	return &out, nil
}

// History walks the channel newest first, resolving the organizer flag from
// guild membership with a per-walk cache.
func (g *Gateway) History(_ context.Context, channelID string, visit func(output.Message) bool) error {
	organizers := map[string]bool{}
	before := ""
	for {
		msgs, err := g.session.ChannelMessages(channelID, 100, before, "", "")
		if err != nil {
			return fmt.Errorf("history of %s: %w", channelID, err)
		}
		if len(msgs) == 0 {
			return nil
		}
		for _, m := range msgs {
			out := g.toMessage(m, organizers)
			if !visit(out) {
				return nil
			}
		}
		before = msgs[len(msgs)-1].ID
	}
}

func (g *Gateway) toMessage(m *discordgo.Message, organizerCache map[string]bool) output.Message {
	out := output.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
		CreatedAt: m.Timestamp,
	}
	if m.Author == nil {
		return out
	}
	out.AuthorID = m.Author.ID
	out.AuthorIsBot = m.Author.Bot
	if organizerCache != nil && !m.Author.Bot {
		isOrganizer, ok := organizerCache[m.Author.ID]
		if !ok {
			isOrganizer = g.hasRole(m.Author.ID, g.organizerRoleID)
			organizerCache[m.Author.ID] = isOrganizer
		}
		out.AuthorIsOrganizer = isOrganizer
	}
	return out
}

func (g *Gateway) hasRole(userID, roleID string) bool {
	member, err := g.session.GuildMember(g.guildID, userID)
	if err != nil {
		return false
	}
	for _, r := range member.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

func (g *Gateway) SendDM(_ context.Context, userID, content string) error {
	ch, err := g.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open DM with %s: %w", userID, err)
	}
	_, err = g.session.ChannelMessageSend(ch.ID, content)
	return err
}

func (g *Gateway) AddReaction(_ context.Context, channelID, messageID, emoji string) error {
	return g.session.MessageReactionAdd(channelID, messageID, emoji)
}

func (g *Gateway) RemoveUserReaction(_ context.Context, channelID, messageID, emoji, userID string) error {
	return g.session.MessageReactionRemove(channelID, messageID, emoji, userID)
}

func (g *Gateway) ClearReaction(_ context.Context, channelID, messageID, emoji string) error {
	return g.session.MessageReactionsRemoveEmoji(channelID, messageID, emoji)
}

func (g *Gateway) Reactors(_ context.Context, channelID, messageID, emoji string) ([]string, error) {
	var userIDs []string
	after := ""
	for {
		users, err := g.session.MessageReactions(channelID, messageID, emoji, 100, "", after)
		if err != nil {
			return nil, fmt.Errorf("list reactors of %s: %w", messageID, err)
		}
		if len(users) == 0 {
			return userIDs, nil
		}
		for _, u := range users {
			if !u.Bot {
				userIDs = append(userIDs, u.ID)
			}
		}
		after = users[len(users)-1].ID
	}
}

func (g *Gateway) GrantRole(_ context.Context, userID, roleID string) error {
	return g.session.GuildMemberRoleAdd(g.guildID, userID, roleID)
}

func (g *Gateway) RevokeRole(_ context.Context, userID, roleID string) error {
	return g.session.GuildMemberRoleRemove(g.guildID, userID, roleID)
}

func (g *Gateway) MemberDisplayName(_ context.Context, userID string) (string, error) {
	member, err := g.session.GuildMember(g.guildID, userID)
	if err != nil {
		return "", fmt.Errorf("fetch member %s: %w", userID, err)
	}
	if member.Nick != "" {
		return member.Nick, nil
	}
	if member.User.GlobalName != "" {
		return member.User.GlobalName, nil
	}
	return member.User.Username, nil
}

// CreateMatchChannel creates the set's temporary channel under a bracket
// category, visible only to organizers, streamers and the two players.
func (g *Gateway) CreateMatchChannel(_ context.Context, name string, round int, playerIDs []string) (string, error) {
	category, err := g.availableCategory(round)
	if err != nil {
		return "", err
	}

	overwrites := []*discordgo.PermissionOverwrite{
		// @everyone shares its ID with the guild.
		{ID: g.guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: g.organizerRoleID, Type: discordgo.PermissionOverwriteTypeRole, Allow: discordgo.PermissionViewChannel},
		{ID: g.streamerRoleID, Type: discordgo.PermissionOverwriteTypeRole, Allow: discordgo.PermissionViewChannel},
	}
	for _, userID := range playerIDs {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID: userID, Type: discordgo.PermissionOverwriteTypeMember, Allow: discordgo.PermissionViewChannel,
		})
	}

	ch, err := g.session.GuildChannelCreateComplex(g.guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                "Channel temporaire pour un set.",
		ParentID:             category,
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		return "", fmt.Errorf("create match channel %s: %w", name, err)
	}
	return ch.ID, nil
}

// availableCategory finds a bracket category with room, creating one when
// every existing one is full.
func (g *Gateway) availableCategory(round int) (string, error) {
	desired := winnerCategory
	if round < 0 {
		desired = loserCategory
	}

	channels, err := g.session.GuildChannels(g.guildID)
	if err != nil {
		return "", fmt.Errorf("list guild channels: %w", err)
	}

	children := map[string]int{}
	for _, ch := range channels {
		if ch.ParentID != "" {
			children[ch.ParentID]++
		}
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory &&
			strings.EqualFold(ch.Name, desired) && children[ch.ID] < 50 {
			return ch.ID, nil
		}
	}

	category, err := g.session.GuildChannelCreateComplex(g.guildID, discordgo.GuildChannelCreateData{
		Name: desired,
		Type: discordgo.ChannelTypeGuildCategory,
	})
	if err != nil {
		return "", fmt.Errorf("create category %s: %w", desired, err)
	}
	return category.ID, nil
}

func (g *Gateway) FindMatchChannel(ctx context.Context, name string) (string, bool) {
	chans, err := g.MatchChannels(ctx)
	if err != nil {
		log.Printf("⚠️ Recherche du channel de set %s: %v", name, err)
		return "", false
	}
	for _, ch := range chans {
		if ch.Name == name {
			return ch.ID, true
		}
	}
	return "", false
}

// MatchChannels lists every text channel living under a bracket category.
func (g *Gateway) MatchChannels(context.Context) ([]output.Channel, error) {
	channels, err := g.session.GuildChannels(g.guildID)
	if err != nil {
		return nil, fmt.Errorf("list guild channels: %w", err)
	}

	categories := map[string]bool{}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory &&
			(strings.EqualFold(ch.Name, winnerCategory) || strings.EqualFold(ch.Name, loserCategory)) {
			categories[ch.ID] = true
		}
	}

	var out []output.Channel
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText && categories[ch.ParentID] {
			out = append(out, output.Channel{ID: ch.ID, Name: ch.Name})
		}
	}
	return out, nil
}

func (g *Gateway) DeleteChannel(_ context.Context, channelID string) error {
	_, err := g.session.ChannelDelete(channelID)
	return err
}

// PurgeMatchCategories deletes the bracket categories with their channels
// and empties the channels of the fixed tournament category.
func (g *Gateway) PurgeMatchCategories(ctx context.Context) error {
	channels, err := g.session.GuildChannels(g.guildID)
	if err != nil {
		return fmt.Errorf("list guild channels: %w", err)
	}

	categories := map[string]bool{}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory &&
			(strings.EqualFold(ch.Name, winnerCategory) || strings.EqualFold(ch.Name, loserCategory)) {
			categories[ch.ID] = true
		}
	}

	for _, ch := range channels {
		switch {
		case categories[ch.ParentID]:
			if _, err := g.session.ChannelDelete(ch.ID); err != nil {
				log.Printf("⚠️ Suppression du channel %s: %v", ch.Name, err)
			}
		case ch.ParentID == g.tournamentCategoryID && ch.Type == discordgo.ChannelTypeGuildText:
			if err := g.PurgeChannel(ctx, ch.ID); err != nil {
				log.Printf("⚠️ Purge du channel %s: %v", ch.Name, err)
			}
		}
	}
	for id := range categories {
		if _, err := g.session.ChannelDelete(id); err != nil {
			log.Printf("⚠️ Suppression d'une catégorie de bracket: %v", err)
		}
	}
	return nil
}
