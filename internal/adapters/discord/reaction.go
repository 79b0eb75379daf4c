package discord

import (
	"context"
	"log"

	"github.com/bwmarrin/discordgo"

	"atos/internal/domain/entities"
	"atos/internal/ports/input"
)

const signupEmoji = "✅"

// ReactionHandler mirrors ✅ reactions on the registration announcement into
// the registration use case.
type ReactionHandler struct {
	registration    input.RegistrationUseCase
	signupChannelID string
}

func NewReactionHandler(registration input.RegistrationUseCase, signupChannelID string) *ReactionHandler {
	return &ReactionHandler{registration: registration, signupChannelID: signupChannelID}
}

func (h *ReactionHandler) HandleReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.ChannelID != h.signupChannelID || r.Emoji.Name != signupEmoji {
		return
	}
	if r.Member != nil && r.Member.User != nil && r.Member.User.Bot {
		return
	}
	member := entities.Member{ID: r.UserID, DisplayName: h.resolveName(s, r.GuildID, r.UserID, r.Member)}
	if err := h.registration.ReactSignup(context.Background(), r.MessageID, member, true); err != nil {
		log.Printf("⚠️ Inscription par réaction (%s): %v", r.UserID, err)
	}
}

func (h *ReactionHandler) HandleReactionRemove(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
	if r.ChannelID != h.signupChannelID || r.Emoji.Name != signupEmoji {
		return
	}
	member := entities.Member{ID: r.UserID}
	if err := h.registration.ReactSignup(context.Background(), r.MessageID, member, false); err != nil {
		log.Printf("⚠️ Désinscription par réaction (%s): %v", r.UserID, err)
	}
}

// resolveName prefers the event's member payload, falling back to a guild
// member lookup when the gateway omitted it.
func (h *ReactionHandler) resolveName(s *discordgo.Session, guildID, userID string, member *discordgo.Member) string {
	if member != nil {
		if member.Nick != "" {
			return member.Nick
		}
		if member.User != nil {
			if member.User.GlobalName != "" {
				return member.User.GlobalName
			}
			return member.User.Username
		}
	}
	gm, err := s.GuildMember(guildID, userID)
	if err != nil {
		log.Printf("⚠️ Résolution du pseudo de %s: %v", userID, err)
		return userID
	}
	if gm.Nick != "" {
		return gm.Nick
	}
	if gm.User.GlobalName != "" {
		return gm.User.GlobalName
	}
	return gm.User.Username
}
