package discord

import (
	"fmt"
	"log"
	"math/rand"

	"github.com/bwmarrin/discordgo"
)

const welcomeText = "N'hésite pas à jeter un œil aux tournois en cours et à t'inscrire avec une simple réaction ✅. Bon jeu !"

// handleMemberJoin greets a new member by DM, falling back to the public chat
// channel when their DMs are closed.
func (b *Bot) handleMemberJoin(s *discordgo.Session, e *discordgo.GuildMemberAdd) {
	if !b.config.GreetNewMembers || e.User == nil || e.User.Bot {
		return
	}
	guildName := b.config.GuildID
	if guild, err := s.Guild(e.GuildID); err == nil {
		guildName = guild.Name
	}

	dm, err := s.UserChannelCreate(e.User.ID)
	if err == nil {
		_, err = s.ChannelMessageSend(dm.ID, fmt.Sprintf("Bienvenue sur le serveur **%s** ! %s", guildName, welcomeText))
		if err == nil {
			return
		}
	}

	if b.config.ChatChannelID == "" {
		return
	}
	greetings := []string{
		fmt.Sprintf("<@%s> joins the battle!", e.User.ID),
		fmt.Sprintf("Bienvenue à toi sur le serveur %s, <@%s>.", guildName, e.User.ID),
		fmt.Sprintf("Un <@%s> sauvage apparaît !", e.User.ID),
		fmt.Sprintf("Le serveur %s accueille un nouveau membre : <@%s> !", guildName, e.User.ID),
	}
	greeting := greetings[rand.Intn(len(greetings))]
	if _, err := s.ChannelMessageSend(b.config.ChatChannelID, fmt.Sprintf("%s %s", greeting, welcomeText)); err != nil {
		log.Printf("⚠️ Message de bienvenue pour %s: %v", e.User.ID, err)
	}
}
