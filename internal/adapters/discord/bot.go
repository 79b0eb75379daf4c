package discord

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"

	"atos/internal/application"
	"atos/internal/config"
	"atos/internal/ports/input"
	"atos/internal/ports/output"
)

// Bot is the Discord adapter.
type Bot struct {
	session    *discordgo.Session
	config     *config.Config
	handler    *Handler
	reactions  *ReactionHandler
	tournament input.TournamentUseCase
}

// NewBot creates a Bot and wires ports: output adapters -> application (use cases) -> handlers.
func NewBot(
	cfg *config.Config,
	store output.StateStore,
	bracket output.BracketService,
	translator output.T,
	sched output.Scheduler,
) *Bot {
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		log.Fatal("❌ Erreur lors de la création de la session Discord:", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	gateway := NewGateway(s, cfg.GuildID, cfg.OrganizerRoleID, cfg.StreamerRoleID, cfg.TournamentCategoryID)

	channels := application.Channels{
		Signup:     cfg.SignupChannelID,
		Announce:   cfg.AnnounceChannelID,
		CheckIn:    cfg.CheckInChannelID,
		Scores:     cfg.ScoresChannelID,
		Queue:      cfg.QueueChannelID,
		Stream:     cfg.StreamChannelID,
		Results:    cfg.ResultsChannelID,
		Tournament: cfg.TournamentChannelID,
	}
	roles := application.Roles{
		Organizer:  cfg.OrganizerRoleID,
		Challenger: cfg.ChallengerRoleID,
		Streamer:   cfg.StreamerRoleID,
	}

	registrationUC := application.NewRegistrationService(store, bracket, gateway, translator, cfg.Locale, channels, roles)
	streamUC := application.NewStreamQueueService(store, bracket, gateway, translator, cfg.Locale, channels)
	matchUC := application.NewMatchEngine(store, bracket, gateway, streamUC, channels, roles)
	tournamentUC := application.NewTournamentService(store, bracket, gateway, sched, registrationUC, matchUC, channels, roles, cfg.BulkMode)

	handler := NewHandler(
		tournamentUC, registrationUC, matchUC, streamUC,
		cfg.Prefix, cfg.OrganizerRoleID, cfg.ChallengerRoleID, cfg.StreamerRoleID, cfg.ScoresChannelID,
	)

	bot := &Bot{
		session:    s,
		config:     cfg,
		handler:    handler,
		reactions:  NewReactionHandler(registrationUC, cfg.SignupChannelID),
		tournament: tournamentUC,
	}
	bot.setupHandlers()
	return bot
}

func (b *Bot) setupHandlers() {
	b.session.AddHandler(b.handler.HandleMessage)
	b.session.AddHandler(b.reactions.HandleReactionAdd)
	b.session.AddHandler(b.reactions.HandleReactionRemove)
	b.session.AddHandler(b.handleMemberJoin)
}

// Start runs the bot until interrupted. Scheduled jobs and missed signup
// reactions are re-derived from persisted state before serving events.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("erreur lors de l'ouverture de la session: %w", err)
	}
	defer b.session.Close()

	if err := b.tournament.Reload(context.Background()); err != nil {
		log.Printf("⚠️ Erreur lors du rechargement de l'état du tournoi: %v", err)
	}

	fmt.Println("🤖 Bot en ligne ! Appuyez sur CTRL+C pour quitter.")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	return nil
}
