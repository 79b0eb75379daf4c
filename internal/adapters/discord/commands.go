package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"atos/internal/domain"
	"atos/internal/domain/entities"
	"atos/internal/ports/input"
)

// Reaction markers acknowledging a command on the invoking message.
const (
	markerOK        = "✅"
	markerPending   = "☑️"
	markerError     = "⚠️"
	markerTooEarly  = "🕐"
	markerBadLink   = "🔗"
	markerForbidden = "🚫"
	markerCooldown  = "❄️"
	markerBadArg    = "💿"
	markerUnknown   = "❔"
)

const (
	defaultCooldown = 30 * time.Second
	forfeitCooldown = 120 * time.Second
)

// knownCommands holds every canonical command name after alias folding.
var knownCommands = map[string]bool{
	"setup": true, "start": true, "end": true,
	"in": true, "out": true, "check_in": true,
	"add": true, "rm": true, "dq": true,
	"win": true, "forfeit": true,
	"bracket": true, "stages": true, "flip": true,
	"lag": true, "buffer": true, "desync": true,
	"initstream": true, "stopstream": true, "setstream": true,
	"addstream": true, "rmstream": true, "mystream": true, "stream": true,
	"help": true,
}

// Handler routes prefix commands to the use cases.
type Handler struct {
	tournament   input.TournamentUseCase
	registration input.RegistrationUseCase
	match        input.MatchUseCase
	stream       input.StreamUseCase

	limiter *limiter

	prefix           string
	organizerRoleID  string
	challengerRoleID string
	streamerRoleID   string
	scoresChannelID  string
}

func NewHandler(
	tournament input.TournamentUseCase,
	registration input.RegistrationUseCase,
	match input.MatchUseCase,
	stream input.StreamUseCase,
	prefix, organizerRoleID, challengerRoleID, streamerRoleID, scoresChannelID string,
) *Handler {
	return &Handler{
		tournament:       tournament,
		registration:     registration,
		match:            match,
		stream:           stream,
		limiter:          newLimiter(),
		prefix:           prefix,
		organizerRoleID:  organizerRoleID,
		challengerRoleID: challengerRoleID,
		streamerRoleID:   streamerRoleID,
		scoresChannelID:  scoresChannelID,
	}
}

// HandleMessage parses and dispatches one prefix command.
func (h *Handler) HandleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || !strings.HasPrefix(m.Content, h.prefix) {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(m.Content, h.prefix))
	if len(fields) == 0 {
		return
	}
	command, args := strings.ToLower(fields[0]), fields[1:]
	ctx := context.Background()

	// Command aliases collapse onto their canonical name.
	switch command {
	case "ff", "loose":
		command = "forfeit"
	case "is":
		command = "initstream"
	case "ss":
		command = "setstream"
	case "as":
		command = "addstream"
	case "rs":
		command = "rmstream"
	case "ms":
		command = "mystream"
	case "twitch", "tv":
		command = "stream"
	case "stage", "stagelist", "ban", "bans", "map", "maps":
		command = "stages"
	case "flipcoin", "coinflip", "coin":
		command = "flip"
	case "info", "version":
		command = "help"
	}

	if !knownCommands[command] {
		h.react(s, m, markerUnknown)
		return
	}

	cooldown := defaultCooldown
	limiterKey := m.Author.ID
	switch command {
	case "forfeit":
		cooldown = forfeitCooldown
	case "lag":
		// One lag explainer per channel at a time.
		limiterKey = m.ChannelID
	}
	release, ok := h.limiter.acquire(limiterKey, command, cooldown)
	if !ok {
		h.react(s, m, markerCooldown)
		return
	}
	defer release()

	switch command {
	case "setup":
		h.handleSetup(ctx, s, m, args)
	case "start":
		h.handleStart(ctx, s, m)
	case "end":
		h.handleEnd(ctx, s, m)
	case "in", "out", "check_in":
		h.handleCheckInOut(ctx, s, m, command)
	case "add":
		h.handleAdd(ctx, s, m)
	case "rm":
		h.handleRemove(ctx, s, m)
	case "dq":
		h.handleSelfDQ(ctx, s, m)
	case "win":
		h.handleWin(ctx, s, m, args)
	case "forfeit":
		h.handleForfeit(ctx, s, m)
	case "bracket":
		h.handleBracket(ctx, s, m)
	case "stages":
		h.handleStages(ctx, s, m)
	case "flip":
		h.handleFlip(s, m)
	case "lag":
		h.handleLag(ctx, s, m)
	case "buffer":
		h.handleBuffer(s, m, args)
	case "desync":
		h.say(s, m.ChannelID, desyncText)
	case "initstream":
		h.handleInitStream(ctx, s, m, args)
	case "stopstream":
		h.handleStopStream(ctx, s, m)
	case "setstream":
		h.handleSetStream(ctx, s, m, args)
	case "addstream":
		h.handleAddStream(ctx, s, m, args)
	case "rmstream":
		h.handleRemoveStream(ctx, s, m, args)
	case "mystream":
		h.handleMyStream(ctx, s, m)
	case "stream":
		h.handleStreamLinks(ctx, s, m)
	case "help":
		h.handleHelp(s, m)
	}
}

func (h *Handler) handleSetup(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if !h.memberHasRole(m, h.organizerRoleID) {
		h.react(s, m, markerForbidden)
		return
	}
	if len(args) != 1 {
		h.react(s, m, markerBadArg)
		return
	}
	h.ack(s, m, h.tournament.Setup(ctx, args[0]))
}

func (h *Handler) handleStart(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if !h.memberHasRole(m, h.organizerRoleID) {
		h.react(s, m, markerForbidden)
		return
	}
	h.ack(s, m, h.tournament.Start(ctx))
}

func (h *Handler) handleEnd(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if !h.memberHasRole(m, h.organizerRoleID) {
		h.react(s, m, markerForbidden)
		return
	}
	h.ack(s, m, h.tournament.End(ctx))
}

func (h *Handler) handleCheckInOut(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, command string) {
	registered, err := h.registration.IsRegistered(ctx, m.Author.ID)
	if err != nil || !registered {
		h.react(s, m, markerForbidden)
		return
	}
	if command == "out" {
		h.ack(s, m, h.registration.Leave(ctx, m.Author.ID))
		return
	}
	h.ack(s, m, h.registration.CheckIn(ctx, m.Author.ID))
}

func (h *Handler) handleAdd(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if !h.memberHasRole(m, h.organizerRoleID) {
		h.react(s, m, markerForbidden)
		return
	}
	if len(m.Mentions) == 0 {
		h.react(s, m, markerBadArg)
		return
	}
	for _, user := range m.Mentions {
		member := entities.Member{ID: user.ID, DisplayName: displayName(user)}
		if err := h.registration.Join(ctx, member); err != nil {
			h.fail(s, m, err)
			return
		}
	}
	h.react(s, m, markerOK)
}

func (h *Handler) handleRemove(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if !h.memberHasRole(m, h.organizerRoleID) {
		h.react(s, m, markerForbidden)
		return
	}
	if len(m.Mentions) == 0 {
		h.react(s, m, markerBadArg)
		return
	}
	for _, user := range m.Mentions {
		if err := h.registration.Leave(ctx, user.ID); err != nil {
			h.fail(s, m, err)
			return
		}
	}
	h.react(s, m, markerOK)
}

func (h *Handler) handleSelfDQ(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if !h.memberHasRole(m, h.challengerRoleID) {
		h.react(s, m, markerForbidden)
		return
	}
	h.ack(s, m, h.registration.Withdraw(ctx, m.Author.ID))
}

func (h *Handler) handleWin(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if m.ChannelID != h.scoresChannelID {
		h.react(s, m, markerForbidden)
		return
	}
	if len(args) == 0 {
		h.react(s, m, markerBadArg)
		return
	}
	h.ack(s, m, h.match.ReportWin(ctx, m.Author.ID, strings.Join(args, " ")))
}

func (h *Handler) handleForfeit(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if !h.memberHasRole(m, h.challengerRoleID) {
		h.react(s, m, markerForbidden)
		return
	}
	h.ack(s, m, h.match.Forfeit(ctx, m.Author.ID))
}

func (h *Handler) handleBracket(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	msg, err := h.tournament.BracketURL(ctx)
	if err != nil {
		h.fail(s, m, err)
		return
	}
	h.say(s, m.ChannelID, msg)
}

func (h *Handler) handleStages(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	msg, err := h.tournament.Stages(ctx)
	if err != nil {
		h.fail(s, m, err)
		return
	}
	h.say(s, m.ChannelID, msg)
}

func (h *Handler) handleFlip(s *discordgo.Session, m *discordgo.MessageCreate) {
	outcomes := []string{"Tu commences à faire les bans.", "Ton adversaire commence à faire les bans."}
	h.say(s, m.ChannelID, fmt.Sprintf("<@%s> %s", m.Author.ID, outcomes[rand.Intn(len(outcomes))]))
}

func (h *Handler) handleLag(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if !h.memberHasRole(m, h.challengerRoleID) {
		h.react(s, m, markerForbidden)
		return
	}
	msg := lagText
	if stages, err := h.tournament.Stages(ctx); err == nil && strings.Contains(stages, "Project+") {
		msg += lagTextProjectPlus
	}
	h.say(s, m.ChannelID, msg)
}

func (h *Handler) handleBuffer(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) != 1 {
		h.react(s, m, markerBadArg)
		return
	}
	ping, err := strconv.Atoi(args[0])
	if err != nil || ping < 0 {
		h.react(s, m, markerBadArg)
		return
	}
	h.say(s, m.ChannelID, fmt.Sprintf("<@%s> Minimum buffer (host) suggéré pour Dolphin Netplay : **%d**.\n"+
		"*Si du lag persiste, il y a un problème de performance : montez le buffer tant que nécessaire.*", m.Author.ID, suggestedBuffer(ping)))
}

// suggestedBuffer converts a ping in ms to the minimal Dolphin Netplay host
// buffer: one frame per 8 ms of latency, never below 4.
func suggestedBuffer(ping int) int {
	buffer := ping / 8
	if ping%8 > 0 {
		buffer++
	}
	if buffer < 4 {
		buffer = 4
	}
	return buffer
}

func (h *Handler) handleInitStream(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if !h.memberHasRole(m, h.streamerRoleID) {
		h.react(s, m, markerForbidden)
		return
	}
	if len(args) != 1 {
		h.react(s, m, markerBadArg)
		return
	}
	h.ack(s, m, h.stream.Init(ctx, m.Author.ID, args[0]))
}

func (h *Handler) handleStopStream(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if !h.memberHasRole(m, h.streamerRoleID) {
		h.react(s, m, markerForbidden)
		return
	}
	h.ack(s, m, h.stream.Stop(ctx, m.Author.ID))
}

func (h *Handler) handleSetStream(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if !h.memberHasRole(m, h.streamerRoleID) {
		h.react(s, m, markerForbidden)
		return
	}
	if len(args) == 0 {
		h.react(s, m, markerBadArg)
		return
	}
	h.ack(s, m, h.stream.SetAccess(ctx, m.Author.ID, args))
}

func (h *Handler) handleAddStream(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if !h.memberHasRole(m, h.streamerRoleID) {
		h.react(s, m, markerForbidden)
		return
	}
	orders, ok := parseOrders(args)
	if !ok {
		h.react(s, m, markerBadArg)
		return
	}
	pending, err := h.stream.AddQueue(ctx, m.Author.ID, orders)
	if err != nil {
		h.fail(s, m, err)
		return
	}
	// Pre-tournament additions cannot be validated yet.
	if pending {
		h.react(s, m, markerPending)
		return
	}
	h.react(s, m, markerOK)
}

func (h *Handler) handleRemoveStream(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if !h.memberHasRole(m, h.streamerRoleID) {
		h.react(s, m, markerForbidden)
		return
	}
	orders, ok := parseOrders(args)
	if !ok {
		h.react(s, m, markerBadArg)
		return
	}
	h.ack(s, m, h.stream.RemoveQueue(ctx, m.Author.ID, orders))
}

func (h *Handler) handleMyStream(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if !h.memberHasRole(m, h.streamerRoleID) {
		h.react(s, m, markerForbidden)
		return
	}
	msg, err := h.stream.Summary(ctx, m.Author.ID)
	if err != nil {
		h.fail(s, m, err)
		return
	}
	h.say(s, m.ChannelID, msg)
}

func (h *Handler) handleStreamLinks(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	msg, err := h.stream.Links(ctx)
	if err != nil {
		h.fail(s, m, err)
		return
	}
	h.say(s, m.ChannelID, msg)
}

func (h *Handler) handleHelp(s *discordgo.Session, m *discordgo.MessageCreate) {
	h.say(s, m.ChannelID, helpText)
	if h.memberHasRole(m, h.challengerRoleID) {
		h.say(s, m.ChannelID, challengerHelpText)
	}
	if h.memberHasRole(m, h.organizerRoleID) {
		h.say(s, m.ChannelID, adminHelpText)
	}
	if h.memberHasRole(m, h.streamerRoleID) {
		h.say(s, m.ChannelID, streamerHelpText)
	}
}

// ack reacts with the marker matching err (✅ on success).
func (h *Handler) ack(s *discordgo.Session, m *discordgo.MessageCreate, err error) {
	if err != nil {
		h.fail(s, m, err)
		return
	}
	h.react(s, m, markerOK)
}

// fail maps a use-case error onto its reaction marker.
func (h *Handler) fail(s *discordgo.Session, m *discordgo.MessageCreate, err error) {
	marker := markerError
	switch {
	case errors.Is(err, domain.ErrBadLink):
		marker = markerBadLink
	case errors.Is(err, domain.ErrTooEarly),
		errors.Is(err, domain.ErrTooLate),
		errors.Is(err, domain.ErrStartInPast),
		errors.Is(err, domain.ErrMatchTooShort),
		errors.Is(err, domain.ErrMatchNotBegun):
		marker = markerTooEarly
	case errors.Is(err, domain.ErrWrongState),
		errors.Is(err, domain.ErrNoTournament),
		errors.Is(err, domain.ErrNotRegistered),
		errors.Is(err, domain.ErrNotStreaming):
		marker = markerForbidden
	}
	log.Printf("⚠️ Commande en échec (%s): %v", m.Author.ID, err)
	h.react(s, m, marker)
}

func (h *Handler) react(s *discordgo.Session, m *discordgo.MessageCreate, emoji string) {
	if err := s.MessageReactionAdd(m.ChannelID, m.ID, emoji); err != nil {
		log.Printf("⚠️ Réaction %s sur %s: %v", emoji, m.ID, err)
	}
}

func (h *Handler) say(s *discordgo.Session, channelID, content string) {
	if _, err := s.ChannelMessageSend(channelID, content); err != nil {
		log.Printf("⚠️ Message dans %s: %v", channelID, err)
	}
}

func (h *Handler) memberHasRole(m *discordgo.MessageCreate, roleID string) bool {
	if m.Member == nil {
		return false
	}
	for _, r := range m.Member.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

func parseOrders(args []string) ([]int, bool) {
	if len(args) == 0 {
		return nil, false
	}
	orders := make([]int, 0, len(args))
	for _, a := range args {
		o, err := strconv.Atoi(a)
		if err != nil || o <= 0 {
			return nil, false
		}
		orders = append(orders, o)
	}
	return orders, true
}

// displayName resolves the display name of a mentioned user.
func displayName(user *discordgo.User) string {
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}
