package application

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"atos/internal/domain"
	"atos/internal/domain/entities"
	"atos/internal/domain/games"
	"atos/internal/ports/input"
	"atos/internal/ports/output"
)

var _ input.StreamUseCase = (*StreamQueueService)(nil)

var twitchPattern = regexp.MustCompile(`^(https?://)?(www\.)?twitch\.tv/.+$`)

// StreamQueueService owns the per-operator stream queues and assigns the
// next queued set to an operator whenever their stream slot frees up.
type StreamQueueService struct {
	store      output.StateStore
	bracket    output.BracketService
	gateway    output.ChatGateway
	translator output.T
	locale     string
	channels   Channels
	now        func() time.Time
}

func NewStreamQueueService(
	store output.StateStore,
	bracket output.BracketService,
	gateway output.ChatGateway,
	translator output.T,
	locale string,
	channels Channels,
) *StreamQueueService {
	return &StreamQueueService{
		store:      store,
		bracket:    bracket,
		gateway:    gateway,
		translator: translator,
		locale:     locale,
		channels:   channels,
		now:        time.Now,
	}
}

// Init opens a stream session for the operator from their Twitch link.
func (s *StreamQueueService) Init(ctx context.Context, operatorID, url string) error {
	if !twitchPattern.MatchString(url) {
		return domain.ErrBadLink
	}
	streams, err := s.store.Streams(ctx)
	if err != nil {
		return err
	}
	channel := url
	channel = strings.TrimPrefix(channel, "https://")
	channel = strings.TrimPrefix(channel, "http://")
	channel = strings.TrimPrefix(channel, "www.")
	channel = strings.TrimPrefix(channel, "twitch.tv/")
	streams.Put(&entities.StreamSession{
		OperatorID: operatorID,
		Channel:    channel,
		Access:     []string{"N/A", "N/A"},
		Queue:      []int{},
	})
	return s.store.SaveStreams(ctx, streams)
}

// Stop closes the operator's stream session.
func (s *StreamQueueService) Stop(ctx context.Context, operatorID string) error {
	streams, err := s.store.Streams(ctx)
	if err != nil {
		return err
	}
	if streams.Get(operatorID) == nil {
		return domain.ErrNotStreaming
	}
	streams.Remove(operatorID)
	return s.store.SaveStreams(ctx, streams)
}

// SetAccess stores the operator's arena access codes; the expected number of
// codes depends on the tournament's game.
func (s *StreamQueueService) SetAccess(ctx context.Context, operatorID string, codes []string) error {
	t, err := s.store.Tournament(ctx)
	if err != nil {
		return err
	}
	if t == nil {
		return domain.ErrNoTournament
	}
	g, err := games.Lookup(t.Game)
	if err != nil {
		return err
	}
	if err := g.ValidateAccess(codes); err != nil {
		return err
	}
	streams, err := s.store.Streams(ctx)
	if err != nil {
		return err
	}
	sess := streams.Get(operatorID)
	if sess == nil {
		return domain.ErrNotStreaming
	}
	sess.Access = codes
	return s.store.SaveStreams(ctx, streams)
}

// AddQueue queues sets for broadcast. While the tournament is still pending
// the append is raw and unvalidated; once underway a set is only accepted if
// it is known to the bracket, not yet started and not claimed by another
// operator.
func (s *StreamQueueService) AddQueue(ctx context.Context, operatorID string, orders []int) (bool, error) {
	t, err := s.store.Tournament(ctx)
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, domain.ErrNoTournament
	}
	streams, err := s.store.Streams(ctx)
	if err != nil {
		return false, err
	}
	sess := streams.Get(operatorID)
	if sess == nil {
		return false, domain.ErrNotStreaming
	}

	if t.IsPending() {
		for _, o := range orders {
			sess.Enqueue(o)
		}
		return true, s.store.SaveStreams(ctx, streams)
	}

	var matches []entities.Match
	err = withRetry(ctx, func() error {
		var err error
		matches, err = s.bracket.Matches(ctx, t.ID, output.MatchFilter{States: []string{"open", "pending"}})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("fetch bracket for stream queue: %w", err)
	}

	for _, o := range orders {
		for i := range matches {
			m := &matches[i]
			if m.PlayOrder == o && !m.Started() && !streams.IsQueued(o) {
				sess.Enqueue(o)
				break
			}
		}
	}
	return false, s.store.SaveStreams(ctx, streams)
}

// RemoveQueue drops sets from the operator's queue. Unknown entries abort
// the whole command without saving, mirroring a strict list removal.
func (s *StreamQueueService) RemoveQueue(ctx context.Context, operatorID string, orders []int) error {
	streams, err := s.store.Streams(ctx)
	if err != nil {
		return err
	}
	sess := streams.Get(operatorID)
	if sess == nil {
		return domain.ErrNotStreaming
	}
	for _, o := range orders {
		if !sess.Dequeue(o) {
			return domain.ErrNotFound
		}
	}
	return s.store.SaveStreams(ctx, streams)
}

// Summary renders the operator's access codes, their current on-stream set
// and their backlog with resolved player names.
func (s *StreamQueueService) Summary(ctx context.Context, operatorID string) (string, error) {
	t, err := s.store.Tournament(ctx)
	if err != nil {
		return "", err
	}
	if t == nil {
		return "", domain.ErrNoTournament
	}
	streams, err := s.store.Streams(ctx)
	if err != nil {
		return "", err
	}
	sess := streams.Get(operatorID)
	if sess == nil {
		return "", domain.ErrNotStreaming
	}
	participants, err := s.store.Participants(ctx)
	if err != nil {
		return "", err
	}
	g, err := games.Lookup(t.Game)
	if err != nil {
		return "", err
	}

	var matches []entities.Match
	err = withRetry(ctx, func() error {
		var err error
		matches, err = s.bracket.Matches(ctx, t.ID, output.MatchFilter{States: []string{"open", "pending"}})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("fetch bracket for stream summary: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, ":information_source: Codes d'accès au stream **%s** :\n%s\n", sess.Channel, g.FormatAccess(sess.Access))

	current := findByPlayOrder(matches, sess.OnStream)
	if current == nil {
		b.WriteString(":stop_button: Aucun set on stream à l'heure actuelle.\n")
	} else {
		p1, p2 := playerNames(participants, current)
		fmt.Fprintf(&b, ":arrow_forward: **Set on stream actuel** *(%d)* : **%s** vs **%s**\n", current.PlayOrder, p1, p2)
	}

	var backlog strings.Builder
	for _, order := range sess.Queue {
		o := order
		if m := findByPlayOrder(matches, &o); m != nil {
			p1, p2 := playerNames(participants, m)
			fmt.Fprintf(&backlog, ":white_small_square: **%d** : *%s* vs *%s*\n", m.PlayOrder, p1, p2)
		}
	}
	if backlog.Len() > 0 {
		fmt.Fprintf(&b, ":play_pause: Liste des sets prévus pour passer on stream :\n%s", backlog.String())
	} else {
		b.WriteString(":play_pause: Il n'y a aucun set prévu pour passer on stream.")
	}
	return b.String(), nil
}

// Links renders the stream link(s) for spectators: one channel links
// directly, several become a multitwitch link.
func (s *StreamQueueService) Links(ctx context.Context) (string, error) {
	streams, err := s.store.Streams(ctx)
	if err != nil {
		return "", err
	}
	var channels []string
	for _, sess := range streams.ByOperator {
		channels = append(channels, sess.Channel)
	}
	switch len(channels) {
	case 0:
		return s.translator.T(s.locale, "stream.none", nil), nil
	case 1:
		return "https://www.twitch.tv/" + channels[0], nil
	default:
		return "http://www.multitwitch.tv/" + strings.Join(channels, "/"), nil
	}
}

// CallStream assigns the next broadcastable set to every operator whose
// current slot freed up. Part of the polling cycle; works from the cycle's
// snapshot of open sets.
func (s *StreamQueueService) CallStream(ctx context.Context, snapshot []entities.Match) {
	t, err := s.store.Tournament(ctx)
	if err != nil || t == nil {
		return
	}
	streams, err := s.store.Streams(ctx)
	if err != nil {
		log.Printf("❌ Lecture des streams (call stream): %v", err)
		return
	}
	participants, err := s.store.Participants(ctx)
	if err != nil {
		log.Printf("❌ Lecture des participants (call stream): %v", err)
		return
	}

	for _, sess := range streams.ByOperator {
		// The on-stream set still being open means it is not finished.
		if findByPlayOrder(snapshot, sess.OnStream) != nil {
			continue
		}

		next := s.nextBroadcastable(sess, snapshot)
		if next == nil {
			continue
		}

		p1 := participants.ByBracketID(next.Player1ID)
		p2 := participants.ByBracketID(next.Player2ID)
		if p1 == nil || p2 == nil {
			continue
		}

		access := "N/A"
		if g, err := games.Lookup(t.Game); err == nil {
			access = g.FormatAccess(sess.Access)
		}

		if channelID, ok := s.gateway.FindMatchChannel(ctx, strconv.Itoa(next.PlayOrder)); ok {
			msg := fmt.Sprintf("<@%s> <@%s>\n:clapper: Vous pouvez passer on stream sur la chaîne **%s** ! Voici les codes d'accès :\n%s",
				p1.UserID, p2.UserID, sess.Channel, access)
			if _, err := s.gateway.SendMessage(ctx, channelID, msg); err != nil {
				log.Printf("⚠️ Appel on stream du set %d: %v", next.PlayOrder, err)
			}
		} else {
			dm := fmt.Sprintf("C'est ton tour de passer on stream ! Voici les codes d'accès :\n%s", access)
			for _, userID := range []string{p1.UserID, p2.UserID} {
				if err := s.gateway.SendDM(ctx, userID, dm); err != nil {
					log.Printf("⚠️ MP d'appel on stream à %s: %v", userID, err)
				}
			}
		}

		if _, err := s.gateway.SendMessage(ctx, s.channels.Stream,
			fmt.Sprintf(":arrow_forward: Envoi on stream du set n°%d chez **%s** : **%s** vs **%s** !",
				next.PlayOrder, sess.Channel, p1.DisplayName, p2.DisplayName)); err != nil {
			log.Printf("⚠️ Annonce d'envoi on stream: %v", err)
		}

		order := next.PlayOrder
		sess.OnStream = &order
		sess.Dequeue(order)
		if err := s.store.SaveStreams(ctx, streams); err != nil {
			log.Printf("❌ Persistance des streams (call stream): %v", err)
			return
		}
	}
}

// nextBroadcastable walks the queue in order: entries whose set vanished
// from the bracket are skipped, the first open entry wins once it is marked
// underway, and a still-pending head means wait.
func (s *StreamQueueService) nextBroadcastable(sess *entities.StreamSession, snapshot []entities.Match) *entities.Match {
	for _, order := range sess.Queue {
		o := order
		m := findByPlayOrder(snapshot, &o)
		if m == nil {
			continue
		}
		if !m.Started() {
			return nil
		}
		return m
	}
	return nil
}

func findByPlayOrder(matches []entities.Match, order *int) *entities.Match {
	if order == nil {
		return nil
	}
	for i := range matches {
		if matches[i].PlayOrder == *order {
			return &matches[i]
		}
	}
	return nil
}

func playerNames(participants *entities.Participants, m *entities.Match) (string, string) {
	p1, p2 := "(?)", "(?)"
	if p := participants.ByBracketID(m.Player1ID); p != nil {
		p1 = p.DisplayName
	}
	if p := participants.ByBracketID(m.Player2ID); p != nil {
		p2 = p.DisplayName
	}
	return p1, p2
}
