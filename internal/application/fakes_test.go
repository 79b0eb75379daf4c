package application

import (
	"context"
	"fmt"
	"time"

	"atos/internal/domain/entities"
	"atos/internal/ports/output"
)

// memStore is an in-memory StateStore. Versions are ignored: conflict
// behavior belongs to the database tests.
type memStore struct {
	tournament   *entities.Tournament
	participants *entities.Participants
	waitlist     *entities.Waitlist
	streams      *entities.Streams
}

func newMemStore() *memStore {
	return &memStore{
		participants: entities.NewParticipants(),
		waitlist:     &entities.Waitlist{},
		streams:      entities.NewStreams(),
	}
}

func (s *memStore) Tournament(context.Context) (*entities.Tournament, error) {
	return s.tournament, nil
}

func (s *memStore) SaveTournament(_ context.Context, t *entities.Tournament) error {
	s.tournament = t
	return nil
}

func (s *memStore) Participants(context.Context) (*entities.Participants, error) {
	return s.participants, nil
}

func (s *memStore) SaveParticipants(_ context.Context, p *entities.Participants) error {
	s.participants = p
	return nil
}

func (s *memStore) Waitlist(context.Context) (*entities.Waitlist, error) {
	return s.waitlist, nil
}

func (s *memStore) SaveWaitlist(_ context.Context, w *entities.Waitlist) error {
	s.waitlist = w
	return nil
}

func (s *memStore) Streams(context.Context) (*entities.Streams, error) {
	return s.streams, nil
}

func (s *memStore) SaveStreams(_ context.Context, st *entities.Streams) error {
	s.streams = st
	return nil
}

func (s *memStore) Reset(context.Context) error {
	s.tournament = nil
	s.participants = entities.NewParticipants()
	s.waitlist = &entities.Waitlist{}
	s.streams = entities.NewStreams()
	return nil
}

// fakeBracket records calls and serves canned matches. Participant IDs are
// handed out sequentially from 100.
type fakeBracket struct {
	info      *entities.BracketInfo
	matches   []entities.Match
	standings []entities.Standing

	nextID       int64
	created      []string
	destroyed    []int64
	underway     []int64
	reports      []reportedScore
	started      bool
	finalized    bool
	matchesCalls int
}

type reportedScore struct {
	matchID  int64
	csv      string
	winnerID int64
}

func newFakeBracket() *fakeBracket { return &fakeBracket{nextID: 100} }

func (b *fakeBracket) Show(context.Context, string) (*entities.BracketInfo, error) {
	if b.info == nil {
		return nil, fmt.Errorf("no bracket configured")
	}
	return b.info, nil
}

func (b *fakeBracket) Start(context.Context, int64) error {
	b.started = true
	return nil
}

func (b *fakeBracket) Finalize(context.Context, int64) error {
	b.finalized = true
	return nil
}

func (b *fakeBracket) Matches(_ context.Context, _ int64, filter output.MatchFilter) ([]entities.Match, error) {
	b.matchesCalls++
	var out []entities.Match
	for _, m := range b.matches {
		if filter.ParticipantID != 0 && m.Player1ID != filter.ParticipantID && m.Player2ID != filter.ParticipantID {
			continue
		}
		if len(filter.States) > 0 {
			ok := false
			for _, st := range filter.States {
				if m.State == st {
					ok = true
					break
				}
			}
			if !ok {
				continue
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (b *fakeBracket) MarkUnderway(_ context.Context, _, matchID int64) error {
	b.underway = append(b.underway, matchID)
	return nil
}

func (b *fakeBracket) ReportScore(_ context.Context, _, matchID int64, csv string, winnerID int64) error {
	b.reports = append(b.reports, reportedScore{matchID: matchID, csv: csv, winnerID: winnerID})
	return nil
}

func (b *fakeBracket) CreateParticipant(_ context.Context, _ int64, name string) (int64, error) {
	b.created = append(b.created, name)
	b.nextID++
	return b.nextID, nil
}

func (b *fakeBracket) DestroyParticipant(_ context.Context, _, participantID int64) error {
	b.destroyed = append(b.destroyed, participantID)
	return nil
}

func (b *fakeBracket) Standings(context.Context, int64) ([]entities.Standing, error) {
	return b.standings, nil
}

// sentMessage is one recorded SendMessage call.
type sentMessage struct {
	channelID string
	content   string
}

// fakeGateway records everything and serves configured channels/history.
type fakeGateway struct {
	nextMsgID int

	sent      []sentMessage
	edits     map[string]string // messageID -> latest content
	dms       map[string][]string
	granted   map[string][]string // userID -> roleIDs
	revoked   map[string][]string
	reactors  []string
	reactions []string // emoji added by the bot
	cleared   []string

	matchChannels map[string]string // name -> channelID
	histories     map[string][]output.Message
	lastMessages  map[string]*output.Message
	deleted       []string
	displayNames  map[string]string
	purged        []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		edits:         map[string]string{},
		dms:           map[string][]string{},
		granted:       map[string][]string{},
		revoked:       map[string][]string{},
		matchChannels: map[string]string{},
		histories:     map[string][]output.Message{},
		lastMessages:  map[string]*output.Message{},
		displayNames:  map[string]string{},
	}
}

func (g *fakeGateway) SendMessage(_ context.Context, channelID, content string) (string, error) {
	g.nextMsgID++
	id := fmt.Sprintf("msg-%d", g.nextMsgID)
	g.sent = append(g.sent, sentMessage{channelID: channelID, content: content})
	g.edits[id] = content
	return id, nil
}

func (g *fakeGateway) EditMessage(_ context.Context, _, messageID, content string) error {
	g.edits[messageID] = content
	return nil
}

func (g *fakeGateway) DeleteMessage(context.Context, string, string) error { return nil }

func (g *fakeGateway) PurgeChannel(_ context.Context, channelID string) error {
	g.purged = append(g.purged, channelID)
	return nil
}

func (g *fakeGateway) Message(_ context.Context, _, messageID string) (*output.Message, error) {
	content, ok := g.edits[messageID]
	if !ok {
		return nil, fmt.Errorf("message %s not found", messageID)
	}
	return &output.Message{ID: messageID, Content: content}, nil
}

func (g *fakeGateway) LastMessage(_ context.Context, channelID string) (*output.Message, error) {
	msg, ok := g.lastMessages[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %s empty", channelID)
	}
	return msg, nil
}

func (g *fakeGateway) History(_ context.Context, channelID string, visit func(output.Message) bool) error {
	for _, msg := range g.histories[channelID] {
		if !visit(msg) {
			return nil
		}
	}
	return nil
}

func (g *fakeGateway) SendDM(_ context.Context, userID, content string) error {
	g.dms[userID] = append(g.dms[userID], content)
	return nil
}

func (g *fakeGateway) AddReaction(_ context.Context, _, _, emoji string) error {
	g.reactions = append(g.reactions, emoji)
	return nil
}

func (g *fakeGateway) RemoveUserReaction(context.Context, string, string, string, string) error {
	return nil
}

func (g *fakeGateway) ClearReaction(_ context.Context, _, _, emoji string) error {
	g.cleared = append(g.cleared, emoji)
	return nil
}

func (g *fakeGateway) Reactors(context.Context, string, string, string) ([]string, error) {
	return g.reactors, nil
}

func (g *fakeGateway) GrantRole(_ context.Context, userID, roleID string) error {
	g.granted[userID] = append(g.granted[userID], roleID)
	return nil
}

func (g *fakeGateway) RevokeRole(_ context.Context, userID, roleID string) error {
	g.revoked[userID] = append(g.revoked[userID], roleID)
	return nil
}

func (g *fakeGateway) MemberDisplayName(_ context.Context, userID string) (string, error) {
	name, ok := g.displayNames[userID]
	if !ok {
		return "", fmt.Errorf("member %s not found", userID)
	}
	return name, nil
}

func (g *fakeGateway) CreateMatchChannel(_ context.Context, name string, _ int, _ []string) (string, error) {
	id := "chan-" + name
	g.matchChannels[name] = id
	return id, nil
}

func (g *fakeGateway) FindMatchChannel(_ context.Context, name string) (string, bool) {
	id, ok := g.matchChannels[name]
	return id, ok
}

func (g *fakeGateway) MatchChannels(context.Context) ([]output.Channel, error) {
	var out []output.Channel
	for name, id := range g.matchChannels {
		out = append(out, output.Channel{ID: id, Name: name})
	}
	return out, nil
}

func (g *fakeGateway) DeleteChannel(_ context.Context, channelID string) error {
	g.deleted = append(g.deleted, channelID)
	for name, id := range g.matchChannels {
		if id == channelID {
			delete(g.matchChannels, name)
		}
	}
	return nil
}

func (g *fakeGateway) PurgeMatchCategories(context.Context) error { return nil }

// channelSends returns the contents posted into one channel, in order.
func (g *fakeGateway) channelSends(channelID string) []string {
	var out []string
	for _, m := range g.sent {
		if m.channelID == channelID {
			out = append(out, m.content)
		}
	}
	return out
}

// fakeScheduler records scheduled jobs without running them.
type fakeScheduler struct {
	at        map[string]time.Time
	every     map[string]time.Duration
	cancelled []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{at: map[string]time.Time{}, every: map[string]time.Duration{}}
}

func (s *fakeScheduler) RunAt(id string, at time.Time, _ func()) { s.at[id] = at }

func (s *fakeScheduler) RunEvery(id string, every time.Duration, _ func()) { s.every[id] = every }

func (s *fakeScheduler) Cancel(id string) {
	s.cancelled = append(s.cancelled, id)
	delete(s.at, id)
	delete(s.every, id)
}

// keyT echoes the message key, which is enough to assert which message a
// flow picked.
type keyT struct{}

func (keyT) T(_ string, key string, _ map[string]any) string { return key }

var testChannels = Channels{
	Signup:     "ch-signup",
	Announce:   "ch-announce",
	CheckIn:    "ch-checkin",
	Scores:     "ch-scores",
	Queue:      "ch-queue",
	Stream:     "ch-stream",
	Results:    "ch-results",
	Tournament: "ch-tournament",
}

var testRoles = Roles{Organizer: "role-to", Challenger: "role-challenger", Streamer: "role-streamer"}
