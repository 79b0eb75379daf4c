package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"atos/internal/domain"
	"atos/internal/domain/entities"
	"atos/internal/ports/output"
)

func underwayTournament() *entities.Tournament {
	t := pendingTournament(64)
	t.Status = entities.StatusUnderway
	t.WinnerRoundTop8 = 4
	t.LoserRoundTop8 = -6
	return t
}

func newMatchFixture(now time.Time) (*MatchEngine, *memStore, *fakeBracket, *fakeGateway) {
	store := newMemStore()
	store.tournament = underwayTournament()
	bracket := newFakeBracket()
	gateway := newFakeGateway()
	streams := NewStreamQueueService(store, bracket, gateway, keyT{}, "fr", testChannels)
	streams.now = func() time.Time { return now }
	engine := NewMatchEngine(store, bracket, gateway, streams, testChannels, testRoles)
	engine.now = func() time.Time { return now }
	return engine, store, bracket, gateway
}

func addPlayers(store *memStore) {
	store.participants.Add(&entities.Participant{UserID: "u1", DisplayName: "Leffen", CheckedIn: true, BracketID: 301})
	store.participants.Add(&entities.Participant{UserID: "u2", DisplayName: "Armada", CheckedIn: true, BracketID: 302})
}

func openMatch(id int64, round, playOrder int, underway *time.Time) entities.Match {
	return entities.Match{
		ID: id, Round: round, PlayOrder: playOrder,
		Player1ID: 301, Player2ID: 302,
		State: "open", UnderwayAt: underway,
	}
}

func TestPollLaunchesOpenSets(t *testing.T) {
	now := testStart.Add(30 * time.Minute)
	engine, store, bracket, gateway := newMatchFixture(now)
	addPlayers(store)
	bracket.matches = []entities.Match{openMatch(9001, 1, 5, nil)}

	engine.Poll(context.Background())

	if len(bracket.underway) != 1 || bracket.underway[0] != 9001 {
		t.Errorf("sets marked underway = %v, want [9001]", bracket.underway)
	}
	if _, ok := gateway.matchChannels["5"]; !ok {
		t.Error("no channel created for set 5")
	}
	queue := gateway.channelSends(testChannels.Queue)
	if len(queue) != 1 {
		t.Fatalf("queue announcements = %d, want 1", len(queue))
	}
}

func TestPollSkipsAlreadyStartedSets(t *testing.T) {
	now := testStart.Add(30 * time.Minute)
	engine, store, bracket, _ := newMatchFixture(now)
	addPlayers(store)
	begun := now.Add(-2 * time.Minute)
	bracket.matches = []entities.Match{openMatch(9001, 1, 5, &begun)}

	engine.Poll(context.Background())

	if len(bracket.underway) != 0 {
		t.Errorf("sets marked underway = %v, want none", bracket.underway)
	}
}

func TestReportWinScoreValidation(t *testing.T) {
	cases := []struct {
		name  string
		round int
		score string
		want  error
		csv   string
	}{
		{name: "bo3 clean", round: 1, score: "2-0", csv: "2-0"},
		{name: "bo3 close", round: 2, score: "2-1", csv: "2-1"},
		{name: "bo3 loser order swapped", round: 1, score: "0-2", csv: "2-0"},
		{name: "bo3 overshoot", round: 1, score: "3-0", want: domain.ErrBadScore},
		{name: "bo3 loser too high", round: 1, score: "2-2", want: domain.ErrBadScore},
		{name: "top8 bo5", round: 4, score: "3-1", csv: "3-1"},
		{name: "top8 loser side", round: -6, score: "3-2", csv: "3-2"},
		{name: "top8 undershoot", round: 4, score: "2-0", want: domain.ErrBadScore},
		{name: "top8 loser too high", round: 4, score: "3-3", want: domain.ErrBadScore},
		{name: "garbage", round: 1, score: "beaucoup", want: domain.ErrBadScore},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now := testStart.Add(2 * time.Hour)
			engine, store, bracket, _ := newMatchFixture(now)
			addPlayers(store)
			begun := now.Add(-30 * time.Minute)
			bracket.matches = []entities.Match{openMatch(9001, tc.round, 5, &begun)}

			err := engine.ReportWin(context.Background(), "u1", tc.score)
			if !errors.Is(err, tc.want) {
				t.Fatalf("ReportWin(%q) = %v, want %v", tc.score, err, tc.want)
			}
			if tc.want != nil {
				if len(bracket.reports) != 0 {
					t.Fatalf("score submitted despite rejection: %v", bracket.reports)
				}
				return
			}
			if len(bracket.reports) != 1 {
				t.Fatalf("reports = %d, want 1", len(bracket.reports))
			}
			r := bracket.reports[0]
			if r.csv != tc.csv || r.winnerID != 301 {
				t.Errorf("reported %q winner %d, want %q winner 301", r.csv, r.winnerID, tc.csv)
			}
		})
	}
}

func TestReportWinOrientsScoreToPlayerOrder(t *testing.T) {
	now := testStart.Add(2 * time.Hour)
	engine, store, bracket, _ := newMatchFixture(now)
	addPlayers(store)
	begun := now.Add(-30 * time.Minute)
	bracket.matches = []entities.Match{openMatch(9001, 1, 5, &begun)}

	// u2 is player2: their winning 2-0 must be submitted as 0-2.
	if err := engine.ReportWin(context.Background(), "u2", "2-0"); err != nil {
		t.Fatalf("ReportWin: %v", err)
	}
	r := bracket.reports[0]
	if r.csv != "0-2" || r.winnerID != 302 {
		t.Errorf("reported %q winner %d, want 0-2 winner 302", r.csv, r.winnerID)
	}
}

func TestReportWinRejectsTooShortSet(t *testing.T) {
	now := testStart.Add(2 * time.Hour)
	engine, store, bracket, _ := newMatchFixture(now)
	addPlayers(store)
	begun := now.Add(-2 * time.Minute)
	bracket.matches = []entities.Match{openMatch(9001, 1, 5, &begun)}

	if err := engine.ReportWin(context.Background(), "u1", "2-0"); !errors.Is(err, domain.ErrMatchTooShort) {
		t.Fatalf("ReportWin = %v, want ErrMatchTooShort", err)
	}

	// Top 8 holds the score for ten minutes, not five.
	begun = now.Add(-7 * time.Minute)
	bracket.matches = []entities.Match{openMatch(9001, 4, 5, &begun)}
	if err := engine.ReportWin(context.Background(), "u1", "3-0"); !errors.Is(err, domain.ErrMatchTooShort) {
		t.Fatalf("top8 ReportWin = %v, want ErrMatchTooShort", err)
	}
}

func TestReportWinGuards(t *testing.T) {
	now := testStart.Add(2 * time.Hour)
	engine, store, bracket, _ := newMatchFixture(now)
	addPlayers(store)

	if err := engine.ReportWin(context.Background(), "ghost", "2-0"); !errors.Is(err, domain.ErrNotRegistered) {
		t.Errorf("unregistered reporter = %v, want ErrNotRegistered", err)
	}
	if err := engine.ReportWin(context.Background(), "u1", "2-0"); !errors.Is(err, domain.ErrNoOpenMatch) {
		t.Errorf("no open set = %v, want ErrNoOpenMatch", err)
	}

	bracket.matches = []entities.Match{openMatch(9001, 1, 5, nil)}
	if err := engine.ReportWin(context.Background(), "u1", "2-0"); !errors.Is(err, domain.ErrMatchNotBegun) {
		t.Errorf("not begun = %v, want ErrMatchNotBegun", err)
	}

	store.tournament.Status = entities.StatusPending
	if err := engine.ReportWin(context.Background(), "u1", "2-0"); !errors.Is(err, domain.ErrWrongState) {
		t.Errorf("pending tournament = %v, want ErrWrongState", err)
	}
}

func TestForfeitKeepsPlayerOrder(t *testing.T) {
	now := testStart.Add(2 * time.Hour)
	begun := now.Add(-time.Minute)

	t.Run("player1 forfeits", func(t *testing.T) {
		engine, store, bracket, _ := newMatchFixture(now)
		addPlayers(store)
		bracket.matches = []entities.Match{openMatch(9001, 1, 5, &begun)}

		if err := engine.Forfeit(context.Background(), "u1"); err != nil {
			t.Fatalf("Forfeit: %v", err)
		}
		r := bracket.reports[0]
		if r.csv != "0-1" || r.winnerID != 302 {
			t.Errorf("reported %q winner %d, want 0-1 winner 302", r.csv, r.winnerID)
		}
	})

	t.Run("player2 forfeits", func(t *testing.T) {
		engine, store, bracket, _ := newMatchFixture(now)
		addPlayers(store)
		bracket.matches = []entities.Match{openMatch(9001, 1, 5, &begun)}

		if err := engine.Forfeit(context.Background(), "u2"); err != nil {
			t.Fatalf("Forfeit: %v", err)
		}
		r := bracket.reports[0]
		if r.csv != "1-0" || r.winnerID != 301 {
			t.Errorf("reported %q winner %d, want 1-0 winner 301", r.csv, r.winnerID)
		}
	})
}

func TestInactivityWarnsOnce(t *testing.T) {
	now := testStart.Add(2 * time.Hour)
	engine, store, bracket, gateway := newMatchFixture(now)
	addPlayers(store)
	// Underway past the 28 minute Ultimate threshold, within the grace.
	begun := now.Add(-30 * time.Minute)
	bracket.matches = []entities.Match{openMatch(9001, 1, 5, &begun)}
	gateway.matchChannels["5"] = "chan-5"

	engine.Poll(context.Background())
	engine.Poll(context.Background())

	if !store.tournament.HasWarned(5) {
		t.Fatal("set 5 not recorded as warned")
	}
	warnings := 0
	for _, content := range gateway.channelSends("chan-5") {
		if content != "" {
			warnings++
		}
	}
	if warnings != 1 {
		t.Errorf("warnings posted = %d, want exactly 1", warnings)
	}
	if store.tournament.HasTimedOut(5) {
		t.Error("timed out before the grace elapsed")
	}
}

func TestInactivitySilentPlayerDisqualified(t *testing.T) {
	now := testStart.Add(2 * time.Hour)
	engine, store, bracket, gateway := newMatchFixture(now)
	addPlayers(store)
	begun := now.Add(-45 * time.Minute)
	bracket.matches = []entities.Match{openMatch(9001, 1, 5, &begun)}
	gateway.matchChannels["5"] = "chan-5"
	store.tournament.MarkWarned(5)
	// Only u1 ever spoke; bot noise must be ignored.
	gateway.histories["chan-5"] = []output.Message{
		{AuthorID: "bot", AuthorIsBot: true, CreatedAt: now.Add(-time.Minute)},
		{AuthorID: "u1", CreatedAt: now.Add(-5 * time.Minute)},
	}

	engine.Poll(context.Background())

	if !store.tournament.HasTimedOut(5) {
		t.Fatal("set 5 not recorded as timed out")
	}
	if len(bracket.destroyed) != 1 || bracket.destroyed[0] != 302 {
		t.Errorf("disqualified = %v, want the silent player 302", bracket.destroyed)
	}
}

func TestInactivityBothSilentDisqualifiesBoth(t *testing.T) {
	now := testStart.Add(2 * time.Hour)
	engine, store, bracket, gateway := newMatchFixture(now)
	addPlayers(store)
	begun := now.Add(-45 * time.Minute)
	bracket.matches = []entities.Match{openMatch(9001, 1, 5, &begun)}
	gateway.matchChannels["5"] = "chan-5"
	store.tournament.MarkWarned(5)
	gateway.histories["chan-5"] = []output.Message{
		{AuthorID: "bot", AuthorIsBot: true, CreatedAt: now.Add(-time.Minute)},
	}

	engine.Poll(context.Background())

	if len(bracket.destroyed) != 2 {
		t.Errorf("disqualified = %v, want both players", bracket.destroyed)
	}
}

func TestInactivityCloseGapEscalates(t *testing.T) {
	now := testStart.Add(2 * time.Hour)
	engine, store, bracket, gateway := newMatchFixture(now)
	addPlayers(store)
	begun := now.Add(-45 * time.Minute)
	bracket.matches = []entities.Match{openMatch(9001, 1, 5, &begun)}
	gateway.matchChannels["5"] = "chan-5"
	store.tournament.MarkWarned(5)
	// Both spoke three minutes apart: a human decides.
	gateway.histories["chan-5"] = []output.Message{
		{AuthorID: "u1", CreatedAt: now.Add(-5 * time.Minute)},
		{AuthorID: "u2", CreatedAt: now.Add(-8 * time.Minute)},
	}

	engine.Poll(context.Background())

	if len(bracket.destroyed) != 0 {
		t.Errorf("disqualified = %v, want none on a close gap", bracket.destroyed)
	}
	if !store.tournament.HasTimedOut(5) {
		t.Error("escalation must still mark the set handled")
	}
}

func TestInactivityWideGapDisqualifiesLessRecent(t *testing.T) {
	now := testStart.Add(2 * time.Hour)
	engine, store, bracket, gateway := newMatchFixture(now)
	addPlayers(store)
	begun := now.Add(-45 * time.Minute)
	bracket.matches = []entities.Match{openMatch(9001, 1, 5, &begun)}
	gateway.matchChannels["5"] = "chan-5"
	store.tournament.MarkWarned(5)
	gateway.histories["chan-5"] = []output.Message{
		{AuthorID: "u2", CreatedAt: now.Add(-2 * time.Minute)},
		{AuthorID: "u1", CreatedAt: now.Add(-20 * time.Minute)},
	}

	engine.Poll(context.Background())

	if len(bracket.destroyed) != 1 || bracket.destroyed[0] != 301 {
		t.Errorf("disqualified = %v, want the less recent player 301", bracket.destroyed)
	}
}

func TestInactivitySkipsStreamedSets(t *testing.T) {
	now := testStart.Add(2 * time.Hour)
	engine, store, bracket, gateway := newMatchFixture(now)
	addPlayers(store)
	begun := now.Add(-45 * time.Minute)
	bracket.matches = []entities.Match{openMatch(9001, 1, 5, &begun)}
	gateway.matchChannels["5"] = "chan-5"
	store.streams.Put(&entities.StreamSession{OperatorID: "op", Channel: "atos_tv", Queue: []int{5}})

	engine.Poll(context.Background())

	if store.tournament.HasWarned(5) {
		t.Error("queued set warned for inactivity")
	}
}

func TestCleanupDeletesStaleClosedChannels(t *testing.T) {
	now := testStart.Add(2 * time.Hour)
	engine, store, bracket, gateway := newMatchFixture(now)
	addPlayers(store)
	begun := now.Add(-2 * time.Minute)
	bracket.matches = []entities.Match{openMatch(9001, 1, 5, &begun)}

	gateway.matchChannels["5"] = "chan-5"  // still open, untouchable
	gateway.matchChannels["3"] = "chan-3"  // closed, stale
	gateway.matchChannels["4"] = "chan-4"  // closed but recently active
	gateway.lastMessages["chan-3"] = &output.Message{CreatedAt: now.Add(-10 * time.Minute)}
	gateway.lastMessages["chan-4"] = &output.Message{CreatedAt: now.Add(-time.Minute)}

	engine.Poll(context.Background())

	if len(gateway.deleted) != 1 || gateway.deleted[0] != "chan-3" {
		t.Errorf("deleted channels = %v, want only chan-3", gateway.deleted)
	}
}

func TestRoundLabel(t *testing.T) {
	if got := roundLabel(3); got != "Winner round 3" {
		t.Errorf("roundLabel(3) = %q", got)
	}
	if got := roundLabel(-4); got != "Looser round 4" {
		t.Errorf("roundLabel(-4) = %q", got)
	}
}
