package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"atos/internal/domain"
	"atos/internal/domain/entities"
)

func newTournamentFixture(now time.Time) (*TournamentService, *memStore, *fakeBracket, *fakeGateway, *fakeScheduler) {
	store := newMemStore()
	bracket := newFakeBracket()
	gateway := newFakeGateway()
	scheduler := newFakeScheduler()
	registration := NewRegistrationService(store, bracket, gateway, keyT{}, "fr", testChannels, testRoles)
	registration.now = func() time.Time { return now }
	streams := NewStreamQueueService(store, bracket, gateway, keyT{}, "fr", testChannels)
	streams.now = func() time.Time { return now }
	engine := NewMatchEngine(store, bracket, gateway, streams, testChannels, testRoles)
	engine.now = func() time.Time { return now }
	svc := NewTournamentService(store, bracket, gateway, scheduler, registration, engine, testChannels, testRoles, false)
	svc.now = func() time.Time { return now }
	return svc, store, bracket, gateway, scheduler
}

func TestSetupCreatesPendingTournament(t *testing.T) {
	now := testStart.Add(-6 * time.Hour)
	svc, store, bracket, gateway, scheduler := newTournamentFixture(now)
	bracket.info = &entities.BracketInfo{
		ID:        42,
		Name:      "Weekly #12",
		GameName:  "Super Smash Bros. Ultimate",
		URL:       "https://challonge.com/weekly12",
		SignupCap: 64,
		StartAt:   testStart,
	}

	if err := svc.Setup(context.Background(), "https://challonge.com/weekly12"); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	tour := store.tournament
	if tour == nil || !tour.IsPending() {
		t.Fatalf("tournament = %+v, want pending", tour)
	}
	if !tour.CheckInStart.Equal(testStart.Add(-time.Hour)) {
		t.Errorf("check-in start = %v, want one hour before start", tour.CheckInStart)
	}
	if !tour.CheckInEnd.Equal(testStart.Add(-10 * time.Minute)) {
		t.Errorf("check-in end = %v, want ten minutes before start", tour.CheckInEnd)
	}
	if tour.AnnounceID == "" {
		t.Error("announcement message not recorded")
	}
	if len(gateway.reactions) != 1 || gateway.reactions[0] != signupEmoji {
		t.Errorf("seed reactions = %v, want the signup emoji", gateway.reactions)
	}
	if _, ok := scheduler.at[jobCheckInOpen]; !ok {
		t.Error("check-in open job not scheduled")
	}
	if _, ok := scheduler.at[jobCheckInClose]; !ok {
		t.Error("check-in close job not scheduled")
	}
	if signups := gateway.channelSends(testChannels.Signup); len(signups) == 0 || !strings.Contains(signups[0], "0/64") {
		t.Errorf("announcement = %v, want the counter at 0/64", signups)
	}
}

func TestSetupRejectsBadInput(t *testing.T) {
	now := testStart.Add(-6 * time.Hour)

	t.Run("malformed link", func(t *testing.T) {
		svc, _, _, _, _ := newTournamentFixture(now)
		if err := svc.Setup(context.Background(), "https://example.com/weekly12"); !errors.Is(err, domain.ErrBadLink) {
			t.Errorf("Setup = %v, want ErrBadLink", err)
		}
	})

	t.Run("start in the past", func(t *testing.T) {
		svc, _, bracket, _, _ := newTournamentFixture(now)
		bracket.info = &entities.BracketInfo{
			ID: 42, GameName: "Super Smash Bros. Ultimate",
			StartAt: now.Add(-time.Minute),
		}
		if err := svc.Setup(context.Background(), "challonge.com/weekly12"); !errors.Is(err, domain.ErrStartInPast) {
			t.Errorf("Setup = %v, want ErrStartInPast", err)
		}
	})

	t.Run("unknown game", func(t *testing.T) {
		svc, _, bracket, _, _ := newTournamentFixture(now)
		bracket.info = &entities.BracketInfo{
			ID: 42, GameName: "Mario Kart Wii",
			StartAt: testStart,
		}
		if err := svc.Setup(context.Background(), "challonge.com/weekly12"); !errors.Is(err, domain.ErrUnknownGame) {
			t.Errorf("Setup = %v, want ErrUnknownGame", err)
		}
	})

	t.Run("tournament already exists", func(t *testing.T) {
		svc, store, _, _, _ := newTournamentFixture(now)
		store.tournament = pendingTournament(64)
		if err := svc.Setup(context.Background(), "challonge.com/weekly12"); !errors.Is(err, domain.ErrWrongState) {
			t.Errorf("Setup = %v, want ErrWrongState", err)
		}
	})
}

func TestStartComputesTop8AndSchedulesPoll(t *testing.T) {
	now := testStart.Add(-5 * time.Minute) // after check-in close
	svc, store, bracket, _, scheduler := newTournamentFixture(now)
	store.tournament = pendingTournament(64)
	for _, round := range []int{-3, -2, -1, 1, 2, 3, 4} {
		bracket.matches = append(bracket.matches, entities.Match{ID: int64(100 + round), Round: round, State: "pending"})
	}

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tour := store.tournament
	if !tour.IsUnderway() {
		t.Fatalf("status = %q, want underway", tour.Status)
	}
	if !bracket.started {
		t.Error("bracket never started")
	}
	if tour.WinnerRoundTop8 != 2 || tour.LoserRoundTop8 != 0 {
		t.Errorf("top8 thresholds = (%d, %d), want (2, 0)", tour.WinnerRoundTop8, tour.LoserRoundTop8)
	}
	if _, ok := scheduler.every[jobMatchPoll]; !ok {
		t.Error("match poll not scheduled")
	}
}

func TestTop8Thresholds(t *testing.T) {
	cases := []struct {
		name       string
		rounds     []int
		winner     int
		loser      int
	}{
		{name: "64 entrants", rounds: []int{-8, -7, -6, -5, -4, -3, -2, -1, 1, 2, 3, 4, 5, 6}, winner: 4, loser: -5},
		{name: "8 entrants", rounds: []int{-2, -1, 1, 2, 3}, winner: 1, loser: 1},
		{name: "empty", rounds: nil, winner: 0, loser: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var matches []entities.Match
			for _, r := range tc.rounds {
				matches = append(matches, entities.Match{Round: r})
			}
			winner, loser := Top8Thresholds(matches)
			if winner != tc.winner || loser != tc.loser {
				t.Errorf("Top8Thresholds = (%d, %d), want (%d, %d)", winner, loser, tc.winner, tc.loser)
			}
		})
	}
}

func TestStartGuards(t *testing.T) {
	t.Run("no tournament", func(t *testing.T) {
		svc, _, _, _, _ := newTournamentFixture(testStart)
		if err := svc.Start(context.Background()); !errors.Is(err, domain.ErrWrongState) {
			t.Errorf("Start = %v, want ErrWrongState", err)
		}
	})

	t.Run("check-in still open", func(t *testing.T) {
		svc, store, _, _, _ := newTournamentFixture(testStart.Add(-30 * time.Minute))
		store.tournament = pendingTournament(64)
		if err := svc.Start(context.Background()); !errors.Is(err, domain.ErrTooEarly) {
			t.Errorf("Start = %v, want ErrTooEarly", err)
		}
	})

	t.Run("already underway", func(t *testing.T) {
		svc, store, _, _, _ := newTournamentFixture(testStart)
		store.tournament = underwayTournament()
		if err := svc.Start(context.Background()); !errors.Is(err, domain.ErrWrongState) {
			t.Errorf("Start = %v, want ErrWrongState", err)
		}
	})
}

func TestEndFinalizesAndResets(t *testing.T) {
	now := testStart.Add(4 * time.Hour)
	svc, store, bracket, gateway, scheduler := newTournamentFixture(now)
	store.tournament = underwayTournament()
	store.participants.Add(&entities.Participant{UserID: "u1", DisplayName: "Leffen", BracketID: 301})
	scheduler.every[jobMatchPoll] = pollInterval
	bracket.standings = []entities.Standing{
		{FinalRank: 1, DisplayName: "Leffen"},
		{FinalRank: 2, DisplayName: "Armada"},
		{FinalRank: 3, DisplayName: "Mango"},
		{FinalRank: 4, DisplayName: "Hungrybox"},
		{FinalRank: 5, DisplayName: "Plup"},
		{FinalRank: 5, DisplayName: "Zain"},
		{FinalRank: 7, DisplayName: "Wizzrobe"},
		{FinalRank: 7, DisplayName: "aMSa"},
	}

	if err := svc.End(context.Background()); err != nil {
		t.Fatalf("End: %v", err)
	}

	if !bracket.finalized {
		t.Error("bracket never finalized")
	}
	if store.tournament != nil {
		t.Error("tournament state not cleared")
	}
	if _, ok := scheduler.every[jobMatchPoll]; ok {
		t.Error("match poll still scheduled")
	}
	if got := gateway.revoked["u1"]; len(got) != 1 || got[0] != testRoles.Challenger {
		t.Errorf("roles revoked for u1 = %v, want the challenger role", got)
	}
	results := gateway.channelSends(testChannels.Results)
	if len(results) != 1 {
		t.Fatalf("results announcements = %d, want 1", len(results))
	}
	for _, want := range []string{"Leffen", "Armada", "Plup", "aMSa", "8 entrants"} {
		if !strings.Contains(results[0], want) {
			t.Errorf("results missing %q:\n%s", want, results[0])
		}
	}
}

func TestEndSmallBracketLinksOnly(t *testing.T) {
	now := testStart.Add(4 * time.Hour)
	svc, store, bracket, gateway, _ := newTournamentFixture(now)
	store.tournament = underwayTournament()
	bracket.standings = []entities.Standing{
		{FinalRank: 1, DisplayName: "Leffen"},
		{FinalRank: 2, DisplayName: "Armada"},
	}

	if err := svc.End(context.Background()); err != nil {
		t.Fatalf("End: %v", err)
	}

	results := gateway.channelSends(testChannels.Results)
	if len(results) != 1 || !strings.Contains(results[0], "challonge.com/weekly12") {
		t.Errorf("results = %v, want just the bracket link", results)
	}
}

func TestEndGuards(t *testing.T) {
	t.Run("pending tournament", func(t *testing.T) {
		svc, store, _, _, _ := newTournamentFixture(testStart)
		store.tournament = pendingTournament(64)
		if err := svc.End(context.Background()); !errors.Is(err, domain.ErrWrongState) {
			t.Errorf("End = %v, want ErrWrongState", err)
		}
	})

	t.Run("before start time", func(t *testing.T) {
		svc, store, _, _, _ := newTournamentFixture(testStart.Add(-time.Minute))
		store.tournament = underwayTournament()
		if err := svc.End(context.Background()); !errors.Is(err, domain.ErrTooEarly) {
			t.Errorf("End = %v, want ErrTooEarly", err)
		}
	})
}

func TestReloadReschedulesFromStatus(t *testing.T) {
	t.Run("underway resumes polling", func(t *testing.T) {
		svc, store, _, _, scheduler := newTournamentFixture(testStart.Add(time.Hour))
		store.tournament = underwayTournament()
		if err := svc.Reload(context.Background()); err != nil {
			t.Fatalf("Reload: %v", err)
		}
		if _, ok := scheduler.every[jobMatchPoll]; !ok {
			t.Error("match poll not resumed")
		}
	})

	t.Run("pending mid check-in resumes reminders", func(t *testing.T) {
		svc, store, _, _, scheduler := newTournamentFixture(testStart.Add(-30 * time.Minute))
		store.tournament = pendingTournament(64)
		if err := svc.Reload(context.Background()); err != nil {
			t.Fatalf("Reload: %v", err)
		}
		if _, ok := scheduler.at[jobCheckInClose]; !ok {
			t.Error("check-in close not rescheduled")
		}
		if _, ok := scheduler.every[jobCheckInReminder]; !ok {
			t.Error("check-in reminder not resumed")
		}
	})

	t.Run("no tournament is a no-op", func(t *testing.T) {
		svc, _, _, _, scheduler := newTournamentFixture(testStart)
		if err := svc.Reload(context.Background()); err != nil {
			t.Fatalf("Reload: %v", err)
		}
		if len(scheduler.at)+len(scheduler.every) != 0 {
			t.Error("jobs scheduled without a tournament")
		}
	})
}

func TestReloadReplaysMissedReactions(t *testing.T) {
	now := testStart.Add(-3 * time.Hour)
	svc, store, bracket, gateway, _ := newTournamentFixture(now)
	store.tournament = pendingTournament(64)
	store.participants.Add(&entities.Participant{UserID: "u1", DisplayName: "Leffen", BracketID: 301})
	store.participants.Add(&entities.Participant{UserID: "u2", DisplayName: "Armada", BracketID: 302})
	// u2 removed their reaction offline; u3 added one.
	gateway.reactors = []string{"u1", "u3"}
	gateway.displayNames["u3"] = "Mango"

	if err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if store.participants.Get("u3") == nil {
		t.Error("offline reactor not registered")
	}
	if store.participants.Get("u2") != nil {
		t.Error("offline unreactor still registered")
	}
	if store.participants.Get("u1") == nil {
		t.Error("untouched participant lost")
	}
	if len(bracket.destroyed) != 1 || bracket.destroyed[0] != 302 {
		t.Errorf("bracket deregistrations = %v, want [302]", bracket.destroyed)
	}
}

func TestBracketURLAndStages(t *testing.T) {
	svc, store, _, _, _ := newTournamentFixture(testStart)

	if _, err := svc.BracketURL(context.Background()); !errors.Is(err, domain.ErrNoTournament) {
		t.Errorf("BracketURL without tournament = %v, want ErrNoTournament", err)
	}

	store.tournament = pendingTournament(64)
	got, err := svc.BracketURL(context.Background())
	if err != nil {
		t.Fatalf("BracketURL: %v", err)
	}
	if !strings.Contains(got, "challonge.com/weekly12") {
		t.Errorf("BracketURL = %q", got)
	}

	stages, err := svc.Stages(context.Background())
	if err != nil {
		t.Fatalf("Stages: %v", err)
	}
	for _, want := range []string{"Battlefield", "Town and City"} {
		if !strings.Contains(stages, want) {
			t.Errorf("stages missing %q:\n%s", want, stages)
		}
	}
}
