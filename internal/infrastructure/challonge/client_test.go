package challonge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"atos/internal/domain"
	"atos/internal/ports/output"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithBaseURL("user", "key", srv.URL)
}

func TestShowDecodesTournament(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tournaments/weekly12.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if user, key, _ := r.BasicAuth(); user != "user" || key != "key" {
			t.Error("missing basic auth credentials")
		}
		w.Write([]byte(`{"tournament": {
			"id": 42,
			"name": "Weekly #12",
			"game_name": "Super Smash Bros. Ultimate",
			"full_challonge_url": "https://challonge.com/weekly12",
			"signup_cap": 64,
			"state": "pending",
			"start_at": "2024-11-16T21:00:00.000Z"
		}}`))
	})

	info, err := c.Show(context.Background(), "weekly12")
	if err != nil {
		t.Fatalf("Show: %v", err)
	}
	if info.ID != 42 || info.SignupCap != 64 || info.GameName != "Super Smash Bros. Ultimate" {
		t.Errorf("info = %+v", info)
	}
	if info.StartAt.IsZero() {
		t.Error("start time not decoded")
	}
}

func TestMatchesPassesFilter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != "open,pending" || q.Get("participant_id") != "301" {
			t.Errorf("query = %v", q)
		}
		w.Write([]byte(`[
			{"match": {"id": 9001, "round": -2, "suggested_play_order": 5,
			           "player1_id": 301, "player2_id": 302, "state": "open",
			           "underway_at": "2024-11-16T21:30:00.000Z"}},
			{"match": {"id": 9002, "round": 1, "suggested_play_order": 6,
			           "player1_id": 303, "player2_id": 304, "state": "open",
			           "underway_at": null}}
		]`))
	})

	matches, err := c.Matches(context.Background(), 42, output.MatchFilter{
		States:        []string{"open", "pending"},
		ParticipantID: 301,
	})
	if err != nil {
		t.Fatalf("Matches: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].PlayOrder != 5 || matches[0].Round != -2 || !matches[0].Started() {
		t.Errorf("first match = %+v", matches[0])
	}
	if matches[1].Started() {
		t.Error("null underway_at decoded as started")
	}
}

func TestReportScoreSendsForm(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("match[scores_csv]"); got != "2-1" {
			t.Errorf("scores_csv = %q", got)
		}
		if got := r.PostForm.Get("match[winner_id]"); got != "301" {
			t.Errorf("winner_id = %q", got)
		}
		w.Write([]byte(`{}`))
	})

	if err := c.ReportScore(context.Background(), 42, 9001, "2-1", 301); err != nil {
		t.Fatalf("ReportScore: %v", err)
	}
}

func TestStandingsSkipsUnranked(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"participant": {"id": 301, "display_name": "Leffen", "final_rank": 1}},
			{"participant": {"id": 302, "display_name": "Armada", "final_rank": 0}}
		]`))
	})

	standings, err := c.Standings(context.Background(), 42)
	if err != nil {
		t.Fatalf("Standings: %v", err)
	}
	if len(standings) != 1 || standings[0].DisplayName != "Leffen" {
		t.Errorf("standings = %+v", standings)
	}
}

func TestServerErrorsAreTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	err := c.Start(context.Background(), 42)
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("5xx error = %v, want to wrap ErrTransient", err)
	}
}

func TestClientErrorsAreNot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such tournament", http.StatusNotFound)
	})

	err := c.Finalize(context.Background(), 42)
	if err == nil || errors.Is(err, domain.ErrTransient) {
		t.Fatalf("4xx error = %v, want a permanent failure", err)
	}
}
