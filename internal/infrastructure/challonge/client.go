// Package challonge talks to the Challonge v1 REST API. Server-side and
// network failures are wrapped with domain.ErrTransient so the application
// layer retries them with backoff.
package challonge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"atos/internal/domain"
	"atos/internal/domain/entities"
	"atos/internal/ports/output"
)

const defaultBaseURL = "https://api.challonge.com/v1"

var _ output.BracketService = (*Client)(nil)

// Client is an authenticated Challonge API client.
type Client struct {
	baseURL  string
	username string
	apiKey   string
	http     *http.Client
}

func NewClient(username, apiKey string) *Client {
	return &Client{
		baseURL:  defaultBaseURL,
		username: username,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// NewClientWithBaseURL targets a non-default API endpoint, for tests.
func NewClientWithBaseURL(username, apiKey, baseURL string) *Client {
	c := NewClient(username, apiKey)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, dst any) error {
	endpoint := c.baseURL + path + ".json"
	var body io.Reader
	if method != http.MethodGet && len(params) > 0 {
		body = strings.NewReader(params.Encode())
	} else if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("challonge: build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("challonge: %s %s: %v: %w", method, path, err, domain.ErrTransient)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("challonge: %s %s: HTTP %d: %w", method, path, resp.StatusCode, domain.ErrTransient)
	case resp.StatusCode >= 400:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("challonge: %s %s: HTTP %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("challonge: decode %s: %w", path, err)
	}
	return nil
}

// API envelope types. Challonge wraps every record under its singular name.

type tournamentEnvelope struct {
	Tournament struct {
		ID               int64     `json:"id"`
		Name             string    `json:"name"`
		GameName         string    `json:"game_name"`
		FullChallongeURL string    `json:"full_challonge_url"`
		SignupCap        int       `json:"signup_cap"`
		State            string    `json:"state"`
		StartAt          time.Time `json:"start_at"`
	} `json:"tournament"`
}

type matchEnvelope struct {
	Match struct {
		ID                 int64      `json:"id"`
		Round              int        `json:"round"`
		SuggestedPlayOrder int        `json:"suggested_play_order"`
		Player1ID          int64      `json:"player1_id"`
		Player2ID          int64      `json:"player2_id"`
		State              string     `json:"state"`
		UnderwayAt         *time.Time `json:"underway_at"`
	} `json:"match"`
}

type participantEnvelope struct {
	Participant struct {
		ID          int64  `json:"id"`
		DisplayName string `json:"display_name"`
		FinalRank   int    `json:"final_rank"`
	} `json:"participant"`
}

func (c *Client) Show(ctx context.Context, ref string) (*entities.BracketInfo, error) {
	var env tournamentEnvelope
	if err := c.do(ctx, http.MethodGet, "/tournaments/"+url.PathEscape(ref), nil, &env); err != nil {
		return nil, err
	}
	t := env.Tournament
	return &entities.BracketInfo{
		ID:        t.ID,
		Name:      t.Name,
		GameName:  t.GameName,
		URL:       t.FullChallongeURL,
		SignupCap: t.SignupCap,
		State:     t.State,
		StartAt:   t.StartAt,
	}, nil
}

func (c *Client) Start(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/tournaments/%d/start", id), nil, nil)
}

func (c *Client) Finalize(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/tournaments/%d/finalize", id), nil, nil)
}

func (c *Client) Matches(ctx context.Context, id int64, filter output.MatchFilter) ([]entities.Match, error) {
	params := url.Values{}
	if len(filter.States) > 0 {
		params.Set("state", strings.Join(filter.States, ","))
	}
	if filter.ParticipantID != 0 {
		params.Set("participant_id", strconv.FormatInt(filter.ParticipantID, 10))
	}
	var envs []matchEnvelope
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tournaments/%d/matches", id), params, &envs); err != nil {
		return nil, err
	}
	matches := make([]entities.Match, 0, len(envs))
	for _, env := range envs {
		m := env.Match
		matches = append(matches, entities.Match{
			ID:         m.ID,
			Round:      m.Round,
			PlayOrder:  m.SuggestedPlayOrder,
			Player1ID:  m.Player1ID,
			Player2ID:  m.Player2ID,
			State:      m.State,
			UnderwayAt: m.UnderwayAt,
		})
	}
	return matches, nil
}

func (c *Client) MarkUnderway(ctx context.Context, id, matchID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/tournaments/%d/matches/%d/mark_as_underway", id, matchID), nil, nil)
}

func (c *Client) ReportScore(ctx context.Context, id, matchID int64, scoresCSV string, winnerID int64) error {
	params := url.Values{}
	params.Set("match[scores_csv]", scoresCSV)
	params.Set("match[winner_id]", strconv.FormatInt(winnerID, 10))
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/tournaments/%d/matches/%d", id, matchID), params, nil)
}

func (c *Client) CreateParticipant(ctx context.Context, id int64, name string) (int64, error) {
	params := url.Values{}
	params.Set("participant[name]", name)
	var env participantEnvelope
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/tournaments/%d/participants", id), params, &env); err != nil {
		return 0, err
	}
	return env.Participant.ID, nil
}

func (c *Client) DestroyParticipant(ctx context.Context, id, participantID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/tournaments/%d/participants/%d", id, participantID), nil, nil)
}

func (c *Client) Standings(ctx context.Context, id int64) ([]entities.Standing, error) {
	var envs []participantEnvelope
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tournaments/%d/participants", id), nil, &envs); err != nil {
		return nil, err
	}
	standings := make([]entities.Standing, 0, len(envs))
	for _, env := range envs {
		p := env.Participant
		if p.FinalRank == 0 {
			continue
		}
		standings = append(standings, entities.Standing{
			FinalRank:   p.FinalRank,
			DisplayName: p.DisplayName,
		})
	}
	return standings, nil
}
