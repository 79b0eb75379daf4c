package entities

import "time"

// Status is the tournament lifecycle state.
type Status string

const (
	StatusNone     Status = ""
	StatusPending  Status = "pending"
	StatusUnderway Status = "underway"
)

// Tournament is the singleton aggregate driving the whole orchestration.
// At most one instance exists at a time; an empty record means StatusNone.
type Tournament struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Game            string    `json:"game"`
	URL             string    `json:"url"`
	Cap             int       `json:"limit"`
	Status          Status    `json:"status"`
	StartAt         time.Time `json:"tournament_start"`
	CheckInStart    time.Time `json:"checkin_start"`
	CheckInEnd      time.Time `json:"checkin_end"`
	WinnerRoundTop8 int       `json:"winner_round_top8"`
	LoserRoundTop8  int       `json:"loser_round_top8"`
	// Warned and TimedOut hold play orders of sets already handled by the
	// inactivity passes, so warnings and auto-DQ stay idempotent.
	Warned        []int  `json:"warned"`
	TimedOut      []int  `json:"timed_out"`
	AnnounceID    string `json:"announce_id,omitempty"`
	WaitlistMsgID string `json:"waitlist_msg_id,omitempty"`
	BulkMode      bool   `json:"bulk_mode"`

	// Version stamps the persisted record for compare-and-swap writes.
	Version int64 `json:"-"`
}

func (t *Tournament) IsPending() bool  { return t != nil && t.Status == StatusPending }
func (t *Tournament) IsUnderway() bool { return t != nil && t.Status == StatusUnderway }

// IsTop8 reports whether a bracket round belongs to the top 8.
// Winner-side rounds are positive, loser-side rounds negative.
func (t *Tournament) IsTop8(round int) bool {
	return round >= t.WinnerRoundTop8 || round <= t.LoserRoundTop8
}

// HasWarned reports whether the set was already warned for inactivity.
func (t *Tournament) HasWarned(playOrder int) bool {
	for _, o := range t.Warned {
		if o == playOrder {
			return true
		}
	}
	return false
}

// HasTimedOut reports whether the set already went through the auto-DQ pass.
func (t *Tournament) HasTimedOut(playOrder int) bool {
	for _, o := range t.TimedOut {
		if o == playOrder {
			return true
		}
	}
	return false
}

// MarkWarned records the set as warned. Re-adding is a no-op.
func (t *Tournament) MarkWarned(playOrder int) {
	if !t.HasWarned(playOrder) {
		t.Warned = append(t.Warned, playOrder)
	}
}

// MarkTimedOut records the set as timed out. Only valid after MarkWarned.
func (t *Tournament) MarkTimedOut(playOrder int) {
	if t.HasWarned(playOrder) && !t.HasTimedOut(playOrder) {
		t.TimedOut = append(t.TimedOut, playOrder)
	}
}
