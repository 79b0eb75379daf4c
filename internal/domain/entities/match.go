package entities

import "time"

// BracketInfo is the bracket-service view of a tournament, fetched at setup.
type BracketInfo struct {
	ID        int64
	Name      string
	GameName  string
	URL       string
	SignupCap int
	State     string
	StartAt   time.Time
}

// Match is one set as reported by the bracket service. Rounds are positive on
// the winner side and negative on the loser side. PlayOrder is the suggested
// play order, used to name temporary channels and identify sets in queues.
type Match struct {
	ID         int64
	Round      int
	PlayOrder  int
	Player1ID  int64
	Player2ID  int64
	State      string
	UnderwayAt *time.Time
}

// Started reports whether the set was marked underway.
func (m *Match) Started() bool { return m.UnderwayAt != nil }

// Standing is one line of the final ranking.
type Standing struct {
	FinalRank   int
	DisplayName string
}
