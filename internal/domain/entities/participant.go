package entities

// Participant represents a registered player, keyed by Discord member ID.
type Participant struct {
	UserID      string `json:"-"`
	DisplayName string `json:"display_name"`
	CheckedIn   bool   `json:"checked_in"`
	// BracketID is the Challonge participant ID. Zero until the player is
	// registered with the bracket service, which bulk mode defers.
	BracketID int64 `json:"challonge,omitempty"`
}

// Participants is the registration aggregate.
type Participants struct {
	ByUser map[string]*Participant `json:"by_user"`

	Version int64 `json:"-"`
}

func NewParticipants() *Participants {
	return &Participants{ByUser: map[string]*Participant{}}
}

func (p *Participants) Get(userID string) *Participant {
	if p == nil || p.ByUser == nil {
		return nil
	}
	return p.ByUser[userID]
}

func (p *Participants) Add(part *Participant) {
	if p.ByUser == nil {
		p.ByUser = map[string]*Participant{}
	}
	p.ByUser[part.UserID] = part
}

func (p *Participants) Remove(userID string) { delete(p.ByUser, userID) }

func (p *Participants) Len() int { return len(p.ByUser) }

// ByBracketID resolves a participant from its Challonge ID.
func (p *Participants) ByBracketID(bracketID int64) *Participant {
	if bracketID == 0 {
		return nil
	}
	for _, part := range p.ByUser {
		if part.BracketID == bracketID {
			return part
		}
	}
	return nil
}

// WaitlistEntry is a player waiting for a slot to free up.
type WaitlistEntry struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// Waitlist keeps entries in insertion order; promotion is strictly FIFO.
type Waitlist struct {
	Entries []WaitlistEntry `json:"entries"`

	Version int64 `json:"-"`
}

func (w *Waitlist) Contains(userID string) bool {
	for _, e := range w.Entries {
		if e.UserID == userID {
			return true
		}
	}
	return false
}

func (w *Waitlist) Push(e WaitlistEntry) {
	if !w.Contains(e.UserID) {
		w.Entries = append(w.Entries, e)
	}
}

// Pop removes and returns the head of the waitlist.
func (w *Waitlist) Pop() (WaitlistEntry, bool) {
	if len(w.Entries) == 0 {
		return WaitlistEntry{}, false
	}
	head := w.Entries[0]
	w.Entries = w.Entries[1:]
	return head, true
}

func (w *Waitlist) Remove(userID string) bool {
	for i, e := range w.Entries {
		if e.UserID == userID {
			w.Entries = append(w.Entries[:i], w.Entries[i+1:]...)
			return true
		}
	}
	return false
}
