package entities

// StreamSession is one stream operator's state: their Twitch channel, the
// access codes for the current arena, the set currently broadcast and the
// FIFO backlog of sets to broadcast next.
type StreamSession struct {
	OperatorID string   `json:"-"`
	Channel    string   `json:"channel"`
	Access     []string `json:"access"`
	// OnStream is the play order of the set currently on stream, nil if none.
	OnStream *int  `json:"on_stream"`
	Queue    []int `json:"queue"`
}

// Streams is the stream-queue aggregate, keyed by operator member ID.
type Streams struct {
	ByOperator map[string]*StreamSession `json:"by_operator"`

	Version int64 `json:"-"`
}

func NewStreams() *Streams {
	return &Streams{ByOperator: map[string]*StreamSession{}}
}

func (s *Streams) Get(operatorID string) *StreamSession {
	if s == nil || s.ByOperator == nil {
		return nil
	}
	return s.ByOperator[operatorID]
}

func (s *Streams) Put(sess *StreamSession) {
	if s.ByOperator == nil {
		s.ByOperator = map[string]*StreamSession{}
	}
	s.ByOperator[sess.OperatorID] = sess
}

func (s *Streams) Remove(operatorID string) { delete(s.ByOperator, operatorID) }

// IsQueued reports whether any operator has the set in their queue.
func (s *Streams) IsQueued(playOrder int) bool {
	if s == nil {
		return false
	}
	for _, sess := range s.ByOperator {
		for _, o := range sess.Queue {
			if o == playOrder {
				return true
			}
		}
	}
	return false
}

// IsOnStream reports whether any operator is currently broadcasting the set.
func (s *Streams) IsOnStream(playOrder int) bool {
	if s == nil {
		return false
	}
	for _, sess := range s.ByOperator {
		if sess.OnStream != nil && *sess.OnStream == playOrder {
			return true
		}
	}
	return false
}

// Enqueue appends a set to the operator's queue, ignoring duplicates.
func (sess *StreamSession) Enqueue(playOrder int) {
	for _, o := range sess.Queue {
		if o == playOrder {
			return
		}
	}
	sess.Queue = append(sess.Queue, playOrder)
}

// Dequeue removes every occurrence of the set from the operator's queue.
func (sess *StreamSession) Dequeue(playOrder int) bool {
	removed := false
	out := sess.Queue[:0]
	for _, o := range sess.Queue {
		if o == playOrder {
			removed = true
			continue
		}
		out = append(out, o)
	}
	sess.Queue = out
	return removed
}
