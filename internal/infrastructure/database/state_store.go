package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"atos/internal/domain"
	"atos/internal/domain/entities"
	"atos/internal/ports/output"
)

var _ output.StateStore = (*StateStore)(nil)

// Aggregate keys in the bot_state table. One row per aggregate.
const (
	keyTournament   = "tournament"
	keyParticipants = "participants"
	keyWaitlist     = "waitlist"
	keyStreams      = "streams"
)

// StateStore persists the four tournament aggregates as JSONB rows with a
// version stamp. Saves are compare-and-swap on that stamp: a concurrent
// writer surfaces as domain.ErrVersionConflict instead of a silent overwrite.
type StateStore struct {
	pool *pgxpool.Pool
}

func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

func (s *StateStore) load(ctx context.Context, key string, dst any) (int64, bool, error) {
	var raw []byte
	var version int64
	err := s.pool.QueryRow(ctx,
		`SELECT value, version FROM bot_state WHERE key = $1`, key).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := decodeState(key, raw, dst); err != nil {
		return 0, false, err
	}
	return version, true, nil
}

func encodeState(key string, src any) ([]byte, error) {
	raw, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	return raw, nil
}

func decodeState(key string, raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Member and operator IDs are serialized as map keys only; restore the
// struct fields after decoding.

func rehydrateParticipants(p *entities.Participants) {
	for userID, part := range p.ByUser {
		part.UserID = userID
	}
}

func rehydrateStreams(st *entities.Streams) {
	for operatorID, sess := range st.ByOperator {
		sess.OperatorID = operatorID
	}
}

func (s *StateStore) save(ctx context.Context, key string, src any, version int64) (int64, error) {
	raw, err := encodeState(key, src)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO bot_state (key, value, version) VALUES ($1, $2, 1)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, version = bot_state.version + 1
		 WHERE bot_state.version = $3`,
		key, raw, version)
	if err != nil {
		return 0, fmt.Errorf("save %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, fmt.Errorf("save %s: %w", key, domain.ErrVersionConflict)
	}
	return version + 1, nil
}

func (s *StateStore) Tournament(ctx context.Context) (*entities.Tournament, error) {
	var t entities.Tournament
	version, ok, err := s.load(ctx, keyTournament, &t)
	if err != nil || !ok {
		return nil, err
	}
	t.Version = version
	return &t, nil
}

func (s *StateStore) SaveTournament(ctx context.Context, t *entities.Tournament) error {
	version, err := s.save(ctx, keyTournament, t, t.Version)
	if err != nil {
		return err
	}
	t.Version = version
	return nil
}

func (s *StateStore) Participants(ctx context.Context) (*entities.Participants, error) {
	p := entities.NewParticipants()
	version, ok, err := s.load(ctx, keyParticipants, p)
	if err != nil {
		return nil, err
	}
	if ok {
		p.Version = version
		rehydrateParticipants(p)
	}
	return p, nil
}

func (s *StateStore) SaveParticipants(ctx context.Context, p *entities.Participants) error {
	version, err := s.save(ctx, keyParticipants, p, p.Version)
	if err != nil {
		return err
	}
	p.Version = version
	return nil
}

func (s *StateStore) Waitlist(ctx context.Context) (*entities.Waitlist, error) {
	w := &entities.Waitlist{}
	version, ok, err := s.load(ctx, keyWaitlist, w)
	if err != nil {
		return nil, err
	}
	if ok {
		w.Version = version
	}
	return w, nil
}

func (s *StateStore) SaveWaitlist(ctx context.Context, w *entities.Waitlist) error {
	version, err := s.save(ctx, keyWaitlist, w, w.Version)
	if err != nil {
		return err
	}
	w.Version = version
	return nil
}

func (s *StateStore) Streams(ctx context.Context) (*entities.Streams, error) {
	st := entities.NewStreams()
	version, ok, err := s.load(ctx, keyStreams, st)
	if err != nil {
		return nil, err
	}
	if ok {
		st.Version = version
		rehydrateStreams(st)
	}
	return st, nil
}

func (s *StateStore) SaveStreams(ctx context.Context, st *entities.Streams) error {
	version, err := s.save(ctx, keyStreams, st, st.Version)
	if err != nil {
		return err
	}
	st.Version = version
	return nil
}

// Reset drops every aggregate row, returning the lifecycle to none.
func (s *StateStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM bot_state`); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	return nil
}
