package output

import (
	"context"

	"atos/internal/domain/entities"
)

// StateStore is the durable storage for the four tournament aggregates.
// Reads return the current version stamp inside the aggregate; saves are
// compare-and-swap on that stamp and fail with domain.ErrVersionConflict
// when another writer got there first.
type StateStore interface {
	// Tournament returns nil when no tournament exists (lifecycle "none").
	Tournament(ctx context.Context) (*entities.Tournament, error)
	SaveTournament(ctx context.Context, t *entities.Tournament) error

	Participants(ctx context.Context) (*entities.Participants, error)
	SaveParticipants(ctx context.Context, p *entities.Participants) error

	Waitlist(ctx context.Context) (*entities.Waitlist, error)
	SaveWaitlist(ctx context.Context, w *entities.Waitlist) error

	Streams(ctx context.Context) (*entities.Streams, error)
	SaveStreams(ctx context.Context, s *entities.Streams) error

	// Reset clears every aggregate, ending the tournament lifecycle.
	Reset(ctx context.Context) error
}
