package output

import (
	"context"

	"atos/internal/domain/entities"
)

// MatchFilter narrows a Matches listing. An empty States slice means all
// states; a zero ParticipantID means all participants.
type MatchFilter struct {
	States        []string
	ParticipantID int64
}

// BracketService is the external bracket host (Challonge). Every call may
// fail with an error wrapping domain.ErrTransient; callers retry with
// backoff before surfacing the failure.
type BracketService interface {
	Show(ctx context.Context, ref string) (*entities.BracketInfo, error)
	Start(ctx context.Context, id int64) error
	Finalize(ctx context.Context, id int64) error

	Matches(ctx context.Context, id int64, filter MatchFilter) ([]entities.Match, error)
	MarkUnderway(ctx context.Context, id, matchID int64) error
	ReportScore(ctx context.Context, id, matchID int64, scoresCSV string, winnerID int64) error

	CreateParticipant(ctx context.Context, id int64, name string) (int64, error)
	DestroyParticipant(ctx context.Context, id, participantID int64) error
	Standings(ctx context.Context, id int64) ([]entities.Standing, error)
}
