package input

import "context"

type MatchUseCase interface {
	// Poll runs one orchestration cycle: launch newly-open sets, call sets
	// on stream, warn/DQ stale sets, clean up dead channels. Driven by the
	// recurring match-poll job.
	Poll(ctx context.Context)
	// ReportWin validates and submits the reporter's score for their own
	// open set. The reporter is always the winner.
	ReportWin(ctx context.Context, reporterID, rawScore string) error
	// Forfeit submits the minimal losing score for the caller's open set.
	Forfeit(ctx context.Context, loserID string) error
}
