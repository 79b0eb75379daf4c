package input

import "context"

type TournamentUseCase interface {
	// Setup initializes the pending tournament from a bracket reference.
	Setup(ctx context.Context, ref string) error
	// Start moves the tournament underway; only valid after check-in closes.
	Start(ctx context.Context) error
	// End finalizes the bracket, announces results and clears all state.
	End(ctx context.Context) error
	// Reload re-derives scheduled jobs and replays missed registrations
	// after a process restart.
	Reload(ctx context.Context) error

	BracketURL(ctx context.Context) (string, error)
	Stages(ctx context.Context) (string, error)
}
