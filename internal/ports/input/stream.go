package input

import "context"

type StreamUseCase interface {
	Init(ctx context.Context, operatorID, url string) error
	Stop(ctx context.Context, operatorID string) error
	SetAccess(ctx context.Context, operatorID string, codes []string) error
	// AddQueue queues sets for broadcast. Before the tournament is underway
	// the append is raw and unvalidated; pending reports that case so the
	// caller can acknowledge it differently.
	AddQueue(ctx context.Context, operatorID string, orders []int) (pending bool, err error)
	RemoveQueue(ctx context.Context, operatorID string, orders []int) error
	// Summary renders the operator's access codes, current on-stream set and
	// queued sets.
	Summary(ctx context.Context, operatorID string) (string, error)
	// Links renders the stream link(s) for spectators.
	Links(ctx context.Context) (string, error)
}
