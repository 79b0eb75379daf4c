package input

import (
	"context"

	"atos/internal/domain/entities"
)

type RegistrationUseCase interface {
	// Join registers the member, or waitlists them when the cap is reached.
	// Idempotent for an already-registered member.
	Join(ctx context.Context, member entities.Member) error
	// Leave deregisters the member (or drops them from the waitlist) and
	// promotes the waitlist head when a slot frees up.
	Leave(ctx context.Context, memberID string) error
	// CheckIn confirms the member's presence during the check-in window.
	CheckIn(ctx context.Context, memberID string) error
	// Withdraw self-disqualifies the member from an underway bracket.
	Withdraw(ctx context.Context, memberID string) error
	// IsRegistered reports whether the member is a current participant.
	IsRegistered(ctx context.Context, memberID string) (bool, error)
	// ReactSignup applies an added or removed ✅ reaction on the public
	// registration announcement. Reactions on any other message are ignored.
	ReactSignup(ctx context.Context, messageID string, member entities.Member, added bool) error
}
