// Package application hosts the tournament orchestration engine: lifecycle
// state machine, registration/waitlist, match progression, stream queueing.
// Everything external (Discord, Challonge, Postgres, timers) is reached
// through the output ports, so every service here is testable with fakes.
package application

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"atos/internal/domain"
)

// Channels are the well-known guild channels the engine posts into.
type Channels struct {
	Signup     string
	Announce   string
	CheckIn    string
	Scores     string
	Queue      string
	Stream     string
	Results    string
	Tournament string
}

// Roles are the guild roles the engine grants, revokes and pings.
type Roles struct {
	Organizer  string
	Challenger string
	Streamer   string
}

const (
	// signupEmoji is the reaction members add to register.
	signupEmoji = "✅"
	// messageLimit is the chat platform's maximum message size.
	messageLimit = 2000
	// dqGrace is how long after a warning the auto-DQ pass waits, and also
	// the activity gap beyond which the less active player is disqualified.
	dqGrace = 10 * time.Minute
)

// withRetry runs op with capped exponential backoff, retrying only errors
// classified as transient. The last error is returned once retries exhaust.
func withRetry(ctx context.Context, op func() error) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !errors.Is(err, domain.ErrTransient) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}
