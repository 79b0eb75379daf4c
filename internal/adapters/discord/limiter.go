package discord

import (
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// limiter throttles commands per user: one command at a time, then a
// cooldown window before the next one of the same name.
type limiter struct {
	mu        sync.Mutex
	inflight  map[string]*semaphore.Weighted
	cooldowns map[string]time.Time
	now       func() time.Time
}

func newLimiter() *limiter {
	return &limiter{
		inflight:  map[string]*semaphore.Weighted{},
		cooldowns: map[string]time.Time{},
		now:       time.Now,
	}
}

// acquire reserves the user's command slot. It reports false when the user
// already has a command running or the cooldown has not elapsed; on success
// the caller must release().
func (l *limiter) acquire(userID, command string, cooldown time.Duration) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := userID + ":" + command
	if until, found := l.cooldowns[key]; found && l.now().Before(until) {
		return nil, false
	}
	sem, found := l.inflight[userID]
	if !found {
		sem = semaphore.NewWeighted(1)
		l.inflight[userID] = sem
	}
	if !sem.TryAcquire(1) {
		return nil, false
	}
	l.cooldowns[key] = l.now().Add(cooldown)
	return func() { sem.Release(1) }, true
}
