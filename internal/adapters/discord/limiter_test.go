package discord

import (
	"testing"
	"time"
)

func TestLimiterCooldownPerCommand(t *testing.T) {
	l := newLimiter()
	now := time.Date(2024, 11, 16, 21, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	release, ok := l.acquire("u1", "win", 30*time.Second)
	if !ok {
		t.Fatal("first acquire refused")
	}
	release()

	if _, ok := l.acquire("u1", "win", 30*time.Second); ok {
		t.Error("acquire allowed inside the cooldown")
	}
	// A different command of the same user is unaffected.
	if release, ok := l.acquire("u1", "forfeit", 30*time.Second); !ok {
		t.Error("other command blocked by an unrelated cooldown")
	} else {
		release()
	}
	// Another user is unaffected.
	if release, ok := l.acquire("u2", "win", 30*time.Second); !ok {
		t.Error("other user blocked by an unrelated cooldown")
	} else {
		release()
	}

	now = now.Add(31 * time.Second)
	if release, ok := l.acquire("u1", "win", 30*time.Second); !ok {
		t.Error("acquire refused after the cooldown elapsed")
	} else {
		release()
	}
}

func TestLimiterSingleInflightPerUser(t *testing.T) {
	l := newLimiter()

	release, ok := l.acquire("u1", "win", 0)
	if !ok {
		t.Fatal("first acquire refused")
	}
	if _, ok := l.acquire("u1", "dq", 0); ok {
		t.Error("second command ran while the first was still in flight")
	}
	release()
	if release, ok := l.acquire("u1", "dq", 0); !ok {
		t.Error("acquire refused after release")
	} else {
		release()
	}
}
