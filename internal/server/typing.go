package server

import (
	"time"
)

// typingSet tracks which users are currently typing in a room. Owned by the
// room goroutine; expiry timers report back through the expired callback.
// An entry not explicitly stopped expires on its own, measured from the
// last refresh.
type typingSet struct {
	timeout time.Duration
	expired func(userId int, gen uint64)
	entries map[int]*typingEntry
}

type typingEntry struct {
	username  string
	refreshed time.Time
	timer     *time.Timer
	gen       uint64
}

func newTypingSet(timeout time.Duration, expired func(userId int, gen uint64)) *typingSet {
	return &typingSet{
		timeout: timeout,
		expired: expired,
		entries: make(map[int]*typingEntry),
	}
}

// start inserts or refreshes a typing entry. Returns true only when the
// user was not already marked typing, so rapid refreshes don't produce
// duplicate broadcasts.
func (t *typingSet) start(userId int, username string) bool {
	e, ok := t.entries[userId]
	if !ok {
		e = &typingEntry{username: username}
		t.entries[userId] = e
	}

	e.refreshed = time.Now()
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(t.timeout, func() {
		t.expired(userId, gen)
	})

	return !ok
}

// stop removes the user's entry. Removing an absent entry is a no-op, which
// also covers a stop racing with an expiry that already fired.
func (t *typingSet) stop(userId int) bool {
	e, ok := t.entries[userId]
	if !ok {
		return false
	}

	if e.timer != nil {
		e.timer.Stop()
	}
	delete(t.entries, userId)

	return true
}

// expire handles a timer firing; stale generations are discarded.
func (t *typingSet) expire(userId int, gen uint64) bool {
	e, ok := t.entries[userId]
	if !ok || e.gen != gen {
		return false
	}

	delete(t.entries, userId)
	return true
}

func (t *typingSet) typing(userId int) bool {
	_, ok := t.entries[userId]
	return ok
}

func (t *typingSet) stopAll() {
	for userId, e := range t.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(t.entries, userId)
	}
}
