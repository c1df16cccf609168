package server

import (
	"time"

	"github.com/parley-chat/parley/internal/types"
)

// presenceTracker holds per-user presence for a single room. It is owned by
// the room goroutine; every method must be called from the room loop. Idle
// timers fire on their own goroutine and report back through the expired
// callback, which posts into the room loop rather than mutating state.
type presenceTracker struct {
	idleTimeout time.Duration
	expired     func(userId int, gen uint64)
	entries     map[int]*presenceEntry
}

type presenceEntry struct {
	status       types.Status
	lastActivity time.Time
	timer        *time.Timer
	// gen invalidates timer firings scheduled before the latest reset, so
	// a stale firing can never flip a refreshed entry.
	gen uint64
}

func newPresenceTracker(idleTimeout time.Duration, expired func(userId int, gen uint64)) *presenceTracker {
	return &presenceTracker{
		idleTimeout: idleTimeout,
		expired:     expired,
		entries:     make(map[int]*presenceEntry),
	}
}

// setOnline marks the user online and arms their idle timer. Returns true
// if the visible status changed.
func (p *presenceTracker) setOnline(userId int) bool {
	e, ok := p.entries[userId]
	if !ok {
		e = &presenceEntry{status: types.StatusOffline}
		p.entries[userId] = e
	}

	changed := e.status != types.StatusOnline
	e.status = types.StatusOnline
	e.lastActivity = time.Now()
	p.resetTimer(e, userId)

	return changed
}

// activity records a qualifying input event. The idle timer is reset, not
// extended. Returns true if this lifted the user out of idle.
func (p *presenceTracker) activity(userId int) bool {
	e, ok := p.entries[userId]
	if !ok {
		return false
	}

	e.lastActivity = time.Now()
	wasIdle := e.status == types.StatusIdle
	if wasIdle {
		e.status = types.StatusOnline
	}
	p.resetTimer(e, userId)

	return wasIdle
}

// setStatus applies a client-reported status. Online re-arms the idle
// timer; idle and offline disarm it. Returns true on a visible change.
func (p *presenceTracker) setStatus(userId int, status types.Status) bool {
	e, ok := p.entries[userId]
	if !ok {
		return false
	}

	changed := e.status != status
	e.status = status
	e.lastActivity = time.Now()

	if status == types.StatusOnline {
		p.resetTimer(e, userId)
	} else if e.timer != nil {
		e.timer.Stop()
	}

	return changed
}

// timeout handles an idle timer firing. Stale firings (generation
// mismatch, or the user already gone) are discarded.
func (p *presenceTracker) timeout(userId int, gen uint64) bool {
	e, ok := p.entries[userId]
	if !ok || e.gen != gen || e.status != types.StatusOnline {
		return false
	}

	e.status = types.StatusIdle
	return true
}

// setOffline removes the user's record and cancels their idle timer.
// Returns true if the user was present.
func (p *presenceTracker) setOffline(userId int) bool {
	e, ok := p.entries[userId]
	if !ok {
		return false
	}

	if e.timer != nil {
		e.timer.Stop()
	}
	delete(p.entries, userId)

	return e.status != types.StatusOffline
}

func (p *presenceTracker) status(userId int) types.Status {
	if e, ok := p.entries[userId]; ok {
		return e.status
	}
	return types.StatusOffline
}

func (p *presenceTracker) resetTimer(e *presenceEntry, userId int) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(p.idleTimeout, func() {
		p.expired(userId, gen)
	})
}

func (p *presenceTracker) stopAll() {
	for userId, e := range p.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(p.entries, userId)
	}
}
