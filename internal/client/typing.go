package client

import (
	"sync"
	"time"
)

const (
	// at most one typing-start per sendInterval while keystrokes continue
	sendInterval = 300 * time.Millisecond
	// typing-stop after this long without a keystroke
	stopDelay = time.Second
	// how long a peer's indicator survives without a refresh
	indicatorExpiry = 3 * time.Second
)

// TypingNotifier coalesces keystrokes into typing-start and typing-stop
// events for one room.
type TypingNotifier struct {
	start func() error
	stop  func() error

	mu        sync.Mutex
	active    bool
	lastSent  time.Time
	stopTimer *time.Timer
}

func NewTypingNotifier(start, stop func() error) *TypingNotifier {
	return &TypingNotifier{start: start, stop: stop}
}

// Keystroke records input activity. The first keystroke (and at most one per
// send interval after it) emits typing-start; the stop timer is reset on
// every call, not extended cumulatively.
func (n *TypingNotifier) Keystroke() {
	n.mu.Lock()

	now := time.Now()
	emit := !n.active || now.Sub(n.lastSent) >= sendInterval
	if emit {
		n.lastSent = now
	}
	n.active = true

	if n.stopTimer == nil {
		n.stopTimer = time.AfterFunc(stopDelay, n.quiesced)
	} else {
		n.stopTimer.Reset(stopDelay)
	}
	n.mu.Unlock()

	if emit {
		n.start()
	}
}

// Stop flushes a pending typing-stop immediately, for explicit ends such as
// sending the message or leaving the room.
func (n *TypingNotifier) Stop() {
	n.mu.Lock()
	wasActive := n.active
	n.active = false
	if n.stopTimer != nil {
		n.stopTimer.Stop()
	}
	n.mu.Unlock()

	if wasActive {
		n.stop()
	}
}

func (n *TypingNotifier) quiesced() {
	n.mu.Lock()
	wasActive := n.active
	n.active = false
	n.mu.Unlock()

	if wasActive {
		n.stop()
	}
}

// TypingIndicators is the receive side: the set of peers currently typing,
// each entry expiring on its own unless refreshed or removed. It mirrors the
// server's aggregator so a lost user-stopped-typing cannot wedge an
// indicator on.
type TypingIndicators struct {
	expiry time.Duration

	mu      sync.Mutex
	entries map[int]*indicatorEntry
}

type indicatorEntry struct {
	username string
	timer    *time.Timer
	gen      uint64
}

func NewTypingIndicators() *TypingIndicators {
	return &TypingIndicators{
		expiry:  indicatorExpiry,
		entries: make(map[int]*indicatorEntry),
	}
}

// Apply records a user-typing event, resetting the expiry if the user was
// already present.
func (t *TypingIndicators) Apply(userId int, username string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[userId]; ok {
		e.gen++
		gen := e.gen
		e.timer.Stop()
		e.timer = time.AfterFunc(t.expiry, func() { t.expire(userId, gen) })
		return
	}

	e := &indicatorEntry{username: username}
	gen := e.gen
	e.timer = time.AfterFunc(t.expiry, func() { t.expire(userId, gen) })
	t.entries[userId] = e
}

// Remove handles an explicit user-stopped-typing.
func (t *TypingIndicators) Remove(userId int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[userId]; ok {
		e.timer.Stop()
		delete(t.entries, userId)
	}
}

func (t *TypingIndicators) expire(userId int, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[userId]
	if !ok || e.gen != gen {
		// refreshed or removed since this timer was armed
		return
	}
	delete(t.entries, userId)
}

// Typing returns the usernames currently typing.
func (t *TypingIndicators) Typing() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		names = append(names, e.username)
	}
	return names
}
