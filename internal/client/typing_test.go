package client

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypingNotifier_coalescesKeystrokes(t *testing.T) {
	var starts, stops atomic.Int64
	n := NewTypingNotifier(
		func() error { starts.Add(1); return nil },
		func() error { stops.Add(1); return nil },
	)

	// a burst of keystrokes inside one send interval emits a single start
	for i := 0; i < 5; i++ {
		n.Keystroke()
	}
	assert.Equal(t, int64(1), starts.Load(), "expected one typing-start for a burst of keystrokes")
	assert.Equal(t, int64(0), stops.Load(), "expected no typing-stop while typing")

	// quiescing emits the stop
	assert.Eventually(t, func() bool {
		return stops.Load() == 1
	}, 3*time.Second, 10*time.Millisecond, "expected typing-stop after the quiet period")
}

func TestTypingNotifier_resendAfterInterval(t *testing.T) {
	var starts atomic.Int64
	n := NewTypingNotifier(
		func() error { starts.Add(1); return nil },
		func() error { return nil },
	)

	n.Keystroke()
	time.Sleep(sendInterval + 50*time.Millisecond)
	n.Keystroke()
	n.Stop()

	assert.Equal(t, int64(2), starts.Load(), "expected a refresh once the send interval elapsed")
}

func TestTypingNotifier_explicitStop(t *testing.T) {
	var stops atomic.Int64
	n := NewTypingNotifier(
		func() error { return nil },
		func() error { stops.Add(1); return nil },
	)

	n.Keystroke()
	n.Stop()
	assert.Equal(t, int64(1), stops.Load(), "expected an immediate typing-stop")

	// quiescence timer was cancelled, no second stop
	time.Sleep(stopDelay + 100*time.Millisecond)
	assert.Equal(t, int64(1), stops.Load(), "expected no duplicate typing-stop")

	// stop without typing is a no-op
	n.Stop()
	assert.Equal(t, int64(1), stops.Load(), "expected stop while not typing to be a no-op")
}

func TestTypingIndicators(t *testing.T) {
	ti := NewTypingIndicators()

	ti.Apply(1, "alice")
	ti.Apply(2, "bob")
	assert.ElementsMatch(t, []string{"alice", "bob"}, ti.Typing(), "expected both typists to be tracked")

	// refreshing an existing user does not duplicate
	ti.Apply(1, "alice")
	assert.Len(t, ti.Typing(), 2, "expected a refresh not to duplicate the entry")

	ti.Remove(1)
	assert.Equal(t, []string{"bob"}, ti.Typing(), "expected the removed user to be gone")

	// removing an absent user is a no-op
	ti.Remove(1)
	assert.Len(t, ti.Typing(), 1, "expected a repeated removal to be a no-op")
}

func TestTypingIndicators_expiry(t *testing.T) {
	ti := NewTypingIndicators()
	ti.expiry = 20 * time.Millisecond

	ti.Apply(1, "alice")
	assert.Eventually(t, func() bool {
		return len(ti.Typing()) == 0
	}, time.Second, 5*time.Millisecond, "expected the indicator to expire on its own")
}

func TestTypingIndicators_refreshExtendsExpiry(t *testing.T) {
	ti := NewTypingIndicators()
	ti.expiry = 60 * time.Millisecond

	ti.Apply(1, "alice")
	time.Sleep(40 * time.Millisecond)
	ti.Apply(1, "alice")
	time.Sleep(40 * time.Millisecond)

	// 80ms after the first apply, but only 40ms after the refresh
	assert.Len(t, ti.Typing(), 1, "expected the refresh to rearm the expiry")
}
