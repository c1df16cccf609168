package server

import (
	"testing"
	"time"

	"github.com/parley-chat/parley/internal/types"
	"github.com/stretchr/testify/assert"
)

func newTestPresenceTracker(timeout time.Duration) (*presenceTracker, chan timerFire) {
	fired := make(chan timerFire, 8)
	p := newPresenceTracker(timeout, func(userId int, gen uint64) {
		fired <- timerFire{userId: userId, gen: gen}
	})
	return p, fired
}

func TestPresenceTracker_setOnline(t *testing.T) {
	p, _ := newTestPresenceTracker(time.Minute)
	defer p.stopAll()

	assert.True(t, p.setOnline(1), "expected first setOnline to report a change")
	assert.Equal(t, types.StatusOnline, p.status(1), "expected user to be online")

	assert.False(t, p.setOnline(1), "expected second setOnline to be a no-op")
	assert.Equal(t, types.StatusOnline, p.status(1), "expected user to stay online")
}

func TestPresenceTracker_timeout(t *testing.T) {
	p, fired := newTestPresenceTracker(20 * time.Millisecond)
	defer p.stopAll()

	p.setOnline(1)

	var f timerFire
	select {
	case f = <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected idle timer to fire")
	}

	assert.True(t, p.timeout(f.userId, f.gen), "expected timeout to transition user to idle")
	assert.Equal(t, types.StatusIdle, p.status(1), "expected user to be idle")

	// a second firing with the same generation must not transition again
	assert.False(t, p.timeout(f.userId, f.gen), "expected repeated timeout to be discarded")
}

func TestPresenceTracker_timeoutStaleGeneration(t *testing.T) {
	p, fired := newTestPresenceTracker(20 * time.Millisecond)
	defer p.stopAll()

	p.setOnline(1)

	var f timerFire
	select {
	case f = <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected idle timer to fire")
	}

	// activity after the firing was queued re-arms the timer with a new
	// generation, so the old firing is stale
	p.activity(1)
	assert.False(t, p.timeout(f.userId, f.gen), "expected stale firing to be discarded")
	assert.Equal(t, types.StatusOnline, p.status(1), "expected user to stay online")
}

func TestPresenceTracker_activity(t *testing.T) {
	p, fired := newTestPresenceTracker(20 * time.Millisecond)
	defer p.stopAll()

	assert.False(t, p.activity(1), "expected activity for unknown user to be a no-op")

	p.setOnline(1)
	assert.False(t, p.activity(1), "expected activity while online to report no change")

	var f timerFire
	select {
	case f = <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected idle timer to fire")
	}
	p.timeout(f.userId, f.gen)

	assert.True(t, p.activity(1), "expected activity to lift the user out of idle")
	assert.Equal(t, types.StatusOnline, p.status(1), "expected user to be online again")
}

func TestPresenceTracker_setStatus(t *testing.T) {
	p, _ := newTestPresenceTracker(time.Minute)
	defer p.stopAll()

	assert.False(t, p.setStatus(1, types.StatusIdle), "expected setStatus for unknown user to be a no-op")

	p.setOnline(1)
	assert.True(t, p.setStatus(1, types.StatusIdle), "expected change to idle to be reported")
	assert.Equal(t, types.StatusIdle, p.status(1), "expected user to be idle")
	assert.False(t, p.setStatus(1, types.StatusIdle), "expected repeated status to report no change")

	assert.True(t, p.setStatus(1, types.StatusOnline), "expected change back to online to be reported")
}

func TestPresenceTracker_setOffline(t *testing.T) {
	p, _ := newTestPresenceTracker(time.Minute)
	defer p.stopAll()

	assert.False(t, p.setOffline(1), "expected setOffline for unknown user to be a no-op")

	p.setOnline(1)
	assert.True(t, p.setOffline(1), "expected setOffline to report the transition")
	assert.Equal(t, types.StatusOffline, p.status(1), "expected user to be offline")
	assert.False(t, p.setOffline(1), "expected second setOffline to be a no-op")
}
