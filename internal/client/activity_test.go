package client

import (
	"sync"
	"testing"
	"time"

	"github.com/parley-chat/parley/internal/types"
	"github.com/stretchr/testify/assert"
)

type statusRecorder struct {
	mu       sync.Mutex
	statuses []types.Status
}

func (r *statusRecorder) record(s types.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
	return nil
}

func (r *statusRecorder) all() []types.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Status(nil), r.statuses...)
}

func TestActivityMonitor(t *testing.T) {
	rec := &statusRecorder{}
	m := NewActivityMonitor(20*time.Millisecond, rec.record)
	defer m.Close()

	assert.False(t, m.Idle(), "expected the monitor to start out not idle")

	assert.Eventually(t, func() bool {
		return m.Idle()
	}, time.Second, 5*time.Millisecond, "expected the quiet period to flip the user idle")
	assert.Equal(t, []types.Status{types.StatusIdle}, rec.all(), "expected a single idle report")

	m.Touch()
	assert.False(t, m.Idle(), "expected activity to lift the user out of idle")
	assert.Equal(t, []types.Status{types.StatusIdle, types.StatusOnline}, rec.all(), "expected an online report after activity")
}

func TestActivityMonitor_touchWhileOnlineReportsNothing(t *testing.T) {
	rec := &statusRecorder{}
	m := NewActivityMonitor(time.Minute, rec.record)
	defer m.Close()

	m.Touch()
	m.Touch()
	assert.Empty(t, rec.all(), "expected no reports while the user stays online")
}
