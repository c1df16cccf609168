package client

import (
	"sync"
	"time"

	"github.com/parley-chat/parley/internal/types"
)

const defaultIdleAfter = 5 * time.Minute

// ActivityMonitor reports the local user's presence from input activity: a
// quiet period flips them to idle, the next interaction flips them back to
// online. Transitions are reported at most once per state change.
type ActivityMonitor struct {
	idleAfter time.Duration
	report    func(types.Status) error

	mu    sync.Mutex
	idle  bool
	timer *time.Timer
}

func NewActivityMonitor(idleAfter time.Duration, report func(types.Status) error) *ActivityMonitor {
	if idleAfter <= 0 {
		idleAfter = defaultIdleAfter
	}
	m := &ActivityMonitor{
		idleAfter: idleAfter,
		report:    report,
	}
	m.timer = time.AfterFunc(m.idleAfter, m.wentIdle)
	return m
}

// Touch records user activity, resetting the idle window.
func (m *ActivityMonitor) Touch() {
	m.mu.Lock()
	wasIdle := m.idle
	m.idle = false
	m.timer.Reset(m.idleAfter)
	m.mu.Unlock()

	if wasIdle {
		m.report(types.StatusOnline)
	}
}

func (m *ActivityMonitor) wentIdle() {
	m.mu.Lock()
	if m.idle {
		m.mu.Unlock()
		return
	}
	m.idle = true
	m.mu.Unlock()

	m.report(types.StatusIdle)
}

// Idle reports the current local state.
func (m *ActivityMonitor) Idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idle
}

func (m *ActivityMonitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timer.Stop()
}
