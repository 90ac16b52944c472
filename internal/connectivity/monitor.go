// Package connectivity tracks whether the submission endpoint is reachable
// and tells subscribers when that changes.
package connectivity

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/submitq/internal/log"
	"github.com/cybertec-postgresql/submitq/internal/metrics"
)

// Transition describes one change of reachability. Sequence increases by
// one with every change.
type Transition struct {
	Reachable bool
	Sequence  uint64
}

// Monitor holds the process-wide reachability value. Construct it once at
// start-up and hand it to whoever needs it.
type Monitor struct {
	// notifyMu keeps deliveries in the order the changes happened
	notifyMu sync.Mutex

	mu        sync.RWMutex
	reachable bool
	sequence  uint64
	subs      map[int]func(Transition)
	nextID    int
	logger    *logrus.Entry
}

// New returns a monitor that considers the network reachable until the
// first observation says otherwise
func New() *Monitor {
	metrics.SetReachable(true)
	return &Monitor{
		reachable: true,
		subs:      make(map[int]func(Transition)),
		logger:    log.WithComponent("connectivity"),
	}
}

// Current returns the latest reachability value
func (m *Monitor) Current() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reachable
}

// Sequence returns how many transitions have happened so far
func (m *Monitor) Sequence() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sequence
}

// Update records an observation. Repeating the current value is ignored;
// a change notifies every subscriber. It reports whether the value changed.
//
// Subscribers are called synchronously and must not block.
func (m *Monitor) Update(reachable bool) bool {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.reachable == reachable {
		m.mu.Unlock()
		return false
	}
	m.reachable = reachable
	m.sequence++
	tr := Transition{Reachable: reachable, Sequence: m.sequence}
	subs := make([]func(Transition), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	metrics.SetReachable(reachable)
	m.logger.WithFields(logrus.Fields{
		"reachable": reachable,
		"sequence":  tr.Sequence,
	}).Info("Connectivity changed")

	for _, fn := range subs {
		fn(tr)
	}
	return true
}

// Subscribe registers fn for every transition and returns a function that
// removes it again
func (m *Monitor) Subscribe(fn func(Transition)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// OnReachable registers fn for the unreachable to reachable edge only
func (m *Monitor) OnReachable(fn func()) (cancel func()) {
	return m.Subscribe(func(tr Transition) {
		if tr.Reachable {
			fn()
		}
	})
}
