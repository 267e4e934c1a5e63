package care

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager owns the trackers of all connected clients.
type Manager struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker
	settings Settings
	deps     Deps
}

// NewManager creates an empty manager. Every tracker it opens shares deps.
func NewManager(settings Settings, deps Deps) *Manager {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &Manager{
		trackers: make(map[string]*Tracker),
		settings: settings,
		deps:     deps,
	}
}

// Open creates a tracker with a fresh id.
func (m *Manager) Open() *Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := NewTracker(uuid.NewString(), m.settings, m.deps)
	m.trackers[t.ID()] = t
	m.deps.Log.Debug("Tracker opened", zap.String("tracker", t.ID()))
	return t
}

// Get returns the tracker with the given id.
func (m *Manager) Get(id string) (*Tracker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.trackers[id]
	if !ok {
		return nil, ErrTrackerNotFound
	}
	return t, nil
}

// Close removes and closes a tracker.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	t, ok := m.trackers[id]
	delete(m.trackers, id)
	m.mu.Unlock()

	if !ok {
		return ErrTrackerNotFound
	}
	t.Close()
	m.deps.Log.Debug("Tracker closed", zap.String("tracker", id))
	return nil
}

// Len returns the number of open trackers.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trackers)
}

// UpdateSettings applies s to every open tracker and to trackers opened
// later.
func (m *Manager) UpdateSettings(s Settings) {
	m.mu.Lock()
	m.settings = s
	trackers := make([]*Tracker, 0, len(m.trackers))
	for _, t := range m.trackers {
		trackers = append(trackers, t)
	}
	m.mu.Unlock()

	for _, t := range trackers {
		t.UpdateSettings(s)
	}
}

// Shutdown closes every tracker.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	trackers := m.trackers
	m.trackers = make(map[string]*Tracker)
	m.mu.Unlock()

	for _, t := range trackers {
		t.Close()
	}
	m.deps.Log.Info("All trackers closed", zap.Int("count", len(trackers)))
}
