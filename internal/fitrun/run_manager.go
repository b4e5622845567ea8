// Package fitrun tracks the lifecycle and coarse progress of parallel
// fitting runs so callers (CLIs, services) can poll a consistent snapshot
// while the scheduler works.
package fitrun

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a fitting run.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// State is a point-in-time snapshot of one run. Progress is counted in
// completed tasks, matching the scheduler's reporting granularity.
type State struct {
	RunID          string
	Status         Status
	StartedAt      *time.Time
	CompletedAt    *time.Time
	TotalSpots     int
	TotalTasks     int
	CompletedTasks int
	Error          string
}

// Manager coordinates one run's lifecycle. It is safe for concurrent use;
// the scheduler feeds it from the progress callback while pollers read
// snapshots.
type Manager struct {
	mu    sync.RWMutex
	state State
}

// runRegistry stores managers by run ID so pollers can look a run up from
// just its identifier.
var (
	registryMu  sync.RWMutex
	runRegistry = make(map[string]*Manager)
)

// NewManager creates an idle run manager.
func NewManager() *Manager {
	return &Manager{state: State{Status: StatusIdle}}
}

// Register makes the manager discoverable under its current run ID.
// Start must have been called first.
func Register(m *Manager) {
	id := m.Snapshot().RunID
	if id == "" {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	runRegistry[id] = m
}

// Get retrieves the manager for a run ID, or nil if unknown.
func Get(runID string) *Manager {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return runRegistry[runID]
}

// Unregister removes a finished run from the registry.
func Unregister(runID string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(runRegistry, runID)
}

// Start begins a new run over the given workload and returns its run ID.
func (m *Manager) Start(totalSpots, totalTasks int) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	runID := uuid.New().String()
	now := time.Now()
	m.state = State{
		RunID:      runID,
		Status:     StatusRunning,
		StartedAt:  &now,
		TotalSpots: totalSpots,
		TotalTasks: totalTasks,
	}
	log.Printf("[FitRun] Started run %s: %d spots in %d tasks", runID, totalSpots, totalTasks)
	return runID
}

// TaskDone records one completed task. Shaped to plug straight into
// SchedulerConfig.Progress.
func (m *Manager) TaskDone(completed, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.CompletedTasks = completed
	m.state.TotalTasks = total
}

// Complete marks the run finished.
func (m *Manager) Complete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.state.Status = StatusComplete
	m.state.CompletedAt = &now
	log.Printf("[FitRun] Completed run %s: %d/%d tasks", m.state.RunID, m.state.CompletedTasks, m.state.TotalTasks)
}

// Fail marks the run failed with the given error.
func (m *Manager) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.state.Status = StatusError
	m.state.CompletedAt = &now
	m.state.Error = err.Error()
	log.Printf("[FitRun] Run %s failed: %v", m.state.RunID, err)
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}
