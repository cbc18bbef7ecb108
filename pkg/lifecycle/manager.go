package lifecycle

import (
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/bft-labs/studyctl/pkg/log"
)

// ErrWaitTimeout is returned by WaitWithTimeout when workers are still running.
const ErrWaitTimeout = errors.ConstError("timed out waiting for lifecycle workers")

// EventEmitter is called when the lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// Manager applies lifecycle events to the controller's state.
type Manager struct {
	mu           sync.RWMutex
	state        State
	wg           sync.WaitGroup
	logger       log.Logger
	eventEmitter EventEmitter
}

// NewManager creates a manager in StateUnloaded.
func NewManager(logger log.Logger, emitter EventEmitter) *Manager {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Manager{
		state:        StateUnloaded,
		logger:       logger,
		eventEmitter: emitter,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Is reports whether the manager is currently in state s.
func (m *Manager) Is(s State) bool {
	return m.State() == s
}

// Fire applies ev to the current state. On an invalid transition the
// state is left unchanged and ErrInvalidTransition is returned.
func (m *Manager) Fire(ev Event, reason string) (State, error) {
	m.mu.Lock()
	oldState := m.state
	newState, err := Next(oldState, ev)
	if err != nil {
		m.mu.Unlock()
		return oldState, err
	}
	m.state = newState
	m.mu.Unlock()

	// Emit outside of lock
	if m.eventEmitter != nil {
		m.eventEmitter.OnStateChange(oldState, newState, reason)
	}

	m.logger.Info("state transition",
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("event", ev.String()),
		log.String("reason", reason),
	)

	return newState, nil
}

// AddWorker increments the worker count.
func (m *Manager) AddWorker() {
	m.wg.Add(1)
}

// WorkerDone decrements the worker count.
func (m *Manager) WorkerDone() {
	m.wg.Done()
}

// WaitWithTimeout waits for all workers to finish with a timeout.
func (m *Manager) WaitWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		m.logger.Warn("lifecycle workers still running",
			log.Duration("timeout", timeout),
		)
		return ErrWaitTimeout
	}
}
