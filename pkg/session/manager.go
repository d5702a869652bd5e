package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/clara/internal/logging"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can hold a distributed lock.
const DefaultLockTTL = 30 * time.Second

// ErrSessionExists is returned by Create when the request ID is already stored.
var ErrSessionExists = errors.New("session already exists")

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates access to stored workflows.
// Locks are reference counted and dropped once no caller holds them.
type Manager struct {
	store ports.StateStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Manager over the given store.
func NewManager(store ports.StateStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu, and call release after unlocking it.
func (m *Manager) acquire(requestID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[requestID]
	if !ok {
		entry = &lockEntry{}
		m.locks[requestID] = entry
	}
	entry.refs++
	return entry
}

func (m *Manager) release(requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[requestID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, requestID)
	}
}

// Load retrieves a stored workflow.
func (m *Manager) Load(ctx context.Context, requestID string) (*domain.WorkflowState, error) {
	var state *domain.WorkflowState
	err := m.WithLock(ctx, requestID, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, requestID)
		return err
	})
	return state, err
}

// Create stores a new workflow, failing with ErrSessionExists if the ID is taken.
func (m *Manager) Create(ctx context.Context, state *domain.WorkflowState) error {
	return m.WithLock(ctx, state.RequestID, func(ctx context.Context) error {
		_, err := m.store.Load(ctx, state.RequestID)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrSessionExists, state.RequestID)
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("failed to check session existence: %w", err)
		}
		if err := m.store.Save(ctx, state.RequestID, state); err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}
		return nil
	})
}

// Save persists the workflow under its request ID.
func (m *Manager) Save(ctx context.Context, state *domain.WorkflowState) error {
	return m.WithLock(ctx, state.RequestID, func(ctx context.Context) error {
		return m.store.Save(ctx, state.RequestID, state)
	})
}

// Checkpoint persists the workflow without taking its lock.
// Only call it from inside WithLock for the same request.
func (m *Manager) Checkpoint(ctx context.Context, state *domain.WorkflowState) error {
	return m.store.Save(ctx, state.RequestID, state)
}

// Delete removes the workflow from the store.
func (m *Manager) Delete(ctx context.Context, requestID string) error {
	return m.WithLock(ctx, requestID, func(ctx context.Context) error {
		return m.store.Delete(ctx, requestID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying state store.
func (m *Manager) Store() ports.StateStore {
	return m.store
}

// WithLock executes fn while holding the lock for the request.
func (m *Manager) WithLock(ctx context.Context, requestID string, fn func(context.Context) error) error {
	entry := m.acquire(requestID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(requestID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, requestID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("failed to release distributed lock, it will expire",
					"request_id", requestID,
					"ttl", m.lockTTL,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
