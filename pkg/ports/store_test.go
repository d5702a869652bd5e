package ports_test

import (
	"context"
	"sync"
	"testing"

	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/ports"
)

// mockStore is a minimal in-memory StateStore used to exercise the contract suite itself.
type mockStore struct {
	mu   sync.Mutex
	data map[string]*domain.WorkflowState
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]*domain.WorkflowState)}
}

func (m *mockStore) Save(ctx context.Context, requestID string, state *domain.WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[requestID] = state.Snapshot()
	return nil
}

func (m *mockStore) Load(ctx context.Context, requestID string) (*domain.WorkflowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.data[requestID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return state.Snapshot(), nil
}

func (m *mockStore) Delete(ctx context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, requestID)
	return nil
}

func (m *mockStore) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	return ids, nil
}

func TestStateStore_Contract(t *testing.T) {
	ports.RunStateStoreContract(t, newMockStore())
}
