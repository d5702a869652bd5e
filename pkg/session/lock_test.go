package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/clara/pkg/domain"
)

type nopStore struct{}

func (nopStore) Save(context.Context, string, *domain.WorkflowState) error { return nil }
func (nopStore) Load(context.Context, string) (*domain.WorkflowState, error) {
	return nil, domain.ErrSessionNotFound
}
func (nopStore) Delete(context.Context, string) error   { return nil }
func (nopStore) List(context.Context) ([]string, error) { return nil, nil }

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(nopStore{})
	ctx := context.Background()

	for i := 0; i < 10000; i++ {
		id := fmt.Sprintf("req-%d", i)
		_ = mgr.Save(ctx, domain.NewState(id, nil))
		_ = mgr.Delete(ctx, id)
	}

	if n := len(mgr.locks); n != 0 {
		t.Errorf("%d locks remain after every session was released", n)
	}
}
