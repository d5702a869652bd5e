package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/clara/internal/logging"
	"github.com/aretw0/clara/pkg/domain"
)

// StreamManager fans state diffs out to the SSE subscribers of each workflow.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- []byte]struct{}
	logger      *slog.Logger
}

// NewStreamManager creates an empty StreamManager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- []byte]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a subscriber for requestID. The returned func unsubscribes
// and closes the channel.
func (sm *StreamManager) Subscribe(requestID string) (<-chan []byte, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan []byte, 16)
	if _, ok := sm.subscribers[requestID]; !ok {
		sm.subscribers[requestID] = make(map[chan<- []byte]struct{})
	}
	sm.subscribers[requestID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[requestID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(sm.subscribers, requestID)
				}
			}
			close(ch)
		})
	}
}

// Subscribers returns the number of subscribers of requestID.
func (sm *StreamManager) Subscribers(requestID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[requestID])
}

// Broadcast sends diff to every subscriber of its workflow. Slow subscribers
// drop messages rather than block the workflow.
func (sm *StreamManager) Broadcast(diff *domain.StateDiff) {
	if diff == nil {
		return
	}
	msg, err := json.Marshal(diff)
	if err != nil {
		sm.logger.Error("encoding state diff", "request_id", diff.RequestID, "err", err)
		return
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for ch := range sm.subscribers[diff.RequestID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE client buffer full, dropping message", "request_id", diff.RequestID)
		}
	}
}

// Hooks streams stage progress while a run is in flight. The diffs carry the
// stage being entered and, once taken, the decision.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageEnter: func(_ context.Context, e *domain.StageEvent) {
			stage := e.Stage
			sm.Broadcast(&domain.StateDiff{RequestID: e.RequestID, CurrentStage: &stage})
		},
		OnDecision: func(_ context.Context, e *domain.DecisionEvent) {
			rec := e.Record
			sm.Broadcast(&domain.StateDiff{RequestID: e.RequestID, Decision: &rec})
		},
		OnError: func(_ context.Context, e *domain.ErrorEvent) {
			status := domain.StatusFailed
			sm.Broadcast(&domain.StateDiff{RequestID: e.RequestID, Status: &status})
		},
	}
}
