package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/clara/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	requestID := "contract-test-request-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewState(requestID, map[string]any{"customer_name": "Ada", "count": 42})
		state.CurrentStage = domain.StageAsk
		state.Status = domain.StatusWaitingForHuman
		state.Pending = &domain.HumanRequest{Stage: domain.StageAsk, Questions: []string{"Which order?"}}
		state.Audit.Append(domain.AuditEntry{StageID: domain.StageIntake, EventType: domain.EventStageEnter})
		state.Audit.Append(domain.AuditEntry{StageID: domain.StageIntake, EventType: domain.EventStageExit})

		err := store.Save(ctx, requestID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, requestID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.RequestID, loaded.RequestID)
		assert.Equal(t, state.CurrentStage, loaded.CurrentStage)
		assert.Equal(t, state.Status, loaded.Status)
		assert.Equal(t, "Ada", loaded.Fields["customer_name"])
		// JSON persistence converts ints to float64; only presence is part of the contract.
		assert.NotNil(t, loaded.Fields["count"])
		require.NotNil(t, loaded.Pending)
		assert.Equal(t, []string{"Which order?"}, loaded.Pending.Questions)
		require.NotNil(t, loaded.Audit)
		assert.Equal(t, 2, loaded.Audit.Len(), "audit trail must survive persistence")
	})

	t.Run("Decision Survives", func(t *testing.T) {
		state := domain.NewState(requestID+"-decision", nil)
		rec, err := domain.NewDecisionRecord(72, map[string]float64{"relevance": 0.7}, "below threshold", time.Now().UTC())
		require.NoError(t, err)
		state.Decision = &rec
		state.Status = domain.StatusEscalated

		require.NoError(t, store.Save(ctx, state.RequestID, state))
		defer func() { _ = store.Delete(ctx, state.RequestID) }()

		loaded, err := store.Load(ctx, state.RequestID)
		require.NoError(t, err)
		require.NotNil(t, loaded.Decision)
		assert.Equal(t, 72, loaded.Decision.Score)
		assert.Equal(t, domain.OutcomeEscalate, loaded.Decision.Outcome)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+requestID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, requestID, domain.NewState(requestID, nil))
		require.NoError(t, err)

		err = store.Delete(ctx, requestID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, requestID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := requestID + "-1"
		id2 := requestID + "-2"
		_ = store.Save(ctx, id1, domain.NewState(id1, nil))
		_ = store.Save(ctx, id2, domain.NewState(id2, nil))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
