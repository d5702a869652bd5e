package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/clara/pkg/adapters/memory"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/persistence/middleware"
	"github.com/aretw0/clara/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func encrypted(t *testing.T, next ports.StateStore, active []byte, fallback ...[]byte) ports.StateStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
	require.NoError(t, err)
	return mw(next)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunStateStoreContract(t, encrypted(t, memory.NewStore(), generateKey(t)))
}

func TestEncryptionMiddleware_Envelope(t *testing.T) {
	underlying := memory.NewStore()
	store := encrypted(t, underlying, generateKey(t))
	ctx := context.Background()

	state := domain.NewState("req-1", map[string]any{"email": "ada@example.com"})
	state.Status = domain.StatusWaitingForHuman
	state.CurrentStage = domain.StageAsk
	state.Audit.Append(domain.AuditEntry{StageID: domain.StageIntake, EventType: domain.EventStageEnter})
	require.NoError(t, store.Save(ctx, "req-1", state))

	envelope, err := underlying.Load(ctx, "req-1")
	require.NoError(t, err)
	assert.NotContains(t, envelope.Fields, "email")
	assert.Contains(t, envelope.Fields, middleware.EnvelopeField)
	assert.Equal(t, domain.StatusWaitingForHuman, envelope.Status)
	assert.Equal(t, domain.StageAsk, envelope.CurrentStage)
	assert.Equal(t, 0, envelope.Audit.Len())

	loaded, err := store.Load(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", loaded.Fields["email"])
	assert.Equal(t, 1, loaded.Audit.Len())
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	oldStore := encrypted(t, underlying, oldKey)
	require.NoError(t, oldStore.Save(ctx, "req-1", domain.NewState("req-1", map[string]any{"data": "old"})))

	rotated := encrypted(t, underlying, newKey, oldKey)
	loaded, err := rotated.Load(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "old", loaded.Fields["data"])

	require.NoError(t, loaded.Merge(map[string]any{"data": "new"}))
	require.NoError(t, rotated.Save(ctx, "req-1", loaded))

	_, err = oldStore.Load(ctx, "req-1")
	assert.Error(t, err, "data sealed with the new key is unreadable with the old one")
}

func TestEncryptionMiddleware_RejectsPlainState(t *testing.T) {
	underlying := memory.NewStore()
	require.NoError(t, underlying.Save(context.Background(), "req-1", domain.NewState("req-1", nil)))

	_, err := encrypted(t, underlying, generateKey(t)).Load(context.Background(), "req-1")
	assert.ErrorContains(t, err, "missing encrypted data envelope")
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)
}

func TestChain(t *testing.T) {
	underlying := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware([]string{"email"})
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)

	store := middleware.Chain(underlying, pii, enc)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "req-1", domain.NewState("req-1", map[string]any{"email": "a@b.c"})))

	loaded, err := store.Load(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, loaded.Fields["email"], "masking runs before sealing")
}
