package recovery

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/split-wallet/split-wallet/pkg/errors"
)

// memStore is an in-memory SecretStore for tests.
type memStore struct {
	mu        sync.Mutex
	data      map[string][]byte
	reads     atomic.Int64
	readDelay time.Duration
	failWrite bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Store(_ context.Context, ownerID, key string, secret []byte) bool {
	if m.failWrite {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(secret))
	copy(cp, secret)
	m.data[ownerID+"/"+key] = cp
	return true
}

func (m *memStore) Retrieve(_ context.Context, ownerID, key string) []byte {
	m.reads.Add(1)
	if m.readDelay > 0 {
		time.Sleep(m.readDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[ownerID+"/"+key]
}

func (m *memStore) Remove(_ context.Context, ownerID, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[ownerID+"/"+key]
	delete(m.data, ownerID+"/"+key)
	return ok
}

func (m *memStore) clearOwner(ownerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, ownerID+"/"+credentialKey)
}

func TestSecondaryID(t *testing.T) {
	t.Run("normalizes before hashing", func(t *testing.T) {
		assert.Equal(t, SecondaryID("user@example.com"), SecondaryID("  User@Example.COM "))
	})

	t.Run("never contains the raw email", func(t *testing.T) {
		id := SecondaryID("user@example.com")
		assert.NotContains(t, id, "user@example.com")
		assert.NotContains(t, id, "@")
	})
}

func TestStoreAndRecover(t *testing.T) {
	ctx := context.Background()
	credential := []byte("credential-bytes")

	t.Run("primary round trip is bit for bit", func(t *testing.T) {
		store := newMemStore()
		svc := NewService(store)

		require.True(t, svc.StoreWallet(ctx, "u1", "user@example.com", credential))

		res, err := svc.RecoverWallet(ctx, "u1", "user@example.com")
		require.NoError(t, err)
		assert.Equal(t, credential, res.Credential)
		assert.Equal(t, ViaPrimary, res.RecoveredVia)
	})

	t.Run("secondary fallback re-links under primary", func(t *testing.T) {
		store := newMemStore()
		svc := NewService(store)

		require.True(t, svc.StoreWallet(ctx, "u1", "user@example.com", credential))

		// Simulate the reinstall path: the primary copy is gone, the
		// identifier changed, only the email hash still resolves.
		store.clearOwner("u1")

		res, err := svc.RecoverWallet(ctx, "u1-new", "user@example.com")
		require.NoError(t, err)
		assert.Equal(t, credential, res.Credential)
		assert.Equal(t, ViaSecondary, res.RecoveredVia)

		// Re-linking is idempotent: the next recovery is a primary hit.
		res, err = svc.RecoverWallet(ctx, "u1-new", "user@example.com")
		require.NoError(t, err)
		assert.Equal(t, ViaPrimary, res.RecoveredVia)
	})

	t.Run("full wipe returns recovery_not_found", func(t *testing.T) {
		svc := NewService(newMemStore())

		_, err := svc.RecoverWallet(ctx, "u1", "user@example.com")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeRecoveryNotFound))
	})

	t.Run("missing email skips secondary lookup", func(t *testing.T) {
		store := newMemStore()
		svc := NewService(store)

		_, err := svc.RecoverWallet(ctx, "u1", "")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeRecoveryNotFound))
		assert.EqualValues(t, 1, store.reads.Load())
	})

	t.Run("secondary write failure does not fail store", func(t *testing.T) {
		store := newMemStore()
		svc := NewService(store)

		require.True(t, svc.StoreWallet(ctx, "u1", "user@example.com", credential))
		store.failWrite = true

		// Primary write failing fails the store outright.
		assert.False(t, svc.StoreWallet(ctx, "u2", "other@example.com", credential))
	})
}

func TestRecoverSingleFlight(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.readDelay = 20 * time.Millisecond
	svc := NewService(store)

	credential := []byte("credential-bytes")
	require.True(t, svc.StoreWallet(ctx, "u1", "", credential))
	store.reads.Store(0)

	const callers = 8
	results := make([]*Result, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			res, err := svc.RecoverWallet(ctx, "u1", "")
			require.NoError(t, err)
			results[i] = res
		}(i)
	}
	close(start)
	wg.Wait()

	// One underlying read sequence, identical credential for every caller.
	assert.EqualValues(t, 1, store.reads.Load())
	for _, res := range results {
		assert.Equal(t, credential, res.Credential)
	}
}

func TestWipeWallet(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store)

	require.True(t, svc.StoreWallet(ctx, "u1", "user@example.com", []byte("c")))
	assert.True(t, svc.WipeWallet(ctx, "u1", "user@example.com"))

	_, err := svc.RecoverWallet(ctx, "u1", "user@example.com")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeRecoveryNotFound))
}
