package vault

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/enclave/internal/keyderiv"
	"github.com/roach88/enclave/internal/store"
	"github.com/roach88/enclave/internal/testutil"
)

const (
	alice = "alice-principal"
	bob   = "bob-principal"
	carol = "carol-principal"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "enclave.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newLocalKDF(t *testing.T) *keyderiv.Local {
	t.Helper()
	l, err := keyderiv.NewLocal(bytes.Repeat([]byte{7}, keyderiv.MasterKeySize))
	require.NoError(t, err)
	return l
}

func newTestVault(t *testing.T, opts ...Option) *Vault {
	t.Helper()
	return newTestVaultWith(t, newLocalKDF(t), opts...)
}

func newTestVaultWith(t *testing.T, kdf keyderiv.Service, opts ...Option) *Vault {
	t.Helper()
	opts = append([]Option{
		WithClock(testutil.NewClock()),
		WithOpIDs(testutil.NewSequentialOpIDs("derive")),
	}, opts...)
	v, err := New(newTestStore(t), kdf, opts...)
	require.NoError(t, err)
	return v
}

// requireConsistent fails the test if any index disagrees with the store.
func requireConsistent(t *testing.T, v *Vault) {
	t.Helper()
	violations, err := v.Verify(context.Background())
	require.NoError(t, err)
	require.Empty(t, violations)
}

// failingKDF fails every call.
type failingKDF struct{}

func (failingKDF) PublicKey(context.Context, keyderiv.KeyRequest) ([]byte, error) {
	return nil, errors.New("service unavailable")
}

func (failingKDF) DeriveKey(context.Context, keyderiv.DeriveRequest) ([]byte, error) {
	return nil, errors.New("service unavailable")
}

// countingKDF counts DeriveKey calls.
type countingKDF struct {
	keyderiv.Service
	calls atomic.Int32
}

func newCountingKDF(inner keyderiv.Service) *countingKDF {
	return &countingKDF{Service: inner}
}

func (c *countingKDF) DeriveKey(ctx context.Context, req keyderiv.DeriveRequest) ([]byte, error) {
	c.calls.Add(1)
	return c.Service.DeriveKey(ctx, req)
}

// blockingKDF parks DeriveKey until released, recording the request.
type blockingKDF struct {
	keyderiv.Service

	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu  sync.Mutex
	got []keyderiv.DeriveRequest
}

func newBlockingKDF(inner keyderiv.Service) *blockingKDF {
	return &blockingKDF{
		Service: inner,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingKDF) DeriveKey(ctx context.Context, req keyderiv.DeriveRequest) ([]byte, error) {
	b.mu.Lock()
	b.got = append(b.got, req)
	b.mu.Unlock()

	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.Service.DeriveKey(ctx, req)
}

// frozenClock always reports the same instant.
type frozenClock struct{}

func (frozenClock) Now() time.Time { return time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC) }
