package vault

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/keyderiv"
)

func newTransportIdentity(t *testing.T) *age.X25519Identity {
	t.Helper()
	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	return id
}

func decodeHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestDeriveNoteKey_OwnerAndGranteeGetSameKey(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)

	id, err := v.CreateNote(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, v.AddGrantee(ctx, alice, id, bob))

	vkHex, err := v.VerificationKey(ctx, alice)
	require.NoError(t, err)
	vk := decodeHex(t, vkHex)

	input := keyderiv.Input(id, alice)
	open := func(caller string) []byte {
		transport := newTransportIdentity(t)
		out, err := v.DeriveNoteKey(ctx, caller, id, []byte(transport.Recipient().String()))
		require.NoError(t, err)
		key, err := keyderiv.Open(transport, decodeHex(t, out), vk, input)
		require.NoError(t, err)
		return key
	}

	assert.Equal(t, open(alice), open(bob), "grantee derives the owner-bound key")
}

func TestDeriveNoteKey_Rejections(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)
	transport := []byte(newTransportIdentity(t).Recipient().String())

	id, err := v.CreateNote(ctx, alice)
	require.NoError(t, err)

	_, err = v.DeriveNoteKey(ctx, carol, id, transport)
	assert.True(t, entity.IsUnauthorized(err))

	_, err = v.DeriveNoteKey(ctx, alice, entity.NewID(42), transport)
	assert.True(t, entity.IsNotFound(err))

	_, err = v.DeriveNoteKey(ctx, alice, id, nil)
	assert.Equal(t, entity.CodeInvalidArgument, entity.CodeOf(err))

	_, err = v.DeriveNoteKey(ctx, entity.AnonymousPrincipal, id, transport)
	assert.True(t, entity.IsUnauthorized(err))
}

func TestDeriveNoteKey_ServiceFailure(t *testing.T) {
	ctx := context.Background()
	v := newTestVaultWith(t, failingKDF{})

	id, err := v.CreateNote(ctx, alice)
	require.NoError(t, err)

	_, err = v.DeriveNoteKey(ctx, alice, id, []byte(newTransportIdentity(t).Recipient().String()))
	assert.Equal(t, entity.CodeExternalServiceFailure, entity.CodeOf(err))
	assert.ErrorContains(t, err, "service unavailable")

	_, err = v.VerificationKey(ctx, alice)
	assert.Equal(t, entity.CodeExternalServiceFailure, entity.CodeOf(err))
}

func TestDeriveNoteKey_MalformedTransportKey(t *testing.T) {
	ctx := context.Background()
	kdf := newCountingKDF(newLocalKDF(t))
	v := newTestVaultWith(t, kdf)

	id, err := v.CreateNote(ctx, alice)
	require.NoError(t, err)

	for _, key := range []string{"age1whatever", "not-a-key", "AGE-SECRET-KEY-1QQQ"} {
		_, err = v.DeriveNoteKey(ctx, alice, id, []byte(key))
		assert.Equal(t, entity.CodeInvalidArgument, entity.CodeOf(err), key)
	}
	assert.Zero(t, kdf.calls.Load(), "service must not be called")
}

func TestDeriveNoteKey_RateLimited(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, WithLimiter(keyderiv.NewLimiter(0, 1)))
	transport := []byte(newTransportIdentity(t).Recipient().String())

	id, err := v.CreateNote(ctx, alice)
	require.NoError(t, err)

	_, err = v.DeriveNoteKey(ctx, alice, id, transport)
	require.NoError(t, err)

	_, err = v.DeriveNoteKey(ctx, alice, id, transport)
	assert.True(t, entity.IsCapacityExceeded(err))
}

func TestDeriveNoteKey_UsesSnapshotAcrossSuspension(t *testing.T) {
	ctx := context.Background()
	kdf := newBlockingKDF(newLocalKDF(t))
	v := newTestVaultWith(t, kdf)
	transport := newTransportIdentity(t)

	id, err := v.CreateNote(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, v.AddGrantee(ctx, alice, id, bob))

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := v.DeriveNoteKey(ctx, bob, id, []byte(transport.Recipient().String()))
		done <- result{out, err}
	}()

	select {
	case <-kdf.started:
	case <-time.After(5 * time.Second):
		t.Fatal("derivation never reached the service")
	}

	// The vault is not held during the suspension: other calls proceed.
	require.NoError(t, v.RemoveGrantee(ctx, alice, id, bob))
	require.NoError(t, v.DeleteNote(ctx, alice, id))
	_, err = v.CreateNote(ctx, alice)
	require.NoError(t, err)

	close(kdf.release)

	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("derivation never resumed")
	}
	require.NoError(t, res.err)

	kdf.mu.Lock()
	defer kdf.mu.Unlock()
	require.Len(t, kdf.got, 1)
	assert.Equal(t, keyderiv.Input(id, alice), kdf.got[0].Input, "request built before suspension")
	assert.NotEmpty(t, res.out)

	// Later calls see the unshare.
	_, err = v.DeriveNoteKey(ctx, bob, id, []byte(transport.Recipient().String()))
	assert.Error(t, err)
}
