package keyderiv

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/enclave/internal/entity"
)

func TestClient_RoundTripThroughHandler(t *testing.T) {
	ctx := context.Background()
	local := newTestLocal(t)
	srv := httptest.NewServer(Handler(local))
	defer srv.Close()

	client := NewClient(srv.URL + "/")
	transport := newTransport(t)

	vk, err := client.PublicKey(ctx, NewKeyRequest())
	require.NoError(t, err)

	localVK, err := local.PublicKey(ctx, NewKeyRequest())
	require.NoError(t, err)
	assert.Equal(t, localVK, vk)

	req := NewDeriveRequest(entity.NewID(3), "alice", []byte(transport.Recipient().String()))
	ct, err := client.DeriveKey(ctx, req)
	require.NoError(t, err)

	key, err := Open(transport, ct, vk, req.Input)
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestClient_SurfacesServiceError(t *testing.T) {
	srv := httptest.NewServer(Handler(newTestLocal(t)))
	defer srv.Close()

	_, err := NewClient(srv.URL).DeriveKey(context.Background(),
		NewDeriveRequest(entity.NewID(1), "alice", []byte("not-a-key")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport key")
	assert.Contains(t, err.Error(), "422")
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(Handler(newTestLocal(t)))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).PublicKey(context.Background(), NewKeyRequest())
	assert.Error(t, err)
}
