package vault

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/testutil"
)

func TestPassport_CreateGetList(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)

	id, err := v.CreatePassport(ctx, alice, "scout", "Research", []string{"Search", "Summarize"}, "enc-spec")
	require.NoError(t, err)

	p, err := v.GetPassport(ctx, alice, id)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "scout", p.Name)
	assert.Equal(t, "Research", p.AgentType)
	assert.Equal(t, []string{"Search", "Summarize"}, p.Capabilities)
	assert.True(t, p.Active)
	assert.True(t, p.CreatedAt.Equal(testutil.Epoch))
	assert.True(t, p.LastActive.Equal(p.CreatedAt))

	list, err := v.ListMyPassports(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	list, err = v.ListMyPassports(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGetPassport_AbsentAndForeign(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)

	p, err := v.GetPassport(ctx, alice, entity.NewID(5))
	require.NoError(t, err)
	assert.Nil(t, p)

	id, err := v.CreatePassport(ctx, alice, "scout", "research", nil, "")
	require.NoError(t, err)

	p, err = v.GetPassport(ctx, bob, id)
	assert.True(t, entity.IsUnauthorized(err))
	assert.Nil(t, p)
}

func TestUpdatePassportSpec_BumpsLastActive(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)

	id, err := v.CreatePassport(ctx, alice, "scout", "research", nil, "v1")
	require.NoError(t, err)

	require.NoError(t, v.UpdatePassportSpec(ctx, alice, id, "v2"))
	assert.True(t, entity.IsUnauthorized(v.UpdatePassportSpec(ctx, bob, id, "evil")))
	assert.True(t, entity.IsNotFound(v.UpdatePassportSpec(ctx, alice, entity.NewID(9), "v3")))

	p, err := v.GetPassport(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, "v2", p.EncryptedSpec)
	assert.True(t, p.LastActive.After(p.CreatedAt))
}

func TestSetPassportEndpointsAndActive(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)

	id, err := v.CreatePassport(ctx, alice, "scout", "research", nil, "")
	require.NoError(t, err)

	require.NoError(t, v.SetPassportEndpoints(ctx, alice, id, []string{"https://agent.example/api"}))
	require.NoError(t, v.SetPassportActive(ctx, alice, id, false))
	assert.True(t, entity.IsUnauthorized(v.SetPassportActive(ctx, bob, id, true)))

	p, err := v.GetPassport(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://agent.example/api"}, p.Endpoints)
	assert.False(t, p.Active)
}

func TestDeletePassport_CascadesMemoriesAndTokens(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t)

	keep, err := v.CreatePassport(ctx, alice, "keep", "research", nil, "")
	require.NoError(t, err)
	drop, err := v.CreatePassport(ctx, alice, "drop", "research", nil, "")
	require.NoError(t, err)

	_, err = v.AddMemory(ctx, alice, keep, "fact", "k1", 10)
	require.NoError(t, err)
	_, err = v.AddMemory(ctx, alice, drop, "fact", "d1", 10)
	require.NoError(t, err)
	_, _, err = v.CreateToken(ctx, alice, drop, "ci", []string{"read"}, nil)
	require.NoError(t, err)

	assert.True(t, entity.IsUnauthorized(v.DeletePassport(ctx, bob, drop)))
	require.NoError(t, v.DeletePassport(ctx, alice, drop))

	p, err := v.GetPassport(ctx, alice, drop)
	require.NoError(t, err)
	assert.Nil(t, p)

	mems, err := v.ListMemories(ctx, alice, keep, "")
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Equal(t, "k1", mems[0].EncryptedContent)

	toks, err := v.ListMyTokens(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, toks)

	requireConsistent(t, v)
}

func TestCreatePassport_UsesClock(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), 0)
	v := newTestVault(t, WithClock(clock))

	id, err := v.CreatePassport(ctx, alice, "scout", "research", nil, "")
	require.NoError(t, err)

	p, err := v.GetPassport(ctx, alice, id)
	require.NoError(t, err)
	assert.True(t, p.CreatedAt.Equal(clock.Peek()))
}
