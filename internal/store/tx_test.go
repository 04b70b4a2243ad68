package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/enclave/internal/entity"
)

func TestNextID_StartsAtOneAndIncreases(t *testing.T) {
	s := createTestStore(t)

	var got []entity.ID
	for i := 0; i < 3; i++ {
		mustUpdate(t, s, func(tx *Tx) error {
			id, err := tx.NextID(entity.KindNote)
			got = append(got, id)
			return err
		})
	}

	assert.Equal(t, []entity.ID{entity.NewID(1), entity.NewID(2), entity.NewID(3)}, got)
}

func TestNextID_PerKindCounters(t *testing.T) {
	s := createTestStore(t)

	mustUpdate(t, s, func(tx *Tx) error {
		note, err := tx.NextID(entity.KindNote)
		require.NoError(t, err)
		passport, err := tx.NextID(entity.KindPassport)
		require.NoError(t, err)
		assert.Equal(t, entity.FirstID, note)
		assert.Equal(t, entity.FirstID, passport)
		return nil
	})
}

func TestNextID_RolledBackWithTransaction(t *testing.T) {
	s := createTestStore(t)
	boom := errors.New("boom")

	err := s.Update(context.Background(), func(tx *Tx) error {
		_, err := tx.NextID(entity.KindNote)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	mustUpdate(t, s, func(tx *Tx) error {
		id, err := tx.NextID(entity.KindNote)
		assert.Equal(t, entity.FirstID, id)
		return err
	})
}

func TestNextID_Exhausted(t *testing.T) {
	s := createTestStore(t)

	mustUpdate(t, s, func(tx *Tx) error {
		return tx.setCounter(entity.KindToken, entity.MaxID)
	})

	err := s.Update(context.Background(), func(tx *Tx) error {
		_, err := tx.NextID(entity.KindToken)
		return err
	})
	require.Error(t, err)
	assert.Equal(t, entity.CodeAllocatorExhausted, entity.CodeOf(err))
	assert.True(t, entity.IsFatal(err))

	// The counter is left where it was.
	require.NoError(t, s.View(context.Background(), func(tx *Tx) error {
		id, err := tx.PeekID(entity.KindToken)
		assert.Equal(t, entity.MaxID, id)
		return err
	}))
}

func TestRecords_CRUD(t *testing.T) {
	s := createTestStore(t)
	note := entity.Note{ID: entity.NewID(1), Owner: "alice", EncryptedText: "c1"}

	mustUpdate(t, s, func(tx *Tx) error {
		return tx.Insert(entity.KindNote, note.ID.String(), note.Owner, note)
	})

	mustUpdate(t, s, func(tx *Tx) error {
		var got entity.Note
		require.NoError(t, tx.Get(entity.KindNote, "1", &got))
		assert.Equal(t, note.EncryptedText, got.EncryptedText)
		assert.Equal(t, note.ID, got.ID)

		got.EncryptedText = "c2"
		return tx.Replace(entity.KindNote, "1", got)
	})

	mustUpdate(t, s, func(tx *Tx) error {
		var got entity.Note
		require.NoError(t, tx.Get(entity.KindNote, "1", &got))
		assert.Equal(t, "c2", got.EncryptedText)
		return tx.Delete(entity.KindNote, "1")
	})

	require.NoError(t, s.View(context.Background(), func(tx *Tx) error {
		var got entity.Note
		err := tx.Get(entity.KindNote, "1", &got)
		assert.True(t, entity.IsNotFound(err))
		assert.True(t, entity.IsNotFound(tx.Delete(entity.KindNote, "1")))
		assert.True(t, entity.IsNotFound(tx.Replace(entity.KindNote, "1", got)))
		return nil
	}))
}

func TestRecords_InsertDuplicateFails(t *testing.T) {
	s := createTestStore(t)
	job := entity.Job{ID: "job_1_aa", Owner: "alice", Status: entity.JobPending}

	mustUpdate(t, s, func(tx *Tx) error {
		return tx.Insert(entity.KindJob, job.ID, job.Owner, job)
	})
	err := s.Update(context.Background(), func(tx *Tx) error {
		return tx.Insert(entity.KindJob, job.ID, job.Owner, job)
	})
	assert.Error(t, err)
}

func TestBucket_AddRemove(t *testing.T) {
	s := createTestStore(t)
	idx := OwnerIndex(entity.KindNote)

	mustUpdate(t, s, func(tx *Tx) error {
		require.NoError(t, tx.AddToBucket(idx, "alice", "1"))
		require.NoError(t, tx.AddToBucket(idx, "alice", "2"))
		require.NoError(t, tx.AddToBucket(idx, "alice", "1")) // already present
		require.NoError(t, tx.AddToBucket(idx, "bob", "3"))

		keys, err := tx.Bucket(idx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2"}, keys)

		n, err := tx.Principals(idx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		return nil
	})

	mustUpdate(t, s, func(tx *Tx) error {
		require.NoError(t, tx.RemoveFromBucket(idx, "bob", "3"))
		require.NoError(t, tx.RemoveFromBucket(idx, "alice", "9")) // absent key

		keys, err := tx.Bucket(idx, "bob")
		require.NoError(t, err)
		assert.Nil(t, keys, "emptied bucket must be deleted")

		n, err := tx.Principals(idx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	})

	var rows int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM note_owners WHERE principal = 'bob'").Scan(&rows))
	assert.Zero(t, rows)
}

func TestBucket_NoShareIndexForOwnerOnlyKinds(t *testing.T) {
	s := createTestStore(t)

	err := s.Update(context.Background(), func(tx *Tx) error {
		return tx.AddToBucket(ShareIndex(entity.KindPassport), "bob", "1")
	})
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	s := createTestStore(t)
	idx := OwnerIndex(entity.KindNote)

	mustUpdate(t, s, func(tx *Tx) error {
		for _, id := range []uint64{1, 2} {
			n := entity.Note{ID: entity.NewID(id), Owner: "alice"}
			require.NoError(t, tx.Insert(entity.KindNote, n.ID.String(), n.Owner, n))
			require.NoError(t, tx.AddToBucket(idx, "alice", n.ID.String()))
		}
		return nil
	})

	require.NoError(t, s.View(context.Background(), func(tx *Tx) error {
		notes, err := Resolve[entity.Note](tx, idx, "alice")
		require.NoError(t, err)
		require.Len(t, notes, 2)
		assert.Equal(t, entity.NewID(1), notes[0].ID)
		assert.Equal(t, entity.NewID(2), notes[1].ID)

		none, err := Resolve[entity.Note](tx, idx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	}))
}

func TestResolve_DanglingEntryIsFatal(t *testing.T) {
	s := createTestStore(t)
	idx := OwnerIndex(entity.KindNote)

	mustUpdate(t, s, func(tx *Tx) error {
		return tx.AddToBucket(idx, "alice", "42")
	})

	err := s.View(context.Background(), func(tx *Tx) error {
		_, err := Resolve[entity.Note](tx, idx, "alice")
		return err
	})
	require.Error(t, err)
	assert.Equal(t, entity.CodeInvalidState, entity.CodeOf(err))
	assert.True(t, entity.IsFatal(err))
}
