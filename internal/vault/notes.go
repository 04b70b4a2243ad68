package vault

import (
	"context"
	"slices"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/policy"
	"github.com/roach88/enclave/internal/store"
)

// CreateNote creates an empty note owned by caller.
func (v *Vault) CreateNote(ctx context.Context, caller string) (entity.ID, error) {
	var id entity.ID
	err := v.update(ctx, "note.create", caller, func(tx *store.Tx) error {
		var err error
		id, err = v.createNote(tx, caller, "")
		return err
	})
	return id, err
}

func (v *Vault) createNote(tx *store.Tx, owner, payload string) (entity.ID, error) {
	if err := v.limits.CheckPayload(payload); err != nil {
		return entity.ID{}, err
	}
	return v.create(tx, entity.KindNote, owner, func(id entity.ID) any {
		return &entity.Note{ID: id, Owner: owner, EncryptedText: payload}
	})
}

// GetNotes returns the notes caller owns followed by the notes shared
// with caller, each group in ascending ID order.
func (v *Vault) GetNotes(ctx context.Context, caller string) ([]entity.Note, error) {
	var notes []entity.Note
	err := v.view(ctx, "note.list", caller, func(tx *store.Tx) error {
		owned, err := store.Resolve[entity.Note](tx, store.OwnerIndex(entity.KindNote), caller)
		if err != nil {
			return err
		}
		shared, err := store.Resolve[entity.Note](tx, store.ShareIndex(entity.KindNote), caller)
		if err != nil {
			return err
		}
		// Share buckets keep grant order.
		slices.SortFunc(shared, func(a, b entity.Note) int { return a.ID.Compare(b.ID) })
		notes = append(owned, shared...)
		return nil
	})
	return notes, err
}

// UpdateNote replaces a note's payload. Owner only.
func (v *Vault) UpdateNote(ctx context.Context, caller string, id entity.ID, payload string) error {
	return v.update(ctx, "note.update", caller, func(tx *store.Tx) error {
		note, err := loadNote(tx, id, caller, policy.ActionWrite)
		if err != nil {
			return err
		}
		if err := v.limits.CheckPayload(payload); err != nil {
			return err
		}
		note.EncryptedText = payload
		return tx.Replace(entity.KindNote, id.String(), note)
	})
}

// DeleteNote removes a note and every index entry naming it. Owner only.
func (v *Vault) DeleteNote(ctx context.Context, caller string, id entity.ID) error {
	return v.update(ctx, "note.delete", caller, func(tx *store.Tx) error {
		note, err := loadNote(tx, id, caller, policy.ActionManage)
		if err != nil {
			return err
		}
		return deleteNote(tx, note)
	})
}

func deleteNote(tx *store.Tx, note *entity.Note) error {
	key := note.ID.String()
	for _, g := range note.Grantees {
		if err := tx.RemoveFromBucket(store.ShareIndex(entity.KindNote), g, key); err != nil {
			return err
		}
	}
	return remove(tx, entity.KindNote, note.Owner, key)
}

// AddGrantee shares a note with grantee. Owner only. Sharing with an
// existing grantee is a no-op.
func (v *Vault) AddGrantee(ctx context.Context, caller string, id entity.ID, grantee string) error {
	return v.update(ctx, "note.share", caller, func(tx *store.Tx) error {
		note, err := loadNote(tx, id, caller, policy.ActionManage)
		if err != nil {
			return err
		}
		if err := checkGrantee(note, grantee); err != nil {
			return err
		}
		if note.HasGrantee(grantee) {
			return nil
		}
		if err := v.limits.CheckGrantee(len(note.Grantees)); err != nil {
			return err
		}

		note.Grantees = append(note.Grantees, grantee)
		if err := tx.Replace(entity.KindNote, id.String(), note); err != nil {
			return err
		}
		return tx.AddToBucket(store.ShareIndex(entity.KindNote), grantee, id.String())
	})
}

// RemoveGrantee revokes grantee's access to a note. Owner only. Removing
// a principal the note is not shared with is a no-op.
func (v *Vault) RemoveGrantee(ctx context.Context, caller string, id entity.ID, grantee string) error {
	return v.update(ctx, "note.unshare", caller, func(tx *store.Tx) error {
		note, err := loadNote(tx, id, caller, policy.ActionManage)
		if err != nil {
			return err
		}
		i := slices.Index(note.Grantees, grantee)
		if i < 0 {
			return nil
		}

		note.Grantees = slices.Delete(note.Grantees, i, i+1)
		if err := tx.Replace(entity.KindNote, id.String(), note); err != nil {
			return err
		}
		return tx.RemoveFromBucket(store.ShareIndex(entity.KindNote), grantee, id.String())
	})
}

func checkGrantee(note *entity.Note, grantee string) error {
	if err := entity.ValidatePrincipal(grantee); err != nil {
		return entity.InvalidArgument("grantee must be an authenticated principal")
	}
	if grantee == note.Owner {
		return entity.InvalidArgument("owner cannot be a grantee of their own note")
	}
	return nil
}

// loadNote reads a note and authorizes caller for action.
func loadNote(tx *store.Tx, id entity.ID, caller string, action policy.Action) (*entity.Note, error) {
	var note entity.Note
	if err := tx.Get(entity.KindNote, id.String(), &note); err != nil {
		return nil, err
	}
	if err := policy.Authorize(policy.ForNote(&note), caller, action, entity.KindNote, id.String()); err != nil {
		return nil, err
	}
	return &note, nil
}
