package vault

import (
	"context"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/store"
)

func memoryOwner(m *entity.Memory) string { return m.Owner }

// AddMemory attaches encrypted content to one of caller's passports.
// Importance is clamped to [0, 100]; kind is stored as given.
func (v *Vault) AddMemory(ctx context.Context, caller string, passportID entity.ID, kind, content string, importance int) (entity.ID, error) {
	var id entity.ID
	err := v.update(ctx, "memory.add", caller, func(tx *store.Tx) error {
		if _, err := loadOwned(tx, entity.KindPassport, passportID.String(), caller, passportOwner); err != nil {
			return err
		}
		if err := v.limits.CheckPayload(content); err != nil {
			return err
		}
		now := v.clock.Now()
		var err error
		id, err = v.create(tx, entity.KindMemory, caller, func(id entity.ID) any {
			return &entity.Memory{
				ID:               id,
				Owner:            caller,
				PassportID:       passportID,
				Kind:             kind,
				EncryptedContent: content,
				Importance:       entity.ClampImportance(importance),
				CreatedAt:        now,
			}
		})
		return err
	})
	return id, err
}

// ListMemories returns the memories of one of caller's passports in
// ascending ID order. A non-empty kind keeps only memories of that kind,
// compared as normalized tags.
func (v *Vault) ListMemories(ctx context.Context, caller string, passportID entity.ID, kind string) ([]entity.Memory, error) {
	var out []entity.Memory
	err := v.view(ctx, "memory.list", caller, func(tx *store.Tx) error {
		if _, err := loadOwned(tx, entity.KindPassport, passportID.String(), caller, passportOwner); err != nil {
			return err
		}
		all, err := store.Resolve[entity.Memory](tx, store.OwnerIndex(entity.KindMemory), caller)
		if err != nil {
			return err
		}
		want := entity.NormalizeTag(kind)
		out = make([]entity.Memory, 0, len(all))
		for _, m := range all {
			if m.PassportID != passportID {
				continue
			}
			if want != "" && entity.NormalizeTag(m.Kind) != want {
				continue
			}
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

// DeleteMemory removes one memory. Owner only.
func (v *Vault) DeleteMemory(ctx context.Context, caller string, id entity.ID) error {
	return v.update(ctx, "memory.delete", caller, func(tx *store.Tx) error {
		m, err := loadOwned(tx, entity.KindMemory, id.String(), caller, memoryOwner)
		if err != nil {
			return err
		}
		return remove(tx, entity.KindMemory, m.Owner, id.String())
	})
}
