package vault

import (
	"context"
	"slices"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/store"
)

func passportOwner(p *entity.Passport) string { return p.Owner }

// CreatePassport registers an agent passport owned by caller.
func (v *Vault) CreatePassport(ctx context.Context, caller, name, agentType string, capabilities []string, spec string) (entity.ID, error) {
	var id entity.ID
	err := v.update(ctx, "passport.create", caller, func(tx *store.Tx) error {
		if err := v.limits.CheckPayload(spec); err != nil {
			return err
		}
		now := v.clock.Now()
		var err error
		id, err = v.create(tx, entity.KindPassport, caller, func(id entity.ID) any {
			return &entity.Passport{
				ID:            id,
				Owner:         caller,
				Name:          name,
				AgentType:     agentType,
				Capabilities:  slices.Clone(capabilities),
				EncryptedSpec: spec,
				CreatedAt:     now,
				LastActive:    now,
				Active:        true,
			}
		})
		return err
	})
	return id, err
}

// GetPassport returns a passport, or nil without error if none has the
// ID. A passport owned by someone else is UNAUTHORIZED.
func (v *Vault) GetPassport(ctx context.Context, caller string, id entity.ID) (*entity.Passport, error) {
	var out *entity.Passport
	err := v.view(ctx, "passport.get", caller, func(tx *store.Tx) error {
		p, err := loadOwned(tx, entity.KindPassport, id.String(), caller, passportOwner)
		if entity.IsNotFound(err) {
			return nil
		}
		out = p
		return err
	})
	return out, err
}

// ListMyPassports returns caller's passports in ascending ID order.
func (v *Vault) ListMyPassports(ctx context.Context, caller string) ([]entity.Passport, error) {
	var out []entity.Passport
	err := v.view(ctx, "passport.list", caller, func(tx *store.Tx) error {
		var err error
		out, err = store.Resolve[entity.Passport](tx, store.OwnerIndex(entity.KindPassport), caller)
		return err
	})
	return out, err
}

// UpdatePassportSpec replaces the encrypted specification and marks the
// passport active now.
func (v *Vault) UpdatePassportSpec(ctx context.Context, caller string, id entity.ID, spec string) error {
	return v.update(ctx, "passport.update_spec", caller, func(tx *store.Tx) error {
		p, err := loadOwned(tx, entity.KindPassport, id.String(), caller, passportOwner)
		if err != nil {
			return err
		}
		if err := v.limits.CheckPayload(spec); err != nil {
			return err
		}
		p.EncryptedSpec = spec
		p.LastActive = v.clock.Now()
		return tx.Replace(entity.KindPassport, id.String(), p)
	})
}

// SetPassportEndpoints replaces the passport's API endpoint list.
func (v *Vault) SetPassportEndpoints(ctx context.Context, caller string, id entity.ID, endpoints []string) error {
	return v.update(ctx, "passport.set_endpoints", caller, func(tx *store.Tx) error {
		p, err := loadOwned(tx, entity.KindPassport, id.String(), caller, passportOwner)
		if err != nil {
			return err
		}
		p.Endpoints = append([]string(nil), endpoints...)
		p.LastActive = v.clock.Now()
		return tx.Replace(entity.KindPassport, id.String(), p)
	})
}

// SetPassportActive activates or deactivates a passport.
func (v *Vault) SetPassportActive(ctx context.Context, caller string, id entity.ID, active bool) error {
	return v.update(ctx, "passport.set_active", caller, func(tx *store.Tx) error {
		p, err := loadOwned(tx, entity.KindPassport, id.String(), caller, passportOwner)
		if err != nil {
			return err
		}
		p.Active = active
		return tx.Replace(entity.KindPassport, id.String(), p)
	})
}

// DeletePassport removes a passport together with its memories and
// tokens, in one transaction.
func (v *Vault) DeletePassport(ctx context.Context, caller string, id entity.ID) error {
	return v.update(ctx, "passport.delete", caller, func(tx *store.Tx) error {
		p, err := loadOwned(tx, entity.KindPassport, id.String(), caller, passportOwner)
		if err != nil {
			return err
		}

		memories, err := store.Resolve[entity.Memory](tx, store.OwnerIndex(entity.KindMemory), p.Owner)
		if err != nil {
			return err
		}
		for _, m := range memories {
			if m.PassportID == p.ID {
				if err := remove(tx, entity.KindMemory, m.Owner, m.ID.String()); err != nil {
					return err
				}
			}
		}

		tokens, err := store.Resolve[entity.Token](tx, store.OwnerIndex(entity.KindToken), p.Owner)
		if err != nil {
			return err
		}
		for _, t := range tokens {
			if t.PassportID == p.ID {
				if err := remove(tx, entity.KindToken, t.Owner, t.ID.String()); err != nil {
					return err
				}
			}
		}

		return remove(tx, entity.KindPassport, p.Owner, id.String())
	})
}
