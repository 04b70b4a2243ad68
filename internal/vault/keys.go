package vault

import (
	"context"
	"encoding/hex"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/keyderiv"
	"github.com/roach88/enclave/internal/policy"
	"github.com/roach88/enclave/internal/store"
)

// VerificationKey returns the hex-encoded verification key of the note
// key context.
func (v *Vault) VerificationKey(ctx context.Context, caller string) (string, error) {
	if err := entity.ValidatePrincipal(caller); err != nil {
		return "", v.finish("key.verification", caller, err)
	}
	key, err := v.kdf.PublicKey(ctx, keyderiv.NewKeyRequest())
	if err != nil {
		return "", v.finish("key.verification", caller, entity.ExternalServiceFailure(err))
	}
	return hex.EncodeToString(key), nil
}

// DeriveNoteKey returns the hex-encoded key of note id, encrypted to
// transportKey, an age X25519 recipient. Caller must be able to read the
// note. A malformed transport key fails with INVALID_ARGUMENT before any
// rate limit or service call.
//
// The note is resolved and authorized under the vault lock and the
// derivation request is captured then. The lock is released for the
// external call; notes created, updated, shared or deleted meanwhile do
// not change the outcome.
func (v *Vault) DeriveNoteKey(ctx context.Context, caller string, id entity.ID, transportKey []byte) (string, error) {
	const op = "key.derive"
	opID := v.ops.Generate()

	if err := entity.ValidatePrincipal(caller); err != nil {
		return "", v.finish(op, caller, err)
	}
	if len(transportKey) == 0 {
		return "", v.finish(op, caller, entity.InvalidArgument("transport key is required"))
	}
	if _, err := keyderiv.ParseTransportKey(transportKey); err != nil {
		return "", v.finish(op, caller, entity.InvalidArgument(err.Error()))
	}

	req, err := v.snapshotDerivation(ctx, caller, id, transportKey)
	if err != nil {
		return "", v.finish(op, caller, err, "op_id", opID)
	}
	if err := v.limiter.Allow(caller); err != nil {
		return "", v.finish(op, caller, err, "op_id", opID)
	}

	v.log.Debug("derivation suspended", "op_id", opID, "caller", caller, "note", id)
	out, err := v.kdf.DeriveKey(ctx, req)
	if err != nil {
		return "", v.finish(op, caller, entity.ExternalServiceFailure(err), "op_id", opID)
	}
	v.log.Debug("derivation resumed", "op_id", opID, "caller", caller, "note", id)
	return hex.EncodeToString(out), nil
}

func (v *Vault) snapshotDerivation(ctx context.Context, caller string, id entity.ID, transportKey []byte) (keyderiv.DeriveRequest, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var req keyderiv.DeriveRequest
	err := v.store.View(ctx, func(tx *store.Tx) error {
		note, err := loadNote(tx, id, caller, policy.ActionRead)
		if err != nil {
			return err
		}
		req = keyderiv.NewDeriveRequest(note.ID, note.Owner, transportKey)
		return nil
	})
	return req, err
}
