package vault

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/store"
)

const (
	tokenSecretPrefix = "enc_"
	tokenSecretBytes  = 32
)

func tokenOwner(t *entity.Token) string { return t.Owner }

// Fingerprint is the stored form of a token secret.
func Fingerprint(secret string) string {
	sum := blake3.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func newTokenSecret() (string, error) {
	b := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token secret: %w", err)
	}
	return tokenSecretPrefix + hex.EncodeToString(b), nil
}

// CreateToken issues an API token for one of caller's passports. The
// secret is returned once; only its fingerprint is stored.
func (v *Vault) CreateToken(ctx context.Context, caller string, passportID entity.ID, name string, permissions []string, expiresAt *time.Time) (*entity.Token, string, error) {
	secret, err := newTokenSecret()
	if err != nil {
		return nil, "", err
	}

	var out *entity.Token
	err = v.update(ctx, "token.create", caller, func(tx *store.Tx) error {
		if _, err := loadOwned(tx, entity.KindPassport, passportID.String(), caller, passportOwner); err != nil {
			return err
		}
		now := v.clock.Now()
		tok := &entity.Token{
			Owner:       caller,
			PassportID:  passportID,
			Name:        name,
			Fingerprint: Fingerprint(secret),
			Permissions: append([]string(nil), permissions...),
			ExpiresAt:   expiresAt,
			CreatedAt:   now,
			Active:      true,
		}
		_, err := v.create(tx, entity.KindToken, caller, func(id entity.ID) any {
			tok.ID = id
			return tok
		})
		out = tok
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return out, secret, nil
}

// ListMyTokens returns caller's tokens in ascending ID order.
func (v *Vault) ListMyTokens(ctx context.Context, caller string) ([]entity.Token, error) {
	var out []entity.Token
	err := v.view(ctx, "token.list", caller, func(tx *store.Tx) error {
		var err error
		out, err = store.Resolve[entity.Token](tx, store.OwnerIndex(entity.KindToken), caller)
		return err
	})
	return out, err
}

// RevokeToken deactivates a token. The record is kept.
func (v *Vault) RevokeToken(ctx context.Context, caller string, id entity.ID) error {
	return v.update(ctx, "token.revoke", caller, func(tx *store.Tx) error {
		tok, err := loadOwned(tx, entity.KindToken, id.String(), caller, tokenOwner)
		if err != nil {
			return err
		}
		tok.Active = false
		return tx.Replace(entity.KindToken, id.String(), tok)
	})
}

// VerifyToken checks secret against token id and that the token is valid
// now and grants permission. On success LastUsed is stamped. Any mismatch
// is UNAUTHORIZED.
func (v *Vault) VerifyToken(ctx context.Context, caller string, id entity.ID, secret, permission string) (*entity.Token, error) {
	var out *entity.Token
	err := v.update(ctx, "token.verify", caller, func(tx *store.Tx) error {
		tok, err := loadOwned(tx, entity.KindToken, id.String(), caller, tokenOwner)
		if err != nil {
			return err
		}
		if subtle.ConstantTimeCompare([]byte(tok.Fingerprint), []byte(Fingerprint(secret))) != 1 {
			return entity.Unauthorized(entity.KindToken, id.String(), "token secret does not match")
		}
		now := v.clock.Now()
		if !tok.Valid(now) {
			return entity.Unauthorized(entity.KindToken, id.String(), "token is revoked or expired")
		}
		if permission != "" && !tok.HasPermission(permission) {
			return entity.Unauthorized(entity.KindToken, id.String(), "token lacks permission "+permission)
		}
		tok.LastUsed = &now
		out = tok
		return tx.Replace(entity.KindToken, id.String(), tok)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
