package keyderiv

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/zeebo/blake3"
)

// MasterKeySize is the length of a Local master secret.
const MasterKeySize = 32

const (
	signingContext = "enclave keyderiv 2024 signing key"
	derivedKeySize = 32
)

// Local is an in-process Service. It derives keys from a master secret
// with BLAKE3, signs each derived key with an Ed25519 key that is itself
// derived from the master, and encrypts key and signature to the caller's
// age X25519 recipient.
//
// Local exists for development and tests. It offers none of the threshold
// guarantees a production service provides.
type Local struct {
	master [MasterKeySize]byte
}

// GenerateMasterKey returns a fresh random master secret.
func GenerateMasterKey() ([]byte, error) {
	key := make([]byte, MasterKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	return key, nil
}

// NewLocal returns a Local deriving from master.
func NewLocal(master []byte) (*Local, error) {
	if len(master) != MasterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", MasterKeySize, len(master))
	}
	l := &Local{}
	copy(l.master[:], master)
	return l, nil
}

// PublicKey implements Service.
func (l *Local) PublicKey(ctx context.Context, req KeyRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	priv, err := l.signingKey(req)
	if err != nil {
		return nil, err
	}
	return priv.Public().(ed25519.PublicKey), nil
}

// DeriveKey implements Service.
func (l *Local) DeriveKey(ctx context.Context, req DeriveRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Input) == 0 {
		return nil, errors.New("empty derivation input")
	}
	recipient, err := ParseTransportKey(req.TransportKey)
	if err != nil {
		return nil, err
	}
	priv, err := l.signingKey(req.KeyRequest)
	if err != nil {
		return nil, err
	}

	material := make([]byte, 0, MasterKeySize+len(req.Input))
	material = append(material, l.master[:]...)
	material = append(material, req.Input...)

	key := make([]byte, derivedKeySize)
	blake3.DeriveKey(derivationContext(req.KeyRequest), material, key)

	sig := ed25519.Sign(priv, signedMessage(req.Input, key))

	var out bytes.Buffer
	w, err := age.Encrypt(&out, recipient)
	if err != nil {
		return nil, fmt.Errorf("create age encryptor: %w", err)
	}
	if _, err := w.Write(append(key, sig...)); err != nil {
		return nil, fmt.Errorf("encrypt derived key: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize age encryption: %w", err)
	}
	return out.Bytes(), nil
}

func (l *Local) signingKey(req KeyRequest) (ed25519.PrivateKey, error) {
	if req.Context == "" {
		return nil, errors.New("empty derivation context")
	}
	seed := make([]byte, ed25519.SeedSize)
	blake3.DeriveKey(signingContext, append(l.master[:], derivationContext(req)...), seed)
	return ed25519.NewKeyFromSeed(seed), nil
}

func derivationContext(req KeyRequest) string {
	return fmt.Sprintf("enclave keyderiv %s %s/%s", req.Context, req.KeyID.Curve, req.KeyID.Name)
}

func signedMessage(input, key []byte) []byte {
	msg := make([]byte, 0, len(input)+len(key))
	msg = append(msg, input...)
	return append(msg, key...)
}

// Open decrypts a DeriveKey reply with the transport identity and checks
// the signature against verificationKey. It returns the derived key.
func Open(identity age.Identity, ciphertext, verificationKey, input []byte) ([]byte, error) {
	if len(verificationKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("verification key must be %d bytes, got %d", ed25519.PublicKeySize, len(verificationKey))
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypt derived key: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read derived key: %w", err)
	}
	if len(plain) != derivedKeySize+ed25519.SignatureSize {
		return nil, fmt.Errorf("derived key blob has %d bytes", len(plain))
	}
	key, sig := plain[:derivedKeySize], plain[derivedKeySize:]
	if !ed25519.Verify(verificationKey, signedMessage(input, key), sig) {
		return nil, errors.New("derived key signature does not verify")
	}
	return key, nil
}

// ParseTransportKey parses an age X25519 recipient ("age1...").
func ParseTransportKey(key []byte) (*age.X25519Recipient, error) {
	recipient, err := age.ParseX25519Recipient(string(key))
	if err != nil {
		return nil, fmt.Errorf("parse transport key: %w", err)
	}
	return recipient, nil
}
