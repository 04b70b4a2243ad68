package keyderiv

import (
	"github.com/roach88/enclave/internal/entity"
)

// Context is the derivation context label sent with every request.
const Context = "note_symmetric_key"

// KeyID names the master key the service derives from.
type KeyID struct {
	Curve string `json:"curve"`
	Name  string `json:"name"`
}

// DefaultKeyID is the master key used unless configured otherwise.
var DefaultKeyID = KeyID{Curve: "bls12_381_g2", Name: "test_key_1"}

// Input returns the derivation input for a note: the 16-byte big-endian ID
// followed by the owner's UTF-8 bytes.
//
// The ID part has fixed width, so no two (id, owner) pairs share an input.
// Neither part may change for the lifetime of the note.
func Input(id entity.ID, owner string) []byte {
	b := make([]byte, 0, entity.IDSize+len(owner))
	b = append(b, id.Bytes()...)
	return append(b, owner...)
}

// KeyRequest selects a verification key.
type KeyRequest struct {
	Context string `json:"context"`
	KeyID   KeyID  `json:"key_id"`
}

// DeriveRequest asks for the key bound to Input, encrypted to TransportKey.
//
// The request is a value snapshot: once built it does not refer to any
// stored entity, so later changes to the note cannot affect it.
type DeriveRequest struct {
	KeyRequest
	Input        []byte `json:"input"`
	TransportKey []byte `json:"transport_public_key"`
}

// NewKeyRequest returns the verification key request for the default key.
func NewKeyRequest() KeyRequest {
	return KeyRequest{Context: Context, KeyID: DefaultKeyID}
}

// NewDeriveRequest snapshots everything needed to derive a note's key.
func NewDeriveRequest(id entity.ID, owner string, transportKey []byte) DeriveRequest {
	return DeriveRequest{
		KeyRequest:   NewKeyRequest(),
		Input:        Input(id, owner),
		TransportKey: append([]byte(nil), transportKey...),
	}
}
