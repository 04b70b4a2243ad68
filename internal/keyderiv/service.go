package keyderiv

import (
	"context"
)

// Service is a verifiable key derivation service.
//
// Implementations must be safe for concurrent use. The coordinator calls a
// Service at most once per request and never retries.
type Service interface {
	// PublicKey returns the verification key for the request's context
	// and master key.
	PublicKey(ctx context.Context, req KeyRequest) ([]byte, error)

	// DeriveKey returns the key bound to req.Input, encrypted to
	// req.TransportKey.
	DeriveKey(ctx context.Context, req DeriveRequest) ([]byte, error)
}
