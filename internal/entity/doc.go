// Package entity defines the records enclave persists and the error taxonomy
// shared by every layer above the store.
//
// Entity kinds:
//   - Note: shareable encrypted text (owner plus explicit grantees)
//   - Passport: an AI agent's identity, encrypted spec and metadata
//   - Memory: encrypted content attached to a passport
//   - Token: fingerprint and permissions of an API token bound to a passport
//   - Job: a synthetic-data generation request and its lifecycle
//
// Every kind except Job is keyed by a 128-bit ID issued by the store's
// per-kind allocator. Jobs are keyed by a string formed from the creation
// time and the owner.
//
// Payloads are opaque to this package. Encryption happens on the client
// with keys obtained through the key derivation relay; the server never
// holds plaintext.
package entity
