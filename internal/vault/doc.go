// Package vault is the caller-facing surface of enclave. A Vault is built
// once at process start around an opened store and a key derivation
// service, and every operation goes through it.
//
// Operations are serialized by one mutex: each runs to completion inside a
// single store transaction before the next begins, so no caller observes a
// partial mutation. Key derivation is the one exception. It resolves and
// authorizes the note under the lock, captures an immutable request, then
// releases the lock before calling the external service. Nothing read
// after that point influences the response.
package vault
