// Package keyderiv coordinates per-note key derivation against a verifiable
// key derivation service.
//
// The coordinator never sees a plaintext note key. It sends the service an
// input that binds the derived key to one (note ID, owner) pair, together
// with the caller's transport public key, and relays the service's
// encrypted reply. Holders of the transport identity verify and decrypt the
// reply with Open.
//
// Three Service implementations exist:
//
//   - Local: an in-process reference service for development and tests.
//   - Client: talks to a remote service over HTTP.
//   - Handler (not a Service itself) serves any Service over HTTP so a Local
//     can be mounted for Client to reach.
package keyderiv
