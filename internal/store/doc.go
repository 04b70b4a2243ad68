// Package store provides SQLite-backed durable regions for enclave.
//
// Every entity kind owns independently addressable regions:
//   - Counter: one row in counters holding the next ID to allocate
//   - Records: the kind's entity table (id → owner, CBOR record)
//   - Owner index: principal → CBOR set of record keys
//   - Share index (notes only): grantee → CBOR set of note keys
//
// # Invariants
//
// The store does not cascade. Callers keep records and indices symmetric by
// performing both mutations inside one Update transaction:
//   - An index entry never names a missing record (Resolve fails with a
//     fatal INVALID_STATE instead of skipping the entry)
//   - A bucket that becomes empty is deleted, never stored empty
//   - Counters only advance; deleted IDs are never reused
//
// Verify checks all three across the whole database.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - Single connection: one writer, matching the vault's single-writer lock
package store
