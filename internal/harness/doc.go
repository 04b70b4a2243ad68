// Package harness runs vault scenarios: scripted sequences of operations,
// each performed as a named principal, with expected outcomes and final
// assertions.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: share_then_unshare
//	description: "A grantee loses access when unshared"
//	limits:
//	  max_grantees: 2
//	setup:
//	  - as: alice
//	    op: note.create
//	    save: note
//	flow:
//	  - as: alice
//	    op: note.share
//	    args: { id: $note, grantee: bob }
//	  - as: bob
//	    op: note.delete
//	    args: { id: $note }
//	    expect:
//	      code: UNAUTHORIZED
//	assertions:
//	  - type: final_state
//	    as: bob
//	    list: notes
//	    count: 1
//	  - type: consistent
//
// A step's save name binds the step's result: $note is its ID and
// $note.<field> any other string field it returned (a token's secret, for
// example). String arguments starting with $ are replaced before the step
// runs.
//
// Setup steps must succeed. Flow steps without an expect clause must
// succeed too; an expect clause names the error code (or OK) and, for
// successes, a subset of the result.
//
// # Assertion Types
//
//   - trace_contains: an operation appears, optionally with a given code
//   - trace_order: operations appear in the given order
//   - trace_count: an operation appears exactly N times
//   - final_state: a list operation, performed as a principal, returns
//     count items and/or an item matching contains
//   - consistent: the owner and share indexes verify clean
//
// # Determinism
//
// Each scenario runs on a fresh in-memory database with a stepping clock,
// sequential operation IDs and a fixed key derivation master key, so traces
// are reproducible and can be compared against golden files.
package harness
