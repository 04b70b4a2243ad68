// Package policy decides whether an operation may proceed: who may touch an
// entity (authorization) and whether the store has room for it (capacity).
//
// Both are evaluated before the first mutation of an operation, so a denied
// or rejected call leaves every region untouched.
package policy
