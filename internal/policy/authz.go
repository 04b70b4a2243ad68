package policy

import (
	"slices"

	"github.com/roach88/enclave/internal/entity"
)

// Policy is the authorization rule of one entity.
type Policy interface {
	// CanRead reports whether caller may read the entity (and derive its key).
	CanRead(caller string) bool

	// CanWrite reports whether caller may replace the entity's payload.
	CanWrite(caller string) bool

	// CanManage reports whether caller may delete the entity or change who
	// can access it.
	CanManage(caller string) bool
}

// OwnerOnly grants everything to the owner and nothing to anyone else.
// Used by passports, memories, tokens and jobs.
type OwnerOnly struct {
	Owner string
}

func (p OwnerOnly) CanRead(caller string) bool   { return caller == p.Owner }
func (p OwnerOnly) CanWrite(caller string) bool  { return caller == p.Owner }
func (p OwnerOnly) CanManage(caller string) bool { return caller == p.Owner }

// OwnerOrGrantee lets grantees read. Writing, deleting and sharing stay
// with the owner. Used by notes.
type OwnerOrGrantee struct {
	Owner    string
	Grantees []string
}

func (p OwnerOrGrantee) CanRead(caller string) bool {
	return caller == p.Owner || slices.Contains(p.Grantees, caller)
}

func (p OwnerOrGrantee) CanWrite(caller string) bool {
	return caller == p.Owner
}

func (p OwnerOrGrantee) CanManage(caller string) bool {
	return caller == p.Owner
}

// ForNote returns the policy of a note.
func ForNote(n *entity.Note) Policy {
	return OwnerOrGrantee{Owner: n.Owner, Grantees: n.Grantees}
}

// ForOwner returns the owner-only policy of any other kind.
func ForOwner(owner string) Policy {
	return OwnerOnly{Owner: owner}
}

// Action names what a caller is trying to do, for error messages.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionManage Action = "manage"
)

// Authorize evaluates p for the action and returns UNAUTHORIZED on denial.
func Authorize(p Policy, caller string, action Action, kind entity.Kind, ref string) error {
	var ok bool
	switch action {
	case ActionRead:
		ok = p.CanRead(caller)
	case ActionWrite:
		ok = p.CanWrite(caller)
	case ActionManage:
		ok = p.CanManage(caller)
	}
	if ok {
		return nil
	}
	return entity.Unauthorized(kind, ref, "caller may not "+string(action)+" this entity")
}
