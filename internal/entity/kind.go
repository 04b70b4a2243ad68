package entity

// Kind names an entity kind. The value doubles as the allocator key and the
// prefix of the kind's durable regions.
type Kind string

const (
	KindNote     Kind = "note"
	KindPassport Kind = "passport"
	KindMemory   Kind = "memory"
	KindToken    Kind = "token"
	KindJob      Kind = "job"
)

// AllocatedKinds are the kinds whose IDs come from a counter.
var AllocatedKinds = []Kind{KindNote, KindPassport, KindMemory, KindToken}

// Shareable reports whether the kind keeps a grantee index.
func (k Kind) Shareable() bool {
	return k == KindNote
}
