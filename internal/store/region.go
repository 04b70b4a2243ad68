package store

import (
	"fmt"

	"github.com/roach88/enclave/internal/entity"
)

// region names the tables that hold one kind's records and indices.
// Table names never come from callers.
type region struct {
	records string
	owners  string
	shares  string // empty for kinds without a share index
}

var regions = map[entity.Kind]region{
	entity.KindNote:     {records: "notes", owners: "note_owners", shares: "note_shares"},
	entity.KindPassport: {records: "passports", owners: "passport_owners"},
	entity.KindMemory:   {records: "memories", owners: "memory_owners"},
	entity.KindToken:    {records: "tokens", owners: "token_owners"},
	entity.KindJob:      {records: "jobs", owners: "job_owners"},
}

func regionFor(kind entity.Kind) (region, error) {
	r, ok := regions[kind]
	if !ok {
		return region{}, fmt.Errorf("unknown entity kind %q", kind)
	}
	return r, nil
}

// Index identifies one index family of one kind.
type Index struct {
	kind  entity.Kind
	table string
}

// OwnerIndex returns the owner index of kind.
func OwnerIndex(kind entity.Kind) Index {
	return Index{kind: kind, table: regions[kind].owners}
}

// ShareIndex returns the grantee index of a shareable kind.
func ShareIndex(kind entity.Kind) Index {
	return Index{kind: kind, table: regions[kind].shares}
}

// Kind returns the entity kind the index points into.
func (i Index) Kind() entity.Kind {
	return i.kind
}

// String returns the index table name.
func (i Index) String() string {
	return i.table
}

func (i Index) valid() error {
	if i.table == "" {
		return fmt.Errorf("kind %q has no such index", i.kind)
	}
	return nil
}
