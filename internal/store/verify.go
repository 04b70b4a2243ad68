package store

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/roach88/enclave/internal/entity"
)

// Violation describes one broken invariant found by Verify.
type Violation struct {
	Index     string `json:"index"`
	Principal string `json:"principal,omitempty"`
	Key       string `json:"key,omitempty"`
	Problem   string `json:"problem"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s[%s] %s: %s", v.Index, v.Principal, v.Key, v.Problem)
}

// Verify checks index symmetry for every kind: each owner bucket holds
// exactly the records that owner owns, each share bucket holds exactly the
// notes that list the grantee, no bucket is empty and no note lists its
// owner as a grantee. Returns nil when the database is consistent.
func (s *Store) Verify(ctx context.Context) ([]Violation, error) {
	var violations []Violation
	err := s.View(ctx, func(tx *Tx) error {
		kinds := make([]entity.Kind, 0, len(regions))
		for kind := range regions {
			kinds = append(kinds, kind)
		}
		slices.Sort(kinds)

		for _, kind := range kinds {
			owned, err := tx.ownership(kind)
			if err != nil {
				return err
			}
			found, err := tx.compareIndex(OwnerIndex(kind), owned)
			if err != nil {
				return err
			}
			violations = append(violations, found...)

			if !kind.Shareable() {
				continue
			}
			shared, owners, err := tx.grants(kind)
			if err != nil {
				return err
			}
			for key, grantees := range shared {
				if slices.Contains(grantees, owners[key]) {
					violations = append(violations, Violation{
						Index: ShareIndex(kind).String(), Principal: owners[key], Key: key,
						Problem: "owner listed as grantee",
					})
				}
			}
			found, err = tx.compareIndex(ShareIndex(kind), invert(shared))
			if err != nil {
				return err
			}
			violations = append(violations, found...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	return violations, nil
}

// ownership returns owner → keys of the kind's records.
func (t *Tx) ownership(kind entity.Kind) (map[string][]string, error) {
	r, err := regionFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(t.ctx,
		fmt.Sprintf("SELECT id, owner FROM %s ORDER BY id", r.records))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", r.records, err)
	}
	defer rows.Close()

	owned := make(map[string][]string)
	for rows.Next() {
		var key, owner string
		if err := rows.Scan(&key, &owner); err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.records, err)
		}
		owned[owner] = append(owned[owner], key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", r.records, err)
	}
	return owned, nil
}

// grants returns note key → grantees and note key → owner.
func (t *Tx) grants(kind entity.Kind) (map[string][]string, map[string]string, error) {
	r, err := regionFor(kind)
	if err != nil {
		return nil, nil, err
	}
	rows, err := t.tx.QueryContext(t.ctx,
		fmt.Sprintf("SELECT id, record FROM %s ORDER BY id", r.records))
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", r.records, err)
	}
	defer rows.Close()

	grantees := make(map[string][]string)
	owners := make(map[string]string)
	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", r.records, err)
		}
		var note entity.Note
		if err := unmarshalRecord(data, &note); err != nil {
			return nil, nil, err
		}
		grantees[key] = note.Grantees
		owners[key] = note.Owner
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate %s: %w", r.records, err)
	}
	return grantees, owners, nil
}

// compareIndex diffs every bucket of idx against the expected principal →
// keys mapping.
func (t *Tx) compareIndex(idx Index, want map[string][]string) ([]Violation, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		fmt.Sprintf("SELECT principal, ids FROM %s", idx.table))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", idx, err)
	}
	defer rows.Close()

	var violations []Violation
	seen := make(map[string]bool)
	for rows.Next() {
		var principal string
		var data []byte
		if err := rows.Scan(&principal, &data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", idx, err)
		}
		seen[principal] = true

		keys, err := unmarshalBucket(data)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			violations = append(violations, Violation{
				Index: idx.String(), Principal: principal, Problem: "empty bucket",
			})
		}
		violations = append(violations, diff(idx, principal, keys, want[principal])...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", idx, err)
	}

	principals := make([]string, 0, len(want))
	for principal := range want {
		principals = append(principals, principal)
	}
	sort.Strings(principals)
	for _, principal := range principals {
		if !seen[principal] {
			violations = append(violations, diff(idx, principal, nil, want[principal])...)
		}
	}
	return violations, nil
}

func diff(idx Index, principal string, have, want []string) []Violation {
	var out []Violation
	for _, key := range have {
		if !slices.Contains(want, key) {
			out = append(out, Violation{
				Index: idx.String(), Principal: principal, Key: key, Problem: "dangling index entry",
			})
		}
	}
	for _, key := range want {
		if !slices.Contains(have, key) {
			out = append(out, Violation{
				Index: idx.String(), Principal: principal, Key: key, Problem: "missing index entry",
			})
		}
	}
	return out
}

func invert(shared map[string][]string) map[string][]string {
	out := make(map[string][]string)
	keys := make([]string, 0, len(shared))
	for key := range shared {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, grantee := range shared[key] {
			out[grantee] = append(out[grantee], key)
		}
	}
	return out
}
