package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/enclave/internal/entity"
)

// Tx is one all-or-nothing unit of work over the durable regions.
// Obtain one through Store.Update or Store.View.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
}

// NextID returns the kind's current counter value and advances the counter
// by one. Fails with ALLOCATOR_EXHAUSTED if the counter cannot advance.
//
// The counter and the insert that consumes the ID share the transaction;
// IDs are unique and increasing but leave gaps after deletes.
func (t *Tx) NextID(kind entity.Kind) (entity.ID, error) {
	current, err := t.PeekID(kind)
	if err != nil {
		return entity.ID{}, err
	}

	next, ok := current.Next()
	if !ok {
		return entity.ID{}, entity.AllocatorExhausted(kind)
	}

	_, err = t.tx.ExecContext(t.ctx,
		"UPDATE counters SET next = ? WHERE kind = ?",
		next.Bytes(), string(kind),
	)
	if err != nil {
		return entity.ID{}, fmt.Errorf("advance %s counter: %w", kind, err)
	}
	return current, nil
}

// PeekID returns the ID the next NextID call would allocate.
func (t *Tx) PeekID(kind entity.Kind) (entity.ID, error) {
	var raw []byte
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT next FROM counters WHERE kind = ?", string(kind),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ID{}, fmt.Errorf("no counter for kind %q", kind)
	}
	if err != nil {
		return entity.ID{}, fmt.Errorf("read %s counter: %w", kind, err)
	}
	return entity.IDFromBytes(raw)
}

// setCounter overwrites a counter. Used by tests to reach the overflow edge.
func (t *Tx) setCounter(kind entity.Kind, id entity.ID) error {
	_, err := t.tx.ExecContext(t.ctx,
		"UPDATE counters SET next = ? WHERE kind = ?", id.Bytes(), string(kind))
	return err
}

// Get decodes the record stored under key into v.
// Returns NOT_FOUND if there is no such record.
func (t *Tx) Get(kind entity.Kind, key string, v any) error {
	found, err := t.Lookup(kind, key, v)
	if err != nil {
		return err
	}
	if !found {
		return entity.NotFound(kind, key)
	}
	return nil
}

// Lookup is Get reporting absence as false instead of an error.
func (t *Tx) Lookup(kind entity.Kind, key string, v any) (bool, error) {
	r, err := regionFor(kind)
	if err != nil {
		return false, err
	}

	var data []byte
	err = t.tx.QueryRowContext(t.ctx,
		fmt.Sprintf("SELECT record FROM %s WHERE id = ?", r.records), key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s %s: %w", kind, key, err)
	}

	if err := unmarshalRecord(data, v); err != nil {
		return false, fmt.Errorf("get %s %s: %w", kind, key, err)
	}
	return true, nil
}

// Exists reports whether a record is stored under key.
func (t *Tx) Exists(kind entity.Kind, key string) (bool, error) {
	r, err := regionFor(kind)
	if err != nil {
		return false, err
	}
	var n int
	err = t.tx.QueryRowContext(t.ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = ?", r.records), key,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("exists %s %s: %w", kind, key, err)
	}
	return n > 0, nil
}

// Insert stores a new record. Fails if key is already taken.
func (t *Tx) Insert(kind entity.Kind, key, owner string, v any) error {
	r, err := regionFor(kind)
	if err != nil {
		return err
	}
	data, err := marshalRecord(v)
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", kind, key, err)
	}
	_, err = t.tx.ExecContext(t.ctx,
		fmt.Sprintf("INSERT INTO %s (id, owner, record) VALUES (?, ?, ?)", r.records),
		key, owner, data,
	)
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", kind, key, err)
	}
	return nil
}

// Replace overwrites an existing record. Ownership never changes, so only
// the record column is written. Returns NOT_FOUND if there is no such record.
func (t *Tx) Replace(kind entity.Kind, key string, v any) error {
	r, err := regionFor(kind)
	if err != nil {
		return err
	}
	data, err := marshalRecord(v)
	if err != nil {
		return fmt.Errorf("replace %s %s: %w", kind, key, err)
	}
	res, err := t.tx.ExecContext(t.ctx,
		fmt.Sprintf("UPDATE %s SET record = ? WHERE id = ?", r.records),
		data, key,
	)
	if err != nil {
		return fmt.Errorf("replace %s %s: %w", kind, key, err)
	}
	return requireOneRow(res, kind, key)
}

// Delete removes a record. Returns NOT_FOUND if there is no such record.
// Index entries are the caller's responsibility.
func (t *Tx) Delete(kind entity.Kind, key string) error {
	r, err := regionFor(kind)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(t.ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = ?", r.records), key,
	)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, key, err)
	}
	return requireOneRow(res, kind, key)
}

func requireOneRow(res sql.Result, kind entity.Kind, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: rows affected: %w", kind, key, err)
	}
	if n == 0 {
		return entity.NotFound(kind, key)
	}
	return nil
}

// Bucket returns the keys indexed under principal, or nil if the principal
// has no bucket.
func (t *Tx) Bucket(idx Index, principal string) ([]string, error) {
	if err := idx.valid(); err != nil {
		return nil, err
	}
	var data []byte
	err := t.tx.QueryRowContext(t.ctx,
		fmt.Sprintf("SELECT ids FROM %s WHERE principal = ?", idx.table), principal,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s bucket: %w", idx, err)
	}
	keys, err := unmarshalBucket(data)
	if err != nil {
		return nil, fmt.Errorf("read %s bucket: %w", idx, err)
	}
	return keys, nil
}

// Principals returns the number of distinct principals holding a bucket.
func (t *Tx) Principals(idx Index) (int, error) {
	if err := idx.valid(); err != nil {
		return 0, err
	}
	var n int
	err := t.tx.QueryRowContext(t.ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", idx.table),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", idx, err)
	}
	return n, nil
}

// AddToBucket appends key to principal's bucket if absent, creating a
// singleton bucket when the principal has none. Capacity checks must
// already have passed.
func (t *Tx) AddToBucket(idx Index, principal, key string) error {
	keys, err := t.Bucket(idx, principal)
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	return t.writeBucket(idx, principal, append(keys, key))
}

// RemoveFromBucket drops key from principal's bucket. A bucket left empty
// is deleted. Removing an absent key is a no-op.
func (t *Tx) RemoveFromBucket(idx Index, principal, key string) error {
	keys, err := t.Bucket(idx, principal)
	if err != nil {
		return err
	}
	i := slices.Index(keys, key)
	if i < 0 {
		return nil
	}
	keys = slices.Delete(keys, i, i+1)

	if len(keys) == 0 {
		_, err := t.tx.ExecContext(t.ctx,
			fmt.Sprintf("DELETE FROM %s WHERE principal = ?", idx.table), principal,
		)
		if err != nil {
			return fmt.Errorf("drop %s bucket: %w", idx, err)
		}
		return nil
	}
	return t.writeBucket(idx, principal, keys)
}

func (t *Tx) writeBucket(idx Index, principal string, keys []string) error {
	data, err := marshalBucket(keys)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx,
		fmt.Sprintf(`INSERT INTO %s (principal, ids) VALUES (?, ?)
			ON CONFLICT(principal) DO UPDATE SET ids = excluded.ids`, idx.table),
		principal, data,
	)
	if err != nil {
		return fmt.Errorf("write %s bucket: %w", idx, err)
	}
	return nil
}

// Resolve loads every record indexed under principal, in bucket order.
// An entry that names a missing record is an index bug: Resolve fails with
// a fatal INVALID_STATE rather than skipping it.
func Resolve[T any](t *Tx, idx Index, principal string) ([]T, error) {
	keys, err := t.Bucket(idx, principal)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(keys))
	for _, key := range keys {
		var v T
		found, err := t.Lookup(idx.kind, key, &v)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, entity.DanglingIndex(idx.kind, key)
		}
		out = append(out, v)
	}
	return out, nil
}
