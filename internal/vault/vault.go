package vault

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/jobs"
	"github.com/roach88/enclave/internal/keyderiv"
	"github.com/roach88/enclave/internal/policy"
	"github.com/roach88/enclave/internal/store"
)

// Clock supplies wall-clock timestamps for created/updated fields.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// OpIDGenerator produces the identifiers that tie together the log lines
// of one key derivation across its suspension point.
type OpIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 operation IDs.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Vault owns the store context and enforces policy on every operation.
type Vault struct {
	mu sync.Mutex

	store     *store.Store
	kdf       keyderiv.Service
	limiter   *keyderiv.Limiter
	validator *jobs.Validator
	limits    policy.Limits
	clock     Clock
	ops       OpIDGenerator
	log       *slog.Logger
}

// Option configures a Vault.
type Option func(*Vault)

// WithLimits overrides the default capacity ceilings.
func WithLimits(l policy.Limits) Option {
	return func(v *Vault) { v.limits = l }
}

// WithLimiter throttles key derivations.
func WithLimiter(l *keyderiv.Limiter) Option {
	return func(v *Vault) { v.limiter = l }
}

// WithClock overrides the wall clock (tests).
func WithClock(c Clock) Option {
	return func(v *Vault) { v.clock = c }
}

// WithOpIDs overrides the derivation operation ID generator (tests).
func WithOpIDs(g OpIDGenerator) Option {
	return func(v *Vault) { v.ops = g }
}

// WithLogger sets the logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) { v.log = l }
}

// New returns a Vault over s that derives keys through kdf.
func New(s *store.Store, kdf keyderiv.Service, opts ...Option) (*Vault, error) {
	if s == nil || kdf == nil {
		return nil, fmt.Errorf("vault: store and key derivation service are required")
	}
	validator, err := jobs.NewValidator()
	if err != nil {
		return nil, err
	}
	v := &Vault{
		store:     s,
		kdf:       kdf,
		validator: validator,
		limits:    policy.DefaultLimits(),
		clock:     systemClock{},
		ops:       UUIDv7Generator{},
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(v)
	}
	if err := v.limits.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// WhoAmI echoes the caller's principal. It is the only operation open to
// the anonymous principal.
func (v *Vault) WhoAmI(caller string) string {
	return caller
}

// Verify checks index symmetry over the whole store.
func (v *Vault) Verify(ctx context.Context) ([]store.Violation, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.store.Verify(ctx)
}

// update runs fn as one locked, all-or-nothing mutation on behalf of caller.
func (v *Vault) update(ctx context.Context, op, caller string, fn func(*store.Tx) error) error {
	if err := entity.ValidatePrincipal(caller); err != nil {
		return v.finish(op, caller, err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.finish(op, caller, v.store.Update(ctx, fn))
}

// view runs fn as one locked read on behalf of caller.
func (v *Vault) view(ctx context.Context, op, caller string, fn func(*store.Tx) error) error {
	if err := entity.ValidatePrincipal(caller); err != nil {
		return v.finish(op, caller, err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	err := v.store.View(ctx, fn)
	if err == nil {
		v.log.Debug(op, "caller", caller)
		return nil
	}
	return v.finish(op, caller, err)
}

// finish logs the outcome of op. Successful mutations log at info,
// rejections at warn, fatal and infrastructure errors at error.
func (v *Vault) finish(op, caller string, err error, attrs ...any) error {
	attrs = append([]any{"op", op, "caller", caller}, attrs...)
	switch {
	case err == nil:
		v.log.Info("operation committed", attrs...)
	case entity.IsFatal(err):
		v.log.Error("fatal store condition", append(attrs, "error", err)...)
	case entity.CodeOf(err) != "":
		v.log.Warn("operation rejected", append(attrs, "code", entity.CodeOf(err), "error", err)...)
	default:
		v.log.Error("operation failed", append(attrs, "error", err)...)
	}
	return err
}

// checkNewItem runs the capacity guard for one more kind entity owned by
// owner.
func (v *Vault) checkNewItem(tx *store.Tx, kind entity.Kind, owner string) error {
	idx := store.OwnerIndex(kind)
	bucket, err := tx.Bucket(idx, owner)
	if err != nil {
		return err
	}
	owners, err := tx.Principals(idx)
	if err != nil {
		return err
	}
	return v.limits.CheckNewItem(kind, owners, len(bucket))
}

// create allocates an ID for an owned entity, inserts the record built by
// build and indexes it under owner. Capacity is checked first.
func (v *Vault) create(tx *store.Tx, kind entity.Kind, owner string, build func(entity.ID) any) (entity.ID, error) {
	if err := v.checkNewItem(tx, kind, owner); err != nil {
		return entity.ID{}, err
	}
	id, err := tx.NextID(kind)
	if err != nil {
		return entity.ID{}, err
	}
	key := id.String()
	if err := tx.Insert(kind, key, owner, build(id)); err != nil {
		return entity.ID{}, err
	}
	if err := tx.AddToBucket(store.OwnerIndex(kind), owner, key); err != nil {
		return entity.ID{}, err
	}
	return id, nil
}

// remove deletes an owned entity and its owner index entry.
func remove(tx *store.Tx, kind entity.Kind, owner, key string) error {
	if err := tx.RemoveFromBucket(store.OwnerIndex(kind), owner, key); err != nil {
		return err
	}
	return tx.Delete(kind, key)
}

// loadOwned reads an owner-only entity and checks the caller owns it.
func loadOwned[T any](tx *store.Tx, kind entity.Kind, key, caller string, owner func(*T) string) (*T, error) {
	var rec T
	if err := tx.Get(kind, key, &rec); err != nil {
		return nil, err
	}
	p := policy.ForOwner(owner(&rec))
	if err := policy.Authorize(p, caller, policy.ActionWrite, kind, key); err != nil {
		return nil, err
	}
	return &rec, nil
}
