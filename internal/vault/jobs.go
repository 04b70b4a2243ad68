package vault

import (
	"context"
	"time"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/jobs"
	"github.com/roach88/enclave/internal/policy"
	"github.com/roach88/enclave/internal/store"
)

func jobOwner(j *entity.Job) string { return j.Owner }

// CreateJob records a pending synthetic-data job over a note caller can
// read. The job key is derived from the creation time and caller.
func (v *Vault) CreateJob(ctx context.Context, caller string, settings entity.JobSettings) (string, error) {
	var key string
	err := v.update(ctx, "job.create", caller, func(tx *store.Tx) error {
		if err := v.validator.Validate(settings); err != nil {
			return err
		}
		if _, err := loadNote(tx, settings.DatasetID, caller, policy.ActionRead); err != nil {
			return err
		}
		if err := v.checkNewItem(tx, entity.KindJob, caller); err != nil {
			return err
		}

		now := v.clock.Now()
		var err error
		key, err = freeJobKey(tx, caller, now)
		if err != nil {
			return err
		}
		job := jobs.New(key, caller, settings, now)
		if err := tx.Insert(entity.KindJob, key, caller, &job); err != nil {
			return err
		}
		return tx.AddToBucket(store.OwnerIndex(entity.KindJob), caller, key)
	})
	return key, err
}

// freeJobKey bumps the timestamp a nanosecond at a time until the key is
// unused.
func freeJobKey(tx *store.Tx, owner string, at time.Time) (string, error) {
	for {
		key := jobs.Key(owner, at)
		taken, err := tx.Exists(entity.KindJob, key)
		if err != nil {
			return "", err
		}
		if !taken {
			return key, nil
		}
		at = at.Add(time.Nanosecond)
	}
}

// GetJob returns one of caller's jobs.
func (v *Vault) GetJob(ctx context.Context, caller, id string) (*entity.Job, error) {
	var out *entity.Job
	err := v.view(ctx, "job.get", caller, func(tx *store.Tx) error {
		var err error
		out, err = loadOwned(tx, entity.KindJob, id, caller, jobOwner)
		return err
	})
	return out, err
}

// ListMyJobs returns caller's jobs in creation order.
func (v *Vault) ListMyJobs(ctx context.Context, caller string) ([]entity.Job, error) {
	var out []entity.Job
	err := v.view(ctx, "job.list", caller, func(tx *store.Tx) error {
		var err error
		out, err = store.Resolve[entity.Job](tx, store.OwnerIndex(entity.KindJob), caller)
		return err
	})
	return out, err
}

// AdvanceJob applies u to one of caller's jobs. When the job completes,
// a result note owned by the job owner is created with resultPayload in
// the same transaction and its ID is recorded on the job.
func (v *Vault) AdvanceJob(ctx context.Context, caller, id string, u jobs.Update, resultPayload string) (*entity.Job, error) {
	var out *entity.Job
	err := v.update(ctx, "job.advance", caller, func(tx *store.Tx) error {
		job, err := loadOwned(tx, entity.KindJob, id, caller, jobOwner)
		if err != nil {
			return err
		}
		next, err := jobs.Advance(*job, u, v.clock.Now())
		if err != nil {
			return err
		}
		if next.Status == entity.JobCompleted {
			noteID, err := v.createNote(tx, next.Owner, resultPayload)
			if err != nil {
				return err
			}
			next.ResultNoteID = &noteID
		}
		out = &next
		return tx.Replace(entity.KindJob, id, &next)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
