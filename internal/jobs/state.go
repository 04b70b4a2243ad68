package jobs

import (
	"fmt"
	"time"

	"github.com/roach88/enclave/internal/entity"
)

// MaxProgress is the progress of a completed job.
const MaxProgress = 100

// Update is a requested advance. Status may be empty, in which case the
// new status follows from Progress alone.
type Update struct {
	Progress int              `json:"progress"`
	Status   entity.JobStatus `json:"status,omitempty"`
	Error    string           `json:"error_message,omitempty"`
}

// Advance applies u to job at time now and returns the resulting job.
// The input job is not modified.
//
// Fails with INVALID_STATE for a terminal job, a progress decrease, or a
// move back to pending, and with INVALID_ARGUMENT for an unknown status.
// Progress 100 always completes the job, even when failed was requested.
// A returned job with status completed has just completed; CompletedAt is
// set exactly then.
func Advance(job entity.Job, u Update, now time.Time) (entity.Job, error) {
	if job.Status.Terminal() {
		return job, entity.InvalidState(entity.KindJob, job.ID,
			fmt.Sprintf("job is %s", job.Status))
	}

	switch u.Status {
	case "", entity.JobPending, entity.JobProcessing, entity.JobCompleted, entity.JobFailed:
	default:
		return job, entity.InvalidArgument(fmt.Sprintf("unknown job status %q", u.Status))
	}

	progress := clampProgress(u.Progress)
	if progress < job.Progress {
		return job, entity.InvalidState(entity.KindJob, job.ID,
			fmt.Sprintf("progress cannot decrease from %d to %d", job.Progress, progress))
	}

	next := job
	next.Progress = progress
	next.UpdatedAt = now

	switch {
	case progress == MaxProgress || u.Status == entity.JobCompleted:
		// Full progress completes the job whatever status was asked for.
		next.Status = entity.JobCompleted
		next.Progress = MaxProgress
		next.Error = ""
		completed := now
		next.CompletedAt = &completed
	case u.Status == entity.JobFailed:
		next.Status = entity.JobFailed
		next.Error = u.Error
	case u.Status == entity.JobPending:
		if progress > 0 || job.Status != entity.JobPending {
			return job, entity.InvalidState(entity.KindJob, job.ID, "job cannot return to pending")
		}
	case progress > 0 || u.Status == entity.JobProcessing:
		next.Status = entity.JobProcessing
	}
	return next, nil
}

// New returns a pending job with zero progress.
func New(id, owner string, settings entity.JobSettings, now time.Time) entity.Job {
	return entity.Job{
		ID:        id,
		Owner:     owner,
		Settings:  settings,
		Status:    entity.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func clampProgress(p int) uint8 {
	switch {
	case p < 0:
		return 0
	case p > MaxProgress:
		return MaxProgress
	}
	return uint8(p)
}
