// Package synth drives a synthetic-data job through its lifecycle using a
// pluggable generator. The generator only sees a decrypted payload and the
// job settings; it never touches the store.
package synth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/jobs"
)

// Generator produces a synthetic payload from a source payload.
type Generator interface {
	Generate(ctx context.Context, payload string, settings entity.JobSettings) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, payload string, settings entity.JobSettings) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, payload string, settings entity.JobSettings) (string, error) {
	return f(ctx, payload, settings)
}

// JobStore is the part of the vault the driver needs.
type JobStore interface {
	GetJob(ctx context.Context, caller, id string) (*entity.Job, error)
	AdvanceJob(ctx context.Context, caller, id string, u jobs.Update, resultPayload string) (*entity.Job, error)
}

// Driver runs jobs on behalf of their owner.
type Driver struct {
	jobs JobStore
	gen  Generator
	log  *slog.Logger
}

// NewDriver returns a Driver. A nil logger uses slog.Default.
func NewDriver(js JobStore, gen Generator, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{jobs: js, gen: gen, log: logger}
}

// Run moves job id to processing, generates from payload, and completes
// the job with the generated payload as its result. A generator error
// fails the job with the error message and is also returned.
//
// payload is the already decrypted dataset; decryption happens on the
// caller's side of the key boundary.
func (d *Driver) Run(ctx context.Context, caller, id, payload string) (*entity.Job, error) {
	job, err := d.jobs.GetJob(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	start := int(job.Progress)
	if start < 1 {
		start = 1
	}
	if _, err := d.jobs.AdvanceJob(ctx, caller, id,
		jobs.Update{Progress: start, Status: entity.JobProcessing}, ""); err != nil {
		return nil, err
	}
	d.log.Info("synthetic job started", "job", id, "records", job.Settings.NumRecords)

	out, genErr := d.gen.Generate(ctx, payload, job.Settings)
	if genErr != nil {
		d.log.Warn("synthetic job failed", "job", id, "error", genErr)
		if _, err := d.jobs.AdvanceJob(ctx, caller, id,
			jobs.Update{Progress: start, Status: entity.JobFailed, Error: genErr.Error()}, ""); err != nil {
			return nil, fmt.Errorf("record job failure: %w (generator: %v)", err, genErr)
		}
		return nil, fmt.Errorf("generate: %w", genErr)
	}

	done, err := d.jobs.AdvanceJob(ctx, caller, id, jobs.Update{Progress: jobs.MaxProgress}, out)
	if err != nil {
		return nil, err
	}
	d.log.Info("synthetic job completed", "job", id, "result", done.ResultNoteID)
	return done, nil
}
