// Package jobs holds the synthetic-job lifecycle: the transition rules
// applied on every advance, settings validation, and job key formation.
//
// A job moves pending → processing → completed|failed. The last two are
// terminal. Progress never decreases and is clamped to 100; reaching 100
// completes the job.
package jobs
