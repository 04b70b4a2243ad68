package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/jobs"
	"github.com/roach88/enclave/internal/synth"
	"github.com/roach88/enclave/internal/vault"
)

// NewJobCommand creates the job command group.
func NewJobCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage synthetic-data jobs",
	}

	cmd.AddCommand(
		newJobCreateCommand(rootOpts),
		&cobra.Command{
			Use:           "show <job-id>",
			Short:         "Show one of your jobs",
			Args:          cobra.ExactArgs(1),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
					job, err := v.GetJob(ctx, caller, args[0])
					if err != nil {
						return f.Fail("job show failed", err)
					}
					return f.Result(job, func(w io.Writer) { writeJob(w, job) })
				})
			},
		},
		&cobra.Command{
			Use:           "list",
			Short:         "List your jobs",
			Args:          cobra.NoArgs,
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
					list, err := v.ListMyJobs(ctx, caller)
					if err != nil {
						return f.Fail("job list failed", err)
					}
					return f.Result(list, func(w io.Writer) {
						if len(list) == 0 {
							fmt.Fprintln(w, "No jobs.")
							return
						}
						for i := range list {
							writeJob(w, &list[i])
						}
					})
				})
			},
		},
		newJobAdvanceCommand(rootOpts),
		newJobRunCommand(rootOpts),
	)

	return cmd
}

func newJobCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dataset  string
		settings entity.JobSettings
	)

	cmd := &cobra.Command{
		Use:           "create",
		Short:         "Create a synthetic-data job over a dataset note",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
				id, err := entity.ParseID(dataset)
				if err != nil {
					return f.Fail("job create failed", err)
				}
				settings.DatasetID = id
				key, err := v.CreateJob(ctx, caller, settings)
				if err != nil {
					return f.Fail("job create failed", err)
				}
				return f.Result(map[string]string{"job_id": key}, func(w io.Writer) {
					fmt.Fprintf(w, "Created job %s\n", key)
				})
			})
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "dataset note ID (required)")
	_ = cmd.MarkFlagRequired("dataset")
	cmd.Flags().IntVar(&settings.NumRecords, "records", 100, "number of records to generate")
	cmd.Flags().StringVar(&settings.PrivacyLevel, "privacy", "medium", "privacy level (low|medium|high)")
	cmd.Flags().StringVar(&settings.CustomPrompt, "prompt", "", "custom generation prompt")
	cmd.Flags().BoolVar(&settings.PreserveCorrelations, "preserve-correlations", false, "preserve column correlations")
	cmd.Flags().BoolVar(&settings.HIPAACompliant, "hipaa", false, "HIPAA-compliant generation")
	cmd.Flags().BoolVar(&settings.MedicalMode, "medical", false, "medical-data mode")

	return cmd
}

func newJobAdvanceCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		u      jobs.Update
		status string
		file   string
	)

	cmd := &cobra.Command{
		Use:   "advance <job-id> [result-payload]",
		Short: "Record job progress",
		Long: `Record progress on one of your jobs. Reaching progress 100 or status
completed creates the result note from the result payload.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
				result, err := readPayload(cmd, args[1:], file)
				if err != nil {
					return f.Fail("job advance failed", err)
				}
				u.Status = entity.JobStatus(status)
				job, err := v.AdvanceJob(ctx, caller, args[0], u, result)
				if err != nil {
					return f.Fail("job advance failed", err)
				}
				return f.Result(job, func(w io.Writer) { writeJob(w, job) })
			})
		},
	}

	cmd.Flags().IntVar(&u.Progress, "progress", 0, "progress percentage")
	cmd.Flags().StringVar(&status, "status", "", "new status (processing|completed|failed)")
	cmd.Flags().StringVar(&u.Error, "error", "", "failure message (with --status failed)")
	cmd.Flags().StringVarP(&file, "file", "f", "", `read the result payload from a file ("-" for stdin)`)

	return cmd
}

func newJobRunCommand(rootOpts *RootOptions) *cobra.Command {
	var generator, input string

	cmd := &cobra.Command{
		Use:   "run <job-id>",
		Short: "Drive a job to completion with an external generator",
		Long: `Run an external generator over a decrypted dataset and record the
outcome on the job. The dataset is read from --input ("-" for stdin) and
piped to the generator; its stdout becomes the result note. The settings
are passed as JSON in ENCLAVE_JOB_SETTINGS.

Example:
  enclave job run job_1700000000000000000_1a2b3c4d --generator "./gen --seed 7" --input data.csv`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
				gen, err := synth.ParseCommand(generator)
				if err != nil {
					return f.Fail("job run failed", entity.InvalidArgument(err.Error()))
				}
				payload, err := readPayload(cmd, nil, input)
				if err != nil {
					return f.Fail("job run failed", err)
				}
				job, err := synth.NewDriver(v, gen, newLogger(rootOpts, cmd)).Run(ctx, caller, args[0], payload)
				if err != nil {
					return f.Fail("job run failed", err)
				}
				return f.Result(job, func(w io.Writer) { writeJob(w, job) })
			})
		},
	}

	cmd.Flags().StringVar(&generator, "generator", "", "generator command line (required)")
	_ = cmd.MarkFlagRequired("generator")
	cmd.Flags().StringVar(&input, "input", "-", `decrypted dataset file ("-" for stdin)`)

	return cmd
}

func writeJob(w io.Writer, j *entity.Job) {
	fmt.Fprintf(w, "%s\t%s\t%d%%\tdataset=%s", j.ID, j.Status, j.Progress, j.Settings.DatasetID)
	if j.ResultNoteID != nil {
		fmt.Fprintf(w, "\tresult=%s", j.ResultNoteID)
	}
	if j.Error != "" {
		fmt.Fprintf(w, "\terror=%q", j.Error)
	}
	fmt.Fprintln(w)
}
