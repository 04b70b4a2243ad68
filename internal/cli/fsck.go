package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/enclave/internal/store"
	"github.com/roach88/enclave/internal/vault"
)

// FsckResult is the output of the fsck command.
type FsckResult struct {
	Consistent bool              `json:"consistent"`
	Violations []store.Violation `json:"violations,omitempty"`
}

// NewFsckCommand creates the fsck command.
func NewFsckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fsck",
		Short: "Check owner and share index consistency",
		Long: `Check that every owner bucket lists exactly the items its principal
owns and every share bucket lists exactly the notes shared with it.

Exit codes:
  0 - Database consistent
  1 - Violations found
  2 - Database could not be opened or read`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, _ string) error {
				violations, err := v.Verify(ctx)
				if err != nil {
					return f.Fail("fsck failed", err)
				}
				result := FsckResult{Consistent: len(violations) == 0, Violations: violations}
				if err := f.Result(result, func(w io.Writer) {
					if result.Consistent {
						fmt.Fprintln(w, "Database consistent.")
						return
					}
					for _, viol := range violations {
						fmt.Fprintln(w, viol.String())
					}
					fmt.Fprintf(w, "%d violation(s)\n", len(violations))
				}); err != nil {
					return err
				}
				if !result.Consistent {
					return NewExitError(ExitFailure, fmt.Sprintf("%d index violation(s)", len(violations)))
				}
				return nil
			})
		},
	}
}
