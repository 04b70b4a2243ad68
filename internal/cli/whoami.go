package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/enclave/internal/vault"
)

// NewWhoAmICommand creates the whoami command.
func NewWhoAmICommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "whoami",
		Short:         "Print the principal commands act as",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(rootOpts, cmd, func(_ context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
				principal := v.WhoAmI(caller)
				return f.Result(map[string]string{"principal": principal}, func(w io.Writer) {
					fmt.Fprintln(w, principal)
				})
			})
		},
	}
}
