package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/vault"
)

// NewMemoryCommand creates the memory command group.
func NewMemoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Manage passport memories",
	}

	cmd.AddCommand(
		newMemoryAddCommand(rootOpts),
		newMemoryListCommand(rootOpts),
		&cobra.Command{
			Use:           "delete <id>",
			Short:         "Delete a memory",
			Args:          cobra.ExactArgs(1),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
					id, err := entity.ParseID(args[0])
					if err != nil {
						return f.Fail("memory delete failed", err)
					}
					if err := v.DeleteMemory(ctx, caller, id); err != nil {
						return f.Fail("memory delete failed", err)
					}
					return f.Success(fmt.Sprintf("Deleted memory %s", id))
				})
			},
		},
	)

	return cmd
}

func newMemoryAddCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		kind       string
		importance int
		file       string
	)

	cmd := &cobra.Command{
		Use:           "add <passport-id> [content]",
		Short:         "Attach encrypted content to a passport",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
				passportID, err := entity.ParseID(args[0])
				if err != nil {
					return f.Fail("memory add failed", err)
				}
				content, err := readPayload(cmd, args[1:], file)
				if err != nil {
					return f.Fail("memory add failed", err)
				}
				id, err := v.AddMemory(ctx, caller, passportID, kind, content, importance)
				if err != nil {
					return f.Fail("memory add failed", err)
				}
				return f.Result(map[string]entity.ID{"id": id}, func(w io.Writer) {
					fmt.Fprintf(w, "Added memory %s\n", id)
				})
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "conversation", "memory kind")
	cmd.Flags().IntVar(&importance, "importance", 50, "importance score, clamped to 0..100")
	cmd.Flags().StringVarP(&file, "file", "f", "", `read the content from a file ("-" for stdin)`)

	return cmd
}

func newMemoryListCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:           "list <passport-id>",
		Short:         "List a passport's memories",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
				passportID, err := entity.ParseID(args[0])
				if err != nil {
					return f.Fail("memory list failed", err)
				}
				memories, err := v.ListMemories(ctx, caller, passportID, kind)
				if err != nil {
					return f.Fail("memory list failed", err)
				}
				return f.Result(memories, func(w io.Writer) {
					if len(memories) == 0 {
						fmt.Fprintln(w, "No memories.")
						return
					}
					for _, m := range memories {
						fmt.Fprintf(w, "%s\tkind=%s\timportance=%d\t%s\n",
							m.ID, m.Kind, m.Importance, m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
					}
				})
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "only memories of this kind")

	return cmd
}
