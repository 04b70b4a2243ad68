package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/vault"
)

// NewNoteCommand creates the note command group.
func NewNoteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Manage encrypted notes",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:           "create",
			Short:         "Create an empty note",
			Args:          cobra.NoArgs,
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
					id, err := v.CreateNote(ctx, caller)
					if err != nil {
						return f.Fail("note create failed", err)
					}
					return f.Result(map[string]entity.ID{"id": id}, func(w io.Writer) {
						fmt.Fprintf(w, "Created note %s\n", id)
					})
				})
			},
		},
		&cobra.Command{
			Use:           "list",
			Short:         "List owned notes, then notes shared with you",
			Args:          cobra.NoArgs,
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
					notes, err := v.GetNotes(ctx, caller)
					if err != nil {
						return f.Fail("note list failed", err)
					}
					return f.Result(notes, func(w io.Writer) {
						if len(notes) == 0 {
							fmt.Fprintln(w, "No notes.")
							return
						}
						for _, n := range notes {
							shared := "-"
							if len(n.Grantees) > 0 {
								shared = strings.Join(n.Grantees, ",")
							}
							fmt.Fprintf(w, "%s\towner=%s\tshared=%s\t%d chars\n",
								n.ID, n.Owner, shared, len([]rune(n.EncryptedText)))
						}
					})
				})
			},
		},
		newNoteUpdateCommand(rootOpts),
		&cobra.Command{
			Use:           "delete <id>",
			Short:         "Delete a note you own",
			Args:          cobra.ExactArgs(1),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
					id, err := entity.ParseID(args[0])
					if err != nil {
						return f.Fail("note delete failed", err)
					}
					if err := v.DeleteNote(ctx, caller, id); err != nil {
						return f.Fail("note delete failed", err)
					}
					return f.Success(fmt.Sprintf("Deleted note %s", id))
				})
			},
		},
		newNoteGranteeCommand(rootOpts, "share", "Share a note with a principal", (*vault.Vault).AddGrantee),
		newNoteGranteeCommand(rootOpts, "unshare", "Stop sharing a note with a principal", (*vault.Vault).RemoveGrantee),
	)

	return cmd
}

func newNoteUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "update <id> [payload]",
		Short: "Replace a note's encrypted payload",
		Long: `Replace a note's encrypted payload. The payload is taken from the
argument, from --file, or from stdin when --file is "-".`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
				id, err := entity.ParseID(args[0])
				if err != nil {
					return f.Fail("note update failed", err)
				}
				payload, err := readPayload(cmd, args[1:], file)
				if err != nil {
					return f.Fail("note update failed", err)
				}
				if err := v.UpdateNote(ctx, caller, id, payload); err != nil {
					return f.Fail("note update failed", err)
				}
				return f.Success(fmt.Sprintf("Updated note %s", id))
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", `read the payload from a file ("-" for stdin)`)

	return cmd
}

func newNoteGranteeCommand(rootOpts *RootOptions, use, short string,
	op func(*vault.Vault, context.Context, string, entity.ID, string) error) *cobra.Command {
	return &cobra.Command{
		Use:           use + " <id> <principal>",
		Short:         short,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
				id, err := entity.ParseID(args[0])
				if err != nil {
					return f.Fail("note "+use+" failed", err)
				}
				if err := op(v, ctx, caller, id, args[1]); err != nil {
					return f.Fail("note "+use+" failed", err)
				}
				return f.Success(fmt.Sprintf("Note %s: %s %s", id, use, args[1]))
			})
		},
	}
}

// readPayload returns the single positional payload, or the contents of
// file ("-" reads stdin). Exactly one source must be given.
func readPayload(cmd *cobra.Command, args []string, file string) (string, error) {
	switch {
	case len(args) > 0 && file != "":
		return "", entity.InvalidArgument("give the payload as an argument or with --file, not both")
	case len(args) > 0:
		return args[0], nil
	case file == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read payload: %w", err)
		}
		return string(data), nil
	}
	return "", nil
}
