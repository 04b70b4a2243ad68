package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/vault"
)

// NewPassportCommand creates the passport command group.
func NewPassportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passport",
		Short: "Manage agent passports",
	}

	cmd.AddCommand(
		newPassportCreateCommand(rootOpts),
		&cobra.Command{
			Use:           "list",
			Short:         "List your passports",
			Args:          cobra.NoArgs,
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
					passports, err := v.ListMyPassports(ctx, caller)
					if err != nil {
						return f.Fail("passport list failed", err)
					}
					return f.Result(passports, func(w io.Writer) {
						if len(passports) == 0 {
							fmt.Fprintln(w, "No passports.")
							return
						}
						for _, p := range passports {
							writePassport(w, &p)
						}
					})
				})
			},
		},
		&cobra.Command{
			Use:           "show <id>",
			Short:         "Show one of your passports",
			Args:          cobra.ExactArgs(1),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
					id, err := entity.ParseID(args[0])
					if err != nil {
						return f.Fail("passport show failed", err)
					}
					p, err := v.GetPassport(ctx, caller, id)
					if err != nil {
						return f.Fail("passport show failed", err)
					}
					if p == nil {
						return f.Fail("passport show failed", entity.NotFound(entity.KindPassport, id.String()))
					}
					return f.Result(p, func(w io.Writer) { writePassport(w, p) })
				})
			},
		},
		&cobra.Command{
			Use:           "set-active <id> <true|false>",
			Short:         "Activate or deactivate a passport",
			Args:          cobra.ExactArgs(2),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
					id, err := entity.ParseID(args[0])
					if err != nil {
						return f.Fail("passport set-active failed", err)
					}
					active, err := strconv.ParseBool(args[1])
					if err != nil {
						return f.Fail("passport set-active failed", entity.InvalidArgument(fmt.Sprintf("invalid boolean %q", args[1])))
					}
					if err := v.SetPassportActive(ctx, caller, id, active); err != nil {
						return f.Fail("passport set-active failed", err)
					}
					return f.Success(fmt.Sprintf("Passport %s active=%t", id, active))
				})
			},
		},
		&cobra.Command{
			Use:           "delete <id>",
			Short:         "Delete a passport with its memories and tokens",
			Args:          cobra.ExactArgs(1),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
					id, err := entity.ParseID(args[0])
					if err != nil {
						return f.Fail("passport delete failed", err)
					}
					if err := v.DeletePassport(ctx, caller, id); err != nil {
						return f.Fail("passport delete failed", err)
					}
					return f.Success(fmt.Sprintf("Deleted passport %s", id))
				})
			},
		},
	)

	return cmd
}

func newPassportCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		agentType    string
		capabilities []string
		spec         string
	)

	cmd := &cobra.Command{
		Use:           "create <name>",
		Short:         "Register an agent passport",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
				id, err := v.CreatePassport(ctx, caller, args[0], agentType, capabilities, spec)
				if err != nil {
					return f.Fail("passport create failed", err)
				}
				return f.Result(map[string]entity.ID{"id": id}, func(w io.Writer) {
					fmt.Fprintf(w, "Created passport %s\n", id)
				})
			})
		},
	}

	cmd.Flags().StringVar(&agentType, "type", "assistant", "agent type")
	cmd.Flags().StringSliceVar(&capabilities, "capability", nil, "capability tag (repeatable)")
	cmd.Flags().StringVar(&spec, "spec", "", "encrypted specification payload")

	return cmd
}

func writePassport(w io.Writer, p *entity.Passport) {
	state := "active"
	if !p.Active {
		state = "inactive"
	}
	fmt.Fprintf(w, "%s\t%s\ttype=%s\t%s\tcapabilities=%s\n",
		p.ID, p.Name, p.AgentType, state, strings.Join(p.Capabilities, ","))
}
