package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/vault"
)

// tokenCreated is the output of token create. The secret is shown once.
type tokenCreated struct {
	Token  *entity.Token `json:"token"`
	Secret string        `json:"secret"`
}

// NewTokenCommand creates the token command group.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage passport API tokens",
	}

	cmd.AddCommand(
		newTokenCreateCommand(rootOpts),
		&cobra.Command{
			Use:           "list",
			Short:         "List your tokens",
			Args:          cobra.NoArgs,
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
					tokens, err := v.ListMyTokens(ctx, caller)
					if err != nil {
						return f.Fail("token list failed", err)
					}
					return f.Result(tokens, func(w io.Writer) {
						if len(tokens) == 0 {
							fmt.Fprintln(w, "No tokens.")
							return
						}
						for _, t := range tokens {
							state := "active"
							if !t.Active {
								state = "revoked"
							}
							fmt.Fprintf(w, "%s\t%s\tpassport=%s\t%s\tpermissions=%s\n",
								t.ID, t.Name, t.PassportID, state, strings.Join(t.Permissions, ","))
						}
					})
				})
			},
		},
		&cobra.Command{
			Use:           "revoke <id>",
			Short:         "Revoke a token",
			Args:          cobra.ExactArgs(1),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
					id, err := entity.ParseID(args[0])
					if err != nil {
						return f.Fail("token revoke failed", err)
					}
					if err := v.RevokeToken(ctx, caller, id); err != nil {
						return f.Fail("token revoke failed", err)
					}
					return f.Success(fmt.Sprintf("Revoked token %s", id))
				})
			},
		},
		newTokenVerifyCommand(rootOpts),
	)

	return cmd
}

func newTokenCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		name        string
		permissions []string
		ttl         time.Duration
	)

	cmd := &cobra.Command{
		Use:           "create <passport-id>",
		Short:         "Issue a token for a passport",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
				passportID, err := entity.ParseID(args[0])
				if err != nil {
					return f.Fail("token create failed", err)
				}
				var expiresAt *time.Time
				if ttl > 0 {
					at := time.Now().UTC().Add(ttl)
					expiresAt = &at
				}
				tok, secret, err := v.CreateToken(ctx, caller, passportID, name, permissions, expiresAt)
				if err != nil {
					return f.Fail("token create failed", err)
				}
				return f.Result(tokenCreated{Token: tok, Secret: secret}, func(w io.Writer) {
					fmt.Fprintf(w, "Created token %s\n", tok.ID)
					fmt.Fprintf(w, "Secret (shown once): %s\n", secret)
				})
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "default", "token name")
	cmd.Flags().StringSliceVar(&permissions, "permission", []string{entity.WildcardPermission}, "granted permission (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "lifetime, e.g. 720h (0 never expires)")

	return cmd
}

func newTokenVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	var permission string

	cmd := &cobra.Command{
		Use:           "verify <id> <secret>",
		Short:         "Check a token secret and permission",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
				id, err := entity.ParseID(args[0])
				if err != nil {
					return f.Fail("token verify failed", err)
				}
				tok, err := v.VerifyToken(ctx, caller, id, args[1], permission)
				if err != nil {
					return f.Fail("token verify failed", err)
				}
				return f.Result(tok, func(w io.Writer) {
					fmt.Fprintf(w, "Token %s valid for passport %s\n", tok.ID, tok.PassportID)
				})
			})
		},
	}

	cmd.Flags().StringVar(&permission, "permission", "", "permission the token must grant")

	return cmd
}
