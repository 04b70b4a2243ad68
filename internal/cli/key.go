package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
	"github.com/spf13/cobra"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/keyderiv"
	"github.com/roach88/enclave/internal/vault"
)

// NewKeyCommand creates the key command group.
func NewKeyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Note key derivation",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:           "verification",
			Short:         "Print the verification key of the note key context",
			Args:          cobra.NoArgs,
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
					key, err := v.VerificationKey(ctx, caller)
					if err != nil {
						return f.Fail("verification key failed", err)
					}
					return f.Result(map[string]string{"verification_key": key}, func(w io.Writer) {
						fmt.Fprintln(w, key)
					})
				})
			},
		},
		&cobra.Command{
			Use:           "transport",
			Short:         "Generate a transport identity for key derivation",
			Args:          cobra.NoArgs,
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				f := newFormatter(rootOpts, cmd)
				id, err := age.GenerateX25519Identity()
				if err != nil {
					return f.Fail("generate transport identity failed", err)
				}
				out := map[string]string{
					"identity":      id.String(),
					"transport_key": id.Recipient().String(),
				}
				return f.Result(out, func(w io.Writer) {
					fmt.Fprintf(w, "# transport key: %s\n%s\n", out["transport_key"], out["identity"])
				})
			},
		},
		newKeyDeriveCommand(rootOpts),
	)

	return cmd
}

func newKeyDeriveCommand(rootOpts *RootOptions) *cobra.Command {
	var transportKey, identityFile string

	cmd := &cobra.Command{
		Use:   "derive <note-id>",
		Short: "Derive a note's key, encrypted to a transport key",
		Long: `Derive the symmetric key of a note you can read.

With --transport-key the encrypted reply is printed as hex. With
--identity the transport key is taken from the identity file (as written
by "enclave key transport"), and the reply is decrypted and verified
locally; the plain note key is printed as hex.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error {
				id, err := entity.ParseID(args[0])
				if err != nil {
					return f.Fail("key derive failed", err)
				}

				var identity *age.X25519Identity
				switch {
				case identityFile != "" && transportKey != "":
					return f.Fail("key derive failed", entity.InvalidArgument("use --transport-key or --identity, not both"))
				case identityFile != "":
					identity, err = readIdentity(identityFile)
					if err != nil {
						return f.Fail("key derive failed", err)
					}
					transportKey = identity.Recipient().String()
				case transportKey == "":
					return f.Fail("key derive failed", entity.InvalidArgument("--transport-key or --identity is required"))
				}

				encrypted, err := v.DeriveNoteKey(ctx, caller, id, []byte(transportKey))
				if err != nil {
					return f.Fail("key derive failed", err)
				}
				if identity == nil {
					return f.Result(map[string]string{"encrypted_key": encrypted}, func(w io.Writer) {
						fmt.Fprintln(w, encrypted)
					})
				}

				key, err := openDerivedKey(ctx, v, caller, id, identity, encrypted)
				if err != nil {
					return f.Fail("key derive failed", err)
				}
				return f.Result(map[string]string{"key": key}, func(w io.Writer) {
					fmt.Fprintln(w, key)
				})
			})
		},
	}

	cmd.Flags().StringVar(&transportKey, "transport-key", "", "age X25519 recipient the key is encrypted to")
	cmd.Flags().StringVar(&identityFile, "identity", "", "age identity file; decrypts and verifies the reply")

	return cmd
}

func readIdentity(path string) (*age.X25519Identity, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identity: %w", err)
	}
	defer fh.Close()

	ids, err := age.ParseIdentities(fh)
	if err != nil {
		return nil, fmt.Errorf("parse identity: %w", err)
	}
	for _, id := range ids {
		if x, ok := id.(*age.X25519Identity); ok {
			return x, nil
		}
	}
	return nil, fmt.Errorf("%s holds no X25519 identity", path)
}

// openDerivedKey decrypts and verifies a derivation reply. The note is
// looked up again for its owner, which is part of the signed input.
func openDerivedKey(ctx context.Context, v *vault.Vault, caller string, id entity.ID, identity age.Identity, encrypted string) (string, error) {
	ciphertext, err := hex.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("decode reply: %w", err)
	}
	vkHex, err := v.VerificationKey(ctx, caller)
	if err != nil {
		return "", err
	}
	vk, err := hex.DecodeString(vkHex)
	if err != nil {
		return "", fmt.Errorf("decode verification key: %w", err)
	}

	notes, err := v.GetNotes(ctx, caller)
	if err != nil {
		return "", err
	}
	for _, n := range notes {
		if n.ID.Compare(id) != 0 {
			continue
		}
		key, err := keyderiv.Open(identity, ciphertext, vk, keyderiv.Input(n.ID, n.Owner))
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(key), nil
	}
	return "", entity.NotFound(entity.KindNote, id.String())
}
