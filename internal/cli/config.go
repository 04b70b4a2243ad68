package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/enclave/internal/config"
	"github.com/roach88/enclave/internal/policy"
)

// ConfigView is the resolved configuration as shown to operators. The
// master key is never printed.
type ConfigView struct {
	DBPath             string        `json:"db_path"`
	ListenAddr         string        `json:"listen_addr"`
	Limits             policy.Limits `json:"limits"`
	KDF                string        `json:"kdf"`
	DefaultMasterKey   bool          `json:"default_master_key,omitempty"`
	DeriveRPM          int           `json:"derive_rpm"`
	DeriveRPMPerCaller int           `json:"derive_rpm_per_caller"`
	ConfigFile         string        `json:"config_file,omitempty"`
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "show",
		Short:         "Print the resolved configuration",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			v := rootOpts.viper()
			cfg, err := config.Load(v)
			if err != nil {
				_ = f.Error(ErrCodeInternal, err.Error(), nil)
				return WrapExitError(ExitCommandError, "failed to load configuration", err)
			}

			view := ConfigView{
				DBPath:             cfg.DBPath,
				ListenAddr:         cfg.ListenAddr,
				Limits:             cfg.Limits,
				KDF:                "local",
				DefaultMasterKey:   cfg.UsingDefaultMasterKey(),
				DeriveRPM:          cfg.DeriveRPM,
				DeriveRPMPerCaller: cfg.DeriveRPMPerCaller,
				ConfigFile:         v.ConfigFileUsed(),
			}
			if cfg.KDFURL != "" {
				view.KDF = cfg.KDFURL
			}

			return f.Result(view, func(w io.Writer) {
				fmt.Fprintf(w, "db_path:               %s\n", view.DBPath)
				fmt.Fprintf(w, "listen_addr:           %s\n", view.ListenAddr)
				fmt.Fprintf(w, "max_owners:            %d\n", view.Limits.MaxOwners)
				fmt.Fprintf(w, "max_items_per_owner:   %d\n", view.Limits.MaxItemsPerOwner)
				fmt.Fprintf(w, "max_payload_chars:     %d\n", view.Limits.MaxPayloadChars)
				fmt.Fprintf(w, "max_grantees:          %d\n", view.Limits.MaxGrantees)
				fmt.Fprintf(w, "kdf:                   %s\n", view.KDF)
				if view.DefaultMasterKey {
					fmt.Fprintln(w, "                       (master key derived from db_path; development only)")
				}
				fmt.Fprintf(w, "derive_rpm:            %d\n", view.DeriveRPM)
				fmt.Fprintf(w, "derive_rpm_per_caller: %d\n", view.DeriveRPMPerCaller)
				if view.ConfigFile != "" {
					fmt.Fprintf(w, "config file:           %s\n", view.ConfigFile)
				}
			})
		},
	})

	return cmd
}
