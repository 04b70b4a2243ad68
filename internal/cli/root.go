package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/enclave/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "text" | "json" | "yaml"
	ConfigFile string

	// Config holds defaults, the config file, ENCLAVE_* env vars and the
	// flags bound onto it.
	Config *viper.Viper
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the enclave CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Config: config.New()}

	cmd := &cobra.Command{
		Use:   "enclave",
		Short: "enclave - owner-scoped encrypted vault",
		Long: `A vault for encrypted notes, agent passports, memories, access tokens
and synthetic-data jobs. Every item belongs to exactly one principal, and
note keys are derived per note by an external key derivation service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if err := config.ReadFile(opts.viper(), opts.ConfigFile); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				return WrapExitError(ExitCommandError, "failed to load configuration", err)
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (default ./enclave.yaml if present)")
	flags.String("db", config.DefaultDBPath, "path to SQLite database")
	flags.String("as", "", "principal to act as (admin commands)")
	_ = opts.Config.BindPFlag(config.KeyDBPath, flags.Lookup("db"))
	_ = opts.Config.BindPFlag(config.KeyPrincipal, flags.Lookup("as"))

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewWhoAmICommand(opts))
	cmd.AddCommand(NewNoteCommand(opts))
	cmd.AddCommand(NewKeyCommand(opts))
	cmd.AddCommand(NewPassportCommand(opts))
	cmd.AddCommand(NewMemoryCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewJobCommand(opts))
	cmd.AddCommand(NewFsckCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// viper returns the options' config, creating one for commands built
// outside NewRootCommand.
func (o *RootOptions) viper() *viper.Viper {
	if o.Config == nil {
		o.Config = config.New()
	}
	return o.Config
}

// principal is the caller that admin commands act as.
func (o *RootOptions) principal() string {
	return o.viper().GetString(config.KeyPrincipal)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
