package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/enclave/internal/config"
	"github.com/roach88/enclave/internal/keyderiv"
	"github.com/roach88/enclave/internal/store"
	"github.com/roach88/enclave/internal/vault"
)

// session is an open vault plus everything it was built from. Admin
// commands and serve share it.
type session struct {
	cfg   *config.Config
	store *store.Store
	kdf   keyderiv.Service
	local *keyderiv.Local // nil when a remote service is configured
	vault *vault.Vault
	log   *slog.Logger
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting structured output
		Verbose:   opts.Verbose,
	}
}

func newLogger(opts *RootOptions, cmd *cobra.Command) *slog.Logger {
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// openSession resolves configuration and opens the vault over it. Each
// check runs on the loaded configuration before the database is opened.
func openSession(opts *RootOptions, cmd *cobra.Command, log *slog.Logger, checks ...func(*config.Config) error) (*session, error) {
	cfg, err := config.Load(opts.viper())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return nil, WrapExitError(ExitCommandError, "configuration cannot be used", err)
		}
	}

	log.Debug("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	s := &session{cfg: cfg, store: st, log: log}
	if cfg.KDFURL != "" {
		log.Debug("using remote key derivation service", "url", cfg.KDFURL)
		s.kdf = keyderiv.NewClient(cfg.KDFURL)
	} else {
		cfg.WarnIfDefaultKeys(log)
		local, err := keyderiv.NewLocal(cfg.KDFMasterKey)
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to create key derivation service", err)
		}
		s.local = local
		s.kdf = local
	}

	v, err := vault.New(st, s.kdf,
		vault.WithLimits(cfg.Limits),
		vault.WithLimiter(keyderiv.NewLimiter(cfg.DeriveRPM, cfg.DeriveRPMPerCaller)),
		vault.WithLogger(log),
	)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open vault", err)
	}
	s.vault = v
	return s, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.log.Error("error closing database", "error", err)
	}
}

// withVault opens a session for the duration of fn and reports fn's
// result. fn receives the principal the command acts as.
func withVault(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, f *OutputFormatter, v *vault.Vault, caller string) error) error {
	f := newFormatter(opts, cmd)
	s, err := openSession(opts, cmd, newLogger(opts, cmd))
	if err != nil {
		_ = f.Error(ErrCodeInternal, err.Error(), nil)
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	caller := opts.principal()
	f.VerboseLog("acting as %q on %s", caller, s.cfg.DBPath)
	return fn(ctx, f, s.vault, caller)
}
