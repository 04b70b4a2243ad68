package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/enclave/internal/config"
	"github.com/roach88/enclave/internal/keyderiv"
	"github.com/roach88/enclave/internal/server"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions

	// ExposeKDF mounts the in-process key derivation service under /kdf so
	// other enclave processes can use it as their kdf_url.
	ExposeKDF bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the vault over HTTP",
		Long: `Open the vault database and serve the HTTP API.

The caller principal of every request is read from the X-Enclave-Principal
header, which an authenticating front proxy must set. Requests without it
are anonymous.

Serving requires kdf_master_key or kdf_url. Without either, the local key
derivation service would use a key derived from the database path, which
serve refuses unless --insecure-dev-key is given.

Example:
  ENCLAVE_KDF_MASTER_KEY=<64 hex chars> enclave serve --db ./enclave.db
  enclave serve --insecure-dev-key --listen 127.0.0.1:8420
  ENCLAVE_KDF_URL=https://kdf.internal enclave serve`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runServe(opts, cmd)
			if err != nil {
				_ = newFormatter(rootOpts, cmd).Error(ErrCodeInternal, err.Error(), nil)
			}
			return err
		},
	}

	cmd.Flags().String("listen", config.DefaultListen, "address to listen on")
	_ = rootOpts.viper().BindPFlag(config.KeyListenAddr, cmd.Flags().Lookup("listen"))
	cmd.Flags().BoolVar(&opts.ExposeKDF, "expose-kdf", false, "mount the local key derivation service under /kdf")
	cmd.Flags().Bool("insecure-dev-key", false, "allow the local key derivation service to use the database-path master key")
	_ = rootOpts.viper().BindPFlag(config.KeyInsecureDevKey, cmd.Flags().Lookup("insecure-dev-key"))

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(log)

	s, err := openSession(opts.RootOptions, cmd, log, (*config.Config).CheckServing)
	if err != nil {
		return err
	}
	defer s.Close()
	log.Info("database ready", "path", s.cfg.DBPath)

	var serverOpts []server.Option
	serverOpts = append(serverOpts, server.WithLogger(log))
	if opts.ExposeKDF {
		if s.local == nil {
			return NewExitError(ExitCommandError, "--expose-kdf requires the local key derivation service (kdf_url is set)")
		}
		serverOpts = append(serverOpts, server.WithKDFHandler(keyderiv.Handler(s.local)))
		log.Warn("exposing the local key derivation service under /kdf")
	}
	srv := server.New(s.vault, serverOpts...)

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	httpSrv := &http.Server{
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errChan := make(chan error, 1)
	go func() {
		errChan <- httpSrv.Serve(ln)
	}()

	log.Info("server starting", "addr", ln.Addr().String())
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown error", err)
	}

	log.Info("server stopped gracefully")
	return nil
}
