package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alexjbarnes/drive-sync/internal/config"
	"github.com/alexjbarnes/drive-sync/internal/drive"
	"github.com/alexjbarnes/drive-sync/internal/logging"
	"github.com/alexjbarnes/drive-sync/internal/state"
	"github.com/alexjbarnes/drive-sync/internal/sync"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "drive-sync",
		Short:         "Synchronize a local directory tree with a remote drive folder",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			applyFlagOverrides(cmd, cfg)

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("validating config: %w", err)
			}

			return run(cmd.Context(), cfg)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file")

	// Flags override both the config file and environment variables.
	cmd.Flags().String("local-dir", "", "local directory tree to sync")
	cmd.Flags().String("remote-folder", "", "name of the remote root folder")
	cmd.Flags().String("direction", "", "sync direction: push, pull, or both")
	cmd.Flags().String("conflict", "", "conflict policy: newer-wins, local-wins, remote-wins, or skip")
	cmd.Flags().Bool("dry-run", false, "log what would happen without touching the remote store")
	cmd.Flags().Bool("compare-hashes", false, "enable the content digest tier of the update check")
	cmd.Flags().Bool("watch", false, "keep running and re-push on local changes")

	cmd.AddCommand(newEncryptCredentialsCmd())

	return cmd
}

// applyFlagOverrides copies explicitly set flags onto the config,
// overriding file and environment values.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	stringTargets := map[string]*string{
		"local-dir":     &cfg.LocalDir,
		"remote-folder": &cfg.RemoteFolder,
		"direction":     &cfg.Direction,
		"conflict":      &cfg.ConflictPolicy,
	}
	boolTargets := map[string]*bool{
		"dry-run":        &cfg.DryRun,
		"compare-hashes": &cfg.CompareHashes,
		"watch":          &cfg.Watch,
	}

	for name, target := range stringTargets {
		if cmd.Flags().Changed(name) {
			*target, _ = cmd.Flags().GetString(name)
		}
	}
	for name, target := range boolTargets {
		if cmd.Flags().Changed(name) {
			*target, _ = cmd.Flags().GetBool(name)
		}
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.NewLogger(cfg.Environment)
	logger.Info("drive-sync starting",
		slog.String("version", Version),
		slog.Bool("dry_run", cfg.DryRun),
		slog.Bool("watch", cfg.Watch),
	)

	direction, err := sync.ParseDirection(cfg.Direction)
	if err != nil {
		return err
	}
	policy, err := sync.ParsePolicy(cfg.ConflictPolicy)
	if err != nil {
		return err
	}

	appState, err := state.Load(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer appState.Close()

	creds, err := drive.LoadCredentials(cfg.CredentialsPath, cfg.CredentialsPassphrase)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	auth := drive.NewAuthenticator(nil, cfg.TokenURL, creds, appState, logger)
	client := drive.NewClient(nil, auth)
	client.SetEndpoints(cfg.APIBaseURL, cfg.UploadBaseURL)

	syncer := sync.New(sync.NewDriveRemote(client), sync.Options{
		LocalDir:      cfg.LocalDir,
		RootFolder:    cfg.RemoteFolder,
		Direction:     direction,
		Policy:        policy,
		DryRun:        cfg.DryRun,
		CompareHashes: cfg.CompareHashes,
	}, appState, logger)

	if _, err := syncer.Run(ctx); err != nil {
		return err
	}

	if !cfg.Watch {
		return nil
	}

	watcher := sync.NewWatcher(cfg.LocalDir, func(ctx context.Context) error {
		_, err := syncer.RunPush(ctx)
		return err
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Watch(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("drive-sync stopped")
	return nil
}

// newEncryptCredentialsCmd seals a plain JSON credentials file in place
// with a passphrase-derived key, so the refresh token is not stored in
// the clear.
func newEncryptCredentialsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt-credentials <file>",
		Short: "Encrypt an OAuth credentials file at rest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading credentials file: %w", err)
			}
			if drive.IsSealed(data) {
				return fmt.Errorf("%s is already sealed", path)
			}

			// Refuse to seal something that is not a credentials file.
			var creds drive.Credentials
			if err := json.Unmarshal(data, &creds); err != nil {
				return fmt.Errorf("%s is not a valid credentials file: %w", path, err)
			}

			passphrase, err := promptPassphrase()
			if err != nil {
				return err
			}

			sealed, err := drive.SealCredentials(data, passphrase)
			if err != nil {
				return fmt.Errorf("sealing credentials: %w", err)
			}

			if err := os.WriteFile(path, sealed, 0o600); err != nil {
				return fmt.Errorf("writing sealed file: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "sealed %s\n", path)
			return nil
		},
	}
}

func promptPassphrase() (string, error) {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Fprint(os.Stderr, "Enter passphrase: ")
	if !scanner.Scan() {
		return "", fmt.Errorf("no input")
	}
	passphrase := scanner.Text()
	if passphrase == "" {
		return "", fmt.Errorf("passphrase must not be empty")
	}

	fmt.Fprint(os.Stderr, "Confirm passphrase: ")
	if !scanner.Scan() || scanner.Text() != passphrase {
		return "", fmt.Errorf("passphrases do not match")
	}

	return passphrase, nil
}
