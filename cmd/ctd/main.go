// Command ctd is the ct daemon: it holds one workspace's symbol
// catalog open, serves find/doc/ls/export/status/diag/reindex/bench
// over its configured transport, and watches the workspace for
// changes to keep the catalog current.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/ct/internal/config"
	"github.com/dshills/ct/internal/daemon"
)

var version = "dev"

func main() {
	var workspace string

	rootCmd := &cobra.Command{
		Use:   "ctd",
		Short: "ct daemon: indexes a workspace and serves symbol-catalog queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(workspace)
		},
	}
	rootCmd.Flags().StringVar(&workspace, "workspace", ".", "workspace root to index and serve")
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("ctd " + version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(workspace string) error {
	log.SetOutput(os.Stderr)

	workspaceRoot, err := resolveWorkspace(workspace)
	if err != nil {
		return fmt.Errorf("ctd: resolve workspace: %w", err)
	}
	// config.Load reads ct.toml from the process's working directory,
	// so ctd always runs with cwd set to the workspace it serves.
	if err := os.Chdir(workspaceRoot); err != nil {
		return fmt.Errorf("ctd: chdir to workspace: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("ctd: load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Printf("ctd starting for workspace %s", workspaceRoot)
	d, err := daemon.Open(ctx, cfg, workspaceRoot)
	if err != nil {
		return fmt.Errorf("ctd: open daemon: %w", err)
	}

	l, err := daemon.Listen(cfg, d.Fingerprint())
	if err != nil {
		return fmt.Errorf("ctd: listen: %w", err)
	}
	log.Printf("ctd listening on %s transport, workspace fingerprint %s", cfg.EffectiveTransport(), d.Fingerprint())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 2)
	go func() { errChan <- d.Serve(ctx, l) }()
	go func() { errChan <- d.WatchAndReindex(ctx) }()

	select {
	case sig := <-sigChan:
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	case err := <-errChan:
		if err != nil && ctx.Err() == nil {
			cancel()
			return fmt.Errorf("ctd: %w", err)
		}
	}

	log.Println("ctd stopped")
	return nil
}

func resolveWorkspace(workspace string) (string, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}
