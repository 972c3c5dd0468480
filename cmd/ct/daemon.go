package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/ct/internal/config"
	"github.com/dshills/ct/internal/fingerprint"
	"github.com/dshills/ct/internal/ingest"
	"github.com/dshills/ct/pkg/types"
)

// newDaemonCmd implements the lifecycle subcommands carried over from
// the original implementation (SPEC_FULL.md's SUPPLEMENTED FEATURES):
// start/stop/restart/status manage the ctd process for the workspace
// rooted at the current directory, tracked by a pid file rather than
// by dialing the transport, so stop/status work even against a wedged
// daemon that no longer accepts connections.
func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "start, stop, restart, or check ctd for the current workspace",
	}
	cmd.AddCommand(newDaemonStartCmd(), newDaemonStopCmd(), newDaemonRestartCmd(), newDaemonStatusCmd())
	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "start ctd for the current workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemonStart(cmd)
		},
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "stop the running ctd for the current workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemonStop(cmd)
		},
	}
}

func newDaemonRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "restart ctd for the current workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = daemonStop(cmd)
			return daemonStart(cmd)
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "report whether ctd is running for the current workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemonStatus(cmd)
		},
	}
}

// workspaceFingerprintHere mirrors daemon.Dial's own fingerprint
// computation, so the pid file `ct daemon` keeps is keyed by the same
// per-workspace fingerprint `ct find` et al. use to locate the daemon.
// A daemon autostarted by those commands writes no pid file.
func workspaceFingerprintHere(ctx context.Context, workspaceRoot string) (string, error) {
	members, err := ingest.DiscoverMembers(ctx, workspaceRoot)
	if err != nil {
		return "", fmt.Errorf("ct: discover workspace members: %w", err)
	}
	roots := make(map[string]string, len(members))
	for _, m := range members {
		roots[m.Name] = m.Dir
	}
	return fingerprint.Workspace(roots)
}

// runningPID returns the pid recorded at pidPath if that process is
// still alive, 0 otherwise. A pid file left behind by a process that
// no longer exists is removed.
func runningPID(pidPath string) int {
	b, err := os.ReadFile(pidPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		_ = os.Remove(pidPath)
		return 0
	}
	return pid
}

func daemonPIDPath(cmd *cobra.Command) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	fp, err := workspaceFingerprintHere(cmd.Context(), wd)
	if err != nil {
		return "", err
	}
	return cfg.PIDPath(fp), nil
}

func daemonStart(cmd *cobra.Command) error {
	pidPath, err := daemonPIDPath(cmd)
	if err != nil {
		return err
	}
	if pid := runningPID(pidPath); pid != 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "ctd already running for this workspace (pid %d)\n", pid)
		os.Exit(types.ExitDaemonAlreadyRunning)
	}

	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	ctdPath, err := exec.LookPath("ctd")
	if err != nil {
		return fmt.Errorf("ct: ctd not found on PATH: %w", err)
	}
	proc := exec.Command(ctdPath, "--workspace", wd)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("ct: start ctd: %w", err)
	}
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(proc.Process.Pid)), 0o600); err != nil {
		return fmt.Errorf("ct: write pid file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ctd started (pid %d)\n", proc.Process.Pid)
	return nil
}

func daemonStop(cmd *cobra.Command) error {
	pidPath, err := daemonPIDPath(cmd)
	if err != nil {
		return err
	}
	pid := runningPID(pidPath)
	if pid == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "ctd is not running for this workspace")
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("ct: stop ctd (pid %d): %w", pid, err)
	}
	_ = os.Remove(pidPath)
	fmt.Fprintf(cmd.OutOrStdout(), "ctd stopped (pid %d)\n", pid)
	return nil
}

func daemonStatus(cmd *cobra.Command) error {
	pidPath, err := daemonPIDPath(cmd)
	if err != nil {
		return err
	}
	pid := runningPID(pidPath)
	if pid == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "ctd is not running for this workspace")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ctd running (pid %d)\n", pid)
	return nil
}
