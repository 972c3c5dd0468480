// Command ct is the interactive client for ctd: each subcommand sends
// one request over the daemon's wire protocol and prints the
// response, either as pretty text (TTY) or raw JSON (piped).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/dshills/ct/internal/config"
	"github.com/dshills/ct/internal/daemon"
	"github.com/dshills/ct/pkg/types"
)

var version = "dev"

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ct: %v\n", err)
		os.Exit(types.ExitInvalidArgs)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ct",
		Short:         "Query a workspace's symbol catalog served by ctd",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Bool("json", false, "force JSON output even on a terminal")

	rootCmd.AddCommand(
		newDaemonCmd(),
		newFindCmd(),
		newDocCmd(),
		newLsCmd(),
		newExportCmd(),
		newStatusCmd(),
		newDiagCmd(),
		newReindexCmd(),
		newBenchCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("ct " + version)
		},
	}
}

func newFindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find <query>",
		Short: "search symbols by name or path substring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, "find", map[string]any{
				"query":                 args[0],
				"context_path":          mustString(cmd, "context"),
				"kind":                  mustString(cmd, "kind"),
				"visibility":            mustString(cmd, "visibility"),
				"include_unimplemented": mustBool(cmd, "include-unimplemented"),
				"include_todo":          mustBool(cmd, "include-todo"),
				"limit":                 mustInt(cmd, "limit"),
			}, "")
		},
	}
	cmd.Flags().String("context", "", "current-path context for ranking")
	cmd.Flags().String("kind", "", "restrict to one symbol kind")
	cmd.Flags().String("visibility", "", "restrict to public|private")
	cmd.Flags().Bool("include-unimplemented", false, "restrict to unimplemented symbols")
	cmd.Flags().Bool("include-todo", false, "restrict to todo-status symbols")
	cmd.Flags().Int("limit", 0, "maximum results (0: daemon default)")
	return cmd
}

func newDocCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc <canonical-path>",
		Short: "show one symbol's documentation and signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, "doc", map[string]any{
				"path":         args[0],
				"include_docs": mustBool(cmd, "include-docs"),
			}, "")
		},
	}
	cmd.Flags().Bool("include-docs", true, "include doc comment text")
	return cmd
}

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls <canonical-path>",
		Short: "list symbols related to a path by expansion operators",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, "ls", map[string]any{
				"path":             args[0],
				"expansion":        mustString(cmd, "expand"),
				"impl_parents":     mustBool(cmd, "impl-parents"),
				"max_context_size": mustInt(cmd, "max-context-size"),
			}, mustString(cmd, "decision"))
		},
	}
	addExpansionFlags(cmd)
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <canonical-path>",
		Short: "bundle docs and source for a path's expansion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, "export", map[string]any{
				"path":             args[0],
				"expansion":        mustString(cmd, "expand"),
				"impl_parents":     mustBool(cmd, "impl-parents"),
				"max_context_size": mustInt(cmd, "max-context-size"),
			}, mustString(cmd, "decision"))
		},
	}
	addExpansionFlags(cmd)
	return cmd
}

func addExpansionFlags(cmd *cobra.Command) {
	cmd.Flags().String("expand", "", "stacked >/< expansion operators")
	cmd.Flags().Bool("impl-parents", false, "ascend methods to their enclosing impl")
	cmd.Flags().Int("max-context-size", 0, "character cap (0: daemon default)")
	cmd.Flags().String("decision", "", "continue|abort|full, resubmitting after a decision envelope")
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "aggregate implementation status across the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, "status", map[string]any{
				"visibility":            mustString(cmd, "visibility"),
				"include_unimplemented": mustBool(cmd, "include-unimplemented"),
				"include_todo":          mustBool(cmd, "include-todo"),
				"limit":                 mustInt(cmd, "limit"),
			}, "")
		},
	}
	cmd.Flags().String("visibility", "", "restrict to public|private")
	cmd.Flags().Bool("include-unimplemented", false, "restrict to unimplemented symbols")
	cmd.Flags().Bool("include-todo", false, "restrict to todo-status symbols")
	cmd.Flags().Int("limit", 0, "maximum sampled items (0: daemon default)")
	return cmd
}

func newDiagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diag",
		Short: "print daemon and catalog diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, "diag", nil, "")
		},
	}
}

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "force a full reindex of the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, "reindex", nil, "")
		},
	}
}

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "drive synthetic find() load against the live catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, "bench", map[string]any{
				"bench_queries":    mustInt(cmd, "queries"),
				"bench_duration_s": mustInt(cmd, "duration-s"),
			}, "")
		},
	}
	cmd.Flags().Int("queries", 0, "query count (0: daemon default)")
	cmd.Flags().Int("duration-s", 0, "time budget in seconds (0: daemon default)")
	return cmd
}

// runCommand dials the daemon for the current working directory's
// workspace, sends one request, prints the response, and translates
// the response into the process exit code spec §6.4 specifies.
func runCommand(cmd *cobra.Command, name string, params map[string]any, decision string) error {
	ctx := context.Background()
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	client, err := daemon.Dial(ctx, cfg, wd)
	if err != nil {
		printError(cmd, err)
		os.Exit(types.ExitDaemonUnavailable)
	}
	defer func() { _ = client.Close() }()

	resp, err := client.Send(name, params, decision)
	if err != nil {
		printError(cmd, err)
		os.Exit(types.ExitDaemonUnavailable)
	}

	printResponse(cmd, resp)
	if !resp.Ok {
		os.Exit(exitCodeForErrCode(resp.ErrCode))
	}
	if resp.DecisionRequired != nil {
		os.Exit(types.ExitOverMaxContext)
	}
	return nil
}

func printResponse(cmd *cobra.Command, resp types.Response) {
	out := cmd.OutOrStdout()
	if wantsJSON(cmd) {
		b, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Fprintln(out, string(b))
		return
	}
	switch {
	case !resp.Ok:
		fmt.Fprintf(out, "error [%s]: %s\n", resp.ErrCode, resp.Err)
	case resp.DecisionRequired != nil:
		fmt.Fprintf(out, "decision required: %s (content_len=%d, options=%v)\n",
			resp.DecisionRequired.Reason, resp.DecisionRequired.ContentLen, resp.DecisionRequired.Options)
	default:
		b, _ := json.MarshalIndent(resp.Data, "", "  ")
		fmt.Fprintln(out, string(b))
		if resp.Truncated {
			fmt.Fprintln(out, "(truncated)")
		}
	}
}

func printError(cmd *cobra.Command, err error) {
	fmt.Fprintf(cmd.ErrOrStderr(), "ct: %v\n", err)
}

// wantsJSON reports whether output should be raw JSON: forced by
// --json, or chosen automatically because stdout isn't a terminal
// (spec.md's CLI surface is out of scope, but a piped consumer still
// needs machine-readable output by default).
func wantsJSON(cmd *cobra.Command) bool {
	if forced, _ := cmd.Flags().GetBool("json"); forced {
		return true
	}
	return !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func exitCodeForErrCode(code types.ErrCode) int {
	switch code {
	case types.ErrInvalidArg:
		return types.ExitInvalidArgs
	case types.ErrOverMaxContext:
		return types.ExitOverMaxContext
	case types.ErrDaemonUnavailable:
		return types.ExitDaemonUnavailable
	case types.ErrIndexMismatch:
		return types.ExitIndexMismatch
	default:
		return types.ExitInternalError
	}
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func mustBool(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}

func mustInt(cmd *cobra.Command, name string) int {
	v, _ := cmd.Flags().GetInt(name)
	return v
}
