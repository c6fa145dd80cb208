// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/invowk/modload/internal/issue"
	"github.com/invowk/modload/pkg/types"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree bound to app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "modload",
		Short: "Resolve, load and evaluate modules",
		Long: TitleStyle.Render("modload") + SubtitleStyle.Render(" - module resolution and loading pipeline") + `

modload resolves module specifiers the way package-aware runtimes do
(relative paths, bare package names with exports/imports maps, file:,
data: and builtin: URLs), loads their source through a hook chain and
evaluates them with an embedded Lua engine.

Two module formats are supported: dynamic modules (require, exports)
and static modules (import, export, live bindings, top-level await).

` + SubtitleStyle.Render("Examples:") + `
  modload resolve ./lib --from ./src/main.lua   Show where a specifier resolves
  modload run ./main.lua                        Evaluate an entry module
  modload run --require ./main.lua              Use the synchronous entry point
  modload graph ./main.lua                      Print the linked dependency graph
  modload explain ERR_REQUIRE_STATIC            Describe an error code
  modload config show                           Show current configuration`,
		SilenceUsage: true,
	}

	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)

	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&app.cfgFile, "config", "", "config file (default is $HOME/.config/modload/config.cue)")
	rootCmd.PersistentFlags().StringVarP(&app.dir, "dir", "C", "", "resolve entries relative to this directory (default is the working directory)")

	rootCmd.AddCommand(newResolveCommand(app))
	rootCmd.AddCommand(newRunCommand(app))
	rootCmd.AddCommand(newGraphCommand(app))
	rootCmd.AddCommand(newExplainCommand(app))
	rootCmd.AddCommand(newConfigCommand(app))

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute builds the command tree and runs it. This is called by main.main().
func Execute() {
	app := NewApp(os.Stdout, os.Stderr)
	rootCmd := NewRootCommand(app)

	// Pass version via fang.WithVersion() since fang overrides rootCmd.Version
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(int(exitCodeFor(err)))
	}
}

// exitCodeFor maps a command error to the process exit status. Codes outside
// 0-255 and zero codes carried by a failure collapse to ExitFailure.
func exitCodeFor(err error) types.ExitCode {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		return types.ExitFailure
	}
	if exitErr.Code.Validate() != nil || exitErr.Code.IsSuccess() {
		return types.ExitFailure
	}
	return exitErr.Code
}

// formatErrorForDisplay formats an error for user display.
// ActionableErrors use their Format method and aggregated errors are listed one
// per paragraph. In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var merr *multierror.Error
	if errors.As(err, &merr) && len(merr.Errors) > 1 {
		out := fmt.Sprintf("%d errors occurred:", len(merr.Errors))
		for _, e := range merr.Errors {
			out += "\n\n" + formatErrorForDisplay(e, verboseMode)
		}
		return out
	}
	if merr != nil && len(merr.Errors) == 1 {
		err = merr.Errors[0]
	}

	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
