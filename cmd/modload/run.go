// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/invowk/modload/internal/config"
	"github.com/invowk/modload/internal/issue"
	"github.com/invowk/modload/internal/watch"
	"github.com/invowk/modload/pkg/modload"
	"github.com/invowk/modload/pkg/types"
)

type (
	runFlags struct {
		require  bool
		print    bool
		watch    bool
		debounce time.Duration
	}

	// entryResult is the outcome of one entry of a run.
	entryResult struct {
		value any
		err   error
	}

	// runError carries the exit code a failed run maps to.
	runError struct {
		code types.ExitCode
		err  error
	}
)

func (e *runError) Error() string { return e.err.Error() }

func (e *runError) Unwrap() error { return e.err }

func newRunCommand(app *App) *cobra.Command {
	var flags runFlags

	runCmd := &cobra.Command{
		Use:   "run <entry>...",
		Short: "Load and evaluate entry modules",
		Long: `Load and evaluate entry modules with the Lua engine.

Entries are imported through the asynchronous entry point unless --require
selects the synchronous one. Several entries run concurrently in the same
realm, so modules they share are evaluated once.

With --watch the entries run again, in a fresh realm, whenever a module
source or package manifest below the base directory changes.

` + SubtitleStyle.Render("Examples:") + `
  modload run ./main.lua
  modload run --require --print ./lib.lua
  modload run ./a.lua ./b.lua
  modload run --watch ./main.lua`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntries(cmd, app, flags, args)
		},
	}

	runCmd.Flags().BoolVar(&flags.require, "require", false, "use the synchronous require entry point")
	runCmd.Flags().BoolVarP(&flags.print, "print", "p", false, "print the exports of each entry as JSON")
	runCmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "run again when module files change")
	runCmd.Flags().DurationVar(&flags.debounce, "debounce", watch.DefaultDebounce, "quiet period before a watched run")

	return runCmd
}

func runEntries(cmd *cobra.Command, app *App, flags runFlags, entries []string) error {
	ctx := cmd.Context()

	cfg, _, err := app.loadConfig(ctx)
	if err != nil {
		return app.fail(cmd, nil, types.ExitFailure, err)
	}

	runErr := runOnce(ctx, app, cfg, flags, entries)
	if flags.watch {
		if runErr != nil {
			app.report(cfg, runErr)
		}
		return watchEntries(cmd, app, cfg, flags, entries)
	}
	if runErr != nil {
		return app.fail(cmd, cfg, runErr.code, runErr.err)
	}
	return nil
}

// runOnce evaluates entries in a new realm and prints their exports when asked.
func runOnce(ctx context.Context, app *App, cfg *config.Config, flags runFlags, entries []string) *runError {
	realm, err := app.newRealm(cfg)
	if err != nil {
		return &runError{code: types.ExitFailure, err: err}
	}

	results := evaluateEntries(ctx, realm, entries, flags.require)

	var merr *multierror.Error
	for i, entry := range entries {
		res := results[i]
		if res.err != nil {
			merr = multierror.Append(merr, issue.Wrap(res.err, "run module", entry))
			continue
		}
		if !flags.print {
			continue
		}
		out, fmtErr := formatValue(res.value)
		if fmtErr != nil {
			merr = multierror.Append(merr, issue.Wrap(fmtErr, "print exports", entry))
			continue
		}
		if len(entries) > 1 {
			fmt.Fprintln(app.stdout, TitleStyle.Render(entry))
		}
		fmt.Fprintln(app.stdout, out)
	}

	if err := merr.ErrorOrNil(); err != nil {
		return &runError{code: types.ExitModuleError, err: err}
	}
	return nil
}

// evaluateEntries evaluates every entry concurrently and returns the results in
// entry order. A failing entry does not cancel the others.
func evaluateEntries(ctx context.Context, realm *modload.Realm, entries []string, require bool) []entryResult {
	results := make([]entryResult, len(entries))
	var g errgroup.Group
	for i, entry := range entries {
		g.Go(func() error {
			if require {
				results[i].value, results[i].err = realm.Require(ctx, entry, "")
				return nil
			}
			ns, err := realm.ImportNamespace(ctx, entry, "")
			if err != nil {
				results[i].err = err
				return nil
			}
			results[i].value = ns
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// watchEntries reruns the entries on every batch of module file changes until
// the command's context is canceled.
func watchEntries(cmd *cobra.Command, app *App, cfg *config.Config, flags runFlags, entries []string) error {
	base, err := app.baseDir()
	if err != nil {
		return app.fail(cmd, cfg, types.ExitFailure, err)
	}

	w, err := watch.New(watch.Config{
		Patterns: watch.ModulePatterns(config.ExtensionStrings(cfg.Resolution.Extensions), cfg.Resolution.ManifestName),
		Debounce: flags.debounce,
		BaseDir:  base,
		Logger:   app.logger(cfg),
		OnChange: func(ctx context.Context, changed []string) error {
			fmt.Fprintf(app.stderr, "%s %s\n", SubtitleStyle.Render("changed:"), strings.Join(changed, ", "))
			if runErr := runOnce(ctx, app, cfg, flags, entries); runErr != nil {
				app.report(cfg, runErr)
				return nil
			}
			fmt.Fprintln(app.stderr, SuccessStyle.Render("✓")+" run completed")
			return nil
		},
	})
	if err != nil {
		return app.fail(cmd, cfg, types.ExitFailure, err)
	}

	fmt.Fprintf(app.stderr, "%s %s\n", SubtitleStyle.Render("watching"), base)
	if err := w.Run(cmd.Context()); err != nil {
		return app.fail(cmd, cfg, types.ExitFailure, err)
	}
	return nil
}
