// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invowk/modload/internal/hooks"
	"github.com/invowk/modload/internal/issue"
	"github.com/invowk/modload/pkg/modload"
	"github.com/invowk/modload/pkg/types"
)

type resolveFlags struct {
	from       string
	require    bool
	conditions []string
}

func newResolveCommand(app *App) *cobra.Command {
	var flags resolveFlags

	resolveCmd := &cobra.Command{
		Use:   "resolve <specifier>...",
		Short: "Resolve specifiers to URLs and formats",
		Long: `Resolve specifiers to URLs and formats without loading them.

Specifiers are resolved as if imported from the --from module, or from the
base directory when no referrer is given. The import conditions apply unless
--require selects the synchronous entry point.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, app, flags, args)
		},
	}

	resolveCmd.Flags().StringVar(&flags.from, "from", "", "file or URL of the referring module")
	resolveCmd.Flags().BoolVar(&flags.require, "require", false, "resolve with the require conditions")
	resolveCmd.Flags().StringSliceVar(&flags.conditions, "condition", nil, "replace the active conditions (repeatable)")

	return resolveCmd
}

func runResolve(cmd *cobra.Command, app *App, flags resolveFlags, specifiers []string) error {
	ctx := cmd.Context()

	var extra []modload.Option
	if len(flags.conditions) > 0 {
		if flags.require {
			extra = append(extra, modload.WithConditions(nil, flags.conditions))
		} else {
			extra = append(extra, modload.WithConditions(flags.conditions, nil))
		}
	}
	cfg, _, err := app.loadConfig(ctx)
	if err != nil {
		return app.fail(cmd, nil, types.ExitFailure, err)
	}
	realm, err := app.newRealm(cfg, extra...)
	if err != nil {
		return app.fail(cmd, cfg, types.ExitFailure, err)
	}
	parent, err := app.referrerURL(flags.from)
	if err != nil {
		return app.fail(cmd, cfg, types.ExitFailure, err)
	}

	resolveFn := realm.Resolve
	if flags.require {
		resolveFn = realm.ResolveRequire
	}

	for _, spec := range specifiers {
		var res hooks.ResolveResult
		if res, err = resolveFn(ctx, spec, parent); err != nil {
			return app.fail(cmd, cfg, types.ExitModuleError, issue.Wrap(err, "resolve specifier", spec))
		}
		format := string(res.Format)
		if format == "" {
			format = "unknown"
		}
		if len(specifiers) > 1 {
			fmt.Fprintf(app.stdout, "%s => ", spec)
		}
		fmt.Fprintf(app.stdout, "%s %s\n", CmdStyle.Render(res.URL), SubtitleStyle.Render("("+format+")"))
	}
	return nil
}
