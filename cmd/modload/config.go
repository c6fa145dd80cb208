// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/invowk/modload/internal/config"
	"github.com/invowk/modload/internal/issue"
	"github.com/invowk/modload/pkg/types"
)

// newConfigCommand creates the `modload config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage modload configuration",
		Long: `Manage modload configuration.

Configuration is stored in:
  - Linux: ~/.config/modload/config.cue
  - macOS: ~/Library/Application Support/modload/config.cue
  - Windows: %APPDATA%\modload\config.cue

A config.cue in the working directory is used when the file above is absent.
Every key can be overridden with a ` + config.EnvPrefix + `_ environment variable,
for example ` + config.EnvPrefix + `_INTEROP_REQUIRE_STATIC=deny.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd, app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfigPath(cmd, app)
		},
	})

	return cfgCmd
}

func showConfig(cmd *cobra.Command, app *App) error {
	cfg, path, err := app.loadConfig(cmd.Context())
	if err != nil {
		if rendered, renderErr := issue.Get(issue.ConfigLoadFailedId).Render("auto"); renderErr == nil {
			fmt.Fprint(app.stderr, rendered)
		}
		return app.fail(cmd, nil, types.ExitFailure, err)
	}

	fmt.Fprintln(app.stdout, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(app.stdout)
	if path != "" {
		fmt.Fprintf(app.stdout, "%s: %s\n", CmdStyle.Render("Config file"), path)
	} else {
		fmt.Fprintf(app.stdout, "%s: %s\n", CmdStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(app.stdout)
	fmt.Fprint(app.stdout, strings.TrimPrefix(config.GenerateCUE(cfg), "// modload configuration file\n\n"))
	return nil
}

func initConfig(cmd *cobra.Command, app *App) error {
	path, written, err := config.CreateDefaultConfig(app.cfgDir)
	if err != nil {
		return app.fail(cmd, nil, types.ExitFailure, fmt.Errorf("failed to create config: %w", err))
	}
	if !written {
		fmt.Fprintf(app.stdout, "%s Configuration already exists at %s\n", WarningStyle.Render("!"), path)
		return nil
	}
	fmt.Fprintf(app.stdout, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}

func showConfigPath(cmd *cobra.Command, app *App) error {
	if app.cfgFile != "" {
		fmt.Fprintf(app.stdout, "Config file: %s\n", app.cfgFile)
		return nil
	}
	path, err := config.ConfigFilePath(app.cfgDir)
	if err != nil {
		return app.fail(cmd, nil, types.ExitFailure, err)
	}
	fmt.Fprintf(app.stdout, "Config file: %s\n", path)
	return nil
}
