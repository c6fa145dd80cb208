// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/invowk/modload/internal/config"
	"github.com/invowk/modload/internal/fetch"
	"github.com/invowk/modload/pkg/modload"
	"github.com/invowk/modload/pkg/types"
)

// App carries the state shared by every command: output streams, the filesystem
// modules are read from and the values of the global flags.
type App struct {
	stdout io.Writer
	stderr io.Writer
	fs     afero.Fs

	verbose bool
	cfgFile string
	// cfgDir overrides the configuration directory lookup.
	cfgDir string
	dir    string
}

// NewApp creates an App writing to stdout and stderr and reading modules from the
// OS filesystem.
func NewApp(stdout, stderr io.Writer) *App {
	return &App{stdout: stdout, stderr: stderr, fs: afero.NewOsFs()}
}

// loadConfig loads the configuration selected by the --config flag. The returned
// path is "" when only defaults and the environment applied.
func (a *App) loadConfig(ctx context.Context) (*config.Config, string, error) {
	return config.LoadWithPath(ctx, config.LoadOptions{
		ConfigFilePath: a.cfgFile,
		ConfigDirPath:  a.cfgDir,
	})
}

// baseDir returns the absolute directory entries are resolved against.
func (a *App) baseDir() (string, error) {
	if a.dir == "" {
		return os.Getwd()
	}
	return filepath.Abs(a.dir)
}

func (a *App) isVerbose(cfg *config.Config) bool {
	return a.verbose || (cfg != nil && cfg.UI.Verbose)
}

func (a *App) logger(cfg *config.Config) *log.Logger {
	level := log.WarnLevel
	if a.isVerbose(cfg) {
		level = log.DebugLevel
	}
	return log.NewWithOptions(a.stderr, log.Options{
		Prefix: "modload",
		Level:  level,
	})
}

// newRealm builds a realm from cfg anchored at the base directory. extra options
// are applied last.
func (a *App) newRealm(cfg *config.Config, extra ...modload.Option) (*modload.Realm, error) {
	base, err := a.baseDir()
	if err != nil {
		return nil, err
	}
	opts := []modload.Option{
		modload.WithFS(a.fs),
		modload.WithConfig(cfg),
		modload.WithLogger(a.logger(cfg)),
		modload.WithBaseDir(base),
		modload.WithBuiltins(hostBuiltins()),
	}
	return modload.New(append(opts, extra...)...)
}

// hostBuiltins are the builtin modules the CLI realm provides.
func hostBuiltins() map[string]any {
	return map[string]any{
		"modload": map[string]any{
			"version": Version,
			"commit":  Commit,
		},
	}
}

// referrerURL turns the --from value into the file: URL of the referring module.
// URLs are passed through.
func (a *App) referrerURL(from string) (string, error) {
	if from == "" {
		return "", nil
	}
	if strings.Contains(from, ":") && !filepath.IsAbs(from) {
		return from, nil
	}
	path := from
	if !filepath.IsAbs(path) {
		base, err := a.baseDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(base, path)
	}
	return fetch.FileURL(path), nil
}

// displayURL shortens file: URLs below the base directory to "./rel".
func (a *App) displayURL(u string) string {
	base, err := a.baseDir()
	if err != nil {
		return u
	}
	prefix := fetch.FileURL(base) + "/"
	if rel, ok := strings.CutPrefix(u, prefix); ok {
		return "./" + rel
	}
	return u
}

// report prints err to stderr.
func (a *App) report(cfg *config.Config, err error) {
	fmt.Fprintln(a.stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, a.isVerbose(cfg)))
}

// fail prints err to stderr and returns an ExitError carrying code so cobra does
// not print it a second time.
func (a *App) fail(cmd *cobra.Command, cfg *config.Config, code types.ExitCode, err error) error {
	a.report(cfg, err)
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return &ExitError{Code: code, Err: err}
}
