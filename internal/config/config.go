// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/invowk/modload/internal/issue"
	"github.com/invowk/modload/pkg/cueutil"
)

const (
	// AppName is the application name.
	AppName = "modload"
	// EnvPrefix prefixes environment variables that override configuration keys.
	EnvPrefix = "MODLOAD"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the modload configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// ConfigFilePath returns the path of config.cue in dir, or in ConfigDir when dir
// is empty.
func ConfigFilePath(dir string) (string, error) {
	cfgDir, err := configDirWithOverride(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt), nil
}

// newViper returns a Viper instance holding the defaults and bound to the
// MODLOAD_ environment.
func newViper() *viper.Viper {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("conditions.import", Strings(defaults.Conditions.Import))
	v.SetDefault("conditions.require", Strings(defaults.Conditions.Require))
	v.SetDefault("resolution.extensions", ExtensionStrings(defaults.Resolution.Extensions))
	v.SetDefault("resolution.index_files", defaults.Resolution.IndexFiles)
	v.SetDefault("resolution.modules_dir", defaults.Resolution.ModulesDir)
	v.SetDefault("resolution.manifest_name", defaults.Resolution.ManifestName)
	v.SetDefault("resolution.preserve_symlinks", defaults.Resolution.PreserveSymlinks)
	v.SetDefault("manifest_cache_size", defaults.ManifestCacheSize)
	v.SetDefault("hooks.order", string(defaults.Hooks.Order))
	v.SetDefault("interop.require_static", string(defaults.Interop.RequireStatic))
	v.SetDefault("fetch.http.enabled", defaults.Fetch.HTTP.Enabled)
	v.SetDefault("fetch.http.retry_max", defaults.Fetch.HTTP.RetryMax)
	v.SetDefault("fetch.http.timeout", defaults.Fetch.HTTP.Timeout)
	v.SetDefault("ui.color_scheme", string(defaults.UI.ColorScheme))
	v.SetDefault("ui.verbose", defaults.UI.Verbose)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// loadWithOptions performs option-driven config loading without mutating
// package-level state.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper()
	resolvedPath := ""

	loadFile := func(path string) error {
		if err := loadCUEIntoViper(v, path); err != nil {
			return issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestions(issue.Get(issue.ConfigLoadFailedId).Suggestions()...).
				Wrap(err).
				BuildError()
		}
		resolvedPath = path
		return nil
	}

	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'modload config show' to see the default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		if err := loadFile(opts.ConfigFilePath); err != nil {
			return nil, "", err
		}
	} else {
		cuePath, err := ConfigFilePath(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}
		localCuePath := ConfigFileName + "." + ConfigFileExt
		switch {
		case fileExists(cuePath):
			err = loadFile(cuePath)
		case fileExists(localCuePath):
			err = loadFile(localCuePath)
		}
		if err != nil {
			return nil, "", err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	// Environment overrides bypass the CUE schema, so the decoded values are
	// checked again.
	if valid, errs := cfg.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Check " + EnvPrefix + "_* environment variables for typos").
			Wrap(errs[0]).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}
	return ConfigDir()
}

// loadCUEIntoViper validates a CUE file against #Config and merges its contents
// into Viper. Fields are optional, so validation is not concrete.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	res, err := cueutil.Decode[map[string]any](
		[]byte(configSchema), data, "#Config",
		cueutil.WithFilename(path),
		cueutil.WithConcrete(false),
	)
	if err != nil {
		return err
	}

	if err := v.MergeConfigMap(*res.Value); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes a config file holding every default to dir (or
// ConfigDir when dir is empty) unless one exists. It returns the file path and
// whether it was written.
func CreateDefaultConfig(dir string) (string, bool, error) {
	cfgPath, err := ConfigFilePath(dir)
	if err != nil {
		return "", false, err
	}
	if fileExists(cfgPath) {
		return cfgPath, false, nil
	}
	if err := writeConfig(cfgPath, DefaultConfig()); err != nil {
		return "", false, err
	}
	return cfgPath, true, nil
}

// Save writes cfg to config.cue in dir, or in ConfigDir when dir is empty.
func Save(dir string, cfg *Config) error {
	cfgPath, err := ConfigFilePath(dir)
	if err != nil {
		return err
	}
	return writeConfig(cfgPath, cfg)
}

func writeConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateCUE generates a CUE representation of the configuration.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// modload configuration file\n\n")

	sb.WriteString("conditions: {\n")
	fmt.Fprintf(&sb, "\timport: %s\n", cueList(Strings(cfg.Conditions.Import)))
	fmt.Fprintf(&sb, "\trequire: %s\n", cueList(Strings(cfg.Conditions.Require)))
	sb.WriteString("}\n")

	sb.WriteString("\nresolution: {\n")
	fmt.Fprintf(&sb, "\textensions: %s\n", cueList(ExtensionStrings(cfg.Resolution.Extensions)))
	fmt.Fprintf(&sb, "\tindex_files: %s\n", cueList(cfg.Resolution.IndexFiles))
	fmt.Fprintf(&sb, "\tmodules_dir: %q\n", cfg.Resolution.ModulesDir)
	fmt.Fprintf(&sb, "\tmanifest_name: %q\n", cfg.Resolution.ManifestName)
	fmt.Fprintf(&sb, "\tpreserve_symlinks: %v\n", cfg.Resolution.PreserveSymlinks)
	sb.WriteString("}\n")

	fmt.Fprintf(&sb, "\nmanifest_cache_size: %d\n", cfg.ManifestCacheSize)

	fmt.Fprintf(&sb, "\nhooks: order: %q\n", cfg.Hooks.Order)
	fmt.Fprintf(&sb, "\ninterop: require_static: %q\n", cfg.Interop.RequireStatic)

	sb.WriteString("\nfetch: http: {\n")
	fmt.Fprintf(&sb, "\tenabled: %v\n", cfg.Fetch.HTTP.Enabled)
	fmt.Fprintf(&sb, "\tretry_max: %d\n", cfg.Fetch.HTTP.RetryMax)
	fmt.Fprintf(&sb, "\ttimeout: %q\n", cfg.Fetch.HTTP.Timeout.String())
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tcolor_scheme: %q\n", cfg.UI.ColorScheme)
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	return sb.String()
}

func cueList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
