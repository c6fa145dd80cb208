// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/invowk/modload/internal/resolve"
	"github.com/invowk/modload/pkg/manifest"
)

const (
	// HookOrderFirst runs the first registered hook first.
	HookOrderFirst HookOrder = "first"
	// HookOrderLast runs the most recently registered hook first.
	HookOrderLast HookOrder = "last"

	// InteropForce lets require complete static graphs that do not suspend.
	InteropForce InteropMode = "force"
	// InteropDeny makes require reject static modules that were not evaluated yet.
	InteropDeny InteropMode = "deny"

	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"
)

var (
	// ErrInvalidHookOrder is returned when a HookOrder value is not recognized.
	ErrInvalidHookOrder = errors.New("invalid hook order")
	// ErrInvalidInteropMode is returned when an InteropMode value is not recognized.
	ErrInvalidInteropMode = errors.New("invalid interop mode")
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidCondition is returned for empty condition names or names with
	// whitespace or commas.
	ErrInvalidCondition = errors.New("invalid condition name")
	// ErrInvalidExtension is returned for extensions that do not start with a dot.
	ErrInvalidExtension = errors.New("invalid extension")
	// ErrInvalidResolutionConfig is the sentinel error wrapped by InvalidResolutionConfigError.
	ErrInvalidResolutionConfig = errors.New("invalid resolution config")
	// ErrInvalidFetchConfig is the sentinel error wrapped by InvalidFetchConfigError.
	ErrInvalidFetchConfig = errors.New("invalid fetch config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// HookOrder selects which registered hook runs first.
	HookOrder string

	// InvalidHookOrderError is returned when a HookOrder value is not recognized.
	InvalidHookOrderError struct {
		Value HookOrder
	}

	// InteropMode selects how require treats static-format modules.
	InteropMode string

	// InvalidInteropModeError is returned when an InteropMode value is not recognized.
	InvalidInteropModeError struct {
		Value InteropMode
	}

	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// ConditionName is a name matched against conditional exports keys.
	ConditionName string

	// InvalidConditionError is returned for a malformed ConditionName.
	InvalidConditionError struct {
		Value ConditionName
	}

	// Extension is a file extension probed for extensionless specifiers, dot included.
	Extension string

	// InvalidExtensionError is returned for a malformed Extension.
	InvalidExtensionError struct {
		Value Extension
	}

	// InvalidResolutionConfigError collects the field errors of a ResolutionConfig.
	InvalidResolutionConfigError struct {
		FieldErrors []error
	}

	// InvalidFetchConfigError collects the field errors of a FetchConfig.
	InvalidFetchConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError collects the field errors of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// Conditions are the condition sets of the two entry points.
		Conditions ConditionsConfig `json:"conditions" mapstructure:"conditions"`
		// Resolution configures the default resolver.
		Resolution ResolutionConfig `json:"resolution" mapstructure:"resolution"`
		// ManifestCacheSize bounds the number of cached package manifests.
		ManifestCacheSize int `json:"manifest_cache_size" mapstructure:"manifest_cache_size"`
		// Hooks configures the hook chain.
		Hooks HooksConfig `json:"hooks" mapstructure:"hooks"`
		// Interop configures require of static-format modules.
		Interop InteropConfig `json:"interop" mapstructure:"interop"`
		// Fetch configures byte fetching.
		Fetch FetchConfig `json:"fetch" mapstructure:"fetch"`
		// UI configures the command line output.
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// ConditionsConfig lists the active conditions of each entry point.
	ConditionsConfig struct {
		Import  []ConditionName `json:"import" mapstructure:"import"`
		Require []ConditionName `json:"require" mapstructure:"require"`
	}

	// ResolutionConfig configures path probing and package lookup.
	ResolutionConfig struct {
		Extensions       []Extension `json:"extensions" mapstructure:"extensions"`
		IndexFiles       []string    `json:"index_files" mapstructure:"index_files"`
		ModulesDir       string      `json:"modules_dir" mapstructure:"modules_dir"`
		ManifestName     string      `json:"manifest_name" mapstructure:"manifest_name"`
		PreserveSymlinks bool        `json:"preserve_symlinks" mapstructure:"preserve_symlinks"`
	}

	// HooksConfig configures the hook chain.
	HooksConfig struct {
		Order HookOrder `json:"order" mapstructure:"order"`
	}

	// InteropConfig configures require of static-format modules.
	InteropConfig struct {
		RequireStatic InteropMode `json:"require_static" mapstructure:"require_static"`
	}

	// FetchConfig configures byte fetching.
	FetchConfig struct {
		HTTP HTTPConfig `json:"http" mapstructure:"http"`
	}

	// HTTPConfig configures the http: and https: fetcher.
	HTTPConfig struct {
		// Enabled accepts remote module URLs (default: false).
		Enabled bool `json:"enabled" mapstructure:"enabled"`
		// RetryMax is the number of retries of a failed request.
		RetryMax int `json:"retry_max" mapstructure:"retry_max"`
		// Timeout bounds each request.
		Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		Verbose     bool        `json:"verbose" mapstructure:"verbose"`
	}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Conditions: ConditionsConfig{
			Import:  []ConditionName{"import"},
			Require: []ConditionName{"require"},
		},
		Resolution: ResolutionConfig{
			Extensions:   extensions(resolve.DefaultExtensions),
			IndexFiles:   slices.Clone(resolve.DefaultIndexFiles),
			ModulesDir:   manifest.DefaultModulesDir,
			ManifestName: manifest.DefaultFileName,
		},
		ManifestCacheSize: manifest.DefaultCacheSize,
		Hooks:             HooksConfig{Order: HookOrderFirst},
		Interop:           InteropConfig{RequireStatic: InteropForce},
		Fetch: FetchConfig{
			HTTP: HTTPConfig{
				Enabled:  false,
				RetryMax: 3,
				Timeout:  30 * time.Second,
			},
		},
		UI: UIConfig{ColorScheme: ColorSchemeAuto},
	}
}

// IsValid returns whether the Config has valid fields.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	for _, name := range append(append([]ConditionName(nil), c.Conditions.Import...), c.Conditions.Require...) {
		if valid, fieldErrs := name.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	if valid, fieldErrs := c.Resolution.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if c.ManifestCacheSize < 1 {
		errs = append(errs, fmt.Errorf("manifest_cache_size must be at least 1, got %d", c.ManifestCacheSize))
	}
	if valid, fieldErrs := c.Hooks.Order.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Interop.RequireStatic.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Fetch.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.UI.ColorScheme.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// IsValid returns whether the ResolutionConfig has valid fields. Empty lists
// are invalid because nothing could be probed.
func (c ResolutionConfig) IsValid() (bool, []error) {
	var errs []error
	if len(c.Extensions) == 0 {
		errs = append(errs, errors.New("resolution.extensions must not be empty"))
	}
	for _, ext := range c.Extensions {
		if valid, fieldErrs := ext.IsValid(); !valid {
			errs = append(errs, fieldErrs...)
		}
	}
	if len(c.IndexFiles) == 0 {
		errs = append(errs, errors.New("resolution.index_files must not be empty"))
	}
	if strings.TrimSpace(c.ModulesDir) == "" {
		errs = append(errs, errors.New("resolution.modules_dir must not be empty"))
	}
	if strings.TrimSpace(c.ManifestName) == "" || strings.ContainsAny(c.ManifestName, `/\`) {
		errs = append(errs, fmt.Errorf("resolution.manifest_name %q must be a plain file name", c.ManifestName))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidResolutionConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidResolutionConfigError.
func (e *InvalidResolutionConfigError) Error() string {
	return fmt.Sprintf("invalid resolution config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidResolutionConfig for errors.Is() compatibility.
func (e *InvalidResolutionConfigError) Unwrap() error { return ErrInvalidResolutionConfig }

// IsValid returns whether the FetchConfig has valid fields.
func (c FetchConfig) IsValid() (bool, []error) {
	var errs []error
	if c.HTTP.RetryMax < 0 {
		errs = append(errs, fmt.Errorf("fetch.http.retry_max must not be negative, got %d", c.HTTP.RetryMax))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch.http.timeout must be positive, got %s", c.HTTP.Timeout))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidFetchConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidFetchConfigError.
func (e *InvalidFetchConfigError) Error() string {
	return fmt.Sprintf("invalid fetch config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidFetchConfig for errors.Is() compatibility.
func (e *InvalidFetchConfigError) Unwrap() error { return ErrInvalidFetchConfig }

// String returns the string representation of the HookOrder.
func (o HookOrder) String() string { return string(o) }

// IsValid returns whether the HookOrder is "first" or "last".
func (o HookOrder) IsValid() (bool, []error) {
	switch o {
	case HookOrderFirst, HookOrderLast:
		return true, nil
	default:
		return false, []error{&InvalidHookOrderError{Value: o}}
	}
}

// Error implements the error interface for InvalidHookOrderError.
func (e *InvalidHookOrderError) Error() string {
	return fmt.Sprintf("invalid hook order %q (valid: first, last)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidHookOrderError) Unwrap() error { return ErrInvalidHookOrder }

// String returns the string representation of the InteropMode.
func (m InteropMode) String() string { return string(m) }

// IsValid returns whether the InteropMode is "force" or "deny".
func (m InteropMode) IsValid() (bool, []error) {
	switch m {
	case InteropForce, InteropDeny:
		return true, nil
	default:
		return false, []error{&InvalidInteropModeError{Value: m}}
	}
}

// Error implements the error interface for InvalidInteropModeError.
func (e *InvalidInteropModeError) Error() string {
	return fmt.Sprintf("invalid interop mode %q (valid: force, deny)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidInteropModeError) Unwrap() error { return ErrInvalidInteropMode }

// String returns the string representation of the ColorScheme.
func (cs ColorScheme) String() string { return string(cs) }

// IsValid returns whether the ColorScheme is one of the defined color schemes.
func (cs ColorScheme) IsValid() (bool, []error) {
	switch cs {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidColorSchemeError{Value: cs}}
	}
}

// Error implements the error interface for InvalidColorSchemeError.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error { return ErrInvalidColorScheme }

// String returns the string representation of the ConditionName.
func (n ConditionName) String() string { return string(n) }

// IsValid returns whether the ConditionName is non-empty and has no whitespace
// or commas.
func (n ConditionName) IsValid() (bool, []error) {
	if n == "" || strings.ContainsAny(string(n), " \t\r\n,") {
		return false, []error{&InvalidConditionError{Value: n}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConditionError.
func (e *InvalidConditionError) Error() string {
	return fmt.Sprintf("invalid condition name %q", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidConditionError) Unwrap() error { return ErrInvalidCondition }

// String returns the string representation of the Extension.
func (x Extension) String() string { return string(x) }

// IsValid returns whether the Extension is a dot followed by at least one
// character and no path separators.
func (x Extension) IsValid() (bool, []error) {
	if len(x) < 2 || x[0] != '.' || strings.ContainsAny(string(x[1:]), `./\ `) {
		return false, []error{&InvalidExtensionError{Value: x}}
	}
	return true, nil
}

// Error implements the error interface for InvalidExtensionError.
func (e *InvalidExtensionError) Error() string {
	return fmt.Sprintf("invalid extension %q (must look like \".js\")", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidExtensionError) Unwrap() error { return ErrInvalidExtension }

// Strings converts condition names for the resolver.
func Strings(names []ConditionName) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}

// ExtensionStrings converts extensions for the resolver.
func ExtensionStrings(exts []Extension) []string {
	out := make([]string, len(exts))
	for i, x := range exts {
		out[i] = string(x)
	}
	return out
}

func extensions(exts []string) []Extension {
	out := make([]Extension, len(exts))
	for i, x := range exts {
		out[i] = Extension(x)
	}
	return out
}
