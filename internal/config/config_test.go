// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/invowk/modload/internal/issue"
	"github.com/invowk/modload/internal/testutil"
)

func writeConfigFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Hooks.Order != HookOrderFirst {
		t.Errorf("Hooks.Order = %s, want first", cfg.Hooks.Order)
	}
	if cfg.Interop.RequireStatic != InteropForce {
		t.Errorf("Interop.RequireStatic = %s, want force", cfg.Interop.RequireStatic)
	}
	if cfg.Fetch.HTTP.Enabled {
		t.Error("Fetch.HTTP.Enabled should default to false")
	}
	if diff := cmp.Diff([]ConditionName{"import"}, cfg.Conditions.Import); diff != "" {
		t.Errorf("Conditions.Import mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]ConditionName{"require"}, cfg.Conditions.Require); diff != "" {
		t.Errorf("Conditions.Require mismatch (-want +got):\n%s", diff)
	}
	if valid, errs := cfg.IsValid(); !valid {
		t.Errorf("default config is invalid: %v", errs)
	}

	// Callers may mutate the result.
	cfg.Resolution.IndexFiles[0] = "main"
	if DefaultConfig().Resolution.IndexFiles[0] != "index" {
		t.Error("DefaultConfig shares its IndexFiles slice")
	}
}

func TestLoad_DefaultsWhenNoConfigFile(t *testing.T) {
	t.Parallel()

	cfg, path, err := LoadWithPath(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("LoadWithPath() returned error: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty", path)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	want := writeConfigFile(t, dir, `
interop: require_static: "deny"
conditions: import: ["import", "lua"]
fetch: http: timeout: "5s"
`)

	cfg, path, err := LoadWithPath(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("LoadWithPath() returned error: %v", err)
	}
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	expected := DefaultConfig()
	expected.Interop.RequireStatic = InteropDeny
	expected.Conditions.Import = []ConditionName{"import", "lua"}
	expected.Fetch.HTTP.Timeout = 5 * time.Second
	if diff := cmp.Diff(expected, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_CustomPath(t *testing.T) {
	t.Parallel()

	customPath := filepath.Join(t.TempDir(), "custom.cue")
	if err := os.WriteFile(customPath, []byte(`hooks: order: "last"`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: customPath})
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Hooks.Order != HookOrderLast {
		t.Errorf("Hooks.Order = %s, want last", cfg.Hooks.Order)
	}
}

func TestLoad_CustomPathNotFound(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "missing.cue")
	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: missing})
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}

	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("error %T is not *issue.ActionableError", err)
	}
	if ae.Operation != "load configuration" || ae.Resource != missing {
		t.Errorf("Operation, Resource = %q, %q", ae.Operation, ae.Resource)
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("error = %v, want 'config file not found'", err)
	}
	if !ae.HasSuggestions() {
		t.Error("expected suggestions")
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"syntax error", `this is not valid CUE {{{{`},
		{"wrong type", `manifest_cache_size: "large"`},
		{"unknown value", `hooks: order: "middle"`},
		{"unknown key", `container_engine: "docker"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			path := writeConfigFile(t, dir, tt.content)
			_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: dir})
			if err == nil {
				t.Fatal("expected an error")
			}
			var ae *issue.ActionableError
			if !errors.As(err, &ae) {
				t.Fatalf("error %T is not *issue.ActionableError", err)
			}
			if ae.Resource != path {
				t.Errorf("Resource = %q, want %q", ae.Resource, path)
			}
		})
	}
}

func TestLoad_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewProvider().Load(ctx, LoadOptions{ConfigDirPath: t.TempDir()}); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

// The environment tests mutate process state and must not run in parallel.

func TestLoad_EnvironmentOverrides(t *testing.T) {
	defer testutil.MustSetenv(t, EnvPrefix+"_INTEROP_REQUIRE_STATIC", "deny")()
	defer testutil.MustSetenv(t, EnvPrefix+"_FETCH_HTTP_ENABLED", "true")()
	defer testutil.MustSetenv(t, EnvPrefix+"_MANIFEST_CACHE_SIZE", "16")()

	dir := t.TempDir()
	writeConfigFile(t, dir, `interop: require_static: "force"`)

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Interop.RequireStatic != InteropDeny {
		t.Errorf("Interop.RequireStatic = %s, want deny", cfg.Interop.RequireStatic)
	}
	if !cfg.Fetch.HTTP.Enabled {
		t.Error("Fetch.HTTP.Enabled = false, want true")
	}
	if cfg.ManifestCacheSize != 16 {
		t.Errorf("ManifestCacheSize = %d, want 16", cfg.ManifestCacheSize)
	}
}

func TestLoad_InvalidEnvironmentOverride(t *testing.T) {
	defer testutil.MustSetenv(t, EnvPrefix+"_HOOKS_ORDER", "middle")()

	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Load() error = %v, want ErrInvalidConfig", err)
	}
	var cfgErr *InvalidConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error %T does not carry *InvalidConfigError", err)
	}
	found := false
	for _, fieldErr := range cfgErr.FieldErrors {
		found = found || errors.Is(fieldErr, ErrInvalidHookOrder)
	}
	if !found {
		t.Errorf("field errors %v do not include ErrInvalidHookOrder", cfgErr.FieldErrors)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	want := DefaultConfig()
	want.Conditions.Require = []ConditionName{"require", "lua"}
	want.Resolution.Extensions = []Extension{".lua", ".json"}
	want.Resolution.IndexFiles = []string{"init", "index"}
	want.Resolution.PreserveSymlinks = true
	want.ManifestCacheSize = 64
	want.Hooks.Order = HookOrderLast
	want.Interop.RequireStatic = InteropDeny
	want.Fetch.HTTP = HTTPConfig{Enabled: true, RetryMax: 5, Timeout: 90 * time.Second}
	want.UI = UIConfig{ColorScheme: ColorSchemeDark, Verbose: true}

	if err := Save(dir, want); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}
	got, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), AppName)
	path, written, err := CreateDefaultConfig(dir)
	if err != nil {
		t.Fatalf("CreateDefaultConfig() returned error: %v", err)
	}
	if !written {
		t.Error("first call should write the file")
	}
	if want := filepath.Join(dir, "config.cue"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	if !strings.Contains(string(content), `require_static: "force"`) {
		t.Errorf("generated config lacks the interop default:\n%s", content)
	}

	_, written, err = CreateDefaultConfig(dir)
	if err != nil {
		t.Fatalf("second CreateDefaultConfig() returned error: %v", err)
	}
	if written {
		t.Error("second call should keep the existing file")
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("override", func(t *testing.T) {
		override := t.TempDir()
		SetConfigDirOverride(override)
		defer Reset()

		dir, err := ConfigDir()
		if err != nil {
			t.Fatal(err)
		}
		if dir != override {
			t.Errorf("ConfigDir() = %q, want %q", dir, override)
		}
	})

	t.Run("xdg", func(t *testing.T) {
		if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
			t.Skip("XDG_CONFIG_HOME only applies on Unix-like systems other than macOS")
		}
		xdg := t.TempDir()
		defer testutil.MustSetenv(t, "XDG_CONFIG_HOME", xdg)()

		dir, err := ConfigDir()
		if err != nil {
			t.Fatal(err)
		}
		if want := filepath.Join(xdg, AppName); dir != want {
			t.Errorf("ConfigDir() = %q, want %q", dir, want)
		}
	})

	t.Run("home fallback", func(t *testing.T) {
		if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
			t.Skip("~/.config fallback only applies on Unix-like systems other than macOS")
		}
		home := t.TempDir()
		defer testutil.SetHomeDir(t, home)()
		defer testutil.MustUnsetenv(t, "XDG_CONFIG_HOME")()

		dir, err := ConfigDir()
		if err != nil {
			t.Fatal(err)
		}
		if want := filepath.Join(home, ".config", AppName); dir != want {
			t.Errorf("ConfigDir() = %q, want %q", dir, want)
		}
	})

	t.Run("file path", func(t *testing.T) {
		path, err := ConfigFilePath("/etc/modload")
		if err != nil {
			t.Fatal(err)
		}
		if want := filepath.Join("/etc/modload", "config.cue"); path != want {
			t.Errorf("ConfigFilePath() = %q, want %q", path, want)
		}
	})
}
