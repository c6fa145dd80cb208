// SPDX-License-Identifier: MPL-2.0

package config

// configDirOverride allows tests to override the config directory, because
// os.UserHomeDir() does not reliably respect HOME on every platform.
var configDirOverride string

// Reset clears test overrides.
func Reset() {
	configDirOverride = ""
}

// SetConfigDirOverride sets a custom config directory path. It is intended for tests.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}
