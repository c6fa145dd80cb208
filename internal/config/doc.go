// SPDX-License-Identifier: MPL-2.0

// Package config loads the modload configuration.
//
// Configuration is read from config.cue in the user configuration directory
// (~/.config/modload on Linux, ~/Library/Application Support/modload on macOS,
// %APPDATA%\modload on Windows) or from the current directory, validated against
// the embedded #Config schema and layered over the defaults with Viper.
// Environment variables prefixed with MODLOAD_ override file values, with "."
// in keys replaced by "_" (MODLOAD_INTEROP_REQUIRE_STATIC=deny).
package config
