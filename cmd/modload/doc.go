// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for modload.
//
// This package implements the Cobra command hierarchy for the modload CLI: resolving
// specifiers, running entry modules with the Lua engine, printing linked dependency
// graphs, explaining error codes and managing the configuration file.
package cmd
