// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers for tests that handle errors appropriately,
// reducing boilerplate and ensuring consistent error handling.
//
// Common helpers include environment variable management (MustSetenv, SetHomeDir),
// in-memory fixture trees (MemFS, MustWriteFiles) and a scripted compile/execute
// collaborator (FakeEngine) that lets evaluator tests run module bodies written in Go.
package testutil
