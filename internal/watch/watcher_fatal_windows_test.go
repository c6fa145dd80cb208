// SPDX-License-Identifier: MPL-2.0

//go:build windows

package watch

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestIsFatalFsnotifyError(t *testing.T) {
	t.Parallel()

	fatal := map[string]error{
		"handle limit":           errnoTooManyOpenFiles,
		"invalid handle":         errnoInvalidHandle,
		"out of memory":          errnoNotEnoughMemory,
		"wrapped invalid handle": fmt.Errorf("watch C:\\app: %w", errnoInvalidHandle),
	}
	recoverable := map[string]error{
		"access denied":  syscall.Errno(5),
		"file not found": syscall.Errno(2),
		"plain error":    errors.New("event queue overflow"),
	}

	for name, err := range fatal {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if !isFatalFsnotifyError(err) {
				t.Errorf("isFatalFsnotifyError(%v) = false, want true", err)
			}
		})
	}
	for name, err := range recoverable {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if isFatalFsnotifyError(err) {
				t.Errorf("isFatalFsnotifyError(%v) = true, want false", err)
			}
		})
	}
}
