// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	// ErrInvalidWatchConfig is the sentinel error wrapped by InvalidWatchConfigError.
	ErrInvalidWatchConfig = errors.New("invalid watch configuration")

	// ErrInvalidPattern is the sentinel error wrapped by InvalidPatternError.
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

type (
	// InvalidWatchConfigError collects the field errors of a Config.
	InvalidWatchConfigError struct {
		FieldErrors []error
	}

	// InvalidPatternError reports a glob doublestar cannot parse.
	InvalidPatternError struct {
		// Field is "watch" or "ignore".
		Field   string
		Pattern string
		Err     error
	}
)

// IsValid checks every watch and ignore pattern.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	errs = append(errs, checkPatterns("watch", c.Patterns)...)
	errs = append(errs, checkPatterns("ignore", c.Ignore)...)
	if c.Debounce < 0 {
		errs = append(errs, fmt.Errorf("debounce %s is negative", c.Debounce))
	}
	return len(errs) == 0, errs
}

func checkPatterns(field string, patterns []string) []error {
	var errs []error
	for _, pat := range patterns {
		if pat == "" || !doublestar.ValidatePattern(pat) {
			errs = append(errs, &InvalidPatternError{Field: field, Pattern: pat, Err: doublestar.ErrBadPattern})
		}
	}
	return errs
}

func (e *InvalidWatchConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidWatchConfig, strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidWatchConfig and the field errors.
func (e *InvalidWatchConfigError) Unwrap() []error {
	return append([]error{ErrInvalidWatchConfig}, e.FieldErrors...)
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid %s pattern %q: %v", e.Field, e.Pattern, e.Err)
}

// Unwrap returns ErrInvalidPattern.
func (e *InvalidPatternError) Unwrap() error { return ErrInvalidPattern }
