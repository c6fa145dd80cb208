// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ConditionDefault always matches in conditional export maps.
const ConditionDefault = "default"

// ErrInvalidConditions is the sentinel error wrapped by InvalidConditionsError.
var ErrInvalidConditions = errors.New("invalid condition set")

type (
	// Conditions is the caller-supplied ordered set of condition names matched
	// against conditional export/import maps ("import", "require", "node", ...).
	Conditions []string

	// InvalidConditionsError is returned when a condition set has empty or
	// duplicated names.
	InvalidConditionsError struct {
		Value  Conditions
		Reason string
	}
)

// NewConditions builds a condition set from names, dropping duplicates.
func NewConditions(names ...string) Conditions {
	out := make(Conditions, 0, len(names))
	for _, n := range names {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

// Matches reports whether a condition key in a manifest applies to this set.
// "default" always matches.
func (c Conditions) Matches(key string) bool {
	return key == ConditionDefault || slices.Contains(c, key)
}

// With returns a copy of c with name appended when missing.
func (c Conditions) With(name string) Conditions {
	if slices.Contains(c, name) {
		return c
	}
	return append(slices.Clone(c), name)
}

// String joins the names with commas.
func (c Conditions) String() string { return strings.Join(c, ",") }

// IsValid returns whether every name is non-empty and unique.
func (c Conditions) IsValid() (bool, []error) {
	var errs []error
	seen := make(map[string]bool, len(c))
	for _, n := range c {
		switch {
		case strings.TrimSpace(n) == "":
			errs = append(errs, &InvalidConditionsError{Value: c, Reason: "empty condition name"})
		case seen[n]:
			errs = append(errs, &InvalidConditionsError{Value: c, Reason: fmt.Sprintf("duplicate condition %q", n)})
		}
		seen[n] = true
	}
	return len(errs) == 0, errs
}

// Error implements the error interface for InvalidConditionsError.
func (e *InvalidConditionsError) Error() string {
	return fmt.Sprintf("invalid condition set [%s]: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidConditions for errors.Is() compatibility.
func (e *InvalidConditionsError) Unwrap() error { return ErrInvalidConditions }
