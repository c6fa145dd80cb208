// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/invowk/modload/pkg/moderr"
)

type (
	// ActionableError is a user-facing error: what operation failed, on what
	// resource, the stable code of the underlying failure and hints to fix it.
	//
	//	err := issue.NewErrorContext().
	//		WithOperation("run module").
	//		WithResource("./main.lua").
	//		Wrap(cause).
	//		BuildError()
	ActionableError struct {
		// Operation is a verb phrase, e.g. "resolve specifier" or "run module".
		Operation string

		// Resource identifies the file, URL or specifier involved (optional).
		Resource string

		// Code is the stable error code of Cause, if it has one.
		Code string

		// Suggestions are one-line hints printed under the message (optional).
		Suggestions []string

		// Cause is the underlying error (optional).
		Cause error
	}

	// ErrorContext is a builder for ActionableError.
	ErrorContext struct {
		operation   string
		resource    string
		suggestions []string
		cause       error
	}
)

// NewErrorContext creates a new ErrorContext builder.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// Wrap turns err into an ActionableError for operation on resource. The error code
// and the catalog suggestions of err are filled in. A nil err returns nil.
func Wrap(err error, operation, resource string) error {
	if err == nil {
		return nil
	}
	var ae *ActionableError
	if errors.As(err, &ae) {
		return err
	}
	return NewErrorContext().WithOperation(operation).WithResource(resource).Wrap(err).BuildError()
}

// Error returns "failed to <operation>: <resource>: <cause>".
func (e *ActionableError) Error() string {
	var msg strings.Builder

	msg.WriteString("failed to ")
	msg.WriteString(e.Operation)

	if e.Resource != "" {
		msg.WriteString(": ")
		msg.WriteString(e.Resource)
	}

	if e.Cause != nil {
		msg.WriteString(": ")
		msg.WriteString(e.Cause.Error())
	}

	return msg.String()
}

// Unwrap returns the underlying cause error for use with errors.Is/As.
func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// Format returns the message followed by the code, the suggestions and, when
// verbose, the error chain:
//
//	failed to <operation>: <resource>: <cause message>
//	  code: ERR_...  (see 'modload explain ERR_...')
//	  • <suggestion 1>
func (e *ActionableError) Format(verbose bool) string {
	var msg strings.Builder

	msg.WriteString(e.Error())

	if e.Code != "" {
		fmt.Fprintf(&msg, "\n  code: %s (see 'modload explain %s')", e.Code, e.Code)
	}
	if len(e.Suggestions) > 0 {
		msg.WriteString("\n")
		for _, suggestion := range e.Suggestions {
			msg.WriteString("\n  • ")
			msg.WriteString(suggestion)
		}
	}

	if verbose && e.Cause != nil {
		msg.WriteString("\n\nError chain:")
		err := e.Cause
		depth := 1
		for err != nil {
			fmt.Fprintf(&msg, "\n  %d. %s", depth, err.Error())
			err = errors.Unwrap(err)
			depth++
		}
		var evalErr *moderr.EvaluationError
		if errors.As(e.Cause, &evalErr) && len(evalErr.Referrers) > 0 {
			msg.WriteString("\n\nImported from:")
			for i := len(evalErr.Referrers) - 1; i >= 0; i-- {
				msg.WriteString("\n  ")
				msg.WriteString(evalErr.Referrers[i])
			}
		}
	}

	return msg.String()
}

// HasSuggestions returns true if the error has any suggestions.
func (e *ActionableError) HasSuggestions() bool {
	return len(e.Suggestions) > 0
}

func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.operation = op
	return c
}

func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.resource = res
	return c
}

// WithSuggestion adds a suggestion. It can be called repeatedly.
func (c *ErrorContext) WithSuggestion(sug string) *ErrorContext {
	c.suggestions = append(c.suggestions, sug)
	return c
}

func (c *ErrorContext) WithSuggestions(sugs ...string) *ErrorContext {
	c.suggestions = append(c.suggestions, sugs...)
	return c
}

// Wrap sets the underlying cause.
func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.cause = err
	return c
}

// Build creates an ActionableError from the context. The code of the cause and
// the catalog suggestions for it are added after explicit suggestions. It
// returns nil if no operation is set.
func (c *ErrorContext) Build() *ActionableError {
	if c.operation == "" {
		return nil
	}

	ae := &ActionableError{
		Operation:   c.operation,
		Resource:    c.resource,
		Suggestions: c.suggestions,
		Cause:       c.cause,
	}
	if ae.Code = moderr.CodeOf(c.cause); ae.Code != "" {
		if entry := ForCode(ae.Code); entry != nil {
			for _, sug := range entry.suggestions {
				if !slices.Contains(ae.Suggestions, sug) {
					ae.Suggestions = append(ae.Suggestions, sug)
				}
			}
		}
	}
	return ae
}

// BuildError is Build returned as an error, nil when no operation is set.
func (c *ErrorContext) BuildError() error {
	ae := c.Build()
	if ae == nil {
		return nil
	}
	return ae
}
