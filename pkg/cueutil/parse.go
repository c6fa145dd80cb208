// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
)

// ParseResult contains the result of a successful decode.
type ParseResult[T any] struct {
	// Value is the decoded Go struct.
	Value *T

	// Unified is the unified CUE value, for callers that need ordered access to
	// fields the struct cannot represent.
	Unified cue.Value
}

// Decode compiles a CUE document, unifies it with schemaPath in schema, validates it
// and decodes the result into T.
func Decode[T any](schema, data []byte, schemaPath string, opts ...Option) (*ParseResult[T], error) {
	options := applyOptions(opts)
	if err := CheckFileSize(data, options.maxFileSize, options.name()); err != nil {
		return nil, err
	}

	ctx := cuecontext.New()
	userValue := ctx.CompileBytes(data, cue.Filename(options.name()))
	if userValue.Err() != nil {
		return nil, FormatError(userValue.Err(), options.name())
	}

	unified, err := unifyWithSchema(ctx, schema, schemaPath, userValue, options)
	if err != nil {
		return nil, err
	}

	var result T
	if err := unified.Decode(&result); err != nil {
		return nil, FormatError(err, options.name())
	}

	return &ParseResult[T]{Value: &result, Unified: unified}, nil
}

// ValidateJSON extracts a JSON document, unifies it with schemaPath in schema and
// returns the validated value. Field order of the document is preserved.
func ValidateJSON(schema, data []byte, schemaPath string, opts ...Option) (cue.Value, error) {
	options := applyOptions(opts)
	if err := CheckFileSize(data, options.maxFileSize, options.name()); err != nil {
		return cue.Value{}, err
	}

	ctx := cuecontext.New()
	userValue, err := compileJSON(ctx, data, options.name())
	if err != nil {
		return cue.Value{}, err
	}

	return unifyWithSchema(ctx, schema, schemaPath, userValue, options)
}

// CompileJSON extracts a JSON document without a schema. It is used for JSON modules,
// whose contents are arbitrary.
func CompileJSON(data []byte, opts ...Option) (cue.Value, error) {
	options := applyOptions(opts)
	if err := CheckFileSize(data, options.maxFileSize, options.name()); err != nil {
		return cue.Value{}, err
	}
	return compileJSON(cuecontext.New(), data, options.name())
}

func compileJSON(ctx *cue.Context, data []byte, filename string) (cue.Value, error) {
	expr, err := cuejson.Extract(filename, data)
	if err != nil {
		return cue.Value{}, FormatError(err, filename)
	}
	v := ctx.BuildExpr(expr)
	if v.Err() != nil {
		return cue.Value{}, FormatError(v.Err(), filename)
	}
	return v, nil
}

func unifyWithSchema(ctx *cue.Context, schema []byte, schemaPath string, userValue cue.Value, options parseOptions) (cue.Value, error) {
	schemaValue := ctx.CompileBytes(schema)
	if schemaValue.Err() != nil {
		return cue.Value{}, fmt.Errorf("internal error: failed to compile schema: %w", schemaValue.Err())
	}

	schemaRoot := schemaValue.LookupPath(cue.ParsePath(schemaPath))
	if schemaRoot.Err() != nil {
		return cue.Value{}, fmt.Errorf("internal error: schema definition %s not found: %w", schemaPath, schemaRoot.Err())
	}

	unified := schemaRoot.Unify(userValue)
	if err := unified.Validate(cue.Concrete(options.concrete)); err != nil {
		return cue.Value{}, FormatError(err, options.name())
	}
	return unified, nil
}

func applyOptions(opts []Option) parseOptions {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
