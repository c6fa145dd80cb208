// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// These tests keep the Go struct JSON tags and the CUE schema field names
// aligned, so a renamed key cannot be silently ignored.

// extractCUEFields returns the top-level field names of a CUE struct definition.
func extractCUEFields(t *testing.T, val cue.Value) []string {
	t.Helper()

	iter, err := val.Fields(cue.Definitions(false), cue.Optional(true))
	if err != nil {
		t.Fatalf("failed to iterate CUE fields: %v", err)
	}

	var fields []string
	for iter.Next() {
		sel := iter.Selector()
		if sel.LabelType().IsHidden() || sel.IsDefinition() {
			continue
		}
		fields = append(fields, strings.TrimSuffix(sel.String(), "?"))
	}
	slices.Sort(fields)
	return fields
}

// extractGoJSONTags returns the JSON names of the exported fields of a struct type.
func extractGoJSONTags(t *testing.T, typ reflect.Type) []string {
	t.Helper()

	if typ.Kind() != reflect.Struct {
		t.Fatalf("expected struct type, got %s", typ.Kind())
	}

	var fields []string
	for i := range typ.NumField() {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		fields = append(fields, name)
	}
	slices.Sort(fields)
	return fields
}

func compileSchema(t *testing.T) cue.Value {
	t.Helper()

	schema := cuecontext.New().CompileString(configSchema)
	if schema.Err() != nil {
		t.Fatalf("failed to compile CUE schema: %v", schema.Err())
	}
	return schema
}

func TestSchemaSync(t *testing.T) {
	t.Parallel()

	schema := compileSchema(t)
	tests := []struct {
		definition string
		typ        reflect.Type
	}{
		{"#Config", reflect.TypeFor[Config]()},
		{"#Conditions", reflect.TypeFor[ConditionsConfig]()},
		{"#Resolution", reflect.TypeFor[ResolutionConfig]()},
		{"#Hooks", reflect.TypeFor[HooksConfig]()},
		{"#Interop", reflect.TypeFor[InteropConfig]()},
		{"#Fetch", reflect.TypeFor[FetchConfig]()},
		{"#HTTP", reflect.TypeFor[HTTPConfig]()},
		{"#UI", reflect.TypeFor[UIConfig]()},
	}

	for _, tt := range tests {
		t.Run(tt.definition, func(t *testing.T) {
			t.Parallel()

			def := schema.LookupPath(cue.ParsePath(tt.definition))
			if def.Err() != nil {
				t.Fatalf("failed to lookup %s: %v", tt.definition, def.Err())
			}
			cueFields := extractCUEFields(t, def)
			goFields := extractGoJSONTags(t, tt.typ)
			if !slices.Equal(cueFields, goFields) {
				t.Errorf("%s fields %v do not match %s JSON tags %v", tt.definition, cueFields, tt.typ.Name(), goFields)
			}
		})
	}
}

// validateCUE validates a CUE document against #Config.
func validateCUE(t *testing.T, cueData string) error {
	t.Helper()

	ctx := cuecontext.New()
	schemaValue := ctx.CompileString(configSchema)
	userValue := ctx.CompileString(cueData)
	if userValue.Err() != nil {
		return fmt.Errorf("CUE compile error: %w", userValue.Err())
	}

	unified := schemaValue.LookupPath(cue.ParsePath("#Config")).Unify(userValue)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("CUE validation error: %w", err)
	}
	return nil
}

func TestSchemaConstraints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"empty document", ``, false},
		{"conditions", `conditions: import: ["import", "production"]`, false},
		{"condition with space", `conditions: import: ["a b"]`, true},
		{"condition with comma", `conditions: require: ["a,b"]`, true},
		{"extensions", `resolution: extensions: [".lua", ".js"]`, false},
		{"extension without dot", `resolution: extensions: ["lua"]`, true},
		{"empty index file", `resolution: index_files: [""]`, true},
		{"manifest name with slash", `resolution: manifest_name: "a/package.json"`, true},
		{"cache size zero", `manifest_cache_size: 0`, true},
		{"hook order", `hooks: order: "last"`, false},
		{"unknown hook order", `hooks: order: "middle"`, true},
		{"interop deny", `interop: require_static: "deny"`, false},
		{"unknown interop", `interop: require_static: "maybe"`, true},
		{"timeout", `fetch: http: timeout: "1m30s"`, false},
		{"timeout without unit", `fetch: http: timeout: "30"`, true},
		{"negative retries", `fetch: http: retry_max: -1`, true},
		{"unknown top-level key", `container_engine: "docker"`, true},
		{"unknown nested key", `ui: interactive: true`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validateCUE(t, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateCUE(%q) error = %v, wantErr %v", tt.data, err, tt.wantErr)
			}
		})
	}
}

func TestGeneratedDefaultsValidate(t *testing.T) {
	t.Parallel()

	if err := validateCUE(t, GenerateCUE(DefaultConfig())); err != nil {
		t.Errorf("generated default config does not validate: %v", err)
	}
}
