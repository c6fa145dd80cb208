// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"slices"
	"strings"
	"testing"

	"cuelang.org/go/cue"
)

const testSchema = `
#Doc: {
	name?: string
	type?: "module" | "commonjs" | string
	exports?: _
	...
}
`

func TestValidateJSON_PreservesFieldOrder(t *testing.T) {
	t.Parallel()

	data := []byte(`{"name": "pkg", "exports": {"./z": "./z.js", "./a": "./a.js", "./m": "./m.js"}}`)
	v, err := ValidateJSON([]byte(testSchema), data, "#Doc", WithFilename("package.json"))
	if err != nil {
		t.Fatalf("ValidateJSON() error = %v", err)
	}

	fields, err := Fields(v.LookupPath(cue.ParsePath("exports")))
	if err != nil {
		t.Fatalf("Fields() error = %v", err)
	}
	var labels []string
	for _, f := range fields {
		labels = append(labels, f.Label)
	}
	if want := []string{"./z", "./a", "./m"}; !slices.Equal(labels, want) {
		t.Errorf("labels = %v, want %v", labels, want)
	}
}

func TestValidateJSON_SchemaViolation(t *testing.T) {
	t.Parallel()

	_, err := ValidateJSON([]byte(testSchema), []byte(`{"name": 42}`), "#Doc", WithFilename("package.json"))
	if err == nil {
		t.Fatal("expected schema violation")
	}
	if !strings.Contains(err.Error(), "package.json") || !strings.Contains(err.Error(), "name") {
		t.Errorf("error should name file and field, got: %v", err)
	}
}

func TestValidateJSON_SyntaxError(t *testing.T) {
	t.Parallel()

	_, err := ValidateJSON([]byte(testSchema), []byte(`{"name": `), "#Doc", WithFilename("broken.json"))
	if err == nil {
		t.Fatal("expected syntax error")
	}
	if !strings.Contains(err.Error(), "broken.json") {
		t.Errorf("error should name the file, got: %v", err)
	}
}

func TestValidateJSON_FileTooLarge(t *testing.T) {
	t.Parallel()

	_, err := ValidateJSON([]byte(testSchema), []byte(`{"name": "x"}`), "#Doc", WithMaxFileSize(4))
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestCompileJSON_ToGo(t *testing.T) {
	t.Parallel()

	v, err := CompileJSON([]byte(`{"b": 1, "a": [true, null, "x"], "c": {"d": 2.5}}`))
	if err != nil {
		t.Fatalf("CompileJSON() error = %v", err)
	}
	g, err := ToGo(v)
	if err != nil {
		t.Fatalf("ToGo() error = %v", err)
	}
	m, ok := g.(*OrderedMap)
	if !ok {
		t.Fatalf("ToGo() = %T, want *OrderedMap", g)
	}
	if want := []string{"b", "a", "c"}; !slices.Equal(m.Keys(), want) {
		t.Errorf("Keys() = %v, want %v", m.Keys(), want)
	}
	if b, _ := m.Get("b"); b != float64(1) {
		t.Errorf("b = %#v, want 1", b)
	}
	a, _ := m.Get("a")
	list, ok := a.([]any)
	if !ok || len(list) != 3 || list[0] != true || list[1] != nil || list[2] != "x" {
		t.Errorf("a = %#v", a)
	}
	c, _ := m.Get("c")
	if d, _ := c.(*OrderedMap).Get("d"); d != 2.5 {
		t.Errorf("c.d = %#v, want 2.5", d)
	}
}

type decodeTarget struct {
	Name string `json:"name"`
}

func TestDecode(t *testing.T) {
	t.Parallel()

	res, err := Decode[decodeTarget]([]byte(testSchema), []byte(`name: "cfg"`), "#Doc", WithConcrete(false))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if res.Value.Name != "cfg" {
		t.Errorf("Name = %q, want cfg", res.Value.Name)
	}
}
