// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	_ "embed"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"cuelang.org/go/cue"

	"github.com/invowk/modload/pkg/cueutil"
	"github.com/invowk/modload/pkg/moderr"
)

// DefaultFileName is the manifest file name looked up in each directory.
const DefaultFileName = "package.json"

const (
	// TypeNone means the manifest declares no (or an unknown) module type.
	TypeNone Type = "none"
	// TypeModule declares the static module format for ambiguous files.
	TypeModule Type = "module"
	// TypeCommonJS declares the dynamic module format for ambiguous files.
	TypeCommonJS Type = "commonjs"
)

const (
	// TargetNull is an explicit null: the subpath is deliberately not exported.
	TargetNull TargetKind = iota
	// TargetString is a relative path (or, in imports, a bare specifier).
	TargetString
	// TargetArray is a list of fallbacks tried in order.
	TargetArray
	// TargetConditions is an object of condition names matched in declared order.
	TargetConditions
)

//go:embed manifest_schema.cue
var schema []byte

type (
	// Type is the module type a manifest declares for its package boundary.
	Type string

	// TargetKind distinguishes the shapes an exports/imports value can take.
	TargetKind int

	// Target is one node of a conditional exports or imports tree.
	Target struct {
		Kind       TargetKind
		Value      string
		Items      []*Target
		Conditions []Entry
	}

	// Entry is a keyed target: a subpath ("./a"), an imports name ("#x") or a
	// condition name ("import", "default").
	Entry struct {
		Key    string
		Target *Target
	}

	// Manifest is a parsed package manifest.
	Manifest struct {
		// Path is the manifest file path. It is set even when the file does not exist.
		Path string
		// Dir is the package directory (the manifest's parent).
		Dir string
		// Exists is false for directories without a manifest.
		Exists bool

		Name string
		Type Type
		Main string

		// Exports is the normalized exports map keyed by subpath, with the
		// string/array/conditions "main sugar" expanded to {".": value}.
		// It is nil when the manifest has no (or a null) exports field.
		Exports []Entry
		// HasExports reports whether a non-null exports field was present.
		HasExports bool
		// Imports is the imports map keyed by "#name", nil when absent.
		Imports []Entry
	}
)

// Lookup returns the entry for key.
func Lookup(entries []Entry, key string) (*Target, bool) {
	for _, e := range entries {
		if e.Key == key {
			return e.Target, true
		}
	}
	return nil, false
}

// String renders the target compactly for error messages.
func (t *Target) String() string {
	if t == nil {
		return "null"
	}
	switch t.Kind {
	case TargetString:
		return strconv.Quote(t.Value)
	case TargetArray:
		parts := make([]string, 0, len(t.Items))
		for _, item := range t.Items {
			parts = append(parts, item.String())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TargetConditions:
		parts := make([]string, 0, len(t.Conditions))
		for _, c := range t.Conditions {
			parts = append(parts, strconv.Quote(c.Key)+": "+c.Target.String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "null"
	}
}

// Parse decodes manifest bytes read from path.
func Parse(path string, data []byte) (*Manifest, error) {
	v, err := cueutil.ValidateJSON(schema, data, "#Manifest", cueutil.WithFilename(path))
	if err != nil {
		return nil, &moderr.InvalidManifestError{Path: path, Cause: err}
	}

	m := &Manifest{Path: path, Dir: filepath.Dir(path), Exists: true, Type: TypeNone}

	fields, err := cueutil.Fields(v)
	if err != nil {
		return nil, &moderr.InvalidManifestError{Path: path, Cause: err}
	}
	for _, f := range fields {
		switch f.Label {
		case "name":
			m.Name, _ = stringValue(f.Value)
		case "main":
			m.Main, _ = stringValue(f.Value)
		case "type":
			if s, ok := stringValue(f.Value); ok && (Type(s) == TypeModule || Type(s) == TypeCommonJS) {
				m.Type = Type(s)
			}
		case "exports":
			target, err := targetFromValue(f.Value)
			if err != nil {
				return nil, &moderr.InvalidManifestError{Path: path, Reason: "exports", Cause: err}
			}
			if target.Kind == TargetNull {
				continue
			}
			m.HasExports = true
			if m.Exports, err = normalizeExports(path, target); err != nil {
				return nil, err
			}
		case "imports":
			target, err := targetFromValue(f.Value)
			if err != nil {
				return nil, &moderr.InvalidManifestError{Path: path, Reason: "imports", Cause: err}
			}
			if target.Kind == TargetConditions {
				m.Imports = target.Conditions
			}
		}
	}

	return m, nil
}

// normalizeExports expands main sugar and rejects objects mixing subpath keys with
// condition keys.
func normalizeExports(path string, target *Target) ([]Entry, error) {
	if target.Kind != TargetConditions {
		return []Entry{{Key: ".", Target: target}}, nil
	}

	subpathKeys := 0
	for _, c := range target.Conditions {
		if strings.HasPrefix(c.Key, ".") {
			subpathKeys++
		}
	}
	switch subpathKeys {
	case 0:
		if err := checkConditionKeys(path, target); err != nil {
			return nil, err
		}
		return []Entry{{Key: ".", Target: target}}, nil
	case len(target.Conditions):
		for _, c := range target.Conditions {
			if err := checkConditionKeys(path, c.Target); err != nil {
				return nil, err
			}
		}
		return target.Conditions, nil
	default:
		return nil, &moderr.InvalidManifestError{
			Path:   path,
			Reason: `"exports" cannot contain some keys starting with '.' and some not`,
		}
	}
}

// checkConditionKeys rejects numeric condition names anywhere in a target tree.
func checkConditionKeys(path string, t *Target) error {
	switch t.Kind {
	case TargetConditions:
		for _, c := range t.Conditions {
			if _, err := strconv.ParseUint(c.Key, 10, 32); err == nil {
				return &moderr.InvalidManifestError{Path: path, Reason: `"exports" cannot contain numeric property keys`}
			}
			if err := checkConditionKeys(path, c.Target); err != nil {
				return err
			}
		}
	case TargetArray:
		for _, item := range t.Items {
			if err := checkConditionKeys(path, item); err != nil {
				return err
			}
		}
	}
	return nil
}

func targetFromValue(v cue.Value) (*Target, error) {
	switch v.IncompleteKind() {
	case cue.NullKind:
		return &Target{Kind: TargetNull}, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, err
		}
		return &Target{Kind: TargetString, Value: s}, nil
	case cue.ListKind:
		elems, err := cueutil.Elements(v)
		if err != nil {
			return nil, err
		}
		t := &Target{Kind: TargetArray}
		for _, e := range elems {
			item, err := targetFromValue(e)
			if err != nil {
				return nil, err
			}
			t.Items = append(t.Items, item)
		}
		return t, nil
	case cue.StructKind:
		fields, err := cueutil.Fields(v)
		if err != nil {
			return nil, err
		}
		t := &Target{Kind: TargetConditions}
		for _, f := range fields {
			child, err := targetFromValue(f.Value)
			if err != nil {
				return nil, err
			}
			t.Conditions = append(t.Conditions, Entry{Key: f.Label, Target: child})
		}
		return t, nil
	default:
		return nil, fmt.Errorf("%s: unsupported target kind %s", v.Path(), v.IncompleteKind())
	}
}

func stringValue(v cue.Value) (string, bool) {
	if v.IncompleteKind() != cue.StringKind {
		return "", false
	}
	s, err := v.String()
	return s, err == nil
}
