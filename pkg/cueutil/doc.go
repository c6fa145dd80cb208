// SPDX-License-Identifier: MPL-2.0

// Package cueutil provides the CUE decoding used by package manifests, JSON modules
// and the configuration file.
//
// Manifests and JSON modules are JSON documents; they are extracted with CUE's JSON
// encoder so that syntax errors carry positions, then unified with an embedded schema:
//
//  1. Compile the embedded schema
//  2. Extract the JSON document and unify it with the schema definition
//  3. Validate and hand back the unified value (field order preserved)
//
// # Usage
//
//	//go:embed manifest_schema.cue
//	var schemaBytes []byte
//
//	v, err := cueutil.ValidateJSON(schemaBytes, data, "#Manifest",
//	    cueutil.WithFilename("/app/package.json"))
//	if err != nil {
//	    return nil, err // error carries the CUE path of the offending field
//	}
//
// Ordered traversal helpers ([Fields], [Elements]) keep the declaration order of
// objects, which matters for conditional export maps.
package cueutil
