// Package config holds the structured configuration model and the codec
// that moves it between YAML text and typed values.
//
// # Overview
//
// A configdesk document has two forms: the raw YAML text a user edits and
// the typed Config it decodes to. This package converts between them and
// reports why a text does not produce a Config.
//
// # Components
//
// Parse: syntax check only. Malformed YAML yields a *ParseError carrying the
// line the parser stopped at. Streams with more than one document are
// rejected.
//
// Decode: Parse followed by a walk of the YAML tree alongside a schema.Node.
// Unknown keys, duplicate keys, missing fields and primitive type
// mismatches are collected together with the value constraints enforced by
// Validate into one *ValidationError.
//
// Validate: value constraints on an already typed Config (port range, log
// level membership, non-empty strings), implemented with
// go-playground/validator.
//
// Serialize: deterministic YAML with two-space indentation and keys in the
// schema's declaration order.
//
// # Usage Example
//
//	cfg, err := config.Decode(text, schema.Default())
//	switch {
//	case config.IsParseError(err):
//	    // keep the last good config, show the syntax error
//	case config.IsValidationError(err):
//	    // show each FieldError next to its path
//	case err == nil:
//	    out, _ := config.Serialize(cfg, schema.Default())
//	    fmt.Print(out)
//	}
package config
