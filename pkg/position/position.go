// Package position maps a cursor location in raw YAML text to the structural
// path it is logically inside and to the token being typed there.
//
// Resolution is line and indentation based: the markup is whitespace
// structured key/value text, so the nesting chain is rebuilt by scanning
// upward for lines with strictly smaller indentation. The resolver never
// fails. Invalid intermediate states (half-typed keys, stray tabs, misaligned
// indentation) degrade to a best-effort context flagged as Ambiguous.
package position

import (
	"fmt"

	"github.com/configdesk/configdesk/pkg/schema"
)

// TokenKind classifies what is being typed at the cursor.
type TokenKind int

const (
	// KeyToken means the cursor is typing a key name.
	KeyToken TokenKind = iota
	// ValueToken means the cursor is typing the value of a known key.
	ValueToken
)

// String returns "key" or "value".
func (k TokenKind) String() string {
	if k == ValueToken {
		return "value"
	}
	return "key"
}

// MarshalText encodes the kind as its string form.
func (k TokenKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes "key" or "value".
func (k *TokenKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "key":
		*k = KeyToken
	case "value":
		*k = ValueToken
	default:
		return fmt.Errorf("unknown token kind %q", text)
	}
	return nil
}

// Range is a span of columns on a single line. Columns are 0-based rune
// offsets; EndColumn is exclusive.
type Range struct {
	Line        int `json:"line"`
	StartColumn int `json:"start_column"`
	EndColumn   int `json:"end_column"`
}

// Empty reports whether the range covers no characters.
func (r Range) Empty() bool {
	return r.StartColumn >= r.EndColumn
}

// CursorContext is the result of resolving a cursor location.
type CursorContext struct {
	// Path locates the node the cursor is inside. For a ValueToken it
	// includes the key whose value is being typed.
	Path schema.Path `json:"path"`

	// TokenKind is KeyToken or ValueToken.
	TokenKind TokenKind `json:"token_kind"`

	// PartialText is the already-typed text a suggestion will replace.
	PartialText string `json:"partial_text"`

	// ReplaceRange spans PartialText on the cursor's line. It never
	// includes indentation or the key separator.
	ReplaceRange Range `json:"replace_range"`

	// Indent is the indentation width the cursor's key sits at.
	Indent int `json:"indent"`

	// SiblingKeys lists keys already present at the cursor's nesting level
	// under the same parent, excluding the cursor's own line. Set for
	// KeyToken contexts only.
	SiblingKeys []string `json:"sibling_keys,omitempty"`

	// Ambiguous is set when the location did not map cleanly to a path and
	// a best-effort fallback was used.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

// HasSibling reports whether name is already present as a sibling key.
func (c CursorContext) HasSibling(name string) bool {
	for _, k := range c.SiblingKeys {
		if k == name {
			return true
		}
	}
	return false
}
