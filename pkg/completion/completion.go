// Package completion turns a resolved cursor context into ranked
// suggestions drawn from the schema.
package completion

import (
	"fmt"
	"strings"

	"github.com/configdesk/configdesk/pkg/position"
	"github.com/configdesk/configdesk/pkg/schema"
)

// ItemKind distinguishes key suggestions from value suggestions.
type ItemKind int

const (
	// KindKey suggests a key name.
	KindKey ItemKind = iota
	// KindValue suggests a literal value.
	KindValue
)

// String returns "property" or "value".
func (k ItemKind) String() string {
	if k == KindValue {
		return "value"
	}
	return "property"
}

// MarshalText encodes the kind as its string form.
func (k ItemKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes "property" or "value".
func (k *ItemKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "property":
		*k = KindKey
	case "value":
		*k = KindValue
	default:
		return fmt.Errorf("unknown completion kind %q", text)
	}
	return nil
}

// Item is a single suggestion.
type Item struct {
	Label         string         `json:"label"`
	InsertText    string         `json:"insertText"`
	Kind          ItemKind       `json:"kind"`
	Detail        string         `json:"detail,omitempty"`
	Documentation string         `json:"documentation,omitempty"`
	SortRank      int            `json:"sortRank"`
	Range         position.Range `json:"range"`

	// Snippet is an alternative insertion for section keys that also opens
	// the indented first child line. Empty for fields and values.
	Snippet string `json:"snippet,omitempty"`
}

// Generator produces suggestions from a schema. It holds no mutable state
// and is safe for concurrent use.
type Generator struct {
	root *schema.Node
}

// NewGenerator returns a Generator over root. A nil root uses schema.Default.
func NewGenerator(root *schema.Node) *Generator {
	if root == nil {
		root = schema.Default()
	}
	return &Generator{root: root}
}

// Schema returns the schema suggestions are drawn from.
func (g *Generator) Schema() *schema.Node {
	return g.root
}

// Complete returns the suggestions for cc in rank order.
//
// A path the schema does not know yields an error wrapping
// schema.ErrNotFound. A known location with nothing to offer (a free-form
// string or integer value, or every key already present) yields an empty
// slice and a nil error.
func (g *Generator) Complete(cc position.CursorContext) ([]Item, error) {
	var items []Item
	var err error
	if cc.TokenKind == position.ValueToken {
		items, err = g.values(cc)
	} else {
		items, err = g.keys(cc)
	}
	if err != nil {
		return nil, err
	}
	return filterPrefix(items, cc.PartialText), nil
}

func (g *Generator) keys(cc position.CursorContext) ([]Item, error) {
	children, err := g.root.ResolveChildren(cc.Path)
	if err != nil {
		return nil, fmt.Errorf("completing keys at %q: %w", cc.Path.String(), err)
	}

	items := make([]Item, 0, len(children))
	for i, child := range children {
		if cc.HasSibling(child.Name) {
			continue
		}
		items = append(items, Item{
			Label:         child.Name,
			InsertText:    child.Name + ": ",
			Kind:          KindKey,
			Detail:        child.Detail,
			Documentation: child.Description,
			SortRank:      i,
			Range:         cc.ReplaceRange,
			Snippet:       sectionSnippet(child, cc.Indent),
		})
	}
	return items, nil
}

// sectionSnippet leaves the cursor on the first child line of a section.
func sectionSnippet(n *schema.Node, indent int) string {
	if !n.IsSection() {
		return ""
	}
	return n.Name + ":\n" + strings.Repeat(" ", indent+2)
}

func (g *Generator) values(cc position.CursorContext) ([]Item, error) {
	node, err := g.root.ResolveNode(cc.Path)
	if err != nil {
		return nil, fmt.Errorf("completing value at %q: %w", cc.Path.String(), err)
	}

	var literals []string
	switch {
	case node.IsSection():
		return []Item{}, nil
	case node.ValueType == schema.TypeEnum:
		literals = node.EnumValues
	case node.ValueType == schema.TypeBoolean:
		literals = []string{"true", "false"}
	default:
		return []Item{}, nil
	}

	items := make([]Item, 0, len(literals))
	for i, v := range literals {
		items = append(items, Item{
			Label:         v,
			InsertText:    v,
			Kind:          KindValue,
			Detail:        node.Detail,
			Documentation: node.Description,
			SortRank:      i,
			Range:         cc.ReplaceRange,
		})
	}
	return items, nil
}

// filterPrefix keeps items whose label starts with prefix, ignoring case.
func filterPrefix(items []Item, prefix string) []Item {
	if prefix == "" {
		return items
	}
	p := strings.ToLower(prefix)
	out := items[:0]
	for _, it := range items {
		if strings.HasPrefix(strings.ToLower(it.Label), p) {
			out = append(out, it)
		}
	}
	return out
}
