// Package schema describes the fixed shape of a configdesk document: which
// sections exist, which fields they hold, and what values those fields accept.
//
// A schema is a tree of *Node values. Sections hold ordered children, scalars
// hold a value type and, for enums, the allowed literals. Trees are built once
// and never mutated, so they are safe for concurrent use without locking.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a path does not name any schema location.
var ErrNotFound = errors.New("schema: path not found")

// Kind distinguishes sections from scalar fields.
type Kind string

const (
	KindSection Kind = "section"
	KindScalar  Kind = "scalar"
)

// ValueType is the primitive type a scalar field accepts.
type ValueType string

const (
	TypeNone    ValueType = ""
	TypeString  ValueType = "string"
	TypeInteger ValueType = "integer"
	TypeBoolean ValueType = "boolean"
	TypeEnum    ValueType = "enum"
)

// Path is an ordered sequence of key names from the document root.
// The empty path names the root.
type Path []string

// ParsePath splits a dotted path ("server.port") into a Path.
func ParsePath(s string) Path {
	if s == "" {
		return Path{}
	}
	return Path(strings.Split(s, "."))
}

// String joins the path with dots.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Append returns a new path with name appended. The receiver is not modified.
func (p Path) Append(name string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, name)
}

// Equal reports whether two paths name the same location.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Node is a single location in the schema tree.
type Node struct {
	// Name is unique among siblings. The root has an empty name.
	Name string

	// Kind is section or scalar.
	Kind Kind

	// ValueType is set for scalars only.
	ValueType ValueType

	// EnumValues lists allowed literals in declaration order (enum scalars only).
	EnumValues []string

	// Required marks fields that must be present in a valid document.
	Required bool

	// Detail is a one-line summary such as "integer - Port number".
	Detail string

	// Description is free text surfaced as documentation.
	Description string

	children []*Node
	index    map[string]int
}

// Section creates a section node with the given children in declaration order.
// It panics on duplicate child names; schemas are static program data.
func Section(name, detail, description string, children ...*Node) *Node {
	n := &Node{
		Name:        name,
		Kind:        KindSection,
		Required:    true,
		Detail:      detail,
		Description: description,
		children:    children,
		index:       make(map[string]int, len(children)),
	}
	for i, c := range children {
		if _, dup := n.index[c.Name]; dup {
			panic(fmt.Sprintf("schema: duplicate child %q in section %q", c.Name, name))
		}
		n.index[c.Name] = i
	}
	return n
}

// Scalar creates a required scalar field.
func Scalar(name string, vt ValueType, detail, description string) *Node {
	return &Node{
		Name:        name,
		Kind:        KindScalar,
		ValueType:   vt,
		Required:    true,
		Detail:      detail,
		Description: description,
	}
}

// Enum creates a required enum field accepting the given values in order.
func Enum(name string, values []string, detail, description string) *Node {
	n := Scalar(name, TypeEnum, detail, description)
	n.EnumValues = append([]string(nil), values...)
	return n
}

// IsSection reports whether n holds children.
func (n *Node) IsSection() bool {
	return n.Kind == KindSection
}

// Children returns the node's children in declaration order.
// The returned slice must not be modified.
func (n *Node) Children() []*Node {
	return n.children
}

// Child returns the named child, or nil.
func (n *Node) Child(name string) *Node {
	if n == nil || n.index == nil {
		return nil
	}
	i, ok := n.index[name]
	if !ok {
		return nil
	}
	return n.children[i]
}

// Rank returns the declaration index of the named child, or -1.
func (n *Node) Rank(name string) int {
	if n == nil || n.index == nil {
		return -1
	}
	i, ok := n.index[name]
	if !ok {
		return -1
	}
	return i
}

// ResolveNode walks path from n and returns the node it names.
// An empty path returns n itself. Any chain of sections may be walked;
// there is no depth limit.
func (n *Node) ResolveNode(path Path) (*Node, error) {
	cur := n
	for i, name := range path {
		if !cur.IsSection() {
			return nil, fmt.Errorf("%w: %s is not a section", ErrNotFound, path[:i])
		}
		next := cur.Child(name)
		if next == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path[:i+1])
		}
		cur = next
	}
	return cur, nil
}

// ResolveChildren returns the children of the section at path, in
// declaration order.
func (n *Node) ResolveChildren(path Path) ([]*Node, error) {
	node, err := n.ResolveNode(path)
	if err != nil {
		return nil, err
	}
	if !node.IsSection() {
		return nil, fmt.Errorf("%w: %s is a %s field", ErrNotFound, path, node.ValueType)
	}
	return node.children, nil
}

// Walk calls fn for every node below n in depth-first declaration order,
// passing the node's path. Returning false from fn skips the node's children.
func (n *Node) Walk(fn func(path Path, node *Node) bool) {
	var walk func(prefix Path, node *Node)
	walk = func(prefix Path, node *Node) {
		for _, c := range node.children {
			p := prefix.Append(c.Name)
			if fn(p, c) && c.IsSection() {
				walk(p, c)
			}
		}
	}
	walk(Path{}, n)
}

// Accepts reports whether the literal is one of an enum's allowed values.
// Non-enum nodes accept everything.
func (n *Node) Accepts(literal string) bool {
	if n.ValueType != TypeEnum {
		return true
	}
	for _, v := range n.EnumValues {
		if v == literal {
			return true
		}
	}
	return false
}
