package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/configdesk/configdesk/pkg/schema"
)

const (
	tagNull = "!!null"
	tagInt  = "!!int"
	tagBool = "!!bool"
)

// Parse checks that text is a single well-formed YAML document and returns
// its node tree. Empty or comment-only text yields an empty document node.
func Parse(text string) (*yaml.Node, error) {
	dec := yaml.NewDecoder(strings.NewReader(text))

	var doc yaml.Node
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &yaml.Node{Kind: yaml.DocumentNode}, nil
		}
		return nil, newParseError(err)
	}

	var extra yaml.Node
	switch err := dec.Decode(&extra); {
	case err == nil:
		return nil, &ParseError{Line: extra.Line, Message: "multiple documents are not supported"}
	case !errors.Is(err, io.EOF):
		return nil, newParseError(err)
	}
	return &doc, nil
}

// Decode parses text and checks it against root. Syntax problems are
// returned as *ParseError; every schema problem found (unknown or duplicate
// keys, missing fields, wrong primitive types, constraint violations) is
// collected into a single *ValidationError. A nil root uses schema.Default.
func Decode(text string, root *schema.Node) (*Config, error) {
	if root == nil {
		root = schema.Default()
	}
	doc, err := Parse(text)
	if err != nil {
		return nil, err
	}

	var body *yaml.Node
	if len(doc.Content) > 0 {
		body = doc.Content[0]
	}

	c := checker{}
	clean := c.mapping(body, root, schema.Path{})

	var cfg Config
	if clean != nil {
		if err := clean.Decode(&cfg); err != nil {
			c.add(schema.Path{}, err.Error())
		}
	}

	if err := Validate(&cfg); err != nil {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		for _, fe := range ve.Errors {
			if !c.covered(fe.Path) {
				c.errs = append(c.errs, fe)
			}
		}
	}

	if len(c.errs) > 0 {
		return nil, &ValidationError{Errors: c.errs}
	}
	return &cfg, nil
}

// checker walks a YAML node tree alongside the schema.
type checker struct {
	errs []FieldError
}

func (c *checker) add(path schema.Path, msg string) {
	c.errs = append(c.errs, FieldError{Path: path, Message: msg})
}

// covered reports whether path or one of its ancestors already has an error.
func (c *checker) covered(path schema.Path) bool {
	for _, fe := range c.errs {
		if len(fe.Path) <= len(path) && fe.Path.Equal(path[:len(fe.Path)]) {
			return true
		}
	}
	return false
}

// mapping checks a section and returns a copy holding only the entries that
// passed, so that it decodes cleanly into Config.
func (c *checker) mapping(n *yaml.Node, sec *schema.Node, path schema.Path) *yaml.Node {
	if n == nil || (n.Kind == yaml.ScalarNode && n.Tag == tagNull) {
		n = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	if n.Kind == yaml.AliasNode {
		c.add(path, "aliases are not supported")
		return nil
	}
	if n.Kind != yaml.MappingNode {
		c.add(path, "expected a mapping of keys")
		return nil
	}

	out := &yaml.Node{Kind: yaml.MappingNode, Tag: n.Tag, Style: n.Style}
	seen := make(map[string]bool, len(n.Content)/2)

	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			c.add(path, fmt.Sprintf("line %d: keys must be plain scalars", k.Line))
			continue
		}
		p := path.Append(k.Value)
		if seen[k.Value] {
			c.add(p, "duplicate key")
			continue
		}
		seen[k.Value] = true

		child := sec.Child(k.Value)
		if child == nil {
			c.add(p, "unknown field")
			continue
		}

		if child.IsSection() {
			if sub := c.mapping(v, child, p); sub != nil {
				out.Content = append(out.Content, k, sub)
			}
			continue
		}
		if c.scalar(v, child, p) {
			out.Content = append(out.Content, k, v)
		}
	}

	for _, child := range sec.Children() {
		if child.Required && !seen[child.Name] {
			c.add(path.Append(child.Name), "field is required")
		}
	}
	return out
}

// scalar checks a field value's primitive type.
func (c *checker) scalar(v *yaml.Node, field *schema.Node, path schema.Path) bool {
	if v.Kind != yaml.ScalarNode {
		c.add(path, fmt.Sprintf("must be a %s, not a nested block", field.ValueType))
		return false
	}
	if v.Tag == tagNull {
		c.add(path, "value is required")
		return false
	}

	switch field.ValueType {
	case schema.TypeInteger:
		if v.Tag != tagInt {
			c.add(path, "must be an integer")
			return false
		}
	case schema.TypeBoolean:
		if v.Tag != tagBool {
			c.add(path, "must be true or false")
			return false
		}
	case schema.TypeEnum:
		if !field.Accepts(v.Value) {
			c.add(path, "must be one of: "+strings.Join(field.EnumValues, ", "))
			return false
		}
	}
	return true
}

// Serialize renders cfg as YAML with two-space indentation and keys in the
// schema's declaration order. The output is deterministic.
func Serialize(cfg *Config, root *schema.Node) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("config is nil")
	}
	if root == nil {
		root = schema.Default()
	}

	var node yaml.Node
	if err := node.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	orderBySchema(&node, root)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return buf.String(), nil
}

// orderBySchema reorders mapping entries to follow sec's declared child
// order. Keys unknown to the schema keep their relative order at the end.
func orderBySchema(n *yaml.Node, sec *schema.Node) {
	if n == nil || sec == nil || n.Kind != yaml.MappingNode {
		return
	}

	type pair struct{ k, v *yaml.Node }
	pairs := make([]pair, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		pairs = append(pairs, pair{n.Content[i], n.Content[i+1]})
	}

	rank := func(name string) int {
		if r := sec.Rank(name); r >= 0 {
			return r
		}
		return len(sec.Children())
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return rank(pairs[i].k.Value) < rank(pairs[j].k.Value)
	})

	n.Content = n.Content[:0]
	for _, p := range pairs {
		if child := sec.Child(p.k.Value); child != nil && child.IsSection() {
			orderBySchema(p.v, child)
		}
		n.Content = append(n.Content, p.k, p.v)
	}
}
