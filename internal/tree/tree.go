// Package tree is the in-memory model of a data file: named groups that hold
// child groups and fields, each optionally carrying attributes.
//
// A Tree is not safe for concurrent mutation. Guards hand out clones to
// writers and publish the result, so a Tree that has been published is
// treated as immutable.
package tree

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind distinguishes groups from fields.
type Kind string

const (
	KindGroup Kind = "group"
	KindField Kind = "field"
)

// RootClass is the class of the top-level group.
const RootClass = "NXroot"

// Sentinel errors returned by path operations.
var (
	ErrNotFound    = errors.New("no such node")
	ErrNotField    = errors.New("node is not a field")
	ErrNotGroup    = errors.New("node is not a group")
	ErrExists      = errors.New("node already exists")
	ErrInvalidPath = errors.New("invalid tree path")
)

// Node is a group or a field.
type Node struct {
	Kind     Kind             `yaml:"kind"`
	Class    string           `yaml:"class,omitempty"`
	Value    any              `yaml:"value,omitempty"`
	Attrs    map[string]any   `yaml:"attrs,omitempty"`
	Children map[string]*Node `yaml:"children,omitempty"`
}

// NewGroup returns an empty group of the given class.
func NewGroup(class string) *Node {
	return &Node{Kind: KindGroup, Class: class, Children: make(map[string]*Node)}
}

// NewField returns a field holding value.
func NewField(value any) *Node {
	return &Node{Kind: KindField, Value: value}
}

// IsGroup reports whether n is a group.
func (n *Node) IsGroup() bool { return n.Kind == KindGroup }

// Names returns the sorted child names of a group.
func (n *Node) Names() []string {
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tree is a rooted hierarchy of nodes.
type Tree struct {
	Root *Node
}

// New returns a tree holding only an empty root group.
func New() *Tree {
	return &Tree{Root: NewGroup(RootClass)}
}

// splitPath turns "entry/data/f1" into its components. Leading and trailing
// slashes are ignored; empty components are rejected.
func splitPath(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, "/")
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return parts, nil
}

// Lookup resolves path to a node. The empty path (or "/") is the root.
func (t *Tree) Lookup(path string) (*Node, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	node := t.Root
	for i, name := range parts {
		if !node.IsGroup() {
			return nil, fmt.Errorf("%w: %s", ErrNotGroup, strings.Join(parts[:i], "/"))
		}
		child, ok := node.Children[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.Join(parts[:i+1], "/"))
		}
		node = child
	}
	return node, nil
}

// parent resolves the group that would hold path and the final name.
func (t *Tree) parent(path string) (*Node, string, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, "", err
	}
	if len(parts) == 0 {
		return nil, "", fmt.Errorf("%w: root has no parent", ErrInvalidPath)
	}
	group, err := t.Lookup(strings.Join(parts[:len(parts)-1], "/"))
	if err != nil {
		return nil, "", err
	}
	if !group.IsGroup() {
		return nil, "", fmt.Errorf("%w: %s", ErrNotGroup, strings.Join(parts[:len(parts)-1], "/"))
	}
	return group, parts[len(parts)-1], nil
}

// Get returns the value of the field at path.
func (t *Tree) Get(path string) (any, error) {
	node, err := t.Lookup(path)
	if err != nil {
		return nil, err
	}
	if node.IsGroup() {
		return nil, fmt.Errorf("%w: %s", ErrNotField, path)
	}
	return node.Value, nil
}

// Set assigns value to the field at path, creating the field when its parent
// group exists. Assigning to a group is an error.
func (t *Tree) Set(path string, value any) error {
	group, name, err := t.parent(path)
	if err != nil {
		return err
	}
	if existing, ok := group.Children[name]; ok {
		if existing.IsGroup() {
			return fmt.Errorf("%w: %s", ErrNotField, path)
		}
		existing.Value = value
		return nil
	}
	group.Children[name] = NewField(value)
	return nil
}

// AddGroup creates an empty group at path.
func (t *Tree) AddGroup(path, class string) (*Node, error) {
	group, name, err := t.parent(path)
	if err != nil {
		return nil, err
	}
	if _, ok := group.Children[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, path)
	}
	child := NewGroup(class)
	group.Children[name] = child
	return child, nil
}

// Remove deletes the node at path and everything below it.
func (t *Tree) Remove(path string) error {
	group, name, err := t.parent(path)
	if err != nil {
		return err
	}
	if _, ok := group.Children[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	delete(group.Children, name)
	return nil
}

// SetAttr sets an attribute on the node at path.
func (t *Tree) SetAttr(path, key string, value any) error {
	node, err := t.Lookup(path)
	if err != nil {
		return err
	}
	if node.Attrs == nil {
		node.Attrs = make(map[string]any)
	}
	node.Attrs[key] = value
	return nil
}

// Walk visits every node depth-first in name order. The root is visited
// with the empty path.
func (t *Tree) Walk(fn func(path string, n *Node)) {
	walk("", t.Root, fn)
}

func walk(path string, n *Node, fn func(string, *Node)) {
	fn(path, n)
	if !n.IsGroup() {
		return
	}
	for _, name := range n.Names() {
		child := name
		if path != "" {
			child = path + "/" + name
		}
		walk(child, n.Children[name], fn)
	}
}

// Clone returns a deep copy of t.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	return &Tree{Root: t.Root.clone()}
}

func (n *Node) clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{
		Kind:  n.Kind,
		Class: n.Class,
		Value: cloneValue(n.Value),
	}
	if n.Attrs != nil {
		c.Attrs = make(map[string]any, len(n.Attrs))
		for k, v := range n.Attrs {
			c.Attrs[k] = cloneValue(v)
		}
	}
	if n.Children != nil {
		c.Children = make(map[string]*Node, len(n.Children))
		for name, child := range n.Children {
			c.Children[name] = child.clone()
		}
	}
	return c
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = cloneValue(x[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
