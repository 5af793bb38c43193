package storage

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/nexpy/nxguard/internal/tree"
)

const (
	formatName    = "nxguard"
	formatVersion = 1
)

// document is the on-disk envelope around a tree.
type document struct {
	Format  string     `yaml:"format"`
	Version int        `yaml:"version"`
	Root    *tree.Node `yaml:"root"`
}

// Encode serializes a tree into its container representation.
func Encode(t *tree.Tree) ([]byte, error) {
	if t == nil || t.Root == nil {
		t = tree.New()
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(document{Format: formatName, Version: formatVersion, Root: t.Root}); err != nil {
		return nil, fmt.Errorf("encode tree: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode tree: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses container bytes. An empty file decodes to an empty tree so a
// freshly created file can be opened before its first flush.
func Decode(data []byte) (*tree.Tree, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return tree.New(), nil
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if doc.Format != formatName {
		return nil, fmt.Errorf("%w: unexpected format %q", ErrFormat, doc.Format)
	}
	if doc.Version > formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, doc.Version)
	}
	if doc.Root == nil || doc.Root.Kind != tree.KindGroup {
		return nil, fmt.Errorf("%w: root is not a group", ErrFormat)
	}
	normalize(doc.Root)
	return &tree.Tree{Root: doc.Root}, nil
}

// normalize restores the invariant that every group has a non-nil child map.
func normalize(n *tree.Node) {
	if n.Kind != tree.KindGroup {
		return
	}
	if n.Children == nil {
		n.Children = make(map[string]*tree.Node)
	}
	for _, child := range n.Children {
		normalize(child)
	}
}
