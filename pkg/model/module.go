package model

import (
	"sort"
	"strings"
)

// PathSplit controls how tensor names are split into module-tree segments.
// Checkpoints name tensors with delimited paths ("model.layers.0.mlp.w1");
// the delimiter defaults to a dot.
type PathSplit struct {
	Delim string
}

// DefaultPathSplit splits on dots.
func DefaultPathSplit() PathSplit { return PathSplit{Delim: "."} }

// Split breaks a full tensor name into its path segments. An empty
// delimiter yields the whole name as a single segment.
func (p PathSplit) Split(name string) []string {
	if p.Delim == "" {
		return []string{name}
	}
	return strings.Split(name, p.Delim)
}

// Join reassembles path segments into a full name.
func (p PathSplit) Join(parts []string) string {
	d := p.Delim
	if d == "" {
		d = "."
	}
	return strings.Join(parts, d)
}

// Module is one node of the checkpoint's module tree. Interior nodes group
// tensors by name prefix; leaves carry a TensorInfo.
type Module struct {
	// FullName is the delimited path from the root, "" for the root itself.
	FullName string
	// Name is the last path segment.
	Name string
	// Tensor is non-nil on leaf nodes.
	Tensor *TensorInfo

	Children     map[string]*Module
	TotalTensors uint64
	TotalParams  uint64
	TotalBytes   uint64
}

// NewModule returns an empty module node.
func NewModule(fullName, name string) *Module {
	return &Module{
		FullName: fullName,
		Name:     name,
		Children: make(map[string]*Module),
	}
}

// BuildModule assembles the module tree from a checkpoint's tensor list.
// Every node accumulates the tensor and parameter counts of its subtree.
func BuildModule(tensors []TensorInfo, split PathSplit) *Module {
	root := NewModule("", "")
	for i := range tensors {
		info := tensors[i]
		params := info.Elems()
		bytes := info.End - info.Start

		parts := split.Split(info.Name)
		cur := root
		cur.TotalTensors++
		cur.TotalParams += params
		cur.TotalBytes += bytes
		for j, key := range parts {
			child, ok := cur.Children[key]
			if !ok {
				child = NewModule(split.Join(parts[:j+1]), key)
				cur.Children[key] = child
			}
			child.TotalTensors++
			child.TotalParams += params
			child.TotalBytes += bytes
			cur = child
		}
		cur.Tensor = &info
	}
	return root
}

// FlattenSingleChildren collapses chains of modules with exactly one child
// into a single node, so deep wrapper hierarchies don't cost a tree level
// each ("model" -> "model.decoder" instead of two rows).
func (m *Module) FlattenSingleChildren() {
	next := make(map[string]*Module, len(m.Children))
	for key, child := range m.Children {
		child.FlattenSingleChildren()
		if len(child.Children) != 1 || child.Tensor != nil {
			next[key] = child
			continue
		}
		for ck, cv := range child.Children {
			cv.Name = child.Name + "." + ck
			next[cv.Name] = cv
		}
	}
	m.Children = next
}

// ChildNames returns the child keys sorted with modules before tensors,
// names in natural order within each group.
func (m *Module) ChildNames() []string {
	names := make([]string, 0, len(m.Children))
	for name := range m.Children {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := m.Children[names[i]], m.Children[names[j]]
		aTensor := a.Tensor != nil && len(a.Children) == 0
		bTensor := b.Tensor != nil && len(b.Children) == 0
		if aTensor != bTensor {
			return !aTensor // modules first
		}
		return NaturalLess(names[i], names[j])
	})
	return names
}

// Lookup walks the tree to the module with the given full name, or nil.
func (m *Module) Lookup(fullName string, split PathSplit) *Module {
	if fullName == "" {
		return m
	}
	cur := m
outer:
	for cur != nil {
		if cur.FullName == fullName {
			return cur
		}
		for _, child := range cur.Children {
			if fullName == child.FullName || strings.HasPrefix(fullName, child.FullName+split.Delim) {
				cur = child
				continue outer
			}
		}
		return nil
	}
	return nil
}

// NaturalLess compares strings with embedded numbers numerically, so
// "layers.2" sorts before "layers.10".
func NaturalLess(a, b string) bool {
	for len(a) > 0 && len(b) > 0 {
		if isDigit(a[0]) && isDigit(b[0]) {
			an, arest := takeNumber(a)
			bn, brest := takeNumber(b)
			if an != bn {
				return an < bn
			}
			a, b = arest, brest
			continue
		}
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func takeNumber(s string) (uint64, string) {
	var n uint64
	i := 0
	for i < len(s) && isDigit(s[i]) {
		n = n*10 + uint64(s[i]-'0')
		i++
	}
	return n, s[i:]
}
