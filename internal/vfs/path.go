package vfs

import (
	"slices"
	"strings"
)

// Path is a typed, hierarchical path on an endpoint. It is a plain value
// type: two paths are equal iff their type and full component sequence
// match. Components never contain the separator.
type Path struct {
	Type       PathType
	Components []string
}

// NewPath builds a path of the given type from pre-split components.
func NewPath(t PathType, components ...string) Path {
	return Path{Type: t, Components: components}
}

// ParsePath splits a "/"-joined component string. Empty segments are
// dropped, so "foo//bar/" parses the same as "foo/bar".
func ParsePath(t PathType, joined string) Path {
	var components []string
	for _, c := range strings.Split(joined, "/") {
		if c != "" {
			components = append(components, c)
		}
	}
	return Path{Type: t, Components: components}
}

// Depth returns the number of components.
func (p Path) Depth() int {
	return len(p.Components)
}

// IsRoot reports whether the path has no components.
func (p Path) IsRoot() bool {
	return len(p.Components) == 0
}

// Basename returns the last component, or "" for the root.
func (p Path) Basename() string {
	if p.IsRoot() {
		return ""
	}
	return p.Components[len(p.Components)-1]
}

// Parent returns the path with the last component removed. The parent of
// the root is the root itself.
func (p Path) Parent() Path {
	if p.IsRoot() {
		return p
	}
	return Path{Type: p.Type, Components: p.Components[:len(p.Components)-1]}
}

// Ancestors returns every proper prefix of the path, shallowest first.
// The zero-component root is never included. A single-component path has
// no ancestors.
func (p Path) Ancestors() []Path {
	if p.Depth() < 2 {
		return nil
	}
	ancestors := make([]Path, 0, p.Depth()-1)
	for i := 1; i < p.Depth(); i++ {
		ancestors = append(ancestors, Path{Type: p.Type, Components: p.Components[:i]})
	}
	return ancestors
}

// Equal reports whether both paths have the same type and components.
func (p Path) Equal(other Path) bool {
	return p.Type == other.Type && slices.Equal(p.Components, other.Components)
}

// Compare orders paths by type, then lexicographically by components.
// Ancestors always sort before their descendants, which gives consumers a
// depth-first processing order.
func (p Path) Compare(other Path) int {
	if p.Type != other.Type {
		if p.Type < other.Type {
			return -1
		}
		return 1
	}
	return slices.Compare(p.Components, other.Components)
}

// String renders the path as "type:a/b/c".
func (p Path) String() string {
	return p.Type.String() + ":" + strings.Join(p.Components, "/")
}

// Key returns a string that uniquely identifies the path, suitable as a
// map or database key.
func (p Path) Key() string {
	return p.String()
}
