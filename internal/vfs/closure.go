package vfs

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// Closure expands a set of leaf paths into the full ancestor closure: the
// deduplicated union of every input path and every proper prefix of it.
// The result is sorted so that ancestors always precede their descendants.
// Zero-component roots are never emitted.
func Closure(leaves []Path) []Path {
	seen := mapset.NewThreadUnsafeSet[string]()
	closure := make([]Path, 0, len(leaves))

	add := func(p Path) {
		if p.IsRoot() {
			return
		}
		if seen.Add(p.Key()) {
			closure = append(closure, p)
		}
	}

	for _, leaf := range leaves {
		for _, ancestor := range leaf.Ancestors() {
			add(ancestor)
		}
		add(leaf)
	}

	slices.SortFunc(closure, Path.Compare)
	return closure
}
