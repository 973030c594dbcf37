package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func pathStrings(paths []Path) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, p.String())
	}
	return out
}

func TestClosureTree(t *testing.T) {
	leaves := []Path{
		ParsePath(TypeOS, "foo/bar/baz"),
		ParsePath(TypeOS, "foo/quux/norf"),
	}

	closure := Closure(leaves)

	assert.Equal(t, []string{
		"os:foo",
		"os:foo/bar",
		"os:foo/bar/baz",
		"os:foo/quux",
		"os:foo/quux/norf",
	}, pathStrings(closure))
}

func TestClosureVariousRoots(t *testing.T) {
	leaves := []Path{
		ParsePath(TypeOS, "foo"),
		ParsePath(TypeTSK, "bar"),
		ParsePath(TypeTemp, "foo"),
		ParsePath(TypeRegistry, "bar"),
	}

	closure := Closure(leaves)

	assert.Len(t, closure, 4)
	for _, leaf := range leaves {
		assert.Contains(t, pathStrings(closure), leaf.String())
	}
}

func TestClosureDeduplicates(t *testing.T) {
	leaves := []Path{
		ParsePath(TypeOS, "a/b"),
		ParsePath(TypeOS, "a/b"),
		ParsePath(TypeOS, "a"),
	}

	closure := Closure(leaves)
	assert.Equal(t, []string{"os:a", "os:a/b"}, pathStrings(closure))
}

func TestClosureAncestorsPrecedeDescendants(t *testing.T) {
	closure := Closure([]Path{ParsePath(TypeOS, "a/b/c/d")})

	seen := map[string]bool{}
	for _, path := range closure {
		if !path.Parent().IsRoot() {
			assert.True(t, seen[path.Parent().Key()], "parent of %s must come first", path)
		}
		seen[path.Key()] = true
	}
}

func TestClosureNeverEmitsRoot(t *testing.T) {
	closure := Closure([]Path{NewPath(TypeOS), ParsePath(TypeOS, "foo")})

	assert.Equal(t, []string{"os:foo"}, pathStrings(closure))
}
