package paths

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRelPath(t *testing.T) {
	for _, p := range []string{
		"foo/bar.go",
		"a.txt",
		"deep/nested/path/file.go",
		"file with spaces.go",
		"日本語.txt",
		"a/../b",
		`odd\name.txt`,
	} {
		assert.NoError(t, ValidateRelPath(p), p)
	}

	for _, p := range []string{
		"",
		"/absolute/path",
		"../escape",
		"foo/../../etc/passwd",
		"foo\x00bar",
		".",
		"./",
		"a/..",
	} {
		err := ValidateRelPath(p)
		assert.ErrorIs(t, err, ErrBadPath, p)
	}
}

func TestCleanRelPath(t *testing.T) {
	assert.Equal(t, "foo/bar", CleanRelPath("./foo/bar"))
	assert.Equal(t, "foo/bar", CleanRelPath("foo//bar"))
	assert.Equal(t, "foo/bar", CleanRelPath("foo/./bar"))
	assert.Equal(t, "foo", CleanRelPath("foo/bar/.."))
	assert.Equal(t, "a/b", CleanRelPath("/a/b"))
}

func TestIsWithinDir(t *testing.T) {
	assert.True(t, IsWithinDir(
		"/home/user/project",
		"/home/user/project/foo",
	))
	assert.True(t, IsWithinDir(
		"/home/user/project",
		"/home/user/project",
	))
	assert.False(t, IsWithinDir(
		"/home/user/project",
		"/home/user/projectX/foo",
	))
	assert.False(t, IsWithinDir(
		"/home/user/project",
		"/etc/passwd",
	))
}

func TestAncestors(t *testing.T) {
	assert.Equal(t,
		[]string{"a", "a/b"},
		Ancestors("a/b/c.txt"),
	)
	assert.Nil(t, Ancestors("c.txt"))
	assert.Equal(t, []string{"x"}, Ancestors("./x/y"))
}

func TestSegments(t *testing.T) {
	assert.Equal(t,
		[]string{"a", "a/b", "a/b/c"},
		Segments("a/b/c"),
	)
	assert.Equal(t, []string{"a", "a/b"}, Segments("a//b/"))
	assert.Nil(t, Segments("."))
	assert.Nil(t, Segments(""))
}
