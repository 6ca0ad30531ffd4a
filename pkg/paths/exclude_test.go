package paths

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExcludeDirNames(t *testing.T) {
	e := NewExclusions(nil, []string{".git", ".github"})
	assert.True(t, e.MatchDir(".git"))
	assert.True(t, e.MatchDir("vendor/.git"))
	assert.True(t, e.MatchDir(".github"))
	assert.False(t, e.MatchDir("git"))
	assert.False(t, e.MatchDir("src"))
}

func TestExcludeFileNames(t *testing.T) {
	e := NewExclusions([]string{"ftp_upload.py"}, nil)
	assert.True(t, e.MatchFile("ftp_upload.py"))
	assert.True(t, e.MatchFile("scripts/ftp_upload.py"))
	assert.False(t, e.MatchFile("ftp_upload.pyc"))
	assert.False(t, e.MatchDir("ftp_upload.py"))
}

func TestExcludeExactPath(t *testing.T) {
	e := NewExclusions(nil, nil)
	e.AddPath("./.file_hashes.json")
	assert.True(t, e.MatchFile(".file_hashes.json"))
	assert.False(t, e.MatchFile("sub/.file_hashes.json"))
}

func TestExcludesThroughAncestor(t *testing.T) {
	e := NewExclusions(nil, []string{".git"})
	assert.True(t, e.Excludes(".git/secrets.txt"))
	assert.True(t, e.Excludes("a/.git/objects/ab/cd"))
	assert.False(t, e.Excludes("a/b/secrets.txt"))
	assert.False(t, e.Excludes("a.git/x"))
}

func TestExcludePatterns(t *testing.T) {
	e := NewExclusions(nil, nil)
	require.NoError(t, e.AddPatterns("**/*.pyc", "build/**"))
	assert.True(t, e.MatchFile("foo.pyc"))
	assert.True(t, e.MatchFile("src/pkg/foo.pyc"))
	assert.True(t, e.MatchFile("build/out.js"))
	assert.True(t, e.Excludes("build/dist/bundle.js"))
	assert.False(t, e.MatchFile("src/build.go"))
}

func TestExcludeInvalidPattern(t *testing.T) {
	e := NewExclusions(nil, nil)
	assert.Error(t, e.AddPatterns("[unterminated"))
	assert.Empty(t, e.Patterns)
}

func TestExcludeNil(t *testing.T) {
	var e *Exclusions
	assert.False(t, e.MatchDir("a"))
	assert.False(t, e.MatchFile("a"))
	assert.False(t, e.Excludes("a/b"))
}

func TestExclusionsClone(t *testing.T) {
	e := NewExclusions([]string{"x.py"}, []string{".git"})
	require.NoError(t, e.AddPatterns("**/*.o"))

	c := e.Clone()
	c.AddPath("extra.txt")
	c.Files.Add("y.py")
	require.NoError(t, c.AddPatterns("*.tmp"))

	assert.True(t, c.MatchFile("extra.txt"))
	assert.False(t, e.MatchFile("extra.txt"))
	assert.False(t, e.MatchFile("y.py"))
	assert.False(t, e.MatchFile("a.tmp"))
	assert.True(t, e.MatchFile("src/a.o"))
	assert.True(t, c.MatchFile("src/a.o"))

	var nilSet *Exclusions
	assert.False(t, nilSet.Clone().MatchFile("a.txt"))
}
