package paths

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ErrBadPath is wrapped by every ValidateRelPath failure.
var ErrBadPath = errors.New("bad relative path")

// ValidateRelPath accepts slash-separated paths that stay inside the
// directory they are relative to and name something other than it. A
// backslash is an ordinary file name character, not a separator.
func ValidateRelPath(p string) error {
	bad := func(why string) error {
		return fmt.Errorf("%w %q: %s", ErrBadPath, p, why)
	}
	switch {
	case p == "":
		return bad("empty")
	case strings.ContainsRune(p, 0):
		return bad("contains NUL")
	case path.IsAbs(p):
		return bad("absolute")
	}
	switch c := path.Clean(p); {
	case c == ".":
		return bad("names the base directory")
	case c == ".." || strings.HasPrefix(c, "../"):
		return bad("escapes the base directory")
	}
	return nil
}

// CleanRelPath normalizes a relative path to the form stored in
// manifests: slash separated, no leading "./" or "/".
func CleanRelPath(p string) string {
	p = path.Clean(filepath.ToSlash(p))
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	return p
}

func IsWithinDir(dir, full string) bool {
	rel, err := filepath.Rel(dir, full)
	if err != nil {
		return false
	}
	return rel != ".." &&
		!strings.HasPrefix(rel, "../") &&
		!filepath.IsAbs(rel)
}

// Ancestors returns every directory above p, outermost first.
// Ancestors("a/b/c.txt") is ["a", "a/b"].
func Ancestors(p string) []string {
	dir := path.Dir(CleanRelPath(p))
	if dir == "." || dir == "/" || dir == "" {
		return nil
	}
	return Segments(dir)
}

// Segments returns the cumulative prefixes of dir.
// Segments("a/b/c") is ["a", "a/b", "a/b/c"].
func Segments(dir string) []string {
	dir = CleanRelPath(dir)
	if dir == "." || dir == "" {
		return nil
	}
	parts := strings.Split(dir, "/")
	result := make([]string, 0, len(parts))
	var b strings.Builder
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			b.WriteString("/")
		}
		b.WriteString(part)
		result = append(result, b.String())
	}
	return result
}
