package paths

import (
	"fmt"
	"path"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
)

// Exclusions decides which entries of a local tree take no part in a sync.
// Files and Dirs hold base names and match at any depth. Paths holds exact
// relative paths. Patterns are doublestar globs matched against the whole
// relative path.
type Exclusions struct {
	Files    mapset.Set[string]
	Dirs     mapset.Set[string]
	Paths    mapset.Set[string]
	Patterns []string
}

func NewExclusions(files, dirs []string) *Exclusions {
	return &Exclusions{
		Files: mapset.NewSet(files...),
		Dirs:  mapset.NewSet(dirs...),
		Paths: mapset.NewSet[string](),
	}
}

// Clone returns a copy that can be extended without touching e.
func (e *Exclusions) Clone() *Exclusions {
	c := NewExclusions(nil, nil)
	if e == nil {
		return c
	}
	if e.Files != nil {
		c.Files = e.Files.Clone()
	}
	if e.Dirs != nil {
		c.Dirs = e.Dirs.Clone()
	}
	if e.Paths != nil {
		c.Paths = e.Paths.Clone()
	}
	c.Patterns = append([]string(nil), e.Patterns...)
	return c
}

func (e *Exclusions) AddPath(rel string) {
	e.Paths.Add(CleanRelPath(rel))
}

func (e *Exclusions) AddPatterns(patterns ...string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid exclude pattern %q", p)
		}
		e.Patterns = append(e.Patterns, p)
	}
	return nil
}

// MatchDir reports whether the directory at rel is pruned from the walk.
func (e *Exclusions) MatchDir(rel string) bool {
	if e == nil {
		return false
	}
	return e.Dirs.Contains(path.Base(rel)) ||
		e.Paths.Contains(rel) ||
		e.matchPattern(rel)
}

// MatchFile reports whether the file at rel is skipped. It does not look
// at the file's parent directories; the walk has pruned those already.
func (e *Exclusions) MatchFile(rel string) bool {
	if e == nil {
		return false
	}
	return e.Files.Contains(path.Base(rel)) ||
		e.Paths.Contains(rel) ||
		e.matchPattern(rel)
}

// Excludes reports whether a file path recorded in a manifest would be
// left out of a walk, either by itself or through one of its directories.
func (e *Exclusions) Excludes(rel string) bool {
	if e == nil {
		return false
	}
	for _, dir := range Ancestors(rel) {
		if e.MatchDir(dir) {
			return true
		}
	}
	return e.MatchFile(rel)
}

func (e *Exclusions) matchPattern(rel string) bool {
	for _, p := range e.Patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func (e *Exclusions) String() string {
	files := e.Files.ToSlice()
	dirs := e.Dirs.ToSlice()
	sort.Strings(files)
	sort.Strings(dirs)
	return fmt.Sprintf(
		"files=%v dirs=%v patterns=%v", files, dirs, e.Patterns,
	)
}
