package manifest

import (
	"fmt"
	"io"
	"sort"

	"github.com/goccy/go-json"

	"github.com/tqbf/ftpsync/pkg/paths"
)

// Manifest maps a relative path to the fingerprint the remote side is
// believed to hold for it.
type Manifest map[string]Fingerprint

type Kind int

const (
	KindEmpty Kind = iota
	KindDigest
	KindModTime
)

func (k Kind) String() string {
	switch k {
	case KindDigest:
		return "digest"
	case KindModTime:
		return "mtime"
	default:
		return "empty"
	}
}

// Kind reports which fingerprint flavor the manifest holds. A manifest
// mixing digests and timestamps is an error.
func (m Manifest) Kind() (Kind, error) {
	kind := KindEmpty
	for path, f := range m {
		k := f.Kind
		if k == KindEmpty {
			return KindEmpty, fmt.Errorf(
				"manifest entry %s has no fingerprint", path,
			)
		}
		if kind != KindEmpty && kind != k {
			return KindEmpty, fmt.Errorf(
				"manifest mixes fingerprint kinds at %s", path,
			)
		}
		kind = k
	}
	return kind, nil
}

func (m Manifest) Paths() []string {
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (m Manifest) Clone() Manifest {
	out := make(Manifest, len(m))
	for p, f := range m {
		out[p] = f
	}
	return out
}

func (m Manifest) Equal(other Manifest) bool {
	if len(m) != len(other) {
		return false
	}
	for p, f := range m {
		if g, ok := other[p]; !ok || g != f {
			return false
		}
	}
	return true
}

// Filter splits m into the entries drop rejects and those it keeps.
func (m Manifest) Filter(
	drop func(path string) bool,
) (kept Manifest, dropped []string) {
	kept = make(Manifest, len(m))
	for p, f := range m {
		if drop(p) {
			dropped = append(dropped, p)
			continue
		}
		kept[p] = f
	}
	sort.Strings(dropped)
	return kept, dropped
}

func (m Manifest) Validate() error {
	for p, f := range m {
		if err := paths.ValidateRelPath(p); err != nil {
			return fmt.Errorf("manifest key: %w", err)
		}
		if f.IsZero() {
			return fmt.Errorf("manifest entry %s has no fingerprint", p)
		}
	}
	_, err := m.Kind()
	return err
}

// Encode writes m as an indented JSON object with sorted keys.
func Encode(w io.Writer, m Manifest) error {
	if m == nil {
		m = Manifest{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

func Decode(r io.Reader) (Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("decode manifest: not an object")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
