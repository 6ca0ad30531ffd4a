// Package fsremote serves a billy filesystem as a sync target: a plain
// directory for local mirrors, or memory for tests.
package fsremote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/tqbf/ftpsync/pkg/paths"
	"github.com/tqbf/ftpsync/pkg/remote"
)

// Stats counts the operations that changed the target.
type Stats struct {
	Mkdirs  int
	Uploads int
	Deletes int
}

type Transport struct {
	fs    billy.Filesystem
	stats Stats
}

var _ remote.Transport = (*Transport)(nil)

func New(fs billy.Filesystem) *Transport {
	return &Transport{fs: fs}
}

func NewOS(dir string) (*Transport, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create remote dir: %w", err)
	}
	return New(osfs.New(dir)), nil
}

func NewMemory() *Transport {
	return New(memfs.New())
}

func (t *Transport) Filesystem() billy.Filesystem {
	return t.fs
}

func (t *Transport) Stats() Stats {
	return t.stats
}

func (t *Transport) EnsureDir(
	ctx context.Context, dir string,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, seg := range paths.Segments(dir) {
		info, err := t.fs.Stat(seg)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf(
					"mkdir %s: not a directory", seg,
				)
			}
			continue
		}
		if !remote.IsNotFound(err) {
			return fmt.Errorf("stat %s: %w", seg, err)
		}
		if err := t.fs.MkdirAll(seg, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", seg, err)
		}
		t.stats.Mkdirs++
	}
	return nil
}

func (t *Transport) Upload(
	ctx context.Context, r io.Reader, p string,
) error {
	p = paths.CleanRelPath(p)
	if err := t.EnsureDir(ctx, path.Dir(p)); err != nil {
		return err
	}
	f, err := t.fs.OpenFile(
		p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644,
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", p, err)
	}
	_, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		return fmt.Errorf("write %s: %w", p, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", p, closeErr)
	}
	t.stats.Uploads++
	return nil
}

func (t *Transport) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p = paths.CleanRelPath(p)
	info, err := t.fs.Stat(p)
	if err != nil {
		if remote.IsNotFound(err) {
			return remote.NotFound("delete", p, err)
		}
		return fmt.Errorf("stat %s: %w", p, err)
	}
	if info.IsDir() {
		return fmt.Errorf("delete %s: is a directory", p)
	}
	if err := t.fs.Remove(p); err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	t.stats.Deletes++
	return nil
}

func (t *Transport) List(
	ctx context.Context, dir string,
) ([]remote.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir = paths.CleanRelPath(dir)
	if dir == "" {
		dir = "."
	}
	infos, err := t.fs.ReadDir(dir)
	if err != nil {
		if remote.IsNotFound(err) {
			return nil, remote.NotFound("list", dir, err)
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	entries := make([]remote.Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, remote.Entry{
			Name:    info.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsDir:   info.IsDir(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

func (t *Transport) Download(
	ctx context.Context, p string,
) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = paths.CleanRelPath(p)
	f, err := t.fs.Open(p)
	if err != nil {
		if remote.IsNotFound(err) {
			return nil, remote.NotFound("download", p, err)
		}
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	return f, nil
}

// ReadFile is a test convenience returning the contents at p.
func (t *Transport) ReadFile(p string) ([]byte, error) {
	return util.ReadFile(t.fs, paths.CleanRelPath(p))
}

func (t *Transport) Close() error {
	return nil
}
