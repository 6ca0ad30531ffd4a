// Package fingerprint walks a local tree and records a fingerprint for
// every regular file that is not excluded.
package fingerprint

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tqbf/ftpsync/pkg/manifest"
	"github.com/tqbf/ftpsync/pkg/paths"
)

type Options struct {
	Strategy Strategy

	// Strict aborts the walk on the first unreadable file instead of
	// skipping it.
	Strict bool

	// Workers is the number of files hashed at once. Zero means one.
	Workers int

	Logger *slog.Logger
}

type File struct {
	Path        string
	AbsPath     string
	Size        int64
	Fingerprint manifest.Fingerprint
}

type Skipped struct {
	Path string
	Err  error
}

type Snapshot struct {
	Root     string
	Strategy Strategy
	Files    map[string]File
	Skipped  []Skipped
}

func (s Snapshot) Manifest() manifest.Manifest {
	m := make(manifest.Manifest, len(s.Files))
	for p, f := range s.Files {
		m[p] = f.Fingerprint
	}
	return m
}

func (s Snapshot) Paths() []string {
	out := make([]string, 0, len(s.Files))
	for p := range s.Files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// TotalSize sums the sizes of the given paths; nil means every file.
func (s Snapshot) TotalSize(ps []string) int64 {
	var total int64
	if ps == nil {
		for _, f := range s.Files {
			total += f.Size
		}
		return total
	}
	for _, p := range ps {
		total += s.Files[p].Size
	}
	return total
}

type fileJob struct {
	relPath string
	absPath string
}

type hashResult struct {
	job  fileJob
	file File
	err  error
}

func Walk(
	root string,
	excl *paths.Exclusions,
	opts Options,
) (Snapshot, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	snap := Snapshot{
		Root:     root,
		Strategy: opts.Strategy,
		Files:    make(map[string]File),
	}

	skip := func(rel string, err error) error {
		if opts.Strict {
			return fmt.Errorf("fingerprint %s: %w", rel, err)
		}
		log.Warn("skipping unreadable file",
			"path", rel,
			"err", err,
		)
		snap.Skipped = append(snap.Skipped, Skipped{rel, err})
		return nil
	}

	var jobs []fileJob
	err := filepath.WalkDir(
		root,
		func(p string, d fs.DirEntry, err error) error {
			if p == root {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					return fmt.Errorf("%s is not a directory", root)
				}
				return nil
			}
			rel, relErr := filepath.Rel(root, p)
			if relErr != nil {
				return relErr
			}
			rel = filepath.ToSlash(rel)
			if err != nil {
				if skipErr := skip(rel, err); skipErr != nil {
					return skipErr
				}
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if excl.MatchDir(rel) {
					log.Debug("excluded directory", "path", rel)
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if excl.MatchFile(rel) {
				log.Debug("excluded file", "path", rel)
				return nil
			}
			jobs = append(jobs, fileJob{
				relPath: rel,
				absPath: p,
			})
			return nil
		},
	)
	if err != nil {
		return Snapshot{}, err
	}

	for _, r := range hashAll(jobs, opts) {
		if r.err != nil {
			if err := skip(r.job.relPath, r.err); err != nil {
				return Snapshot{}, err
			}
			continue
		}
		snap.Files[r.file.Path] = r.file
		log.Debug("fingerprinted",
			"path", r.file.Path,
			"fingerprint", r.file.Fingerprint,
		)
	}
	sort.Slice(snap.Skipped, func(i, j int) bool {
		return snap.Skipped[i].Path < snap.Skipped[j].Path
	})
	return snap, nil
}

// hashAll fingerprints jobs and returns the results in job order.
func hashAll(jobs []fileJob, opts Options) []hashResult {
	results := make([]hashResult, len(jobs))
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobCh := make(chan int, len(jobs))
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, bufSize)
			for i := range jobCh {
				results[i] = hashOne(jobs[i], opts.Strategy, buf)
			}
		}()
	}
	for i := range jobs {
		jobCh <- i
	}
	close(jobCh)
	wg.Wait()
	return results
}

func hashOne(j fileJob, s Strategy, buf []byte) hashResult {
	fp, size, err := Of(j.absPath, s, buf)
	if err != nil {
		return hashResult{job: j, err: err}
	}
	return hashResult{
		job: j,
		file: File{
			Path:        j.relPath,
			AbsPath:     j.absPath,
			Size:        size,
			Fingerprint: fp,
		},
	}
}
