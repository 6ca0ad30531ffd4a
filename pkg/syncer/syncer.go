// Package syncer drives one incremental sync of a local tree to a remote
// transport.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tqbf/ftpsync/pkg/fingerprint"
	"github.com/tqbf/ftpsync/pkg/manifest"
	"github.com/tqbf/ftpsync/pkg/paths"
	"github.com/tqbf/ftpsync/pkg/plan"
	"github.com/tqbf/ftpsync/pkg/remote"
)

// Dialer opens the transport for one run. The driver closes it.
type Dialer func(ctx context.Context) (remote.Transport, error)

type Options struct {
	LocalDir     string
	ManifestName string
	ScratchPath  string
	Exclusions   *paths.Exclusions
	Strategy     fingerprint.Strategy
	HashWorkers  int

	DeleteOrphans bool
	Strict        bool

	// DryRun stops once the plan is computed.
	DryRun bool

	// OnState is called on every state transition.
	OnState func(State)
}

type Report struct {
	State    State
	FirstRun bool
	Plan     plan.Plan

	Uploaded []string
	Deleted  []string
	// Skipped lists local files that could not be read.
	Skipped []string
	// Retained lists deletes that failed; their manifest entries are
	// kept so the next run retries them.
	Retained []string
	// Excluded lists previous manifest entries that the exclusions now
	// match. They are left on the remote and forgotten.
	Excluded []string

	// Local is the fingerprinted tree the plan was computed from.
	Local         fingerprint.Snapshot
	Files         int
	TotalBytes    int64
	UploadedBytes int64

	Manifest manifest.Manifest
	Elapsed  time.Duration
}

type Driver struct {
	opts Options
	dial Dialer
	log  *slog.Logger
}

func New(opts Options, dial Dialer, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	if opts.ManifestName == "" {
		opts.ManifestName = ".file_hashes.json"
	}
	return &Driver{opts: opts, dial: dial, log: log}
}

func (d *Driver) setState(rep *Report, s State) {
	rep.State = s
	d.log.Debug("sync state", "state", s)
	if d.opts.OnState != nil {
		d.opts.OnState(s)
	}
}

func (d *Driver) fail(rep *Report, err error) (*Report, error) {
	d.setState(rep, StateFailed)
	d.log.Error("sync failed", "err", err)
	return rep, err
}

// exclusions returns the configured set plus the manifest file and, when
// it lives inside the local tree, the scratch copy.
func (d *Driver) exclusions() *paths.Exclusions {
	excl := d.opts.Exclusions.Clone()
	excl.AddPath(d.opts.ManifestName)

	if d.opts.ScratchPath == "" {
		return excl
	}
	root, err1 := filepath.Abs(d.opts.LocalDir)
	scratch, err2 := filepath.Abs(d.opts.ScratchPath)
	if err1 == nil && err2 == nil && paths.IsWithinDir(root, scratch) {
		if rel, err := filepath.Rel(root, scratch); err == nil {
			excl.AddPath(rel)
			excl.AddPath(rel + ".lock")
		}
	}
	return excl
}

func (d *Driver) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	rep := &Report{}
	defer func() { rep.Elapsed = time.Since(start) }()

	excl := d.exclusions()

	d.setState(rep, StateConnecting)
	store := &manifest.Store{
		Name:        d.opts.ManifestName,
		ScratchPath: d.opts.ScratchPath,
		Logger:      d.log,
	}
	unlock, err := store.Lock()
	if err != nil {
		return d.fail(rep, err)
	}
	defer unlock()

	tr, err := d.dial(ctx)
	if err != nil {
		return d.fail(rep, fmt.Errorf("connect: %w", err))
	}
	defer func() {
		if err := tr.Close(); err != nil {
			d.log.Warn("closing transport", "err", err)
		}
	}()
	store.Transport = tr

	prev, firstRun, err := store.Load(ctx)
	if err != nil {
		return d.fail(rep, err)
	}
	prev, firstRun = d.checkKind(prev, firstRun)
	prev, rep.Excluded = prev.Filter(excl.Excludes)
	for _, p := range rep.Excluded {
		d.log.Info("excluded path left on remote", "path", p)
	}
	rep.FirstRun = firstRun
	d.setState(rep, StateManifestLoaded)

	snap, err := fingerprint.Walk(d.opts.LocalDir, excl,
		fingerprint.Options{
			Strategy: d.opts.Strategy,
			Strict:   d.opts.Strict,
			Workers:  d.opts.HashWorkers,
			Logger:   d.log,
		},
	)
	if err != nil {
		return d.fail(rep, fmt.Errorf("fingerprint: %w", err))
	}
	current := snap.Manifest()
	for _, s := range snap.Skipped {
		rep.Skipped = append(rep.Skipped, s.Path)
		// An unreadable file keeps its old entry; it is neither
		// uploaded nor treated as an orphan.
		if old, ok := prev[s.Path]; ok {
			current[s.Path] = old
		}
	}
	rep.Local = snap
	rep.Files = len(snap.Files)
	rep.TotalBytes = snap.TotalSize(nil)
	d.setState(rep, StateFingerprinted)

	rep.Plan = plan.Compute(current, prev, plan.Options{
		FirstRun:      firstRun,
		DeleteOrphans: d.opts.DeleteOrphans,
	})
	d.log.Info("planned",
		"uploads", len(rep.Plan.Uploads),
		"deletes", len(rep.Plan.Deletes),
		"files", rep.Files,
		"first_run", firstRun,
	)
	d.setState(rep, StatePlanned)
	if d.opts.DryRun {
		return rep, nil
	}

	d.setState(rep, StateExecuting)
	next := current.Clone()
	if err := d.upload(ctx, tr, snap, prev, next, rep); err != nil {
		return d.fail(rep, err)
	}
	if err := d.prune(ctx, tr, prev, next, rep); err != nil {
		return d.fail(rep, err)
	}

	d.setState(rep, StatePersisting)
	if err := store.Save(ctx, next); err != nil {
		return d.fail(rep, fmt.Errorf("persist: %w", err))
	}
	rep.Manifest = next
	d.setState(rep, StateDone)
	d.log.Info("sync complete",
		"uploaded", len(rep.Uploaded),
		"deleted", len(rep.Deleted),
		"retained", len(rep.Retained),
		"skipped", len(rep.Skipped),
	)
	return rep, nil
}

// checkKind forces a first run when the stored manifest holds a different
// kind of fingerprint than this run produces.
func (d *Driver) checkKind(
	prev manifest.Manifest, firstRun bool,
) (manifest.Manifest, bool) {
	kind, err := prev.Kind()
	if err != nil || kind == manifest.KindEmpty ||
		kind == d.opts.Strategy.Kind() {
		return prev, firstRun
	}
	d.log.Warn("manifest fingerprint kind changed, re-uploading everything",
		"stored", kind,
		"strategy", d.opts.Strategy,
	)
	return manifest.Manifest{}, true
}

func (d *Driver) upload(
	ctx context.Context,
	tr remote.Transport,
	snap fingerprint.Snapshot,
	prev, next manifest.Manifest,
	rep *Report,
) error {
	for _, a := range rep.Plan.Uploads {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := snap.Files[a.Path]
		r, err := os.Open(f.AbsPath)
		if err != nil {
			if d.opts.Strict {
				return fmt.Errorf("open %s: %w", a.Path, err)
			}
			d.log.Warn("skipping unreadable file",
				"path", a.Path,
				"err", err,
			)
			rep.Skipped = append(rep.Skipped, a.Path)
			if old, ok := prev[a.Path]; ok {
				next[a.Path] = old
			} else {
				delete(next, a.Path)
			}
			continue
		}
		err = tr.Upload(ctx, r, a.Path)
		r.Close()
		if err != nil {
			return fmt.Errorf("upload %s: %w", a.Path, err)
		}
		d.log.Info("uploaded",
			"path", a.Path,
			"reason", a.Reason,
			"bytes", f.Size,
		)
		rep.Uploaded = append(rep.Uploaded, a.Path)
		rep.UploadedBytes += f.Size
	}
	return nil
}

func (d *Driver) prune(
	ctx context.Context,
	tr remote.Transport,
	prev, next manifest.Manifest,
	rep *Report,
) error {
	for _, p := range rep.Plan.Deletes {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := tr.Delete(ctx, p)
		switch {
		case err == nil:
			d.log.Info("deleted", "path", p)
		case remote.IsNotFound(err):
			d.log.Info("already absent on remote", "path", p)
		default:
			d.log.Warn("delete failed, will retry next run",
				"path", p,
				"err", err,
			)
			rep.Retained = append(rep.Retained, p)
			next[p] = prev[p]
			continue
		}
		rep.Deleted = append(rep.Deleted, p)
	}
	return nil
}
