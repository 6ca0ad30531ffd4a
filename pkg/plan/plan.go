// Package plan computes the uploads and deletes that bring a remote in line
// with a local fingerprint map.
package plan

import (
	"sort"

	"github.com/tqbf/ftpsync/pkg/manifest"
)

type Reason string

const (
	ReasonFirstRun Reason = "first-run"
	ReasonNew      Reason = "new"
	ReasonModified Reason = "modified"
)

type Action struct {
	Path   string
	Reason Reason
}

type Plan struct {
	Uploads []Action
	Deletes []string
}

type Options struct {
	FirstRun      bool
	DeleteOrphans bool
}

func Compute(
	current, previous manifest.Manifest,
	opts Options,
) Plan {
	var p Plan

	for path, fp := range current {
		switch prev, ok := previous[path]; {
		case opts.FirstRun:
			p.Uploads = append(p.Uploads, Action{path, ReasonFirstRun})
		case !ok:
			p.Uploads = append(p.Uploads, Action{path, ReasonNew})
		case prev != fp:
			p.Uploads = append(p.Uploads, Action{path, ReasonModified})
		}
	}

	if opts.DeleteOrphans && !opts.FirstRun {
		for path := range previous {
			if _, ok := current[path]; !ok {
				p.Deletes = append(p.Deletes, path)
			}
		}
	}

	sort.Slice(p.Uploads, func(i, j int) bool {
		return p.Uploads[i].Path < p.Uploads[j].Path
	})
	sort.Strings(p.Deletes)
	return p
}

func (p Plan) Empty() bool {
	return len(p.Uploads) == 0 && len(p.Deletes) == 0
}

func (p Plan) UploadPaths() []string {
	out := make([]string, len(p.Uploads))
	for i, a := range p.Uploads {
		out[i] = a.Path
	}
	return out
}

// Count returns the number of uploads with the given reason.
func (p Plan) Count(r Reason) int {
	n := 0
	for _, a := range p.Uploads {
		if a.Reason == r {
			n++
		}
	}
	return n
}
