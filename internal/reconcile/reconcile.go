// Package reconcile implements the self-healing reconciler (part of
// component C9): a bounded-budget sampling pass over the configured
// roots that brings the live index back in sync with the filesystem
// without a full rebuild. Grounded on the teacher's
// internal/indexing/pipeline.go ScanDirectory walk shape, reused here
// through internal/scanner, with the watcher's dev/ino identity idiom
// from internal/watcher applied to tell a changed file from a new one.
package reconcile

import (
	"context"
	"os"
	"path/filepath"

	"github.com/standardbeagle/lci/internal/index"
	"github.com/standardbeagle/lci/internal/pathmatch"
	"github.com/standardbeagle/lci/internal/scanner"
)

// Options configures a Reconciler.
type Options struct {
	Roots       []string
	Exclusions  []string
	MaxFileSize int64

	// Budget bounds how many filesystem entries a single Run examines,
	// so reconciliation never competes with request latency the way an
	// unbounded full rescan would.
	Budget int
}

// DefaultBudget is used when Options.Budget is unset.
const DefaultBudget = 5000

// Result summarizes one reconciliation pass.
type Result struct {
	Examined int
	Inserted int
	Updated  int
	Moved    int
}

// Reconciler walks Options.Roots, stopping after Budget filesystem
// entries, and applies differential updates to idx: new paths are
// inserted, changed size/mtime updates existing records, and a path whose
// (dev,ino) already exists under a different name is treated as a move.
// It never tombstones: detecting deletions reliably needs a full sweep
// cross-referencing every live record against the filesystem, which is
// deliberately left to the watcher (which observes deletions directly)
// rather than this bounded sampler — see DESIGN.md.
type Reconciler struct {
	idx  *index.Index
	opts Options
}

// New returns a Reconciler over idx configured by opts. A zero or
// negative Budget is replaced with DefaultBudget.
func New(idx *index.Index, opts Options) *Reconciler {
	if opts.Budget <= 0 {
		opts.Budget = DefaultBudget
	}
	return &Reconciler{idx: idx, opts: opts}
}

// Run performs one bounded pass and returns what it did. ctx cancellation
// stops the walk early without error; the partial result is still valid
// since reconciliation is idempotent and safe to resume on the next tick.
func (r *Reconciler) Run(ctx context.Context) (Result, error) {
	var res Result
	for _, root := range r.opts.Roots {
		if res.Examined >= r.opts.Budget {
			break
		}
		if err := r.walkRoot(ctx, root, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (r *Reconciler) walkRoot(ctx context.Context, root string, res *Result) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if res.Examined >= r.opts.Budget {
			return filepath.SkipAll
		}
		select {
		case <-ctx.Done():
			return filepath.SkipAll
		default:
		}
		if err != nil {
			return nil
		}
		if info.IsDir() {
			rel, relErr := filepath.Rel(root, path)
			if path != root && relErr == nil && pathmatch.MatchesAny(filepath.ToSlash(rel), r.opts.Exclusions) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if pathmatch.MatchesAny(filepath.ToSlash(rel), r.opts.Exclusions) {
			return nil
		}
		if r.opts.MaxFileSize > 0 && info.Size() > r.opts.MaxFileSize {
			return nil
		}

		res.Examined++
		dev, ino, ok := scanner.DevIno(info)
		if !ok {
			return nil
		}
		r.reconcileOne(path, info, dev, ino, res)
		return nil
	})
}

func (r *Reconciler) reconcileOne(path string, info os.FileInfo, dev, ino uint64, res *Result) {
	if id, ok := r.idx.FindByDevIno(dev, ino); ok {
		meta, ok := r.idx.Get(id)
		if !ok {
			return
		}
		existingPath, err := r.idx.Resolve(meta.Path)
		if err != nil {
			return
		}
		if existingPath != path {
			name := filepath.Base(path)
			if err := r.idx.Rename(id, path, name); err == nil {
				res.Moved++
			}
			return
		}
		if meta.Size != uint64(info.Size()) || meta.Mtime != info.ModTime().Unix() {
			if r.idx.UpdateMeta(id, uint64(info.Size()), info.ModTime().Unix()) {
				res.Updated++
			}
		}
		return
	}

	name := filepath.Base(path)
	if _, err := r.idx.Insert(path, name, uint64(info.Size()), info.ModTime().Unix(), dev, ino, info.IsDir()); err == nil {
		res.Inserted++
	}
}
