// Package scanner implements the directory scanner (component C7): a
// parallel walk of the configured index roots that emits one Create
// update per live file, for building a fresh index from scratch.
// Grounded on the teacher's internal/indexing/pipeline.go ScanDirectory
// (filepath.Walk with early directory pruning, symlink-cycle detection
// via filepath.EvalSymlinks, and exclusion matching before any stat-heavy
// work) and pipeline_scanner.go's shouldProcessFile, generalized from the
// teacher's single-walk FileTask channel to a fan-out of one walk per
// configured root, driven by golang.org/x/sync/errgroup
// (the other example repos' standard parallel-walk idiom) instead of the
// teacher's single goroutine.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/lci/internal/pathmatch"
	"github.com/standardbeagle/lci/internal/types"
)

// Options configures a scan.
type Options struct {
	Roots          []string
	Exclusions     []string
	MaxFileSize    int64 // 0 means unlimited
	MaxConcurrency int   // 0 means no limit: one concurrent walk per root
}

// Scanner walks Options.Roots and emits one Create Update per live,
// non-excluded file via Emit. A Scanner is not restartable mid-walk: a
// cancelled or errored Scan produces no partial result the caller should
// treat as a snapshot — Run's caller only installs the emitted updates
// into the index after Run returns nil.
type Scanner struct {
	opts Options

	mu          sync.Mutex
	visitedDirs map[string]bool // real (symlink-resolved) paths already descended into
}

// New returns a Scanner configured to walk opts.Roots.
func New(opts Options) *Scanner {
	return &Scanner{
		opts:        opts,
		visitedDirs: make(map[string]bool),
	}
}

// Run walks every configured root, calling emit once per discovered live
// file under a root. emit must be safe for concurrent use: Run fans out
// one goroutine per root (and, within a root, recurses into
// subdirectories sequentially within that root's goroutine — the
// teacher's walk is already I/O-bound per directory, so root-level
// fan-out captures most of the available parallelism without the
// lock contention many-goroutines-per-directory would add).
//
// Unreadable entries are skipped, not treated as errors. The first error
// from any root's walk (an emit error or ctx cancellation) cancels the
// walks of the other roots, and Run returns that first error.
func (s *Scanner) Run(ctx context.Context, emit func(types.Update) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if s.opts.MaxConcurrency > 0 {
		g.SetLimit(s.opts.MaxConcurrency)
	}
	for _, root := range s.opts.Roots {
		root := root
		g.Go(func() error {
			return s.walkRoot(gctx, root, emit)
		})
	}
	return g.Wait()
}

func (s *Scanner) walkRoot(ctx context.Context, root string, emit func(types.Update) error) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil // skip unreadable entries, keep walking
		}

		if info.IsDir() {
			real, err := filepath.EvalSymlinks(path)
			if err != nil {
				return nil
			}
			s.mu.Lock()
			seen := s.visitedDirs[real]
			s.visitedDirs[real] = true
			s.mu.Unlock()
			if seen {
				return filepath.SkipDir
			}
			if path != root {
				rel, relErr := filepath.Rel(root, path)
				if relErr == nil && s.excluded(filepath.ToSlash(rel)) {
					return filepath.SkipDir
				}
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)
		if s.excluded(rel) {
			return nil
		}
		if s.opts.MaxFileSize > 0 && info.Size() > s.opts.MaxFileSize {
			return nil
		}

		dev, ino, ok := DevIno(info)
		if !ok {
			return nil
		}
		update := types.Update{
			Kind:  types.UpdateCreate,
			Path:  path,
			Size:  uint64(info.Size()),
			Mtime: info.ModTime().Unix(),
			Dev:   dev,
			Ino:   ino,
			IsDir: false,
		}
		return emit(update)
	})
}

func (s *Scanner) excluded(relPath string) bool {
	return pathmatch.MatchesAny(relPath, s.opts.Exclusions)
}

// DevIno extracts the device and inode identity os.Stat already captured
// in info.Sys(), used to recognize file identity across rescans and
// (by internal/watcher) across move pairing. No pack library wraps this:
// it is an inherently platform-specific syscall field, so the standard
// library's syscall.Stat_t is the only fit.
func DevIno(info os.FileInfo) (dev, ino uint64, ok bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return uint64(st.Dev), uint64(st.Ino), true
}
