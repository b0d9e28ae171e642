// Package server implements the resident process (component C9): single-
// instance enforcement via a lock file, a local byte-stream endpoint
// speaking internal/wire's framed JSON protocol, the ColdStart -> Loading
// -> (Rebuilding | Ready) -> (Ready <-> Updating) -> ShuttingDown state
// machine, and the goroutine roles spec.md §5 names (acceptor, watcher
// consumer, journal writer, reconciler). Grounded on the teacher's
// internal/server/server.go IndexServer (RWMutex-guarded lifecycle state,
// GetSocketPath-style naming, background-goroutine startup shape, graceful
// Shutdown), generalized from its http.Server/net/http transport to
// internal/wire's custom framing over a raw net.Listener, per spec.md's
// wire-protocol mandate. The teacher's code-intelligence handlers
// (symbols, references, git analysis, browsing) have no SPEC_FULL.md
// counterpart and are not carried here — see DESIGN.md.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"

	lcierrors "github.com/standardbeagle/lci/internal/errors"
	"github.com/standardbeagle/lci/internal/index"
	"github.com/standardbeagle/lci/internal/metrics"
	"github.com/standardbeagle/lci/internal/query"
	"github.com/standardbeagle/lci/internal/reconcile"
	"github.com/standardbeagle/lci/internal/scanner"
	"github.com/standardbeagle/lci/internal/snapshot"
	"github.com/standardbeagle/lci/internal/types"
	"github.com/standardbeagle/lci/internal/version"
	"github.com/standardbeagle/lci/internal/watcher"
	"github.com/standardbeagle/lci/internal/wire"
)

// State is the resident process's lifecycle state, per spec.md §4.9.
type State int32

const (
	StateColdStart State = iota
	StateLoading
	StateRebuilding
	StateReady
	StateUpdating
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateColdStart:
		return "ColdStart"
	case StateLoading:
		return "Loading"
	case StateRebuilding:
		return "Rebuilding"
	case StateReady:
		return "Ready"
	case StateUpdating:
		return "Updating"
	case StateShuttingDown:
		return "ShuttingDown"
	default:
		return "Unknown"
	}
}

// idleTimeout is the acceptor's per-connection inactivity timeout, per
// spec.md §5.
const idleTimeout = 30 * time.Second

// Options configures a Server.
type Options struct {
	StateDir      string // directory holding config.toml/daemon.sock/daemon.pid/index/
	IndexRoots    []string
	Exclusions    []string
	MaxFileSize   int64
	ReconcileHour int // 0-23, local time

	Weights query.Weights

	Logger *slog.Logger
}

// Server is one resident process instance, owning the live index and the
// local endpoint clients connect to.
type Server struct {
	opts   Options
	logger *slog.Logger

	lock *flock.Flock

	mu         sync.RWMutex
	state      State
	idx        *index.Index
	engine     *query.Engine
	listener   net.Listener
	watch      *watcher.Watcher
	journal    *snapshot.Journal
	metrics    *metrics.Status
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

func socketPath(stateDir string) string { return filepath.Join(stateDir, "daemon.sock") }
func lockPath(stateDir string) string   { return filepath.Join(stateDir, "daemon.pid") }
func snapshotPath(stateDir string) string {
	return filepath.Join(stateDir, "index", "index.bin")
}
func journalPath(stateDir string) string {
	return filepath.Join(stateDir, "index", "index.journal")
}

// New constructs a Server; it does not touch the filesystem or network
// until Start is called.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		opts:       opts,
		logger:     logger,
		state:      StateColdStart,
		metrics:    &metrics.Status{},
		shutdownCh: make(chan struct{}),
	}
}

// Start acquires the single-instance lock, loads the existing snapshot and
// journal (or begins a fresh index if none exist), opens the local
// endpoint, and begins serving. It returns once the endpoint is accepting
// connections; loading/rebuilding continues in the background and clients
// see NotReady until it completes.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(s.opts.StateDir, "index"), 0o755); err != nil {
		return lcierrors.IoFatal("server.start.mkdir", err)
	}

	if err := s.acquireLock(); err != nil {
		return err
	}

	sp := socketPath(s.opts.StateDir)
	os.Remove(sp)
	ln, err := net.Listen("unix", sp)
	if err != nil {
		return lcierrors.IoFatal("server.start.listen", err)
	}
	os.Chmod(sp, 0o600)
	s.listener = ln

	s.setState(StateLoading)
	s.wg.Add(1)
	go s.loadAndServe(ctx)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

func (s *Server) acquireLock() error {
	lp := lockPath(s.opts.StateDir)
	s.lock = flock.New(lp)
	ok, err := s.lock.TryLock()
	if err != nil {
		return lcierrors.IoFatal("server.start.lock", err)
	}
	if !ok {
		return fmt.Errorf("another instance already owns %s", s.opts.StateDir)
	}
	// flock's advisory lock is itself released the moment this process
	// dies (even uncleanly), which is what makes a stale lock from a
	// crashed prior instance reclaimable on the very next TryLock; the
	// pid file content below is informational only; nothing reads it back.
	return os.WriteFile(lp, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func (s *Server) loadAndServe(ctx context.Context) {
	defer s.wg.Done()

	idx, rebuilt, err := s.load()
	if err != nil {
		s.logger.Error("load failed, entering degraded mode", "error", err)
		s.setState(StateReady)
		return
	}
	s.mu.Lock()
	s.idx = idx
	if !rebuilt {
		s.engine = query.New(idx, s.opts.Weights)
	}
	s.mu.Unlock()
	s.refreshMetrics()

	if rebuilt {
		// A fresh index has no previous contents to serve: the engine is
		// installed only after the scan fills it, so searches get NotReady
		// meanwhile.
		s.setState(StateRebuilding)
		s.runScan(ctx)
		s.mu.Lock()
		s.engine = query.New(idx, s.opts.Weights)
		s.mu.Unlock()
	}
	s.setState(StateReady)

	if err := s.startWatching(ctx); err != nil {
		s.logger.Warn("watcher unavailable", "error", err)
	}

	s.scheduleReconciliation(ctx)
}

// load reads the existing snapshot and replays the journal on top of it.
// A missing, corrupt, or version-incompatible snapshot triggers a fresh
// scan instead of failing startup, per spec.md §7's Corrupt/
// IncompatibleVersion policy.
func (s *Server) load() (*index.Index, bool, error) {
	sp := snapshotPath(s.opts.StateDir)
	idx, err := snapshot.Read(sp)
	if err != nil {
		if lcierrors.Is(err, lcierrors.KindCorrupt) || lcierrors.Is(err, lcierrors.KindIncompatibleVersion) {
			s.logger.Warn("snapshot unusable, rebuilding", "error", err)
			os.Remove(sp)
			return index.New(), true, nil
		}
		if os.IsNotExist(unwrapIo(err)) {
			return index.New(), true, nil
		}
		return nil, false, err
	}

	jp := journalPath(s.opts.StateDir)
	replayErr := snapshot.ReplayJournal(jp, func(u types.Update) error {
		return s.applyUpdate(idx, u)
	})
	if replayErr != nil {
		return nil, false, replayErr
	}
	return idx, false, nil
}

// unwrapIo peels one level of *lcierrors.Error to recover the underlying
// os error, so os.IsNotExist still works after Read wraps ENOENT.
func unwrapIo(err error) error {
	var e *lcierrors.Error
	if errors.As(err, &e) && e.Underlying != nil {
		return e.Underlying
	}
	return err
}

func (s *Server) runScan(ctx context.Context) {
	s.mu.RLock()
	idx := s.idx
	s.mu.RUnlock()

	sc := scanner.New(scanner.Options{
		Roots:       s.opts.IndexRoots,
		Exclusions:  s.opts.Exclusions,
		MaxFileSize: s.opts.MaxFileSize,
	})
	err := sc.Run(ctx, func(u types.Update) error {
		_, err := idx.Insert(u.Path, filepath.Base(u.Path), u.Size, u.Mtime, u.Dev, u.Ino, u.IsDir)
		return err
	})
	if err != nil {
		s.logger.Error("scan failed", "error", err)
	}
	idx.BumpGeneration()
	if err := snapshot.Write(idx, snapshotPath(s.opts.StateDir)); err != nil {
		s.logger.Error("snapshot write failed", "error", err)
	}
	s.refreshMetrics()
}

func (s *Server) startWatching(ctx context.Context) error {
	s.mu.RLock()
	idx := s.idx
	s.mu.RUnlock()

	w, err := watcher.New(watcher.Options{
		Roots:      s.opts.IndexRoots,
		Exclusions: s.opts.Exclusions,
		StartToken: idx.LastEventToken(),
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.watch = w
	s.mu.Unlock()

	jp := journalPath(s.opts.StateDir)
	j, err := snapshot.OpenJournal(jp)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.journal = j
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("watcher stopped", "error", err)
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.consumeUpdates(ctx, w, idx, j)
	}()
	return nil
}

// consumeUpdates is the watcher-event-consumer role from spec.md §5: it
// applies each update under the index's write lock, then journals it. The
// journal write's fsync happens outside any index lock (Append itself
// does not take idx.mu), matching the rule that the journal writer must
// not hold the index lock during fsync.
func (s *Server) consumeUpdates(ctx context.Context, w *watcher.Watcher, idx *index.Index, j *snapshot.Journal) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-w.Updates():
			if !ok {
				return
			}
			s.setState(StateUpdating)
			if err := s.applyUpdate(idx, u); err != nil {
				s.logger.Warn("failed to apply update", "path", u.Path, "error", err)
			}
			idx.SetLastEventToken(w.LastToken())
			s.setState(StateReady)
			if err := j.Append(u); err != nil {
				s.logger.Error("journal append failed", "error", err)
			}
			s.refreshMetrics()
		}
	}
}

func (s *Server) applyUpdate(idx *index.Index, u types.Update) error {
	switch u.Kind {
	case types.UpdateCreate, types.UpdateMove:
		if id, ok := idx.FindByDevIno(u.Dev, u.Ino); ok {
			return idx.Rename(id, u.Path, filepath.Base(u.Path))
		}
		_, err := idx.Insert(u.Path, filepath.Base(u.Path), u.Size, u.Mtime, u.Dev, u.Ino, u.IsDir)
		return err
	case types.UpdateModify:
		if id, ok := idx.FindByDevIno(u.Dev, u.Ino); ok {
			idx.UpdateMeta(id, u.Size, u.Mtime)
		}
		return nil
	case types.UpdateDelete:
		if id, ok := idx.FindByDevIno(u.Dev, u.Ino); ok {
			idx.Tombstone(id)
		}
		return nil
	default:
		return nil
	}
}

// scheduleReconciliation schedules an immediate startup reconciliation and
// a recurring daily one at ReconcileHour local time, per spec.md §4.9.
func (s *Server) scheduleReconciliation(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runReconcile(ctx) // startup reconciliation

		for {
			d := durationUntilHour(s.opts.ReconcileHour)
			select {
			case <-ctx.Done():
				return
			case <-time.After(d):
				s.runReconcile(ctx)
			}
		}
	}()
}

func durationUntilHour(hour int) time.Duration {
	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

func (s *Server) runReconcile(ctx context.Context) {
	s.mu.RLock()
	idx := s.idx
	s.mu.RUnlock()
	if idx == nil {
		return
	}
	s.metrics.SetReconciling(true)
	defer s.metrics.SetReconciling(false)

	r := reconcile.New(idx, reconcile.Options{
		Roots:       s.opts.IndexRoots,
		Exclusions:  s.opts.Exclusions,
		MaxFileSize: s.opts.MaxFileSize,
	})
	res, err := r.Run(ctx)
	if err != nil {
		s.logger.Warn("reconciliation error", "error", err)
		return
	}
	s.metrics.MarkReconciled(time.Now())
	s.refreshMetrics()
	s.logger.Info("reconciliation complete",
		"examined", res.Examined, "inserted", res.Inserted, "updated", res.Updated, "moved", res.Moved)
}

func (s *Server) refreshMetrics() {
	s.mu.RLock()
	idx := s.idx
	s.mu.RUnlock()
	if idx == nil {
		return
	}
	files := 0
	idx.IterLive(func(_ types.FileID, _ *types.FileMeta) bool { files++; return true })
	s.metrics.SetFiles(files)
	s.metrics.SetGeneration(idx.Generation())
	s.metrics.SetTrigrams(idx.TrigramCount())
	s.metrics.SetArenaBytes(idx.ArenaLen())
}

func (s *Server) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State returns the process's current lifecycle state.
func (s *Server) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// acceptLoop accepts connections until the listener is closed.
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdownCh:
				return
			default:
				s.logger.Warn("accept error", "error", err)
				return
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	for {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))
		var env wire.Envelope
		if err := wire.ReadMessage(conn, &env); err != nil {
			return
		}
		resp, shutdown := s.dispatch(env)
		if err := wire.WriteMessage(conn, resp); err != nil {
			return
		}
		if shutdown {
			go s.Shutdown(context.Background())
			return
		}
	}
}

func (s *Server) dispatch(env wire.Envelope) (resp any, shutdown bool) {
	switch env.Kind {
	case wire.KindSearch:
		return s.handleSearch(env.Body), false
	case wire.KindStatus:
		return s.handleStatus(), false
	case wire.KindRebuild:
		return s.handleRebuild(env.Body), false
	case wire.KindShutdown:
		return wire.Ok{Ok: true}, true
	default:
		return wire.ErrorResponse{Error: "unrecognized request kind", Kind: string(lcierrors.KindInvalidRequest)}, false
	}
}

func (s *Server) handleSearch(body json.RawMessage) any {
	var req wire.SearchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return wire.ErrorResponse{Error: err.Error(), Kind: string(lcierrors.KindInvalidRequest)}
	}

	st := s.State()
	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()
	if st == StateLoading || engine == nil {
		return wire.ErrorResponse{Error: "index is loading", Kind: string(lcierrors.KindNotReady)}
	}

	results, err := engine.Search(query.Request{
		Query: req.Query,
		Limit: req.Limit,
		Scope: req.Scope,
		Mode:  parseMode(req.Mode),
	})
	if err != nil {
		return wire.ErrorResponse{Error: err.Error(), Kind: string(lcierrors.KindResourceExhausted)}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	items := make([]wire.SearchResultItem, 0, len(results))
	for _, r := range results {
		items = append(items, wire.SearchResultItem{
			Path: r.Path, Score: r.Score, Strategy: r.Strategy, Mtime: r.Mtime, Size: r.Size,
		})
	}
	return wire.SearchResponse{Results: items, Truncated: len(results) >= limit}
}

func parseMode(m string) query.Mode {
	switch m {
	case "exact":
		return query.ModeExact
	case "fuzzy":
		return query.ModeFuzzy
	default:
		return query.ModeSmart
	}
}

func (s *Server) handleStatus() any {
	snap := s.metrics.Snapshot()
	var lastReconcile int64
	if !snap.LastReconcile.IsZero() {
		lastReconcile = snap.LastReconcile.Unix()
	}
	return wire.StatusResponse{
		Files:         snap.Files,
		Trigrams:      snap.Trigrams,
		ArenaBytes:    snap.ArenaBytes,
		Generation:    snap.Generation,
		LastReconcile: lastReconcile,
		Reconciling:   snap.Reconciling,
		Build:         wire.BuildInfo{Version: version.Version, Commit: version.GitCommit},
	}
}

func (s *Server) handleRebuild(body json.RawMessage) any {
	var req wire.RebuildRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return wire.ErrorResponse{Error: err.Error(), Kind: string(lcierrors.KindInvalidRequest)}
	}
	roots := req.Roots
	if len(roots) == 0 {
		roots = s.opts.IndexRoots
	}

	start := time.Now()
	if req.DryRun {
		sc := scanner.New(scanner.Options{Roots: roots, Exclusions: s.opts.Exclusions, MaxFileSize: s.opts.MaxFileSize})
		scanned := 0
		sc.Run(context.Background(), func(types.Update) error { scanned++; return nil })
		return wire.RebuildResponse{Scanned: scanned, ElapsedMs: time.Since(start).Milliseconds()}
	}

	s.setState(StateRebuilding)
	defer s.setState(StateReady)

	fresh := index.New()
	sc := scanner.New(scanner.Options{Roots: roots, Exclusions: s.opts.Exclusions, MaxFileSize: s.opts.MaxFileSize})
	scanned := 0
	sc.Run(context.Background(), func(u types.Update) error {
		scanned++
		_, err := fresh.Insert(u.Path, filepath.Base(u.Path), u.Size, u.Mtime, u.Dev, u.Ino, u.IsDir)
		return err
	})
	fresh.BumpGeneration()

	s.mu.Lock()
	s.idx = fresh
	s.engine = query.New(fresh, s.opts.Weights)
	s.mu.Unlock()
	s.refreshMetrics()

	if err := snapshot.Write(fresh, snapshotPath(s.opts.StateDir)); err != nil {
		s.logger.Error("snapshot write failed after rebuild", "error", err)
	}
	return wire.RebuildResponse{Scanned: scanned, ElapsedMs: time.Since(start).Milliseconds()}
}

// Shutdown stops accepting new connections, persists a final snapshot, and
// releases the single-instance lock. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.setState(StateShuttingDown)
	select {
	case <-s.shutdownCh:
	default:
		close(s.shutdownCh)
	}
	if s.listener != nil {
		s.listener.Close()
	}
	if s.watch != nil {
		s.watch.Close()
	}
	if s.journal != nil {
		s.journal.Close()
	}

	s.mu.RLock()
	idx := s.idx
	s.mu.RUnlock()
	if idx != nil {
		if err := snapshot.Write(idx, snapshotPath(s.opts.StateDir)); err != nil {
			s.logger.Error("final snapshot write failed", "error", err)
		}
	}

	if s.lock != nil {
		s.lock.Unlock()
		os.Remove(lockPath(s.opts.StateDir))
	}

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// SocketPath returns the local endpoint path this server listens on.
func (s *Server) SocketPath() string { return socketPath(s.opts.StateDir) }
