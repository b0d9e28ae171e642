// Package metrics holds the resident process's in-memory counters
// component C15), read without taking the index's RW lock, that feed
// StatusResponse and the status CLI command. It replaces the
// teacher's internal/metrics/codebase_stats.go (symbol/call-graph analytics,
// a content-indexing concern out of this module's scope) with counters
// matching StatusResponse's fields.
package metrics

import (
	"sync/atomic"
	"time"
)

// Status holds atomically-updated counters. Zero value is ready to use.
type Status struct {
	files       atomic.Int64
	trigrams    atomic.Int64
	arenaBytes  atomic.Int64
	generation  atomic.Int64
	reconciling atomic.Bool
	lastReconcile atomic.Int64 // unix seconds, 0 = never
}

func (s *Status) SetFiles(n int)      { s.files.Store(int64(n)) }
func (s *Status) SetTrigrams(n int)   { s.trigrams.Store(int64(n)) }
func (s *Status) SetArenaBytes(n int) { s.arenaBytes.Store(int64(n)) }
func (s *Status) SetGeneration(g uint64) { s.generation.Store(int64(g)) }

func (s *Status) SetReconciling(v bool) { s.reconciling.Store(v) }

func (s *Status) MarkReconciled(at time.Time) {
	s.lastReconcile.Store(at.Unix())
}

// Snapshot is an immutable point-in-time read of all counters.
type Snapshot struct {
	Files         int64
	Trigrams      int64
	ArenaBytes    int64
	Generation    int64
	Reconciling   bool
	LastReconcile time.Time // zero value if never reconciled
}

func (s *Status) Snapshot() Snapshot {
	var last time.Time
	if t := s.lastReconcile.Load(); t != 0 {
		last = time.Unix(t, 0)
	}
	return Snapshot{
		Files:         s.files.Load(),
		Trigrams:      s.trigrams.Load(),
		ArenaBytes:    s.arenaBytes.Load(),
		Generation:    s.generation.Load(),
		Reconciling:   s.reconciling.Load(),
		LastReconcile: last,
	}
}
