// Package types holds the identifiers and handles shared across the index:
// the file table, the string arena, and the trigram index all speak these
// types rather than depending on each other's internals.
package types

// FileID is a dense, monotonically assigned identifier. Zero means "none".
type FileID uint32

// NoFileID is the reserved sentinel meaning "no file".
const NoFileID FileID = 0

// StringHandle is an (offset, length) pair into the string arena's backing
// byte buffer. A handle is only ever valid against the arena that produced
// it, and never relocates once written.
type StringHandle struct {
	Offset uint32
	Len    uint16
}

// Zero reports whether the handle is the unset value.
func (h StringHandle) Zero() bool {
	return h.Offset == 0 && h.Len == 0
}

// DevIno identifies a file by device and inode, used to recognize the same
// underlying file across a rename/move when the watcher only reports one
// side of it.
type DevIno struct {
	Dev uint64
	Ino uint64
}

// Zero reports whether the platform supplied no meaningful inode identity.
func (d DevIno) Zero() bool {
	return d.Dev == 0 && d.Ino == 0
}

// Trigram is a lowercased 3-byte sequence packed into the low 24 bits of a
// uint32. It is the unit of inverted-index lookup in the trigram index.
type Trigram uint32

// PackTrigram encodes three bytes into a Trigram key. Callers are
// responsible for lowercasing first.
func PackTrigram(a, b, c byte) Trigram {
	return Trigram(uint32(a)<<16 | uint32(b)<<8 | uint32(c))
}

// UpdateKind enumerates the canonical update types produced by the scanner,
// the watcher adapter, and the journal.
type UpdateKind uint8

const (
	UpdateCreate UpdateKind = 1
	UpdateModify UpdateKind = 2
	UpdateDelete UpdateKind = 3
	UpdateMove   UpdateKind = 4
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateCreate:
		return "Create"
	case UpdateModify:
		return "Modify"
	case UpdateDelete:
		return "Delete"
	case UpdateMove:
		return "Move"
	default:
		return "Unknown"
	}
}

// FileMeta is one record of the file table: everything the index knows
// about a single path.
type FileMeta struct {
	Path       StringHandle
	Name       StringHandle // basename, stored separately for query-time locality
	Size       uint64
	Mtime      int64 // seconds since epoch, signed to allow pre-epoch values
	Dev        uint64
	Ino        uint64
	IsDir      bool
	Tombstoned bool
}

// Update is a single canonical mutation produced by the scanner, the
// watcher adapter, or journal replay.
type Update struct {
	Kind UpdateKind

	// Path fields: Move carries both; others carry Path only.
	Path    string
	OldPath string // populated only for Move

	Size  uint64
	Mtime int64
	Dev   uint64
	Ino   uint64
	IsDir bool
}
