// Package wire implements the length-prefixed JSON framing shared by the
// resident process (internal/server) and its clients (internal/client,
// cmd/vicaya): each frame is a big-endian u32 byte count followed by
// exactly that many bytes of a single UTF-8 JSON object. Grounded on the
// teacher's internal/server/client.go request/response shape (one call,
// one reply, JSON-tagged structs) generalized from its HTTP transport to
// the custom framing spec.md §6 mandates for this module's local
// byte-stream endpoint.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/standardbeagle/lci/internal/errors"
)

// MaxFrameBytes bounds a single frame, guarding against a corrupt or
// malicious length prefix driving an unbounded allocation.
const MaxFrameBytes = 64 << 20

// WriteFrame writes a single length-prefixed frame: a big-endian u32 byte
// count followed by payload. The caller's responsibility to serialize
// writes on a connection so responses are never interleaved (spec.md
// §4.9's atomicity requirement) — one call to WriteFrame per response.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errors.IoTransient("wire.writeframe.length", err)
	}
	if _, err := w.Write(payload); err != nil {
		return errors.IoTransient("wire.writeframe.payload", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame and returns its payload. A
// length prefix over MaxFrameBytes is treated as InvalidRequest rather
// than attempted.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, err
		}
		return nil, errors.IoTransient("wire.readframe.length", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameBytes {
		return nil, errors.InvalidRequest("wire.readframe.length", nil)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.IoTransient("wire.readframe.payload", err)
	}
	return payload, nil
}

// WriteMessage marshals v as JSON and writes it as a single frame.
func WriteMessage(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.InvalidRequest("wire.writemessage.marshal", err)
	}
	return WriteFrame(w, payload)
}

// ReadMessage reads one frame and unmarshals it into v.
func ReadMessage(r io.Reader, v any) error {
	payload, err := ReadFrame(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return errors.InvalidRequest("wire.readmessage.unmarshal", err)
	}
	return nil
}

// Kind identifies which request/response shape a raw envelope carries.
type Kind string

const (
	KindSearch   Kind = "search"
	KindStatus   Kind = "status"
	KindRebuild  Kind = "rebuild"
	KindShutdown Kind = "shutdown"
)

// Envelope is the outer shape every request carries: Kind selects how to
// interpret the remaining fields of the concrete request type embedded via
// json.RawMessage. Responses are sent as the bare concrete response type;
// only requests are multiplexed this way, since the client already knows
// what response shape to expect for the request it sent.
type Envelope struct {
	Kind Kind            `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// SearchRequest is the body of a KindSearch envelope.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
	Scope string `json:"scope,omitempty"`
	Mode  string `json:"mode,omitempty"` // "smart" (default), "exact", "fuzzy"
}

// SearchResultItem is one ranked match as sent over the wire.
type SearchResultItem struct {
	Path     string  `json:"path"`
	Score    float64 `json:"score"`
	Strategy string  `json:"strategy"`
	Mtime    int64   `json:"mtime"`
	Size     uint64  `json:"size"`
}

// SearchResponse answers a SearchRequest.
type SearchResponse struct {
	Results   []SearchResultItem `json:"results"`
	Truncated bool                `json:"truncated"`
}

// StatusRequest carries no fields; its presence as a named type keeps the
// request/response pairing symmetric and self-documenting.
type StatusRequest struct{}

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// StatusResponse answers a StatusRequest.
type StatusResponse struct {
	Files         int64     `json:"files"`
	Trigrams      int64     `json:"trigrams"`
	ArenaBytes    int64     `json:"arena_bytes"`
	Generation    int64     `json:"generation"`
	LastReconcile int64     `json:"last_reconcile"` // unix seconds, 0 = never
	Reconciling   bool      `json:"reconciling"`
	Build         BuildInfo `json:"build"`
}

// RebuildRequest is the body of a KindRebuild envelope.
type RebuildRequest struct {
	Roots  []string `json:"roots,omitempty"`
	DryRun bool     `json:"dry_run,omitempty"`
}

// RebuildResponse answers a RebuildRequest.
type RebuildResponse struct {
	Scanned   int   `json:"scanned"`
	ElapsedMs int64 `json:"elapsed_ms"`
}

// ShutdownRequest carries no fields.
type ShutdownRequest struct{}

// Ok is the bare acknowledgment returned for Shutdown, and for any
// request that otherwise has nothing more specific to say.
type Ok struct {
	Ok bool `json:"ok"`
}

// ErrorResponse is returned in place of the expected response type when a
// request fails; its Kind mirrors internal/errors.Kind so a client can
// decide whether to retry.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
