package client

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/lci/internal/wire"
)

// echoSearchServer accepts exactly one connection, reads one Search
// envelope, and replies with a fixed SearchResponse — enough to exercise
// Conn.Search's framing without standing up a full internal/server.
func echoSearchServer(t *testing.T, socketPath string) {
	t.Helper()
	ln, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var env wire.Envelope
		if err := wire.ReadMessage(conn, &env); err != nil {
			return
		}
		resp := wire.SearchResponse{
			Results: []wire.SearchResultItem{{Path: "main.go", Score: 1.0, Strategy: "exact"}},
		}
		wire.WriteMessage(conn, resp)
	}()
}

func TestConnSearchRoundTrip(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "test.sock")
	echoSearchServer(t, socketPath)

	// Give the listener a moment to be ready to accept.
	var conn *Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = Dial(socketPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	defer conn.Close()

	resp, err := conn.Search(wire.SearchRequest{Query: "main"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.Equal(t, "main.go", resp.Results[0].Path)
}

// errorSearchServer accepts one connection and replies to any request
// with a wire.ErrorResponse, exercising decodeReply's "error" probe.
func errorSearchServer(t *testing.T, socketPath string) {
	t.Helper()
	ln, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var env wire.Envelope
		if err := wire.ReadMessage(conn, &env); err != nil {
			return
		}
		wire.WriteMessage(conn, wire.ErrorResponse{Error: "index is loading", Kind: "not_ready"})
	}()
}

func TestConnSearchReturnsErrorOnErrorResponse(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "test.sock")
	errorSearchServer(t, socketPath)

	var conn *Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = Dial(socketPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Search(wire.SearchRequest{Query: "main"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "index is loading")
}

func TestPingReportsUnreachableSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "nonexistent.sock")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.False(t, Ping(ctx, socketPath))
}
