package packgraph

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/packgraph/graph"
)

func newLogBuffer() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestCloseWithLogNilCloser(t *testing.T) {
	logger, buf := newLogBuffer()
	CloseWithLog(nil, logger, "graph store")
	assert.Empty(t, buf.String())
}

func TestCloseWithLogStore(t *testing.T) {
	store := graph.NewMemoryStore()
	require.NoError(t, store.Open(context.Background()))

	logger, buf := newLogBuffer()
	CloseWithLog(closerFunc(func() error { return store.Close(context.Background()) }), logger, "graph store")

	assert.False(t, store.IsAlive(context.Background()))
	assert.Empty(t, buf.String(), "a clean close stays quiet")
}

func TestCloseWithLogReportsCloseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	logger, buf := newLogBuffer()
	// The second close of an os.File fails and must be surfaced.
	CloseWithLog(f, logger, "dump file")

	out := buf.String()
	assert.Contains(t, out, "failed to close resource")
	assert.Contains(t, out, "dump file")
	assert.Contains(t, out, "level=WARN")
}

func TestCloseWithLogNilLogger(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "export.json"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NotPanics(t, func() {
		CloseWithLog(f, nil, "dump file")
	})
}

// closerFunc adapts a function to io.Closer for defer-style cleanup.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }
