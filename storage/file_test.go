package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/collection-factory/interfaces"
)

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	backend, err := NewFileBackend(dir, slog.Default())
	require.NoError(t, err)
	assert.True(t, backend.Available(ctx))
	assert.Equal(t, "file://"+dir, backend.LocationURI())

	program := []byte("\x00asm program image")
	id, err := backend.Store(ctx, program, interfaces.ProgramType)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ComputeID(program), id)
	assert.FileExists(t, filepath.Join(dir, "programs", id.String()))

	data, err := backend.Fetch(ctx, id, interfaces.ProgramType)
	require.NoError(t, err)
	assert.Equal(t, program, data)

	// namespaces are separate
	_, err = backend.Fetch(ctx, id, interfaces.RecordType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	// storing twice is idempotent
	again, err := backend.Store(ctx, program, interfaces.ProgramType)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	entries, err := os.ReadDir(filepath.Join(dir, "programs"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFetchVerified(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	backend, err := NewFileBackend(dir, slog.Default())
	require.NoError(t, err)

	id, err := backend.Store(ctx, []byte("record"), interfaces.RecordType)
	require.NoError(t, err)

	data, err := FetchVerified(ctx, backend, id, interfaces.RecordType)
	require.NoError(t, err)
	assert.Equal(t, []byte("record"), data)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "records", id.String()), []byte("tampered"), 0644))
	_, err = FetchVerified(ctx, backend, id, interfaces.RecordType)
	assert.ErrorIs(t, err, ErrContentMismatch)
}
