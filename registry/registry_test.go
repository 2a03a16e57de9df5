package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/collection-factory/interfaces"
)

func registries(t *testing.T) map[string]interfaces.Registry {
	t.Helper()

	sqliteRegistry, err := OpenSQLiteRegistry(context.Background(), filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteRegistry.Close() })

	return map[string]interfaces.Registry{
		"memory": NewMemoryRegistry(),
		"sqlite": sqliteRegistry,
	}
}

// TestRegistry_InsertContains tests set semantics shared by all implementations
func TestRegistry_InsertContains(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			exists, err := reg.Contains(ctx, "abc.factory")
			require.NoError(t, err)
			assert.False(t, exists)

			require.NoError(t, reg.Insert(ctx, "abc.factory"))

			exists, err = reg.Contains(ctx, "abc.factory")
			require.NoError(t, err)
			assert.True(t, exists)

			exists, err = reg.Contains(ctx, "abd.factory")
			require.NoError(t, err)
			assert.False(t, exists)

			n, err := reg.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

// TestRegistry_InsertIdempotent tests that re-inserting a committed id is a no-op
func TestRegistry_InsertIdempotent(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, reg.Insert(ctx, "abc.factory"))
			require.NoError(t, reg.Insert(ctx, "abc.factory"))
			require.NoError(t, reg.Insert(ctx, "xyz.factory"))

			n, err := reg.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

// TestSQLiteRegistry_Persistence tests that committed ids survive reopening the database
func TestSQLiteRegistry_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.db")

	reg, err := OpenSQLiteRegistry(ctx, path)
	require.NoError(t, err)
	require.NoError(t, reg.Insert(ctx, "abc.factory"))
	require.NoError(t, reg.Close())

	reopened, err := OpenSQLiteRegistry(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	exists, err := reopened.Contains(ctx, "abc.factory")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestOpenSQLiteRegistry_EmptyPath(t *testing.T) {
	_, err := OpenSQLiteRegistry(context.Background(), "")
	assert.Error(t, err)
}
