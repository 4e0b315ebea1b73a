package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	badgerStore, err := OpenBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = badgerStore.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"badger": badgerStore,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Get(ctx, "missing")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, store.Set(ctx, "a", []byte("one")))
			value, ok, err := store.Get(ctx, "a")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, []byte("one"), value)

			// Last write wins.
			require.NoError(t, store.Set(ctx, "a", []byte("two")))
			value, _, err = store.Get(ctx, "a")
			require.NoError(t, err)
			require.Equal(t, []byte("two"), value)
		})
	}
}

func TestStorePrefixScan(t *testing.T) {
	ctx := context.Background()
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.SetMany(ctx, map[string][]byte{
				"events/r1": []byte("1"),
				"events/r2": []byte("2"),
				"vault/k1":  []byte("3"),
			}))
			all, err := store.GetAll(ctx, "events/")
			require.NoError(t, err)
			require.Len(t, all, 2)
			require.Contains(t, all, "events/r1")
			require.Contains(t, all, "events/r2")
		})
	}
}

func TestStoreRemoveMany(t *testing.T) {
	ctx := context.Background()
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.SetMany(ctx, map[string][]byte{
				"a": []byte("1"),
				"b": []byte("2"),
				"c": []byte("3"),
			}))
			require.NoError(t, store.Remove(ctx, "a", "b"))
			_, ok, err := store.Get(ctx, "a")
			require.NoError(t, err)
			require.False(t, ok)
			_, ok, err = store.Get(ctx, "c")
			require.NoError(t, err)
			require.True(t, ok)
		})
	}
}

func TestBadgerStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "events/r1", []byte("pending")))
	require.NoError(t, store.Close())

	reopened, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	defer reopened.Close()
	value, ok, err := reopened.Get(ctx, "events/r1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("pending"), value)
}
