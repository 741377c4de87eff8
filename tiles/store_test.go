package tiles_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agrisense/geogateway/tiles"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := tiles.NewMemoryStore()

	_, ok, err := store.Get(tiles.StoreKey)
	require.NoError(t, err)
	require.False(t, ok)

	record := validRecord()
	require.NoError(t, store.Set(tiles.StoreKey, &record))

	got, ok, err := store.Get(tiles.StoreKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record.SessionID, got.SessionID)

	// The store hands out copies; mutating the result must not leak back.
	got.SessionID = "mutated"
	again, _, err := store.Get(tiles.StoreKey)
	require.NoError(t, err)
	require.Equal(t, record.SessionID, again.SessionID)
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := tiles.OpenBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get(tiles.StoreKey)
	require.NoError(t, err)
	require.False(t, ok)

	record := validRecord()
	require.NoError(t, store.Set(tiles.StoreKey, &record))

	got, ok, err := store.Get(tiles.StoreKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record.SessionID, got.SessionID)
	require.Equal(t, record.Expiry.Unix(), got.Expiry.Unix())
	require.True(t, got.Valid(testNow))
}

func TestBadgerStoreOverwrite(t *testing.T) {
	store, err := tiles.OpenBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	first := validRecord()
	require.NoError(t, store.Set(tiles.StoreKey, &first))

	second := validRecord()
	second.SessionID = "sess-2"
	second.Expiry = testNow.Add(4 * time.Hour)
	require.NoError(t, store.Set(tiles.StoreKey, &second))

	got, ok, err := store.Get(tiles.StoreKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "sess-2", got.SessionID)
}
