package agreement

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDurableDataStorePersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decrees.log")

	store, err := NewDurableDataStore(path)
	require.NoError(t, err)

	n := NewNodeWithStore(1, "127.0.0.1:9001", store)
	n.store.Set(5, "first-decree")
	n.store.Set(6, "second-decree")
	require.NoError(t, store.Close())

	// A fresh node opening the same log must see everything learned before
	// the restart.
	recovered, err := NewDurableDataStore(path)
	require.NoError(t, err)
	defer recovered.Close()

	v, ok := recovered.Get(5)
	require.True(t, ok)
	require.Equal(t, "first-decree", v)

	v, ok = recovered.Get(6)
	require.True(t, ok)
	require.Equal(t, "second-decree", v)
}

func TestDurableDataStoreAppendsOnLearn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decrees.log")

	store, err := NewDurableDataStore(path)
	require.NoError(t, err)

	n := NewNodeWithStore(1, "127.0.0.1:9001", store)
	v := "decided-value"
	_, err = n.Prepare(5)
	require.NoError(t, err)
	_, err = n.Accept(Ballot{RoundID: 5, Value: &v})
	require.NoError(t, err)
	n.Learn(Ballot{RoundID: 5, Value: &v})
	require.NoError(t, store.Close())

	recovered, err := NewDurableDataStore(path)
	require.NoError(t, err)
	defer recovered.Close()

	got, ok := recovered.Get(5)
	require.True(t, ok)
	require.Equal(t, "decided-value", got)
}
