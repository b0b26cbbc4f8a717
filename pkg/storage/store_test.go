// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
)

func testBundle(t *testing.T, payload string) bpv7.Bundle {
	t.Helper()

	b, err := bpv7.Builder().
		Source("dtn://node1/app").
		Destination("dtn://node2/app").
		CreationTimestampNow().
		Lifetime("60m").
		PayloadBlock([]byte(payload)).
		Build()
	require.NoError(t, err)

	return b
}

// testStores builds one instance of each backend below a temporary directory.
func testStores(t *testing.T) map[string]Store {
	t.Helper()

	stores := map[string]Store{}
	for _, backend := range []string{"mem", "sqlite", "badger"} {
		store, err := NewStore(backend, t.TempDir())
		require.NoError(t, err, backend)
		t.Cleanup(func() { _ = store.Close() })

		stores[backend] = store
	}
	return stores
}

func TestStoreRoundTrip(t *testing.T) {
	for backend, store := range testStores(t) {
		b := testBundle(t, "round trip")
		require.NoError(t, store.Push(&b), backend)

		id := b.ID().String()
		require.True(t, store.HasItem(id), backend)
		require.EqualValues(t, 1, store.Count(), backend)
		require.Equal(t, []string{id}, store.AllIds(), backend)

		b2, err := store.GetBundle(id)
		require.NoError(t, err, backend)

		data1, err := b.WriteBundleBytes()
		require.NoError(t, err, backend)
		data2, err := b2.WriteBundleBytes()
		require.NoError(t, err, backend)
		require.Equal(t, data1, data2, backend)
	}
}

func TestStorePushIdempotent(t *testing.T) {
	for backend, store := range testStores(t) {
		b := testBundle(t, "constraints survive")
		require.NoError(t, store.Push(&b), backend)

		pack, err := store.GetMetadata(b.ID().String())
		require.NoError(t, err, backend)
		pack.AddConstraint(ForwardPending)
		require.NoError(t, store.UpdateMetadata(pack), backend)

		// A second Push must neither duplicate the bundle nor clear constraints.
		require.NoError(t, store.Push(&b), backend)
		require.EqualValues(t, 1, store.Count(), backend)

		pack, err = store.GetMetadata(b.ID().String())
		require.NoError(t, err, backend)
		require.True(t, pack.HasConstraint(ForwardPending), backend)
	}
}

func TestStoreRemove(t *testing.T) {
	for backend, store := range testStores(t) {
		b := testBundle(t, "remove me")
		require.NoError(t, store.Push(&b), backend)

		require.NoError(t, store.Remove(b.ID().String()), backend)
		require.EqualValues(t, 0, store.Count(), backend)
		require.False(t, store.HasItem(b.ID().String()), backend)

		require.ErrorIs(t, store.Remove(b.ID().String()), ErrBundleNotFound, backend)

		_, err := store.GetBundle(b.ID().String())
		require.ErrorIs(t, err, ErrBundleNotFound, backend)
	}
}

func TestStoreUpdateMetadataUnknown(t *testing.T) {
	for backend, store := range testStores(t) {
		err := store.UpdateMetadata(BundlePack{
			Id:          "dtn://nope/-23-42",
			Source:      bpv7.MustParseEndpointID("dtn://nope/"),
			Destination: bpv7.MustParseEndpointID("dtn://nope/"),
		})
		require.ErrorIs(t, err, ErrBundleNotFound, backend)
	}
}

func TestConstraintBits(t *testing.T) {
	var pack BundlePack

	pack.AddConstraint(DispatchPending)
	require.True(t, pack.HasConstraint(DispatchPending))
	require.False(t, pack.HasConstraint(ForwardPending))

	pack.AddConstraint(ForwardPending)
	pack.RemoveConstraint(DispatchPending)
	require.True(t, pack.HasConstraint(ForwardPending))
	require.False(t, pack.HasConstraint(DispatchPending))

	pack.AddConstraint(Deleted)
	require.Equal(t, "forward pending,deleted", pack.Constraints.String())
}
