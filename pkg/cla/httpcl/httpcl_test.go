// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package httpcl

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/peers"
)

// memStoreView is a StoreView backed by a plain map.
type memStoreView struct {
	data map[string][]byte
}

func (m *memStoreView) AllIds() (ids []string) {
	for id := range m.data {
		ids = append(ids, id)
	}
	return
}

func (m *memStoreView) GetBundleData(id string) ([]byte, error) {
	if data, ok := m.data[id]; ok {
		return data, nil
	}
	return nil, &notFoundError{}
}

type notFoundError struct{}

func (e *notFoundError) Error() string { return "not found" }

func httpBundle(t *testing.T, payload string) *bpv7.Bundle {
	t.Helper()

	b, err := bpv7.Builder().
		Source("dtn://node1/app").
		Destination("dtn://node2/app").
		CreationTimestampNow().
		Lifetime("5m").
		PayloadBlock([]byte(payload)).
		Build()
	require.NoError(t, err)

	return &b
}

// startServer binds an ingress Server to an ephemeral port and returns it
// together with its address.
func startServer(t *testing.T, store StoreView) (*Server, string) {
	t.Helper()

	server := NewServer("127.0.0.1:0", store)
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)

	return server, server.listener.Addr().String()
}

func TestHttpPush(t *testing.T) {
	server, address := startServer(t, &memStoreView{})

	client := NewPushClient(time.Second, 1)
	require.NoError(t, client.Start())
	defer client.Stop()

	peer := peers.NewPeer(bpv7.MustParseEndpointID("dtn://node2/"), address, peers.Static)
	peer.ClaList = []peers.CLAAddress{{Name: "httpcl"}}

	require.True(t, client.CanReach(peer))

	out := httpBundle(t, "pushed")
	require.NoError(t, client.SendBundle(out, peer))

	select {
	case incoming := <-server.Incoming():
		require.Equal(t, out.ID(), incoming.Bundle.ID())
		require.Equal(t, "httpcl", incoming.Connection.ClaType)

	case <-time.After(3 * time.Second):
		t.Fatal("no bundle received within three seconds")
	}
}

func TestHttpPushRetryExhaustion(t *testing.T) {
	// Reserve a port without answering on it.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := listener.Addr().String()
	require.NoError(t, listener.Close())

	client := NewPushClient(200*time.Millisecond, 2)
	require.NoError(t, client.Start())
	defer client.Stop()

	peer := peers.NewPeer(bpv7.MustParseEndpointID("dtn://gone/"), address, peers.Static)
	peer.ClaList = []peers.CLAAddress{{Name: "httpcl"}}

	require.Error(t, client.SendBundle(httpBundle(t, "void"), peer))
}

func TestHttpPull(t *testing.T) {
	out := httpBundle(t, "pull me")
	data, err := out.WriteBundleBytes()
	require.NoError(t, err)

	_, address := startServer(t, &memStoreView{
		data: map[string][]byte{out.ID().String(): data},
	})

	peer := peers.NewPeer(bpv7.MustParseEndpointID("dtn://node2/"), address, peers.Static)
	peer.ClaList = []peers.CLAAddress{{Name: "httpcl"}}

	puller := NewPullClient(50*time.Millisecond, func() []peers.Peer {
		return []peers.Peer{peer}
	})
	require.NoError(t, puller.Start())
	defer puller.Stop()

	select {
	case incoming := <-puller.Incoming():
		require.Equal(t, out.ID(), incoming.Bundle.ID())
		require.Equal(t, "httppull", incoming.Connection.ClaType)

	case <-time.After(3 * time.Second):
		t.Fatal("no bundle pulled within three seconds")
	}

	// A second poll round must not download the bundle again.
	select {
	case <-puller.Incoming():
		t.Fatal("the known-set failed to suppress a duplicate download")
	case <-time.After(200 * time.Millisecond):
	}
}
