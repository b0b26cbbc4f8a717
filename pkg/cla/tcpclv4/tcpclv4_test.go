// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcpclv4

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/peers"
)

func testBundle(t *testing.T, payload string) *bpv7.Bundle {
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

// startedCla binds a TCPCLv4 instance to an ephemeral loopback port.
func startedCla(t *testing.T, nodeId string, hooks Hooks) *TCPCLv4 {
	t.Helper()

	cl := New("127.0.0.1:0", bpv7.MustParseEndpointID(nodeId), hooks)
	require.NoError(t, cl.Start())
	t.Cleanup(cl.Stop)

	return cl
}

func TestTcpclHandshakeAndTransfer(t *testing.T) {
	sender := startedCla(t, "dtn://node1/", Hooks{})
	receiver := startedCla(t, "dtn://node2/", Hooks{})

	peer := peers.NewPeer(bpv7.MustParseEndpointID("dtn://node2/"), receiver.listener.Addr().String(), peers.Static)
	peer.ClaList = []peers.CLAAddress{{Name: "tcpclv4"}}

	require.True(t, sender.CanReach(peer))

	out := testBundle(t, "over the wire")
	require.NoError(t, sender.SendBundle(out, peer))

	select {
	case incoming := <-receiver.Incoming():
		require.Equal(t, out.ID(), incoming.Bundle.ID())

		wantData, err := out.WriteBundleBytes()
		require.NoError(t, err)
		gotData, err := incoming.Bundle.WriteBundleBytes()
		require.NoError(t, err)
		require.True(t, bytes.Equal(wantData, gotData), "bundle changed on the wire")

		require.Equal(t, "tcpclv4", incoming.Connection.ClaType)
		require.True(t, incoming.Connection.RemoteEid.SameNode(bpv7.MustParseEndpointID("dtn://node1/")))

	case <-time.After(5 * time.Second):
		t.Fatal("no bundle received within five seconds")
	}
}

func TestTcpclSessionReuse(t *testing.T) {
	sender := startedCla(t, "dtn://node1/", Hooks{})
	receiver := startedCla(t, "dtn://node2/", Hooks{})

	peer := peers.NewPeer(bpv7.MustParseEndpointID("dtn://node2/"), receiver.listener.Addr().String(), peers.Static)
	peer.ClaList = []peers.CLAAddress{{Name: "tcpclv4"}}

	require.NoError(t, sender.SendBundle(testBundle(t, "first"), peer))
	require.NoError(t, sender.SendBundle(testBundle(t, "second"), peer))

	for i := 0; i < 2; i++ {
		select {
		case <-receiver.Incoming():
		case <-time.After(5 * time.Second):
			t.Fatalf("bundle %d was not received", i)
		}
	}

	require.Len(t, sender.Connections(), 1, "the second send must reuse the session")
}

func TestTcpclCannotReachWithoutAddress(t *testing.T) {
	sender := startedCla(t, "dtn://node1/", Hooks{})

	peer := peers.NewPeer(bpv7.MustParseEndpointID("dtn://node3/"), "", peers.Dynamic)
	require.False(t, sender.CanReach(peer))

	require.Error(t, sender.SendBundle(testBundle(t, "nope"), peer))
}
