// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package udpcl

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/cla"
	"github.com/dtn7/dtn7-gold/pkg/peers"
)

func udpBundle(t *testing.T, payload string) *bpv7.Bundle {
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

func TestUdpTransfer(t *testing.T) {
	sender := New("127.0.0.1:0", 0)
	require.NoError(t, sender.Start())
	defer sender.Stop()

	receiver := New("127.0.0.1:0", 0)
	require.NoError(t, receiver.Start())
	defer receiver.Stop()

	peer := peers.NewPeer(bpv7.MustParseEndpointID("dtn://node2/"), receiver.conn.LocalAddr().String(), peers.Static)
	peer.ClaList = []peers.CLAAddress{{Name: "udpcl"}}

	require.True(t, sender.CanReach(peer))

	out := udpBundle(t, "datagram")
	require.NoError(t, sender.SendBundle(out, peer))

	select {
	case incoming := <-receiver.Incoming():
		require.Equal(t, out.ID(), incoming.Bundle.ID())
		require.Equal(t, "udpcl", incoming.Connection.ClaType)
		require.True(t, strings.HasPrefix(incoming.Connection.Id, "udpcl://"),
			"synthetic connection ID must derive from the source address")

	case <-time.After(3 * time.Second):
		t.Fatal("no bundle received within three seconds")
	}
}

func TestUdpBundleTooLarge(t *testing.T) {
	sender := New("127.0.0.1:0", 128)
	require.NoError(t, sender.Start())
	defer sender.Stop()

	peer := peers.NewPeer(bpv7.MustParseEndpointID("dtn://node2/"), "127.0.0.1:4556", peers.Static)
	peer.ClaList = []peers.CLAAddress{{Name: "udpcl"}}

	big := udpBundle(t, strings.Repeat("x", 512))

	var tooLarge *cla.BundleTooLargeError
	require.ErrorAs(t, sender.SendBundle(big, peer), &tooLarge)
	require.Equal(t, 128, tooLarge.Max)
}
