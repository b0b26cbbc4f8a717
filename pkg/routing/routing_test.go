// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/peers"
)

// envFunc adapts a function to the Environment interface.
type envFunc func(eid bpv7.EndpointID) bool

func (f envFunc) IsLocalEndpoint(eid bpv7.EndpointID) bool {
	return f(eid)
}

// localNode is an Environment considering only dtn://local/ endpoints local.
var localNode = envFunc(func(eid bpv7.EndpointID) bool {
	return eid.SameNode(bpv7.MustParseEndpointID("dtn://local/"))
})

func routingBundle(t *testing.T, src, dst string) *bpv7.Bundle {
	t.Helper()

	b, err := bpv7.Builder().
		Source(src).
		Destination(dst).
		CreationTimestampNow().
		Lifetime("1h").
		PayloadBlock([]byte("routing")).
		Build()
	require.NoError(t, err)

	return &b
}

func claPeer(uri, address string) peers.Peer {
	peer := peers.NewPeer(bpv7.MustParseEndpointID(uri), address, peers.Dynamic)
	peer.ClaList = []peers.CLAAddress{{Name: "tcpclv4", Port: 4556}}
	return peer
}

func testManager(t *testing.T, ps ...peers.Peer) *peers.Manager {
	t.Helper()

	manager := peers.NewManager(time.Hour)
	t.Cleanup(manager.Close)

	for _, p := range ps {
		manager.AddOrUpdate(p)
	}
	return manager
}

func TestEpidemicNoResend(t *testing.T) {
	manager := testManager(t, claPeer("dtn://node2/", "10.0.0.2"), claPeer("dtn://node3/", "10.0.0.3"))

	e := NewEpidemic()
	e.Configure(manager, localNode)
	require.NoError(t, e.Start())
	defer e.Stop()

	b := routingBundle(t, "dtn://local/app", "dtn://far/app")

	first := e.NextHops(b)
	require.False(t, first.IsLocalDelivery)
	require.Len(t, first.NextHops, 2)

	// Every peer receives a bundle at most once.
	second := e.NextHops(b)
	require.Empty(t, second.NextHops)

	// A lost and re-discovered peer is served again.
	lost, _ := manager.GetPeer(bpv7.MustParseEndpointID("dtn://node2/"))
	manager.Remove(lost.Eid)
	e.Notify(Notification{Type: PeerLost, Peer: lost})
	manager.AddOrUpdate(lost)

	third := e.NextHops(b)
	require.Len(t, third.NextHops, 1)
	require.True(t, third.NextHops[0].Eid.SameNode(lost.Eid))
}

func TestEpidemicLoopPrevention(t *testing.T) {
	sender := claPeer("dtn://node2/", "10.0.0.2")
	manager := testManager(t, sender, claPeer("dtn://node3/", "10.0.0.3"))

	e := NewEpidemic()
	e.Configure(manager, localNode)

	b := routingBundle(t, "dtn://node2/app", "dtn://far/app")
	e.Notify(Notification{Type: IncomingBundle, Peer: sender, Bundle: b})

	decision := e.NextHops(b)
	require.Len(t, decision.NextHops, 1)
	require.Equal(t, "node3", decision.NextHops[0].NodeName(),
		"the delivering peer must not get its bundle back")
}

func TestEpidemicDirectDelivery(t *testing.T) {
	manager := testManager(t, claPeer("dtn://node2/", "10.0.0.2"), claPeer("dtn://node3/", "10.0.0.3"))

	e := NewEpidemic()
	e.Configure(manager, localNode)

	decision := e.NextHops(routingBundle(t, "dtn://local/app", "dtn://node3/app"))
	require.Len(t, decision.NextHops, 1)
	require.Equal(t, "node3", decision.NextHops[0].NodeName())
}

func TestEpidemicLocalDelivery(t *testing.T) {
	e := NewEpidemic()
	e.Configure(testManager(t), localNode)

	decision := e.NextHops(routingBundle(t, "dtn://node2/app", "dtn://local/app"))
	require.True(t, decision.IsLocalDelivery)
	require.Empty(t, decision.NextHops)
}

func TestFloodingReturnsEveryone(t *testing.T) {
	manager := testManager(t, claPeer("dtn://node2/", "10.0.0.2"), claPeer("dtn://node3/", "10.0.0.3"))

	f := NewFlooding()
	f.Configure(manager, localNode)

	b := routingBundle(t, "dtn://local/app", "dtn://far/app")
	for i := 0; i < 3; i++ {
		require.Len(t, f.NextHops(b).NextHops, 2, "flooding never suppresses")
	}
}

func TestSprayAndWaitCopies(t *testing.T) {
	manager := testManager(t,
		claPeer("dtn://node2/", "10.0.0.2"),
		claPeer("dtn://node3/", "10.0.0.3"),
		claPeer("dtn://node4/", "10.0.0.4"))

	sw := NewSprayAndWait(7)
	sw.Configure(manager, localNode)

	b := routingBundle(t, "dtn://local/app", "dtn://far/app")
	decision := sw.NextHops(b)

	// 7 copies: 3 to the first peer, 2 to the second, 1 to the third leaves a
	// single copy and ends the spray phase.
	require.Len(t, decision.NextHops, 3)

	state := sw.bundles[b.ID().String()]
	require.EqualValues(t, 1, state.remainingCopies)

	// Wait phase: no further spraying to new peers.
	manager.AddOrUpdate(claPeer("dtn://node5/", "10.0.0.5"))
	require.Empty(t, sw.NextHops(b).NextHops)

	// Wait phase ends on a direct contact with the destination.
	manager.AddOrUpdate(claPeer("dtn://far/", "10.0.0.6"))
	direct := sw.NextHops(b)
	require.Len(t, direct.NextHops, 1)
	require.Equal(t, "far", direct.NextHops[0].NodeName())
	require.EqualValues(t, 0, state.remainingCopies)
}

func TestSprayAndWaitReceivedBundle(t *testing.T) {
	manager := testManager(t, claPeer("dtn://node2/", "10.0.0.2"))

	sw := NewSprayAndWait(7)
	sw.Configure(manager, localNode)

	// A received bundle starts with a single copy: wait phase from the start.
	b := routingBundle(t, "dtn://remote/app", "dtn://far/app")
	require.Empty(t, sw.NextHops(b).NextHops)

	manager.AddOrUpdate(claPeer("dtn://far/", "10.0.0.9"))
	require.Len(t, sw.NextHops(b).NextHops, 1)
}

func TestStaticRouting(t *testing.T) {
	routesPath := filepath.Join(t.TempDir(), "routes.toml")
	require.NoError(t, os.WriteFile(routesPath, []byte(`
[[route]]
index = 10
source = "*"
destination = "dtn://node3/*"
via = "dtn://node1/"

[[route]]
index = 20
source = "dtn://local/?pp"
destination = "*"
via = "dtn://node9/"
`), 0600))

	via := claPeer("dtn://node1/", "10.0.0.1")
	manager := testManager(t, via, claPeer("dtn://other/", "10.0.0.8"))

	s := NewStatic(routesPath)
	s.Configure(manager, localNode)
	require.NoError(t, s.Start())
	defer s.Stop()

	b := routingBundle(t, "dtn://local/app", "dtn://node3/app")

	// The same single peer on every call.
	for i := 0; i < 3; i++ {
		decision := s.NextHops(b)
		require.Len(t, decision.NextHops, 1)
		require.True(t, decision.NextHops[0].Eid.SameNode(via.Eid))
	}

	// Second rule matches through the ? glob, but its via peer is unknown:
	// empty next hops, no fallback.
	other := routingBundle(t, "dtn://local/app", "dtn://elsewhere/x")
	require.Empty(t, s.NextHops(other).NextHops)

	// No rule at all.
	none := routingBundle(t, "dtn://stranger/app", "dtn://elsewhere/x")
	require.Empty(t, s.NextHops(none).NextHops)
}

func TestStaticRoutingReload(t *testing.T) {
	routesPath := filepath.Join(t.TempDir(), "routes.toml")
	require.NoError(t, os.WriteFile(routesPath, []byte(""), 0600))

	via := claPeer("dtn://node1/", "10.0.0.1")
	manager := testManager(t, via)

	s := NewStatic(routesPath)
	s.Configure(manager, localNode)
	require.NoError(t, s.Start())
	defer s.Stop()

	b := routingBundle(t, "dtn://local/app", "dtn://node3/app")
	require.Empty(t, s.NextHops(b).NextHops)

	require.NoError(t, os.WriteFile(routesPath, []byte(`
[[route]]
index = 10
source = "*"
destination = "*"
via = "dtn://node1/"
`), 0600))
	s.Notify(Notification{Type: ReloadConfig})

	require.Len(t, s.NextHops(b).NextHops, 1)
}

func TestSinkDropsEverything(t *testing.T) {
	s := NewSink()
	s.Configure(testManager(t, claPeer("dtn://node2/", "10.0.0.2")), localNode)

	require.Empty(t, s.NextHops(routingBundle(t, "dtn://a/x", "dtn://b/y")).NextHops)
	require.True(t, s.NextHops(routingBundle(t, "dtn://a/x", "dtn://local/y")).IsLocalDelivery)
}

func TestNewAgent(t *testing.T) {
	for _, name := range []string{"epidemic", "flooding", "sink"} {
		agent, err := NewAgent(name, nil)
		require.NoError(t, err)
		require.Equal(t, name, agent.String())
	}

	agent, err := NewAgent("sprayandwait", map[string]string{"num_copies": "11"})
	require.NoError(t, err)
	require.EqualValues(t, 11, agent.(*SprayAndWait).l)

	_, err = NewAgent("wormhole", nil)
	require.Error(t, err)
}
