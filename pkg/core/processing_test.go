// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/cla"
	"github.com/dtn7/dtn7-gold/pkg/peers"
	"github.com/dtn7/dtn7-gold/pkg/storage"
)

func testCore(t *testing.T) *Core {
	t.Helper()

	c, err := NewCore(Options{
		NodeId: "dtn://node1/",
		Store:  storage.NewMemoryStore(),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return c
}

func coreBundle(t *testing.T, src, dst string, lifetimeSeconds uint64) *bpv7.Bundle {
	t.Helper()

	b, err := bpv7.Builder().
		Source(src).
		Destination(dst).
		CreationTimestampNow().
		Lifetime(lifetimeSeconds).
		PayloadBlock([]byte("processing")).
		Build()
	require.NoError(t, err)

	return &b
}

func TestProcessorLocalDelivery(t *testing.T) {
	c := testCore(t)

	echo := bpv7.MustParseEndpointID("dtn://node1/echo")
	require.NoError(t, c.RegisterEndpoint(echo))

	b := coreBundle(t, "dtn://node1/ping", "dtn://node1/echo", 3600)
	require.NoError(t, c.SubmitBundle(b))

	got, ok := c.ApplicationAgent().Poll(echo)
	require.True(t, ok, "the bundle must be delivered to the endpoint's queue")
	require.Equal(t, b.ID(), got.ID())

	// Delivered bundles wait for the janitor with the Deleted constraint set.
	pack, err := c.Store().GetMetadata(b.ID().String())
	require.NoError(t, err)
	require.True(t, pack.HasConstraint(storage.Deleted))
	require.EqualValues(t, 1, c.StatsSnapshot()["delivered"])
}

func TestProcessorLocalDeliveryCompleteness(t *testing.T) {
	// A bundle destined to an endpoint on this node is delivered or queued,
	// never forwarded, even before that endpoint is registered.
	c := testCore(t)

	b := coreBundle(t, "dtn://node1/app", "dtn://node1/nobody", 3600)
	require.NoError(t, c.SubmitBundle(b))

	// No registration: the bundle went to the pending list.
	require.EqualValues(t, 1, c.StatsSnapshot()["delivered"])
	require.EqualValues(t, 0, c.StatsSnapshot()["outgoing"])

	// A late registration drains it.
	nobody := bpv7.MustParseEndpointID("dtn://node1/nobody")
	require.NoError(t, c.RegisterEndpoint(nobody))

	got, ok := c.ApplicationAgent().Poll(nobody)
	require.True(t, ok)
	require.Equal(t, b.ID(), got.ID())
}

func TestProcessorDuplicateSuppression(t *testing.T) {
	c := testCore(t)
	require.NoError(t, c.RegisterEndpoint(bpv7.MustParseEndpointID("dtn://node1/echo")))

	b := coreBundle(t, "dtn://node2/app", "dtn://node1/echo", 3600)
	conn := cla.Connection{Id: "test", ClaType: "test"}

	require.NoError(t, c.Processor().Receive(b, conn))
	require.ErrorIs(t, c.Processor().Receive(b, conn), ErrDuplicateBundle)

	require.EqualValues(t, 1, c.StatsSnapshot()["incoming"])
	require.EqualValues(t, 1, c.StatsSnapshot()["duplicates"])
	require.EqualValues(t, 1, c.Store().Count())
}

func TestProcessorExpiredOnReception(t *testing.T) {
	c := testCore(t)

	b, err := bpv7.Builder().
		Source("dtn://node2/app").
		Destination("dtn://node1/app").
		CreationTimestamp(bpv7.DtnTimeFromTime(time.Now().Add(-time.Hour)), 1).
		Lifetime(uint64(60)).
		PayloadBlock([]byte("stale")).
		Build()
	require.NoError(t, err)

	require.ErrorIs(t, c.Processor().Receive(&b, cla.Connection{}), ErrBundleExpired)
	require.EqualValues(t, 0, c.Store().Count())
}

func TestProcessorInvalidSource(t *testing.T) {
	c := testCore(t)

	b := coreBundle(t, "dtn://imposter/app", "dtn://node1/echo", 3600)
	require.ErrorIs(t, c.SubmitBundle(b), ErrInvalidSource)
}

// mockCLA records every sent bundle.
type mockCLA struct {
	incoming chan cla.IncomingBundle

	sentMutex sync.Mutex
	sent      []string
}

func newMockCLA() *mockCLA {
	return &mockCLA{incoming: make(chan cla.IncomingBundle)}
}

func (m *mockCLA) ID() string                          { return "mock://cla" }
func (m *mockCLA) Name() string                        { return "mock" }
func (m *mockCLA) Start() error                        { return nil }
func (m *mockCLA) Stop()                               { close(m.incoming) }
func (m *mockCLA) CanReach(_ peers.Peer) bool          { return true }
func (m *mockCLA) Connections() []cla.Connection       { return nil }
func (m *mockCLA) Incoming() <-chan cla.IncomingBundle { return m.incoming }

func (m *mockCLA) SendBundle(b *bpv7.Bundle, _ peers.Peer) error {
	m.sentMutex.Lock()
	defer m.sentMutex.Unlock()

	m.sent = append(m.sent, b.ID().String())
	return nil
}

func (m *mockCLA) sentCount() int {
	m.sentMutex.Lock()
	defer m.sentMutex.Unlock()

	return len(m.sent)
}

func TestProcessorForward(t *testing.T) {
	c := testCore(t)

	mock := newMockCLA()
	require.NoError(t, c.RegisterCLA(mock))

	c.PeerManager().AddOrUpdate(peers.NewPeer(
		bpv7.MustParseEndpointID("dtn://node2/"), "10.0.0.2:4556", peers.Static))

	// Let the discovery-triggered re-forward pass over the still empty store
	// finish before submitting.
	time.Sleep(50 * time.Millisecond)

	b := coreBundle(t, "dtn://node1/app", "dtn://node2/app", 3600)
	require.NoError(t, c.SubmitBundle(b))

	require.Equal(t, 1, mock.sentCount())
	require.EqualValues(t, 1, c.StatsSnapshot()["outgoing"])

	// ForwardPending is cleared after all peers were tried.
	pack, err := c.Store().GetMetadata(b.ID().String())
	require.NoError(t, err)
	require.False(t, pack.HasConstraint(storage.ForwardPending))

	// The forwarded bundle carries this node as its previous node.
	stored, err := c.Store().GetBundle(b.ID().String())
	require.NoError(t, err)
	pnb, err := stored.ExtensionBlock(bpv7.ExtBlockTypePreviousNodeBlock)
	require.NoError(t, err)
	require.Equal(t, c.NodeId(), pnb.Value.(*bpv7.PreviousNodeBlock).Endpoint)
}

func TestProcessorNoForwardingAfterDelete(t *testing.T) {
	c := testCore(t)

	mock := newMockCLA()
	require.NoError(t, c.RegisterCLA(mock))

	b := coreBundle(t, "dtn://node2/app", "dtn://node3/app", 3600)
	require.NoError(t, c.Processor().Receive(b, cla.Connection{}))

	// No peers and no routing agent: the bundle is contraindicated.
	pack, err := c.Store().GetMetadata(b.ID().String())
	require.NoError(t, err)
	require.True(t, pack.HasConstraint(storage.Contraindicated))

	// Mark deleted; the janitor's re-forward pass must skip it even though a
	// peer shows up.
	pack.AddConstraint(storage.Deleted)
	require.NoError(t, c.Store().UpdateMetadata(pack))

	c.PeerManager().AddOrUpdate(peers.NewPeer(
		bpv7.MustParseEndpointID("dtn://node4/"), "10.0.0.4:4556", peers.Static))

	c.reforwardPending()
	require.Equal(t, 0, mock.sentCount())
	require.EqualValues(t, 0, c.StatsSnapshot()["outgoing"])

	// The janitor eventually collects it.
	c.expireBundles()
	require.False(t, c.Store().HasItem(b.ID().String()))
}

func TestProcessorAdministrativeRecordNotForwarded(t *testing.T) {
	c := testCore(t)

	original := coreBundle(t, "dtn://node2/app", "dtn://node3/app", 3600)
	report := bpv7.NewStatusReport(*original, bpv7.DeliveredBundle, bpv7.NoInformation, bpv7.DtnTimeNow())
	payload, err := bpv7.AdministrativeRecordToCbor(report)
	require.NoError(t, err)

	adminBundle, err := bpv7.Builder().
		BundleCtrlFlags(bpv7.AdministrativeRecordPayload).
		Source("dtn://node2/").
		Destination("dtn://node1/").
		CreationTimestampNow().
		Lifetime("60m").
		Canonical(payload).
		Build()
	require.NoError(t, err)

	require.NoError(t, c.Processor().Receive(&adminBundle, cla.Connection{}))

	// The record is consumed, marked for garbage collection and not routed.
	pack, err := c.Store().GetMetadata(adminBundle.ID().String())
	require.NoError(t, err)
	require.True(t, pack.HasConstraint(storage.Deleted))
	require.EqualValues(t, 0, c.StatsSnapshot()["outgoing"])
}

func TestJanitorExpiresBundles(t *testing.T) {
	c := testCore(t)

	b, err := bpv7.Builder().
		Source("dtn://node1/app").
		Destination("dtn://node9/void").
		CreationTimestamp(bpv7.DtnTimeFromTime(time.Now().Add(-10*time.Second)), 1).
		Lifetime(uint64(1)).
		PayloadBlock([]byte("short-lived")).
		Build()
	require.NoError(t, err)

	require.NoError(t, c.Store().Push(&b))
	require.EqualValues(t, 1, c.Store().Count())

	c.janitor()
	require.EqualValues(t, 0, c.Store().Count())
}

func TestCron(t *testing.T) {
	cron := NewCron()
	defer cron.Stop()

	fired := make(chan struct{}, 8)
	require.NoError(t, cron.Register("tick", func() { fired <- struct{}{} }, 10*time.Millisecond))
	require.Error(t, cron.Register("tick", func() {}, time.Second), "duplicate names are rejected")

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("cron job did not fire")
	}

	cron.Unregister("tick")
}
