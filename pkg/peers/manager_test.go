// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package peers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
)

func nextEvent(t *testing.T, manager *Manager) Event {
	t.Helper()

	select {
	case event := <-manager.Events():
		return event
	case <-time.After(time.Second):
		t.Fatal("no peer event within a second")
		return Event{}
	}
}

func TestManagerLifecycle(t *testing.T) {
	manager := NewManager(time.Hour)
	defer manager.Close()

	eid := bpv7.MustParseEndpointID("dtn://node2/")
	manager.AddOrUpdate(NewPeer(eid, "127.0.0.1:4556", Dynamic))
	require.Equal(t, Discovered, nextEvent(t, manager).Type)

	manager.AddOrUpdate(NewPeer(eid, "127.0.0.1:4556", Dynamic))
	require.Equal(t, Updated, nextEvent(t, manager).Type)

	peer, known := manager.GetPeer(eid)
	require.True(t, known)
	require.Equal(t, Dynamic, peer.Kind)

	manager.Remove(eid)
	require.Equal(t, Lost, nextEvent(t, manager).Type)
	require.Empty(t, manager.GetAll())
}

func TestManagerFailCount(t *testing.T) {
	manager := NewManager(time.Hour)
	defer manager.Close()

	eid := bpv7.MustParseEndpointID("dtn://node3/")
	manager.AddOrUpdate(NewPeer(eid, "10.0.0.3:4556", Dynamic))

	for i := 0; i < 4; i++ {
		manager.RecordFailure(eid)
	}
	peer, _ := manager.GetPeer(eid)
	require.EqualValues(t, 4, peer.FailCount)

	manager.RecordSuccess(eid)
	peer, _ = manager.GetPeer(eid)
	require.EqualValues(t, 0, peer.FailCount)
}

func TestManagerPruneFailing(t *testing.T) {
	manager := NewManager(time.Hour)
	defer manager.Close()

	dynamic := bpv7.MustParseEndpointID("dtn://dyn/")
	static := bpv7.MustParseEndpointID("dtn://stat/")
	manager.AddOrUpdate(NewPeer(dynamic, "10.0.0.1:4556", Dynamic))
	manager.AddOrUpdate(NewPeer(static, "10.0.0.2:4556", Static))

	for i := 0; i < 5; i++ {
		manager.RecordFailure(dynamic)
		manager.RecordFailure(static)
	}

	manager.PruneFailing(3)

	_, dynKnown := manager.GetPeer(dynamic)
	_, statKnown := manager.GetPeer(static)
	require.False(t, dynKnown, "failing dynamic peer must be pruned")
	require.True(t, statKnown, "static peers survive failures")
}

func TestManagerPruneStale(t *testing.T) {
	manager := NewManager(10 * time.Millisecond)
	defer manager.Close()

	eid := bpv7.MustParseEndpointID("dtn://old/")
	manager.AddOrUpdate(NewPeer(eid, "10.0.0.9:4556", Static))

	time.Sleep(50 * time.Millisecond)
	manager.PruneStale()

	_, known := manager.GetPeer(eid)
	require.False(t, known, "stale peer must be pruned")
}
