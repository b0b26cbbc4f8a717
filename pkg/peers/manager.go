// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package peers

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
)

// EventType classifies a peer Event.
type EventType int

const (
	// Discovered is emitted when a Peer is inserted for the first time.
	Discovered EventType = iota

	// Updated is emitted when a known Peer is refreshed.
	Updated

	// Lost is emitted when a Peer is removed.
	Lost

	// ConnectionEstablished is emitted when a CLA opened a session to a Peer.
	ConnectionEstablished

	// ConnectionLost is emitted when a CLA lost its session to a Peer.
	ConnectionLost
)

func (et EventType) String() string {
	switch et {
	case Discovered:
		return "discovered"
	case Updated:
		return "updated"
	case Lost:
		return "lost"
	case ConnectionEstablished:
		return "connection established"
	case ConnectionLost:
		return "connection lost"
	default:
		return "unknown"
	}
}

// Event is one entry of the Manager's event stream.
type Event struct {
	Type EventType
	Peer Peer
}

func (e Event) String() string {
	return fmt.Sprintf("PeerEvent(%v, %v)", e.Type, e.Peer)
}

// Manager tracks all known Peers.
//
// The event stream is a single-consumer channel; the core subscribes to it
// once. A background sweep removes peers whose LastContact is older than the
// configured timeout.
type Manager struct {
	mutex sync.RWMutex
	peers map[bpv7.EndpointID]Peer

	events chan Event

	peerTimeout   time.Duration
	sweepInterval time.Duration

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewManager with the stale-peer timeout. The sweep runs every 30 seconds.
func NewManager(peerTimeout time.Duration) *Manager {
	manager := &Manager{
		peers:         make(map[bpv7.EndpointID]Peer),
		events:        make(chan Event, 64),
		peerTimeout:   peerTimeout,
		sweepInterval: 30 * time.Second,
		stopSyn:       make(chan struct{}),
		stopAck:       make(chan struct{}),
	}

	go manager.sweeper()

	return manager
}

// Events is the Manager's event stream. There is exactly one consumer.
func (manager *Manager) Events() <-chan Event {
	return manager.events
}

// emit an Event without ever blocking the Manager.
func (manager *Manager) emit(event Event) {
	select {
	case manager.events <- event:
	default:
		log.WithField("event", event).Warn("Peer event channel is congested, dropping event")
	}
}

// AddOrUpdate a Peer: the first insert emits Discovered, every following call
// Updated. LastContact is refreshed and FailCount zeroed either way.
func (manager *Manager) AddOrUpdate(peer Peer) {
	peer.LastContact = time.Now()
	peer.FailCount = 0

	manager.mutex.Lock()
	_, known := manager.peers[peer.Eid]
	manager.peers[peer.Eid] = peer
	manager.mutex.Unlock()

	if known {
		manager.emit(Event{Type: Updated, Peer: peer})
	} else {
		log.WithField("peer", peer).Info("Discovered new peer")
		manager.emit(Event{Type: Discovered, Peer: peer})
	}
}

// Remove a Peer, emitting Lost if it was known.
func (manager *Manager) Remove(eid bpv7.EndpointID) {
	manager.mutex.Lock()
	peer, known := manager.peers[eid]
	delete(manager.peers, eid)
	manager.mutex.Unlock()

	if known {
		log.WithField("peer", peer).Info("Removed peer")
		manager.emit(Event{Type: Lost, Peer: peer})
	}
}

// RecordSuccess refreshes a Peer's LastContact and zeroes its FailCount.
func (manager *Manager) RecordSuccess(eid bpv7.EndpointID) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if peer, known := manager.peers[eid]; known {
		peer.LastContact = time.Now()
		peer.FailCount = 0
		manager.peers[eid] = peer
	}
}

// RecordFailure increments a Peer's FailCount.
func (manager *Manager) RecordFailure(eid bpv7.EndpointID) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if peer, known := manager.peers[eid]; known {
		peer.FailCount++
		manager.peers[eid] = peer
	}
}

// ConnectionEvent reports an established or lost CLA session for a Peer.
func (manager *Manager) ConnectionEvent(eid bpv7.EndpointID, established bool) {
	manager.mutex.RLock()
	peer, known := manager.peers[eid]
	manager.mutex.RUnlock()

	if !known {
		return
	}

	if established {
		manager.emit(Event{Type: ConnectionEstablished, Peer: peer})
	} else {
		manager.emit(Event{Type: ConnectionLost, Peer: peer})
	}
}

// GetPeer looks up a Peer by its EndpointID.
func (manager *Manager) GetPeer(eid bpv7.EndpointID) (Peer, bool) {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	peer, known := manager.peers[eid]
	return peer, known
}

// GetAll returns a snapshot of all known Peers.
func (manager *Manager) GetAll() []Peer {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	all := make([]Peer, 0, len(manager.peers))
	for _, peer := range manager.peers {
		all = append(all, peer)
	}
	return all
}

// PruneFailing removes dynamic Peers whose FailCount exceeds the threshold.
func (manager *Manager) PruneFailing(threshold uint) {
	for _, peer := range manager.GetAll() {
		if peer.Kind == Dynamic && peer.FailCount > threshold {
			log.WithFields(log.Fields{
				"peer":      peer,
				"failCount": peer.FailCount,
			}).Info("Pruning failing dynamic peer")

			manager.Remove(peer.Eid)
		}
	}
}

// PruneStale removes every Peer whose LastContact is older than peerTimeout.
func (manager *Manager) PruneStale() {
	cutoff := time.Now().Add(-manager.peerTimeout)

	for _, peer := range manager.GetAll() {
		if peer.LastContact.Before(cutoff) {
			log.WithFields(log.Fields{
				"peer":        peer,
				"lastContact": peer.LastContact,
			}).Info("Pruning stale peer")

			manager.Remove(peer.Eid)
		}
	}
}

// sweeper is the Manager's background goroutine.
func (manager *Manager) sweeper() {
	ticker := time.NewTicker(manager.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-manager.stopSyn:
			close(manager.events)
			close(manager.stopAck)
			return

		case <-ticker.C:
			manager.PruneStale()
		}
	}
}

// Close the Manager and its event stream.
func (manager *Manager) Close() {
	close(manager.stopSyn)
	<-manager.stopAck
}
