// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/peers"
)

// historyCap bounds the per-bundle forwarding history; the oldest entries are
// evicted.
const historyCap = 10_000

// epidemicEntry is one bundle's forwarding history.
type epidemicEntry struct {
	// sent holds the node names this bundle was handed to, inserted
	// optimistically before the actual send.
	sent map[string]struct{}

	// receivedFrom is the node which delivered this bundle to us.
	receivedFrom string
}

// Epidemic forwards every bundle to every peer exactly once: "everything,
// everywhere, but only once per neighbor".
type Epidemic struct {
	manager *peers.Manager
	env     Environment

	// mutex guards the entries' inner maps; the cache itself is thread-safe.
	mutex   sync.Mutex
	history *lru.Cache[string, *epidemicEntry]
}

// NewEpidemic routing Agent.
func NewEpidemic() *Epidemic {
	history, _ := lru.New[string, *epidemicEntry](historyCap)

	return &Epidemic{
		history: history,
	}
}

func (e *Epidemic) String() string {
	return "epidemic"
}

// Configure hands over the peer manager and the node view.
func (e *Epidemic) Configure(manager *peers.Manager, env Environment) {
	e.manager = manager
	e.env = env
}

// Start is a no-op for Epidemic.
func (e *Epidemic) Start() error {
	return nil
}

// Stop releases the Environment.
func (e *Epidemic) Stop() {
	e.env = nil
}

// entry returns the bundle's history entry, creating it if necessary.
func (e *Epidemic) entry(bundleId string) *epidemicEntry {
	if entry, ok := e.history.Get(bundleId); ok {
		return entry
	}

	entry := &epidemicEntry{sent: map[string]struct{}{}}
	e.history.Add(bundleId, entry)
	return entry
}

// NextHops selects all peers which neither received this bundle before nor
// delivered it to us. A destination which is itself a current peer
// short-circuits to direct delivery.
func (e *Epidemic) NextHops(b *bpv7.Bundle) Decision {
	dest := b.PrimaryBlock.Destination
	if e.env.IsLocalEndpoint(dest) {
		return localDecision(b)
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	entry := e.entry(b.ID().String())
	decision := Decision{BundleId: b.ID().String()}

	for _, peer := range e.manager.GetAll() {
		if !hasCla(peer) {
			continue
		}

		// Direct delivery beats spreading.
		if dest.SameNode(peer.Eid) {
			entry.sent[peer.NodeName()] = struct{}{}
			decision.NextHops = []peers.Peer{peer}
			return decision
		}
	}

	for _, peer := range e.manager.GetAll() {
		if !hasCla(peer) {
			continue
		}
		if _, sent := entry.sent[peer.NodeName()]; sent {
			continue
		}
		if entry.receivedFrom == peer.NodeName() {
			continue
		}

		entry.sent[peer.NodeName()] = struct{}{}
		decision.NextHops = append(decision.NextHops, peer)
	}

	log.WithFields(log.Fields{
		"bundle": decision.BundleId,
		"peers":  len(decision.NextHops),
	}).Debug("Epidemic selected next hops")

	return decision
}

// Notify records incoming bundles for loop prevention and purges lost peers
// from all histories, so a re-discovered peer is served again.
func (e *Epidemic) Notify(n Notification) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	switch n.Type {
	case IncomingBundle:
		if n.Bundle != nil {
			e.entry(n.Bundle.ID().String()).receivedFrom = n.Peer.NodeName()
		}

	case PeerLost:
		name := n.Peer.NodeName()
		for _, bundleId := range e.history.Keys() {
			if entry, ok := e.history.Get(bundleId); ok {
				delete(entry.sent, name)
				if entry.receivedFrom == name {
					entry.receivedFrom = ""
				}
			}
		}
	}
}

// State exposes the history size.
func (e *Epidemic) State() map[string]string {
	return map[string]string{
		"algorithm": e.String(),
		"history":   itoa(e.history.Len()),
	}
}
