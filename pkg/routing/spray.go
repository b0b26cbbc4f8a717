// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/peers"
)

// defaultSprayCopies is the spray-and-wait multiplicity L for locally sourced
// bundles.
const defaultSprayCopies uint64 = 7

// sprayState is one bundle's spray bookkeeping.
type sprayState struct {
	remainingCopies uint64
	sprayedTo       map[string]struct{}
}

// SprayAndWait implements binary spray-and-wait: the source starts with L
// copies and hands half of its remaining copies to each encountered peer;
// holders of a single copy wait for a direct contact with the destination.
type SprayAndWait struct {
	manager *peers.Manager
	env     Environment

	l uint64

	mutex   sync.Mutex
	bundles map[string]*sprayState
}

// NewSprayAndWait with the multiplicity for locally sourced bundles.
func NewSprayAndWait(copies uint64) *SprayAndWait {
	if copies == 0 {
		copies = defaultSprayCopies
	}

	return &SprayAndWait{
		l:       copies,
		bundles: make(map[string]*sprayState),
	}
}

func (sw *SprayAndWait) String() string {
	return "sprayandwait"
}

// Configure hands over the peer manager and the node view.
func (sw *SprayAndWait) Configure(manager *peers.Manager, env Environment) {
	sw.manager = manager
	sw.env = env
}

// Start is a no-op for SprayAndWait.
func (sw *SprayAndWait) Start() error {
	return nil
}

// Stop releases the Environment.
func (sw *SprayAndWait) Stop() {
	sw.env = nil
}

// state initializes a bundle's spray bookkeeping on its first decision:
// L copies for locally sourced bundles, a single copy for received ones.
func (sw *SprayAndWait) state(b *bpv7.Bundle) *sprayState {
	id := b.ID().String()
	if state, ok := sw.bundles[id]; ok {
		return state
	}

	copies := uint64(1)
	if sw.env.IsLocalEndpoint(b.PrimaryBlock.SourceNode) {
		copies = sw.l
	}

	state := &sprayState{
		remainingCopies: copies,
		sprayedTo:       map[string]struct{}{},
	}
	sw.bundles[id] = state

	log.WithFields(log.Fields{
		"bundle": id,
		"copies": copies,
	}).Debug("SprayAndWait initialized bundle")

	return state
}

// NextHops sprays half of the remaining copies to each unserved peer. With
// fewer than two copies the wait phase begins: only a direct contact with the
// destination is served, spending the last copy.
func (sw *SprayAndWait) NextHops(b *bpv7.Bundle) Decision {
	dest := b.PrimaryBlock.Destination
	if sw.env.IsLocalEndpoint(dest) {
		return localDecision(b)
	}

	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	state := sw.state(b)
	decision := Decision{BundleId: b.ID().String()}

	if state.remainingCopies < 2 {
		for _, peer := range sw.manager.GetAll() {
			if hasCla(peer) && dest.SameNode(peer.Eid) {
				state.remainingCopies = 0
				state.sprayedTo[peer.NodeName()] = struct{}{}
				decision.NextHops = []peers.Peer{peer}
				break
			}
		}
		return decision
	}

	for _, peer := range sw.manager.GetAll() {
		if state.remainingCopies < 2 {
			break
		}
		if !hasCla(peer) {
			continue
		}
		if _, sprayed := state.sprayedTo[peer.NodeName()]; sprayed {
			continue
		}

		give := state.remainingCopies / 2
		if give < 1 {
			give = 1
		}
		state.remainingCopies -= give
		state.sprayedTo[peer.NodeName()] = struct{}{}

		decision.NextHops = append(decision.NextHops, peer)
	}

	return decision
}

// Notify is a no-op for SprayAndWait.
func (sw *SprayAndWait) Notify(_ Notification) {}

// State exposes the number of tracked bundles and the multiplicity.
func (sw *SprayAndWait) State() map[string]string {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	return map[string]string{
		"algorithm":  sw.String(),
		"numCopies":  fmt.Sprintf("%d", sw.l),
		"numBundles": itoa(len(sw.bundles)),
	}
}
