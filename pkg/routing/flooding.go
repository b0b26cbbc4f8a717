// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"strconv"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/peers"
)

// itoa is strconv.Itoa; an alias keeps the algorithm files free of repeated
// strconv imports.
func itoa(n int) string {
	return strconv.Itoa(n)
}

// Flooding hands every bundle to every reachable peer on every call, without
// any history or suppression. It serves as a noise and robustness baseline.
type Flooding struct {
	manager *peers.Manager
	env     Environment
}

// NewFlooding routing Agent.
func NewFlooding() *Flooding {
	return &Flooding{}
}

func (f *Flooding) String() string {
	return "flooding"
}

// Configure hands over the peer manager and the node view.
func (f *Flooding) Configure(manager *peers.Manager, env Environment) {
	f.manager = manager
	f.env = env
}

// Start is a no-op for Flooding.
func (f *Flooding) Start() error {
	return nil
}

// Stop releases the Environment.
func (f *Flooding) Stop() {
	f.env = nil
}

// NextHops selects every peer with at least one CLA.
func (f *Flooding) NextHops(b *bpv7.Bundle) Decision {
	if f.env.IsLocalEndpoint(b.PrimaryBlock.Destination) {
		return localDecision(b)
	}

	decision := Decision{BundleId: b.ID().String()}
	for _, peer := range f.manager.GetAll() {
		if hasCla(peer) {
			decision.NextHops = append(decision.NextHops, peer)
		}
	}

	return decision
}

// Notify is a no-op for Flooding.
func (f *Flooding) Notify(_ Notification) {}

// State names the algorithm.
func (f *Flooding) State() map[string]string {
	return map[string]string{"algorithm": f.String()}
}
