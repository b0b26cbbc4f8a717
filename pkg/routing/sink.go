// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/peers"
)

// Sink drops every bundle which is not for local delivery. It is handy as a
// test endpoint for multi-node scenarios.
type Sink struct {
	env Environment
}

// NewSink routing Agent.
func NewSink() *Sink {
	return &Sink{}
}

func (s *Sink) String() string {
	return "sink"
}

// Configure hands over the node view; the peer manager is unused.
func (s *Sink) Configure(_ *peers.Manager, env Environment) {
	s.env = env
}

// Start is a no-op for Sink.
func (s *Sink) Start() error {
	return nil
}

// Stop releases the Environment.
func (s *Sink) Stop() {
	s.env = nil
}

// NextHops never selects a peer.
func (s *Sink) NextHops(b *bpv7.Bundle) Decision {
	if s.env.IsLocalEndpoint(b.PrimaryBlock.Destination) {
		return localDecision(b)
	}

	return Decision{BundleId: b.ID().String()}
}

// Notify is a no-op for Sink.
func (s *Sink) Notify(_ Notification) {}

// State names the algorithm.
func (s *Sink) State() map[string]string {
	return map[string]string{"algorithm": s.String()}
}
