// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cla defines the convergence layer abstraction: link-specific
// adapters which transmit bundles over a concrete network protocol, and the
// Registry which supervises them and funnels received bundles upstream.
package cla

import (
	"fmt"
	"time"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/peers"
)

// Connection describes one link of a ConvergenceLayer to a remote node.
type Connection struct {
	Id            string
	RemoteEid     bpv7.EndpointID
	RemoteAddress string
	ClaType       string
	EstablishedAt time.Time
}

// HasRemoteEid checks if the remote peer identified itself.
func (c Connection) HasRemoteEid() bool {
	return c.RemoteEid.EndpointType != nil && !c.RemoteEid.IsNone()
}

func (c Connection) String() string {
	return fmt.Sprintf("Connection(%s, %s, %s)", c.ClaType, c.Id, c.RemoteAddress)
}

// IncomingBundle pairs a received bundle with the Connection it arrived on.
type IncomingBundle struct {
	Bundle     *bpv7.Bundle
	Connection Connection
}

// ConvergenceLayer is a link-specific bundle transport.
//
// An implementation yields received bundles on its Incoming channel until
// Stop is called, which also closes the channel.
type ConvergenceLayer interface {
	// ID uniquely identifies this instance, e.g., "tcpclv4://0.0.0.0:4556".
	ID() string

	// Name is the convergence layer family, e.g., "tcpclv4".
	Name() string

	// Start the ConvergenceLayer. A returned error is fatal for this
	// instance, but not for the daemon.
	Start() error

	// Stop the ConvergenceLayer and close its Incoming channel.
	Stop()

	// SendBundle transmits a bundle to a peer.
	SendBundle(b *bpv7.Bundle, peer peers.Peer) error

	// CanReach checks if this ConvergenceLayer has a way to address the peer.
	CanReach(peer peers.Peer) bool

	// Connections lists the currently established links.
	Connections() []Connection

	// Incoming is the stream of received bundles.
	Incoming() <-chan IncomingBundle
}
