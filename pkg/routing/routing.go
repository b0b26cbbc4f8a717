// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package routing provides the pluggable next-hop selection: an Agent decides
// for each bundle which peers receive a copy, or that the bundle is for this
// node itself.
package routing

import (
	"fmt"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/peers"
)

// Environment is the routing agents' view of the node. Agents receive it at
// Configure and must release it at Stop; they never own the node.
type Environment interface {
	// IsLocalEndpoint checks an EndpointID against the node's local endpoints.
	IsLocalEndpoint(eid bpv7.EndpointID) bool
}

// Decision is an Agent's answer for one bundle.
type Decision struct {
	BundleId        string
	NextHops        []peers.Peer
	IsLocalDelivery bool
}

// NotificationType classifies a Notification.
type NotificationType int

const (
	// PeerEncountered tells an Agent about a new neighbor.
	PeerEncountered NotificationType = iota

	// PeerLost tells an Agent about a vanished neighbor.
	PeerLost

	// IncomingBundle tells an Agent which peer delivered a bundle, enabling
	// loop prevention.
	IncomingBundle

	// ReloadConfig asks an Agent to re-read its configuration.
	ReloadConfig
)

// Notification is a command or event passed to an Agent.
type Notification struct {
	Type   NotificationType
	Peer   peers.Peer
	Bundle *bpv7.Bundle
}

// Agent is a routing algorithm.
type Agent interface {
	fmt.Stringer

	// Configure hands the Agent its collaborators before Start.
	Configure(manager *peers.Manager, env Environment)

	// Start the Agent's background work, if any.
	Start() error

	// Stop the Agent and release the Environment.
	Stop()

	// NextHops decides where a bundle goes. If the bundle's destination is
	// local, IsLocalDelivery is true and NextHops empty.
	NextHops(b *bpv7.Bundle) Decision

	// Notify the Agent about an event.
	Notify(n Notification)

	// State exposes algorithm-specific internals for the management API.
	State() map[string]string
}

// localDecision is the shared short-circuit for locally destined bundles.
func localDecision(b *bpv7.Bundle) Decision {
	return Decision{
		BundleId:        b.ID().String(),
		IsLocalDelivery: true,
	}
}

// hasCla checks a peer for at least one convergence layer address.
func hasCla(peer peers.Peer) bool {
	return len(peer.ClaList) > 0
}

// NewAgent creates the Agent selected by name with its algorithm-specific
// settings.
func NewAgent(name string, settings map[string]string) (Agent, error) {
	switch name {
	case "epidemic":
		return NewEpidemic(), nil

	case "flooding":
		return NewFlooding(), nil

	case "sprayandwait":
		copies := defaultSprayCopies
		if v, ok := settings["num_copies"]; ok {
			if _, err := fmt.Sscanf(v, "%d", &copies); err != nil {
				return nil, fmt.Errorf("sprayandwait: parsing num_copies %q failed: %w", v, err)
			}
		}
		return NewSprayAndWait(copies), nil

	case "static":
		return NewStatic(settings["routes"]), nil

	case "sink":
		return NewSink(), nil

	default:
		return nil, fmt.Errorf("unknown routing algorithm %q", name)
	}
}
