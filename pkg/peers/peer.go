// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package peers tracks the nodes this agent currently knows, both statically
// configured and dynamically discovered ones, and publishes their lifecycle
// as an event stream.
package peers

import (
	"fmt"
	"time"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
)

// Kind tells a statically configured Peer from a discovered one.
type Kind int

const (
	// Static peers originate from the configuration and are never pruned for
	// send failures.
	Static Kind = iota

	// Dynamic peers were discovered at runtime and vanish again after repeated
	// failures or a stale last contact.
	Dynamic
)

func (k Kind) String() string {
	switch k {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// CLAAddress names one way to reach a Peer: a convergence layer family plus
// an optional port.
type CLAAddress struct {
	Name string
	Port uint16
}

func (ca CLAAddress) String() string {
	if ca.Port == 0 {
		return ca.Name
	}
	return fmt.Sprintf("%s:%d", ca.Name, ca.Port)
}

// Peer is one known node.
type Peer struct {
	Eid            bpv7.EndpointID
	Address        string
	Kind           Kind
	AnnouncePeriod time.Duration
	ClaList        []CLAAddress
	Services       map[uint8]string

	// LastContact is a monotonic timestamp refreshed by AddOrUpdate, by every
	// bundle received over a connection naming this peer, and by every
	// successful send to it. Other frames, such as keepalives, do not refresh
	// it.
	LastContact time.Time

	// FailCount is incremented on send failures and zeroed on success.
	FailCount uint
}

// NewPeer for an endpoint, its network address and its origin.
func NewPeer(eid bpv7.EndpointID, address string, kind Kind) Peer {
	return Peer{
		Eid:         eid,
		Address:     address,
		Kind:        kind,
		Services:    map[uint8]string{},
		LastContact: time.Now(),
	}
}

// NodeName is the peer's node name, e.g., "node1" for dtn://node1/.
func (p Peer) NodeName() string {
	if t, ok := p.Eid.EndpointType.(bpv7.DtnEndpoint); ok {
		return t.NodeName()
	}
	return p.Eid.String()
}

func (p Peer) String() string {
	return fmt.Sprintf("Peer(%v, %s, %v)", p.Eid, p.Address, p.Kind)
}
