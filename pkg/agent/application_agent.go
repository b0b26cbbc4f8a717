// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package agent connects local applications to the bundle processor: it maps
// registered endpoints to delivery queues or delegates and keeps a bounded
// pending list for endpoints nobody listens on yet.
package agent

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
)

// pendingCap bounds the per-endpoint pending list; the oldest bundle is
// dropped on overflow.
const pendingCap = 100

// DeliveryFunc is a push delegate, invoked for every bundle delivered to its
// endpoint.
type DeliveryFunc func(b *bpv7.Bundle)

// registration is one local endpoint: either a pull queue or a push delegate.
type registration struct {
	eid      bpv7.EndpointID
	delegate DeliveryFunc
	queue    []*bpv7.Bundle
}

// ApplicationAgent is the registry of local application endpoints.
type ApplicationAgent struct {
	mutex sync.Mutex

	registrations []*registration

	// pending holds bundles for endpoints without a registration, keyed by
	// the destination's canonical string.
	pending map[string][]*bpv7.Bundle
}

// NewApplicationAgent creates an empty ApplicationAgent.
func NewApplicationAgent() *ApplicationAgent {
	return &ApplicationAgent{
		pending: make(map[string][]*bpv7.Bundle),
	}
}

// Register a pull endpoint. Pending bundles for this endpoint are drained
// into its queue in FIFO order.
func (aa *ApplicationAgent) Register(eid bpv7.EndpointID) error {
	return aa.register(eid, nil)
}

// RegisterDelegate registers a push endpoint. Pending bundles are drained
// into the delegate in FIFO order.
func (aa *ApplicationAgent) RegisterDelegate(eid bpv7.EndpointID, delegate DeliveryFunc) error {
	return aa.register(eid, delegate)
}

func (aa *ApplicationAgent) register(eid bpv7.EndpointID, delegate DeliveryFunc) error {
	aa.mutex.Lock()

	for _, reg := range aa.registrations {
		if reg.eid == eid {
			aa.mutex.Unlock()
			return fmt.Errorf("endpoint %v is already registered", eid)
		}
	}

	reg := &registration{eid: eid, delegate: delegate}
	aa.registrations = append(aa.registrations, reg)

	backlog := aa.pending[eid.String()]
	delete(aa.pending, eid.String())

	if delegate == nil {
		reg.queue = append(reg.queue, backlog...)
		backlog = nil
	}

	aa.mutex.Unlock()

	log.WithField("endpoint", eid).Info("Registered local endpoint")

	// Push delegates receive the backlog without holding the lock.
	for _, b := range backlog {
		delegate(b)
	}

	return nil
}

// Unregister a local endpoint. Its queued bundles are dropped.
func (aa *ApplicationAgent) Unregister(eid bpv7.EndpointID) {
	aa.mutex.Lock()
	defer aa.mutex.Unlock()

	for i, reg := range aa.registrations {
		if reg.eid == eid {
			aa.registrations = append(aa.registrations[:i], aa.registrations[i+1:]...)
			log.WithField("endpoint", eid).Info("Unregistered local endpoint")
			return
		}
	}
}

// Endpoints returns all registered EndpointIDs.
func (aa *ApplicationAgent) Endpoints() []bpv7.EndpointID {
	aa.mutex.Lock()
	defer aa.mutex.Unlock()

	eids := make([]bpv7.EndpointID, 0, len(aa.registrations))
	for _, reg := range aa.registrations {
		eids = append(eids, reg.eid)
	}
	return eids
}

// HasEndpoint checks if an EndpointID hits a registration, either exactly or
// through the registration's pattern.
func (aa *ApplicationAgent) HasEndpoint(eid bpv7.EndpointID) bool {
	aa.mutex.Lock()
	defer aa.mutex.Unlock()

	return aa.findLocked(eid) != nil
}

// findLocked returns the registration for an EndpointID: an exact match wins,
// otherwise the first registration whose pattern matches.
func (aa *ApplicationAgent) findLocked(eid bpv7.EndpointID) *registration {
	for _, reg := range aa.registrations {
		if reg.eid == eid {
			return reg
		}
	}
	for _, reg := range aa.registrations {
		if eid.Matches(reg.eid) {
			return reg
		}
	}
	return nil
}

// Deliver a bundle to its destination endpoint. Returns true iff a
// registration took the bundle; false means it went to the pending list.
func (aa *ApplicationAgent) Deliver(b *bpv7.Bundle) bool {
	dest := b.PrimaryBlock.Destination

	aa.mutex.Lock()
	reg := aa.findLocked(dest)

	if reg == nil {
		backlog := append(aa.pending[dest.String()], b)
		if len(backlog) > pendingCap {
			backlog = backlog[1:]
		}
		aa.pending[dest.String()] = backlog
		aa.mutex.Unlock()

		log.WithFields(log.Fields{
			"bundle":   b.ID(),
			"endpoint": dest,
		}).Debug("No registration, queued bundle in pending list")
		return false
	}

	if reg.delegate == nil {
		reg.queue = append(reg.queue, b)
		aa.mutex.Unlock()
		return true
	}

	delegate := reg.delegate
	aa.mutex.Unlock()

	delegate(b)
	return true
}

// Poll pops the next queued bundle of a pull endpoint.
func (aa *ApplicationAgent) Poll(eid bpv7.EndpointID) (*bpv7.Bundle, bool) {
	aa.mutex.Lock()
	defer aa.mutex.Unlock()

	reg := aa.findLocked(eid)
	if reg == nil || len(reg.queue) == 0 {
		return nil, false
	}

	b := reg.queue[0]
	reg.queue = reg.queue[1:]
	return b, true
}
