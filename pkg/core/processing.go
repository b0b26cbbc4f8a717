// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/cla"
	"github.com/dtn7/dtn7-gold/pkg/peers"
	"github.com/dtn7/dtn7-gold/pkg/storage"
)

// seenBundlesCap bounds the duplicate-detection cache; the oldest IDs are
// evicted. Surviving a restart is not required.
const seenBundlesCap = 10_000

var (
	// ErrNoCoreReference is returned when the Processor lost its Core.
	ErrNoCoreReference = errors.New("no core reference")

	// ErrInvalidSource is returned for transmissions from foreign endpoints.
	ErrInvalidSource = errors.New("bundle's source is not a local endpoint")

	// ErrBundleExpired is returned for bundles past their lifetime.
	ErrBundleExpired = errors.New("bundle's lifetime is expired")

	// ErrDuplicateBundle is returned for an already seen bundle ID.
	ErrDuplicateBundle = errors.New("bundle was already received")

	// ErrBundleDeleted is returned when a block's failure action deleted the bundle.
	ErrBundleDeleted = errors.New("bundle was deleted")

	// ErrInvalidAdministrativeRecord is returned for broken administrative records.
	ErrInvalidAdministrativeRecord = errors.New("invalid administrative record")

	// ErrNoLocalEndpoint is returned when a local delivery hits no endpoint.
	ErrNoLocalEndpoint = errors.New("no such local endpoint")
)

// Processor is the bundle protocol agent's state machine: it receives,
// dispatches, forwards and delivers bundles, tracking each bundle's retention
// constraints in the store.
//
// Receive and Transmit calls are totally ordered per Processor; the pipeline
// itself is single-threaded.
type Processor struct {
	core *Core

	mutex       sync.Mutex
	seenBundles *lru.Cache[string, struct{}]
}

// newProcessor bound to its Core.
func newProcessor(core *Core) *Processor {
	seen, _ := lru.New[string, struct{}](seenBundlesCap)

	return &Processor{
		core:        core,
		seenBundles: seen,
	}
}

// Receive an incoming bundle from a convergence layer.
func (p *Processor) Receive(b *bpv7.Bundle, conn cla.Connection) error {
	if p.core == nil {
		return ErrNoCoreReference
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	id := b.ID().String()
	logger := log.WithField("bundle", id)

	if _, seen := p.seenBundles.Get(id); seen {
		p.core.stats.Duplicates.Add(1)
		logger.Debug("Dropping duplicate bundle")
		return ErrDuplicateBundle
	}
	p.seenBundles.Add(id, struct{}{})

	if b.IsLifetimeExceeded(time.Now()) {
		if b.PrimaryBlock.BundleControlFlags.Has(bpv7.StatusRequestDeletion) {
			p.core.sendStatusReport(b, bpv7.DeletedBundle, bpv7.LifetimeExpired)
		}
		logger.Info("Dropping expired bundle on reception")
		return ErrBundleExpired
	}

	if err := p.core.store.Push(b); err != nil {
		// A failing push aborts this processing step only.
		logger.WithError(err).Error("Storing received bundle failed")
		p.core.stats.Broken.Add(1)
		return err
	}
	p.core.stats.Incoming.Add(1)

	logger.Info("Received new bundle")

	if b.PrimaryBlock.BundleControlFlags.Has(bpv7.StatusRequestReception) &&
		!b.PrimaryBlock.ReportTo.IsNone() {
		p.core.sendStatusReport(b, bpv7.ReceivedBundle, bpv7.NoInformation)
	}

	if b.IsAdministrativeRecord() {
		if err := p.handleAdministrativeRecord(b, conn); err != nil {
			return err
		}

		// Administrative records end here; they are never forwarded.
		p.setConstraints(id, storage.Deleted)
		return nil
	}

	if err := p.inspectBlocks(b, id); err != nil {
		return err
	}

	p.addConstraint(id, storage.DispatchPending)
	p.dispatch(b, id)

	return nil
}

// Transmit a locally originated bundle.
func (p *Processor) Transmit(b *bpv7.Bundle) error {
	if p.core == nil {
		return ErrNoCoreReference
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	id := b.ID().String()
	logger := log.WithField("bundle", id)

	src := b.PrimaryBlock.SourceNode
	if !src.IsNone() && !p.core.IsLocalEndpoint(src) {
		logger.WithField("source", src).Info("Rejecting bundle from foreign source")
		return ErrInvalidSource
	}

	if b.IsLifetimeExceeded(time.Now()) {
		return ErrBundleExpired
	}

	if err := p.core.store.Push(b); err != nil {
		logger.WithError(err).Error("Storing outgoing bundle failed")
		return err
	}
	p.core.stats.Incoming.Add(1)

	logger.Info("Transmission of bundle requested")

	p.setConstraints(id, storage.DispatchPending)
	p.dispatch(b, id)

	return nil
}

// handleAdministrativeRecord decodes and processes a received administrative
// record; only status reports are understood.
func (p *Processor) handleAdministrativeRecord(b *bpv7.Bundle, conn cla.Connection) error {
	ar, err := b.AdministrativeRecord()
	if err != nil {
		p.core.stats.Broken.Add(1)
		return fmt.Errorf("%w: %v", ErrInvalidAdministrativeRecord, err)
	}

	switch record := ar.(type) {
	case *bpv7.StatusReport:
		log.WithFields(log.Fields{
			"bundle": b.ID(),
			"report": record,
			"from":   conn.RemoteAddress,
		}).Info("Received status report")

	default:
		log.WithFields(log.Fields{
			"bundle": b.ID(),
			"type":   record.RecordTypeCode(),
		}).Info("Received administrative record of unhandled type")
	}

	return nil
}

// inspectBlocks applies the block processing control flags' failure actions
// to every canonical block of an unknown type.
func (p *Processor) inspectBlocks(b *bpv7.Bundle, id string) error {
	var removals []uint64

	for i := range b.CanonicalBlocks {
		block := &b.CanonicalBlocks[i]
		if bpv7.IsKnownBlockType(block.TypeCode()) {
			continue
		}

		logger := log.WithFields(log.Fields{
			"bundle":    id,
			"blockType": block.TypeCode(),
		})

		switch {
		case block.BlockControlFlags.Has(bpv7.DeleteBundle):
			logger.Info("Unprocessable block requests bundle deletion")

			if b.PrimaryBlock.BundleControlFlags.Has(bpv7.StatusRequestDeletion) {
				p.core.sendStatusReport(b, bpv7.DeletedBundle, bpv7.BlockUnintelligible)
			}

			p.setConstraints(id, storage.Deleted)
			if err := p.core.store.Remove(id); err != nil {
				log.WithError(err).WithField("bundle", id).Warn("Removing deleted bundle failed")
			}
			return ErrBundleDeleted

		case block.BlockControlFlags.Has(bpv7.StatusReportBlock):
			logger.Info("Unprocessable block requests a status report")
			p.core.sendStatusReport(b, bpv7.ReceivedBundle, bpv7.BlockUnintelligible)

		case block.BlockControlFlags.Has(bpv7.RemoveBlock):
			logger.Info("Unprocessable block is removed from the bundle")
			removals = append(removals, block.BlockNumber)
		}
	}

	for _, no := range removals {
		b.RemoveExtensionBlockByBlockNumber(no)
	}
	if len(removals) > 0 {
		if err := p.core.store.Push(b); err != nil {
			log.WithError(err).WithField("bundle", id).Warn("Re-storing bundle after block removal failed")
		}
	}

	return nil
}

// dispatch decides a bundle's fate: local delivery, forwarding, or - without
// any route - contraindication.
func (p *Processor) dispatch(b *bpv7.Bundle, id string) {
	p.removeConstraint(id, storage.DispatchPending)

	decision := p.core.GetRoutingDecision(b)

	switch {
	case decision.IsLocalDelivery:
		p.localDelivery(b, id)

	case len(decision.NextHops) > 0:
		p.addConstraint(id, storage.ForwardPending)
		p.forward(b, id, decision.NextHops)

	default:
		log.WithField("bundle", id).Debug("No route, bundle remains in store")

		if b.PrimaryBlock.BundleControlFlags.Has(bpv7.StatusRequestDeletion) &&
			!b.PrimaryBlock.Destination.IsNone() {
			p.core.sendStatusReport(b, bpv7.DeletedBundle, bpv7.NoRouteToDestination)
		}
		p.core.stats.Failed.Add(1)
		p.addConstraint(id, storage.Contraindicated)
	}
}

// forward hands a bundle to the given peers, trying each peer's convergence
// layers in registration order. ForwardPending is cleared only after all
// peers were tried.
func (p *Processor) forward(b *bpv7.Bundle, id string, nextHops []peers.Peer) {
	if b.IsLifetimeExceeded(time.Now()) {
		// The routing decision may race with the clock; re-check.
		if b.PrimaryBlock.BundleControlFlags.Has(bpv7.StatusRequestDeletion) {
			p.core.sendStatusReport(b, bpv7.DeletedBundle, bpv7.LifetimeExpired)
		}
		p.removeConstraint(id, storage.ForwardPending)
		p.addConstraint(id, storage.Deleted)
		return
	}

	p.prepareForEgress(b, id)

	for _, peer := range nextHops {
		p.core.sendToPeer(b, peer)
	}

	p.removeConstraint(id, storage.ForwardPending)

	if b.PrimaryBlock.BundleControlFlags.Has(bpv7.StatusRequestForward) &&
		!b.PrimaryBlock.ReportTo.IsNone() {
		p.core.sendStatusReport(b, bpv7.ForwardedBundle, bpv7.NoInformation)
	}
}

// prepareForEgress stamps the outgoing bundle: the previous node block points
// to this node and an existing hop count block is incremented. A bundle age
// block is left as it is.
func (p *Processor) prepareForEgress(b *bpv7.Bundle, id string) {
	if block, err := b.ExtensionBlock(bpv7.ExtBlockTypePreviousNodeBlock); err == nil {
		block.Value = bpv7.NewPreviousNodeBlock(p.core.nodeId)
	} else {
		b.AddExtensionBlock(bpv7.NewCanonicalBlock(0, 0, bpv7.NewPreviousNodeBlock(p.core.nodeId)))
	}

	if block, err := b.ExtensionBlock(bpv7.ExtBlockTypeHopCountBlock); err == nil {
		block.Value.(*bpv7.HopCountBlock).Increment()
	}

	if err := p.core.store.Push(b); err != nil {
		log.WithError(err).WithField("bundle", id).Warn("Re-storing bundle before egress failed")
	}
}

// localDelivery hands a bundle to the application agent.
func (p *Processor) localDelivery(b *bpv7.Bundle, id string) {
	logger := log.WithField("bundle", id)

	if !p.core.IsLocalEndpoint(b.PrimaryBlock.Destination) {
		logger.Warn("Local delivery for a foreign destination")
		p.core.stats.Failed.Add(1)
		return
	}

	delivered := p.core.appAgent.Deliver(b)
	p.core.stats.Delivered.Add(1)

	logger.WithField("delivered", delivered).Info("Delivered bundle locally")

	if b.PrimaryBlock.BundleControlFlags.Has(bpv7.StatusRequestDelivery) &&
		!b.PrimaryBlock.ReportTo.IsNone() {
		p.core.sendStatusReport(b, bpv7.DeliveredBundle, bpv7.NoInformation)
	}

	// The janitor collects the delivered bundle.
	p.addConstraint(id, storage.Deleted)
}

// Constraint helpers; a missing store entry is ignored since a bundle may
// have been removed concurrently.

func (p *Processor) setConstraints(id string, c storage.Constraint) {
	if pack, err := p.core.store.GetMetadata(id); err == nil {
		pack.Constraints = c
		_ = p.core.store.UpdateMetadata(pack)
	}
}

func (p *Processor) addConstraint(id string, c storage.Constraint) {
	if pack, err := p.core.store.GetMetadata(id); err == nil {
		pack.AddConstraint(c)
		_ = p.core.store.UpdateMetadata(pack)
	}
}

func (p *Processor) removeConstraint(id string, c storage.Constraint) {
	if pack, err := p.core.store.GetMetadata(id); err == nil {
		pack.RemoveConstraint(c)
		_ = p.core.store.UpdateMetadata(pack)
	}
}
