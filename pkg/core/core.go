// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package core wires the node together: the bundle processor, the store, the
// peer manager, the convergence layers, the routing agent and the janitor.
package core

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/agent"
	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/cla"
	"github.com/dtn7/dtn7-gold/pkg/peers"
	"github.com/dtn7/dtn7-gold/pkg/routing"
	"github.com/dtn7/dtn7-gold/pkg/storage"
)

// Options configure a Core.
type Options struct {
	// NodeId is this node's canonical EndpointID; required.
	NodeId string

	// Store backend; required.
	Store storage.Store

	// Routing agent; nil selects the default behavior of forwarding to all
	// peers unless the destination is local.
	Routing routing.Agent

	// GenerateStatusReports is the master switch for status report emission.
	GenerateStatusReports bool

	// ParallelBundleProcessing decouples the CLA receive loops from the
	// processing pipeline by handing every incoming bundle to its own
	// goroutine. The processor still serializes per call.
	ParallelBundleProcessing bool

	// JanitorInterval between maintenance sweeps; zero selects 10 seconds.
	JanitorInterval time.Duration

	// PeerTimeout after which a silent peer is pruned; zero selects 5 minutes.
	PeerTimeout time.Duration
}

// Core is the node's orchestrator: it owns the processor, the store, the peer
// manager, the CLA registry, the application agent, the service registry and
// the optional routing agent. Its lifecycle is NewCore → (serve) → Close,
// exactly once.
type Core struct {
	nodeId bpv7.EndpointID

	store       storage.Store
	processor   *Processor
	claRegistry *cla.Registry
	peerManager *peers.Manager
	services    *agent.ServiceRegistry
	appAgent    *agent.ApplicationAgent
	routing     routing.Agent
	cron        *Cron

	stats     Statistics
	startedAt time.Time

	generateStatusReports bool
	parallelProcessing    bool

	endpointsMutex sync.RWMutex
	endpoints      map[bpv7.EndpointID]struct{}

	stopSyn  chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewCore assembles and starts a Core.
func NewCore(opts Options) (*Core, error) {
	if opts.NodeId == "" {
		return nil, fmt.Errorf("node ID must not be empty")
	}
	nodeId, err := bpv7.ParseEndpointID(opts.NodeId)
	if err != nil {
		return nil, fmt.Errorf("parsing node ID failed: %w", err)
	}
	if !nodeId.IsSingleton() {
		return nil, fmt.Errorf("node ID %v must be a singleton endpoint", nodeId)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("a store is required")
	}

	if opts.JanitorInterval <= 0 {
		opts.JanitorInterval = 10 * time.Second
	}
	if opts.PeerTimeout <= 0 {
		opts.PeerTimeout = 5 * time.Minute
	}

	c := &Core{
		nodeId:                nodeId,
		store:                 opts.Store,
		peerManager:           peers.NewManager(opts.PeerTimeout),
		services:              agent.NewServiceRegistry(),
		appAgent:              agent.NewApplicationAgent(),
		routing:               opts.Routing,
		cron:                  NewCron(),
		startedAt:             time.Now(),
		generateStatusReports: opts.GenerateStatusReports,
		parallelProcessing:    opts.ParallelBundleProcessing,
		endpoints:             map[bpv7.EndpointID]struct{}{},
		stopSyn:               make(chan struct{}),
	}

	c.processor = newProcessor(c)
	c.claRegistry = cla.NewRegistry(c.receiveIncoming)

	if c.routing != nil {
		c.routing.Configure(c.peerManager, c)
		if err := c.routing.Start(); err != nil {
			c.peerManager.Close()
			return nil, fmt.Errorf("starting routing agent failed: %w", err)
		}
	}

	if err := c.cron.Register("janitor", c.janitor, opts.JanitorInterval); err != nil {
		log.WithError(err).Warn("Registering the janitor failed")
	}

	c.wg.Add(1)
	go c.peerEventPump()

	log.WithField("nodeId", c.nodeId).Info("Core is up")

	return c, nil
}

// NodeId of this Core.
func (c *Core) NodeId() bpv7.EndpointID {
	return c.nodeId
}

// Store of this Core.
func (c *Core) Store() storage.Store {
	return c.store
}

// PeerManager of this Core.
func (c *Core) PeerManager() *peers.Manager {
	return c.peerManager
}

// Services of this Core.
func (c *Core) Services() *agent.ServiceRegistry {
	return c.services
}

// ApplicationAgent of this Core.
func (c *Core) ApplicationAgent() *agent.ApplicationAgent {
	return c.appAgent
}

// Uptime since this Core started.
func (c *Core) Uptime() time.Duration {
	return time.Since(c.startedAt)
}

// StatsSnapshot of the bundle counters.
func (c *Core) StatsSnapshot() map[string]uint64 {
	return c.stats.Snapshot(c.store.Count())
}

// RegisterCLA starts a convergence layer and funnels its received bundles
// into the processor. A failing CLA does not abort the daemon.
func (c *Core) RegisterCLA(cl cla.ConvergenceLayer) error {
	return c.claRegistry.Register(cl)
}

// CLARegistry of this Core.
func (c *Core) CLARegistry() *cla.Registry {
	return c.claRegistry
}

// receiveIncoming is the CLA registry's sink.
func (c *Core) receiveIncoming(incoming cla.IncomingBundle) {
	if c.parallelProcessing {
		go c.processIncoming(incoming)
	} else {
		c.processIncoming(incoming)
	}
}

func (c *Core) processIncoming(incoming cla.IncomingBundle) {
	if incoming.Connection.HasRemoteEid() {
		c.peerManager.RecordSuccess(incoming.Connection.RemoteEid)

		if c.routing != nil {
			if peer, known := c.peerManager.GetPeer(incoming.Connection.RemoteEid); known {
				c.routing.Notify(routing.Notification{
					Type:   routing.IncomingBundle,
					Peer:   peer,
					Bundle: incoming.Bundle,
				})
			}
		}
	}

	if err := c.processor.Receive(incoming.Bundle, incoming.Connection); err != nil {
		log.WithError(err).WithField("bundle", incoming.Bundle.ID()).Debug("Reception errored")
	}
}

// SubmitBundle hands a locally originated bundle to the processor.
func (c *Core) SubmitBundle(b *bpv7.Bundle) error {
	return c.processor.Transmit(b)
}

// Processor of this Core.
func (c *Core) Processor() *Processor {
	return c.processor
}

// RegisterEndpoint adds a local application endpoint.
func (c *Core) RegisterEndpoint(eid bpv7.EndpointID) error {
	if err := c.appAgent.Register(eid); err != nil {
		return err
	}

	c.endpointsMutex.Lock()
	c.endpoints[eid] = struct{}{}
	c.endpointsMutex.Unlock()
	return nil
}

// RegisterEndpointDelegate adds a local push endpoint.
func (c *Core) RegisterEndpointDelegate(eid bpv7.EndpointID, delegate agent.DeliveryFunc) error {
	if err := c.appAgent.RegisterDelegate(eid, delegate); err != nil {
		return err
	}

	c.endpointsMutex.Lock()
	c.endpoints[eid] = struct{}{}
	c.endpointsMutex.Unlock()
	return nil
}

// UnregisterEndpoint removes a local application endpoint.
func (c *Core) UnregisterEndpoint(eid bpv7.EndpointID) {
	c.appAgent.Unregister(eid)

	c.endpointsMutex.Lock()
	delete(c.endpoints, eid)
	c.endpointsMutex.Unlock()
}

// IsLocalEndpoint checks an EndpointID against this node: its node ID, the
// registered endpoints, and their patterns.
func (c *Core) IsLocalEndpoint(eid bpv7.EndpointID) bool {
	if eid.IsNone() {
		return false
	}
	if eid == c.nodeId || eid.SameNode(c.nodeId) {
		return true
	}

	c.endpointsMutex.RLock()
	defer c.endpointsMutex.RUnlock()

	for registered := range c.endpoints {
		if eid == registered || eid.Matches(registered) {
			return true
		}
	}

	return false
}

// GetRoutingDecision delegates to the routing agent. Without one, the default
// selects all peers unless the destination is a local endpoint.
func (c *Core) GetRoutingDecision(b *bpv7.Bundle) routing.Decision {
	if c.routing != nil {
		return c.routing.NextHops(b)
	}

	decision := routing.Decision{BundleId: b.ID().String()}
	if c.IsLocalEndpoint(b.PrimaryBlock.Destination) {
		decision.IsLocalDelivery = true
		return decision
	}

	decision.NextHops = c.peerManager.GetAll()
	return decision
}

// SendBundle transmits a bundle to the given peers.
func (c *Core) SendBundle(b *bpv7.Bundle, nextHops []peers.Peer) {
	for _, peer := range nextHops {
		c.sendToPeer(b, peer)
	}
}

// sendToPeer tries the peer's convergence layers in registration order; the
// first success wins.
func (c *Core) sendToPeer(b *bpv7.Bundle, peer peers.Peer) {
	logger := log.WithFields(log.Fields{
		"bundle": b.ID(),
		"peer":   peer.Eid,
	})

	clas := c.claRegistry.FindForPeer(peer)
	if len(clas) == 0 {
		logger.Debug("No CLA for peer")
		c.peerManager.RecordFailure(peer.Eid)
		return
	}

	for _, cl := range clas {
		if err := cl.SendBundle(b, peer); err != nil {
			logger.WithError(err).WithField("cla", cl.ID()).Info("Sending bundle failed, trying next CLA")
			continue
		}

		logger.WithField("cla", cl.ID()).Info("Sent bundle")
		c.peerManager.RecordSuccess(peer.Eid)
		c.stats.Outgoing.Add(1)
		return
	}

	logger.Info("Sending bundle failed on every CLA")
	c.peerManager.RecordFailure(peer.Eid)
}

// peerEventPump bridges peer events to the routing agent and retries pending
// bundles when a new peer shows up.
func (c *Core) peerEventPump() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopSyn:
			return

		case event, ok := <-c.peerManager.Events():
			if !ok {
				return
			}

			if c.routing != nil {
				switch event.Type {
				case peers.Discovered, peers.ConnectionEstablished:
					c.routing.Notify(routing.Notification{Type: routing.PeerEncountered, Peer: event.Peer})
				case peers.Lost, peers.ConnectionLost:
					c.routing.Notify(routing.Notification{Type: routing.PeerLost, Peer: event.Peer})
				}
			}

			if event.Type == peers.Discovered || event.Type == peers.ConnectionEstablished {
				go c.reforwardPending()
			}
		}
	}
}

// Close shuts the Core down: CLAs first, then the maintenance loops and the
// store.
func (c *Core) Close() {
	c.stopOnce.Do(func() {
		close(c.stopSyn)

		c.claRegistry.Close()
		c.cron.Stop()

		if c.routing != nil {
			c.routing.Stop()
		}

		c.peerManager.Close()
		c.wg.Wait()

		if err := c.store.Close(); err != nil {
			log.WithError(err).Warn("Closing the store failed")
		}

		log.Info("Core is down")
	})
}
