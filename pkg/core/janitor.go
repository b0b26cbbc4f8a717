// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/storage"
)

// failCountThreshold above which the janitor prunes a dynamic peer.
const failCountThreshold uint = 3

// janitor is the periodic maintenance sweep: it garbage-collects expired and
// deleted bundles, prunes failing peers and retries forwarding for the
// remaining bundles.
func (c *Core) janitor() {
	c.expireBundles()
	c.prunePeers()
	c.reforwardPending()
}

// expireBundles removes every expired bundle and every bundle already marked
// Deleted. Each removal is isolated; one failure does not end the sweep.
func (c *Core) expireBundles() {
	now := time.Now()

	for _, id := range c.store.AllIds() {
		logger := log.WithField("bundle", id)

		if pack, err := c.store.GetMetadata(id); err == nil && pack.HasConstraint(storage.Deleted) {
			if err := c.store.Remove(id); err != nil {
				logger.WithError(err).Warn("Janitor failed to remove deleted bundle")
			} else {
				logger.Debug("Janitor removed deleted bundle")
			}
			continue
		}

		b, err := c.store.GetBundle(id)
		if err != nil {
			logger.WithError(err).Warn("Janitor failed to load bundle")
			continue
		}

		if b.IsLifetimeExceeded(now) {
			if err := c.store.Remove(id); err != nil {
				logger.WithError(err).Warn("Janitor failed to remove expired bundle")
			} else {
				logger.Info("Janitor removed expired bundle")
			}
		}
	}
}

// prunePeers removes failing dynamic peers and stale peers of any kind.
func (c *Core) prunePeers() {
	c.peerManager.PruneFailing(failCountThreshold)
	c.peerManager.PruneStale()
}

// reforwardPending retries the routing decision for every stored bundle which
// is neither locally destined, deleted nor expired. It is a no-op without an
// active convergence layer.
func (c *Core) reforwardPending() {
	if !c.claRegistry.HasActive() {
		return
	}

	now := time.Now()

	for _, pack := range c.store.AllBundles() {
		if pack.HasConstraint(storage.Deleted) {
			continue
		}
		if c.IsLocalEndpoint(pack.Destination) {
			continue
		}

		b, err := c.store.GetBundle(pack.Id)
		if err != nil || b.IsLifetimeExceeded(now) {
			continue
		}

		decision := c.GetRoutingDecision(&b)
		if decision.IsLocalDelivery || len(decision.NextHops) == 0 {
			continue
		}

		log.WithFields(log.Fields{
			"bundle": pack.Id,
			"peers":  len(decision.NextHops),
		}).Info("Janitor retries bundle forwarding")

		c.SendBundle(&b, decision.NextHops)
	}
}
