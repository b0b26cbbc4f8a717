// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cla

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/peers"
)

// Registry supervises the registered ConvergenceLayers and funnels every
// received bundle into a single sink.
type Registry struct {
	mutex sync.RWMutex

	// clas in registration order; forwarding tries them in this order.
	clas []ConvergenceLayer

	sink func(IncomingBundle)

	wg     sync.WaitGroup
	closed bool
}

// NewRegistry with the sink all received bundles are passed to.
func NewRegistry(sink func(IncomingBundle)) *Registry {
	return &Registry{
		sink: sink,
	}
}

// Register starts a ConvergenceLayer and subscribes to its Incoming stream.
// A failing Start is fatal for this CLA only.
func (registry *Registry) Register(cl ConvergenceLayer) error {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	if registry.closed {
		return fmt.Errorf("registry is closed")
	}

	for _, known := range registry.clas {
		if known.ID() == cl.ID() {
			return fmt.Errorf("a CLA with ID %s is already registered", cl.ID())
		}
	}

	if err := cl.Start(); err != nil {
		return fmt.Errorf("starting CLA %s failed: %w", cl.ID(), err)
	}

	registry.clas = append(registry.clas, cl)

	registry.wg.Add(1)
	go func() {
		defer registry.wg.Done()

		for incoming := range cl.Incoming() {
			registry.sink(incoming)
		}
	}()

	log.WithFields(log.Fields{
		"cla": cl.ID(),
	}).Info("Registered CLA")

	return nil
}

// All returns the registered ConvergenceLayers in registration order.
func (registry *Registry) All() []ConvergenceLayer {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()

	return append([]ConvergenceLayer{}, registry.clas...)
}

// FindForPeer returns the ConvergenceLayers able to reach a peer, in
// registration order.
func (registry *Registry) FindForPeer(peer peers.Peer) (matches []ConvergenceLayer) {
	for _, cl := range registry.All() {
		if cl.CanReach(peer) {
			matches = append(matches, cl)
		}
	}
	return
}

// HasActive checks if at least one ConvergenceLayer is registered.
func (registry *Registry) HasActive() bool {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()

	return len(registry.clas) > 0
}

// Close stops all ConvergenceLayers and awaits their Incoming streams.
func (registry *Registry) Close() {
	registry.mutex.Lock()
	clas := registry.clas
	registry.clas = nil
	registry.closed = true
	registry.mutex.Unlock()

	for _, cl := range clas {
		cl.Stop()
	}

	registry.wg.Wait()
}
