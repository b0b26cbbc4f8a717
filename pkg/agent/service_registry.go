// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"sync"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
)

// Service is a well-known service offered by this node, addressed by a
// one-octet tag.
type Service struct {
	Tag         uint8
	Endpoint    bpv7.EndpointID
	Description string
}

// ServiceRegistry maps service tags to Services. A tag uniquely identifies a
// service within the node; registering a known tag overwrites it.
type ServiceRegistry struct {
	mutex    sync.RWMutex
	services map[uint8]Service
}

// NewServiceRegistry creates an empty ServiceRegistry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[uint8]Service),
	}
}

// Register a Service under its tag.
func (sr *ServiceRegistry) Register(service Service) {
	sr.mutex.Lock()
	defer sr.mutex.Unlock()

	sr.services[service.Tag] = service
}

// Lookup a Service by its tag.
func (sr *ServiceRegistry) Lookup(tag uint8) (Service, bool) {
	sr.mutex.RLock()
	defer sr.mutex.RUnlock()

	service, known := sr.services[tag]
	return service, known
}

// All returns a snapshot of the registered Services.
func (sr *ServiceRegistry) All() map[uint8]Service {
	sr.mutex.RLock()
	defer sr.mutex.RUnlock()

	all := make(map[uint8]Service, len(sr.services))
	for tag, service := range sr.services {
		all[tag] = service
	}
	return all
}
