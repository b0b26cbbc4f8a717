// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"fmt"
	"time"

	"github.com/schollz/peerdiscovery"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
)

const (
	address4 = "239.23.5.7"
	address6 = "[ff02::23:5:7]"
	port     = 35039
)

// DiscoveredFunc handles one received Announcement together with the
// announcing node's network address.
type DiscoveredFunc func(announcement Announcement, address string)

// Manager broadcasts this node's Announcements and hands received ones to a
// callback.
type Manager struct {
	nodeId bpv7.EndpointID
	notify DiscoveredFunc

	stopChan4 chan struct{}
	stopChan6 chan struct{}
}

// NewManager starts announcing. The interval steers both the beacon cadence
// and, indirectly, how fresh the neighborhood is kept.
func NewManager(nodeId bpv7.EndpointID, announcements []Announcement, interval time.Duration,
	ipv4, ipv6 bool, notify DiscoveredFunc) (*Manager, error) {

	manager := &Manager{
		nodeId: nodeId,
		notify: notify,
	}

	payload, err := MarshalAnnouncements(announcements)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"interval":      interval,
		"announcements": announcements,
	}).Info("Starting neighbour discovery")

	sets := []struct {
		active           bool
		multicastAddress string
		ipVersion        peerdiscovery.IPVersion
		stopChan         *chan struct{}
	}{
		{ipv4, address4, peerdiscovery.IPv4, &manager.stopChan4},
		{ipv6, address6, peerdiscovery.IPv6, &manager.stopChan6},
	}

	for _, set := range sets {
		if !set.active {
			continue
		}

		*set.stopChan = make(chan struct{})

		settings := peerdiscovery.Settings{
			Limit:            -1,
			Port:             fmt.Sprintf("%d", port),
			MulticastAddress: set.multicastAddress,
			Payload:          payload,
			Delay:            interval,
			TimeLimit:        -1,
			StopChan:         *set.stopChan,
			AllowSelf:        true,
			IPVersion:        set.ipVersion,
			Notify:           manager.handleDiscovered,
		}

		errChan := make(chan error)
		go func() {
			_, discoverErr := peerdiscovery.Discover(settings)
			errChan <- discoverErr
		}()

		select {
		case discoverErr := <-errChan:
			if discoverErr != nil {
				return nil, discoverErr
			}

		case <-time.After(time.Second):
		}
	}

	return manager, nil
}

// handleDiscovered parses one received beacon.
func (manager *Manager) handleDiscovered(discovered peerdiscovery.Discovered) {
	announcements, err := UnmarshalAnnouncements(discovered.Payload)
	if err != nil {
		log.WithError(err).WithField("peer", discovered.Address).Warn("Parsing a discovery beacon failed")
		return
	}

	for _, announcement := range announcements {
		if manager.nodeId.SameNode(announcement.Endpoint) {
			continue
		}

		log.WithFields(log.Fields{
			"peer":         discovered.Address,
			"announcement": announcement,
		}).Debug("Received discovery beacon")

		manager.notify(announcement, discovered.Address)
	}
}

// Close stops announcing.
func (manager *Manager) Close() {
	for _, c := range []chan struct{}{manager.stopChan4, manager.stopChan6} {
		if c != nil {
			c <- struct{}{}
		}
	}
}
