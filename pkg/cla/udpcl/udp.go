// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package udpcl provides a minimal datagram convergence layer: one datagram
// carries exactly one encoded bundle, without acknowledgment or retry.
package udpcl

import (
	"bytes"
	"fmt"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/cla"
	"github.com/dtn7/dtn7-gold/pkg/peers"
)

const claType = "udpcl"

// maxDatagramSize is the upper bound for maxBundleSize.
const maxDatagramSize = 65535

// UDPCl is a cla.ConvergenceLayer on plain UDP datagrams. The frame carries
// no peer identity; received bundles are stamped with a synthetic connection
// ID derived from the source address.
type UDPCl struct {
	listenAddress string
	maxBundleSize int

	conn *net.UDPConn

	incoming chan cla.IncomingBundle

	stopSyn  chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New UDPCl listening on the given address. A maxBundleSize of zero selects
// the datagram maximum of 65535 octets.
func New(listenAddress string, maxBundleSize int) *UDPCl {
	if maxBundleSize <= 0 || maxBundleSize > maxDatagramSize {
		maxBundleSize = maxDatagramSize
	}

	return &UDPCl{
		listenAddress: listenAddress,
		maxBundleSize: maxBundleSize,
		incoming:      make(chan cla.IncomingBundle, 32),
		stopSyn:       make(chan struct{}),
	}
}

// ID of this instance.
func (u *UDPCl) ID() string {
	return fmt.Sprintf("%s://%s", claType, u.listenAddress)
}

// Name is "udpcl".
func (u *UDPCl) Name() string {
	return claType
}

// Incoming is the stream of received bundles.
func (u *UDPCl) Incoming() <-chan cla.IncomingBundle {
	return u.incoming
}

// Start binds the UDP socket and spawns the receive loop.
func (u *UDPCl) Start() error {
	addr, err := net.ResolveUDPAddr("udp", u.listenAddress)
	if err != nil {
		return err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	u.conn = conn

	u.wg.Add(1)
	go u.receiveLoop()

	log.WithFields(log.Fields{
		"cla":     claType,
		"address": u.listenAddress,
	}).Info("UDP CLA is listening")

	return nil
}

func (u *UDPCl) receiveLoop() {
	defer u.wg.Done()

	buff := make([]byte, maxDatagramSize)
	for {
		n, remote, err := u.conn.ReadFromUDP(buff)
		if err != nil {
			select {
			case <-u.stopSyn:
			default:
				log.WithError(err).WithField("cla", claType).Warn("Reading a datagram failed")
			}
			return
		}

		// A broken datagram is logged and dropped; the next one may be fine.
		b, err := bpv7.ParseBundle(bytes.NewReader(buff[:n]))
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"cla":    claType,
				"remote": remote,
			}).Warn("Decoding a received datagram failed, dropping it")
			continue
		}

		conn := cla.Connection{
			Id:            fmt.Sprintf("%s://%s", claType, remote),
			RemoteAddress: remote.String(),
			ClaType:       claType,
		}

		select {
		case u.incoming <- cla.IncomingBundle{Bundle: &b, Connection: conn}:
		case <-u.stopSyn:
			return
		}
	}
}

// Stop closes the socket and the incoming stream.
func (u *UDPCl) Stop() {
	u.stopOnce.Do(func() {
		close(u.stopSyn)
		if u.conn != nil {
			_ = u.conn.Close()
		}
		u.wg.Wait()
		close(u.incoming)
	})
}

// peerAddress derives the UDP address for a peer from its CLA list.
func (u *UDPCl) peerAddress(peer peers.Peer) string {
	for _, ca := range peer.ClaList {
		if ca.Name != claType && ca.Name != "udp" {
			continue
		}

		if ca.Port == 0 {
			return peer.Address
		}

		host := peer.Address
		if h, _, err := net.SplitHostPort(peer.Address); err == nil {
			host = h
		}
		return net.JoinHostPort(host, fmt.Sprintf("%d", ca.Port))
	}

	return ""
}

// CanReach checks if the peer advertises an UDP address.
func (u *UDPCl) CanReach(peer peers.Peer) bool {
	return u.peerAddress(peer) != ""
}

// SendBundle transmits a bundle in one datagram. Oversize bundles fail with
// a BundleTooLargeError.
func (u *UDPCl) SendBundle(b *bpv7.Bundle, peer peers.Peer) error {
	address := u.peerAddress(peer)
	if address == "" {
		return cla.ErrInvalidPeerAddress
	}

	data, err := b.WriteBundleBytes()
	if err != nil {
		return err
	}
	if len(data) > u.maxBundleSize {
		return &cla.BundleTooLargeError{Actual: len(data), Max: u.maxBundleSize}
	}

	remote, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return err
	}

	if _, err := u.conn.WriteToUDP(data, remote); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"cla":    claType,
		"bundle": b.ID(),
		"remote": remote,
	}).Debug("Sent bundle via UDP")

	return nil
}

// Connections is always empty; UDP is connectionless.
func (u *UDPCl) Connections() []cla.Connection {
	return nil
}
