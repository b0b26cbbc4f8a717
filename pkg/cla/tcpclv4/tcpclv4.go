// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package tcpclv4 provides the TCP Convergence Layer Protocol Version 4 of
// RFC 9174, restricted to single-segment transfers.
package tcpclv4

import (
	"fmt"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/cla"
	"github.com/dtn7/dtn7-gold/pkg/cla/tcpclv4/internal/msgs"
	"github.com/dtn7/dtn7-gold/pkg/peers"
)

const (
	claType = "tcpclv4"

	// segmentMru and transferMru announced in our SESS_INIT.
	segmentMru  uint64 = 1_048_576
	transferMru uint64 = 0xffff_ffff

	// defaultKeepalive announced in our SESS_INIT, in seconds.
	defaultKeepalive uint16 = 30
)

// Hooks inform the supervising code about session lifecycle changes.
type Hooks struct {
	// OnSessionEstablished is called after a successful handshake.
	OnSessionEstablished func(peerEid bpv7.EndpointID, conn cla.Connection)

	// OnSessionClosed is called when a session reached its final state.
	OnSessionClosed func(peerEid bpv7.EndpointID)
}

// TCPCLv4 is a cla.ConvergenceLayer bundling a listener for inbound sessions
// with on-demand outbound sessions.
type TCPCLv4 struct {
	listenAddress    string
	nodeId           bpv7.EndpointID
	keepaliveSeconds uint16
	hooks            Hooks

	listener net.Listener

	sessionsMutex sync.Mutex
	sessions      map[string]*session

	incoming chan cla.IncomingBundle

	stopSyn  chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New TCPCLv4 convergence layer listening on the given address.
func New(listenAddress string, nodeId bpv7.EndpointID, hooks Hooks) *TCPCLv4 {
	return &TCPCLv4{
		listenAddress:    listenAddress,
		nodeId:           nodeId,
		keepaliveSeconds: defaultKeepalive,
		hooks:            hooks,
		sessions:         make(map[string]*session),
		incoming:         make(chan cla.IncomingBundle, 32),
		stopSyn:          make(chan struct{}),
	}
}

// ID of this instance.
func (t *TCPCLv4) ID() string {
	return fmt.Sprintf("%s://%s", claType, t.listenAddress)
}

// Name is "tcpclv4".
func (t *TCPCLv4) Name() string {
	return claType
}

// Incoming is the stream of received bundles.
func (t *TCPCLv4) Incoming() <-chan cla.IncomingBundle {
	return t.incoming
}

// Start binds the listener and spawns the accept loop. A failing bind is
// fatal for this CLA, not for the daemon.
func (t *TCPCLv4) Start() error {
	listener, err := net.Listen("tcp", t.listenAddress)
	if err != nil {
		return err
	}
	t.listener = listener

	t.wg.Add(1)
	go t.acceptLoop()

	log.WithFields(log.Fields{
		"cla":     claType,
		"address": t.listenAddress,
	}).Info("TCPCLv4 is listening")

	return nil
}

func (t *TCPCLv4) acceptLoop() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.stopSyn:
			default:
				log.WithError(err).WithField("cla", claType).Warn("Accepting a connection failed")
			}
			return
		}

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.startSession(conn, false)
		}()
	}
}

// startSession performs the handshake and, on success, registers and drives
// the session until it closes.
func (t *TCPCLv4) startSession(conn net.Conn, outbound bool) *session {
	s := newSession(conn, t.nodeId, outbound, t.keepaliveSeconds, t.deliver, t.sessionClosed)

	if err := s.handshake(); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"cla":  claType,
			"peer": conn.RemoteAddr(),
		}).Warn("TCPCLv4 handshake failed")

		s.close()
		return nil
	}

	t.sessionsMutex.Lock()
	t.sessions[s.connInfo.Id] = s
	t.sessionsMutex.Unlock()

	if t.hooks.OnSessionEstablished != nil {
		t.hooks.OnSessionEstablished(s.peerNodeId, s.connInfo)
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		s.run()
	}()

	return s
}

// deliver is the sessions' bundle callback.
func (t *TCPCLv4) deliver(b *bpv7.Bundle, conn cla.Connection) {
	select {
	case t.incoming <- cla.IncomingBundle{Bundle: b, Connection: conn}:
	case <-t.stopSyn:
	}
}

// sessionClosed is the sessions' teardown callback.
func (t *TCPCLv4) sessionClosed(s *session) {
	t.sessionsMutex.Lock()
	delete(t.sessions, s.connInfo.Id)
	t.sessionsMutex.Unlock()

	if t.hooks.OnSessionClosed != nil && s.peerNodeId.EndpointType != nil {
		t.hooks.OnSessionClosed(s.peerNodeId)
	}
}

// Stop terminates all sessions, closes the listener and the incoming stream.
func (t *TCPCLv4) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopSyn)

		if t.listener != nil {
			_ = t.listener.Close()
		}

		t.sessionsMutex.Lock()
		sessions := make([]*session, 0, len(t.sessions))
		for _, s := range t.sessions {
			sessions = append(sessions, s)
		}
		t.sessionsMutex.Unlock()

		for _, s := range sessions {
			s.terminate(msgs.TerminationUnknown)
		}

		t.wg.Wait()
		close(t.incoming)
	})
}

// peerAddress derives the TCP address for a peer: a tcpclv4 entry of its CLA
// list names the port, the host stems from the peer's address.
func (t *TCPCLv4) peerAddress(peer peers.Peer) string {
	for _, ca := range peer.ClaList {
		if ca.Name != claType && ca.Name != "tcp" {
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

// CanReach checks if the peer advertises a TCPCLv4 address or has a running session.
func (t *TCPCLv4) CanReach(peer peers.Peer) bool {
	if t.findSession(peer.Eid) != nil {
		return true
	}
	return t.peerAddress(peer) != ""
}

// findSession returns an established session to the peer's node, if any.
func (t *TCPCLv4) findSession(eid bpv7.EndpointID) *session {
	t.sessionsMutex.Lock()
	defer t.sessionsMutex.Unlock()

	for _, s := range t.sessions {
		if s.getState() == stateEstablished && s.peerNodeId.SameNode(eid) {
			return s
		}
	}
	return nil
}

// SendBundle transmits a bundle to a peer, reusing an established session or
// dialing a new one.
func (t *TCPCLv4) SendBundle(b *bpv7.Bundle, peer peers.Peer) error {
	s := t.findSession(peer.Eid)

	if s == nil {
		address := t.peerAddress(peer)
		if address == "" {
			return cla.ErrInvalidPeerAddress
		}

		conn, err := net.Dial("tcp", address)
		if err != nil {
			return err
		}

		if s = t.startSession(conn, true); s == nil {
			return &cla.InvalidProtocolError{Msg: "TCPCLv4 handshake failed"}
		}
	}

	return s.SendBundle(b)
}

// Connections lists the established sessions.
func (t *TCPCLv4) Connections() (conns []cla.Connection) {
	t.sessionsMutex.Lock()
	defer t.sessionsMutex.Unlock()

	for _, s := range t.sessions {
		if s.getState() == stateEstablished {
			conns = append(conns, s.connInfo)
		}
	}
	return
}
