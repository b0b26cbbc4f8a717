// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcpclv4

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/cla"
	"github.com/dtn7/dtn7-gold/pkg/cla/tcpclv4/internal/msgs"
)

// sessionState is the TCPCLv4 session state machine's state.
type sessionState int

const (
	stateIdle sessionState = iota
	stateContact
	stateSessInit
	stateEstablished
	stateTerminating
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateContact:
		return "contact"
	case stateSessInit:
		return "session initialization"
	case stateEstablished:
		return "established"
	case stateTerminating:
		return "terminating"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// session is one TCPCLv4 session on top of a TCP connection.
type session struct {
	conn     net.Conn
	nodeId   bpv7.EndpointID
	outbound bool

	// keepaliveSeconds is negotiated during the handshake: the minimum of
	// both peers' announced intervals. Zero disables the keepalive.
	keepaliveSeconds uint16

	peerNodeId bpv7.EndpointID
	connInfo   cla.Connection

	stateMutex sync.Mutex
	state      sessionState

	writeMutex sync.Mutex
	transferId uint64

	onBundle func(b *bpv7.Bundle, conn cla.Connection)
	onClosed func(s *session)

	closeOnce sync.Once
	done      chan struct{}
}

// newSession on an established TCP connection; outbound selects the handshake
// direction.
func newSession(conn net.Conn, nodeId bpv7.EndpointID, outbound bool, keepaliveSeconds uint16,
	onBundle func(*bpv7.Bundle, cla.Connection), onClosed func(*session)) *session {

	return &session{
		conn:             conn,
		nodeId:           nodeId,
		outbound:         outbound,
		keepaliveSeconds: keepaliveSeconds,
		state:            stateIdle,
		onBundle:         onBundle,
		onClosed:         onClosed,
		done:             make(chan struct{}),
	}
}

func (s *session) log() *log.Entry {
	return log.WithFields(log.Fields{
		"cla":     claType,
		"session": s.conn.RemoteAddr(),
	})
}

func (s *session) setState(state sessionState) {
	s.stateMutex.Lock()
	s.state = state
	s.stateMutex.Unlock()
}

func (s *session) getState() sessionState {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	return s.state
}

// handshake performs the contact header and SESS_INIT exchange. The outbound
// path sends first and the inbound path answers; both verify magic and
// version before proceeding.
func (s *session) handshake() error {
	s.setState(stateContact)

	ours := msgs.ContactHeader{}
	theirs := msgs.ContactHeader{}

	if s.outbound {
		if err := ours.Marshal(s.conn); err != nil {
			return err
		}
		if err := theirs.Unmarshal(s.conn); err != nil {
			return err
		}
	} else {
		if err := theirs.Unmarshal(s.conn); err != nil {
			return err
		}
		if err := ours.Marshal(s.conn); err != nil {
			return err
		}
	}

	s.setState(stateSessInit)

	ourInit := msgs.NewSessionInitMessage(s.keepaliveSeconds, segmentMru, transferMru, s.nodeId.String())

	sendInit := func() error {
		s.writeMutex.Lock()
		defer s.writeMutex.Unlock()
		return ourInit.Marshal(s.conn)
	}
	recvInit := func() (*msgs.SessionInitMessage, error) {
		msg, err := msgs.ReadMessage(s.conn)
		if err != nil {
			return nil, err
		}
		init, ok := msg.(*msgs.SessionInitMessage)
		if !ok {
			return nil, &cla.InvalidMessageError{Msg: fmt.Sprintf("expected SESS_INIT, got %v", msg)}
		}
		return init, nil
	}

	var theirInit *msgs.SessionInitMessage
	var err error
	if s.outbound {
		if err = sendInit(); err != nil {
			return err
		}
		if theirInit, err = recvInit(); err != nil {
			return err
		}
	} else {
		if theirInit, err = recvInit(); err != nil {
			return err
		}
		if err = sendInit(); err != nil {
			return err
		}
	}

	theirKeepalive := theirInit.KeepaliveInterval
	if ext, ok := theirInit.KeepaliveExtension(); ok {
		theirKeepalive = ext
	}
	if theirKeepalive < s.keepaliveSeconds {
		s.keepaliveSeconds = theirKeepalive
	}

	if peerEid, eidErr := bpv7.ParseEndpointID(theirInit.NodeId); eidErr != nil {
		return &cla.InvalidMessageError{Msg: fmt.Sprintf("SESS_INIT node ID %q: %v", theirInit.NodeId, eidErr)}
	} else {
		s.peerNodeId = peerEid
	}

	s.connInfo = cla.Connection{
		Id:            s.conn.RemoteAddr().String(),
		RemoteEid:     s.peerNodeId,
		RemoteAddress: s.conn.RemoteAddr().String(),
		ClaType:       claType,
		EstablishedAt: time.Now(),
	}

	s.setState(stateEstablished)

	s.log().WithFields(log.Fields{
		"peer":      s.peerNodeId,
		"keepalive": s.keepaliveSeconds,
	}).Info("TCPCLv4 session established")

	return nil
}

// send serializes one message onto the connection. Writes are bounded by the
// keepalive interval.
func (s *session) send(m msgs.Message) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	if s.keepaliveSeconds > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Duration(s.keepaliveSeconds) * time.Second))
	}

	return m.Marshal(s.conn)
}

// run drives the established session: the message loop plus the keepalive
// ticker. It returns when the session reached its final state.
func (s *session) run() {
	defer s.close()

	if s.keepaliveSeconds > 0 {
		go s.keepalive()
	}

	for {
		if s.keepaliveSeconds > 0 {
			idle := 2 * time.Duration(s.keepaliveSeconds) * time.Second
			_ = s.conn.SetReadDeadline(time.Now().Add(idle))
		}

		msg, err := msgs.ReadMessage(s.conn)
		if err != nil {
			if s.getState() == stateEstablished {
				s.log().WithError(err).Info("TCPCLv4 session errored, closing")
			}
			return
		}

		if !s.handleMessage(msg) {
			return
		}
	}
}

// handleMessage dispatches one received message; a false return ends the session.
func (s *session) handleMessage(msg msgs.Message) bool {
	switch msg := msg.(type) {
	case *msgs.TransferSegmentMessage:
		s.handleSegment(msg)

	case *msgs.TransferAckMessage:
		s.log().WithField("ack", msg).Debug("Received XFER_ACK")

	case *msgs.TransferRefuseMessage:
		s.log().WithField("refuse", msg).Warn("Peer refused a transfer")

	case *msgs.KeepaliveMessage:
		s.log().Debug("Received KEEPALIVE")

	case *msgs.MessageRejectionMessage:
		s.log().WithField("reject", msg).Warn("Peer rejected a message")

	case *msgs.SessionTerminationMessage:
		if !msg.IsReply() {
			_ = s.send(msgs.NewSessionTerminationMessage(msgs.TerminationReply, msg.Reason))
		}
		s.log().WithField("reason", msg.Reason).Info("Peer terminated TCPCLv4 session")
		return false

	default:
		_ = s.send(msgs.NewMessageRejectionMessage(msgs.RejectionUnexpected, msg.TypeCode()))
	}

	return true
}

// handleSegment processes one XFER_SEGMENT: a complete single-segment bundle
// is decoded and acknowledged, everything else is refused.
func (s *session) handleSegment(seg *msgs.TransferSegmentMessage) {
	if !seg.IsComplete() {
		// Multi-segment reassembly is out of scope, but RFC 9174 requires
		// parsing such segments; they are answered with a XFER_REFUSE.
		_ = s.send(msgs.NewTransferRefuseMessage(msgs.RefusalNotAcceptable, seg.TransferId))
		return
	}

	b, err := bpv7.ParseBundle(bytes.NewReader(seg.Data))
	if err != nil {
		s.log().WithError(err).Warn("Decoding a received bundle failed, refusing transfer")
		_ = s.send(msgs.NewTransferRefuseMessage(msgs.RefusalNotAcceptable, seg.TransferId))
		return
	}

	ack := msgs.NewTransferAckMessage(seg.Flags, seg.TransferId, uint64(len(seg.Data)))
	if err := s.send(ack); err != nil {
		s.log().WithError(err).Warn("Sending XFER_ACK failed")
	}

	s.onBundle(&b, s.connInfo)
}

// keepalive sends a KEEPALIVE message every keepaliveSeconds.
func (s *session) keepalive() {
	ticker := time.NewTicker(time.Duration(s.keepaliveSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case <-ticker.C:
			if err := s.send(msgs.NewKeepaliveMessage()); err != nil {
				s.log().WithError(err).Debug("Sending KEEPALIVE failed")
				return
			}
		}
	}
}

// SendBundle transmits one bundle as a single-segment transfer. The XFER_ACK
// is awaited asynchronously in the message loop; a missing acknowledgment is
// not retried within this session.
func (s *session) SendBundle(b *bpv7.Bundle) error {
	switch s.getState() {
	case stateEstablished:
	case stateClosed:
		return cla.ErrConnectionClosed
	default:
		return cla.ErrConnectionNotActive
	}

	data, err := b.WriteBundleBytes()
	if err != nil {
		return err
	}

	seg := msgs.NewTransferSegmentMessage(atomic.AddUint64(&s.transferId, 1), data)

	if err := s.send(seg); err != nil {
		return fmt.Errorf("sending XFER_SEGMENT failed: %w", err)
	}

	s.log().WithFields(log.Fields{
		"bundle":   b.ID(),
		"transfer": seg.TransferId,
	}).Debug("Sent bundle via TCPCLv4")

	return nil
}

// terminate sends a SESS_TERM and closes the session.
func (s *session) terminate(reason msgs.TerminationCode) {
	if s.getState() == stateEstablished {
		s.setState(stateTerminating)
		_ = s.send(msgs.NewSessionTerminationMessage(0, reason))
	}

	s.close()
}

// close moves to the final state and reports upstream, exactly once.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.setState(stateClosed)
		close(s.done)
		_ = s.conn.Close()

		if s.onClosed != nil {
			s.onClosed(s)
		}
	})
}
