// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"encoding/binary"
	"fmt"
	"io"
)

// TerminationFlags is the one-octet flag field of a SESS_TERM message.
type TerminationFlags uint8

// TerminationReply marks a SESS_TERM acknowledging an earlier SESS_TERM.
const TerminationReply TerminationFlags = 0x01

// TerminationCode is the one-octet reason of a SESS_TERM message.
type TerminationCode uint8

const (
	// TerminationUnknown is an unknown or unspecified reason.
	TerminationUnknown TerminationCode = 0x00

	// TerminationIdleTimeout closes an idle session.
	TerminationIdleTimeout TerminationCode = 0x01

	// TerminationVersionMismatch signals an unsupported protocol version.
	TerminationVersionMismatch TerminationCode = 0x02

	// TerminationBusy signals a busy node.
	TerminationBusy TerminationCode = 0x03

	// TerminationContactFailure signals unusable contact header options.
	TerminationContactFailure TerminationCode = 0x04

	// TerminationResourceExhaustion signals a reached resource limit.
	TerminationResourceExhaustion TerminationCode = 0x05
)

func (tc TerminationCode) String() string {
	switch tc {
	case TerminationUnknown:
		return "unknown"
	case TerminationIdleTimeout:
		return "idle timeout"
	case TerminationVersionMismatch:
		return "version mismatch"
	case TerminationBusy:
		return "busy"
	case TerminationContactFailure:
		return "contact failure"
	case TerminationResourceExhaustion:
		return "resource exhaustion"
	default:
		return "invalid"
	}
}

// SessionTerminationMessage is the SESS_TERM message ending a session.
type SessionTerminationMessage struct {
	Flags  TerminationFlags
	Reason TerminationCode
}

// NewSessionTerminationMessage with the given flags and reason.
func NewSessionTerminationMessage(flags TerminationFlags, reason TerminationCode) *SessionTerminationMessage {
	return &SessionTerminationMessage{
		Flags:  flags,
		Reason: reason,
	}
}

// TypeCode of a SESS_TERM message.
func (stm *SessionTerminationMessage) TypeCode() uint8 {
	return SESS_TERM
}

func (stm *SessionTerminationMessage) String() string {
	return fmt.Sprintf("SESS_TERM(flags=%#02x, reason=%v)", uint8(stm.Flags), stm.Reason)
}

// IsReply checks the reply flag.
func (stm *SessionTerminationMessage) IsReply() bool {
	return stm.Flags&TerminationReply != 0
}

// Marshal writes this message including its type code.
func (stm *SessionTerminationMessage) Marshal(w io.Writer) error {
	for _, field := range []interface{}{SESS_TERM, stm.Flags, stm.Reason} {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal reads this message's body; the type code is already consumed.
func (stm *SessionTerminationMessage) Unmarshal(r io.Reader) error {
	for _, field := range []interface{}{&stm.Flags, &stm.Reason} {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return err
		}
	}
	return nil
}
