// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"encoding/binary"
	"fmt"
	"io"
)

// RejectionCode is the one-octet reason of a MSG_REJECT message.
type RejectionCode uint8

const (
	// RejectionTypeUnknown signals an unknown message type.
	RejectionTypeUnknown RejectionCode = 0x01

	// RejectionUnsupported signals a known but unsupported message type.
	RejectionUnsupported RejectionCode = 0x02

	// RejectionUnexpected signals a message inappropriate for the session state.
	RejectionUnexpected RejectionCode = 0x03
)

func (rc RejectionCode) String() string {
	switch rc {
	case RejectionTypeUnknown:
		return "message type unknown"
	case RejectionUnsupported:
		return "message unsupported"
	case RejectionUnexpected:
		return "message unexpected"
	default:
		return "invalid"
	}
}

// MessageRejectionMessage is the MSG_REJECT message declining a received message.
type MessageRejectionMessage struct {
	Reason       RejectionCode
	RejectedType uint8
}

// NewMessageRejectionMessage with a reason for the rejected message type.
func NewMessageRejectionMessage(reason RejectionCode, rejectedType uint8) *MessageRejectionMessage {
	return &MessageRejectionMessage{
		Reason:       reason,
		RejectedType: rejectedType,
	}
}

// TypeCode of a MSG_REJECT message.
func (mrm *MessageRejectionMessage) TypeCode() uint8 {
	return MSG_REJECT
}

func (mrm *MessageRejectionMessage) String() string {
	return fmt.Sprintf("MSG_REJECT(reason=%v, type=%#02x)", mrm.Reason, mrm.RejectedType)
}

// Marshal writes this message including its type code.
func (mrm *MessageRejectionMessage) Marshal(w io.Writer) error {
	for _, field := range []interface{}{MSG_REJECT, mrm.Reason, mrm.RejectedType} {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal reads this message's body; the type code is already consumed.
func (mrm *MessageRejectionMessage) Unmarshal(r io.Reader) error {
	for _, field := range []interface{}{&mrm.Reason, &mrm.RejectedType} {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return err
		}
	}
	return nil
}
