// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"encoding/binary"
	"fmt"
	"io"
)

// RefusalCode is the one-octet reason of a XFER_REFUSE message.
type RefusalCode uint8

const (
	// RefusalUnknown is an unknown or unspecified reason.
	RefusalUnknown RefusalCode = 0x00

	// RefusalCompleted signals the receiver already has the complete bundle.
	RefusalCompleted RefusalCode = 0x01

	// RefusalNoResources signals exhausted resources on the receiver's side.
	RefusalNoResources RefusalCode = 0x02

	// RefusalRetransmit asks the sender to retransmit the complete bundle.
	RefusalRetransmit RefusalCode = 0x03

	// RefusalNotAcceptable signals broken bundle data; do not retry.
	RefusalNotAcceptable RefusalCode = 0x04

	// RefusalExtensionFailure signals a failure processing an extension item.
	RefusalExtensionFailure RefusalCode = 0x05

	// RefusalSessionTerminating signals a terminating session.
	RefusalSessionTerminating RefusalCode = 0x06
)

func (rc RefusalCode) String() string {
	switch rc {
	case RefusalUnknown:
		return "unknown"
	case RefusalCompleted:
		return "completed"
	case RefusalNoResources:
		return "no resources"
	case RefusalRetransmit:
		return "retransmit"
	case RefusalNotAcceptable:
		return "not acceptable"
	case RefusalExtensionFailure:
		return "extension failure"
	case RefusalSessionTerminating:
		return "session terminating"
	default:
		return "invalid"
	}
}

// TransferRefuseMessage is the XFER_REFUSE message declining a transfer.
type TransferRefuseMessage struct {
	Reason     RefusalCode
	TransferId uint64
}

// NewTransferRefuseMessage with a reason for a transfer ID.
func NewTransferRefuseMessage(reason RefusalCode, tid uint64) *TransferRefuseMessage {
	return &TransferRefuseMessage{
		Reason:     reason,
		TransferId: tid,
	}
}

// TypeCode of a XFER_REFUSE message.
func (trm *TransferRefuseMessage) TypeCode() uint8 {
	return XFER_REFUSE
}

func (trm *TransferRefuseMessage) String() string {
	return fmt.Sprintf("XFER_REFUSE(reason=%v, id=%d)", trm.Reason, trm.TransferId)
}

// Marshal writes this message including its type code.
func (trm *TransferRefuseMessage) Marshal(w io.Writer) error {
	for _, field := range []interface{}{XFER_REFUSE, trm.Reason, trm.TransferId} {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal reads this message's body; the type code is already consumed.
func (trm *TransferRefuseMessage) Unmarshal(r io.Reader) error {
	for _, field := range []interface{}{&trm.Reason, &trm.TransferId} {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return err
		}
	}
	return nil
}
