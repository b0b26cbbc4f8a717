// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"encoding/binary"
	"fmt"
	"io"
)

// TransferAckMessage is the XFER_ACK message acknowledging a XFER_SEGMENT.
// Its flags mirror the acknowledged segment's flags and its length counts the
// acknowledged octets.
type TransferAckMessage struct {
	Flags      SegmentFlags
	TransferId uint64
	AckLength  uint64
}

// NewTransferAckMessage for a segment's flags, transfer ID and data length.
func NewTransferAckMessage(flags SegmentFlags, tid, ackLength uint64) *TransferAckMessage {
	return &TransferAckMessage{
		Flags:      flags,
		TransferId: tid,
		AckLength:  ackLength,
	}
}

// TypeCode of a XFER_ACK message.
func (tam *TransferAckMessage) TypeCode() uint8 {
	return XFER_ACK
}

func (tam *TransferAckMessage) String() string {
	return fmt.Sprintf("XFER_ACK(flags=%v, id=%d, length=%d)", tam.Flags, tam.TransferId, tam.AckLength)
}

// Marshal writes this message including its type code.
func (tam *TransferAckMessage) Marshal(w io.Writer) error {
	for _, field := range []interface{}{XFER_ACK, tam.Flags, tam.TransferId, tam.AckLength} {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal reads this message's body; the type code is already consumed.
func (tam *TransferAckMessage) Unmarshal(r io.Reader) error {
	for _, field := range []interface{}{&tam.Flags, &tam.TransferId, &tam.AckLength} {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return err
		}
	}
	return nil
}
