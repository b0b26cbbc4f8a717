// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// SegmentFlags is the one-octet flag field of a XFER_SEGMENT.
type SegmentFlags uint8

const (
	// SegmentEnd marks the last segment of a transfer.
	SegmentEnd SegmentFlags = 0x01

	// SegmentStart marks the first segment of a transfer.
	SegmentStart SegmentFlags = 0x02
)

func (sf SegmentFlags) String() string {
	var flags []string
	if sf&SegmentStart != 0 {
		flags = append(flags, "START")
	}
	if sf&SegmentEnd != 0 {
		flags = append(flags, "END")
	}
	return strings.Join(flags, "|")
}

// TransferSegmentMessage is the XFER_SEGMENT message carrying bundle data.
// This implementation produces single-segment transfers only, i.e., START and
// END are both set and the data is one complete bundle.
type TransferSegmentMessage struct {
	Flags      SegmentFlags
	TransferId uint64
	Extensions []ExtensionItem
	Data       []byte
}

// NewTransferSegmentMessage for a complete bundle: both START and END are set
// and a transfer-length extension is attached.
func NewTransferSegmentMessage(tid uint64, data []byte) *TransferSegmentMessage {
	return &TransferSegmentMessage{
		Flags:      SegmentStart | SegmentEnd,
		TransferId: tid,
		Extensions: []ExtensionItem{NewTransferLengthExtension(uint64(len(data)))},
		Data:       data,
	}
}

// TypeCode of a XFER_SEGMENT message.
func (tsm *TransferSegmentMessage) TypeCode() uint8 {
	return XFER_SEGMENT
}

func (tsm *TransferSegmentMessage) String() string {
	return fmt.Sprintf("XFER_SEGMENT(flags=%v, id=%d, %d octets)", tsm.Flags, tsm.TransferId, len(tsm.Data))
}

// IsComplete checks for both the START and END flag, i.e., a single-segment transfer.
func (tsm *TransferSegmentMessage) IsComplete() bool {
	return tsm.Flags&(SegmentStart|SegmentEnd) == SegmentStart|SegmentEnd
}

// Marshal writes this message including its type code.
func (tsm *TransferSegmentMessage) Marshal(w io.Writer) error {
	fields := []interface{}{XFER_SEGMENT, tsm.Flags, tsm.TransferId}
	for _, field := range fields {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}

	if err := marshalExtensionItems(tsm.Extensions, w); err != nil {
		return err
	}

	if err := binary.Write(w, binary.BigEndian, uint64(len(tsm.Data))); err != nil {
		return err
	}

	if n, err := w.Write(tsm.Data); err != nil {
		return err
	} else if n != len(tsm.Data) {
		return fmt.Errorf("XFER_SEGMENT: wrote %d octets of data instead of %d", n, len(tsm.Data))
	}

	return nil
}

// Unmarshal reads this message's body; the type code is already consumed.
func (tsm *TransferSegmentMessage) Unmarshal(r io.Reader) error {
	fields := []interface{}{&tsm.Flags, &tsm.TransferId}
	for _, field := range fields {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return err
		}
	}

	extensions, err := unmarshalExtensionItems(r)
	if err != nil {
		return err
	}
	tsm.Extensions = extensions

	var dataLen uint64
	if err := binary.Read(r, binary.BigEndian, &dataLen); err != nil {
		return err
	}

	tsm.Data = make([]byte, dataLen)
	if _, err := io.ReadFull(r, tsm.Data); err != nil {
		return err
	}

	return nil
}
