// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Extension item type codes known to this implementation.
const (
	// SessionExtKeepalive is the keepalive_interval session extension.
	SessionExtKeepalive uint16 = 0x0001

	// TransferExtLength is the transfer-length transfer extension.
	TransferExtLength uint16 = 0x0001
)

// ExtensionItem is one session or transfer extension item: a flag octet, a
// type code, and a length-prefixed value. Unknown items are carried verbatim
// and ignored.
type ExtensionItem struct {
	Flags uint8
	Type  uint16
	Value []byte
}

// NewTransferLengthExtension for a total transfer length in octets.
func NewTransferLengthExtension(total uint64) ExtensionItem {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, total)

	return ExtensionItem{Type: TransferExtLength, Value: value}
}

// NewKeepaliveExtension for a keepalive interval in seconds.
func NewKeepaliveExtension(seconds uint16) ExtensionItem {
	value := make([]byte, 2)
	binary.BigEndian.PutUint16(value, seconds)

	return ExtensionItem{Type: SessionExtKeepalive, Value: value}
}

func (item ExtensionItem) String() string {
	return fmt.Sprintf("ExtensionItem(type=%#04x, %d octets)", item.Type, len(item.Value))
}

// marshalExtensionItems serializes items into the length-prefixed extension
// block: a u32 total length followed by the items.
func marshalExtensionItems(items []ExtensionItem, w io.Writer) error {
	var block bytes.Buffer
	for _, item := range items {
		if len(item.Value) > 0xffff {
			return fmt.Errorf("extension item value of %d octets is too long", len(item.Value))
		}

		_ = block.WriteByte(item.Flags)
		_ = binary.Write(&block, binary.BigEndian, item.Type)
		_ = binary.Write(&block, binary.BigEndian, uint16(len(item.Value)))
		_, _ = block.Write(item.Value)
	}

	if err := binary.Write(w, binary.BigEndian, uint32(block.Len())); err != nil {
		return err
	}
	_, err := w.Write(block.Bytes())
	return err
}

// unmarshalExtensionItems reads the length-prefixed extension block.
func unmarshalExtensionItems(r io.Reader) (items []ExtensionItem, err error) {
	var blockLen uint32
	if err = binary.Read(r, binary.BigEndian, &blockLen); err != nil {
		return
	}

	block := make([]byte, blockLen)
	if _, err = io.ReadFull(r, block); err != nil {
		return
	}

	buff := bytes.NewReader(block)
	for buff.Len() > 0 {
		var item ExtensionItem
		var valueLen uint16

		if item.Flags, err = buff.ReadByte(); err != nil {
			return
		}
		if err = binary.Read(buff, binary.BigEndian, &item.Type); err != nil {
			return
		}
		if err = binary.Read(buff, binary.BigEndian, &valueLen); err != nil {
			return
		}

		item.Value = make([]byte, valueLen)
		if _, err = io.ReadFull(buff, item.Value); err != nil {
			return
		}

		items = append(items, item)
	}

	return
}
