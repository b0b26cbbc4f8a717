// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"encoding/binary"
	"fmt"
	"io"
)

// SessionInitMessage is the SESS_INIT message negotiating session parameters.
type SessionInitMessage struct {
	KeepaliveInterval uint16
	SegmentMru        uint64
	TransferMru       uint64
	NodeId            string
	Extensions        []ExtensionItem
}

// NewSessionInitMessage with the given parameters and no extensions.
func NewSessionInitMessage(keepaliveSeconds uint16, segmentMru, transferMru uint64, nodeId string) *SessionInitMessage {
	return &SessionInitMessage{
		KeepaliveInterval: keepaliveSeconds,
		SegmentMru:        segmentMru,
		TransferMru:       transferMru,
		NodeId:            nodeId,
	}
}

// TypeCode of a SESS_INIT message.
func (si *SessionInitMessage) TypeCode() uint8 {
	return SESS_INIT
}

func (si *SessionInitMessage) String() string {
	return fmt.Sprintf("SESS_INIT(keepalive=%d, segmentMRU=%d, transferMRU=%d, nodeId=%s)",
		si.KeepaliveInterval, si.SegmentMru, si.TransferMru, si.NodeId)
}

// KeepaliveExtension returns the keepalive_interval session extension's value
// if such an extension is present.
func (si *SessionInitMessage) KeepaliveExtension() (seconds uint16, ok bool) {
	for _, item := range si.Extensions {
		if item.Type == SessionExtKeepalive && len(item.Value) == 2 {
			return binary.BigEndian.Uint16(item.Value), true
		}
	}
	return 0, false
}

// Marshal writes this message including its type code.
func (si *SessionInitMessage) Marshal(w io.Writer) error {
	if len(si.NodeId) > 0xffff {
		return fmt.Errorf("SESS_INIT node ID of %d octets is too long", len(si.NodeId))
	}

	fields := []interface{}{
		SESS_INIT,
		si.KeepaliveInterval,
		si.SegmentMru,
		si.TransferMru,
		uint16(len(si.NodeId)),
	}
	for _, field := range fields {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}

	if _, err := io.WriteString(w, si.NodeId); err != nil {
		return err
	}

	return marshalExtensionItems(si.Extensions, w)
}

// Unmarshal reads this message's body; the type code is already consumed.
func (si *SessionInitMessage) Unmarshal(r io.Reader) error {
	var nodeIdLen uint16
	fields := []interface{}{
		&si.KeepaliveInterval,
		&si.SegmentMru,
		&si.TransferMru,
		&nodeIdLen,
	}
	for _, field := range fields {
		if err := binary.Read(r, binary.BigEndian, field); err != nil {
			return err
		}
	}

	nodeId := make([]byte, nodeIdLen)
	if _, err := io.ReadFull(r, nodeId); err != nil {
		return err
	}
	si.NodeId = string(nodeId)

	extensions, err := unmarshalExtensionItems(r)
	if err != nil {
		return err
	}
	si.Extensions = extensions

	return nil
}
