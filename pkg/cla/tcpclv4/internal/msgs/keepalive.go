// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"encoding/binary"
	"io"
)

// KeepaliveMessage is the empty KEEPALIVE message.
type KeepaliveMessage struct{}

// NewKeepaliveMessage creates a KEEPALIVE message.
func NewKeepaliveMessage() *KeepaliveMessage {
	return &KeepaliveMessage{}
}

// TypeCode of a KEEPALIVE message.
func (km *KeepaliveMessage) TypeCode() uint8 {
	return KEEPALIVE
}

func (km *KeepaliveMessage) String() string {
	return "KEEPALIVE"
}

// Marshal writes the type code; a KEEPALIVE has no body.
func (km *KeepaliveMessage) Marshal(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, KEEPALIVE)
}

// Unmarshal is a no-op; a KEEPALIVE has no body.
func (km *KeepaliveMessage) Unmarshal(_ io.Reader) error {
	return nil
}
