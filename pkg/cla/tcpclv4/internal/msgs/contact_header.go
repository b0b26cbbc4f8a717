// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"bytes"
	"fmt"
	"io"
)

// ContactFlags is the one-octet flag field of the ContactHeader.
type ContactFlags uint8

// ContactCanTls indicates TLS capability; this implementation never sets it.
const ContactCanTls ContactFlags = 0x01

// contactHeaderHead is the magic "dtn!" followed by the version octet 4.
var contactHeaderHead = []byte{0x64, 0x74, 0x6e, 0x21, 0x04}

// ContactHeader is the six-octet preamble both peers exchange directly after
// the TCP connection was established.
type ContactHeader struct {
	Flags ContactFlags
}

func (ch ContactHeader) String() string {
	return fmt.Sprintf("ContactHeader(version=4, flags=%#02x)", uint8(ch.Flags))
}

// Marshal writes the full six octets.
func (ch ContactHeader) Marshal(w io.Writer) error {
	data := append(append([]byte{}, contactHeaderHead...), byte(ch.Flags))

	if n, err := w.Write(data); err != nil {
		return err
	} else if n != len(data) {
		return fmt.Errorf("contact header: wrote %d octets instead of %d", n, len(data))
	}
	return nil
}

// Unmarshal reads and verifies six octets. The two error cases, wrong magic
// and wrong version, are told apart for the caller's error reporting.
func (ch *ContactHeader) Unmarshal(r io.Reader) error {
	data := make([]byte, 6)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}

	if !bytes.Equal(data[:4], contactHeaderHead[:4]) {
		return fmt.Errorf("contact header magic is %x, not 'dtn!'", data[:4])
	}
	if data[4] != contactHeaderHead[4] {
		return &WrongVersionError{Version: data[4]}
	}

	ch.Flags = ContactFlags(data[5])
	return nil
}

// WrongVersionError reports a contact header carrying an unsupported version.
type WrongVersionError struct {
	Version uint8
}

func (e *WrongVersionError) Error() string {
	return fmt.Sprintf("contact header version is %d, not 4", e.Version)
}
