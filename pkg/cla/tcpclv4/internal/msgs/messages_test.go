// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"bytes"
	"reflect"
	"testing"
)

func TestContactHeaderRoundTrip(t *testing.T) {
	var buff bytes.Buffer

	out := ContactHeader{Flags: 0}
	if err := out.Marshal(&buff); err != nil {
		t.Fatal(err)
	}

	if buff.Len() != 6 {
		t.Fatalf("contact header is %d octets, not 6", buff.Len())
	}
	if !bytes.Equal(buff.Bytes()[:4], []byte("dtn!")) {
		t.Fatalf("contact header magic is %q", buff.Bytes()[:4])
	}

	var in ContactHeader
	if err := in.Unmarshal(&buff); err != nil {
		t.Fatal(err)
	}
	if in != out {
		t.Fatalf("%v != %v", in, out)
	}
}

func TestContactHeaderWrongMagic(t *testing.T) {
	var in ContactHeader
	if err := in.Unmarshal(bytes.NewReader([]byte("nope!!"))); err == nil {
		t.Fatal("wrong magic was accepted")
	}
}

func TestContactHeaderWrongVersion(t *testing.T) {
	var in ContactHeader
	err := in.Unmarshal(bytes.NewReader([]byte{0x64, 0x74, 0x6e, 0x21, 0x03, 0x00}))

	if _, ok := err.(*WrongVersionError); !ok {
		t.Fatalf("expected a WrongVersionError, got %v", err)
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	messages := []Message{
		NewSessionInitMessage(30, 1048576, 0xffffffff, "dtn://node1/"),
		&SessionInitMessage{
			KeepaliveInterval: 15,
			SegmentMru:        64,
			TransferMru:       128,
			NodeId:            "dtn://node2/",
			Extensions:        []ExtensionItem{NewKeepaliveExtension(15)},
		},
		NewTransferSegmentMessage(23, []byte("hello bundle")),
		NewTransferAckMessage(SegmentStart|SegmentEnd, 23, 12),
		NewTransferRefuseMessage(RefusalNotAcceptable, 23),
		NewKeepaliveMessage(),
		NewSessionTerminationMessage(0, TerminationIdleTimeout),
		NewSessionTerminationMessage(TerminationReply, TerminationIdleTimeout),
		NewMessageRejectionMessage(RejectionTypeUnknown, 0x42),
	}

	for _, out := range messages {
		var buff bytes.Buffer
		if err := out.Marshal(&buff); err != nil {
			t.Fatalf("%v: %v", out, err)
		}

		in, err := ReadMessage(&buff)
		if err != nil {
			t.Fatalf("%v: %v", out, err)
		}

		if !reflect.DeepEqual(in, out) {
			t.Fatalf("%v != %v", in, out)
		}
		if buff.Len() != 0 {
			t.Fatalf("%v: %d octets left in the buffer", out, buff.Len())
		}
	}
}

func TestTransferSegmentCarriesTransferLength(t *testing.T) {
	seg := NewTransferSegmentMessage(1, []byte("0123456789"))

	if !seg.IsComplete() {
		t.Fatal("a fresh segment must carry START and END")
	}

	found := false
	for _, item := range seg.Extensions {
		if item.Type == TransferExtLength && len(item.Value) == 8 {
			found = true
		}
	}
	if !found {
		t.Fatal("transfer-length extension is missing")
	}
}

func TestSessionInitKeepaliveExtension(t *testing.T) {
	si := NewSessionInitMessage(30, 1, 2, "dtn://x/")
	si.Extensions = append(si.Extensions, NewKeepaliveExtension(12))

	if seconds, ok := si.KeepaliveExtension(); !ok || seconds != 12 {
		t.Fatalf("keepalive extension yields (%d, %t)", seconds, ok)
	}
}

func TestReadMessageUnknownType(t *testing.T) {
	if _, err := ReadMessage(bytes.NewReader([]byte{0x99})); err == nil {
		t.Fatal("an unknown type code was accepted")
	}
}
