// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// Block type codes of the extension blocks known to this implementation.
const (
	// ExtBlockTypePayloadBlock is the block type code of the Payload Block.
	ExtBlockTypePayloadBlock uint64 = 1

	// ExtBlockTypePreviousNodeBlock is the block type code of the Previous Node Block.
	ExtBlockTypePreviousNodeBlock uint64 = 6

	// ExtBlockTypeBundleAgeBlock is the block type code of the Bundle Age Block.
	ExtBlockTypeBundleAgeBlock uint64 = 7

	// ExtBlockTypeHopCountBlock is the block type code of the Hop Count Block.
	ExtBlockTypeHopCountBlock uint64 = 10
)

// ExtensionBlock is the block-type-specific data of a CanonicalBlock.
type ExtensionBlock interface {
	// BlockTypeCode is the constant block type code.
	BlockTypeCode() uint64

	// MarshalBlockData writes the block-type-specific data, without the
	// surrounding CBOR byte string.
	MarshalBlockData(w io.Writer) error

	// UnmarshalBlockData reads the block-type-specific data of the given length.
	UnmarshalBlockData(r io.Reader, length uint64) error

	// CheckValid returns an error for incorrect data.
	CheckValid() error
}

// newExtensionBlock creates an empty ExtensionBlock for a block type code.
// Unknown types are represented by a GenericExtensionBlock so that foreign
// blocks survive a decode/encode round trip untouched.
func newExtensionBlock(typeCode uint64) ExtensionBlock {
	switch typeCode {
	case ExtBlockTypePayloadBlock:
		return &PayloadBlock{}
	case ExtBlockTypePreviousNodeBlock:
		return &PreviousNodeBlock{}
	case ExtBlockTypeBundleAgeBlock:
		return &BundleAgeBlock{}
	case ExtBlockTypeHopCountBlock:
		return &HopCountBlock{}
	default:
		return &GenericExtensionBlock{typeCode: typeCode}
	}
}

// IsKnownBlockType checks if this implementation processes blocks of the given
// type code itself. Unknown blocks are subject to the block processing control
// flags' failure actions.
func IsKnownBlockType(typeCode uint64) bool {
	switch typeCode {
	case ExtBlockTypePayloadBlock, ExtBlockTypePreviousNodeBlock,
		ExtBlockTypeBundleAgeBlock, ExtBlockTypeHopCountBlock:
		return true
	default:
		return false
	}
}

// writeBlockData wraps an ExtensionBlock's data in a CBOR byte string.
func writeBlockData(eb ExtensionBlock, w io.Writer) error {
	var buff bytes.Buffer
	if err := eb.MarshalBlockData(&buff); err != nil {
		return err
	}

	return cboring.WriteByteString(buff.Bytes(), w)
}

// readBlockData unwraps the CBOR byte string and populates an ExtensionBlock.
func readBlockData(typeCode uint64, r io.Reader) (ExtensionBlock, error) {
	m, n, err := cboring.ReadMajors(r)
	if err != nil {
		return nil, err
	} else if m != cboring.ByteString {
		return nil, fmt.Errorf("block data: expected byte string, got major type %d", m)
	}

	eb := newExtensionBlock(typeCode)

	lr := io.LimitReader(r, int64(n))
	if err := eb.UnmarshalBlockData(lr, n); err != nil {
		return nil, err
	}

	// Skip unread trailing bytes so the block framing stays in sync.
	if _, err := io.Copy(io.Discard, lr); err != nil {
		return nil, err
	}

	return eb, nil
}
