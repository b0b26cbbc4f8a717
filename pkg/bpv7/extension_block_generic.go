// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"io"
)

// GenericExtensionBlock keeps the raw data of a block type unknown to this
// implementation, so it can be carried and re-serialized unchanged.
type GenericExtensionBlock struct {
	typeCode uint64
	data     []byte
}

// NewGenericExtensionBlock for a block type code and its raw data.
func NewGenericExtensionBlock(typeCode uint64, data []byte) *GenericExtensionBlock {
	return &GenericExtensionBlock{typeCode: typeCode, data: data}
}

// BlockTypeCode of the wrapped, unknown block.
func (geb *GenericExtensionBlock) BlockTypeCode() uint64 {
	return geb.typeCode
}

// Data returns the raw block-type-specific data.
func (geb *GenericExtensionBlock) Data() []byte {
	return geb.data
}

// MarshalBlockData writes the raw data.
func (geb *GenericExtensionBlock) MarshalBlockData(w io.Writer) error {
	_, err := w.Write(geb.data)
	return err
}

// UnmarshalBlockData reads the raw data.
func (geb *GenericExtensionBlock) UnmarshalBlockData(r io.Reader, length uint64) error {
	geb.data = make([]byte, length)
	_, err := io.ReadFull(r, geb.data)
	return err
}

// CheckValid returns an error for incorrect data.
func (geb *GenericExtensionBlock) CheckValid() error {
	return nil
}
