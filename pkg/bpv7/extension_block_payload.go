// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"io"
)

// PayloadBlock carries a bundle's application data.
type PayloadBlock struct {
	data []byte
}

// NewPayloadBlock for the given application data.
func NewPayloadBlock(data []byte) *PayloadBlock {
	return &PayloadBlock{data: data}
}

// BlockTypeCode is 1 for a Payload Block.
func (pb *PayloadBlock) BlockTypeCode() uint64 {
	return ExtBlockTypePayloadBlock
}

// Data returns the application data.
func (pb *PayloadBlock) Data() []byte {
	return pb.data
}

// MarshalBlockData writes the raw payload.
func (pb *PayloadBlock) MarshalBlockData(w io.Writer) error {
	_, err := w.Write(pb.data)
	return err
}

// UnmarshalBlockData reads the raw payload.
func (pb *PayloadBlock) UnmarshalBlockData(r io.Reader, length uint64) error {
	pb.data = make([]byte, length)
	_, err := io.ReadFull(r, pb.data)
	return err
}

// CheckValid returns an error for incorrect data.
func (pb *PayloadBlock) CheckValid() error {
	return nil
}
