// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// HopCountBlock bounds the number of hops a bundle may take.
type HopCountBlock struct {
	Limit uint64
	Count uint64
}

// NewHopCountBlock with a hop limit and a zeroed count.
func NewHopCountBlock(limit uint64) *HopCountBlock {
	return &HopCountBlock{Limit: limit}
}

// BlockTypeCode is 10 for a Hop Count Block.
func (hcb *HopCountBlock) BlockTypeCode() uint64 {
	return ExtBlockTypeHopCountBlock
}

// IsExceeded checks the hop count against the hop limit.
func (hcb *HopCountBlock) IsExceeded() bool {
	return hcb.Count > hcb.Limit
}

// Increment the hop count and report if the limit is now exceeded.
func (hcb *HopCountBlock) Increment() bool {
	hcb.Count++
	return hcb.IsExceeded()
}

// MarshalBlockData writes the (limit, count) array.
func (hcb *HopCountBlock) MarshalBlockData(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	for _, f := range []uint64{hcb.Limit, hcb.Count} {
		if err := cboring.WriteUInt(f, w); err != nil {
			return err
		}
	}

	return nil
}

// UnmarshalBlockData reads the (limit, count) array.
func (hcb *HopCountBlock) UnmarshalBlockData(r io.Reader, _ uint64) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("HopCountBlock: expected array of length 2, got %d", n)
	}

	for _, f := range []*uint64{&hcb.Limit, &hcb.Count} {
		if n, err := cboring.ReadUInt(r); err != nil {
			return err
		} else {
			*f = n
		}
	}

	return nil
}

// CheckValid returns an error for incorrect data.
func (hcb *HopCountBlock) CheckValid() error {
	return nil
}
