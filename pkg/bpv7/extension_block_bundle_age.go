// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"io"

	"github.com/dtn7/cboring"
)

// BundleAgeBlock tracks a bundle's age in milliseconds for nodes without an
// accurate clock.
type BundleAgeBlock struct {
	AgeMillis uint64
}

// NewBundleAgeBlock for an age in milliseconds.
func NewBundleAgeBlock(millis uint64) *BundleAgeBlock {
	return &BundleAgeBlock{AgeMillis: millis}
}

// BlockTypeCode is 7 for a Bundle Age Block.
func (bab *BundleAgeBlock) BlockTypeCode() uint64 {
	return ExtBlockTypeBundleAgeBlock
}

// Increment the age by an offset in milliseconds, returning the new age.
func (bab *BundleAgeBlock) Increment(offsetMillis uint64) uint64 {
	bab.AgeMillis += offsetMillis
	return bab.AgeMillis
}

// MarshalBlockData writes the age.
func (bab *BundleAgeBlock) MarshalBlockData(w io.Writer) error {
	return cboring.WriteUInt(bab.AgeMillis, w)
}

// UnmarshalBlockData reads the age.
func (bab *BundleAgeBlock) UnmarshalBlockData(r io.Reader, _ uint64) error {
	age, err := cboring.ReadUInt(r)
	if err == nil {
		bab.AgeMillis = age
	}
	return err
}

// CheckValid returns an error for incorrect data.
func (bab *BundleAgeBlock) CheckValid() error {
	return nil
}
