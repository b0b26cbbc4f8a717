// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dtn7/cboring"
	"github.com/hashicorp/go-multierror"
)

// Bundle is a BPv7 bundle: one primary block followed by canonical blocks,
// the last of which is the payload block.
type Bundle struct {
	PrimaryBlock    PrimaryBlock
	CanonicalBlocks []CanonicalBlock
}

// NewBundle from a primary block and canonical blocks, with a validity check.
func NewBundle(primary PrimaryBlock, canonicals []CanonicalBlock) (b Bundle, err error) {
	b = Bundle{
		PrimaryBlock:    primary,
		CanonicalBlocks: canonicals,
	}
	b.sortBlocks()

	err = b.CheckValid()
	return
}

// ParseBundle reads a CBOR encoded Bundle from a Reader.
func ParseBundle(r io.Reader) (b Bundle, err error) {
	err = cboring.Unmarshal(&b, r)
	return
}

// ParseBundleBytes reads a CBOR encoded Bundle from a byte string.
func ParseBundleBytes(data []byte) (Bundle, error) {
	return ParseBundle(bytes.NewReader(data))
}

// WriteBundle writes this Bundle CBOR encoded to a Writer.
func (b *Bundle) WriteBundle(w io.Writer) error {
	return cboring.Marshal(b, w)
}

// WriteBundleBytes serializes this Bundle to a byte string.
func (b *Bundle) WriteBundleBytes() ([]byte, error) {
	var buff bytes.Buffer
	if err := b.WriteBundle(&buff); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

// ID of this Bundle.
func (b Bundle) ID() BundleID {
	return BundleID{
		SourceNode: b.PrimaryBlock.SourceNode,
		Timestamp:  b.PrimaryBlock.CreationTimestamp,
	}
}

func (b Bundle) String() string {
	return b.ID().String()
}

// sortBlocks moves the payload block to the end, keeping the relative order
// of the extension blocks.
func (b *Bundle) sortBlocks() {
	sort.SliceStable(b.CanonicalBlocks, func(i, j int) bool {
		return b.CanonicalBlocks[i].TypeCode() != ExtBlockTypePayloadBlock &&
			b.CanonicalBlocks[j].TypeCode() == ExtBlockTypePayloadBlock
	})
}

// ExtensionBlock returns the single CanonicalBlock for a block type code, or
// an error if there is none or more than one.
func (b *Bundle) ExtensionBlock(blockType uint64) (*CanonicalBlock, error) {
	var found *CanonicalBlock

	for i := range b.CanonicalBlocks {
		if b.CanonicalBlocks[i].TypeCode() == blockType {
			if found != nil {
				return nil, fmt.Errorf("multiple blocks of type %d in bundle", blockType)
			}
			found = &b.CanonicalBlocks[i]
		}
	}

	if found == nil {
		return nil, fmt.Errorf("no block of type %d in bundle", blockType)
	}
	return found, nil
}

// HasExtensionBlock checks the presence of a block type code.
func (b *Bundle) HasExtensionBlock(blockType uint64) bool {
	_, err := b.ExtensionBlock(blockType)
	return err == nil
}

// PayloadBlock of this Bundle.
func (b *Bundle) PayloadBlock() (*CanonicalBlock, error) {
	return b.ExtensionBlock(ExtBlockTypePayloadBlock)
}

// PayloadData is a shortcut to the payload block's application data.
func (b *Bundle) PayloadData() ([]byte, error) {
	pb, err := b.PayloadBlock()
	if err != nil {
		return nil, err
	}
	return pb.Value.(*PayloadBlock).Data(), nil
}

// AddExtensionBlock attaches a new block; its block number is assigned to the
// smallest free number greater than one, or starting at one for a payload
// block.
func (b *Bundle) AddExtensionBlock(block CanonicalBlock) {
	taken := map[uint64]bool{}
	for _, cb := range b.CanonicalBlocks {
		taken[cb.BlockNumber] = true
	}

	no := uint64(1)
	if block.Value.BlockTypeCode() != ExtBlockTypePayloadBlock {
		no = 2
	}
	for taken[no] {
		no++
	}

	block.BlockNumber = no
	b.CanonicalBlocks = append(b.CanonicalBlocks, block)
	b.sortBlocks()
}

// RemoveExtensionBlockByBlockNumber drops a block; a missing number is a no-op.
func (b *Bundle) RemoveExtensionBlockByBlockNumber(blockNumber uint64) {
	for i := range b.CanonicalBlocks {
		if b.CanonicalBlocks[i].BlockNumber == blockNumber {
			b.CanonicalBlocks = append(b.CanonicalBlocks[:i], b.CanonicalBlocks[i+1:]...)
			return
		}
	}
}

// SetCRCType for all blocks of this Bundle.
func (b *Bundle) SetCRCType(crcType CRCType) {
	b.PrimaryBlock.SetCRCType(crcType)
	for i := range b.CanonicalBlocks {
		b.CanonicalBlocks[i].SetCRCType(crcType)
	}
}

// ExpiresAt is the absolute point in time at which this Bundle's lifetime
// ends: the creation timestamp plus the lifetime in seconds. The Bundle Age
// Block is not consulted; for a zeroed creation time the result lies at the
// DTN epoch plus the lifetime.
func (b Bundle) ExpiresAt() time.Time {
	return b.PrimaryBlock.CreationTimestamp.DtnTime().Time().
		Add(time.Duration(b.PrimaryBlock.Lifetime) * time.Second)
}

// IsLifetimeExceeded at the given point in time.
func (b Bundle) IsLifetimeExceeded(now time.Time) bool {
	if b.PrimaryBlock.CreationTimestamp.IsZeroTime() {
		bab, err := b.ExtensionBlock(ExtBlockTypeBundleAgeBlock)
		if err != nil {
			return true
		}
		return bab.Value.(*BundleAgeBlock).AgeMillis > b.PrimaryBlock.Lifetime*1000
	}

	return now.After(b.ExpiresAt())
}

// IsAdministrativeRecord checks the control flags for an administrative record payload.
func (b Bundle) IsAdministrativeRecord() bool {
	return b.PrimaryBlock.BundleControlFlags.Has(AdministrativeRecordPayload)
}

// AdministrativeRecord decodes the payload as an administrative record.
func (b Bundle) AdministrativeRecord() (AdministrativeRecord, error) {
	if !b.IsAdministrativeRecord() {
		return nil, fmt.Errorf("bundle %v is not an administrative record", b.ID())
	}

	payload, err := b.PayloadData()
	if err != nil {
		return nil, err
	}

	return ParseAdministrativeRecord(bytes.NewReader(payload))
}

// CheckValid returns an error for incorrect data.
func (b Bundle) CheckValid() (errs error) {
	if pbErr := b.PrimaryBlock.CheckValid(); pbErr != nil {
		errs = multierror.Append(errs, pbErr)
	}

	if len(b.CanonicalBlocks) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("bundle contains no canonical blocks"))
		return
	}

	blockNumbers := map[uint64]bool{}
	for _, cb := range b.CanonicalBlocks {
		if cbErr := cb.CheckValid(); cbErr != nil {
			errs = multierror.Append(errs, cbErr)
		}

		if blockNumbers[cb.BlockNumber] {
			errs = multierror.Append(errs,
				fmt.Errorf("block number %d occurs multiple times", cb.BlockNumber))
		}
		blockNumbers[cb.BlockNumber] = true
	}

	if last := b.CanonicalBlocks[len(b.CanonicalBlocks)-1].TypeCode(); last != ExtBlockTypePayloadBlock {
		errs = multierror.Append(errs,
			fmt.Errorf("last canonical block is of type %d, not a payload block", last))
	}

	if b.PrimaryBlock.CreationTimestamp.IsZeroTime() && !b.HasExtensionBlock(ExtBlockTypeBundleAgeBlock) {
		errs = multierror.Append(errs,
			fmt.Errorf("creation timestamp is zero, but no Bundle Age Block exists"))
	}

	return
}

// MarshalCbor writes this Bundle's CBOR representation: an indefinite-length
// array of its blocks.
func (b *Bundle) MarshalCbor(w io.Writer) error {
	if _, err := w.Write([]byte{cboring.IndefiniteArray}); err != nil {
		return err
	}

	if err := cboring.Marshal(&b.PrimaryBlock, w); err != nil {
		return fmt.Errorf("marshalling PrimaryBlock failed: %w", err)
	}

	for i := range b.CanonicalBlocks {
		if err := cboring.Marshal(&b.CanonicalBlocks[i], w); err != nil {
			return fmt.Errorf("marshalling CanonicalBlock failed: %w", err)
		}
	}

	if _, err := w.Write([]byte{cboring.BreakCode}); err != nil {
		return err
	}

	return nil
}

// UnmarshalCbor reads a Bundle and checks its validity.
func (b *Bundle) UnmarshalCbor(r io.Reader) error {
	if err := cboring.ReadExpect(cboring.IndefiniteArray, r); err != nil {
		return err
	}

	if err := cboring.Unmarshal(&b.PrimaryBlock, r); err != nil {
		return fmt.Errorf("unmarshalling PrimaryBlock failed: %w", err)
	}

	for {
		cb := CanonicalBlock{}
		if err := cboring.Unmarshal(&cb, r); err == cboring.FlagBreakCode {
			break
		} else if err != nil {
			return fmt.Errorf("unmarshalling CanonicalBlock failed: %w", err)
		}
		b.CanonicalBlocks = append(b.CanonicalBlocks, cb)
	}

	return b.CheckValid()
}
