// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
	"github.com/hashicorp/go-multierror"
)

// CanonicalBlock is every block following the primary block.
type CanonicalBlock struct {
	BlockNumber       uint64
	BlockControlFlags BlockControlFlags
	CRCType           CRCType
	CRC               []byte
	Value             ExtensionBlock
}

// NewCanonicalBlock from a block number, control flags and an ExtensionBlock.
func NewCanonicalBlock(no uint64, bcf BlockControlFlags, value ExtensionBlock) CanonicalBlock {
	return CanonicalBlock{
		BlockNumber:       no,
		BlockControlFlags: bcf,
		CRCType:           CRCNo,
		Value:             value,
	}
}

// TypeCode of the wrapped ExtensionBlock.
func (cb CanonicalBlock) TypeCode() uint64 {
	return cb.Value.BlockTypeCode()
}

// HasCRC checks if a CRC is attached to this block.
func (cb CanonicalBlock) HasCRC() bool {
	return cb.CRCType != CRCNo
}

// SetCRCType for this block.
func (cb *CanonicalBlock) SetCRCType(crcType CRCType) {
	cb.CRCType = crcType
}

// MarshalCbor writes this CanonicalBlock's CBOR representation.
func (cb *CanonicalBlock) MarshalCbor(w io.Writer) error {
	blockLen := uint64(5)
	if cb.HasCRC() {
		blockLen = 6
	}

	crcBuff := new(bytes.Buffer)
	if cb.HasCRC() {
		w = io.MultiWriter(w, crcBuff)
	}

	if err := cboring.WriteArrayLength(blockLen, w); err != nil {
		return err
	}

	fields := []uint64{cb.TypeCode(), cb.BlockNumber, uint64(cb.BlockControlFlags), uint64(cb.CRCType)}
	for _, f := range fields {
		if err := cboring.WriteUInt(f, w); err != nil {
			return err
		}
	}

	if err := writeBlockData(cb.Value, w); err != nil {
		return fmt.Errorf("marshalling block data failed: %w", err)
	}

	if cb.HasCRC() {
		crcVal, crcErr := calculateCRCBuff(crcBuff, cb.CRCType)
		if crcErr != nil {
			return crcErr
		}

		if err := cboring.WriteByteString(crcVal, w); err != nil {
			return err
		}
		cb.CRC = crcVal
	}

	return nil
}

// UnmarshalCbor reads a CanonicalBlock, verifying a present CRC.
func (cb *CanonicalBlock) UnmarshalCbor(r io.Reader) error {
	blockLen, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	} else if blockLen != 5 && blockLen != 6 {
		return fmt.Errorf("CanonicalBlock: expected array of length 5 or 6, got %d", blockLen)
	}

	crcBuff := new(bytes.Buffer)
	if blockLen == 6 {
		if err := cboring.WriteArrayLength(blockLen, crcBuff); err != nil {
			return err
		}
		r = io.TeeReader(r, crcBuff)
	}

	var blockType uint64
	fields := []*uint64{&blockType, &cb.BlockNumber}
	for _, f := range fields {
		if n, err := cboring.ReadUInt(r); err != nil {
			return err
		} else {
			*f = n
		}
	}

	if bcf, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		cb.BlockControlFlags = BlockControlFlags(bcf)
	}

	if crcT, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		cb.CRCType = CRCType(crcT)
	}

	if value, err := readBlockData(blockType, r); err != nil {
		return fmt.Errorf("unmarshalling block data of type %d failed: %w", blockType, err)
	} else {
		cb.Value = value
	}

	if blockLen == 6 {
		crcCalc, crcErr := calculateCRCBuff(crcBuff, cb.CRCType)
		if crcErr != nil {
			return crcErr
		}

		if crcVal, err := cboring.ReadByteString(r); err != nil {
			return err
		} else if !bytes.Equal(crcCalc, crcVal) {
			return fmt.Errorf("CanonicalBlock: invalid CRC %x, expected %x", crcVal, crcCalc)
		} else {
			cb.CRC = crcVal
		}
	}

	return nil
}

// CheckValid returns an error for incorrect data.
func (cb CanonicalBlock) CheckValid() (errs error) {
	if bcfErr := cb.BlockControlFlags.CheckValid(); bcfErr != nil {
		errs = multierror.Append(errs, bcfErr)
	}

	if extErr := cb.Value.CheckValid(); extErr != nil {
		errs = multierror.Append(errs, extErr)
	}

	if cb.TypeCode() == ExtBlockTypePayloadBlock && cb.BlockNumber != 1 {
		errs = multierror.Append(errs,
			fmt.Errorf("CanonicalBlock: Payload Block's number is %d, not 1", cb.BlockNumber))
	}

	return
}

func (cb CanonicalBlock) String() string {
	return fmt.Sprintf("CanonicalBlock(type=%d, no=%d, flags=%v)", cb.TypeCode(), cb.BlockNumber, cb.BlockControlFlags)
}
