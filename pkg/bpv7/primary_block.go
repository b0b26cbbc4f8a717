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

const dtnVersion uint64 = 7

// PrimaryBlock is the first block of each bundle.
//
// The Lifetime field deviates from RFC 9171 on purpose: it counts seconds, not
// milliseconds. The management API converts on ingest.
type PrimaryBlock struct {
	Version            uint64
	BundleControlFlags BundleControlFlags
	CRCType            CRCType
	Destination        EndpointID
	SourceNode         EndpointID
	ReportTo           EndpointID
	CreationTimestamp  CreationTimestamp
	Lifetime           uint64
	FragmentOffset     uint64
	TotalDataLength    uint64
	CRC                []byte
}

// NewPrimaryBlock with the given fields; ReportTo defaults to the source and
// the CRC type to CRC32.
func NewPrimaryBlock(flags BundleControlFlags, destination, source EndpointID, timestamp CreationTimestamp, lifetimeSeconds uint64) PrimaryBlock {
	return PrimaryBlock{
		Version:            dtnVersion,
		BundleControlFlags: flags,
		CRCType:            CRC32,
		Destination:        destination,
		SourceNode:         source,
		ReportTo:           source,
		CreationTimestamp:  timestamp,
		Lifetime:           lifetimeSeconds,
	}
}

// HasFragmentation checks the control flags for the fragment bit.
func (pb PrimaryBlock) HasFragmentation() bool {
	return pb.BundleControlFlags.Has(IsFragment)
}

// HasCRC checks if a CRC is attached to this block.
func (pb PrimaryBlock) HasCRC() bool {
	return pb.CRCType != CRCNo
}

// SetCRCType for this block. A primary block always carries a CRC, so CRCNo
// is promoted to CRC32.
func (pb *PrimaryBlock) SetCRCType(crcType CRCType) {
	if crcType == CRCNo {
		crcType = CRC32
	}
	pb.CRCType = crcType
}

// MarshalCbor writes this PrimaryBlock's CBOR representation.
func (pb *PrimaryBlock) MarshalCbor(w io.Writer) error {
	blockLen := uint64(8)
	if pb.HasFragmentation() {
		blockLen += 2
	}
	if pb.HasCRC() {
		blockLen += 1
	}

	crcBuff := new(bytes.Buffer)
	if pb.HasCRC() {
		w = io.MultiWriter(w, crcBuff)
	}

	if err := cboring.WriteArrayLength(blockLen, w); err != nil {
		return err
	}

	for _, f := range []uint64{dtnVersion, uint64(pb.BundleControlFlags), uint64(pb.CRCType)} {
		if err := cboring.WriteUInt(f, w); err != nil {
			return err
		}
	}

	for _, eid := range []*EndpointID{&pb.Destination, &pb.SourceNode, &pb.ReportTo} {
		if err := cboring.Marshal(eid, w); err != nil {
			return fmt.Errorf("marshalling EndpointID failed: %w", err)
		}
	}

	if err := cboring.Marshal(&pb.CreationTimestamp, w); err != nil {
		return fmt.Errorf("marshalling CreationTimestamp failed: %w", err)
	}

	if err := cboring.WriteUInt(pb.Lifetime, w); err != nil {
		return err
	}

	if pb.HasFragmentation() {
		for _, f := range []uint64{pb.FragmentOffset, pb.TotalDataLength} {
			if err := cboring.WriteUInt(f, w); err != nil {
				return err
			}
		}
	}

	if pb.HasCRC() {
		crcVal, crcErr := calculateCRCBuff(crcBuff, pb.CRCType)
		if crcErr != nil {
			return crcErr
		}

		if err := cboring.WriteByteString(crcVal, w); err != nil {
			return err
		}
		pb.CRC = crcVal
	}

	return nil
}

// UnmarshalCbor reads a PrimaryBlock, verifying a present CRC.
func (pb *PrimaryBlock) UnmarshalCbor(r io.Reader) error {
	crcBuff := new(bytes.Buffer)
	r = io.TeeReader(r, crcBuff)

	blockLen, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	} else if blockLen < 8 || blockLen > 11 {
		return fmt.Errorf("PrimaryBlock: expected array of length 8 to 11, got %d", blockLen)
	}

	if version, err := cboring.ReadUInt(r); err != nil {
		return err
	} else if version != dtnVersion {
		return fmt.Errorf("PrimaryBlock: expected version %d, got %d", dtnVersion, version)
	} else {
		pb.Version = version
	}

	if bcf, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		pb.BundleControlFlags = BundleControlFlags(bcf)
	}

	if crcT, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		pb.CRCType = CRCType(crcT)
	}

	for _, eid := range []*EndpointID{&pb.Destination, &pb.SourceNode, &pb.ReportTo} {
		if err := cboring.Unmarshal(eid, r); err != nil {
			return fmt.Errorf("unmarshalling EndpointID failed: %w", err)
		}
	}

	if err := cboring.Unmarshal(&pb.CreationTimestamp, r); err != nil {
		return fmt.Errorf("unmarshalling CreationTimestamp failed: %w", err)
	}

	if lt, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		pb.Lifetime = lt
	}

	if pb.HasFragmentation() {
		for _, f := range []*uint64{&pb.FragmentOffset, &pb.TotalDataLength} {
			if n, err := cboring.ReadUInt(r); err != nil {
				return err
			} else {
				*f = n
			}
		}
	}

	if pb.HasCRC() {
		crcCalc, crcErr := calculateCRCBuff(crcBuff, pb.CRCType)
		if crcErr != nil {
			return crcErr
		}

		if crcVal, err := cboring.ReadByteString(r); err != nil {
			return err
		} else if !bytes.Equal(crcCalc, crcVal) {
			return fmt.Errorf("PrimaryBlock: invalid CRC %x, expected %x", crcVal, crcCalc)
		} else {
			pb.CRC = crcVal
		}
	}

	return nil
}

// CheckValid returns an error for incorrect data.
func (pb PrimaryBlock) CheckValid() (errs error) {
	if pb.Version != dtnVersion {
		errs = multierror.Append(errs, fmt.Errorf("PrimaryBlock: wrong version %d", pb.Version))
	}

	if bcfErr := pb.BundleControlFlags.CheckValid(); bcfErr != nil {
		errs = multierror.Append(errs, bcfErr)
	}

	for _, eid := range []EndpointID{pb.Destination, pb.SourceNode, pb.ReportTo} {
		if eid.EndpointType == nil {
			errs = multierror.Append(errs, errNoEndpoint)
		} else if eidErr := eid.CheckValid(); eidErr != nil {
			errs = multierror.Append(errs, eidErr)
		}
	}

	return
}

func (pb PrimaryBlock) String() string {
	return fmt.Sprintf("PrimaryBlock(%v -> %v, %v)", pb.SourceNode, pb.Destination, pb.CreationTimestamp)
}
