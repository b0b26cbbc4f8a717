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

// AdminRecordTypeStatusReport is the administrative record type code of a status report.
const AdminRecordTypeStatusReport uint64 = 1

// AdministrativeRecord is the payload of a bundle whose control flags set
// AdministrativeRecordPayload, e.g., a StatusReport.
type AdministrativeRecord interface {
	cboring.CborMarshaler

	// RecordTypeCode is the constant administrative record type code.
	RecordTypeCode() uint64
}

// ParseAdministrativeRecord reads the CBOR array of a record type code and
// the record itself.
func ParseAdministrativeRecord(r io.Reader) (AdministrativeRecord, error) {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return nil, err
	} else if n != 2 {
		return nil, fmt.Errorf("AdministrativeRecord: expected array of length 2, got %d", n)
	}

	typeCode, err := cboring.ReadUInt(r)
	if err != nil {
		return nil, err
	}

	switch typeCode {
	case AdminRecordTypeStatusReport:
		sr := &StatusReport{}
		if err := cboring.Unmarshal(sr, r); err != nil {
			return nil, fmt.Errorf("unmarshalling StatusReport failed: %w", err)
		}
		return sr, nil

	default:
		return nil, fmt.Errorf("unknown administrative record type code %d", typeCode)
	}
}

// AdministrativeRecordToCbor serializes an AdministrativeRecord, wrapped in
// the CBOR array with its record type code, into a payload block.
func AdministrativeRecordToCbor(ar AdministrativeRecord) (*PayloadBlock, error) {
	var buff bytes.Buffer

	if err := cboring.WriteArrayLength(2, &buff); err != nil {
		return nil, err
	}
	if err := cboring.WriteUInt(ar.RecordTypeCode(), &buff); err != nil {
		return nil, err
	}
	if err := cboring.Marshal(ar, &buff); err != nil {
		return nil, fmt.Errorf("marshalling AdministrativeRecord failed: %w", err)
	}

	return NewPayloadBlock(buff.Bytes()), nil
}
