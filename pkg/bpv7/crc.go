// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/dtn7/cboring"
	"github.com/howeyc/crc16"
)

// CRCType indicates the CRC algorithm attached to a block.
type CRCType uint64

const (
	CRCNo CRCType = 0
	CRC16 CRCType = 1
	CRC32 CRCType = 2
)

func (c CRCType) String() string {
	switch c {
	case CRCNo:
		return "no"
	case CRC16:
		return "16"
	case CRC32:
		return "32"
	default:
		return "unknown"
	}
}

var (
	crc16table = crc16.MakeTable(crc16.CCITT)
	crc32table = crc32.MakeTable(crc32.Castagnoli)
)

// emptyCRC returns the zeroed CRC value for a CRCType.
func emptyCRC(crcType CRCType) []byte {
	switch crcType {
	case CRCNo:
		return nil
	case CRC16:
		return make([]byte, 2)
	case CRC32:
		return make([]byte, 4)
	default:
		panic("unknown CRCType")
	}
}

// calculateCRCBuff computes the CRC over a block's serialized fields in buff.
// The CRC field itself enters the computation zeroed, so the zero value is
// appended to buff first. The result is in network byte order.
func calculateCRCBuff(buff *bytes.Buffer, crcType CRCType) ([]byte, error) {
	data := emptyCRC(crcType)

	if err := cboring.WriteByteString(data, buff); err != nil {
		return nil, err
	}

	switch crcType {
	case CRCNo:

	case CRC16:
		binary.BigEndian.PutUint16(data, crc16.Checksum(buff.Bytes(), crc16table))

	case CRC32:
		binary.BigEndian.PutUint32(data, crc32.Checksum(buff.Bytes(), crc32table))

	default:
		panic("unknown CRCType")
	}

	return data, nil
}
