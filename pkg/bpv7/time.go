// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"
	"io"
	"time"

	"github.com/dtn7/cboring"
)

// DtnTime is the Bundle Protocol's timestamp: milliseconds since the start of
// the year 2000 (UTC).
type DtnTime uint64

// UnixMillis2k is the offset between the Unix epoch and the DTN epoch in milliseconds.
const UnixMillis2k int64 = 946_684_800_000

// DtnTimeEpoch is the zero timestamp, indicating the lack of an accurate clock.
const DtnTimeEpoch DtnTime = 0

// Time converts to a UTC-based time.Time.
func (t DtnTime) Time() time.Time {
	return time.UnixMilli(int64(t) + UnixMillis2k).UTC()
}

func (t DtnTime) String() string {
	return t.Time().Format("2006-01-02 15:04:05.000")
}

// DtnTimeFromTime converts a time.Time to a DtnTime.
func DtnTimeFromTime(t time.Time) DtnTime {
	return DtnTime(t.UnixMilli() - UnixMillis2k)
}

// DtnTimeNow returns the current time as DtnTime.
func DtnTimeNow() DtnTime {
	return DtnTimeFromTime(time.Now())
}

// CreationTimestamp is the tuple of a DtnTime and a sequence number to tell
// bundles created within the same millisecond from the same node apart.
type CreationTimestamp [2]uint64

// NewCreationTimestamp from a DTN time and a sequence number.
func NewCreationTimestamp(t DtnTime, sequence uint64) CreationTimestamp {
	return CreationTimestamp{uint64(t), sequence}
}

// DtnTime part of this CreationTimestamp.
func (ct CreationTimestamp) DtnTime() DtnTime {
	return DtnTime(ct[0])
}

// SequenceNumber part of this CreationTimestamp.
func (ct CreationTimestamp) SequenceNumber() uint64 {
	return ct[1]
}

// IsZeroTime indicates the absence of an accurate clock at the source.
func (ct CreationTimestamp) IsZeroTime() bool {
	return ct.DtnTime() == DtnTimeEpoch
}

func (ct CreationTimestamp) String() string {
	return fmt.Sprintf("(%v, %d)", ct.DtnTime(), ct.SequenceNumber())
}

// MarshalCbor writes this CreationTimestamp's CBOR representation.
func (ct *CreationTimestamp) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	for _, f := range ct {
		if err := cboring.WriteUInt(f, w); err != nil {
			return err
		}
	}

	return nil
}

// UnmarshalCbor reads a CreationTimestamp.
func (ct *CreationTimestamp) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("CreationTimestamp: expected array of length 2, got %d", n)
	}

	for i := 0; i < 2; i++ {
		if f, err := cboring.ReadUInt(r); err != nil {
			return err
		} else {
			ct[i] = f
		}
	}

	return nil
}
