// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// BundleID names a bundle by its source node and creation timestamp. Its
// String form "<source>-<creationMillis>-<sequence>" is the canonical bundle
// identifier used by the store, the routing agents and the management API.
type BundleID struct {
	SourceNode EndpointID
	Timestamp  CreationTimestamp
}

func (bid BundleID) String() string {
	return fmt.Sprintf("%v-%d-%d", bid.SourceNode, bid.Timestamp[0], bid.Timestamp[1])
}

// MarshalCbor writes this BundleID's fields in series.
func (bid *BundleID) MarshalCbor(w io.Writer) error {
	if err := cboring.Marshal(&bid.SourceNode, w); err != nil {
		return fmt.Errorf("marshalling source node failed: %w", err)
	}

	if err := cboring.Marshal(&bid.Timestamp, w); err != nil {
		return fmt.Errorf("marshalling timestamp failed: %w", err)
	}

	return nil
}

// UnmarshalCbor reads a BundleID.
func (bid *BundleID) UnmarshalCbor(r io.Reader) error {
	if err := cboring.Unmarshal(&bid.SourceNode, r); err != nil {
		return fmt.Errorf("unmarshalling source node failed: %w", err)
	}

	if err := cboring.Unmarshal(&bid.Timestamp, r); err != nil {
		return fmt.Errorf("unmarshalling timestamp failed: %w", err)
	}

	return nil
}
