// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"
	"strings"
)

// BlockControlFlags are the block processing control flags of a canonical block.
type BlockControlFlags uint64

const (
	// ReplicateBlock requests replication of this block in every fragment.
	ReplicateBlock BlockControlFlags = 0x01

	// StatusReportBlock requests a status report if this block cannot be processed.
	StatusReportBlock BlockControlFlags = 0x02

	// DeleteBundle requests a bundle deletion if this block cannot be processed.
	DeleteBundle BlockControlFlags = 0x04

	// RemoveBlock requests the removal of this block if it cannot be processed.
	RemoveBlock BlockControlFlags = 0x10

	blckCFReservedFields BlockControlFlags = ^(ReplicateBlock | StatusReportBlock | DeleteBundle | RemoveBlock)
)

// Has returns true if a given flag or mask of flags is set.
func (bcf BlockControlFlags) Has(flag BlockControlFlags) bool {
	return bcf&flag != 0
}

// CheckValid returns an error for incorrect data.
func (bcf BlockControlFlags) CheckValid() error {
	if bcf.Has(blckCFReservedFields) {
		return fmt.Errorf("block control flags %#x use reserved bits", uint64(bcf))
	}
	return nil
}

func (bcf BlockControlFlags) String() string {
	names := []struct {
		flag BlockControlFlags
		name string
	}{
		{ReplicateBlock, "REPLICATE"},
		{StatusReportBlock, "STATUS_REPORT"},
		{DeleteBundle, "DELETE_BUNDLE"},
		{RemoveBlock, "REMOVE_BLOCK"},
	}

	var flags []string
	for _, n := range names {
		if bcf.Has(n.flag) {
			flags = append(flags, n.name)
		}
	}

	return strings.Join(flags, ",")
}
