// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"
	"strings"
)

// BundleControlFlags are the bundle processing control flags of the primary block.
type BundleControlFlags uint64

const (
	// IsFragment marks a fragmented bundle.
	IsFragment BundleControlFlags = 0x000001

	// AdministrativeRecordPayload marks a payload which is an administrative record.
	AdministrativeRecordPayload BundleControlFlags = 0x000002

	// MustNotFragmented forbids fragmentation of this bundle.
	MustNotFragmented BundleControlFlags = 0x000004

	// RequestUserApplicationAck requests an acknowledgment by the application.
	RequestUserApplicationAck BundleControlFlags = 0x000020

	// RequestStatusTime requests a time in each status report.
	RequestStatusTime BundleControlFlags = 0x000040

	// StatusRequestReception requests a bundle reception status report.
	StatusRequestReception BundleControlFlags = 0x004000

	// StatusRequestForward requests a bundle forwarding status report.
	StatusRequestForward BundleControlFlags = 0x010000

	// StatusRequestDelivery requests a bundle delivery status report.
	StatusRequestDelivery BundleControlFlags = 0x020000

	// StatusRequestDeletion requests a bundle deletion status report.
	StatusRequestDeletion BundleControlFlags = 0x040000

	bndlCFReservedFields BundleControlFlags = ^(IsFragment |
		AdministrativeRecordPayload | MustNotFragmented |
		RequestUserApplicationAck | RequestStatusTime |
		StatusRequestReception | StatusRequestForward |
		StatusRequestDelivery | StatusRequestDeletion)
)

// Has returns true if a given flag or mask of flags is set.
func (bcf BundleControlFlags) Has(flag BundleControlFlags) bool {
	return bcf&flag != 0
}

// CheckValid returns an error for incorrect data.
func (bcf BundleControlFlags) CheckValid() error {
	if bcf.Has(bndlCFReservedFields) {
		return fmt.Errorf("bundle control flags %#x use reserved bits", uint64(bcf))
	}

	if bcf.Has(IsFragment) && bcf.Has(MustNotFragmented) {
		return fmt.Errorf("bundle control flags mark a fragment which must not be fragmented")
	}

	if bcf.Has(AdministrativeRecordPayload) &&
		bcf.Has(StatusRequestReception|StatusRequestForward|StatusRequestDelivery|StatusRequestDeletion) {
		return fmt.Errorf("administrative record payload excludes status report requests")
	}

	return nil
}

func (bcf BundleControlFlags) String() string {
	names := []struct {
		flag BundleControlFlags
		name string
	}{
		{IsFragment, "IS_FRAGMENT"},
		{AdministrativeRecordPayload, "ADMINISTRATIVE_PAYLOAD"},
		{MustNotFragmented, "MUST_NOT_FRAGMENT"},
		{RequestUserApplicationAck, "REQUEST_USER_ACK"},
		{RequestStatusTime, "REQUEST_STATUS_TIME"},
		{StatusRequestReception, "REQUEST_RECEPTION"},
		{StatusRequestForward, "REQUEST_FORWARD"},
		{StatusRequestDelivery, "REQUEST_DELIVERY"},
		{StatusRequestDeletion, "REQUEST_DELETION"},
	}

	var flags []string
	for _, n := range names {
		if bcf.Has(n.flag) {
			flags = append(flags, n.name)
		}
	}

	return strings.Join(flags, ",")
}
