// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"
	"io"
	"strings"

	"github.com/dtn7/cboring"
)

// StatusInformationPos is the index within a status report's bundle status
// information array.
type StatusInformationPos int

const (
	// ReceivedBundle indicates the reporting node received this bundle.
	ReceivedBundle StatusInformationPos = 0

	// ForwardedBundle indicates the reporting node forwarded this bundle.
	ForwardedBundle StatusInformationPos = 1

	// DeliveredBundle indicates the reporting node delivered this bundle.
	DeliveredBundle StatusInformationPos = 2

	// DeletedBundle indicates the reporting node deleted this bundle.
	DeletedBundle StatusInformationPos = 3

	// maxStatusInformationPos is the length of the status information array.
	maxStatusInformationPos = 4
)

func (sip StatusInformationPos) String() string {
	switch sip {
	case ReceivedBundle:
		return "received bundle"
	case ForwardedBundle:
		return "forwarded bundle"
	case DeliveredBundle:
		return "delivered bundle"
	case DeletedBundle:
		return "deleted bundle"
	default:
		return "unknown"
	}
}

// StatusReportReason is a status report's reason code.
type StatusReportReason uint64

const (
	// NoInformation is the "no additional information" reason code.
	NoInformation StatusReportReason = 0

	// LifetimeExpired is the "lifetime expired" reason code.
	LifetimeExpired StatusReportReason = 1

	// ForwardUnidirectionalLink is the "forwarded over unidirectional link" reason code.
	ForwardUnidirectionalLink StatusReportReason = 2

	// TransmissionCanceled is the "transmission canceled" reason code.
	TransmissionCanceled StatusReportReason = 3

	// DepletedStorage is the "depleted storage" reason code.
	DepletedStorage StatusReportReason = 4

	// DestEndpointUnintelligible is the "destination endpoint ID unintelligible" reason code.
	DestEndpointUnintelligible StatusReportReason = 5

	// NoRouteToDestination is the "no known route to destination from here" reason code.
	NoRouteToDestination StatusReportReason = 6

	// NoNextNodeContact is the "no timely contact with next node on route" reason code.
	NoNextNodeContact StatusReportReason = 7

	// BlockUnintelligible is the "block unintelligible" reason code.
	BlockUnintelligible StatusReportReason = 8

	// HopLimitExceeded is the "hop limit exceeded" reason code.
	HopLimitExceeded StatusReportReason = 9
)

func (srr StatusReportReason) String() string {
	switch srr {
	case NoInformation:
		return "no additional information"
	case LifetimeExpired:
		return "lifetime expired"
	case ForwardUnidirectionalLink:
		return "forwarded over unidirectional link"
	case TransmissionCanceled:
		return "transmission canceled"
	case DepletedStorage:
		return "depleted storage"
	case DestEndpointUnintelligible:
		return "destination endpoint ID unintelligible"
	case NoRouteToDestination:
		return "no known route to destination from here"
	case NoNextNodeContact:
		return "no timely contact with next node on route"
	case BlockUnintelligible:
		return "block unintelligible"
	case HopLimitExceeded:
		return "hop limit exceeded"
	default:
		return "unknown"
	}
}

// BundleStatusItem is one entry of a status report's bundle status information
// array: an assertion with an optional timestamp.
type BundleStatusItem struct {
	Asserted        bool
	Time            DtnTime
	StatusRequested bool
}

// MarshalCbor writes this BundleStatusItem's CBOR representation.
func (bsi *BundleStatusItem) MarshalCbor(w io.Writer) error {
	arrLen := uint64(1)
	if bsi.Asserted && bsi.StatusRequested {
		arrLen = 2
	}

	if err := cboring.WriteArrayLength(arrLen, w); err != nil {
		return err
	}

	if err := cboring.WriteBoolean(bsi.Asserted, w); err != nil {
		return err
	}

	if arrLen == 2 {
		if err := cboring.WriteUInt(uint64(bsi.Time), w); err != nil {
			return err
		}
	}

	return nil
}

// UnmarshalCbor reads a BundleStatusItem.
func (bsi *BundleStatusItem) UnmarshalCbor(r io.Reader) error {
	arrLen, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	} else if arrLen != 1 && arrLen != 2 {
		return fmt.Errorf("BundleStatusItem: expected array of length 1 or 2, got %d", arrLen)
	}

	if asserted, err := cboring.ReadBoolean(r); err != nil {
		return err
	} else {
		bsi.Asserted = asserted
	}

	bsi.StatusRequested = arrLen == 2
	if bsi.StatusRequested {
		if t, err := cboring.ReadUInt(r); err != nil {
			return err
		} else {
			bsi.Time = DtnTime(t)
		}
	}

	return nil
}

// StatusReport is the administrative record describing the reception,
// forwarding, delivery or deletion of a referenced bundle.
type StatusReport struct {
	StatusInformation []BundleStatusItem
	ReportReason      StatusReportReason
	RefBundle         BundleID
}

// NewStatusReport referencing the given bundle. The assertion for statusItem
// carries a timestamp iff the referenced bundle requested status times.
func NewStatusReport(bndl Bundle, statusItem StatusInformationPos, reason StatusReportReason, time DtnTime) *StatusReport {
	report := &StatusReport{
		StatusInformation: make([]BundleStatusItem, maxStatusInformationPos),
		ReportReason:      reason,
		RefBundle:         bndl.ID(),
	}

	for i := range report.StatusInformation {
		if StatusInformationPos(i) != statusItem {
			continue
		}

		report.StatusInformation[i].Asserted = true
		if bndl.PrimaryBlock.BundleControlFlags.Has(RequestStatusTime) {
			report.StatusInformation[i].Time = time
			report.StatusInformation[i].StatusRequested = true
		}
	}

	return report
}

// StatusInformations returns the asserted StatusInformationPos entries.
func (sr StatusReport) StatusInformations() (sips []StatusInformationPos) {
	for i, si := range sr.StatusInformation {
		if si.Asserted {
			sips = append(sips, StatusInformationPos(i))
		}
	}
	return
}

// RecordTypeCode is 1 for a StatusReport.
func (sr *StatusReport) RecordTypeCode() uint64 {
	return AdminRecordTypeStatusReport
}

// MarshalCbor writes this StatusReport's CBOR representation.
func (sr *StatusReport) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}

	if err := cboring.WriteArrayLength(uint64(len(sr.StatusInformation)), w); err != nil {
		return err
	}
	for i := range sr.StatusInformation {
		if err := cboring.Marshal(&sr.StatusInformation[i], w); err != nil {
			return fmt.Errorf("marshalling BundleStatusItem failed: %w", err)
		}
	}

	if err := cboring.WriteUInt(uint64(sr.ReportReason), w); err != nil {
		return err
	}

	if err := cboring.Marshal(&sr.RefBundle, w); err != nil {
		return fmt.Errorf("marshalling BundleID failed: %w", err)
	}

	return nil
}

// UnmarshalCbor reads a StatusReport.
func (sr *StatusReport) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 4 && n != 6 {
		return fmt.Errorf("StatusReport: expected array of length 4 or 6, got %d", n)
	}

	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else {
		sr.StatusInformation = make([]BundleStatusItem, n)
	}
	for i := range sr.StatusInformation {
		if err := cboring.Unmarshal(&sr.StatusInformation[i], r); err != nil {
			return fmt.Errorf("unmarshalling BundleStatusItem failed: %w", err)
		}
	}

	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		sr.ReportReason = StatusReportReason(n)
	}

	if err := cboring.Unmarshal(&sr.RefBundle, r); err != nil {
		return fmt.Errorf("unmarshalling BundleID failed: %w", err)
	}

	return nil
}

func (sr StatusReport) String() string {
	var b strings.Builder

	_, _ = fmt.Fprintf(&b, "StatusReport([")
	for _, sip := range sr.StatusInformations() {
		_, _ = fmt.Fprintf(&b, "%v,", sip)
	}
	_, _ = fmt.Fprintf(&b, "], %v, %v)", sr.ReportReason, sr.RefBundle)

	return b.String()
}
