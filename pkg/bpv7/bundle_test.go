// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"testing"
	"time"
)

func TestBundleBuilderRoundTrip(t *testing.T) {
	bndl, err := Builder().
		CRC(CRC32).
		Source("dtn://node1/ping").
		Destination("dtn://node2/echo").
		CreationTimestampNow().
		Lifetime("30m").
		HopCountBlock(64).
		PayloadBlock([]byte("Hello, DTN!")).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	data, err := bndl.WriteBundleBytes()
	if err != nil {
		t.Fatal(err)
	}

	bndl2, err := ParseBundleBytes(data)
	if err != nil {
		t.Fatal(err)
	}

	if bndl.ID() != bndl2.ID() {
		t.Fatalf("bundle IDs differ: %v, %v", bndl.ID(), bndl2.ID())
	}

	payload, err := bndl2.PayloadData()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(payload, []byte("Hello, DTN!")) {
		t.Fatalf("payload differs: %q", payload)
	}

	data2, err := bndl2.WriteBundleBytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, data2) {
		t.Fatal("serialization is not stable")
	}
}

func TestBundleLifetime(t *testing.T) {
	bndl, err := Builder().
		Source("dtn://node1/").
		Destination("dtn://node2/").
		CreationTimestamp(DtnTimeFromTime(time.Now().Add(-10*time.Second)), 1).
		Lifetime(uint64(2)).
		PayloadBlock([]byte("stale")).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	if !bndl.IsLifetimeExceeded(time.Now()) {
		t.Fatal("bundle with a two second lifetime survived ten seconds")
	}

	if bndl.IsLifetimeExceeded(bndl.PrimaryBlock.CreationTimestamp.DtnTime().Time().Add(time.Second)) {
		t.Fatal("bundle expired before its lifetime ended")
	}
}

func TestBundleExpiryMonotonic(t *testing.T) {
	bndl, err := Builder().
		Source("dtn://node1/").
		Destination("dtn://node2/").
		CreationTimestampNow().
		Lifetime(uint64(1)).
		PayloadBlock([]byte("x")).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	base := bndl.ExpiresAt()
	for i := 0; i < 16; i++ {
		later := base.Add(time.Duration(i) * time.Second)
		if i > 0 && !bndl.IsLifetimeExceeded(later) {
			t.Fatalf("expiry is not monotonic at %v", later)
		}
	}
}

func TestBundleUnknownBlockSurvivesRoundTrip(t *testing.T) {
	bndl, err := Builder().
		Source("dtn://node1/").
		Destination("dtn://node2/").
		CreationTimestampNow().
		Lifetime(uint64(60)).
		Canonical(NewGenericExtensionBlock(192, []byte{0xca, 0xfe})).
		PayloadBlock([]byte("data")).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	data, err := bndl.WriteBundleBytes()
	if err != nil {
		t.Fatal(err)
	}

	bndl2, err := ParseBundleBytes(data)
	if err != nil {
		t.Fatal(err)
	}

	cb, err := bndl2.ExtensionBlock(192)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(cb.Value.(*GenericExtensionBlock).Data(), []byte{0xca, 0xfe}) {
		t.Fatal("unknown block's data was mangled")
	}
}

func TestStatusReportRoundTrip(t *testing.T) {
	bndl, err := Builder().
		Source("dtn://node1/app").
		Destination("dtn://node2/app").
		BundleCtrlFlags(StatusRequestDelivery).
		CreationTimestampNow().
		Lifetime(uint64(60)).
		PayloadBlock([]byte("report me")).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	report := NewStatusReport(bndl, DeliveredBundle, NoInformation, DtnTimeNow())
	payload, err := AdministrativeRecordToCbor(report)
	if err != nil {
		t.Fatal(err)
	}

	adminBundle, err := Builder().
		BundleCtrlFlags(AdministrativeRecordPayload).
		Source("dtn://node2/").
		Destination("dtn://node1/app").
		CreationTimestampNow().
		Lifetime("60m").
		Canonical(payload).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	data, err := adminBundle.WriteBundleBytes()
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := ParseBundleBytes(data)
	if err != nil {
		t.Fatal(err)
	}

	ar, err := parsed.AdministrativeRecord()
	if err != nil {
		t.Fatal(err)
	}

	sr, ok := ar.(*StatusReport)
	if !ok {
		t.Fatalf("expected a StatusReport, got %T", ar)
	}
	if sr.RefBundle != bndl.ID() {
		t.Fatalf("referenced bundle is %v, not %v", sr.RefBundle, bndl.ID())
	}
	if sips := sr.StatusInformations(); len(sips) != 1 || sips[0] != DeliveredBundle {
		t.Fatalf("unexpected status informations: %v", sips)
	}
}
