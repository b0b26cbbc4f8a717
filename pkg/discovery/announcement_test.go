// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"reflect"
	"testing"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
)

func TestAnnouncementsRoundTrip(t *testing.T) {
	out := []Announcement{
		{ClaType: "tcpclv4", Endpoint: bpv7.MustParseEndpointID("dtn://node1/"), Port: 4556},
		{ClaType: "udpcl", Endpoint: bpv7.MustParseEndpointID("dtn://node1/"), Port: 4556},
		{ClaType: "httpcl", Endpoint: bpv7.MustParseEndpointID("ipn:23.42"), Port: 8080},
	}

	data, err := MarshalAnnouncements(out)
	if err != nil {
		t.Fatal(err)
	}

	in, err := UnmarshalAnnouncements(data)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(in, out) {
		t.Fatalf("%v != %v", in, out)
	}
}

func TestAnnouncementsBroken(t *testing.T) {
	if _, err := UnmarshalAnnouncements([]byte{0xff, 0x00}); err == nil {
		t.Fatal("broken payload was accepted")
	}
}
