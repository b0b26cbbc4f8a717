// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"testing"

	"github.com/dtn7/cboring"
)

func TestParseEndpointID(t *testing.T) {
	tests := []struct {
		uri       string
		valid     bool
		canonical string
	}{
		{"dtn:none", true, "dtn:none"},
		{"dtn://node1/", true, "dtn://node1/"},
		{"dtn://node1", true, "dtn://node1/"},
		{"dtn://node1/ping", true, "dtn://node1/ping"},
		{"dtn://node1/ping/", true, "dtn://node1/ping"},
		{"dtn://node1/a/b", true, "dtn://node1/a/b"},
		{"dtn://global/~news", true, "dtn://global/~news"},
		{"ipn:23.42", true, "ipn:23.42"},
		{"dtn://", false, ""},
		{"dtn:///demux", false, ""},
		{"dtn://ümlaut/", false, ""},
		{"ipn:0.1", false, ""},
		{"ipn:1", false, ""},
		{"uff:test", false, ""},
		{"dtn:bar", false, ""},
	}

	for _, test := range tests {
		eid, err := ParseEndpointID(test.uri)
		if test.valid != (err == nil) {
			t.Fatalf("%q: valid = %t, err = %v", test.uri, test.valid, err)
		}

		if test.valid && eid.String() != test.canonical {
			t.Fatalf("%q: canonical form is %q, not %q", test.uri, eid.String(), test.canonical)
		}
	}
}

func TestEndpointIDEquality(t *testing.T) {
	a := MustParseEndpointID("dtn://node1/app/")
	b := MustParseEndpointID("dtn://node1/app")

	if a != b {
		t.Fatalf("%v != %v after canonicalization", a, b)
	}

	if DtnNone() != MustParseEndpointID("dtn:none") {
		t.Fatal("dtn:none does not equal DtnNone()")
	}
}

func TestEndpointIDMatches(t *testing.T) {
	tests := []struct {
		eid     string
		pattern string
		matches bool
	}{
		{"dtn://node1/ping", "dtn://node1/ping", true},
		{"dtn://node1/ping", "dtn://node1/pong", false},
		{"dtn://node3/app", "dtn://node3/*", true},
		{"dtn://node3/", "dtn://node3/*", true},
		{"dtn://node30/app", "dtn://node3/*", false},
		{"dtn://global/~news", "dtn://global/~news", true},
		{"dtn://global/~news/sub", "dtn://global/~news", true},
		{"dtn://other/~news", "dtn://global/~news", false},
		{"dtn:none", "dtn://node1/*", false},
		{"dtn://node1/ping", "dtn:none", false},
		{"ipn:23.42", "ipn:23.42", true},
		{"ipn:23.42", "ipn:23.7", false},
	}

	for _, test := range tests {
		eid := MustParseEndpointID(test.eid)
		pattern := MustParseEndpointID(test.pattern)

		if eid.Matches(pattern) != test.matches {
			t.Fatalf("%q matches %q: expected %t", test.eid, test.pattern, test.matches)
		}
	}
}

func TestEndpointIDCbor(t *testing.T) {
	for _, uri := range []string{"dtn:none", "dtn://foo/bar", "ipn:1.1"} {
		eid := MustParseEndpointID(uri)

		var buff bytes.Buffer
		if err := cboring.Marshal(&eid, &buff); err != nil {
			t.Fatal(err)
		}

		var eid2 EndpointID
		if err := cboring.Unmarshal(&eid2, &buff); err != nil {
			t.Fatal(err)
		}

		if eid != eid2 {
			t.Fatalf("%v != %v after CBOR round trip", eid, eid2)
		}
	}
}

func TestEndpointIDSameNode(t *testing.T) {
	if !MustParseEndpointID("dtn://node1/a").SameNode(MustParseEndpointID("dtn://node1/b")) {
		t.Fatal("same node was not detected")
	}
	if MustParseEndpointID("dtn://node1/a").SameNode(MustParseEndpointID("dtn://node2/a")) {
		t.Fatal("different nodes were not detected")
	}
	if MustParseEndpointID("dtn://node1/a").SameNode(DtnNone()) {
		t.Fatal("dtn:none must not share a node")
	}
}
