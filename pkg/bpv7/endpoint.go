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

// EndpointType describes a scheme-specific part of an EndpointID, e.g., for the dtn or ipn URI scheme.
type EndpointType interface {
	// MarshalCbor writes the scheme-specific part's CBOR representation.
	MarshalCbor(w io.Writer) error

	// SchemeName is the URI scheme, e.g., "dtn".
	SchemeName() string

	// SchemeNo is the number assigned to this scheme in the CBOR encoding.
	SchemeNo() uint64

	// CheckValid returns an error for incorrect data.
	CheckValid() error

	fmt.Stringer
}

// EndpointID is a Bundle Protocol endpoint identifier, backed by either a
// DtnEndpoint or an IpnEndpoint. The zero value is invalid; DtnNone() is the
// distinguished null endpoint. Two EndpointIDs are equal iff their canonical
// string representations are equal, which maps to Go equality because both
// endpoint types are comparable structs.
type EndpointID struct {
	EndpointType
}

// ParseEndpointID creates an EndpointID from an URI like "dtn://foo/bar" or "ipn:23.42".
func ParseEndpointID(uri string) (e EndpointID, err error) {
	var t EndpointType

	switch {
	case strings.HasPrefix(uri, dtnEndpointSchemeName+":"):
		t, err = NewDtnEndpoint(uri)

	case strings.HasPrefix(uri, ipnEndpointSchemeName+":"):
		t, err = NewIpnEndpoint(uri)

	default:
		err = fmt.Errorf("unknown URI scheme in %q", uri)
	}

	if err == nil {
		e = EndpointID{t}
	}
	return
}

// MustParseEndpointID is a ParseEndpointID that panics on invalid URIs.
func MustParseEndpointID(uri string) EndpointID {
	if e, err := ParseEndpointID(uri); err != nil {
		panic(err)
	} else {
		return e
	}
}

// IsNone checks for the null endpoint, dtn:none.
func (eid EndpointID) IsNone() bool {
	return eid == DtnNone()
}

// SameNode compares the node name respectively node number of two EndpointIDs.
func (eid EndpointID) SameNode(other EndpointID) bool {
	switch t := eid.EndpointType.(type) {
	case DtnEndpoint:
		o, ok := other.EndpointType.(DtnEndpoint)
		return ok && !eid.IsNone() && !other.IsNone() && t.NodeName() == o.NodeName()

	case IpnEndpoint:
		o, ok := other.EndpointType.(IpnEndpoint)
		return ok && t.Node == o.Node

	default:
		return false
	}
}

// Matches checks this EndpointID against a pattern endpoint.
//
// Three rules apply, in order:
//   - dtn:none never matches and is never matched.
//   - A dtn pattern ending in "/*" matches every endpoint sharing the prefix
//     before the asterisk.
//   - A dtn pattern containing a group demux "/~group" matches every endpoint
//     of the same node carrying the same group prefix.
//
// Everything else is an exact comparison of the canonical representations.
func (eid EndpointID) Matches(pattern EndpointID) bool {
	if eid.IsNone() || pattern.IsNone() {
		return false
	}

	p, pOk := pattern.EndpointType.(DtnEndpoint)
	e, eOk := eid.EndpointType.(DtnEndpoint)
	if !pOk || !eOk {
		return eid == pattern
	}

	switch {
	case strings.HasSuffix(p.Ssp, "/*"):
		return strings.HasPrefix(e.String(), strings.TrimSuffix(p.String(), "*"))

	case strings.Contains(p.Ssp, "/~"):
		return p.NodeName() == e.NodeName() && strings.HasPrefix(e.String(), p.String())

	default:
		return eid == pattern
	}
}

// IsSingleton checks if this endpoint represents exactly one node, i.e., is
// neither the null endpoint nor a group endpoint.
func (eid EndpointID) IsSingleton() bool {
	if t, ok := eid.EndpointType.(DtnEndpoint); ok {
		return !eid.IsNone() && !strings.Contains(t.Ssp, "/~")
	}
	return true
}

// MarshalCbor writes this EndpointID's CBOR representation, an array of the
// scheme number and the scheme-specific part.
func (eid *EndpointID) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(eid.SchemeNo(), w); err != nil {
		return err
	}

	return eid.EndpointType.MarshalCbor(w)
}

// UnmarshalCbor reads an EndpointID from its CBOR representation.
func (eid *EndpointID) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("EndpointID: expected array of length 2, got %d", n)
	}

	schemeNo, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}

	var t EndpointType
	switch schemeNo {
	case dtnEndpointSchemeNo:
		t = DtnEndpoint{}
	case ipnEndpointSchemeNo:
		t = IpnEndpoint{}
	default:
		return fmt.Errorf("EndpointID: unknown scheme number %d", schemeNo)
	}

	if t, err = unmarshalEndpointType(t, r); err != nil {
		return err
	}

	eid.EndpointType = t
	return eid.CheckValid()
}

// unmarshalEndpointType reads the scheme-specific part for a value-typed
// EndpointType and returns the populated value.
func unmarshalEndpointType(t EndpointType, r io.Reader) (EndpointType, error) {
	switch t.(type) {
	case DtnEndpoint:
		var e DtnEndpoint
		err := e.UnmarshalCbor(r)
		return e, err

	case IpnEndpoint:
		var e IpnEndpoint
		err := e.UnmarshalCbor(r)
		return e, err

	default:
		return nil, fmt.Errorf("unsupported EndpointType %T", t)
	}
}
