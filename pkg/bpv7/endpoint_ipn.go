// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dtn7/cboring"
)

const (
	ipnEndpointSchemeName string = "ipn"
	ipnEndpointSchemeNo   uint64 = 2
)

// IpnEndpoint is the scheme-specific part of an ipn URI, "node.service" with
// both numbers between 1 and 2^64-1, as defined in RFC 6260.
type IpnEndpoint struct {
	Node    uint64
	Service uint64
}

// NewIpnEndpoint parses an ipn URI, e.g., "ipn:23.42".
func NewIpnEndpoint(uri string) (e IpnEndpoint, err error) {
	ssp := strings.TrimPrefix(uri, ipnEndpointSchemeName+":")

	nodeStr, serviceStr, found := strings.Cut(ssp, ".")
	if !found {
		err = fmt.Errorf("ipn URI %q misses the dot separator", uri)
		return
	}

	if e.Node, err = strconv.ParseUint(nodeStr, 10, 64); err != nil {
		return
	}
	if e.Service, err = strconv.ParseUint(serviceStr, 10, 64); err != nil {
		return
	}

	err = e.CheckValid()
	return
}

// SchemeName is "ipn" for IpnEndpoints.
func (_ IpnEndpoint) SchemeName() string {
	return ipnEndpointSchemeName
}

// SchemeNo is 2 for IpnEndpoints.
func (_ IpnEndpoint) SchemeNo() uint64 {
	return ipnEndpointSchemeNo
}

// CheckValid returns an error for incorrect data.
func (e IpnEndpoint) CheckValid() error {
	if e.Node < 1 || e.Service < 1 {
		return fmt.Errorf("ipn node and service number must be >= 1, got %d.%d", e.Node, e.Service)
	}
	return nil
}

func (e IpnEndpoint) String() string {
	return fmt.Sprintf("%s:%d.%d", ipnEndpointSchemeName, e.Node, e.Service)
}

// MarshalCbor writes this IpnEndpoint's scheme-specific part, an array of the
// node and service number.
func (e IpnEndpoint) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	for _, n := range []uint64{e.Node, e.Service} {
		if err := cboring.WriteUInt(n, w); err != nil {
			return err
		}
	}

	return nil
}

// UnmarshalCbor reads a scheme-specific part.
func (e *IpnEndpoint) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("IpnEndpoint: expected array of length 2, got %d", n)
	}

	for _, f := range []*uint64{&e.Node, &e.Service} {
		if n, err := cboring.ReadUInt(r); err != nil {
			return err
		} else {
			*f = n
		}
	}

	return e.CheckValid()
}
