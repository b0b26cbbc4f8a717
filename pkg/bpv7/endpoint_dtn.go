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

const (
	dtnEndpointSchemeName string = "dtn"
	dtnEndpointSchemeNo   uint64 = 1
	dtnEndpointNoneSsp    string = "none"
)

// DtnEndpoint is the scheme-specific part of a dtn URI, either "none" or
// "//node/demux" in its canonical form.
type DtnEndpoint struct {
	Ssp string
}

// NewDtnEndpoint parses a dtn URI and canonicalizes it: a bare node URI
// "dtn://node" becomes "dtn://node/" while a deeper demux path loses a single
// trailing slash, so "dtn://node/app/" and "dtn://node/app" are the same
// endpoint.
func NewDtnEndpoint(uri string) (e DtnEndpoint, err error) {
	if uri == dtnEndpointSchemeName+":"+dtnEndpointNoneSsp {
		return DtnEndpoint{Ssp: dtnEndpointNoneSsp}, nil
	}

	if !strings.HasPrefix(uri, dtnEndpointSchemeName+"://") {
		err = fmt.Errorf("dtn URI %q misses the dtn:// prefix", uri)
		return
	}

	rest := strings.TrimPrefix(uri, dtnEndpointSchemeName+"://")
	for _, r := range rest {
		if r > 127 {
			err = fmt.Errorf("dtn URI %q contains non-ASCII characters", uri)
			return
		}
	}

	authority, demux, found := strings.Cut(rest, "/")
	if authority == "" {
		err = fmt.Errorf("dtn URI %q has an empty node name", uri)
		return
	}

	if found && demux != "" {
		demux = strings.TrimSuffix(demux, "/")
		e = DtnEndpoint{Ssp: "//" + authority + "/" + demux}
	} else {
		e = DtnEndpoint{Ssp: "//" + authority + "/"}
	}

	err = e.CheckValid()
	return
}

// SchemeName is "dtn" for DtnEndpoints.
func (_ DtnEndpoint) SchemeName() string {
	return dtnEndpointSchemeName
}

// SchemeNo is 1 for DtnEndpoints.
func (_ DtnEndpoint) SchemeNo() uint64 {
	return dtnEndpointSchemeNo
}

// IsNone checks for the null endpoint's scheme-specific part.
func (e DtnEndpoint) IsNone() bool {
	return e.Ssp == dtnEndpointNoneSsp
}

// NodeName is the authority part of the URI, e.g., "foo" for "dtn://foo/bar".
func (e DtnEndpoint) NodeName() string {
	if e.IsNone() {
		return ""
	}

	name, _, _ := strings.Cut(strings.TrimPrefix(e.Ssp, "//"), "/")
	return name
}

// Demux is the path part of the URI, e.g., "bar" for "dtn://foo/bar".
func (e DtnEndpoint) Demux() string {
	if e.IsNone() {
		return ""
	}

	_, demux, _ := strings.Cut(strings.TrimPrefix(e.Ssp, "//"), "/")
	return demux
}

// CheckValid returns an error for incorrect data.
func (e DtnEndpoint) CheckValid() error {
	if e.IsNone() {
		return nil
	}

	if !strings.HasPrefix(e.Ssp, "//") {
		return fmt.Errorf("dtn scheme-specific part %q misses the authority marker", e.Ssp)
	}
	if e.NodeName() == "" {
		return fmt.Errorf("dtn scheme-specific part %q has an empty node name", e.Ssp)
	}
	if strings.Contains(e.Ssp, "/~") && strings.Contains(e.Ssp, "/*") {
		return fmt.Errorf("dtn scheme-specific part %q mixes group and wildcard demux", e.Ssp)
	}

	return nil
}

func (e DtnEndpoint) String() string {
	return dtnEndpointSchemeName + ":" + e.Ssp
}

// MarshalCbor writes this DtnEndpoint's scheme-specific part, either the
// uint 0 for dtn:none or a text string.
func (e DtnEndpoint) MarshalCbor(w io.Writer) error {
	if e.IsNone() {
		return cboring.WriteUInt(0, w)
	}
	return cboring.WriteTextString(e.Ssp, w)
}

// UnmarshalCbor reads a scheme-specific part.
func (e *DtnEndpoint) UnmarshalCbor(r io.Reader) error {
	m, n, err := cboring.ReadMajors(r)
	if err != nil {
		return err
	}

	switch m {
	case cboring.UInt:
		e.Ssp = dtnEndpointNoneSsp

	case cboring.TextString:
		raw, rawErr := cboring.ReadRawBytes(n, r)
		if rawErr != nil {
			return rawErr
		}
		e.Ssp = string(raw)

	default:
		return fmt.Errorf("DtnEndpoint: unexpected major type %d", m)
	}

	return e.CheckValid()
}

// DtnNone returns the null endpoint, dtn:none.
func DtnNone() EndpointID {
	return EndpointID{DtnEndpoint{Ssp: dtnEndpointNoneSsp}}
}
