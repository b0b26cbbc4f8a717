// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"errors"
	"io"

	"github.com/dtn7/cboring"
)

var errNoEndpoint = errors.New("no EndpointID is set")

// PreviousNodeBlock names the node which forwarded this bundle last.
type PreviousNodeBlock struct {
	Endpoint EndpointID
}

// NewPreviousNodeBlock for an EndpointID.
func NewPreviousNodeBlock(prev EndpointID) *PreviousNodeBlock {
	return &PreviousNodeBlock{Endpoint: prev}
}

// BlockTypeCode is 6 for a Previous Node Block.
func (pnb *PreviousNodeBlock) BlockTypeCode() uint64 {
	return ExtBlockTypePreviousNodeBlock
}

// MarshalBlockData writes the previous node's EndpointID.
func (pnb *PreviousNodeBlock) MarshalBlockData(w io.Writer) error {
	return cboring.Marshal(&pnb.Endpoint, w)
}

// UnmarshalBlockData reads the previous node's EndpointID.
func (pnb *PreviousNodeBlock) UnmarshalBlockData(r io.Reader, _ uint64) error {
	return cboring.Unmarshal(&pnb.Endpoint, r)
}

// CheckValid returns an error for incorrect data.
func (pnb *PreviousNodeBlock) CheckValid() error {
	if pnb.Endpoint.EndpointType == nil {
		return errNoEndpoint
	}
	return pnb.Endpoint.CheckValid()
}
