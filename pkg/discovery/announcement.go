// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package discovery broadcasts and receives announcement beacons on the local
// network, turning neighbors into dynamic peers.
package discovery

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dtn7/cboring"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
)

// Announcement names one reachable convergence layer of a node.
type Announcement struct {
	ClaType  string
	Endpoint bpv7.EndpointID
	Port     uint16
}

func (a Announcement) String() string {
	return fmt.Sprintf("Announcement(%s, %v, %d)", a.ClaType, a.Endpoint, a.Port)
}

// MarshalCbor writes this Announcement's CBOR representation.
func (a *Announcement) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}

	if err := cboring.WriteTextString(a.ClaType, w); err != nil {
		return err
	}
	if err := cboring.Marshal(&a.Endpoint, w); err != nil {
		return fmt.Errorf("marshalling endpoint failed: %w", err)
	}
	return cboring.WriteUInt(uint64(a.Port), w)
}

// UnmarshalCbor reads an Announcement.
func (a *Announcement) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 3 {
		return fmt.Errorf("Announcement: expected array of length 3, got %d", n)
	}

	if claType, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		a.ClaType = claType
	}

	if err := cboring.Unmarshal(&a.Endpoint, r); err != nil {
		return fmt.Errorf("unmarshalling endpoint failed: %w", err)
	}

	if port, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		a.Port = uint16(port)
	}

	return nil
}

// MarshalAnnouncements packs a beacon payload.
func MarshalAnnouncements(announcements []Announcement) ([]byte, error) {
	var buff bytes.Buffer

	if err := cboring.WriteArrayLength(uint64(len(announcements)), &buff); err != nil {
		return nil, err
	}

	for i := range announcements {
		if err := cboring.Marshal(&announcements[i], &buff); err != nil {
			return nil, fmt.Errorf("marshalling announcement %d failed: %w", i, err)
		}
	}

	return buff.Bytes(), nil
}

// UnmarshalAnnouncements unpacks a beacon payload.
func UnmarshalAnnouncements(data []byte) (announcements []Announcement, err error) {
	buff := bytes.NewBuffer(data)

	n, err := cboring.ReadArrayLength(buff)
	if err != nil {
		return nil, err
	}

	announcements = make([]Announcement, n)
	for i := range announcements {
		if err = cboring.Unmarshal(&announcements[i], buff); err != nil {
			return nil, fmt.Errorf("unmarshalling announcement %d failed: %w", i, err)
		}
	}

	return announcements, nil
}
