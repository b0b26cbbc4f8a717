// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cla

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPeerAddress is returned when a peer carries no usable address.
	ErrInvalidPeerAddress = errors.New("invalid peer address")

	// ErrConnectionNotActive is returned for sends on a session which is not established.
	ErrConnectionNotActive = errors.New("connection is not active")

	// ErrConnectionClosed is returned after a session reached its final state.
	ErrConnectionClosed = errors.New("connection is closed")

	// ErrIncompleteData is returned when a frame ended prematurely.
	ErrIncompleteData = errors.New("incomplete data")

	// ErrOperationNotSupported is returned for operations a convergence layer
	// cannot perform, e.g., sending on a receive-only CLA.
	ErrOperationNotSupported = errors.New("operation not supported")
)

// InvalidProtocolError reports a violation of a convergence layer's protocol.
type InvalidProtocolError struct {
	Msg string
}

func (e *InvalidProtocolError) Error() string {
	return fmt.Sprintf("invalid protocol: %s", e.Msg)
}

// UnsupportedVersionError reports an unexpected protocol version.
type UnsupportedVersionError struct {
	Version uint8
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported protocol version %d", e.Version)
}

// InvalidMessageError reports an unparsable or unexpected message.
type InvalidMessageError struct {
	Msg string
}

func (e *InvalidMessageError) Error() string {
	return fmt.Sprintf("invalid message: %s", e.Msg)
}

// BundleTooLargeError reports a bundle exceeding a convergence layer's limit.
type BundleTooLargeError struct {
	Actual int
	Max    int
}

func (e *BundleTooLargeError) Error() string {
	return fmt.Sprintf("bundle of %d bytes exceeds the limit of %d bytes", e.Actual, e.Max)
}

// HttpError reports a non-2xx response of an HTTP convergence layer.
type HttpError struct {
	Code int
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("HTTP request failed with status code %d", e.Code)
}
