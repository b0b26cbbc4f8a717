// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package storage persists bundles next to their metadata, the BundlePack.
//
// Three backends exist: a map-based MemoryStore, a relational SQLiteStore and
// a BadgerStore. All mutations are serialized per store; readers observe a
// consistent snapshot.
package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
)

var (
	// ErrBundleNotFound is returned for operations on unknown bundle IDs.
	ErrBundleNotFound = errors.New("no bundle for this ID in the store")

	// ErrInvalidData is returned for bundles or metadata which cannot be serialized.
	ErrInvalidData = errors.New("invalid data")
)

// Constraint is a retention constraint, a reason why a bundle must be kept.
// Multiple Constraints form a bit set within a BundlePack.
type Constraint uint64

const (
	// DispatchPending is set on a bundle waiting for its dispatching.
	DispatchPending Constraint = 1 << iota

	// ForwardPending is set on a bundle waiting for its forwarding.
	ForwardPending

	// ReassemblyPending is set on a fragment waiting for its siblings.
	ReassemblyPending

	// Contraindicated is set on a bundle which could not be dispatched.
	Contraindicated

	// Deleted is set on a bundle that must be neither forwarded nor delivered
	// again; the janitor collects it.
	Deleted
)

func (c Constraint) String() string {
	names := []struct {
		c    Constraint
		name string
	}{
		{DispatchPending, "dispatch pending"},
		{ForwardPending, "forward pending"},
		{ReassemblyPending, "reassembly pending"},
		{Contraindicated, "contraindicated"},
		{Deleted, "deleted"},
	}

	var parts []string
	for _, n := range names {
		if c&n.c != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// BundlePack is the in-store metadata descriptor of a bundle.
type BundlePack struct {
	Id           string
	Source       bpv7.EndpointID
	Destination  bpv7.EndpointID
	CreationTime uint64
	Size         uint64
	Constraints  Constraint
}

// NewBundlePack derives the metadata of a bundle and its encoded size.
func NewBundlePack(b *bpv7.Bundle, size uint64) BundlePack {
	return BundlePack{
		Id:           b.ID().String(),
		Source:       b.PrimaryBlock.SourceNode,
		Destination:  b.PrimaryBlock.Destination,
		CreationTime: uint64(b.PrimaryBlock.CreationTimestamp.DtnTime()),
		Size:         size,
		Constraints:  0,
	}
}

// HasConstraint checks if all bits of the given Constraint are set.
func (bp BundlePack) HasConstraint(c Constraint) bool {
	return bp.Constraints&c == c
}

// AddConstraint sets the given Constraint's bits.
func (bp *BundlePack) AddConstraint(c Constraint) {
	bp.Constraints |= c
}

// RemoveConstraint clears the given Constraint's bits.
func (bp *BundlePack) RemoveConstraint(c Constraint) {
	bp.Constraints &^= c
}

func (bp BundlePack) String() string {
	return fmt.Sprintf("BundlePack(%s, %v)", bp.Id, bp.Constraints)
}

// Store is the logical contract all backends fulfill.
type Store interface {
	// Push a bundle. The call is idempotent regarding the bundle's ID: the
	// first Push creates the BundlePack, a second one replaces the encoded
	// bytes but keeps the constraints untouched.
	Push(b *bpv7.Bundle) error

	// UpdateMetadata replaces a bundle's BundlePack; fails with
	// ErrBundleNotFound for unknown IDs.
	UpdateMetadata(pack BundlePack) error

	// Remove marks a bundle as Deleted and drops its bytes and metadata;
	// fails with ErrBundleNotFound for unknown IDs.
	Remove(id string) error

	// Count the stored bundles.
	Count() uint64

	// AllIds of the stored bundles.
	AllIds() []string

	// AllBundles returns every BundlePack.
	AllBundles() []BundlePack

	// HasItem checks for a bundle ID.
	HasItem(id string) bool

	// GetBundle decodes a stored bundle.
	GetBundle(id string) (bpv7.Bundle, error)

	// GetMetadata fetches a bundle's BundlePack.
	GetMetadata(id string) (BundlePack, error)

	// Close the Store; it must not be used afterwards.
	Close() error
}

// NewStore creates the backend selected by name: "mem", "sqlite" or "badger".
// The directory is ignored by the in-memory backend.
func NewStore(backend, dir string) (Store, error) {
	switch backend {
	case "", "mem", "memory":
		return NewMemoryStore(), nil

	case "sqlite":
		return NewSQLiteStore(dir)

	case "badger":
		return NewBadgerStore(dir)

	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
