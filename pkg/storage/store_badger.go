// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"errors"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/timshannon/badgerhold"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
)

// badgerItem is the record type stored within badgerhold: the BundlePack's
// fields in serializable form next to the encoded bundle.
type badgerItem struct {
	Id string `badgerhold:"key"`

	Source       string
	Destination  string
	CreationTime uint64
	Size         uint64
	Constraints  uint64

	Data []byte
}

func (bi badgerItem) pack() (pack BundlePack, err error) {
	pack = BundlePack{
		Id:           bi.Id,
		CreationTime: bi.CreationTime,
		Size:         bi.Size,
		Constraints:  Constraint(bi.Constraints),
	}

	if pack.Source, err = bpv7.ParseEndpointID(bi.Source); err != nil {
		return
	}
	pack.Destination, err = bpv7.ParseEndpointID(bi.Destination)
	return
}

// BadgerStore persists bundles in a badgerhold key-value store.
type BadgerStore struct {
	bh *badgerhold.Store
}

// NewBadgerStore opens or creates a badger database below the given directory.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	badgerDir := filepath.Join(dir, "db")
	if err := os.MkdirAll(badgerDir, 0700); err != nil {
		return nil, err
	}

	opts := badgerhold.DefaultOptions
	opts.Dir = badgerDir
	opts.ValueDir = badgerDir
	opts.Logger = log.StandardLogger()

	bh, err := badgerhold.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{bh: bh}, nil
}

// Push a bundle, see Store.
func (store *BadgerStore) Push(b *bpv7.Bundle) error {
	data, err := b.WriteBundleBytes()
	if err != nil {
		return err
	}

	id := b.ID().String()

	var item badgerItem
	if err := store.bh.Get(id, &item); errors.Is(err, badgerhold.ErrNotFound) {
		pack := NewBundlePack(b, uint64(len(data)))
		item = badgerItem{
			Id:           pack.Id,
			Source:       pack.Source.String(),
			Destination:  pack.Destination.String(),
			CreationTime: pack.CreationTime,
			Size:         pack.Size,
			Constraints:  uint64(pack.Constraints),
			Data:         data,
		}
		return store.bh.Insert(id, item)
	} else if err != nil {
		return err
	}

	item.Data = data
	item.Size = uint64(len(data))
	return store.bh.Update(id, item)
}

// UpdateMetadata replaces a BundlePack, see Store.
func (store *BadgerStore) UpdateMetadata(pack BundlePack) error {
	var item badgerItem
	if err := store.bh.Get(pack.Id, &item); errors.Is(err, badgerhold.ErrNotFound) {
		return ErrBundleNotFound
	} else if err != nil {
		return err
	}

	item.Source = pack.Source.String()
	item.Destination = pack.Destination.String()
	item.CreationTime = pack.CreationTime
	item.Size = pack.Size
	item.Constraints = uint64(pack.Constraints)

	return store.bh.Update(pack.Id, item)
}

// Remove a bundle, see Store.
func (store *BadgerStore) Remove(id string) error {
	if !store.HasItem(id) {
		return ErrBundleNotFound
	}
	return store.bh.Delete(id, badgerItem{})
}

// Count the stored bundles.
func (store *BadgerStore) Count() uint64 {
	return uint64(len(store.AllIds()))
}

// AllIds of the stored bundles.
func (store *BadgerStore) AllIds() (ids []string) {
	var items []badgerItem
	if err := store.bh.Find(&items, nil); err != nil {
		log.WithError(err).Warn("Querying bundles failed")
		return
	}

	for _, item := range items {
		ids = append(ids, item.Id)
	}
	return
}

// AllBundles returns every BundlePack.
func (store *BadgerStore) AllBundles() (packs []BundlePack) {
	var items []badgerItem
	if err := store.bh.Find(&items, nil); err != nil {
		log.WithError(err).Warn("Querying bundles failed")
		return
	}

	for _, item := range items {
		if pack, err := item.pack(); err != nil {
			log.WithError(err).WithField("bundle", item.Id).Warn("Broken metadata in store")
		} else {
			packs = append(packs, pack)
		}
	}
	return
}

// HasItem checks for a bundle ID.
func (store *BadgerStore) HasItem(id string) bool {
	var item badgerItem
	return store.bh.Get(id, &item) == nil
}

// GetBundle decodes a stored bundle.
func (store *BadgerStore) GetBundle(id string) (bpv7.Bundle, error) {
	var item badgerItem
	if err := store.bh.Get(id, &item); errors.Is(err, badgerhold.ErrNotFound) {
		return bpv7.Bundle{}, ErrBundleNotFound
	} else if err != nil {
		return bpv7.Bundle{}, err
	}

	return bpv7.ParseBundleBytes(item.Data)
}

// GetMetadata fetches a bundle's BundlePack.
func (store *BadgerStore) GetMetadata(id string) (BundlePack, error) {
	var item badgerItem
	if err := store.bh.Get(id, &item); errors.Is(err, badgerhold.ErrNotFound) {
		return BundlePack{}, ErrBundleNotFound
	} else if err != nil {
		return BundlePack{}, err
	}

	return item.pack()
}

// Close the underlying badger database.
func (store *BadgerStore) Close() error {
	return store.bh.Close()
}
