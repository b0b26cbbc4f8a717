// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"sort"
	"sync"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
)

// MemoryStore keeps bundles and metadata in hash tables. Nothing survives a
// restart.
type MemoryStore struct {
	mutex sync.RWMutex

	bundles  map[string][]byte
	metadata map[string]BundlePack
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bundles:  make(map[string][]byte),
		metadata: make(map[string]BundlePack),
	}
}

// Push a bundle, see Store.
func (store *MemoryStore) Push(b *bpv7.Bundle) error {
	data, err := b.WriteBundleBytes()
	if err != nil {
		return err
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	id := b.ID().String()
	if pack, known := store.metadata[id]; known {
		pack.Size = uint64(len(data))
		store.metadata[id] = pack
	} else {
		store.metadata[id] = NewBundlePack(b, uint64(len(data)))
	}
	store.bundles[id] = data

	return nil
}

// UpdateMetadata replaces a BundlePack, see Store.
func (store *MemoryStore) UpdateMetadata(pack BundlePack) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, known := store.metadata[pack.Id]; !known {
		return ErrBundleNotFound
	}

	store.metadata[pack.Id] = pack
	return nil
}

// Remove a bundle, see Store.
func (store *MemoryStore) Remove(id string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, known := store.metadata[id]; !known {
		return ErrBundleNotFound
	}

	delete(store.bundles, id)
	delete(store.metadata, id)
	return nil
}

// Count the stored bundles.
func (store *MemoryStore) Count() uint64 {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	return uint64(len(store.metadata))
}

// AllIds of the stored bundles, sorted for deterministic output.
func (store *MemoryStore) AllIds() []string {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	ids := make([]string, 0, len(store.metadata))
	for id := range store.metadata {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

// AllBundles returns every BundlePack.
func (store *MemoryStore) AllBundles() []BundlePack {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	packs := make([]BundlePack, 0, len(store.metadata))
	for _, pack := range store.metadata {
		packs = append(packs, pack)
	}
	sort.Slice(packs, func(i, j int) bool { return packs[i].Id < packs[j].Id })

	return packs
}

// HasItem checks for a bundle ID.
func (store *MemoryStore) HasItem(id string) bool {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	_, known := store.metadata[id]
	return known
}

// GetBundle decodes a stored bundle.
func (store *MemoryStore) GetBundle(id string) (bpv7.Bundle, error) {
	store.mutex.RLock()
	data, known := store.bundles[id]
	store.mutex.RUnlock()

	if !known {
		return bpv7.Bundle{}, ErrBundleNotFound
	}

	return bpv7.ParseBundleBytes(data)
}

// GetMetadata fetches a bundle's BundlePack.
func (store *MemoryStore) GetMetadata(id string) (BundlePack, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	pack, known := store.metadata[id]
	if !known {
		return BundlePack{}, ErrBundleNotFound
	}

	return pack, nil
}

// Close is a no-op for a MemoryStore.
func (store *MemoryStore) Close() error {
	return nil
}
