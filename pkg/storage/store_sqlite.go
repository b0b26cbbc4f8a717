// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS bundles (
	id   TEXT PRIMARY KEY,
	data BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS bundle_metadata (
	id            TEXT PRIMARY KEY REFERENCES bundles(id) ON DELETE CASCADE,
	source        TEXT NOT NULL,
	destination   TEXT NOT NULL,
	creation_time INTEGER NOT NULL,
	size          INTEGER NOT NULL,
	constraints   INTEGER NOT NULL
);
`

// SQLiteStore persists bundles in a relational bundles.db file with the two
// tables bundles and bundle_metadata.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates bundles.db below the given directory.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", filepath.Join(dir, "bundles.db"))
	if err != nil {
		return nil, fmt.Errorf("opening bundles.db failed: %w", err)
	}

	// The database/sql pool plus SQLite requires a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("creating schema failed: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Push a bundle, see Store. Bundle bytes and metadata are written within one
// transaction; a failure leaves the store untouched.
func (store *SQLiteStore) Push(b *bpv7.Bundle) error {
	data, err := b.WriteBundleBytes()
	if err != nil {
		return err
	}

	tx, err := store.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var known bool
	if err := tx.QueryRow("SELECT EXISTS (SELECT 1 FROM bundles WHERE id = ?)", b.ID().String()).Scan(&known); err != nil {
		return err
	}

	if known {
		if _, err := tx.Exec("UPDATE bundles SET data = ? WHERE id = ?", data, b.ID().String()); err != nil {
			return err
		}
		if _, err := tx.Exec("UPDATE bundle_metadata SET size = ? WHERE id = ?", len(data), b.ID().String()); err != nil {
			return err
		}
	} else {
		pack := NewBundlePack(b, uint64(len(data)))

		if _, err := tx.Exec("INSERT INTO bundles (id, data) VALUES (?, ?)", pack.Id, data); err != nil {
			return err
		}
		if _, err := tx.Exec(
			"INSERT INTO bundle_metadata (id, source, destination, creation_time, size, constraints) VALUES (?, ?, ?, ?, ?, ?)",
			pack.Id, pack.Source.String(), pack.Destination.String(), pack.CreationTime, pack.Size, uint64(pack.Constraints)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// UpdateMetadata replaces a BundlePack, see Store.
func (store *SQLiteStore) UpdateMetadata(pack BundlePack) error {
	res, err := store.db.Exec(
		"UPDATE bundle_metadata SET source = ?, destination = ?, creation_time = ?, size = ?, constraints = ? WHERE id = ?",
		pack.Source.String(), pack.Destination.String(), pack.CreationTime, pack.Size, uint64(pack.Constraints), pack.Id)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrBundleNotFound
	}

	return nil
}

// Remove a bundle; the metadata row follows through the foreign key cascade.
func (store *SQLiteStore) Remove(id string) error {
	if _, err := store.db.Exec(
		"UPDATE bundle_metadata SET constraints = constraints | ? WHERE id = ?", uint64(Deleted), id); err != nil {
		return err
	}

	res, err := store.db.Exec("DELETE FROM bundles WHERE id = ?", id)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrBundleNotFound
	}

	return nil
}

// Count the stored bundles.
func (store *SQLiteStore) Count() uint64 {
	var n uint64
	if err := store.db.QueryRow("SELECT COUNT(*) FROM bundle_metadata").Scan(&n); err != nil {
		log.WithError(err).Warn("Counting bundles failed")
		return 0
	}
	return n
}

// AllIds of the stored bundles.
func (store *SQLiteStore) AllIds() (ids []string) {
	rows, err := store.db.Query("SELECT id FROM bundle_metadata ORDER BY id")
	if err != nil {
		log.WithError(err).Warn("Querying bundle IDs failed")
		return
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			log.WithError(err).Warn("Scanning a bundle ID failed")
			return
		}
		ids = append(ids, id)
	}
	return
}

// AllBundles returns every BundlePack.
func (store *SQLiteStore) AllBundles() (packs []BundlePack) {
	rows, err := store.db.Query(
		"SELECT id, source, destination, creation_time, size, constraints FROM bundle_metadata ORDER BY id")
	if err != nil {
		log.WithError(err).Warn("Querying bundle metadata failed")
		return
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		if pack, err := scanBundlePack(rows); err != nil {
			log.WithError(err).Warn("Scanning bundle metadata failed")
			return
		} else {
			packs = append(packs, pack)
		}
	}
	return
}

// HasItem checks for a bundle ID.
func (store *SQLiteStore) HasItem(id string) bool {
	var known bool
	if err := store.db.QueryRow("SELECT EXISTS (SELECT 1 FROM bundle_metadata WHERE id = ?)", id).Scan(&known); err != nil {
		return false
	}
	return known
}

// GetBundle decodes a stored bundle.
func (store *SQLiteStore) GetBundle(id string) (bpv7.Bundle, error) {
	var data []byte
	if err := store.db.QueryRow("SELECT data FROM bundles WHERE id = ?", id).Scan(&data); errors.Is(err, sql.ErrNoRows) {
		return bpv7.Bundle{}, ErrBundleNotFound
	} else if err != nil {
		return bpv7.Bundle{}, err
	}

	return bpv7.ParseBundleBytes(data)
}

// GetMetadata fetches a bundle's BundlePack.
func (store *SQLiteStore) GetMetadata(id string) (BundlePack, error) {
	row := store.db.QueryRow(
		"SELECT id, source, destination, creation_time, size, constraints FROM bundle_metadata WHERE id = ?", id)

	pack, err := scanBundlePack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return BundlePack{}, ErrBundleNotFound
	}
	return pack, err
}

// Close the underlying database.
func (store *SQLiteStore) Close() error {
	return store.db.Close()
}

// scanner is both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBundlePack(row scanner) (pack BundlePack, err error) {
	var source, destination string
	var constraints uint64

	if err = row.Scan(&pack.Id, &source, &destination, &pack.CreationTime, &pack.Size, &constraints); err != nil {
		return
	}

	if pack.Source, err = bpv7.ParseEndpointID(source); err != nil {
		err = fmt.Errorf("%w: source %q: %v", ErrInvalidData, source, err)
		return
	}
	if pack.Destination, err = bpv7.ParseEndpointID(destination); err != nil {
		err = fmt.Errorf("%w: destination %q: %v", ErrInvalidData, destination, err)
		return
	}

	pack.Constraints = Constraint(constraints)
	return
}
