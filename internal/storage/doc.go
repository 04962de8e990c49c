// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for vichat.
//
// Message pairs are saved to a local SQLite database as the
// conversation progresses, keyed by message id and ordered by sequence
// number. Provisional ids are renamed in place when the server assigns
// a real one, and truncation after an edit removes downstream rows.
//
// # Key Types
//
//   - Store: SQLite-backed pair store
//   - StoredPair: A pair row loaded back from disk
//
// # Usage
//
// Open the store and save a pair:
//
//	store, err := storage.Open(path)
//	err = store.SavePair(seq, pair.Snapshot())
//
// Load history on startup:
//
//	pairs, err := store.Load()
//
// # Storage Location
//
// The database lives at ~/.vichat/history.db by default.
package storage
