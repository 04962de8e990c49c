// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/lamnguyen92/vichat-tui/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound indicates the requested pair does not exist.
	ErrNotFound = errors.New("storage: pair not found")
)

// =============================================================================
// STORE
// =============================================================================

// Store persists message pairs to a local SQLite database. One row per
// pair, ordered by sequence number within the conversation.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS pairs (
	id          TEXT PRIMARY KEY,
	seq         INTEGER NOT NULL,
	user_text   TEXT NOT NULL,
	reply_text  TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL,
	attachments TEXT NOT NULL DEFAULT '[]',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pairs_seq ON pairs(seq);
`

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// SavePair upserts a pair at its position in the conversation.
func (s *Store) SavePair(seq int, snap model.Snapshot) error {
	attachments, err := json.Marshal(attachmentMeta(snap.Attachments))
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO pairs (id, seq, user_text, reply_text, state, attachments, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			seq = excluded.seq,
			user_text = excluded.user_text,
			reply_text = excluded.reply_text,
			state = excluded.state,
			attachments = excluded.attachments,
			updated_at = excluded.updated_at
	`, snap.ID, seq, snap.UserText, snap.ReplyText, string(snap.State),
		string(attachments), snap.CreatedAt.Unix(), snap.UpdatedAt.Unix())
	return err
}

// Rename retargets a stored pair to a new identifier. Saving under a
// provisional id and renaming on reconciliation keeps the row stable.
func (s *Store) Rename(oldID, newID string) error {
	res, err := s.db.Exec("UPDATE pairs SET id = ? WHERE id = ?", newID, oldID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAfter removes every pair that appears after id in sequence
// order. Used when an edit or regeneration truncates downstream
// history.
func (s *Store) DeleteAfter(id string) error {
	var seq int
	err := s.db.QueryRow("SELECT seq FROM pairs WHERE id = ?", id).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	_, err = s.db.Exec("DELETE FROM pairs WHERE seq > ?", seq)
	return err
}

// Clear removes all stored pairs.
func (s *Store) Clear() error {
	_, err := s.db.Exec("DELETE FROM pairs")
	return err
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// StoredPair is a pair row loaded back from disk.
type StoredPair struct {
	Seq       int
	ID        string
	UserText  string
	ReplyText string
	State     model.ReplyState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Load returns all stored pairs in conversation order.
func (s *Store) Load() ([]StoredPair, error) {
	rows, err := s.db.Query(`
		SELECT id, seq, user_text, reply_text, state, created_at, updated_at
		FROM pairs ORDER BY seq ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredPair
	for rows.Next() {
		var p StoredPair
		var created, updated int64
		if err := rows.Scan(&p.ID, &p.Seq, &p.UserText, &p.ReplyText, &p.State, &created, &updated); err != nil {
			return nil, err
		}
		p.CreatedAt = time.Unix(created, 0)
		p.UpdatedAt = time.Unix(updated, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count returns the number of stored pairs.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM pairs").Scan(&n)
	return n, err
}

// =============================================================================
// HELPERS
// =============================================================================

// attachmentRef is what gets persisted for an attachment. File bytes
// are not stored, only enough to render the history.
type attachmentRef struct {
	Name string `json:"name"`
	MIME string `json:"mime"`
	Size int64  `json:"size"`
}

func attachmentMeta(atts []model.Attachment) []attachmentRef {
	refs := make([]attachmentRef, 0, len(atts))
	for _, a := range atts {
		refs = append(refs, attachmentRef{Name: a.Name, MIME: a.MIME, Size: a.Size()})
	}
	return refs
}
