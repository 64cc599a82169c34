package backend

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/omochice/dialog-session/pkg/protocol"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS dialogs (
	uid     TEXT PRIMARY KEY,
	name    TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	is_own  INTEGER NOT NULL DEFAULT 0,
	is_read INTEGER NOT NULL DEFAULT 0,
	seq     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dialogs_seq ON dialogs(seq DESC);
`

// SQLiteStore is a Store persisted in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("sqlite store: db path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite store: create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open db: %w", err)
	}
	// One connection serializes the read-modify-write in Upsert.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	if _, err := s.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("sqlite store: set busy timeout: %w", err)
	}
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("sqlite store: create schema: %w", err)
	}
	return nil
}

// Close closes the underlying SQLite connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Page implements Store.
func (s *SQLiteStore) Page(ctx context.Context, offset, limit int) ([]protocol.Dialog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uid, name, message, is_own, is_read FROM dialogs ORDER BY seq DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: page: %w", err)
	}
	defer rows.Close()

	out := []protocol.Dialog{}
	for rows.Next() {
		var d protocol.Dialog
		if err := rows.Scan(&d.UID, &d.Name, &d.Message, &d.IsOwn, &d.IsRead); err != nil {
			return nil, fmt.Errorf("sqlite store: scan dialog: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: page: %w", err)
	}
	return out, nil
}

// Upsert implements Store.
func (s *SQLiteStore) Upsert(ctx context.Context, d protocol.Dialog) error {
	if d.UID == "" {
		return ErrInvalidUID
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO dialogs (uid, name, message, is_own, is_read, seq)
VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM dialogs))
ON CONFLICT(uid) DO UPDATE SET
	name = excluded.name,
	message = excluded.message,
	is_own = excluded.is_own,
	is_read = excluded.is_read,
	seq = excluded.seq`,
		d.UID, d.Name, d.Message, d.IsOwn, d.IsRead)
	if err != nil {
		return fmt.Errorf("sqlite store: upsert %s: %w", d.UID, err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, uids []string) (int, error) {
	if len(uids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(uids)), ",")
	args := make([]any, len(uids))
	for i, uid := range uids {
		args[i] = uid
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM dialogs WHERE uid IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite store: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite store: delete: %w", err)
	}
	return int(n), nil
}
