package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	workspace   TEXT NOT NULL,
	path        TEXT NOT NULL,
	title       TEXT NOT NULL,
	media_type  TEXT NOT NULL,
	content     BLOB NOT NULL,
	versioned   INTEGER NOT NULL DEFAULT 0,
	checked_out INTEGER NOT NULL DEFAULT 1,
	modified_at INTEGER NOT NULL,
	modifier    TEXT NOT NULL DEFAULT '',
	lock_owner  TEXT,
	lock_token  TEXT,
	PRIMARY KEY (workspace, path)
);
CREATE TABLE IF NOT EXISTS document_versions (
	id         TEXT PRIMARY KEY,
	workspace  TEXT NOT NULL,
	path       TEXT NOT NULL,
	content    BLOB NOT NULL,
	author     TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_versions_doc ON document_versions(workspace, path, created_at);
`

// SQLiteStore implements DocumentStore on a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put creates or replaces a document. Used by seeding and tests; the
// save pipeline goes through Begin.
func (s *SQLiteStore) Put(ctx context.Context, node Node, content []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO documents(workspace, path, title, media_type, content, versioned, checked_out, modified_at, modifier)
VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
ON CONFLICT(workspace, path) DO UPDATE SET
	title=excluded.title,
	media_type=excluded.media_type,
	content=excluded.content,
	versioned=excluded.versioned,
	modified_at=excluded.modified_at,
	modifier=excluded.modifier`,
		node.Workspace, node.Path, node.Title, node.MediaType, content,
		node.Versioned, node.ModifiedAt, node.Modifier)
	if err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Node(ctx context.Context, workspace, path string) (Node, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT title, media_type, versioned, modified_at, modifier, length(content)
FROM documents WHERE workspace=? AND path=?`, workspace, path)

	node := Node{Workspace: workspace, Path: path}
	err := row.Scan(&node.Title, &node.MediaType, &node.Versioned, &node.ModifiedAt, &node.Modifier, &node.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, ErrNotFound
	}
	if err != nil {
		return Node{}, fmt.Errorf("read document node: %w", err)
	}
	return node, nil
}

func (s *SQLiteStore) Content(ctx context.Context, workspace, path string) (io.ReadCloser, string, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT content, media_type FROM documents WHERE workspace=? AND path=?`, workspace, path)

	var content []byte
	var mediaType string
	err := row.Scan(&content, &mediaType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("read document content: %w", err)
	}
	return io.NopCloser(bytes.NewReader(content)), mediaType, nil
}

func (s *SQLiteStore) Lock(ctx context.Context, workspace, path, owner string) (string, error) {
	token := uuid.NewString()
	res, err := s.db.ExecContext(ctx, `
UPDATE documents SET lock_owner=?, lock_token=?
WHERE workspace=? AND path=? AND lock_owner IS NULL`, owner, token, workspace, path)
	if err != nil {
		return "", fmt.Errorf("lock document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("lock document: %w", err)
	}
	if n == 1 {
		return token, nil
	}

	if _, err := s.Node(ctx, workspace, path); err != nil {
		return "", err
	}
	return "", ErrLocked
}

func (s *SQLiteStore) LockHolder(ctx context.Context, workspace, path string) (LockInfo, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT lock_owner, lock_token FROM documents WHERE workspace=? AND path=?`, workspace, path)

	var owner, token sql.NullString
	err := row.Scan(&owner, &token)
	if errors.Is(err, sql.ErrNoRows) {
		return LockInfo{}, false, ErrNotFound
	}
	if err != nil {
		return LockInfo{}, false, fmt.Errorf("read lock holder: %w", err)
	}
	if !owner.Valid {
		return LockInfo{}, false, nil
	}
	return LockInfo{Owner: owner.String, Token: token.String}, true, nil
}

func (s *SQLiteStore) Unlock(ctx context.Context, workspace, path, token string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE documents SET lock_owner=NULL, lock_token=NULL
WHERE workspace=? AND path=? AND lock_token=?`, workspace, path, token)
	if err != nil {
		return fmt.Errorf("unlock document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unlock document: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("unlock document: token does not hold the lock")
	}
	return nil
}

func (s *SQLiteStore) Checkout(ctx context.Context, workspace, path string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE documents SET checked_out=1 WHERE workspace=? AND path=? AND versioned=1`, workspace, path)
	if err != nil {
		return fmt.Errorf("checkout document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Checkin(ctx context.Context, workspace, path, author string) (string, error) {
	node, err := s.Node(ctx, workspace, path)
	if err != nil {
		return "", err
	}
	if !node.Versioned {
		return "", nil
	}

	versionID := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO document_versions(id, workspace, path, content, author, created_at)
SELECT ?, workspace, path, content, ?, modified_at FROM documents WHERE workspace=? AND path=?`,
		versionID, author, workspace, path)
	if err != nil {
		return "", fmt.Errorf("checkin document: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
UPDATE documents SET checked_out=0 WHERE workspace=? AND path=?`, workspace, path); err != nil {
		return "", fmt.Errorf("checkin document: %w", err)
	}
	return versionID, nil
}

func (s *SQLiteStore) Versions(ctx context.Context, workspace, path string) (int, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT count(*) FROM document_versions WHERE workspace=? AND path=?`, workspace, path)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count versions: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Begin(ctx context.Context, workspace, path string) (Tx, error) {
	if _, err := s.Node(ctx, workspace, path); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin document tx: %w", err)
	}
	return &sqliteTx{tx: tx, ctx: ctx, workspace: workspace, path: path}, nil
}

type sqliteTx struct {
	tx        *sql.Tx
	ctx       context.Context
	workspace string
	path      string
}

func (t *sqliteTx) SetContent(data io.Reader, mediaType string) error {
	content, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read content stream: %w", err)
	}
	if mediaType == "" {
		_, err = t.tx.ExecContext(t.ctx, `
UPDATE documents SET content=? WHERE workspace=? AND path=?`, content, t.workspace, t.path)
	} else {
		_, err = t.tx.ExecContext(t.ctx, `
UPDATE documents SET content=?, media_type=? WHERE workspace=? AND path=?`, content, mediaType, t.workspace, t.path)
	}
	if err != nil {
		return fmt.Errorf("stage content: %w", err)
	}
	return nil
}

func (t *sqliteTx) SetModified(modifiedAt int64, modifier string) error {
	_, err := t.tx.ExecContext(t.ctx, `
UPDATE documents SET modified_at=?, modifier=? WHERE workspace=? AND path=?`, modifiedAt, modifier, t.workspace, t.path)
	if err != nil {
		return fmt.Errorf("stage modification metadata: %w", err)
	}
	return nil
}

func (t *sqliteTx) Commit() error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback() error { return t.tx.Rollback() }
