package storage

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrLocked means another owner holds the exclusive lock.
	ErrLocked = errors.New("document locked")
)

// Node is a stored document's metadata.
type Node struct {
	Workspace  string
	Path       string
	Title      string
	MediaType  string
	Versioned  bool
	ModifiedAt int64
	Modifier   string
	Size       int64
}

// LockInfo describes the current holder of a document's exclusive lock.
type LockInfo struct {
	Owner string
	Token string
}

// DocumentStore is the opaque node store the save pipeline drives. Write
// operations between Begin and Commit are staged and discarded by
// Rollback.
type DocumentStore interface {
	Node(ctx context.Context, workspace, path string) (Node, error)
	Content(ctx context.Context, workspace, path string) (io.ReadCloser, string, error)

	// Lock acquires the exclusive lock for owner, returning a lock token.
	// Returns ErrLocked while another owner holds it.
	Lock(ctx context.Context, workspace, path, owner string) (string, error)
	LockHolder(ctx context.Context, workspace, path string) (LockInfo, bool, error)
	Unlock(ctx context.Context, workspace, path, token string) error

	// Checkout makes a versioned document writable. No-op for
	// unversioned documents.
	Checkout(ctx context.Context, workspace, path string) error
	// Checkin snapshots the current content as a new version and returns
	// the version id.
	Checkin(ctx context.Context, workspace, path, author string) (string, error)

	Begin(ctx context.Context, workspace, path string) (Tx, error)
}

// Tx stages content and metadata changes for one document.
type Tx interface {
	SetContent(data io.Reader, mediaType string) error
	SetModified(modifiedAt int64, modifier string) error
	Commit() error
	Rollback() error
}
