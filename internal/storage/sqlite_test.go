package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "docs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *SQLiteStore, versioned bool) Node {
	t.Helper()
	node := Node{
		Workspace: "ws", Path: "/doc.docx", Title: "doc.docx",
		MediaType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Versioned: versioned, ModifiedAt: 1000, Modifier: "seed",
	}
	if err := s.Put(context.Background(), node, []byte("original")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	return node
}

func readContent(t *testing.T, s *SQLiteStore) string {
	t.Helper()
	rc, _, err := s.Content(context.Background(), "ws", "/doc.docx")
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return string(data)
}

func TestSQLiteStore_PutAndContent(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, false)

	if got := readContent(t, s); got != "original" {
		t.Fatalf("expected original content, got %q", got)
	}

	node, err := s.Node(context.Background(), "ws", "/doc.docx")
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if node.Title != "doc.docx" || node.Size != int64(len("original")) {
		t.Fatalf("unexpected node: %+v", node)
	}

	if _, err := s.Node(context.Background(), "ws", "/missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_LockSemantics(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, false)
	ctx := context.Background()

	token, err := s.Lock(ctx, "ws", "/doc.docx", "alice")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if token == "" {
		t.Fatalf("expected lock token")
	}

	if _, err := s.Lock(ctx, "ws", "/doc.docx", "bob"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	holder, locked, err := s.LockHolder(ctx, "ws", "/doc.docx")
	if err != nil || !locked {
		t.Fatalf("LockHolder: %v locked=%v", err, locked)
	}
	if holder.Owner != "alice" || holder.Token != token {
		t.Fatalf("unexpected holder: %+v", holder)
	}

	if err := s.Unlock(ctx, "ws", "/doc.docx", "wrong-token"); err == nil {
		t.Fatalf("expected unlock with wrong token to fail")
	}
	if err := s.Unlock(ctx, "ws", "/doc.docx", token); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if _, locked, _ := s.LockHolder(ctx, "ws", "/doc.docx"); locked {
		t.Fatalf("expected lock released")
	}

	if _, err := s.Lock(ctx, "ws", "/doc.docx", "bob"); err != nil {
		t.Fatalf("expected bob to lock after release: %v", err)
	}
}

func TestSQLiteStore_TxCommitAndRollback(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, false)
	ctx := context.Background()

	tx, err := s.Begin(ctx, "ws", "/doc.docx")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.SetContent(bytes.NewReader([]byte("updated")), ""); err != nil {
		t.Fatalf("SetContent: %v", err)
	}
	if err := tx.SetModified(2000, "alice"); err != nil {
		t.Fatalf("SetModified: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if got := readContent(t, s); got != "original" {
		t.Fatalf("expected rollback to keep original content, got %q", got)
	}

	tx, err = s.Begin(ctx, "ws", "/doc.docx")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.SetContent(bytes.NewReader([]byte("updated")), ""); err != nil {
		t.Fatalf("SetContent: %v", err)
	}
	if err := tx.SetModified(2000, "alice"); err != nil {
		t.Fatalf("SetModified: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := readContent(t, s); got != "updated" {
		t.Fatalf("expected committed content, got %q", got)
	}

	node, err := s.Node(ctx, "ws", "/doc.docx")
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if node.ModifiedAt != 2000 || node.Modifier != "alice" {
		t.Fatalf("unexpected modification metadata: %+v", node)
	}
}

func TestSQLiteStore_Versioning(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, true)
	ctx := context.Background()

	versionID, err := s.Checkin(ctx, "ws", "/doc.docx", "alice")
	if err != nil {
		t.Fatalf("Checkin: %v", err)
	}
	if versionID == "" {
		t.Fatalf("expected version id for versioned document")
	}
	if err := s.Checkout(ctx, "ws", "/doc.docx"); err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	n, err := s.Versions(ctx, "ws", "/doc.docx")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 version, got %d (%v)", n, err)
	}
}

func TestSQLiteStore_CheckinUnversionedIsNoop(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, false)

	versionID, err := s.Checkin(context.Background(), "ws", "/doc.docx", "alice")
	if err != nil {
		t.Fatalf("Checkin: %v", err)
	}
	if versionID != "" {
		t.Fatalf("expected no version for unversioned document")
	}
}
