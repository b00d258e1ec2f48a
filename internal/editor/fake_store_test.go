package editor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"docbroker/internal/model"
	"docbroker/internal/storage"
)

// fakeStore is an in-memory DocumentStore with injectable failures.
type fakeStore struct {
	mu             sync.Mutex
	docs           map[string]*fakeDoc
	failSetContent bool
	failCommit     bool
	failUnlock     bool
	lockSeq        int
}

type fakeDoc struct {
	node       storage.Node
	content    []byte
	lockOwner  string
	lockToken  string
	versions   int
	checkedOut bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]*fakeDoc)}
}

func (f *fakeStore) put(node storage.Node, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[model.Fingerprint(node.Workspace, node.Path)] = &fakeDoc{
		node:       node,
		content:    append([]byte(nil), content...),
		checkedOut: true,
	}
}

func (f *fakeStore) doc(workspace, path string) (*fakeDoc, error) {
	d, ok := f.docs[model.Fingerprint(workspace, path)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) Node(ctx context.Context, workspace, path string) (storage.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.doc(workspace, path)
	if err != nil {
		return storage.Node{}, err
	}
	node := d.node
	node.Size = int64(len(d.content))
	return node, nil
}

func (f *fakeStore) Content(ctx context.Context, workspace, path string) (io.ReadCloser, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.doc(workspace, path)
	if err != nil {
		return nil, "", err
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), d.content...))), d.node.MediaType, nil
}

func (f *fakeStore) Lock(ctx context.Context, workspace, path, owner string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.doc(workspace, path)
	if err != nil {
		return "", err
	}
	if d.lockOwner != "" {
		return "", storage.ErrLocked
	}
	f.lockSeq++
	d.lockOwner = owner
	d.lockToken = fmt.Sprintf("tok-%d", f.lockSeq)
	return d.lockToken, nil
}

func (f *fakeStore) LockHolder(ctx context.Context, workspace, path string) (storage.LockInfo, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.doc(workspace, path)
	if err != nil {
		return storage.LockInfo{}, false, err
	}
	if d.lockOwner == "" {
		return storage.LockInfo{}, false, nil
	}
	return storage.LockInfo{Owner: d.lockOwner, Token: d.lockToken}, true, nil
}

func (f *fakeStore) Unlock(ctx context.Context, workspace, path, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUnlock {
		return fmt.Errorf("injected unlock failure")
	}
	d, err := f.doc(workspace, path)
	if err != nil {
		return err
	}
	if d.lockToken != token {
		return fmt.Errorf("token does not hold the lock")
	}
	d.lockOwner = ""
	d.lockToken = ""
	return nil
}

func (f *fakeStore) Checkout(ctx context.Context, workspace, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.doc(workspace, path)
	if err != nil {
		return err
	}
	if d.node.Versioned {
		d.checkedOut = true
	}
	return nil
}

func (f *fakeStore) Checkin(ctx context.Context, workspace, path, author string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.doc(workspace, path)
	if err != nil {
		return "", err
	}
	if !d.node.Versioned {
		return "", nil
	}
	d.versions++
	d.checkedOut = false
	return fmt.Sprintf("v%d", d.versions), nil
}

func (f *fakeStore) Begin(ctx context.Context, workspace, path string) (storage.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.doc(workspace, path); err != nil {
		return nil, err
	}
	return &fakeTx{store: f, workspace: workspace, path: path}, nil
}

type fakeTx struct {
	store      *fakeStore
	workspace  string
	path       string
	content    []byte
	hasContent bool
	modifiedAt int64
	modifier   string
	hasMeta    bool
}

func (t *fakeTx) SetContent(data io.Reader, mediaType string) error {
	if t.store.failSetContent {
		return fmt.Errorf("injected write failure")
	}
	content, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	t.content = content
	t.hasContent = true
	return nil
}

func (t *fakeTx) SetModified(modifiedAt int64, modifier string) error {
	t.modifiedAt = modifiedAt
	t.modifier = modifier
	t.hasMeta = true
	return nil
}

func (t *fakeTx) Commit() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.failCommit {
		return fmt.Errorf("injected commit failure")
	}
	d, err := t.store.doc(t.workspace, t.path)
	if err != nil {
		return err
	}
	if t.hasContent {
		d.content = t.content
	}
	if t.hasMeta {
		d.node.ModifiedAt = t.modifiedAt
		d.node.Modifier = t.modifier
	}
	return nil
}

func (t *fakeTx) Rollback() error { return nil }

func (f *fakeStore) contentOf(workspace, path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.doc(workspace, path)
	if err != nil {
		return ""
	}
	return string(d.content)
}

func (f *fakeStore) lockOwnerOf(workspace, path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.doc(workspace, path)
	if err != nil {
		return ""
	}
	return d.lockOwner
}

func (f *fakeStore) versionsOf(workspace, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.doc(workspace, path)
	if err != nil {
		return 0
	}
	return d.versions
}

func (f *fakeStore) lockAs(workspace, path, owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.docs[model.Fingerprint(workspace, path)]
	f.lockSeq++
	d.lockOwner = owner
	d.lockToken = fmt.Sprintf("tok-%d", f.lockSeq)
}
