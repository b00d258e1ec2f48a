package editor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"docbroker/internal/events"
	"docbroker/internal/model"
	"docbroker/internal/storage"
)

// saveLocked runs the fetch-lock-write-version-unlock sequence for one
// session record. Caller holds the entry lock. On failure the record
// keeps its prior state with the error recorded and an error event
// fired; storage changes staged before the failure are rolled back.
func (s *Service) saveLocked(ctx context.Context, rec *model.SessionRecord, status model.StatusReport) error {
	prevState := rec.State
	rec.MarkClosing()

	fail := func(err error) error {
		rec.State = prevState
		rec.Error = err.Error()
		s.events.Fire(events.Error, *rec)
		return err
	}

	editorID := lastEditor(status)
	if editorID == "" {
		return fail(fmt.Errorf("saving %s: no editing user in status: %w", rec.Fingerprint(), ErrUserNotFound))
	}
	user, err := s.users.Find(ctx, editorID)
	if err != nil {
		return fail(fmt.Errorf("saving %s: resolve user %s: %w", rec.Fingerprint(), editorID, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, status.URL, nil)
	if err != nil {
		return fail(fmt.Errorf("parsing content URL %s: %w", status.URL, err))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fail(fmt.Errorf("reading content stream %s: %w", status.URL, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("reading content stream %s: status %d", status.URL, resp.StatusCode))
	}

	token, err := s.acquireLock(ctx, rec, user.ID)
	if err != nil {
		return fail(err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.store.Unlock(unlockCtx, rec.Workspace, rec.Path, token); err != nil {
			// keep the token: the lock is still held, a retried save
			// re-enters it instead of waiting out the attempt budget
			log.Printf("editor: unlocking edited document %s: %v", rec.Fingerprint(), err)
			return
		}
		rec.LockToken = ""
	}()

	node, err := s.store.Node(ctx, rec.Workspace, rec.Path)
	if err != nil {
		return fail(fmt.Errorf("saving %s: %w", rec.Fingerprint(), err))
	}
	if node.Versioned {
		if err := s.store.Checkout(ctx, rec.Workspace, rec.Path); err != nil {
			return fail(fmt.Errorf("checkout of %s: %w", rec.Fingerprint(), err))
		}
	}

	now := time.Now().UnixMilli()
	tx, err := s.store.Begin(ctx, rec.Workspace, rec.Path)
	if err != nil {
		return fail(fmt.Errorf("saving %s: %w", rec.Fingerprint(), err))
	}
	if err := tx.SetContent(resp.Body, resp.Header.Get("Content-Type")); err != nil {
		_ = tx.Rollback()
		return fail(fmt.Errorf("writing content of %s: %w", rec.Fingerprint(), err))
	}
	if err := tx.SetModified(now, user.ID); err != nil {
		_ = tx.Rollback()
		return fail(fmt.Errorf("updating metadata of %s: %w", rec.Fingerprint(), err))
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return fail(fmt.Errorf("committing change of %s: %w", rec.Fingerprint(), err))
	}

	if node.Versioned {
		// snapshot the committed change, then check out again so the
		// document stays editable
		if _, err := s.store.Checkin(ctx, rec.Workspace, rec.Path, user.ID); err != nil {
			return fail(fmt.Errorf("checkin of %s: %w", rec.Fingerprint(), err))
		}
		if err := s.store.Checkout(ctx, rec.Workspace, rec.Path); err != nil {
			return fail(fmt.Errorf("checkout of %s: %w", rec.Fingerprint(), err))
		}
	}

	rec.LastModified = now
	rec.LastSaved = now
	rec.LastLinkSaved = now
	rec.DownloadLink = status.URL
	rec.MarkClosed(now)
	s.events.Fire(events.Saved, *rec)
	return nil
}

// lastEditor resolves the acting identity of a save: the userdata's user
// when present, otherwise the first reported active user.
func lastEditor(status model.StatusReport) string {
	if status.Userdata.UserID != "" {
		return status.Userdata.UserID
	}
	if len(status.Users) > 0 {
		return status.Users[0]
	}
	return ""
}

// acquireLock polls for the exclusive document lock. A lock already held
// by the same owner with a known token is reused. The wait is bounded by
// the caller's deadline or, absent one, by the attempt budget.
func (s *Service) acquireLock(ctx context.Context, rec *model.SessionRecord, owner string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		budget := time.Duration(s.params.LockAttempts+1) * s.params.LockInterval
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	for attempt := 0; attempt < s.params.LockAttempts; attempt++ {
		token, err := s.store.Lock(ctx, rec.Workspace, rec.Path, owner)
		if err == nil {
			rec.LockToken = token
			return token, nil
		}
		if !errors.Is(err, storage.ErrLocked) {
			return "", fmt.Errorf("locking %s: %w", rec.Fingerprint(), err)
		}

		holder, locked, herr := s.store.LockHolder(ctx, rec.Workspace, rec.Path)
		if herr == nil && locked && holder.Owner == owner &&
			rec.LockToken != "" && holder.Token == rec.LockToken {
			// our own lock from an earlier attempt
			return rec.LockToken, nil
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %s: %v", ErrDocumentLocked, rec.Fingerprint(), ctx.Err())
		case <-time.After(s.params.LockInterval):
		}
	}
	return "", fmt.Errorf("%w: %s", ErrDocumentLocked, rec.Fingerprint())
}
