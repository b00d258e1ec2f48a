package editor

import (
	"context"
	"log"
	"time"

	"docbroker/internal/events"
	"docbroker/internal/model"
	"docbroker/internal/registry"
)

// Status codes reported by the editing server.
const (
	// StatusUnknown: no document with the key could be found.
	StatusUnknown = 0
	// StatusEditing: the document is being edited.
	StatusEditing = 1
	// StatusReadyToSave: the last editor closed the document.
	StatusReadyToSave = 2
	// StatusSaveError: the editing server failed to save.
	StatusSaveError = 3
	// StatusClosedNoChanges: closed without modification.
	StatusClosedNoChanges = 4
)

const (
	errLastChangeSaved = "Error in editor. Last change was successfully saved"
	errNoChangesSaved  = "Error in editor. No changes saved"
	errStillEditing    = "Error in editor. Document still in editing state"
)

// UpdateStatus applies one status callback from the editing server to
// the session registry. Processing for a document key is serialized on
// the entry lock; the save pipeline runs inside that critical section so
// concurrent callbacks for the same document cannot interleave.
func (s *Service) UpdateStatus(ctx context.Context, userID string, status model.StatusReport) error {
	entry, ok := s.registry.GetByKey(status.Key)
	if !ok {
		return ErrKeyNotFound
	}

	entry.Lock()
	defer entry.Unlock()

	rec, ok := entry.MemberLocked(userID)
	if !ok {
		return ErrUserNotFound
	}

	switch status.Status {
	case StatusUnknown:
		// the editing server does not know the document: drop our records
		s.registry.Remove(entry)
		log.Printf("editor: document key %s unknown to editing server, dropped %s", status.Key, rec.Fingerprint())
		return ErrDocumentUnknown

	case StatusEditing:
		if s.syncUsersLocked(entry, status.Users) {
			s.registry.RepublishLocked(entry)
		}
		return nil

	case StatusReadyToSave:
		if err := s.saveLocked(ctx, rec, status); err != nil {
			return err
		}
		s.registry.Remove(entry)
		return nil

	case StatusSaveError:
		s.handleSaveErrorLocked(ctx, entry, rec, status)
		return nil

	case StatusClosedNoChanges:
		// sync first so leave events fire for everyone, then drop
		s.syncUsersLocked(entry, status.Users)
		s.registry.Remove(entry)
		return nil

	default:
		// tolerate unknown codes: the editing server retries with a
		// recognized one
		log.Printf("editor: unexpected status %d for key %s (%s)", status.Status, status.Key, rec.Fingerprint())
		return nil
	}
}

// handleSaveErrorLocked resolves a server-side save error. With at most
// one member left and a content URL available, the last change is saved
// as if the document were ready; without a URL nothing can be recovered.
// With several members left, resolution is deferred to a later callback.
func (s *Service) handleSaveErrorLocked(ctx context.Context, entry *registry.Entry, rec *model.SessionRecord, status model.StatusReport) {
	s.syncUsersLocked(entry, status.Users)

	if entry.SizeLocked() <= 1 {
		if status.URL != "" {
			if err := s.saveLocked(ctx, rec, status); err != nil {
				log.Printf("editor: save after editor error failed for %s: %v", rec.Fingerprint(), err)
				s.registry.RepublishLocked(entry)
				return
			}
			rec.Error = errLastChangeSaved
			log.Printf("editor: save error for key %s, last change recovered for %s", status.Key, rec.Fingerprint())
		} else {
			rec.Error = errNoChangesSaved
			log.Printf("editor: save error without changes URL for key %s (%s)", status.Key, rec.Fingerprint())
		}
	} else {
		// assume another member saves later
		rec.Error = errStillEditing
		log.Printf("editor: save error with several editors for key %s (%s)", status.Key, rec.Fingerprint())
	}

	s.events.Fire(events.Error, *rec)
	s.registry.RepublishLocked(entry)
}

// syncUsersLocked reconciles the editing server's view of active users
// with the entry's members, opening and closing records as needed.
// Reports whether any record changed state.
func (s *Service) syncUsersLocked(entry *registry.Entry, users []string) bool {
	active := make(map[string]struct{}, len(users))
	for _, u := range users {
		active[u] = struct{}{}
	}

	now := time.Now().UnixMilli()
	changed := false
	for _, rec := range entry.MembersLocked() {
		if _, editing := active[rec.UserID]; editing {
			if rec.IsCreated() || rec.IsClosed() {
				rec.MarkOpen(now)
				s.events.Fire(events.Joined, *rec)
				changed = true
			}
		} else if rec.IsOpen() || rec.IsClosing() {
			rec.MarkClosed(now)
			s.events.Fire(events.Left, *rec)
			changed = true
		}
	}
	return changed
}
