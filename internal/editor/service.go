package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"docbroker/internal/auth"
	"docbroker/internal/events"
	"docbroker/internal/model"
	"docbroker/internal/registry"
	"docbroker/internal/storage"
)

var (
	// ErrKeyNotFound means no active editing session references the key.
	ErrKeyNotFound = errors.New("file key not found")
	// ErrUserNotFound means the user has no session on the document, or
	// the user id could not be resolved.
	ErrUserNotFound = errors.New("user editor not found")
	// ErrDocumentUnknown means the editing server reported it does not
	// know the document; the session was discarded.
	ErrDocumentUnknown = errors.New("document unknown to editing server")
	// ErrDocumentLocked means the save pipeline exhausted its lock wait.
	ErrDocumentLocked = errors.New("document locked")
)

const (
	typeText         = "text"
	typeSpreadsheet  = "spreadsheet"
	typePresentation = "presentation"
)

// fileTypes maps file extensions to editor document types. Unknown
// extensions fall back to text.
var fileTypes = map[string]string{
	"docx": typeText,
	"doc":  typeText,
	"odt":  typeText,
	"txt":  typeText,
	"rtf":  typeText,
	"html": typeText,
	"htm":  typeText,
	"epub": typeText,
	"pdf":  typeText,
	"xlsx": typeSpreadsheet,
	"xls":  typeSpreadsheet,
	"ods":  typeSpreadsheet,
	"pptx": typePresentation,
	"ppt":  typePresentation,
	"ppsx": typePresentation,
	"odp":  typePresentation,
}

func fileTypeOf(title string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(title)), ".")
	if _, ok := fileTypes[ext]; ok {
		return ext
	}
	return ""
}

func documentType(fileType string) string {
	if t, ok := fileTypes[fileType]; ok {
		return t
	}
	return typeText
}

// Params configures the service from the deployment environment.
type Params struct {
	DocserverURL        string
	PlatformURL         string
	DocserverHostName   string
	DocserverAccessOnly bool
	LockAttempts        int
	LockInterval        time.Duration
}

// Service coordinates editing sessions between the portal document store
// and the external editing server: it owns the active-session registry,
// interprets status callbacks and runs the save pipeline.
type Service struct {
	registry *registry.Registry
	store    storage.DocumentStore
	events   *events.Dispatcher
	users    UserLookup
	tokens   auth.TokenConfig
	client   *http.Client
	params   Params
}

func New(reg *registry.Registry, store storage.DocumentStore, dispatcher *events.Dispatcher,
	users UserLookup, tokens auth.TokenConfig, params Params) *Service {

	if params.LockAttempts <= 0 {
		params.LockAttempts = 20
	}
	if params.LockInterval <= 0 {
		params.LockInterval = 250 * time.Millisecond
	}
	return &Service{
		registry: reg,
		store:    store,
		events:   dispatcher,
		users:    users,
		tokens:   tokens,
		client:   &http.Client{Timeout: 2 * time.Minute},
		params:   params,
	}
}

// Registry exposes the active-session registry for state queries.
func (s *Service) Registry() *registry.Registry { return s.registry }

// Stop drops all active sessions.
func (s *Service) Stop() {
	s.registry.Clear()
}

// CanDownloadBy reports whether the given host may fetch document
// content. With access-only mode enabled, only the editing server's host
// is allowed.
func (s *Service) CanDownloadBy(hostName string) bool {
	if s.params.DocserverAccessOnly {
		return s.params.DocserverHostName == hostName
	}
	return true
}

func (s *Service) contentURL(userID, key string) string {
	return fmt.Sprintf("%s/content/%s/%s", s.params.PlatformURL, userID, key)
}

func (s *Service) callbackURL(userID, key string) string {
	return fmt.Sprintf("%s/status/%s/%s", s.params.PlatformURL, userID, key)
}

func (s *Service) cloneFor(ctx context.Context, userID string) func(*model.SessionRecord) (*model.SessionRecord, error) {
	return func(source *model.SessionRecord) (*model.SessionRecord, error) {
		user, err := s.users.Find(ctx, userID)
		if err != nil {
			return nil, err
		}
		rec := source.ForUser(user)
		rec.ContentURL = s.contentURL(user.ID, rec.Key)
		rec.CallbackURL = s.callbackURL(user.ID, rec.Key)
		return rec, nil
	}
}

// CreateEditor returns the editor configuration for userID on the given
// document, creating the editing session or joining an existing one.
func (s *Service) CreateEditor(ctx context.Context, userID, workspace, docPath string) (model.EditorConfig, error) {
	node, err := s.store.Node(ctx, workspace, docPath)
	if err != nil {
		return model.EditorConfig{}, fmt.Errorf("document %s: %w", model.Fingerprint(workspace, docPath), err)
	}

	fingerprint := model.Fingerprint(workspace, docPath)
	var newKey string
	create := func() (*model.SessionRecord, error) {
		user, err := s.users.Find(ctx, userID)
		if err != nil {
			return nil, err
		}
		key := uuid.NewString()
		newKey = key
		fileType := fileTypeOf(node.Title)
		rec := &model.SessionRecord{
			Workspace: workspace,
			Path:      docPath,
			Key:       key,
			UserID:    user.ID,
			UserName:  user.DisplayName(),
			FileType:  fileType,
			DocType:   documentType(fileType),
			Title:     node.Title,
			State:     model.StateCreated,
		}
		rec.ContentURL = s.contentURL(user.ID, key)
		rec.CallbackURL = s.callbackURL(user.ID, key)
		return rec, nil
	}

	_, rec, inserted, err := s.registry.CreateOrJoin(fingerprint, userID, create, s.cloneFor(ctx, userID))
	if err != nil {
		return model.EditorConfig{}, err
	}

	if inserted && rec.Key == newKey {
		s.events.Fire(events.Created, rec)
	} else {
		s.events.Fire(events.Get, rec)
	}
	return s.editorConfig(rec)
}

// GetEditor returns the editor configuration for userID on an already
// active document, joining it for co-editing when the user has no
// session yet. Returns ErrNotFound from the registry when the document
// is not being edited.
func (s *Service) GetEditor(ctx context.Context, userID, workspace, docPath string) (model.EditorConfig, error) {
	fingerprint := model.Fingerprint(workspace, docPath)
	_, rec, _, err := s.registry.Join(fingerprint, userID, s.cloneFor(ctx, userID))
	if err != nil {
		return model.EditorConfig{}, err
	}
	s.events.Fire(events.Get, rec)
	return s.editorConfig(rec)
}

func (s *Service) editorConfig(rec model.SessionRecord) (model.EditorConfig, error) {
	token, err := auth.CreateDocumentToken(rec.UserID, rec.Key, rec.DocType, s.tokens)
	if err != nil {
		return model.EditorConfig{}, fmt.Errorf("sign document token: %w", err)
	}
	return model.EditorConfig{
		DocumentserverURL: s.params.DocserverURL,
		Workspace:         rec.Workspace,
		Path:              rec.Path,
		Key:               rec.Key,
		DocType:           rec.DocType,
		FileType:          rec.FileType,
		Title:             rec.Title,
		UserID:            rec.UserID,
		UserName:          rec.UserName,
		Mode:              "edit",
		Lang:              "en",
		ContentURL:        rec.ContentURL,
		CallbackURL:       rec.CallbackURL,
		Token:             token,
		CreatedAt:         time.Now().UnixMilli(),
	}, nil
}

// DocumentContent is a document's bytes plus declared media type.
type DocumentContent struct {
	MediaType string
	Data      io.ReadCloser
}

// GetContent streams the current document content for an active editing
// session.
func (s *Service) GetContent(ctx context.Context, userID, key string) (DocumentContent, error) {
	entry, ok := s.registry.GetByKey(key)
	if !ok {
		return DocumentContent{}, ErrKeyNotFound
	}
	rec, ok := entry.Member(userID)
	if !ok {
		return DocumentContent{}, ErrUserNotFound
	}
	if _, err := s.users.Find(ctx, userID); err != nil {
		return DocumentContent{}, err
	}

	data, mediaType, err := s.store.Content(ctx, rec.Workspace, rec.Path)
	if err != nil {
		return DocumentContent{}, fmt.Errorf("content of %s: %w", rec.Fingerprint(), err)
	}
	return DocumentContent{MediaType: mediaType, Data: data}, nil
}

// GetState reports whether the document was already saved, the current
// error if any, and the users still editing.
func (s *Service) GetState(userID, key string) (model.ChangeState, error) {
	entry, ok := s.registry.GetByKey(key)
	if !ok {
		// not found means no active session, thus already saved
		return model.ChangeState{Saved: true, Users: []string{}}, nil
	}

	entry.Lock()
	defer entry.Unlock()
	rec, ok := entry.MemberLocked(userID)
	if !ok {
		return model.ChangeState{}, ErrUserNotFound
	}
	return model.ChangeState{
		Saved: false,
		Error: rec.Error,
		Users: s.activeUsersLocked(entry),
	}, nil
}

// activeUsersLocked lists members currently editing: created and closed
// records are excluded.
func (s *Service) activeUsersLocked(entry *registry.Entry) []string {
	users := make([]string, 0, entry.SizeLocked())
	for _, rec := range entry.MembersLocked() {
		if rec.IsCreated() || rec.IsClosed() {
			continue
		}
		users = append(users, rec.UserID)
	}
	return users
}
