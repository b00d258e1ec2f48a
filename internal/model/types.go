package model

// SessionState is the lifecycle state of one (document, user) editing pairing.
type SessionState string

const (
	StateCreated SessionState = "created"
	StateOpen    SessionState = "open"
	StateClosing SessionState = "closing"
	StateClosed  SessionState = "closed"
)

// User is a resolved portal identity.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Lang      string
}

func (u User) DisplayName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.ID
	}
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// SessionRecord holds the editing state for one user on one document.
// Identity fields (workspace, path, key, user, document metadata) never
// change after creation; only lifecycle flags and per-user sub-state do.
// All mutation happens under the owning registry entry's lock.
type SessionRecord struct {
	Workspace string `json:"workspace"`
	Path      string `json:"path"`
	Key       string `json:"key"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	FileType  string `json:"fileType"`
	DocType   string `json:"docType"`
	Title     string `json:"title"`

	State    SessionState `json:"state"`
	Error    string       `json:"error,omitempty"`
	OpenedAt int64        `json:"openedAt,omitempty"`
	ClosedAt int64        `json:"closedAt,omitempty"`

	LastModified  int64  `json:"lastModified,omitempty"`
	LastSaved     int64  `json:"lastSaved,omitempty"`
	LastLinkSaved int64  `json:"lastLinkSaved,omitempty"`
	DownloadLink  string `json:"downloadLink,omitempty"`

	ContentURL  string `json:"contentUrl"`
	CallbackURL string `json:"callbackUrl"`

	// LockToken is per-node transient state: it crosses storage sessions
	// on this node only and is excluded from the replicated form.
	LockToken string `json:"-"`
}

// Fingerprint identifies the document independent of any editing session.
func (r *SessionRecord) Fingerprint() string {
	return Fingerprint(r.Workspace, r.Path)
}

func Fingerprint(workspace, path string) string {
	return workspace + ":" + path
}

// ForUser copies the record's document identity for another user joining
// the same document. The copy starts in the created state with empty
// per-user sub-state; content and callback URLs are reassigned by the
// caller for the new user.
func (r *SessionRecord) ForUser(user User) *SessionRecord {
	return &SessionRecord{
		Workspace: r.Workspace,
		Path:      r.Path,
		Key:       r.Key,
		UserID:    user.ID,
		UserName:  user.DisplayName(),
		FileType:  r.FileType,
		DocType:   r.DocType,
		Title:     r.Title,
		State:     StateCreated,
	}
}

func (r *SessionRecord) IsCreated() bool { return r.State == StateCreated }
func (r *SessionRecord) IsOpen() bool    { return r.State == StateOpen }
func (r *SessionRecord) IsClosing() bool { return r.State == StateClosing }
func (r *SessionRecord) IsClosed() bool  { return r.State == StateClosed }

// MarkOpen transitions the record to open. Valid from created and closed
// (a closed editor can be re-opened for co-editing).
func (r *SessionRecord) MarkOpen(nowMillis int64) {
	r.State = StateOpen
	r.OpenedAt = nowMillis
}

func (r *SessionRecord) MarkClosing() {
	r.State = StateClosing
}

func (r *SessionRecord) MarkClosed(nowMillis int64) {
	r.State = StateClosed
	r.ClosedAt = nowMillis
}

// StatusReport is the callback payload sent by the document editing
// server. Consumed once per callback; never persisted.
type StatusReport struct {
	Key      string   `json:"key"`
	Status   int      `json:"status"`
	URL      string   `json:"url,omitempty"`
	Users    []string `json:"users,omitempty"`
	Error    int64    `json:"error,omitempty"`
	Userdata Userdata `json:"userdata,omitempty"`
}

// Userdata is opaque user-supplied metadata echoed back by the editing
// server with a status callback.
type Userdata struct {
	UserID     string `json:"userId,omitempty"`
	Comment    string `json:"comment,omitempty"`
	ForceSaved bool   `json:"forcesaved,omitempty"`
	CoEdited   bool   `json:"coEdited,omitempty"`
}

// ChangeState answers a client's "is my document saved yet" query.
type ChangeState struct {
	Saved bool     `json:"saved"`
	Error string   `json:"error,omitempty"`
	Users []string `json:"users"`
}

// EditorConfig is the serializable configuration returned to a client
// requesting an editor: where the editor lives, what document it edits,
// and the per-user content/callback URLs plus the signed token binding
// document, user and document type.
type EditorConfig struct {
	DocumentserverURL string `json:"documentserverUrl"`
	Workspace         string `json:"workspace"`
	Path              string `json:"path"`
	Key               string `json:"key"`
	DocType           string `json:"docType"`
	FileType          string `json:"fileType"`
	Title             string `json:"title"`
	UserID            string `json:"userId"`
	UserName          string `json:"userName"`
	Mode              string `json:"mode"`
	Lang              string `json:"lang"`
	ContentURL        string `json:"contentUrl"`
	CallbackURL       string `json:"callbackUrl"`
	Token             string `json:"token"`
	CreatedAt         int64  `json:"createdAt"`
}
