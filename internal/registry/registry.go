package registry

import (
	"errors"
	"sync"

	"docbroker/internal/model"
)

var (
	// ErrNotFound means no entry exists for the requested key or fingerprint.
	ErrNotFound = errors.New("editor not found")
	// ErrConflict means a join raced with the entry being closed; the
	// caller should retry the operation.
	ErrConflict = errors.New("cannot obtain configuration for already existing editor")
)

// Entry is the set of session records for one document. It is the single
// source of truth; the registry indexes the same pointer by document
// fingerprint and by document key. Methods with a Locked suffix require
// the caller to hold the entry lock.
type Entry struct {
	mu          sync.Mutex
	fingerprint string
	key         string
	members     map[string]*model.SessionRecord
}

func (e *Entry) Fingerprint() string { return e.fingerprint }
func (e *Entry) Key() string         { return e.key }

func (e *Entry) Lock()   { e.mu.Lock() }
func (e *Entry) Unlock() { e.mu.Unlock() }

// Member returns a copy of the record for userID.
func (e *Entry) Member(userID string) (model.SessionRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.members[userID]
	if !ok {
		return model.SessionRecord{}, false
	}
	return *rec, true
}

func (e *Entry) MemberLocked(userID string) (*model.SessionRecord, bool) {
	rec, ok := e.members[userID]
	return rec, ok
}

func (e *Entry) MembersLocked() []*model.SessionRecord {
	out := make([]*model.SessionRecord, 0, len(e.members))
	for _, rec := range e.members {
		out = append(out, rec)
	}
	return out
}

func (e *Entry) SizeLocked() int { return len(e.members) }

func (e *Entry) Size() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.members)
}

// anyMemberLocked returns an arbitrary member to clone for a join.
func (e *Entry) anyMemberLocked() (*model.SessionRecord, bool) {
	for _, rec := range e.members {
		return rec, true
	}
	return nil, false
}

// addLocked inserts rec if no record exists for its user and returns the
// surviving record. The loser of a racing join adopts the winner's record.
func (e *Entry) addLocked(rec *model.SessionRecord) *model.SessionRecord {
	if existing, ok := e.members[rec.UserID]; ok {
		return existing
	}
	e.members[rec.UserID] = rec
	return rec
}

// Snapshot is the serializable form of an entry, replicated across nodes.
// Only stable fields survive; in-process lock tokens do not.
type Snapshot struct {
	Fingerprint string                `json:"fingerprint"`
	Key         string                `json:"key"`
	Members     []model.SessionRecord `json:"members"`
}

func (e *Entry) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Entry) snapshotLocked() Snapshot {
	members := make([]model.SessionRecord, 0, len(e.members))
	for _, rec := range e.members {
		cp := *rec
		cp.LockToken = ""
		members = append(members, cp)
	}
	return Snapshot{Fingerprint: e.fingerprint, Key: e.key, Members: members}
}

// Replicator receives entry snapshots and removals for cache coherence in
// a clustered deployment.
type Replicator interface {
	Publish(Snapshot)
	Drop(fingerprint, key string)
}

type noopReplicator struct{}

func (noopReplicator) Publish(Snapshot)    {}
func (noopReplicator) Drop(string, string) {}

// Registry maps active documents to their session records, indexed by
// document fingerprint and by document key. Both indexes always point at
// the same Entry and are updated inside one critical section.
type Registry struct {
	mu            sync.RWMutex
	byFingerprint map[string]*Entry
	byKey         map[string]*Entry
	replicator    Replicator
}

type Options struct {
	Replicator Replicator
}

func New() *Registry {
	return NewWithOptions(Options{})
}

func NewWithOptions(opts Options) *Registry {
	rep := opts.Replicator
	if rep == nil {
		rep = noopReplicator{}
	}
	return &Registry{
		byFingerprint: make(map[string]*Entry),
		byKey:         make(map[string]*Entry),
		replicator:    rep,
	}
}

func (r *Registry) GetByFingerprint(fingerprint string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byFingerprint[fingerprint]
	return e, ok
}

func (r *Registry) GetByKey(key string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byKey[key]
	return e, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byFingerprint)
}

// Join adds userID to an existing entry for fingerprint, cloning an
// existing member via clone. Returns ErrNotFound when no entry exists.
func (r *Registry) Join(fingerprint, userID string,
	clone func(source *model.SessionRecord) (*model.SessionRecord, error),
) (*Entry, model.SessionRecord, bool, error) {
	e, ok := r.GetByFingerprint(fingerprint)
	if !ok {
		return nil, model.SessionRecord{}, false, ErrNotFound
	}
	rec, joined, err := r.join(e, userID, clone)
	return e, rec, joined, err
}

// CreateOrJoin returns the session record for userID on the document
// identified by fingerprint, creating the entry (via create) or joining
// an existing one (via clone). Entry creation is first-writer-wins: the
// losing creator joins the winner's entry. create and clone run outside
// the registry lock; a failing create leaves no partial entry.
func (r *Registry) CreateOrJoin(fingerprint, userID string,
	create func() (*model.SessionRecord, error),
	clone func(source *model.SessionRecord) (*model.SessionRecord, error),
) (*Entry, model.SessionRecord, bool, error) {

	if e, ok := r.GetByFingerprint(fingerprint); ok {
		rec, joined, err := r.join(e, userID, clone)
		return e, rec, joined, err
	}

	rec, err := create()
	if err != nil {
		return nil, model.SessionRecord{}, false, err
	}

	e := &Entry{
		fingerprint: fingerprint,
		key:         rec.Key,
		members:     map[string]*model.SessionRecord{userID: rec},
	}

	r.mu.Lock()
	if existing, ok := r.byFingerprint[fingerprint]; ok {
		// another creator won; discard ours and join theirs
		r.mu.Unlock()
		joinedRec, joined, err := r.join(existing, userID, clone)
		return existing, joinedRec, joined, err
	}
	r.byFingerprint[fingerprint] = e
	r.byKey[rec.Key] = e
	r.mu.Unlock()

	r.replicator.Publish(e.Snapshot())
	return e, *rec, true, nil
}

func (r *Registry) join(e *Entry, userID string,
	clone func(source *model.SessionRecord) (*model.SessionRecord, error),
) (model.SessionRecord, bool, error) {

	e.mu.Lock()
	if existing, ok := e.members[userID]; ok {
		rec := *existing
		e.mu.Unlock()
		return rec, false, nil
	}
	source, ok := e.anyMemberLocked()
	if !ok {
		// entry emptied by a concurrent close; client should retry
		e.mu.Unlock()
		return model.SessionRecord{}, false, ErrConflict
	}
	src := *source
	e.mu.Unlock()

	// clone may resolve identity, so it runs outside the entry lock
	rec, err := clone(&src)
	if err != nil {
		return model.SessionRecord{}, false, err
	}

	e.mu.Lock()
	survivor := e.addLocked(rec)
	joined := survivor == rec
	out := *survivor
	e.mu.Unlock()

	// the entry may have been removed while we cloned
	r.mu.RLock()
	still := r.byKey[e.key] == e
	r.mu.RUnlock()
	if !still {
		return model.SessionRecord{}, false, ErrConflict
	}

	if joined {
		r.replicator.Publish(e.Snapshot())
	}
	return out, joined, nil
}

// Remove deletes the entry from both indexes in one critical section.
func (r *Registry) Remove(e *Entry) {
	r.mu.Lock()
	if r.byFingerprint[e.fingerprint] == e {
		delete(r.byFingerprint, e.fingerprint)
	}
	if r.byKey[e.key] == e {
		delete(r.byKey, e.key)
	}
	r.mu.Unlock()

	r.replicator.Drop(e.fingerprint, e.key)
}

// Republish pushes the entry's current snapshot to the replicator, for
// callers that mutated member state and need cluster caches refreshed.
func (r *Registry) Republish(e *Entry) {
	r.replicator.Publish(e.Snapshot())
}

// RepublishLocked is Republish for callers already holding the entry lock.
func (r *Registry) RepublishLocked(e *Entry) {
	r.replicator.Publish(e.snapshotLocked())
}

// Clear drops all entries. Used on service shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byFingerprint = make(map[string]*Entry)
	r.byKey = make(map[string]*Entry)
}
