package realtime

import (
	"sync"

	"github.com/rs/zerolog"
)

// Identity is who a session belongs to, as supplied by the auth boundary at
// registration time. The realtime layer trusts it and never re-validates.
type Identity struct {
	UserID string
	Name   string
}

// Conn is a session's outbound frame sink. Implementations serialize their
// own writes so frames leave in submission order, and Send must fail fast
// rather than block when the peer cannot keep up.
type Conn interface {
	Send(payload []byte) error
	Close()
}

// Session is one live client connection to this instance. The connection
// handle is owned exclusively by the registry entry.
type Session struct {
	ID         string
	DocumentID string
	Identity   Identity
	conn       Conn
}

// Participant is the externally visible slice of a session, returned by
// presence queries.
type Participant struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
}

// Registry tracks every connection held by this instance, keyed by
// (document id, session id). Documents are independent: operations on one
// never contend with another, and a document with no sessions left is
// dropped from the table entirely.
type Registry struct {
	log  zerolog.Logger
	docs sync.Map // document id -> *documentSessions
}

type documentSessions struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	// dead marks a set that was removed from the registry after its last
	// session left. A concurrent Register that loaded it must retry.
	dead bool
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{log: log.With().Str("component", "registry").Logger()}
}

// Register inserts a session for (documentID, sessionID). A prior session
// under the same key is replaced, last writer wins, and its handle is
// closed; clients that reconnect with the same session id take over
// silently rather than getting an error.
func (r *Registry) Register(documentID, sessionID string, conn Conn, identity Identity) *Session {
	sess := &Session{
		ID:         sessionID,
		DocumentID: documentID,
		Identity:   identity,
		conn:       conn,
	}
	for {
		v, _ := r.docs.LoadOrStore(documentID, &documentSessions{sessions: map[string]*Session{}})
		ds := v.(*documentSessions)
		ds.mu.Lock()
		if ds.dead {
			ds.mu.Unlock()
			continue
		}
		prev := ds.sessions[sessionID]
		ds.sessions[sessionID] = sess
		ds.mu.Unlock()
		if prev != nil {
			r.log.Info().
				Str("document_id", documentID).
				Str("session_id", sessionID).
				Msg("session re-registered, replacing previous connection")
			prev.conn.Close()
		}
		return sess
	}
}

// Unregister removes the session if present and shuts down its connection
// handle. It reports whether the session was still registered, so callers
// know if a leave event still needs to be produced. Absent sessions are a
// no-op.
func (r *Registry) Unregister(documentID, sessionID string) bool {
	v, ok := r.docs.Load(documentID)
	if !ok {
		return false
	}
	ds := v.(*documentSessions)
	ds.mu.Lock()
	sess, ok := ds.sessions[sessionID]
	if ok {
		delete(ds.sessions, sessionID)
		if len(ds.sessions) == 0 {
			ds.dead = true
			r.docs.Delete(documentID)
		}
	}
	ds.mu.Unlock()
	if ok {
		sess.conn.Close()
	}
	return ok
}

// Broadcast delivers payload to every session registered under documentID
// except excludeSessionID (empty string excludes nobody). A failing
// recipient is logged and skipped; it neither aborts delivery to the rest
// nor unregisters the recipient, which only happens through connection
// close signaling.
func (r *Registry) Broadcast(documentID, excludeSessionID string, payload []byte) {
	v, ok := r.docs.Load(documentID)
	if !ok {
		return
	}
	ds := v.(*documentSessions)
	ds.mu.RLock()
	targets := make([]*Session, 0, len(ds.sessions))
	for id, sess := range ds.sessions {
		if id == excludeSessionID {
			continue
		}
		targets = append(targets, sess)
	}
	ds.mu.RUnlock()
	for _, sess := range targets {
		if err := sess.conn.Send(payload); err != nil {
			r.log.Warn().
				Err(err).
				Str("document_id", documentID).
				Str("session_id", sess.ID).
				Msg("dropping frame for session")
		}
	}
}

// SessionCount returns the number of sessions currently registered under
// documentID.
func (r *Registry) SessionCount(documentID string) int {
	v, ok := r.docs.Load(documentID)
	if !ok {
		return 0
	}
	ds := v.(*documentSessions)
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return len(ds.sessions)
}

// LookupIdentity finds the identity registered for sessionID in any
// document. A session id lives in at most one document's set at a time.
func (r *Registry) LookupIdentity(sessionID string) (Identity, bool) {
	var identity Identity
	var found bool
	r.docs.Range(func(_, v any) bool {
		ds := v.(*documentSessions)
		ds.mu.RLock()
		sess, ok := ds.sessions[sessionID]
		ds.mu.RUnlock()
		if ok {
			identity = sess.Identity
			found = true
			return false
		}
		return true
	})
	return identity, found
}

// Participants lists the sessions registered under documentID.
func (r *Registry) Participants(documentID string) []Participant {
	v, ok := r.docs.Load(documentID)
	if !ok {
		return nil
	}
	ds := v.(*documentSessions)
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	out := make([]Participant, 0, len(ds.sessions))
	for _, sess := range ds.sessions {
		out = append(out, Participant{
			SessionID: sess.ID,
			UserID:    sess.Identity.UserID,
			UserName:  sess.Identity.Name,
		})
	}
	return out
}

// Documents lists the document ids that currently have at least one
// session on this instance.
func (r *Registry) Documents() []string {
	var ids []string
	r.docs.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	return ids
}
