package services

import (
	"log"
	"sync"
	"time"
)

// Session timeouts
const (
	SessionTTL    = 30 * time.Minute
	sweepInterval = 5 * time.Minute
)

// Mode identifies which conversation flow owns the session
type Mode string

const (
	ModeNone    Mode = "none"
	ModeLinking Mode = "linking"
	ModeManual  Mode = "manual"
	ModeNLP     Mode = "nlp"
)

// ManualStep is the current step of the manual entry wizard, in strict order
type ManualStep string

const (
	StepType        ManualStep = "type"
	StepCategory    ManualStep = "category"
	StepAmount      ManualStep = "amount"
	StepDescription ManualStep = "description"
	StepDate        ManualStep = "date"
	StepConfirm     ManualStep = "confirm"
)

// NLPStep is the current step of the free-text import flow
type NLPStep string

const (
	StepAwaitText NLPStep = "await_text"
	StepReview    NLPStep = "review"
)

// ManualState carries the wizard position and the draft being accumulated.
// Draft fields are only filled in forward step order; nothing reads a field
// before its step has completed.
type ManualState struct {
	Step  ManualStep
	Draft Draft
}

// NLPState carries the parsed candidate batch under review. Candidates are
// immutable once set; only Cursor and SavedCount move.
type NLPState struct {
	Step       NLPStep
	Candidates []ParsedTransaction
	Cursor     int
	SavedCount int
}

// LinkingState marks that the conversation is waiting for an account email
type LinkingState struct{}

// Session is the single piece of state for one conversation. Exactly one of
// the mode payloads is non-nil, matching Mode; ModeNone carries none.
type Session struct {
	ConversationID string
	Mode           Mode
	Linking        *LinkingState
	Manual         *ManualState
	NLP            *NLPState
	LastActivity   time.Time
}

// NewSession creates an idle session for a conversation
func NewSession(conversationID string) *Session {
	return &Session{
		ConversationID: conversationID,
		Mode:           ModeNone,
		LastActivity:   time.Now(),
	}
}

// EnterLinking switches the session into the linking flow
func (s *Session) EnterLinking() {
	s.Mode = ModeLinking
	s.Linking = &LinkingState{}
	s.Manual = nil
	s.NLP = nil
}

// EnterManual switches the session into the manual wizard at its first step
func (s *Session) EnterManual() {
	s.Mode = ModeManual
	s.Manual = &ManualState{Step: StepType}
	s.Linking = nil
	s.NLP = nil
}

// EnterNLP switches the session into the import flow, awaiting free text
func (s *Session) EnterNLP() {
	s.Mode = ModeNLP
	s.NLP = &NLPState{Step: StepAwaitText}
	s.Linking = nil
	s.Manual = nil
}

// Reset returns the session to idle and drops all flow state
func (s *Session) Reset() {
	s.Mode = ModeNone
	s.Linking = nil
	s.Manual = nil
	s.NLP = nil
}

type sessionEntry struct {
	mu   sync.Mutex
	sess *Session
}

// SessionManager keeps one session per conversation with TTL expiry.
// Operations on the same conversation are serialized by a per-entry lock so
// concurrent webhook deliveries never interleave a read-modify-write;
// different conversations never contend.
type SessionManager struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
	ttl     time.Duration
	stop    chan struct{}
	stopped sync.Once
}

// Singleton instance
var (
	sessionManagerInstance *SessionManager
	sessionManagerOnce     sync.Once
)

// NewSessionManager creates a session manager and starts the expiry sweep
func NewSessionManager() *SessionManager {
	sm := newSessionManager(SessionTTL)
	go sm.sweepExpiredSessions(sweepInterval)
	return sm
}

// newSessionManager creates a manager without starting the sweep (tests drive
// expiry explicitly)
func newSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		entries: make(map[string]*sessionEntry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
}

// GetSessionManager returns the singleton session manager instance
func GetSessionManager() *SessionManager {
	sessionManagerOnce.Do(func() {
		if sessionManagerInstance == nil {
			log.Println("Warning: SessionManager not initialized. Creating new instance.")
			sessionManagerInstance = NewSessionManager()
		}
	})
	return sessionManagerInstance
}

// SetSessionManager sets the global session manager instance (call from main.go)
func SetSessionManager(sm *SessionManager) {
	sessionManagerInstance = sm
}

// Stop terminates the background sweep
func (sm *SessionManager) Stop() {
	sm.stopped.Do(func() { close(sm.stop) })
}

// entry returns the lock-carrying entry for a conversation, creating it if
// needed. Callers that go on to lock the entry must use lockEntry instead;
// the sweep may delete an entry between this lookup and the entry lock.
func (sm *SessionManager) entry(conversationID string) *sessionEntry {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	e, ok := sm.entries[conversationID]
	if !ok {
		e = &sessionEntry{}
		sm.entries[conversationID] = e
	}
	return e
}

// lockEntry returns the conversation's entry with its lock held. After the
// lock is acquired the entry is re-checked against the map: the sweep may
// have reaped it in the window between lookup and lock, and a write landing
// on a reaped entry would silently vanish. A stale entry is discarded and
// the lookup retried. The sweep never blocks on entry locks, so taking the
// manager lock while holding an entry lock here cannot deadlock.
func (sm *SessionManager) lockEntry(conversationID string) *sessionEntry {
	for {
		e := sm.entry(conversationID)
		e.mu.Lock()

		sm.mu.Lock()
		live := sm.entries[conversationID] == e
		sm.mu.Unlock()
		if live {
			return e
		}
		e.mu.Unlock()
	}
}

func (sm *SessionManager) expired(sess *Session) bool {
	return sess != nil && time.Since(sess.LastActivity) > sm.ttl
}

// Do runs fn under the conversation's lock. fn receives the current session,
// or nil if none exists or it has expired (an expired session is deleted
// before fn runs). fn returns the session to keep; returning nil clears the
// conversation. LastActivity is refreshed on every kept session.
func (sm *SessionManager) Do(conversationID string, fn func(sess *Session) *Session) {
	e := sm.lockEntry(conversationID)
	defer e.mu.Unlock()

	sess := e.sess
	if sm.expired(sess) {
		sess = nil
	}

	next := fn(sess)
	if next != nil {
		next.LastActivity = time.Now()
	}
	e.sess = next
}

// GetSession retrieves the session for a conversation. An entry older than
// the TTL is deleted and reported as absent even if the sweep has not run.
func (sm *SessionManager) GetSession(conversationID string) (*Session, bool) {
	e := sm.lockEntry(conversationID)
	defer e.mu.Unlock()

	if e.sess == nil {
		return nil, false
	}
	if sm.expired(e.sess) {
		e.sess = nil
		return nil, false
	}

	e.sess.LastActivity = time.Now()
	return e.sess, true
}

// SetSession stores a session wholesale
func (sm *SessionManager) SetSession(conversationID string, sess *Session) {
	sm.Do(conversationID, func(_ *Session) *Session {
		return sess
	})
}

// UpdateSession applies mutate to an existing session under its lock and
// reports whether a live session was found. The read-modify-write is atomic
// with respect to other events on the same conversation.
func (sm *SessionManager) UpdateSession(conversationID string, mutate func(sess *Session)) bool {
	found := false
	sm.Do(conversationID, func(sess *Session) *Session {
		if sess == nil {
			return nil
		}
		found = true
		mutate(sess)
		return sess
	})
	return found
}

// ClearSession removes a conversation's session
func (sm *SessionManager) ClearSession(conversationID string) {
	sm.Do(conversationID, func(_ *Session) *Session {
		return nil
	})
}

// HasSession reports whether a live, unexpired session exists
func (sm *SessionManager) HasSession(conversationID string) bool {
	e := sm.lockEntry(conversationID)
	defer e.mu.Unlock()

	if e.sess == nil {
		return false
	}
	if sm.expired(e.sess) {
		e.sess = nil
		return false
	}
	return true
}

// ActiveSessions counts live sessions (for the health endpoint)
func (sm *SessionManager) ActiveSessions() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	count := 0
	for _, e := range sm.entries {
		if e.sess != nil && !sm.expired(e.sess) {
			count++
		}
	}
	return count
}

// sweepExpiredSessions proactively deletes stale entries so abandoned
// conversations do not grow memory between accesses
func (sm *SessionManager) sweepExpiredSessions(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-sm.stop:
			return
		case <-ticker.C:
			sm.sweepOnce()
		}
	}
}

// sweepOnce deletes expired entries. An entry whose lock is held by an
// in-flight update is skipped rather than raced; the next sweep or the lazy
// check on access will collect it.
func (sm *SessionManager) sweepOnce() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	removed := 0
	for id, e := range sm.entries {
		if !e.mu.TryLock() {
			continue
		}
		if e.sess == nil || sm.expired(e.sess) {
			delete(sm.entries, id)
			removed++
		}
		e.mu.Unlock()
	}

	if removed > 0 {
		log.Printf("Session sweep removed %d expired conversation(s)", removed)
	}
}
