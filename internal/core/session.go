package core

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	DefaultSessionExpireAfter     = 20
	DefaultSessionTranscriptLimit = 10
	DefaultSessionIdleTTL         = 24 * time.Hour
)

// Turn is one exchange, kept verbatim for the prompt.
type Turn struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

type Session struct {
	Transcript   []Turn
	LastProducts []Candidate
	MessageCount int
}

func (s Session) clone() Session {
	return Session{
		Transcript:   append([]Turn(nil), s.Transcript...),
		LastProducts: append([]Candidate(nil), s.LastProducts...),
		MessageCount: s.MessageCount,
	}
}

type sessionEntry struct {
	mu       sync.Mutex
	session  Session
	lastSeen time.Time
	// detached is set once the entry has left the map; holders re-fetch.
	detached bool
}

// SessionStore holds per-conversation state in process memory. Each
// conversation has its own lock; callers never hold it across network calls.
// Entries are removed when they expire or sit idle past the idle TTL.
type SessionStore struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry

	expireAfter     int
	transcriptLimit int
	idleTTL         time.Duration
	now             func() time.Time
}

func NewSessionStore(expireAfter, transcriptLimit int, idleTTL time.Duration) *SessionStore {
	if expireAfter <= 0 {
		expireAfter = DefaultSessionExpireAfter
	}
	if transcriptLimit <= 0 {
		transcriptLimit = DefaultSessionTranscriptLimit
	}
	if idleTTL <= 0 {
		idleTTL = DefaultSessionIdleTTL
	}
	return &SessionStore{
		entries:         make(map[string]*sessionEntry),
		expireAfter:     expireAfter,
		transcriptLimit: transcriptLimit,
		idleTTL:         idleTTL,
		now:             time.Now,
	}
}

// lock returns the conversation's live entry with its lock held, creating
// the entry on first access. The lock order is entry, then store.
func (s *SessionStore) lock(id string) *sessionEntry {
	for {
		s.mu.Lock()
		e, ok := s.entries[id]
		if !ok {
			e = &sessionEntry{lastSeen: s.now()}
			s.entries[id] = e
		}
		s.mu.Unlock()

		e.mu.Lock()
		if !e.detached {
			e.lastSeen = s.now()
			return e
		}
		e.mu.Unlock()
	}
}

// detachLocked removes e from the map. The caller holds e.mu.
func (s *SessionStore) detachLocked(id string, e *sessionEntry) {
	e.detached = true
	s.mu.Lock()
	if s.entries[id] == e {
		delete(s.entries, id)
	}
	s.mu.Unlock()
}

// Get returns a copy of the session. Unknown ids read as an empty session
// and are not stored.
func (s *SessionStore) Get(id string) Session {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return Session{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		return Session{}
	}
	return e.session.clone()
}

func (s *SessionStore) AppendTurn(id, utterance, reply string) {
	e := s.lock(id)
	defer e.mu.Unlock()
	s.appendLocked(&e.session, utterance, reply)
}

// SetLastProducts replaces the session's products wholesale.
func (s *SessionStore) SetLastProducts(id string, cands []Candidate) {
	e := s.lock(id)
	defer e.mu.Unlock()
	e.session.LastProducts = append([]Candidate(nil), cands...)
}

// IncrementAndMaybeExpire counts one inbound message and purges the session
// when the count reaches the expiry threshold. It reports whether a purge
// happened.
func (s *SessionStore) IncrementAndMaybeExpire(id string) bool {
	e := s.lock(id)
	defer e.mu.Unlock()
	return s.incrementLocked(id, e)
}

// TurnCommit is everything a finished turn writes back.
type TurnCommit struct {
	User            string
	Bot             string
	Products        []Candidate
	ReplaceProducts bool
}

// Commit appends the turn, optionally replaces the products and counts the
// message under a single lock acquisition. It reports whether the session
// expired as a result.
func (s *SessionStore) Commit(id string, c TurnCommit) bool {
	e := s.lock(id)
	defer e.mu.Unlock()
	s.appendLocked(&e.session, c.User, c.Bot)
	if c.ReplaceProducts {
		e.session.LastProducts = append([]Candidate(nil), c.Products...)
	}
	return s.incrementLocked(id, e)
}

// Len reports how many conversations are tracked.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// EvictIdle drops conversations untouched for longer than the idle TTL and
// returns how many went. Entries busy with a writer are skipped this round.
func (s *SessionStore) EvictIdle() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, e := range s.entries {
		if !e.mu.TryLock() {
			continue
		}
		if e.lastSeen.Before(cutoff) {
			e.detached = true
			delete(s.entries, id)
			evicted++
		}
		e.mu.Unlock()
	}
	return evicted
}

// RunJanitor evicts idle conversations every interval until ctx is done.
func (s *SessionStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(); n > 0 {
				log.Printf("Evicted %d idle sessions.", n)
			}
			liveSessions.Set(float64(s.Len()))
		}
	}
}

func (s *SessionStore) appendLocked(sess *Session, utterance, reply string) {
	sess.Transcript = append(sess.Transcript, Turn{User: utterance, Bot: reply})
	if over := len(sess.Transcript) - s.transcriptLimit; over > 0 {
		sess.Transcript = append([]Turn(nil), sess.Transcript[over:]...)
	}
}

func (s *SessionStore) incrementLocked(id string, e *sessionEntry) bool {
	e.session.MessageCount++
	if e.session.MessageCount < s.expireAfter {
		return false
	}
	e.session = Session{}
	s.detachLocked(id, e)
	sessionExpiriesTotal.Inc()
	log.Printf("Session %s expired after %d messages.", id, s.expireAfter)
	return true
}
