package services

import (
	"log"
	"sync"
	"time"

	"phishguard/internal/reading"
)

// LiveSession is a reading session driven over one WebSocket connection
type LiveSession struct {
	ID         string
	TrackingID string
	Collector  *reading.Collector
	StartedAt  time.Time

	// Close tears down the underlying connection
	Close func()

	mu           sync.Mutex
	lastActivity time.Time
}

// Touch marks the session as active
func (s *LiveSession) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// LastActivity returns when the session last received an event
func (s *LiveSession) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// SessionManager manages all live reading sessions
type SessionManager struct {
	sessions map[string]*LiveSession
	mutex    sync.RWMutex
}

// NewSessionManager creates a new session manager
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*LiveSession),
	}
}

// Add registers a session
func (sm *SessionManager) Add(s *LiveSession) {
	if s.LastActivity().IsZero() {
		s.Touch(s.StartedAt)
	}

	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.sessions[s.ID] = s
	log.Printf("✅ [SESSIONS] Reading session added: %s tracking=%s (Total: %d)", s.ID, s.TrackingID, len(sm.sessions))
}

// Remove unregisters a session and returns it
func (sm *SessionManager) Remove(id string) (*LiveSession, bool) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	s, exists := sm.sessions[id]
	if exists {
		delete(sm.sessions, id)
		log.Printf("❌ [SESSIONS] Reading session removed: %s (Total: %d)", id, len(sm.sessions))
	}
	return s, exists
}

// Get retrieves a session by ID
func (sm *SessionManager) Get(id string) (*LiveSession, bool) {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	s, exists := sm.sessions[id]
	return s, exists
}

// Count returns the number of live sessions
func (sm *SessionManager) Count() int {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return len(sm.sessions)
}

// GetAll returns all live sessions
func (sm *SessionManager) GetAll() []*LiveSession {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	sessions := make([]*LiveSession, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Idle returns sessions with no activity since cutoff
func (sm *SessionManager) Idle(cutoff time.Time) []*LiveSession {
	var idle []*LiveSession
	for _, s := range sm.GetAll() {
		if s.LastActivity().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	return idle
}

// SetPolicy swaps the evaluation policy on every live collector
func (sm *SessionManager) SetPolicy(p reading.Policy) {
	for _, s := range sm.GetAll() {
		if s.Collector != nil {
			s.Collector.SetPolicy(p)
		}
	}
}
