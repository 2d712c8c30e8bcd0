// Package identity tracks per-identity OTP attempts and sessions. Identities
// are always keyed by their SHA-256 hex digest; the raw identifier never
// enters the store.
package identity

import (
	"log"
	"sync"
	"time"

	"github.com/novascore/engine/internal/cryptoutil"
)

const (
	// DefaultMaxAttempts is the number of failed verifies before lockout.
	DefaultMaxAttempts = 3
	// DefaultLockout is the wall-clock lockout window. A process restart
	// clears it, which the threat model accepts.
	DefaultLockout = 5 * time.Minute
)

// Session is the single OTP session an identity may hold. It is replaced on
// each new initiate and consumed on successful verify.
type Session struct {
	TxnID     string
	CreatedAt time.Time
}

type attemptRecord struct {
	failedCount int
	lockedUntil time.Time
}

// Store is the in-process rate-limited identity store. Every operation is a
// single critical section; no observer sees a half-updated record.
type Store struct {
	mu       sync.Mutex
	attempts map[string]*attemptRecord
	sessions map[string]*Session

	maxAttempts int
	lockout     time.Duration
	now         func() time.Time
	logger      *log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMaxAttempts overrides the failed-attempt threshold.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithLockout overrides the lockout window.
func WithLockout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockout = d
		}
	}
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an identity store with the default limits.
func NewStore(opts ...Option) *Store {
	s := &Store{
		attempts:    make(map[string]*attemptRecord),
		sessions:    make(map[string]*Session),
		maxAttempts: DefaultMaxAttempts,
		lockout:     DefaultLockout,
		now:         time.Now,
		logger:      log.New(log.Writer(), "[IDENTITY] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hash returns the SHA-256 hex key for a raw identifier.
func Hash(identifier string) string {
	return cryptoutil.SHA256Hex([]byte(identifier))
}

// IsLocked reports whether the hashed identity is under lockout. An expired
// lock is cleared opportunistically as a side effect.
func (s *Store) IsLocked(hashed string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.attempts[hashed]
	if !ok || rec.lockedUntil.IsZero() {
		return false
	}
	if s.now().Before(rec.lockedUntil) {
		return true
	}

	// Lock expired: clear it and start the attempt counter over.
	delete(s.attempts, hashed)
	return false
}

// RemainingLockout returns how many whole seconds of lockout remain, zero
// when unlocked.
func (s *Store) RemainingLockout(hashed string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.attempts[hashed]
	if !ok || rec.lockedUntil.IsZero() {
		return 0
	}
	remaining := rec.lockedUntil.Sub(s.now())
	if remaining <= 0 {
		return 0
	}
	secs := int(remaining / time.Second)
	if remaining%time.Second > 0 {
		secs++
	}
	return secs
}

// IncrementFailed records a failed verify. Crossing the attempt threshold
// sets the lock. Returns whether the identity is now locked and how many
// attempts remain before lockout.
func (s *Store) IncrementFailed(hashed string) (locked bool, attemptsLeft int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.attempts[hashed]
	if !ok {
		rec = &attemptRecord{}
		s.attempts[hashed] = rec
	}
	rec.failedCount++

	if rec.failedCount >= s.maxAttempts {
		rec.lockedUntil = s.now().Add(s.lockout)
		s.logger.Printf("🚫 identity locked after %d failed attempts (window=%s)", rec.failedCount, s.lockout)
		return true, 0
	}
	return false, s.maxAttempts - rec.failedCount
}

// Reset clears the attempt counter and any lock after a successful verify.
func (s *Store) Reset(hashed string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, hashed)
}

// PutSession stores the OTP session for an identity, replacing any earlier
// one. At most one session exists per identity.
func (s *Store) PutSession(hashed, txnID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[hashed] = &Session{TxnID: txnID, CreatedAt: s.now()}
}

// GetSession returns the current session, if any.
func (s *Store) GetSession(hashed string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[hashed]
	return sess, ok
}

// ClearSession consumes the session on successful verify.
func (s *Store) ClearSession(hashed string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, hashed)
}

// MaxAttempts returns the configured attempt threshold.
func (s *Store) MaxAttempts() int { return s.maxAttempts }

// Stats returns counters for operational visibility.
func (s *Store) Stats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockedCount := 0
	now := s.now()
	for _, rec := range s.attempts {
		if !rec.lockedUntil.IsZero() && now.Before(rec.lockedUntil) {
			lockedCount++
		}
	}
	return map[string]interface{}{
		"tracked_identities": len(s.attempts),
		"active_sessions":    len(s.sessions),
		"locked_identities":  lockedCount,
	}
}
