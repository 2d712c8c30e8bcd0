package consent

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/novascore/engine/internal/enginerr"
)

// Store is the persistence contract for consent artefacts. The primary
// implementation is Postgres; the memory store mirrors its semantics for
// degraded mode and tests.
type Store interface {
	Persist(ctx context.Context, a *Artefact) error
	Get(ctx context.Context, consentID string) (*Artefact, error)
	ListByUser(ctx context.Context, userReferenceID string) ([]*Artefact, error)
	// Revoke flips ACTIVE → REVOKED with row-level semantics: the update is
	// conditional on the current status, so a caller never observes ACTIVE
	// after another has observed REVOKED.
	Revoke(ctx context.Context, consentID string, at time.Time) (*Artefact, error)
}

// ============================================================================
// POSTGRES STORE
// ============================================================================

const consentSchema = `
CREATE TABLE IF NOT EXISTS consent_log (
	consent_id        UUID PRIMARY KEY,
	user_reference_id TEXT NOT NULL,
	status            TEXT NOT NULL,
	fi_types          JSON NOT NULL,
	data_range        JSON NOT NULL,
	data_life         JSON NOT NULL,
	purpose           JSON NOT NULL,
	consent_artefact  JSON NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	revoked_at        TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_consent_log_user ON consent_log (user_reference_id);
CREATE INDEX IF NOT EXISTS idx_consent_log_status ON consent_log (status);
CREATE INDEX IF NOT EXISTS idx_consent_log_created ON consent_log (created_at);
`

// PostgresStore persists consents in the consent_log table via lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects, verifies connectivity and ensures the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("consent store: open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("consent store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, consentSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("consent store: schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) Persist(ctx context.Context, a *Artefact) error {
	fiTypes, _ := json.Marshal(a.FITypes)
	dataRange, _ := json.Marshal(a.DataRange)
	dataLife, _ := json.Marshal(a.DataLife)
	purpose, _ := json.Marshal(a.Purpose)
	artefact, _ := json.Marshal(a.ConsentArtefact)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consent_log
			(consent_id, user_reference_id, status, fi_types, data_range,
			 data_life, purpose, consent_artefact, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ConsentID, a.UserReferenceID, string(a.Status), fiTypes, dataRange,
		dataLife, purpose, artefact, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("consent store: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, consentID string) (*Artefact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT consent_id, user_reference_id, status, fi_types, data_range,
		       data_life, purpose, consent_artefact, created_at, updated_at, revoked_at
		FROM consent_log WHERE consent_id = $1`, consentID)

	a, err := scanArtefact(row)
	if err == sql.ErrNoRows {
		return nil, enginerr.NotFound("NOT_FOUND", "consent %s not found", consentID)
	}
	if err != nil {
		return nil, fmt.Errorf("consent store: get: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userReferenceID string) ([]*Artefact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT consent_id, user_reference_id, status, fi_types, data_range,
		       data_life, purpose, consent_artefact, created_at, updated_at, revoked_at
		FROM consent_log WHERE user_reference_id = $1
		ORDER BY created_at DESC`, userReferenceID)
	if err != nil {
		return nil, fmt.Errorf("consent store: list: %w", err)
	}
	defer rows.Close()

	var out []*Artefact
	for rows.Next() {
		a, err := scanArtefact(rows)
		if err != nil {
			return nil, fmt.Errorf("consent store: scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Revoke(ctx context.Context, consentID string, at time.Time) (*Artefact, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE consent_log
		SET status = 'REVOKED', revoked_at = $2, updated_at = $2
		WHERE consent_id = $1 AND status = 'ACTIVE'`, consentID, at)
	if err != nil {
		return nil, fmt.Errorf("consent store: revoke: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		// Distinguish missing from non-ACTIVE for the caller.
		existing, err := s.Get(ctx, consentID)
		if err != nil {
			return nil, err
		}
		return nil, enginerr.Conflict("NOT_ACTIVE", "consent %s is %s, not ACTIVE", consentID, existing.Status)
	}
	return s.Get(ctx, consentID)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArtefact(row rowScanner) (*Artefact, error) {
	var (
		a                                              Artefact
		status                                         string
		fiTypes, dataRange, dataLife, purpose, wireDoc []byte
		revokedAt                                      sql.NullTime
	)
	err := row.Scan(&a.ConsentID, &a.UserReferenceID, &status, &fiTypes, &dataRange,
		&dataLife, &purpose, &wireDoc, &a.CreatedAt, &a.UpdatedAt, &revokedAt)
	if err != nil {
		return nil, err
	}

	a.Status = Status(status)
	json.Unmarshal(fiTypes, &a.FITypes)
	json.Unmarshal(dataRange, &a.DataRange)
	json.Unmarshal(dataLife, &a.DataLife)
	json.Unmarshal(purpose, &a.Purpose)
	json.Unmarshal(wireDoc, &a.ConsentArtefact)
	if revokedAt.Valid {
		t := revokedAt.Time
		a.RevokedAt = &t
	}
	return &a, nil
}

// ============================================================================
// MEMORY STORE — degraded-mode fallback with identical semantics
// ============================================================================

// MemoryStore keeps artefacts in a mutex-guarded list.
type MemoryStore struct {
	mu        sync.RWMutex
	artefacts map[string]*Artefact
	order     []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{artefacts: make(map[string]*Artefact)}
}

func (s *MemoryStore) Persist(ctx context.Context, a *Artefact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	s.artefacts[a.ConsentID] = &cp
	s.order = append(s.order, a.ConsentID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, consentID string) (*Artefact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artefacts[consentID]
	if !ok {
		return nil, enginerr.NotFound("NOT_FOUND", "consent %s not found", consentID)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userReferenceID string) ([]*Artefact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Artefact
	// Newest first, matching the SQL ordering.
	for i := len(s.order) - 1; i >= 0; i-- {
		a := s.artefacts[s.order[i]]
		if a.UserReferenceID == userReferenceID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, consentID string, at time.Time) (*Artefact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artefacts[consentID]
	if !ok {
		return nil, enginerr.NotFound("NOT_FOUND", "consent %s not found", consentID)
	}
	if a.Status != StatusActive {
		return nil, enginerr.Conflict("NOT_ACTIVE", "consent %s is %s, not ACTIVE", consentID, a.Status)
	}

	a.Status = StatusRevoked
	a.RevokedAt = &at
	a.UpdatedAt = at
	cp := *a
	return &cp, nil
}
