package consent

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/novascore/engine/internal/cryptoutil"
	"github.com/novascore/engine/internal/enginerr"
)

// Service validates consent payloads, owns the lifecycle rules, and writes
// through the durable store — falling back to memory with a once-per-process
// warning when the database is down.
type Service struct {
	mu       sync.RWMutex
	primary  Store // nil when the database was unavailable; guarded by mu
	fallback *MemoryStore
	logger   *log.Logger

	degradedOnce sync.Once
	now          func() time.Time
}

// NewService builds a consent service. primary may be nil; all traffic then
// lands on the in-memory fallback.
func NewService(primary Store) *Service {
	return &Service{
		primary:  primary,
		fallback: NewMemoryStore(),
		logger:   log.New(log.Writer(), "[CONSENT] ", log.LstdFlags),
		now:      time.Now,
	}
}

func (s *Service) warnDegraded(err error) {
	s.degradedOnce.Do(func() {
		s.logger.Printf("⚠️ durable store unavailable, serving from memory: %v", err)
	})
}

func (s *Service) store() Store {
	s.mu.RLock()
	primary := s.primary
	s.mu.RUnlock()

	if primary != nil {
		return primary
	}
	s.warnDegraded(nil)
	return s.fallback
}

// demote drops the durable store after a failed write so every later call
// lands on the fallback.
func (s *Service) demote(err error) {
	s.mu.Lock()
	s.primary = nil
	s.mu.Unlock()
	s.warnDegraded(err)
}

// Validate rejects any malformed create payload before persistence.
func Validate(req *CreateRequest) error {
	var fields []enginerr.FieldError

	if req.UserReferenceID == "" {
		fields = append(fields, enginerr.FieldError{Field: "user_reference_id", Reason: "must not be empty"})
	}
	if len(req.FITypes) == 0 {
		fields = append(fields, enginerr.FieldError{Field: "fi_types", Reason: "must not be empty"})
	}
	for _, ft := range req.FITypes {
		if !AllowedFITypes[ft] {
			fields = append(fields, enginerr.FieldError{Field: "fi_types", Reason: "unknown fi type " + ft})
		}
	}

	from, errFrom := time.Parse(time.RFC3339, req.DataRange.From)
	to, errTo := time.Parse(time.RFC3339, req.DataRange.To)
	if errFrom != nil {
		fields = append(fields, enginerr.FieldError{Field: "data_range.from", Reason: "not an ISO-8601 instant"})
	}
	if errTo != nil {
		fields = append(fields, enginerr.FieldError{Field: "data_range.to", Reason: "not an ISO-8601 instant"})
	}
	if errFrom == nil && errTo == nil && !from.Before(to) {
		fields = append(fields, enginerr.FieldError{Field: "data_range", Reason: "from must precede to"})
	}

	switch req.DataLife.Unit {
	case "DAY", "MONTH", "YEAR", "INF":
	default:
		fields = append(fields, enginerr.FieldError{Field: "data_life.unit", Reason: "must be DAY, MONTH, YEAR or INF"})
	}
	if req.DataLife.Value < 0 {
		fields = append(fields, enginerr.FieldError{Field: "data_life.value", Reason: "must be non-negative"})
	}

	if len(fields) > 0 {
		return enginerr.Validation("VALIDATION", "consent payload is malformed").WithFields(fields...)
	}
	return nil
}

// Create validates the payload, builds the signed artefact blob, and
// persists a new ACTIVE consent.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*Artefact, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	purpose := DefaultPurpose
	if req.Purpose != nil {
		purpose = *req.Purpose
	}
	frequency := DefaultFrequency
	if req.Frequency != nil {
		frequency = *req.Frequency
	}

	a := &Artefact{
		ConsentID:       uuid.NewString(),
		UserReferenceID: req.UserReferenceID,
		Status:          StatusActive,
		FITypes:         append([]string(nil), req.FITypes...),
		DataRange:       req.DataRange,
		DataLife:        req.DataLife,
		Purpose:         purpose,
		Frequency:       frequency,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	a.ConsentArtefact = buildWireArtefact(a)

	target := s.store()
	if err := target.Persist(ctx, a); err != nil {
		if target == Store(s.fallback) {
			return nil, err
		}
		s.demote(err)
		if err := s.fallback.Persist(ctx, a); err != nil {
			return nil, err
		}
		return a, nil
	}
	return a, nil
}

// Get returns a consent by id. Ids must be syntactically valid UUIDv4.
func (s *Service) Get(ctx context.Context, consentID string) (*Artefact, error) {
	if err := requireUUID(consentID); err != nil {
		return nil, err
	}
	return s.store().Get(ctx, consentID)
}

// ListByUser returns all consents for a user reference, newest first.
func (s *Service) ListByUser(ctx context.Context, userReferenceID string) ([]*Artefact, error) {
	if userReferenceID == "" {
		return nil, enginerr.Validation("VALIDATION", "user reference id must not be empty")
	}
	return s.store().ListByUser(ctx, userReferenceID)
}

// Revoke transitions ACTIVE → REVOKED. The transition is terminal; revoking
// anything else is a conflict.
func (s *Service) Revoke(ctx context.Context, consentID string) (*Artefact, error) {
	if err := requireUUID(consentID); err != nil {
		return nil, err
	}
	a, err := s.store().Revoke(ctx, consentID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.Printf("consent %s revoked", consentID)
	return a, nil
}

func requireUUID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return enginerr.Validation("INVALID_UUID", "%q is not a valid UUID", id)
	}
	return nil
}

// buildWireArtefact assembles the consent document actually transmitted to
// the AA, with a digest over its detail block standing in for the gateway
// signature slot.
func buildWireArtefact(a *Artefact) map[string]interface{} {
	detail := map[string]interface{}{
		"consentStart": cryptoutil.TimestampUTC(a.CreatedAt),
		"consentMode":  "STORE",
		"fetchType":    "PERIODIC",
		"consentTypes": []string{"TRANSACTIONS", "PROFILE", "SUMMARY"},
		"fiTypes":      a.FITypes,
		"DataConsumer": map[string]interface{}{"id": "novascore-fiu", "type": "FIU"},
		"Customer":     map[string]interface{}{"id": a.UserReferenceID},
		"Purpose": map[string]interface{}{
			"code":     a.Purpose.Code,
			"refUri":   a.Purpose.RefURI,
			"text":     a.Purpose.Text,
			"Category": map[string]interface{}{"type": a.Purpose.Category},
		},
		"FIDataRange": map[string]interface{}{"from": a.DataRange.From, "to": a.DataRange.To},
		"DataLife":    map[string]interface{}{"unit": a.DataLife.Unit, "value": a.DataLife.Value},
		"Frequency":   map[string]interface{}{"unit": a.Frequency.Unit, "value": a.Frequency.Value},
	}

	return map[string]interface{}{
		"ver":             "2.0.0",
		"txnid":           uuid.NewString(),
		"consentId":       a.ConsentID,
		"status":          string(a.Status),
		"createTimestamp": cryptoutil.TimestampUTC(a.CreatedAt),
		"ConsentDetail":   detail,
		"consentDetailDigest": cryptoutil.SHA256Hex([]byte(
			a.ConsentID + a.UserReferenceID + a.DataRange.From + a.DataRange.To)),
	}
}
