package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/festpass/registration-backend/internal/database"
	"github.com/festpass/registration-backend/internal/models"
)

// memoryProfileStore mimics the profiles table with its unique email index
type memoryProfileStore struct {
	mu       sync.Mutex
	byEmail  map[string]*models.Profile
	getErr   error
	createFn func(in models.ProfileInput) (uuid.UUID, error)
}

func newMemoryProfileStore() *memoryProfileStore {
	return &memoryProfileStore{byEmail: map[string]*models.Profile{}}
}

func (s *memoryProfileStore) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	p, ok := s.byEmail[email]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *memoryProfileStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byEmail {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryProfileStore) Create(ctx context.Context, in models.ProfileInput) (uuid.UUID, error) {
	if s.createFn != nil {
		return s.createFn(in)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[in.Email]; ok {
		return uuid.Nil, &pq.Error{Code: "23505", Constraint: "profiles_email_key"}
	}
	p := &models.Profile{
		ID:                uuid.New(),
		Email:             in.Email,
		FullName:          in.FullName,
		Phone:             in.Phone,
		College:           in.College,
		FestPaymentStatus: models.FestPaymentNone,
		CreatedAt:         time.Now(),
	}
	s.byEmail[in.Email] = p
	return p.ID, nil
}

func (s *memoryProfileStore) UpdateDetails(ctx context.Context, id uuid.UUID, in models.ProfileInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byEmail {
		if p.ID == id {
			p.FullName = in.FullName
			p.Phone = in.Phone
			p.College = in.College
			return nil
		}
	}
	return database.ErrNotFound
}

func (s *memoryProfileStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byEmail)
}

// memoryRegistrationStore mimics registrations, events and fest_registrations
type memoryRegistrationStore struct {
	mu       sync.Mutex
	events   map[uuid.UUID]*models.Event
	regs     map[[2]uuid.UUID]*models.Registration
	fest     map[uuid.UUID]*models.FestRegistration
	codes    map[string]bool
	writeErr error
}

func newMemoryRegistrationStore() *memoryRegistrationStore {
	return &memoryRegistrationStore{
		events: map[uuid.UUID]*models.Event{},
		regs:   map[[2]uuid.UUID]*models.Registration{},
		fest:   map[uuid.UUID]*models.FestRegistration{},
		codes:  map[string]bool{},
	}
}

func (s *memoryRegistrationStore) addEvent(e *models.Event) *models.Event {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.MinTeamSize == 0 {
		e.MinTeamSize = 1
	}
	if e.MaxTeamSize == 0 {
		e.MaxTeamSize = 1
	}
	if e.Status == "" {
		e.Status = models.EventStatusUpcoming
	}
	s.events[e.ID] = e
	return e
}

func (s *memoryRegistrationStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *memoryRegistrationStore) WriteEventRegistration(ctx context.Context, in models.EventRegistrationInput) (*models.EventRegistrationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return nil, s.writeErr
	}

	event, ok := s.events[in.EventID]
	if !ok {
		return nil, database.ErrNotFound
	}
	if event.Status == models.EventStatusCompleted {
		return nil, database.ErrEventClosed
	}

	key := [2]uuid.UUID{in.ProfileID, in.EventID}
	existing := s.regs[key]
	if existing != nil && existing.PaymentStatus == models.PaymentStatusCompleted {
		return nil, database.ErrAlreadyRegistered
	}
	completing := in.PaymentStatus == models.PaymentStatusCompleted
	if completing && event.IsFull() {
		return nil, database.ErrEventFull
	}
	if size := in.Team.Size(); size < event.MinTeamSize || size > event.MaxTeamSize {
		return nil, database.ErrInvalidTeamSize
	}

	if existing == nil {
		existing = &models.Registration{ID: uuid.New(), ProfileID: in.ProfileID, EventID: in.EventID}
		s.regs[key] = existing
	}
	existing.PaymentStatus = in.PaymentStatus
	if completing {
		event.CurrentParticipants++
	}

	return &models.EventRegistrationResult{
		RegistrationID: existing.ID,
		ProfileID:      in.ProfileID,
		EventID:        in.EventID,
		EventTitle:     event.Title,
		PaymentStatus:  in.PaymentStatus,
		FirstCompleted: completing,
	}, nil
}

func (s *memoryRegistrationStore) CreatePending(ctx context.Context, in database.FestPaymentInput) (*models.FestRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	for _, r := range s.fest {
		if r.ProfileID == in.ProfileID {
			if r.PaymentStatus == models.FestRegistrationCompleted {
				return nil, database.ErrAlreadyRegistered
			}
			proof := in.PaymentProof
			r.PaymentProof = &proof
			cp := *r
			return &cp, nil
		}
	}
	proof := in.PaymentProof
	r := &models.FestRegistration{
		ID:            uuid.New(),
		ProfileID:     in.ProfileID,
		PaymentStatus: models.FestRegistrationPending,
		PaymentProof:  &proof,
	}
	s.fest[r.ID] = r
	cp := *r
	return &cp, nil
}

func (s *memoryRegistrationStore) Approve(ctx context.Context, id, approvedBy uuid.UUID, code string) (*models.FestRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.fest[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	if r.PaymentStatus != models.FestRegistrationPending {
		return nil, database.ErrNotPending
	}
	if s.codes[code] {
		return nil, database.ErrCodeCollision
	}
	s.codes[code] = true
	now := time.Now()
	r.PaymentStatus = models.FestRegistrationCompleted
	r.RegistrationCode = &code
	r.ApprovedBy = &approvedBy
	r.ApprovedAt = &now
	cp := *r
	return &cp, nil
}

func (s *memoryRegistrationStore) GetFest(id uuid.UUID) *models.FestRegistration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fest[id]
}

func (s *memoryRegistrationStore) registrationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.regs)
}

// festStoreAdapter exposes GetByID for fest registrations under the FestRegistrationStore interface
type festStoreAdapter struct {
	*memoryRegistrationStore
}

func (a festStoreAdapter) GetByID(ctx context.Context, id uuid.UUID) (*models.FestRegistration, error) {
	r := a.GetFest(id)
	if r == nil {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

type recordingAudits struct {
	mu      sync.Mutex
	entries []*models.PaymentAudit
	err     error
}

func (r *recordingAudits) Log(ctx context.Context, a *models.PaymentAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, a)
	return r.err
}

func (r *recordingAudits) types() []models.PaymentEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.PaymentEventType, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.EventType)
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []models.Notification
	err   error
	panic bool
}

func (n *recordingNotifier) Dispatch(ctx context.Context, notification models.Notification) error {
	if n.panic {
		panic("smtp client exploded")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification)
	return nil
}

func (n *recordingNotifier) notifications() []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Notification(nil), n.sent...)
}

// failingGateway always fails order creation
type failingGateway struct {
	*TestGateway
}

func (g failingGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*models.Order, error) {
	return nil, errors.New("dial tcp: connection refused")
}
