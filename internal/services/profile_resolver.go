package services

import (
	"context"
	"fmt"

	"github.com/festpass/registration-backend/internal/database"
	"github.com/festpass/registration-backend/internal/models"
	"github.com/festpass/registration-backend/pkg/validator"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProfileStore is the persistence used by the resolver
type ProfileStore interface {
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
	Create(ctx context.Context, in models.ProfileInput) (uuid.UUID, error)
	UpdateDetails(ctx context.Context, id uuid.UUID, in models.ProfileInput) error
}

// ProfileResolver finds or creates a profile keyed by normalized email
type ProfileResolver struct {
	store  ProfileStore
	phone  *validator.PhoneValidator
	logger *logrus.Logger
}

// NewProfileResolver creates a new profile resolver
func NewProfileResolver(store ProfileStore, logger *logrus.Logger) *ProfileResolver {
	return &ProfileResolver{
		store:  store,
		phone:  validator.NewPhoneValidator(),
		logger: logger,
	}
}

// Resolve returns the id of the profile for in.Email, creating it if needed and refreshing
// its mutable fields otherwise. Storage failures are returned, never swallowed.
func (r *ProfileResolver) Resolve(ctx context.Context, in models.ProfileInput) (uuid.UUID, error) {
	in.Email = models.NormalizeEmail(in.Email)
	if in.Email == "" {
		return uuid.Nil, fmt.Errorf("email is required")
	}
	in.Phone = r.phone.Sanitize(in.Phone)

	existing, err := r.store.GetByEmail(ctx, in.Email)
	if err != nil {
		return uuid.Nil, err
	}
	if existing != nil {
		if err := r.store.UpdateDetails(ctx, existing.ID, in); err != nil {
			return uuid.Nil, err
		}
		return existing.ID, nil
	}

	id, err := r.store.Create(ctx, in)
	if err == nil {
		r.logger.WithFields(logrus.Fields{
			"profile_id": id,
			"email":      in.Email,
		}).Info("Profile created")
		return id, nil
	}
	if !database.IsUniqueViolation(err) {
		return uuid.Nil, err
	}

	// A concurrent request inserted the same email first
	r.logger.WithField("email", in.Email).Debug("Profile insert lost race, re-reading")
	existing, err = r.store.GetByEmail(ctx, in.Email)
	if err != nil {
		return uuid.Nil, err
	}
	if existing == nil {
		return uuid.Nil, fmt.Errorf("profile for %s vanished after unique violation", in.Email)
	}
	if err := r.store.UpdateDetails(ctx, existing.ID, in); err != nil {
		return uuid.Nil, err
	}
	return existing.ID, nil
}
