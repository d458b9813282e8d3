package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NaJiKuN/AIPoweredProBot/internal/config"
	"github.com/NaJiKuN/AIPoweredProBot/internal/models"
	"github.com/NaJiKuN/AIPoweredProBot/internal/repository"
)

var ErrSeedAdmin = errors.New("seed admins cannot be demoted")

// UserService handles user lifecycle: registration on first contact with the
// free trial grant, profile upkeep, and admin promotion.
type UserService struct {
	cfg   config.Config
	log   *slog.Logger
	users *repository.UserRepository
}

func NewUserService(cfg config.Config, log *slog.Logger, users *repository.UserRepository) *UserService {
	return &UserService{cfg: cfg, log: log, users: users}
}

// Ensure returns the user, creating the record on first contact. A new user
// receives the free trial allotment and the default model; seed admins are
// flagged immediately.
func (s *UserService) Ensure(ctx context.Context, userID int64, username, firstName, lastName string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user != nil {
		if user.Username != username || user.FirstName != firstName || user.LastName != lastName {
			if err := s.users.UpdateProfile(ctx, userID, username, firstName, lastName); err != nil {
				return nil, fmt.Errorf("update profile: %w", err)
			}
			user.Username = username
			user.FirstName = firstName
			user.LastName = lastName
		}
		return user, nil
	}

	expiry := models.DateOnly(time.Now().UTC()).AddDate(0, 0, s.cfg.TrialDays)
	user = &models.User{
		ID:               userID,
		Username:         username,
		FirstName:        firstName,
		LastName:         lastName,
		Language:         s.cfg.DefaultLanguage,
		SelectedModel:    models.DefaultModel,
		IsAdmin:          s.isSeedAdmin(userID),
		FreeRequestsLeft: s.cfg.TrialRequests,
		FreeExpiry:       &expiry,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info("registered new user", "user", userID, "username", username, "admin", user.IsAdmin)
	return user, nil
}

func (s *UserService) SetLanguage(ctx context.Context, userID int64, language string) error {
	return s.users.SetLanguage(ctx, userID, language)
}

// SelectModel stores the user's active model. Unknown names are rejected.
func (s *UserService) SelectModel(ctx context.Context, userID int64, modelName string) error {
	if _, ok := models.LookupModel(modelName); !ok {
		return fmt.Errorf("unknown model %q", modelName)
	}
	return s.users.SetSelectedModel(ctx, userID, modelName)
}

func (s *UserService) ListIDs(ctx context.Context) ([]int64, error) {
	return s.users.ListIDs(ctx)
}

// AdminIDs lists everyone flagged as admin, seed or promoted.
func (s *UserService) AdminIDs(ctx context.Context) ([]int64, error) {
	return s.users.ListAdminIDs(ctx)
}

func (s *UserService) Promote(ctx context.Context, userID int64) error {
	return s.users.SetAdmin(ctx, userID, true)
}

// Demote removes admin rights. Seed admins from the configuration stay.
func (s *UserService) Demote(ctx context.Context, userID int64) error {
	if s.isSeedAdmin(userID) {
		return ErrSeedAdmin
	}
	return s.users.SetAdmin(ctx, userID, false)
}

func (s *UserService) Counts(ctx context.Context) (total, premium int, err error) {
	return s.users.Counts(ctx, models.DateOnly(time.Now().UTC()))
}

func (s *UserService) isSeedAdmin(userID int64) bool {
	for _, id := range s.cfg.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
