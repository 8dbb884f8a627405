package users

import (
	"context"
	"errors"
	"log/slog"

	"github.com/budgetblitz/budgetblitz/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	FindByID(ctx context.Context, id int64) (User, error)
	UpdateProfile(ctx context.Context, id int64, firstName, lastName string) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	SetEnabled(ctx context.Context, id int64, enabled bool) error
}

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) bool
}

// Service handles profile and account-state operations for the current user.
type Service struct {
	repo   RepositoryPort
	hasher Hasher
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, hasher Hasher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, hasher: hasher, logger: logger}
}

// ProfileOf maps a user to its public profile.
func ProfileOf(u User) Profile {
	return Profile{
		ID:          u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		DateOfBirth: u.DateOfBirth.Format(shared.DateLayout),
	}
}

// GetProfile returns the profile of userID.
func (s *Service) GetProfile(ctx context.Context, userID int64) (Profile, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return ProfileOf(user), nil
}

// UpdateProfile applies the provided name changes.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, req UpdateProfileRequest) (Profile, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	changed := false
	if req.FirstName != nil && *req.FirstName != user.FirstName {
		user.FirstName = *req.FirstName
		changed = true
	}
	if req.LastName != nil && *req.LastName != user.LastName {
		user.LastName = *req.LastName
		changed = true
	}
	if changed {
		if err := s.repo.UpdateProfile(ctx, user.ID, user.FirstName, user.LastName); err != nil {
			return Profile{}, s.translate(err)
		}
	}
	return ProfileOf(user), nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, req ChangePasswordRequest) error {
	if err := shared.CheckPasswordConfirmation(req); err != nil {
		return err
	}
	user, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(user.PasswordHash, req.CurrentPassword) {
		return shared.NewError(shared.CodeInvalidCurrentPassword)
	}
	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, hash); err != nil {
		return s.translate(err)
	}
	s.logger.Info("password changed", slog.Int64("user_id", user.ID))
	return nil
}

// Deactivate disables the account.
func (s *Service) Deactivate(ctx context.Context, userID int64) error {
	user, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if !user.Enabled {
		return shared.NewError(shared.CodeAccountAlreadyDeactivated)
	}
	if err := s.repo.SetEnabled(ctx, user.ID, false); err != nil {
		return s.translate(err)
	}
	s.logger.Info("account deactivated", slog.Int64("user_id", user.ID))
	return nil
}

// Reactivate re-enables a deactivated account.
func (s *Service) Reactivate(ctx context.Context, userID int64) error {
	user, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if user.Enabled {
		return shared.NewError(shared.CodeAccountAlreadyActivated)
	}
	if !user.EmailVerified {
		return shared.NewError(shared.CodeAccountNotVerified)
	}
	if err := s.repo.SetEnabled(ctx, user.ID, true); err != nil {
		return s.translate(err)
	}
	s.logger.Info("account reactivated", slog.Int64("user_id", user.ID))
	return nil
}

// Delete soft-deletes the account by deactivating it.
func (s *Service) Delete(ctx context.Context, userID int64) error {
	return s.Deactivate(ctx, userID)
}

func (s *Service) load(ctx context.Context, userID int64) (User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return User{}, s.translate(err)
	}
	return user, nil
}

func (s *Service) translate(err error) error {
	if errors.Is(err, ErrNotFound) {
		return shared.WrapError(shared.CodeUserNotFound, err)
	}
	return err
}
